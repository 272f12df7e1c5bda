// Package paginate walks the allegation listing pages, yielding a lazy,
// restartable sequence of story references.
package paginate

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/rightslens/bhrrc-harvester/internal/harvest"
)

// Sanity bound on summaries per listing page. A count outside (0, max]
// means the markup no longer matches our assumptions.
const defaultMaxPerPage = 100

type state int

const (
	stateStart state = iota
	stateFetching
	stateDone
	stateAborted
)

// Paginator produces AllegationSummary values one listing page at a
// time. It resumes from a starting page index and stops cleanly when
// the next-page link disappears.
type Paginator struct {
	fetcher    harvest.Fetcher
	baseURL    string
	page       int
	maxPerPage int
	state      state
	buf        []harvest.AllegationSummary
	hasNext    bool
	logger     *zap.Logger
}

// New builds a Paginator resuming from startPage.
func New(fetcher harvest.Fetcher, baseURL string, startPage int, logger *zap.Logger) *Paginator {
	if startPage < 1 {
		startPage = 1
	}
	return &Paginator{
		fetcher:    fetcher,
		baseURL:    baseURL,
		page:       startPage,
		maxPerPage: defaultMaxPerPage,
		state:      stateStart,
		logger:     logger,
	}
}

// Page reports the listing page the paginator will fetch (or last
// fetched) — the resumability cursor candidate.
func (p *Paginator) Page() int { return p.page }

// Next returns the next summary. The boolean is false when the listing
// is exhausted. A *harvest.DriftError aborts the sequence permanently.
func (p *Paginator) Next(ctx context.Context) (harvest.AllegationSummary, bool, error) {
	for len(p.buf) == 0 {
		if p.state == stateDone || p.state == stateAborted {
			return harvest.AllegationSummary{}, false, nil
		}
		p.state = stateFetching
		if err := p.fillFromPage(ctx); err != nil {
			p.state = stateAborted
			return harvest.AllegationSummary{}, false, err
		}
	}

	next := p.buf[0]
	p.buf = p.buf[1:]
	if len(p.buf) == 0 && !p.hasNext {
		p.state = stateDone
	}
	return next, true, nil
}

func (p *Paginator) fillFromPage(ctx context.Context) error {
	pageURL, err := p.listingURL(p.page)
	if err != nil {
		return err
	}

	resp, err := p.fetcher.Fetch(ctx, harvest.FetchRequest{URL: pageURL, Kind: harvest.KindHTML})
	if err != nil {
		return fmt.Errorf("fetch listing page %d: %w", p.page, err)
	}

	summaries, hasNext, err := p.parseListing(resp.Body)
	if err != nil {
		return err
	}

	p.logger.Debug("listing page parsed",
		zap.Int("page", p.page),
		zap.Int("summaries", len(summaries)),
		zap.Bool("has_next", hasNext),
	)

	p.buf = summaries
	p.hasNext = hasNext
	if hasNext {
		p.page++
	} else {
		p.state = stateDone
	}
	return nil
}

// parseListing extracts story references and the next-page signal,
// enforcing the per-page sanity bound.
func (p *Paginator) parseListing(body []byte) ([]harvest.AllegationSummary, bool, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("parse listing page %d: %w", p.page, err)
	}

	base, err := url.Parse(p.baseURL)
	if err != nil {
		return nil, false, fmt.Errorf("parse base url: %w", err)
	}

	var summaries []harvest.AllegationSummary
	seen := make(map[string]struct{})
	doc.Find("article a[href], div.card a[href], h3.card__title a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		id := storyID(resolved)
		if id == "" {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		summaries = append(summaries, harvest.AllegationSummary{
			ID:   id,
			Page: p.page,
			URL:  resolved.String(),
		})
	})

	if len(summaries) == 0 {
		return nil, false, &harvest.DriftError{
			Page:   p.page,
			Reason: "listing page yielded no summaries",
		}
	}
	if len(summaries) > p.maxPerPage {
		return nil, false, &harvest.DriftError{
			Page:      p.page,
			Summaries: len(summaries),
			Reason:    fmt.Sprintf("summary count exceeds sanity bound %d", p.maxPerPage),
		}
	}

	hasNext := doc.Find("a[rel='next'], li.pagination__next a, a.pagination__next").Length() > 0
	return summaries, hasNext, nil
}

// listingURL appends the page query parameter to the base listing URL.
func (p *Paginator) listingURL(page int) (string, error) {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url %q: %w", p.baseURL, err)
	}
	q := u.Query()
	if page > 1 {
		q.Set("page", strconv.Itoa(page))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// storyID derives the stable external identifier from a story URL: its
// trailing path segment (slug).
func storyID(u *url.URL) string {
	trimmed := strings.Trim(u.Path, "/")
	if trimmed == "" {
		return ""
	}
	return path.Base(trimmed)
}
