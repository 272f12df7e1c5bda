// Package pipeline drives a harvest run end to end: walk the listing,
// parse each story, resolve its attachments, and persist the corpus.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rightslens/bhrrc-harvester/internal/harvest"
	"github.com/rightslens/bhrrc-harvester/internal/metrics"
)

// Pager yields allegation summaries one at a time across listing pages.
type Pager interface {
	Next(ctx context.Context) (harvest.AllegationSummary, bool, error)
}

// StoryParser turns a fetched story page into a structured record.
type StoryParser interface {
	Parse(pageHTML []byte, summary harvest.AllegationSummary) (harvest.AllegationRecord, error)
}

// AttachmentResolver fills attachment references with extracted text.
type AttachmentResolver interface {
	ResolveAll(ctx context.Context, refs []harvest.AttachmentRef) []harvest.AttachmentRef
}

// Corpus is the persistence surface the runner needs.
type Corpus interface {
	Get(id string) (harvest.AllegationRecord, bool)
	Upsert(rec harvest.AllegationRecord)
	Cursor() int
	AdvanceCursor(page int)
	Flush() error
}

// Summary is the outcome of one run.
type Summary struct {
	RunID             string
	RecordsFetched    int
	RecordsMerged     int
	RecordsFailed     int
	OCRFallbacks      int
	FailedExtractions int
}

// Runner executes a harvest run. Stories are processed sequentially so
// one bad page never poisons its neighbors; attachment fan-out inside a
// story is the resolver's business.
type Runner struct {
	fetcher  harvest.Fetcher
	pager    Pager
	parser   StoryParser
	resolver AttachmentResolver
	store    Corpus
	logger   *zap.Logger
}

func NewRunner(fetcher harvest.Fetcher, pager Pager, parser StoryParser, resolver AttachmentResolver, store Corpus, logger *zap.Logger) *Runner {
	return &Runner{
		fetcher:  fetcher,
		pager:    pager,
		parser:   parser,
		resolver: resolver,
		store:    store,
		logger:   logger,
	}
}

// Run walks the listing until it is exhausted or a structural problem
// stops it. The cursor only advances past a listing page once every
// story on it has been handled, so an interrupted run resumes on the
// first incomplete page.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	summary := Summary{RunID: uuid.NewString()}
	logger := r.logger.With(zap.String("run_id", summary.RunID))
	logger.Info("harvest run starting", zap.Int("cursor", r.store.Cursor()))

	currentPage := 0
	for {
		item, ok, err := r.pager.Next(ctx)
		if err != nil {
			// Pager errors surface while fetching the next listing
			// page, after every story on the current page was already
			// handled, so the current page still counts as done.
			if currentPage != 0 {
				if flushErr := r.completePage(currentPage, logger); flushErr != nil {
					logger.Error("final flush failed", zap.Error(flushErr))
				}
			}
			var drift *harvest.DriftError
			if errors.As(err, &drift) {
				logger.Error("listing structure drifted, halting before cursor write",
					zap.Int("page", drift.Page),
					zap.Int("summaries", drift.Summaries),
					zap.String("reason", drift.Reason))
				metrics.IncRun("drift")
				return summary, err
			}
			metrics.IncRun("error")
			return summary, fmt.Errorf("walking listing: %w", err)
		}
		if !ok {
			break
		}

		if currentPage != 0 && item.Page != currentPage {
			if err := r.completePage(currentPage, logger); err != nil {
				metrics.IncRun("error")
				return summary, err
			}
		}
		currentPage = item.Page

		if err := r.processStory(ctx, item, &summary, logger); err != nil {
			if ctx.Err() != nil {
				metrics.IncRun("canceled")
				return summary, ctx.Err()
			}
			summary.RecordsFailed++
			logger.Warn("story skipped",
				zap.String("id", item.ID),
				zap.String("url", item.URL),
				zap.Error(err))
		}
	}

	if currentPage != 0 {
		if err := r.completePage(currentPage, logger); err != nil {
			metrics.IncRun("error")
			return summary, err
		}
	}

	metrics.IncRun("ok")
	logger.Info("harvest run finished",
		zap.Int("fetched", summary.RecordsFetched),
		zap.Int("merged", summary.RecordsMerged),
		zap.Int("failed", summary.RecordsFailed),
		zap.Int("ocr_fallbacks", summary.OCRFallbacks),
		zap.Int("failed_extractions", summary.FailedExtractions))
	return summary, nil
}

func (r *Runner) completePage(page int, logger *zap.Logger) error {
	r.store.AdvanceCursor(page)
	if err := r.store.Flush(); err != nil {
		return fmt.Errorf("flushing corpus after page %d: %w", page, err)
	}
	logger.Info("listing page complete", zap.Int("page", page))
	return nil
}

// processStory fetches and parses one story, resolves the attachments
// the corpus has not seen yet, and upserts the result.
func (r *Runner) processStory(ctx context.Context, item harvest.AllegationSummary, summary *Summary, logger *zap.Logger) error {
	resp, err := r.fetcher.Fetch(ctx, harvest.FetchRequest{URL: item.URL, Kind: harvest.KindHTML})
	if err != nil {
		return fmt.Errorf("fetching story: %w", err)
	}

	rec, err := r.parser.Parse(resp.Body, item)
	if err != nil {
		return fmt.Errorf("parsing story: %w", err)
	}

	existing, known := r.store.Get(rec.ID)
	pending := rec.Responses
	if known {
		pending = unseenRefs(existing.Responses, rec.Responses)
		if len(pending) == 0 {
			logger.Debug("story unchanged", zap.String("id", rec.ID))
			summary.RecordsMerged++
			return nil
		}
	}

	resolved := r.resolver.ResolveAll(ctx, pending)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	for _, ref := range resolved {
		switch ref.Method {
		case harvest.MethodOCR:
			summary.OCRFallbacks++
		case harvest.MethodFailed:
			summary.FailedExtractions++
		}
	}

	rec.Responses = resolved
	r.store.Upsert(rec)
	if known {
		summary.RecordsMerged++
	} else {
		summary.RecordsFetched++
	}
	return nil
}

// unseenRefs keeps only response links the stored record does not have
// yet, so reruns never repeat extraction work.
func unseenRefs(stored, found []harvest.AttachmentRef) []harvest.AttachmentRef {
	seen := make(map[string]struct{}, len(stored))
	for _, ref := range stored {
		seen[ref.URL] = struct{}{}
	}
	var out []harvest.AttachmentRef
	for _, ref := range found {
		if _, dup := seen[ref.URL]; dup {
			continue
		}
		out = append(out, ref)
	}
	return out
}
