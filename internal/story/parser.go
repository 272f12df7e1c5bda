// Package story converts one allegation page's markup into a structured
// record.
package story

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/rightslens/bhrrc-harvester/internal/harvest"
)

// Section markers that terminate the narrative body. The story text runs
// from the headline until the first block matching one of these.
var stopMarkers = regexp.MustCompile(`(?i)(This is a response to|Timeline|Latest news|Company Responses)`)

// Parser extracts allegation records from story pages.
type Parser struct {
	logger *zap.Logger
}

// NewParser builds a Parser.
func NewParser(logger *zap.Logger) *Parser {
	return &Parser{logger: logger}
}

// Parse builds an AllegationRecord from a story page. Optional fields
// (companies, date) degrade to explicit empty values; a missing title or
// narrative fails the record with a *harvest.ParseError.
func (p *Parser) Parse(pageHTML []byte, summary harvest.AllegationSummary) (harvest.AllegationRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(pageHTML))
	if err != nil {
		return harvest.AllegationRecord{}, fmt.Errorf("parse story markup: %w", err)
	}

	title := strings.TrimSpace(doc.Find("h1").First().Text())
	if title == "" {
		return harvest.AllegationRecord{}, &harvest.ParseError{Field: "title", URL: summary.URL}
	}

	narrative := NarrativeAfterHeadline(doc)
	if narrative == "" {
		return harvest.AllegationRecord{}, &harvest.ParseError{Field: "narrative", URL: summary.URL}
	}

	record := harvest.AllegationRecord{
		ID:        summary.ID,
		Title:     title,
		Companies: companies(doc),
		Narrative: narrative,
		Date:      publicationDate(doc),
		Responses: p.responseRefs(doc, summary.URL),
	}
	return record, nil
}

// NarrativeAfterHeadline collects paragraph, list item, and blockquote
// text after the first h1, stopping at the first sibling whose text
// matches a section marker. Pages without an h1 fall back to all
// paragraph text. Shared with the attachment resolver so HTML responses
// are extracted the same way as stories.
func NarrativeAfterHeadline(doc *goquery.Document) string {
	h1 := doc.Find("h1").First()
	if h1.Length() == 0 {
		return allParagraphText(doc)
	}

	var parts []string
	h1.NextAll().EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := squashSpace(sel.Text())
		if text != "" && stopMarkers.MatchString(text) {
			return false
		}
		sel.Find("p, li, blockquote").Each(func(_ int, block *goquery.Selection) {
			if s := squashSpace(block.Text()); s != "" {
				parts = append(parts, s)
			}
		})
		if sel.Is("p, li, blockquote") {
			if s := squashSpace(sel.Text()); s != "" {
				parts = append(parts, s)
			}
		}
		return true
	})
	return strings.TrimSpace(strings.Join(parts, "\n\n"))
}

// VisibleText extracts the readable text of an HTML response page,
// preferring the site's html-block containers before falling back to
// the narrative walk.
func VisibleText(doc *goquery.Document) string {
	var blocks []string
	doc.Find("div.block.html-block").Each(func(_ int, sel *goquery.Selection) {
		if s := squashSpace(sel.Text()); s != "" {
			blocks = append(blocks, s)
		}
	})
	if len(blocks) > 0 {
		return strings.Join(blocks, "\n\n")
	}
	return NarrativeAfterHeadline(doc)
}

func allParagraphText(doc *goquery.Document) string {
	var parts []string
	doc.Find("p").Each(func(_ int, sel *goquery.Selection) {
		if s := squashSpace(sel.Text()); s != "" {
			parts = append(parts, s)
		}
	})
	return strings.TrimSpace(strings.Join(parts, "\n\n"))
}

// companies returns company names in document order, deduplicated.
// Multiple companies are common; no single canonical name is assumed.
func companies(doc *goquery.Document) []string {
	names := []string{}
	seen := make(map[string]struct{})
	doc.Find("a[href*='/companies/']").Each(func(_ int, sel *goquery.Selection) {
		name := squashSpace(sel.Text())
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		names = append(names, name)
	})
	return names
}

func publicationDate(doc *goquery.Document) string {
	if t := doc.Find("time[datetime]").First(); t.Length() > 0 {
		if attr, ok := t.Attr("datetime"); ok && strings.TrimSpace(attr) != "" {
			return strings.TrimSpace(attr)
		}
	}
	return squashSpace(doc.Find("time, span.date").First().Text())
}

// responseRefs collects company response links: anchors inside the
// responses section, or any anchor following a "Company Responses"
// marker when no dedicated section exists.
func (p *Parser) responseRefs(doc *goquery.Document, baseURL string) []harvest.AttachmentRef {
	anchors := doc.Find("section.company-responses a[href], div.company-responses a[href]")
	if anchors.Length() == 0 {
		anchors = anchorsAfterMarker(doc)
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		base = nil
	}

	refs := []harvest.AttachmentRef{}
	seen := make(map[string]struct{})
	anchors.Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "mailto:") {
			return
		}
		resolved := resolveURL(base, href)
		if resolved == "" {
			return
		}
		if _, dup := seen[resolved]; dup {
			return
		}
		seen[resolved] = struct{}{}
		refs = append(refs, harvest.AttachmentRef{URL: resolved})
	})
	return refs
}

func anchorsAfterMarker(doc *goquery.Document) *goquery.Selection {
	marker := doc.Find("h2, h3").FilterFunction(func(_ int, sel *goquery.Selection) bool {
		return stopMarkers.MatchString(sel.Text()) &&
			strings.Contains(strings.ToLower(sel.Text()), "response")
	}).First()
	if marker.Length() == 0 {
		return doc.Find("nothing")
	}
	return marker.NextAll().Find("a[href]").AddSelection(marker.NextAll().Filter("a[href]"))
}

func resolveURL(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	return ref.String()
}

var spaceRun = regexp.MustCompile(`\s+`)

func squashSpace(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}
