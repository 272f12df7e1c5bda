// Package attach classifies linked evidence documents and extracts
// their text.
package attach

import (
	"bytes"
	"context"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/rightslens/bhrrc-harvester/internal/harvest"
	"github.com/rightslens/bhrrc-harvester/internal/metrics"
	"github.com/rightslens/bhrrc-harvester/internal/story"
)

// Embedded text below this many letters flags a PDF as image-only.
const DefaultMinAlphaChars = 40

// OCR is the fallback extractor for image-only documents.
type OCR interface {
	ExtractPDF(ctx context.Context, pdfBytes []byte) (string, error)
	RecognizeImage(ctx context.Context, imageBytes []byte) (string, error)
}

// Config controls the resolver.
type Config struct {
	Workers       int
	MinAlphaChars int
}

// Resolver fills attachment references with extracted text. Resolution
// is a pure function of the source URL, so retrying after a crash is
// always safe.
type Resolver struct {
	fetcher  harvest.Fetcher
	ocr      OCR
	workers  int
	minAlpha int
	logger   *zap.Logger
}

// New builds a Resolver.
func New(fetcher harvest.Fetcher, ocr OCR, cfg Config, logger *zap.Logger) *Resolver {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	minAlpha := cfg.MinAlphaChars
	if minAlpha <= 0 {
		minAlpha = DefaultMinAlphaChars
	}
	return &Resolver{
		fetcher:  fetcher,
		ocr:      ocr,
		workers:  workers,
		minAlpha: minAlpha,
		logger:   logger,
	}
}

// Resolve returns a filled copy of ref. Extraction failures degrade the
// copy to method "failed" with the raw URL retained for manual
// follow-up; they never abort the record.
func (r *Resolver) Resolve(ctx context.Context, ref harvest.AttachmentRef) harvest.AttachmentRef {
	out := ref

	resp, err := r.fetcher.Fetch(ctx, harvest.FetchRequest{URL: out.URL, Kind: Classify(out.URL, "")})
	if err != nil {
		out.Kind = Classify(out.URL, "")
		out.Method = harvest.MethodFailed
		out.Text = nil
		r.logger.Warn("attachment fetch failed", zap.String("url", out.URL), zap.Error(err))
		metrics.IncAttachment(string(out.Method))
		return out
	}

	out.Kind = Classify(out.URL, resp.ContentType)
	switch out.Kind {
	case harvest.KindHTML:
		out = r.resolveHTML(ctx, out, resp.Body)
	case harvest.KindPDF:
		out = r.resolvePDF(ctx, out, resp.Body)
	case harvest.KindImage:
		out = r.resolveImage(ctx, out, resp.Body)
	default:
		out.Kind = harvest.KindUnknown
		out.Method = harvest.MethodFailed
		out.Text = nil
	}

	metrics.IncAttachment(string(out.Method))
	return out
}

// ResolveAll resolves a record's attachments on a bounded worker pool
// and reassembles them in their original discovery order.
func (r *Resolver) ResolveAll(ctx context.Context, refs []harvest.AttachmentRef) []harvest.AttachmentRef {
	if len(refs) == 0 {
		return nil
	}

	results := make([]harvest.AttachmentRef, len(refs))
	sem := make(chan struct{}, r.workers)
	var wg sync.WaitGroup

	for i, ref := range refs {
		wg.Add(1)
		go func(i int, ref harvest.AttachmentRef) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = r.Resolve(ctx, ref)
		}(i, ref)
	}
	wg.Wait()
	return results
}

// resolveHTML extracts visible text from a response page. When the page
// links a PDF attachment, the PDF's text is preferred over the page
// chrome, matching how company responses are published on the site.
func (r *Resolver) resolveHTML(ctx context.Context, ref harvest.AttachmentRef, body []byte) harvest.AttachmentRef {
	if pdfURL := findPDFURL(body, ref.URL); pdfURL != "" {
		if pdfResp, err := r.fetcher.Fetch(ctx, harvest.FetchRequest{URL: pdfURL, Kind: harvest.KindPDF}); err == nil {
			if resolved := r.resolvePDF(ctx, ref, pdfResp.Body); resolved.Method != harvest.MethodFailed {
				resolved.Kind = harvest.KindHTML
				return resolved
			}
		} else {
			r.logger.Warn("linked pdf fetch failed", zap.String("url", pdfURL), zap.Error(err))
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		ref.Method = harvest.MethodFailed
		ref.Text = nil
		return ref
	}
	text := strings.TrimSpace(story.VisibleText(doc))
	if text == "" {
		ref.Method = harvest.MethodFailed
		ref.Text = nil
		return ref
	}
	ref.Text = &text
	ref.Method = harvest.MethodDirect
	return ref
}

// resolvePDF tries the embedded text layer first and falls back to OCR
// when the result is too thin to be real text.
func (r *Resolver) resolvePDF(ctx context.Context, ref harvest.AttachmentRef, body []byte) harvest.AttachmentRef {
	text, err := extractPDFText(body)
	if err == nil && alphaCount(text) >= r.minAlpha {
		trimmed := strings.TrimSpace(text)
		ref.Text = &trimmed
		ref.Method = harvest.MethodDirect
		return ref
	}
	if err != nil {
		r.logger.Debug("embedded pdf extraction failed", zap.String("url", ref.URL), zap.Error(err))
	}

	if r.ocr == nil {
		ref.Method = harvest.MethodFailed
		ref.Text = nil
		return ref
	}

	metrics.IncOCRFallback()
	ocrText, err := r.ocr.ExtractPDF(ctx, body)
	if err != nil {
		r.logger.Warn("ocr fallback failed", zap.String("url", ref.URL), zap.Error(err))
		ref.Method = harvest.MethodFailed
		ref.Text = nil
		return ref
	}
	ref.Text = &ocrText
	ref.Method = harvest.MethodOCR
	return ref
}

func (r *Resolver) resolveImage(ctx context.Context, ref harvest.AttachmentRef, body []byte) harvest.AttachmentRef {
	if r.ocr == nil {
		ref.Method = harvest.MethodFailed
		ref.Text = nil
		return ref
	}
	text, err := r.ocr.RecognizeImage(ctx, body)
	if err != nil {
		r.logger.Warn("image recognition failed", zap.String("url", ref.URL), zap.Error(err))
		ref.Method = harvest.MethodFailed
		ref.Text = nil
		return ref
	}
	ref.Text = &text
	ref.Method = harvest.MethodOCR
	return ref
}
