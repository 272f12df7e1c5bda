// Package ocr recovers text from scanned documents by rasterizing PDF
// pages and running each page image through a recognition engine.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/rightslens/bhrrc-harvester/internal/harvest"
)

// pageBreak separates recognized pages in the assembled text.
const pageBreak = "\f"

// Rasterizer renders a PDF into one image per page. A nil entry marks a
// page that could not be rendered, so downstream placeholders keep
// their page numbers aligned.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdfBytes []byte) ([][]byte, error)
}

// Engine recognizes text in a single page image.
type Engine interface {
	Recognize(ctx context.Context, imageBytes []byte) (string, error)
}

// Extractor is the OCR fallback pipeline. It degrades per page: one
// unreadable page becomes a placeholder, not a lost document.
type Extractor struct {
	rasterizer Rasterizer
	engine     Engine
	logger     *zap.Logger
}

func NewExtractor(rasterizer Rasterizer, engine Engine, logger *zap.Logger) *Extractor {
	return &Extractor{rasterizer: rasterizer, engine: engine, logger: logger}
}

// ExtractPDF rasterizes every page and recognizes them in order. It
// fails only when rasterization fails outright or no page at all could
// be recognized.
func (e *Extractor) ExtractPDF(ctx context.Context, pdfBytes []byte) (string, error) {
	pages, err := e.rasterizer.Rasterize(ctx, pdfBytes)
	if err != nil {
		return "", &harvest.ExtractionError{Stage: harvest.StageRasterizationFailed, Err: err}
	}
	if len(pages) == 0 {
		return "", &harvest.ExtractionError{Stage: harvest.StageRasterizationFailed, Err: errors.New("document produced no pages")}
	}

	parts := make([]string, 0, len(pages))
	recognized := 0
	for i, page := range pages {
		pageNo := i + 1
		if page == nil {
			parts = append(parts, unreadable(pageNo))
			continue
		}
		text, err := e.engine.Recognize(ctx, page)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			e.logger.Warn("page recognition failed", zap.Int("page", pageNo), zap.Error(err))
			parts = append(parts, unreadable(pageNo))
			continue
		}
		parts = append(parts, strings.TrimSpace(text))
		recognized++
	}

	if recognized == 0 {
		return "", &harvest.ExtractionError{Stage: harvest.StageOCRFailed, Err: fmt.Errorf("no readable pages out of %d", len(pages))}
	}
	return strings.Join(parts, pageBreak), nil
}

// RecognizeImage runs a standalone image through the engine.
func (e *Extractor) RecognizeImage(ctx context.Context, imageBytes []byte) (string, error) {
	text, err := e.engine.Recognize(ctx, imageBytes)
	if err != nil {
		return "", &harvest.ExtractionError{Stage: harvest.StageOCRFailed, Err: err}
	}
	return strings.TrimSpace(text), nil
}

func unreadable(pageNo int) string {
	return fmt.Sprintf("[[page %d unreadable]]", pageNo)
}
