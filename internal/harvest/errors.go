package harvest

import (
	"fmt"
	"time"
)

// FetchErrorKind narrows a transport failure.
type FetchErrorKind string

// Fetch failure kinds.
const (
	FetchTimeout          FetchErrorKind = "timeout"
	FetchHTTPStatus       FetchErrorKind = "http_status"
	FetchConnectionFailed FetchErrorKind = "connection_failed"
)

// FetchError is returned by the fetch layer after retries are exhausted.
// RetryAfter carries the server-signaled cooldown from a 429 response.
type FetchError struct {
	Kind       FetchErrorKind
	URL        string
	Status     int
	RetryAfter time.Duration
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == FetchHTTPStatus {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports a mandatory anchor missing from story markup.
type ParseError struct {
	Field string
	URL   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: missing %s", e.URL, e.Field)
}

// DriftError signals that a listing page violated the paginator's
// structural assumptions. It is the only condition that halts a run.
type DriftError struct {
	Page      int
	Summaries int
	Reason    string
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("structural drift on listing page %d (%d summaries): %s", e.Page, e.Summaries, e.Reason)
}

// ExtractionStage identifies where OCR fallback extraction failed.
type ExtractionStage string

// Extraction failure stages.
const (
	StageRasterizationFailed ExtractionStage = "rasterization_failed"
	StageOCRFailed           ExtractionStage = "ocr_failed"
)

// ExtractionError is a document-level failure. It never aborts the run,
// only degrades one attachment to a placeholder.
type ExtractionError struct {
	Stage ExtractionStage
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("ocr extraction: %s: %v", e.Stage, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
