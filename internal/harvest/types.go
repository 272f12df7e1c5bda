// Package harvest defines the core types shared across the scraping pipeline.
package harvest

import (
	"net/http"
	"time"
)

// Kind classifies a linked attachment by media type.
type Kind string

// The closed set of attachment kinds the resolver dispatches on.
const (
	KindHTML    Kind = "html"
	KindPDF     Kind = "pdf"
	KindImage   Kind = "image"
	KindUnknown Kind = "unknown"
)

// Method records how an attachment's text was obtained.
type Method string

// Extraction method values persisted in the corpus.
const (
	MethodUnset  Method = ""
	MethodDirect Method = "direct"
	MethodOCR    Method = "ocr"
	MethodFailed Method = "failed"
)

// AllegationSummary is a reference to a single story found on a listing
// page. It is ephemeral: the paginator produces it and the story parser
// consumes it immediately.
type AllegationSummary struct {
	ID   string
	Page int
	URL  string
}

// AttachmentRef is one linked evidence document cited by a story.
// The story parser creates it with Text nil and Method unset; the
// attachment resolver fills both exactly once.
type AttachmentRef struct {
	URL    string  `json:"url"`
	Kind   Kind    `json:"kind"`
	Text   *string `json:"text"`
	Method Method  `json:"extraction_method"`
}

// AllegationRecord is the structured form of one allegation story.
// Once stored, the narrative fields are immutable; later scrapes may
// only append response references.
type AllegationRecord struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Companies []string        `json:"companies"`
	Narrative string          `json:"narrative"`
	Date      string          `json:"date"`
	Responses []AttachmentRef `json:"responses"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL  string
	Kind Kind
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	Headers     http.Header
	Duration    time.Duration
	FromCache   bool
}
