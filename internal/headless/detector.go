package headless

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Detector flags pages whose probe body looks like a JS wall: little
// rendered markup, or interstitial keywords in the visible text.
type Detector struct {
	minHTMLBytes int
	keywords     [][]byte
}

// NewDetector constructs a Detector with the configured thresholds.
func NewDetector(minBytes int, keywords []string) *Detector {
	lowered := make([][]byte, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		lowered = append(lowered, bytes.ToLower([]byte(kw)))
	}
	return &Detector{
		minHTMLBytes: minBytes,
		keywords:     lowered,
	}
}

// NeedsJS inspects the body for signals that JS rendering is required.
func (d *Detector) NeedsJS(body []byte) bool {
	if d == nil {
		return false
	}
	if d.minHTMLBytes > 0 && len(body) < d.minHTMLBytes {
		return true
	}

	lowered := bytes.ToLower(body)
	for _, kw := range d.keywords {
		if bytes.Contains(lowered, kw) {
			return true
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	// An empty body element with scripts present is the classic SPA shell.
	bodyText := strings.TrimSpace(doc.Find("body").Text())
	return bodyText == "" && doc.Find("script").Length() > 0
}
