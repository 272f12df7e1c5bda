package attach

import (
	"bytes"
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var pdfJSONKey = regexp.MustCompile(`(?i)"(?:source|url|downloadUrl|download_url|pdf)"\s*:\s*"([^"]+?\.pdf[^"]*)"`)

// findPDFURL locates a PDF attachment linked from an HTML response
// page. It prefers explicit anchors, then the page's embedded data
// blob, then a raw regex sweep. Returns "" when no PDF is referenced.
func findPDFURL(pageHTML []byte, baseURL string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		base = nil
	}
	join := func(href string) string {
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return ""
		}
		if base != nil {
			ref = base.ResolveReference(ref)
		}
		return ref.String()
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(pageHTML))
	if err != nil {
		return ""
	}

	found := ""
	doc.Find("a[href], link[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Attr("href")
		if !ok {
			return true
		}
		if strings.Contains(strings.ToLower(href), ".pdf") {
			found = join(href)
			return false
		}
		return true
	})
	if found != "" {
		return found
	}

	// The site exposes attachment metadata in a JSON script blob.
	if raw := doc.Find("script#pageAsDataJSON").First().Text(); raw != "" {
		var blob map[string]any
		if err := json.Unmarshal([]byte(raw), &blob); err == nil {
			for _, key := range []string{"source", "downloadUrl", "download_url", "pdf", "url", "file"} {
				if v, ok := blob[key].(string); ok && strings.Contains(strings.ToLower(v), ".pdf") {
					return join(v)
				}
			}
		}
	}

	if m := pdfJSONKey.FindSubmatch(pageHTML); m != nil {
		return join(string(m[1]))
	}
	return ""
}
