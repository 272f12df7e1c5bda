package attach

import (
	"net/url"
	"path"
	"strings"

	"github.com/rightslens/bhrrc-harvester/internal/harvest"
)

// Classify maps a URL (and, when the suffix is ambiguous, the declared
// Content-Type) onto the closed set of attachment kinds. It is a pure
// function so classification is testable without network access.
func Classify(rawURL, contentType string) harvest.Kind {
	if kind := kindFromSuffix(rawURL); kind != harvest.KindUnknown {
		return kind
	}
	return kindFromContentType(contentType)
}

func kindFromSuffix(rawURL string) harvest.Kind {
	u, err := url.Parse(rawURL)
	if err != nil {
		return harvest.KindUnknown
	}
	switch strings.ToLower(path.Ext(u.Path)) {
	case ".pdf":
		return harvest.KindPDF
	case ".htm", ".html":
		return harvest.KindHTML
	case ".png", ".jpg", ".jpeg", ".gif", ".tif", ".tiff", ".webp":
		return harvest.KindImage
	default:
		return harvest.KindUnknown
	}
}

func kindFromContentType(contentType string) harvest.Kind {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case strings.HasPrefix(ct, "application/pdf"):
		return harvest.KindPDF
	case strings.HasPrefix(ct, "text/html"), strings.HasPrefix(ct, "application/xhtml"):
		return harvest.KindHTML
	case strings.HasPrefix(ct, "image/"):
		return harvest.KindImage
	default:
		return harvest.KindUnknown
	}
}
