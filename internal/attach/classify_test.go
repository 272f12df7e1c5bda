package attach

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rightslens/bhrrc-harvester/internal/harvest"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		contentType string
		want        harvest.Kind
	}{
		{"pdf suffix", "https://example.com/docs/response.pdf", "", harvest.KindPDF},
		{"pdf suffix with query", "https://example.com/docs/response.pdf?dl=1", "text/html", harvest.KindPDF},
		{"html suffix", "https://example.com/statement.html", "", harvest.KindHTML},
		{"png suffix", "https://example.com/scan.png", "", harvest.KindImage},
		{"tiff suffix", "https://example.com/scan.tiff", "", harvest.KindImage},
		{"content type pdf", "https://example.com/download/4411", "application/pdf", harvest.KindPDF},
		{"content type html with charset", "https://example.com/response", "text/html; charset=utf-8", harvest.KindHTML},
		{"content type image", "https://example.com/asset/22", "image/jpeg", harvest.KindImage},
		{"suffix beats content type", "https://example.com/report.pdf", "text/html", harvest.KindPDF},
		{"no signal", "https://example.com/download/4411", "", harvest.KindUnknown},
		{"unhelpful content type", "https://example.com/download/4411", "application/octet-stream", harvest.KindUnknown},
		{"uppercase suffix", "https://example.com/REPORT.PDF", "", harvest.KindPDF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.url, tt.contentType))
		})
	}
}
