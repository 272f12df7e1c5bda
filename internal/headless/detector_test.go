package headless

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectorNeedsJS(t *testing.T) {
	detector := NewDetector(64, []string{"Enable JavaScript", "checking your browser"})

	tests := []struct {
		name string
		body string
		want bool
	}{
		{
			name: "normal article page",
			body: "<html><body><h1>Story</h1>" + strings.Repeat("<p>text</p>", 20) + "</body></html>",
			want: false,
		},
		{
			name: "tiny body",
			body: "<html></html>",
			want: true,
		},
		{
			name: "js wall keyword",
			body: "<html><body>" + strings.Repeat(" ", 64) + "Please enable JavaScript to continue.</body></html>",
			want: true,
		},
		{
			name: "spa shell",
			body: "<html><body>  " + strings.Repeat(" ", 64) + `</body><script src="/app.js"></script></html>`,
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detector.NeedsJS([]byte(tt.body)))
		})
	}
}

func TestNilDetector(t *testing.T) {
	var d *Detector
	assert.False(t, d.NeedsJS([]byte("<html></html>")))
}
