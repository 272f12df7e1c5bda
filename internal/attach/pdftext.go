package attach

import (
	"bytes"
	"fmt"
	"io"
	"unicode"

	"github.com/ledongthuc/pdf"
)

// extractPDFText pulls the embedded text layer out of a PDF. Scanned
// documents typically return an empty or near-empty string here.
func extractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	textReader, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	text, err := io.ReadAll(textReader)
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return string(text), nil
}

// alphaCount counts letters, the signal used to decide whether embedded
// extraction produced anything usable.
func alphaCount(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}
