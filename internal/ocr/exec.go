package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Defaults for the external tool adapters.
const (
	DefaultPdftoppmBin  = "pdftoppm"
	DefaultTesseractBin = "tesseract"
	DefaultDPI          = 200
	DefaultLanguage     = "eng"
)

// PdftoppmRasterizer renders PDF pages to PNG with the poppler
// pdftoppm tool.
type PdftoppmRasterizer struct {
	Bin string
	DPI int
}

func NewPdftoppmRasterizer(bin string, dpi int) *PdftoppmRasterizer {
	if bin == "" {
		bin = DefaultPdftoppmBin
	}
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &PdftoppmRasterizer{Bin: bin, DPI: dpi}
}

// Rasterize renders every page of the document. Pages the tool skipped
// come back as nil entries so callers can place per-page placeholders.
func (r *PdftoppmRasterizer) Rasterize(ctx context.Context, pdfBytes []byte) ([][]byte, error) {
	dir, err := os.MkdirTemp("", "harvester-raster-")
	if err != nil {
		return nil, fmt.Errorf("creating scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(input, pdfBytes, 0o600); err != nil {
		return nil, fmt.Errorf("writing scratch pdf: %w", err)
	}

	prefix := filepath.Join(dir, "page")
	cmd := exec.CommandContext(ctx, r.Bin, "-png", "-r", strconv.Itoa(r.DPI), input, prefix)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", r.Bin, err, strings.TrimSpace(stderr.String()))
	}

	return collectPages(dir, "page")
}

// collectPages reads page-N.png outputs back into page order. pdftoppm
// zero-pads the page number once the document passes ten pages, so the
// number is parsed rather than matched positionally.
func collectPages(dir, prefix string) ([][]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading scratch dir: %w", err)
	}

	byPage := make(map[int][]byte)
	maxPage := 0
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, prefix+"-") || !strings.HasSuffix(name, ".png") {
			continue
		}
		numPart := strings.TrimSuffix(strings.TrimPrefix(name, prefix+"-"), ".png")
		pageNo, err := strconv.Atoi(numPart)
		if err != nil || pageNo < 1 {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		byPage[pageNo] = data
		if pageNo > maxPage {
			maxPage = pageNo
		}
	}

	if maxPage == 0 {
		return nil, nil
	}
	pages := make([][]byte, maxPage)
	for pageNo, data := range byPage {
		pages[pageNo-1] = data
	}
	return pages, nil
}

// TesseractEngine shells out to tesseract, streaming the page image on
// stdin and reading the recognized text from stdout.
type TesseractEngine struct {
	Bin      string
	Language string
}

func NewTesseractEngine(bin, language string) *TesseractEngine {
	if bin == "" {
		bin = DefaultTesseractBin
	}
	if language == "" {
		language = DefaultLanguage
	}
	return &TesseractEngine{Bin: bin, Language: language}
}

func (e *TesseractEngine) Recognize(ctx context.Context, imageBytes []byte) (string, error) {
	cmd := exec.CommandContext(ctx, e.Bin, "stdin", "stdout", "-l", e.Language)
	cmd.Stdin = bytes.NewReader(imageBytes)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w: %s", e.Bin, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
