package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rightslens/bhrrc-harvester/internal/harvest"
)

type fakeRasterizer struct {
	pages [][]byte
	err   error
}

func (f *fakeRasterizer) Rasterize(context.Context, []byte) ([][]byte, error) {
	return f.pages, f.err
}

// fakeEngine returns canned text keyed by the page image contents.
type fakeEngine struct {
	texts map[string]string
	errs  map[string]error
}

func (f *fakeEngine) Recognize(_ context.Context, imageBytes []byte) (string, error) {
	key := string(imageBytes)
	if err, ok := f.errs[key]; ok {
		return "", err
	}
	text, ok := f.texts[key]
	if !ok {
		return "", fmt.Errorf("unexpected page image %q", key)
	}
	return text, nil
}

func TestExtractPDFJoinsPagesInOrder(t *testing.T) {
	rast := &fakeRasterizer{pages: [][]byte{[]byte("p1"), []byte("p2"), []byte("p3")}}
	engine := &fakeEngine{texts: map[string]string{
		"p1": "first page of the letter",
		"p2": "second page continues",
		"p3": "signed, the general counsel",
	}}

	got, err := NewExtractor(rast, engine, zap.NewNop()).ExtractPDF(context.Background(), []byte("%PDF"))

	require.NoError(t, err)
	pages := strings.Split(got, "\f")
	require.Len(t, pages, 3)
	assert.Equal(t, "first page of the letter", pages[0])
	assert.Equal(t, "second page continues", pages[1])
	assert.Equal(t, "signed, the general counsel", pages[2])
}

func TestExtractPDFPlaceholderKeepsPagePosition(t *testing.T) {
	rast := &fakeRasterizer{pages: [][]byte{[]byte("p1"), nil, []byte("p3")}}
	engine := &fakeEngine{texts: map[string]string{
		"p1": "page one text",
		"p3": "page three text",
	}}

	got, err := NewExtractor(rast, engine, zap.NewNop()).ExtractPDF(context.Background(), []byte("%PDF"))

	require.NoError(t, err)
	pages := strings.Split(got, "\f")
	require.Len(t, pages, 3)
	assert.Equal(t, "[[page 2 unreadable]]", pages[1])
	assert.Equal(t, "page three text", pages[2])
}

func TestExtractPDFRecognitionErrorBecomesPlaceholder(t *testing.T) {
	rast := &fakeRasterizer{pages: [][]byte{[]byte("p1"), []byte("p2")}}
	engine := &fakeEngine{
		texts: map[string]string{"p1": "readable page"},
		errs:  map[string]error{"p2": errors.New("tesseract crashed")},
	}

	got, err := NewExtractor(rast, engine, zap.NewNop()).ExtractPDF(context.Background(), []byte("%PDF"))

	require.NoError(t, err)
	assert.Equal(t, "readable page\f[[page 2 unreadable]]", got)
}

func TestExtractPDFRasterizationFailure(t *testing.T) {
	rast := &fakeRasterizer{err: errors.New("pdftoppm exit status 1")}

	_, err := NewExtractor(rast, &fakeEngine{}, zap.NewNop()).ExtractPDF(context.Background(), []byte("%PDF"))

	var extractErr *harvest.ExtractionError
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, harvest.StageRasterizationFailed, extractErr.Stage)
}

func TestExtractPDFNoPages(t *testing.T) {
	_, err := NewExtractor(&fakeRasterizer{}, &fakeEngine{}, zap.NewNop()).ExtractPDF(context.Background(), []byte("%PDF"))

	var extractErr *harvest.ExtractionError
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, harvest.StageRasterizationFailed, extractErr.Stage)
}

func TestExtractPDFAllPagesUnreadable(t *testing.T) {
	rast := &fakeRasterizer{pages: [][]byte{[]byte("p1"), nil}}
	engine := &fakeEngine{errs: map[string]error{"p1": errors.New("no text found")}}

	_, err := NewExtractor(rast, engine, zap.NewNop()).ExtractPDF(context.Background(), []byte("%PDF"))

	var extractErr *harvest.ExtractionError
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, harvest.StageOCRFailed, extractErr.Stage)
}

func TestRecognizeImage(t *testing.T) {
	engine := &fakeEngine{texts: map[string]string{"img": "  scanned letter  "}}
	extractor := NewExtractor(&fakeRasterizer{}, engine, zap.NewNop())

	got, err := extractor.RecognizeImage(context.Background(), []byte("img"))
	require.NoError(t, err)
	assert.Equal(t, "scanned letter", got)

	_, err = extractor.RecognizeImage(context.Background(), []byte("missing"))
	var extractErr *harvest.ExtractionError
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, harvest.StageOCRFailed, extractErr.Stage)
}

func TestCollectPagesHandlesGapsAndPadding(t *testing.T) {
	dir := t.TempDir()
	writePage := func(name, content string) {
		t.Helper()
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	writePage("page-01.png", "one")
	writePage("page-03.png", "three")
	writePage("notes.txt", "ignored")

	pages, err := collectPages(dir, "page")
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Equal(t, []byte("one"), pages[0])
	assert.Nil(t, pages[1])
	assert.Equal(t, []byte("three"), pages[2])
}
