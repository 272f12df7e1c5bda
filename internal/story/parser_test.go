package story

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rightslens/bhrrc-harvester/internal/harvest"
)

func mustDoc(t *testing.T, page string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)
	return doc
}

const storyPage = `<!DOCTYPE html>
<html>
<body>
<header><a href="/en/latest-news/">Latest news</a></header>
<article>
<h1>  Shell response re Corrib gas protest </h1>
<div class="meta">
  <time datetime="2024-03-18">18 March 2024</time>
  <a href="/en/companies/shell/">Shell</a>
  <a href="/en/companies/statoil/">Statoil</a>
  <a href="/en/companies/shell/">Shell</a>
</div>
<div class="body">
  <p>Protesters allege intimidation near the  Corrib gas terminal.</p>
  <ul><li>Security contractors named in the complaint.</li></ul>
  <blockquote>We were followed for days, one resident said.</blockquote>
</div>
<h2>Company Responses</h2>
<div class="company-responses">
  <a href="/en/responses/shell-response.pdf">Download response</a>
  <a href="https://example.org/responses/statoil-statement/">Statoil statement</a>
  <a href="#top">Back to top</a>
  <a href="/en/responses/shell-response.pdf">duplicate</a>
</div>
<h2>Timeline</h2>
<p>Unrelated timeline entry that must not leak into the narrative.</p>
</article>
</body>
</html>`

func testSummary() harvest.AllegationSummary {
	return harvest.AllegationSummary{
		ID:   "shell-response-re-corrib-gas-protest",
		Page: 1,
		URL:  "https://www.business-humanrights.org/en/latest-news/shell-response-re-corrib-gas-protest/",
	}
}

func TestParseFullStory(t *testing.T) {
	parser := NewParser(zap.NewNop())

	record, err := parser.Parse([]byte(storyPage), testSummary())
	require.NoError(t, err)

	assert.Equal(t, "shell-response-re-corrib-gas-protest", record.ID)
	assert.Equal(t, "Shell response re Corrib gas protest", record.Title)
	assert.Equal(t, []string{"Shell", "Statoil"}, record.Companies)
	assert.Equal(t, "2024-03-18", record.Date)

	assert.Contains(t, record.Narrative, "Protesters allege intimidation near the Corrib gas terminal.")
	assert.Contains(t, record.Narrative, "Security contractors named in the complaint.")
	assert.Contains(t, record.Narrative, "We were followed for days, one resident said.")
	assert.NotContains(t, record.Narrative, "timeline entry")

	require.Len(t, record.Responses, 2)
	assert.Equal(t, "https://www.business-humanrights.org/en/responses/shell-response.pdf", record.Responses[0].URL)
	assert.Equal(t, "https://example.org/responses/statoil-statement/", record.Responses[1].URL)
	for _, ref := range record.Responses {
		assert.Nil(t, ref.Text)
		assert.Equal(t, harvest.MethodUnset, ref.Method)
	}
}

func TestParseMissingTitle(t *testing.T) {
	parser := NewParser(zap.NewNop())

	_, err := parser.Parse([]byte("<html><body><p>text only</p></body></html>"), testSummary())
	require.Error(t, err)

	var pe *harvest.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "title", pe.Field)
}

func TestParseMissingNarrative(t *testing.T) {
	parser := NewParser(zap.NewNop())

	page := `<html><body><h1>Bare headline</h1><h2>Company Responses</h2></body></html>`
	_, err := parser.Parse([]byte(page), testSummary())
	require.Error(t, err)

	var pe *harvest.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "narrative", pe.Field)
}

func TestParseToleratesMissingOptionalFields(t *testing.T) {
	parser := NewParser(zap.NewNop())

	page := `<html><body>
<h1>Allegation without companies</h1>
<p>The narrative body of the allegation.</p>
</body></html>`
	record, err := parser.Parse([]byte(page), testSummary())
	require.NoError(t, err)

	assert.Empty(t, record.Companies)
	assert.Empty(t, record.Date)
	assert.Empty(t, record.Responses)
	assert.Equal(t, "The narrative body of the allegation.", record.Narrative)
}

func TestVisibleTextPrefersHTMLBlocks(t *testing.T) {
	page := `<html><body>
<h1>Response page</h1>
<p>Chrome around the statement.</p>
<div class="block html-block"><p>We take these allegations seriously.</p></div>
<div class="block html-block"><p>An investigation is under way.</p></div>
</body></html>`

	doc := mustDoc(t, page)
	text := VisibleText(doc)
	assert.Contains(t, text, "We take these allegations seriously.")
	assert.Contains(t, text, "An investigation is under way.")
	assert.NotContains(t, text, "Chrome around the statement.")
}

func TestVisibleTextFallsBackToNarrativeWalk(t *testing.T) {
	page := `<html><body>
<h1>Response page</h1>
<p>The full statement text.</p>
<h2>Latest news</h2>
<p>Unrelated listing.</p>
</body></html>`

	doc := mustDoc(t, page)
	text := VisibleText(doc)
	assert.Contains(t, text, "The full statement text.")
	assert.NotContains(t, text, "Unrelated listing.")
}
