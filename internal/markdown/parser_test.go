package markdown_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsn0918/deepqa/internal/markdown"
)

func TestParse_FrontMatterAndSection(t *testing.T) {
	mtime := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	doc, err := markdown.NewParser("foo.md", mtime).Parse("---\nsource: A\n---\n\n# Title\n\ntext.\n")
	require.NoError(t, err)

	assert.Equal(t, "foo.md", doc.FileName)
	assert.Equal(t, mtime, doc.UpdatedAt)
	assert.Equal(t, map[string]string{"source": "A"}, doc.Metadata)

	require.Len(t, doc.Sections, 1)
	section, ok := doc.Sections[0].(*markdown.Section)
	require.True(t, ok)
	assert.Equal(t, "Title", section.Title)
	assert.Equal(t, 1, section.Level)
	require.Len(t, section.Content, 1)
	assert.Equal(t, &markdown.Paragraph{Content: "text."}, section.Content[0])
}

func TestParse_FrontMatter(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want map[string]string
		body int // upper bound on the top-level node count
	}{
		{
			name: "multiple keys",
			in:   "---\nsource: wiki\ntitle: Crimes\n---\n\nbody\n",
			want: map[string]string{"source": "wiki", "title": "Crimes"},
			body: 1,
		},
		{
			name: "malformed line skipped",
			in:   "---\nsource: wiki\nnocolonhere\n---\n\nbody\n",
			want: map[string]string{"source": "wiki"},
			body: 1,
		},
		{
			name: "value containing colon",
			in:   "---\nurl: https://example.com/page\n---\n\nbody\n",
			want: map[string]string{"url": "https://example.com/page"},
			body: 1,
		},
		{
			name: "unterminated block is body",
			in:   "---\nsource: wiki\n",
			want: map[string]string{},
			body: 1, // thematic break is skipped; paragraph remains
		},
		{
			name: "no front matter",
			in:   "plain text\n",
			want: map[string]string{},
			body: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := markdown.NewParser("t.md", time.Time{}).Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, doc.Metadata)
			assert.LessOrEqual(t, len(doc.Sections), tt.body)
		})
	}
}

func TestParse_TableWithCaption(t *testing.T) {
	doc, err := markdown.NewParser("t.md", time.Time{}).Parse("Prices:\n\n| A | B |\n|---|---|\n| 1 | 2 |\n")
	require.NoError(t, err)

	require.Len(t, doc.Sections, 2)
	assert.Equal(t, &markdown.Paragraph{Content: "Prices:"}, doc.Sections[0])

	table, ok := doc.Sections[1].(*markdown.Table)
	require.True(t, ok)
	assert.Equal(t, "Prices:", table.Caption)
	assert.Equal(t, []string{"A", "B"}, table.Headers)
	assert.Equal(t, [][]string{{"1", "2"}}, table.Rows)
}

func TestParse_TableWithoutCaption(t *testing.T) {
	doc, err := markdown.NewParser("t.md", time.Time{}).Parse("| A | B |\n|---|---|\n| 1 | 2 |\n| 3 | 4 |\n")
	require.NoError(t, err)

	require.Len(t, doc.Sections, 1)
	table, ok := doc.Sections[0].(*markdown.Table)
	require.True(t, ok)
	assert.Equal(t, "", table.Caption)
	assert.Equal(t, [][]string{{"1", "2"}, {"3", "4"}}, table.Rows)
}

func TestParse_NestedSections(t *testing.T) {
	input := "# One\n\nintro\n\n## Two\n\ndeep\n\n# Three\n\ntail\n"
	doc, err := markdown.NewParser("t.md", time.Time{}).Parse(input)
	require.NoError(t, err)

	require.Len(t, doc.Sections, 2)

	one := doc.Sections[0].(*markdown.Section)
	assert.Equal(t, "One", one.Title)
	require.Len(t, one.Content, 2)
	assert.Equal(t, &markdown.Paragraph{Content: "intro"}, one.Content[0])

	two := one.Content[1].(*markdown.Section)
	assert.Equal(t, "Two", two.Title)
	assert.Equal(t, 2, two.Level)
	assert.Greater(t, two.Level, one.Level)

	three := doc.Sections[1].(*markdown.Section)
	assert.Equal(t, "Three", three.Title)
	assert.Equal(t, 1, three.Level)
}

func TestParse_BulletListFlattens(t *testing.T) {
	input := "- alpha\n- beta\n  - gamma\n  - delta\n- epsilon\n"
	doc, err := markdown.NewParser("t.md", time.Time{}).Parse(input)
	require.NoError(t, err)

	require.Len(t, doc.Sections, 1)
	list, ok := doc.Sections[0].(*markdown.BulletList)
	require.True(t, ok)
	assert.Equal(t, []string{"alpha", "beta", "gamma", "delta", "epsilon"}, list.Items)
}

func TestParse_OrderedListFlattens(t *testing.T) {
	doc, err := markdown.NewParser("t.md", time.Time{}).Parse("1. first\n2. second\n")
	require.NoError(t, err)

	require.Len(t, doc.Sections, 1)
	list, ok := doc.Sections[0].(*markdown.BulletList)
	require.True(t, ok)
	assert.Equal(t, []string{"first", "second"}, list.Items)
}

func TestParse_StandaloneImage(t *testing.T) {
	doc, err := markdown.NewParser("t.md", time.Time{}).Parse("![a cat](https://example.com/cat.png)\n")
	require.NoError(t, err)

	require.Len(t, doc.Sections, 1)
	img, ok := doc.Sections[0].(*markdown.Image)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/cat.png", img.URL)
	assert.Equal(t, "a cat", img.Alt)
}

func TestParse_SoftBreakBecomesNewline(t *testing.T) {
	doc, err := markdown.NewParser("t.md", time.Time{}).Parse("line one\nline two\n")
	require.NoError(t, err)

	require.Len(t, doc.Sections, 1)
	para := doc.Sections[0].(*markdown.Paragraph)
	assert.Equal(t, "line one\nline two", para.Content)
}

func TestParse_InlineWhitespaceCollapses(t *testing.T) {
	doc, err := markdown.NewParser("t.md", time.Time{}).Parse("a  lot\tof   space\n")
	require.NoError(t, err)

	para := doc.Sections[0].(*markdown.Paragraph)
	assert.Equal(t, "a lot of space", para.Content)
}

// The stringification of a parsed tree re-parses to an equal tree, up to
// whitespace collapsing and table separator normalisation.
func TestRoundTrip(t *testing.T) {
	inputs := []string{
		"---\nsource: A\n---\n\n# Title\n\ntext.\n",
		"# One\n\nintro\n\n## Two\n\ndeep\n\n- a\n- b\n\ntail\n",
		"| H1 | H2 |\n|---|---|\n| x | y |\n| z | w |\n",
		"![alt](https://example.com/i.png)\n",
	}

	for _, input := range inputs {
		doc, err := markdown.NewParser("t.md", time.Time{}).Parse(input)
		require.NoError(t, err)

		again, err := markdown.NewParser("t.md", time.Time{}).Parse(doc.String())
		require.NoError(t, err)

		assert.Equal(t, doc.Metadata, again.Metadata, "metadata for %q", input)
		assert.Equal(t, doc.Sections, again.Sections, "tree for %q", input)
	}
}
