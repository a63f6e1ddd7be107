// Package markdown models a parsed Markdown document as a typed tree of
// sections, paragraphs, tables, bullet lists and images, and provides the
// parser that builds it. The tree stringifies back to Markdown, which is what
// the chunker feeds to the embedding model.
package markdown

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Node is a single element of the document tree. The set of implementations
// is closed: Document, Section, Paragraph, Table, BulletList and Image.
// Consumers switch on the concrete type; adding a new leaf kind (for example
// a code block) is a deliberate extension point.
type Node interface {
	fmt.Stringer
	node()
}

// Document is the root of a parsed Markdown file. Sections holds the
// top-level content in source order; despite the name it may contain leaf
// nodes directly when the file has content before the first heading.
type Document struct {
	FileName  string
	Metadata  map[string]string
	UpdatedAt time.Time
	Sections  []Node
}

// Section is a heading together with everything up to the next heading of
// the same or higher level. Children carry a level strictly greater than
// their parent.
type Section struct {
	Title   string
	Level   int
	Content []Node
}

// Paragraph is a run of inline text with whitespace collapsed.
type Paragraph struct {
	Content string
}

// Table is a GitHub-flavored pipe table. The caption is adopted from the
// paragraph immediately preceding the table in the source, when present.
type Table struct {
	Caption string
	Headers []string
	Rows    [][]string
}

// BulletList is a flattened list: nested bullet and ordered lists collapse
// into a single ordered sequence of item strings.
type BulletList struct {
	Items []string
}

// Image is a standalone image reference.
type Image struct {
	URL string
	Alt string
}

func (*Document) node()   {}
func (*Section) node()    {}
func (*Paragraph) node()  {}
func (*Table) node()      {}
func (*BulletList) node() {}
func (*Image) node()      {}

// String renders the document back to Markdown, front-matter included.
// Metadata keys are emitted in sorted order so the output is deterministic.
func (d *Document) String() string {
	var b strings.Builder

	if len(d.Metadata) > 0 {
		keys := make([]string, 0, len(d.Metadata))
		for k := range d.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString("---\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %s\n", k, d.Metadata[k])
		}
		b.WriteString("---\n\n")
	}

	for _, s := range d.Sections {
		b.WriteString(s.String())
	}
	return b.String()
}

// Body renders the document without its front-matter block.
func (d *Document) Body() string {
	var b strings.Builder
	for _, s := range d.Sections {
		b.WriteString(s.String())
	}
	return b.String()
}

func (s *Section) String() string {
	var b strings.Builder
	b.WriteString(strings.Repeat("#", s.Level))
	b.WriteString(" ")
	b.WriteString(s.Title)
	b.WriteString("\n\n")
	for _, c := range s.Content {
		b.WriteString(c.String())
	}
	return b.String()
}

func (p *Paragraph) String() string {
	return p.Content + "\n\n"
}

func (t *Table) String() string {
	var b strings.Builder

	if t.Caption != "" {
		b.WriteString(strings.TrimSuffix(t.Caption, ":"))
		b.WriteString(":\n\n")
	}

	b.WriteString("|" + strings.Join(t.Headers, "|") + "|\n")
	b.WriteString("|" + strings.TrimSuffix(strings.Repeat("---|", len(t.Headers)), "|") + "|\n")
	for _, row := range t.Rows {
		b.WriteString("|" + strings.Join(row, "|") + "|\n")
	}
	b.WriteString("\n")
	return b.String()
}

func (l *BulletList) String() string {
	var b strings.Builder
	for _, item := range l.Items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}

func (i *Image) String() string {
	return fmt.Sprintf("![%s](%s)\n\n", i.Alt, i.URL)
}
