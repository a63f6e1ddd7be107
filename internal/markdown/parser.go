package markdown

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ParseError reports a parser failure on pathological input. Malformed
// front-matter lines are tolerated and never produce a ParseError.
type ParseError struct {
	FileName string
	Cause    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("markdown: parse %s: %s", e.FileName, e.Cause)
}

// whitespace runs inside inline text collapse to a single space.
var inlineWS = regexp.MustCompile(`\s+`)

// Parser turns a Markdown string into a Document. It is cheap to construct;
// create one per file.
type Parser struct {
	fileName  string
	updatedAt time.Time
}

// NewParser creates a parser for the named file. updatedAt is the file's
// modification time and may be the zero value when unknown.
func NewParser(fileName string, updatedAt time.Time) *Parser {
	return &Parser{fileName: fileName, updatedAt: updatedAt}
}

// Parse builds the document tree for source. A leading `---` block is
// harvested as metadata before the body is handed to the CommonMark parser.
func (p *Parser) Parse(source string) (doc *Document, err error) {
	// goldmark does not return errors; pathological input surfaces as a
	// panic which is reported as a single ParseError for the file.
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = &ParseError{FileName: p.fileName, Cause: fmt.Sprint(r)}
		}
	}()

	metadata, body := splitFrontMatter(source)

	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader([]byte(body)))

	var nodes []ast.Node
	for child := root.FirstChild(); child != nil; child = child.NextSibling() {
		nodes = append(nodes, child)
	}

	return &Document{
		FileName:  p.fileName,
		Metadata:  metadata,
		UpdatedAt: p.updatedAt,
		Sections:  parseNodes(nodes, []byte(body)),
	}, nil
}

// splitFrontMatter harvests the leading `---` delimited block. Each
// `key: value` line becomes a metadata entry; lines without a colon are
// skipped. The block is removed from the returned body.
func splitFrontMatter(source string) (map[string]string, string) {
	metadata := map[string]string{}
	if !strings.HasPrefix(source, "---") {
		return metadata, source
	}

	end := strings.Index(source[3:], "---")
	if end < 0 {
		return metadata, source
	}

	block := source[3 : 3+end]
	body := source[3+end+3:]

	for _, line := range strings.Split(block, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		metadata[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return metadata, body
}

// parseNodes assembles sections by heading-level grouping: a heading of
// level L owns every following node up to the next heading of level <= L.
func parseNodes(nodes []ast.Node, source []byte) []Node {
	var result []Node

	for i := 0; i < len(nodes); {
		switch n := nodes[i].(type) {
		case *ast.Heading:
			j := i + 1
			for j < len(nodes) {
				next, ok := nodes[j].(*ast.Heading)
				if ok && next.Level <= n.Level {
					break
				}
				j++
			}
			result = append(result, &Section{
				Title:   inlineText(n, source),
				Level:   n.Level,
				Content: parseNodes(nodes[i+1:j], source),
			})
			i = j

		case *ast.Paragraph:
			text := inlineText(n, source)
			switch {
			case strings.HasPrefix(text, "|"):
				// GFM table rendered by the base parser as a plain
				// paragraph. The preceding sibling's text is adopted as
				// the caption; it usually is one, but even a poor caption
				// still provides context.
				caption := ""
				if i > 0 {
					caption = inlineText(nodes[i-1], source)
				}
				result = append(result, parseTable(text, caption))
			case isSingleImage(n):
				img := n.FirstChild().(*ast.Image)
				result = append(result, &Image{
					URL: string(img.Destination),
					Alt: inlineText(img, source),
				})
			default:
				result = append(result, &Paragraph{Content: text})
			}
			i++

		case *ast.List:
			result = append(result, &BulletList{Items: collectListItems(n, source)})
			i++

		default:
			// Unhandled block kinds (thematic breaks, code fences) are
			// skipped.
			i++
		}
	}
	return result
}

// parseTable reinterprets pipe-delimited paragraph text as a table: first
// line headers, second line the discarded separator row, the rest body rows.
func parseTable(text, caption string) *Table {
	lines := strings.Split(text, "\n")

	var rows [][]string
	if len(lines) > 2 {
		for _, line := range lines[2:] {
			if cells := splitCells(line); len(cells) > 0 {
				rows = append(rows, cells)
			}
		}
	}

	return &Table{
		Caption: caption,
		Headers: splitCells(lines[0]),
		Rows:    rows,
	}
}

// splitCells splits a pipe row keeping trimmed, non-empty cells.
func splitCells(line string) []string {
	var cells []string
	for _, cell := range strings.Split(line, "|") {
		if trimmed := strings.TrimSpace(cell); trimmed != "" {
			cells = append(cells, trimmed)
		}
	}
	return cells
}

// collectListItems flattens a bullet or ordered list depth-first into a flat
// item sequence, preserving source order.
func collectListItems(list *ast.List, source []byte) []string {
	var items []string
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		for child := item.FirstChild(); child != nil; child = child.NextSibling() {
			switch c := child.(type) {
			case *ast.List:
				items = append(items, collectListItems(c, source)...)
			case *ast.TextBlock, *ast.Paragraph:
				items = append(items, inlineText(c, source))
			}
		}
	}
	return items
}

// isSingleImage reports whether the paragraph consists of exactly one inline
// image, in which case it becomes an Image leaf instead of a Paragraph.
func isSingleImage(p *ast.Paragraph) bool {
	if p.ChildCount() != 1 {
		return false
	}
	_, ok := p.FirstChild().(*ast.Image)
	return ok
}

// inlineText renders a node's inline content as plain text: whitespace runs
// collapse to single spaces and soft line breaks become a single newline.
func inlineText(n ast.Node, source []byte) string {
	var b strings.Builder

	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := node.(type) {
		case *ast.Text:
			b.WriteString(inlineWS.ReplaceAllString(string(t.Segment.Value(source)), " "))
			if t.SoftLineBreak() {
				b.WriteString("\n")
			}
		case *ast.String:
			b.WriteString(inlineWS.ReplaceAllString(string(t.Value), " "))
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}
