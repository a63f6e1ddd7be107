// Package chunking splits parsed Markdown documents into retrievable chunks
// whose token counts fit a configured budget. Splitting follows the document
// structure: sections, tables, bullet lists and paragraphs each have their
// own split rule, so chunks stay self-describing.
package chunking

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"unicode/utf8"

	"github.com/hsn0918/deepqa/internal/markdown"
)

// Strategy selects how aggressively the chunker packs content.
type Strategy string

// Strategies trade chunk size for structural fidelity: MaxTokens packs as
// densely as possible, Balanced keeps top-level sections whole where it can,
// MinTokens emits the smallest structurally coherent units.
const (
	StrategyMaxTokens Strategy = "max_tokens"
	StrategyBalanced  Strategy = "balanced"
	StrategyMinTokens Strategy = "min_tokens"
)

// ParseStrategy converts a configuration string into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyMaxTokens, StrategyBalanced, StrategyMinTokens:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("chunking: unknown strategy %q", s)
	}
}

// Chunk is a unit of retrievable text. FilePosition increases monotonically
// within a document in emission order, starting at zero.
type Chunk struct {
	Content      string            `json:"content"`
	FileName     string            `json:"file_name"`
	FilePosition int               `json:"file_position"`
	Metadata     map[string]string `json:"metadata"`
}

// TokenizeFunc maps text to its token sequence; only the length is used by
// the chunker, but the full sequence keeps the signature compatible with the
// embedding port's tokenizer.
type TokenizeFunc func(text string) []int

// ErrInvalidChunkSize reports a non-positive token budget.
var ErrInvalidChunkSize = errors.New("chunking: chunk size must be positive")

// Chunker splits documents under a token budget using a work list with
// front-insertion on split, which keeps chunks in the order of the seeded
// work list (document order, except for MinTokens; see flatten).
type Chunker struct {
	chunkSize int
	strategy  Strategy
	tokenize  TokenizeFunc
}

// New creates a Chunker. When tokenize is nil a cl100k_base byte-pair
// tokenizer is substituted and the effective budget shrinks to 90% of
// chunkSize to cover its under-counting on unusual text.
func New(chunkSize int, strategy Strategy, tokenize TokenizeFunc) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, ErrInvalidChunkSize
	}
	if _, err := ParseStrategy(string(strategy)); err != nil {
		return nil, err
	}

	if tokenize == nil {
		fallback, err := fallbackTokenizer()
		if err != nil {
			return nil, err
		}
		tokenize = fallback
		chunkSize = int(float64(chunkSize) * 0.9)
	}

	return &Chunker{
		chunkSize: chunkSize,
		strategy:  strategy,
		tokenize:  tokenize,
	}, nil
}

// Chunk splits doc into chunks that fit the token budget. Nodes that cannot
// be shrunk further (single-row tables, single-item lists) are skipped;
// every split strictly reduces the work left, so the loop always terminates.
func (c *Chunker) Chunk(doc *markdown.Document) []Chunk {
	var queue []markdown.Node
	if c.strategy == StrategyMinTokens {
		queue = flatten(doc)
	} else {
		queue = []markdown.Node{doc}
	}

	var chunks []Chunk
	position := 0

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		// Chunk text never carries front-matter; documents render body only.
		content := item.String()
		if d, ok := item.(*markdown.Document); ok {
			content = d.Body()
		}

		indivisible := false
		if p, ok := item.(*markdown.Paragraph); ok {
			indivisible = utf8.RuneCountInString(p.Content) <= 1
		}

		if len(c.tokenize(content)) <= c.chunkSize || indivisible {
			if strings.TrimSpace(content) == "" {
				continue
			}
			chunks = append(chunks, Chunk{
				Content:      content,
				FileName:     doc.FileName,
				FilePosition: position,
				Metadata:     maps.Clone(doc.Metadata),
			})
			position++
			continue
		}

		queue = c.split(item, queue)
	}

	return chunks
}

// split re-enqueues the halves of an oversized node at the front of the work
// list. Appending at the back instead would reorder the output.
func (c *Chunker) split(item markdown.Node, queue []markdown.Node) []markdown.Node {
	switch n := item.(type) {
	case *markdown.Document:
		// Halves carry no metadata: front-matter belongs to the original
		// document only.
		return c.splitGroup(n.Sections, queue, func(half []markdown.Node) markdown.Node {
			return &markdown.Document{FileName: n.FileName, Sections: half}
		})

	case *markdown.Section:
		// Under MaxTokens both halves keep the heading so each reads as its
		// own section; the other strategies enqueue the children without it.
		return c.splitGroup(n.Content, queue, func(half []markdown.Node) markdown.Node {
			return &markdown.Section{Title: n.Title, Level: n.Level, Content: half}
		})

	case *markdown.Table:
		// A one-row table cannot be split while preserving header
		// semantics; it is dropped.
		if len(n.Rows) <= 1 {
			return queue
		}
		half := (len(n.Rows) + 1) / 2
		return prepend(queue,
			&markdown.Table{Caption: n.Caption, Headers: n.Headers, Rows: n.Rows[:half]},
			&markdown.Table{Caption: n.Caption, Headers: n.Headers, Rows: n.Rows[half:]},
		)

	case *markdown.BulletList:
		if len(n.Items) <= 1 {
			return queue
		}
		half := (len(n.Items) + 1) / 2
		return prepend(queue,
			&markdown.BulletList{Items: n.Items[:half]},
			&markdown.BulletList{Items: n.Items[half:]},
		)

	case *markdown.Paragraph:
		runes := []rune(n.Content)
		half := len(runes) / 2
		return prepend(queue,
			&markdown.Paragraph{Content: string(runes[:half])},
			&markdown.Paragraph{Content: string(runes[half:])},
		)

	default:
		// Images always fit or are dropped; nothing to split.
		return queue
	}
}

// splitGroup splits a container's children. MaxTokens halves the child list
// with the container rebuilt around each half; the other strategies enqueue
// every child individually. A lone child is unwrapped rather than halved.
func (c *Chunker) splitGroup(children []markdown.Node, queue []markdown.Node, wrap func([]markdown.Node) markdown.Node) []markdown.Node {
	switch {
	case len(children) == 0:
		return queue
	case len(children) == 1:
		return prepend(queue, children[0])
	case c.strategy == StrategyMaxTokens:
		half := (len(children) + 1) / 2
		return prepend(queue, wrap(children[:half]), wrap(children[half:]))
	default:
		return prepend(queue, children...)
	}
}

// flatten expands the document breadth-first down to its leaf nodes. Siblings
// keep their source order, but the leaves of a nested section come after the
// shallower leaves queued before it. Used to seed the MinTokens work list.
func flatten(doc *markdown.Document) []markdown.Node {
	queue := []markdown.Node{doc}
	var leaves []markdown.Node

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		switch n := item.(type) {
		case *markdown.Document:
			queue = append(queue, n.Sections...)
		case *markdown.Section:
			queue = append(queue, n.Content...)
		default:
			leaves = append(leaves, item)
		}
	}
	return leaves
}

// prepend always allocates: appending the queue onto a node's own child
// slice could clobber a sibling half that shares its backing array.
func prepend(queue []markdown.Node, items ...markdown.Node) []markdown.Node {
	out := make([]markdown.Node, 0, len(items)+len(queue))
	out = append(out, items...)
	return append(out, queue...)
}
