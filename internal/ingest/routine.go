// Package ingest walks a directory tree of Markdown files and loads them
// into the vector store: parse, chunk, embed, upsert. It supports a full
// rebuild and an mtime-gated incremental update.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hsn0918/deepqa/internal/chunking"
	"github.com/hsn0918/deepqa/internal/embedding"
	"github.com/hsn0918/deepqa/internal/markdown"
	"github.com/hsn0918/deepqa/internal/vectordb"
)

// Mode selects how the routine treats existing store content.
type Mode string

const (
	// ModeCreate wipes the collection and re-ingests everything.
	ModeCreate Mode = "create"
	// ModeUpdate re-ingests only files that are new or whose modification
	// time is newer than their stored rows.
	ModeUpdate Mode = "update"
)

// ParseMode converts a flag string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeCreate, ModeUpdate:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("ingest: mode must be %q or %q", ModeCreate, ModeUpdate)
	}
}

// Store is the slice of the vector store the routine writes through.
type Store interface {
	Clear(ctx context.Context) error
	GetFile(ctx context.Context, fileName string) ([]vectordb.Vector, error)
	DeleteFile(ctx context.Context, fileName string) error
	BatchInsert(ctx context.Context, vectors []vectordb.Vector, batchSize, pageSize int, progress func(done, total int)) error
}

// Routine ties a chunker, an embedder and a store together for ingestion.
type Routine struct {
	chunker  *chunking.Chunker
	embedder embedding.Embedder
	store    Store
	logger   *slog.Logger
}

// New creates an ingestion routine.
func New(chunker *chunking.Chunker, embedder embedding.Embedder, store Store, logger *slog.Logger) *Routine {
	return &Routine{
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		logger:   logger,
	}
}

// Run ingests every .md file under root. Non-Markdown files are ignored.
// Parse failures are reported per file and ingestion continues; provider and
// storage failures abort the run.
func (r *Routine) Run(ctx context.Context, root string, mode Mode) error {
	if _, err := ParseMode(string(mode)); err != nil {
		return err
	}

	if mode == ModeCreate {
		if err := r.store.Clear(ctx); err != nil {
			return err
		}
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		// Rows are keyed by the path relative to the ingestion root, so
		// files with the same base name in different directories stay
		// distinct.
		name, err := filepath.Rel(root, path)
		if err != nil {
			name = d.Name()
		}

		doc, err := r.loadDocument(path, name)
		if err != nil {
			var parseErr *markdown.ParseError
			if errors.As(err, &parseErr) {
				r.logger.Warn("skipping unparseable file", "file", name, "error", err)
				return nil
			}
			return err
		}

		return r.ingestDocument(ctx, doc, mode)
	})
}

func (r *Routine) loadDocument(path, name string) (*markdown.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: stat %s: %w", name, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: read %s: %w", name, err)
	}
	return markdown.NewParser(name, info.ModTime()).Parse(string(data))
}

func (r *Routine) ingestDocument(ctx context.Context, doc *markdown.Document, mode Mode) error {
	chunks := r.chunker.Chunk(doc)
	if len(chunks) == 0 {
		r.logger.Info("no chunks produced", "file", doc.FileName)
		return nil
	}

	contents := make([]string, len(chunks))
	for i, chunk := range chunks {
		contents[i] = chunk.Content
	}

	embeddings, err := r.embedder.Embed(ctx, contents, "")
	if err != nil {
		return fmt.Errorf("ingest: embed %s: %w", doc.FileName, err)
	}

	vectors := make([]vectordb.Vector, len(chunks))
	for i, chunk := range chunks {
		vectors[i] = vectordb.FromChunk(chunk, embeddings[i])
	}

	switch mode {
	case ModeCreate:
		if err := r.insert(ctx, doc.FileName, vectors); err != nil {
			return err
		}

	case ModeUpdate:
		existing, err := r.store.GetFile(ctx, doc.FileName)
		if err != nil {
			return err
		}
		switch {
		case len(existing) == 0:
			if err := r.insert(ctx, doc.FileName, vectors); err != nil {
				return err
			}
		case stale(existing, doc):
			if err := r.store.DeleteFile(ctx, doc.FileName); err != nil {
				return err
			}
			if err := r.insert(ctx, doc.FileName, vectors); err != nil {
				return err
			}
		default:
			r.logger.Info("file unchanged", "file", doc.FileName)
		}
	}
	return nil
}

func (r *Routine) insert(ctx context.Context, fileName string, vectors []vectordb.Vector) error {
	err := r.store.BatchInsert(ctx, vectors, vectordb.DefaultBatchSize, vectordb.DefaultPageSize,
		func(done, total int) {
			r.logger.Info("ingesting", "file", fileName, "rows", done, "total", total)
		})
	if err != nil {
		return err
	}
	return nil
}

// stale reports whether any stored row predates the file's current
// modification time.
func stale(existing []vectordb.Vector, doc *markdown.Document) bool {
	for _, v := range existing {
		if v.UpdatedAt.Before(doc.UpdatedAt) {
			return true
		}
	}
	return false
}
