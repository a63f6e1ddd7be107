package ingest_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsn0918/deepqa/internal/chunking"
	"github.com/hsn0918/deepqa/internal/embedding"
	"github.com/hsn0918/deepqa/internal/ingest"
	"github.com/hsn0918/deepqa/internal/vectordb"
)

type fakeStore struct {
	mu      sync.Mutex
	rows    map[string][]vectordb.Vector
	nextID  int64
	inserts int
	clears  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string][]vectordb.Vector)}
}

func (s *fakeStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = make(map[string][]vectordb.Vector)
	s.clears++
	return nil
}

func (s *fakeStore) GetFile(_ context.Context, fileName string) ([]vectordb.Vector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]vectordb.Vector(nil), s.rows[fileName]...), nil
}

func (s *fakeStore) DeleteFile(_ context.Context, fileName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, fileName)
	return nil
}

func (s *fakeStore) BatchInsert(_ context.Context, vectors []vectordb.Vector, _, _ int, progress func(done, total int)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts++
	for _, v := range vectors {
		s.nextID++
		v.ID = s.nextID
		v.UpdatedAt = time.Now()
		s.rows[v.FileName] = append(s.rows[v.FileName], v)
	}
	if progress != nil {
		progress(len(vectors), len(vectors))
	}
	return nil
}

func (s *fakeStore) all() map[string][]vectordb.Vector {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]vectordb.Vector, len(s.rows))
	for k, v := range s.rows {
		out[k] = append([]vectordb.Vector(nil), v...)
	}
	return out
}

type fakeEmbedder struct{ dim int }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string, _ string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, f.dim)
		vec[0] = float32(len(text)%7 + 1)
		vectors[i] = embedding.Normalize(vec)
	}
	return vectors, nil
}

func (f *fakeEmbedder) Tokenize(text string) []int { return make([]int, len(text)) }
func (f *fakeEmbedder) Dimension() int             { return f.dim }
func (f *fakeEmbedder) MaxTokens() int             { return 512 }
func (f *fakeEmbedder) Clone() embedding.Embedder  { clone := *f; return &clone }

func writeCorpus(t *testing.T, mtime time.Time) string {
	t.Helper()
	dir := t.TempDir()

	files := map[string]string{
		"foo.md":        "---\nsource: A\n---\n\n# Title\n\ntext.\n",
		"sub/bar.md":    "# Bar\n\nbar body\n",
		"notes.txt":     "not markdown, must be ignored",
		"sub/image.png": "binary-ish",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		require.NoError(t, os.Chtimes(path, mtime, mtime))
	}
	return dir
}

func newRoutine(t *testing.T, store ingest.Store) *ingest.Routine {
	t.Helper()
	chunker, err := chunking.New(500, chunking.StrategyBalanced, func(s string) []int {
		return make([]int, len(s))
	})
	require.NoError(t, err)
	return ingest.New(chunker, &fakeEmbedder{dim: 4}, store, slog.New(slog.DiscardHandler))
}

func TestRun_CreateIngestsMarkdownOnly(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	dir := writeCorpus(t, past)
	store := newFakeStore()

	require.NoError(t, newRoutine(t, store).Run(context.Background(), dir, ingest.ModeCreate))

	rows := store.all()
	assert.Len(t, rows, 2)
	assert.NotEmpty(t, rows["foo.md"])
	assert.NotEmpty(t, rows[filepath.Join("sub", "bar.md")])
	assert.Equal(t, 1, store.clears, "create mode wipes first")

	for _, v := range rows["foo.md"] {
		assert.Equal(t, "A", v.Metadata["source"])
		assert.Len(t, v.Embedding, 4)
	}
}

func TestRun_InvalidMode(t *testing.T) {
	store := newFakeStore()
	err := newRoutine(t, store).Run(context.Background(), t.TempDir(), ingest.Mode("rebuild"))
	assert.Error(t, err)
}

func TestRun_UpdateIdempotent(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	dir := writeCorpus(t, past)
	store := newFakeStore()
	routine := newRoutine(t, store)

	require.NoError(t, routine.Run(context.Background(), dir, ingest.ModeUpdate))
	first := store.all()
	insertsAfterFirst := store.inserts

	// Second pass over an unchanged tree must not touch the store.
	require.NoError(t, routine.Run(context.Background(), dir, ingest.ModeUpdate))
	assert.Equal(t, insertsAfterFirst, store.inserts)
	assert.Equal(t, first, store.all())
}

func TestRun_UpdateReingestsModifiedFile(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	dir := writeCorpus(t, past)
	store := newFakeStore()
	routine := newRoutine(t, store)

	require.NoError(t, routine.Run(context.Background(), dir, ingest.ModeUpdate))
	oldIDs := ids(store.all()["foo.md"])

	// Touch one file into the future relative to its stored rows.
	path := filepath.Join(dir, "foo.md")
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.WriteFile(path, []byte("# Title\n\nrevised text.\n"), 0o644))
	require.NoError(t, os.Chtimes(path, future, future))

	require.NoError(t, routine.Run(context.Background(), dir, ingest.ModeUpdate))

	rows := store.all()["foo.md"]
	require.NotEmpty(t, rows)
	assert.NotEqual(t, oldIDs, ids(rows), "stale rows replaced")
	assert.Contains(t, rows[0].Content, "revised")
}

func ids(rows []vectordb.Vector) []int64 {
	out := make([]int64, len(rows))
	for i, v := range rows {
		out[i] = v.ID
	}
	return out
}
