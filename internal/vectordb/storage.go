package vectordb

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// Distance names a pgvector distance operator.
type Distance string

// Supported distances. Cosine is the retrieval default.
const (
	DistanceL2           Distance = "l2"
	DistanceInnerProduct Distance = "inner_product"
	DistanceCosine       Distance = "cosine"
	DistanceL1           Distance = "l1"
	DistanceHamming      Distance = "hamming"
	DistanceJaccard      Distance = "jaccard"
)

// distanceOps maps distance names onto pgvector operators.
var distanceOps = map[Distance]string{
	DistanceL2:           "<->",
	DistanceInnerProduct: "<#>",
	DistanceCosine:       "<=>",
	DistanceL1:           "<+>",
	DistanceHamming:      "<~>",
	DistanceJaccard:      "<%>",
}

// ParseDistance converts a configuration string into a Distance.
func ParseDistance(s string) (Distance, error) {
	if _, ok := distanceOps[Distance(s)]; !ok {
		return "", fmt.Errorf("vectordb: unknown distance %q", s)
	}
	return Distance(s), nil
}

// ErrDimensionMismatch reports opening an existing collection with a
// dimension other than the one it was created with. This is a configuration
// error, fatal at startup.
var ErrDimensionMismatch = errors.New("vectordb: collection exists with a different dimension")

// Default batching parameters for bulk ingest.
const (
	DefaultBatchSize = 1000
	DefaultPageSize  = 500
)

// Storage is a vector collection: a PostgreSQL table with a fixed-dimension
// pgvector column. Methods are safe for concurrent readers; writes are
// expected to be serialised by the ingestion routine.
type Storage struct {
	pool      *pgxpool.Pool
	table     string
	dimension int
}

// Open connects to the database and creates the collection when absent. If
// the collection already exists with a different dimension, Open fails with
// ErrDimensionMismatch.
func Open(ctx context.Context, dsn, name string, dimension int) (*Storage, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("vectordb: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("vectordb: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("vectordb: ping: %w", err)
	}

	s := &Storage{pool: pool, table: name, dimension: dimension}
	if err := s.ensureTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Storage) ensureTable(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("vectordb: enable vector extension: %w", err)
	}

	create := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id bigserial PRIMARY KEY,
			embedding vector(%d),
			file_name text,
			file_position integer,
			content text,
			metadata jsonb,
			updated_at timestamp with time zone DEFAULT now()
		)`, s.ident(), s.dimension)
	if _, err := s.pool.Exec(ctx, create); err != nil {
		return fmt.Errorf("vectordb: create table %s: %w", s.table, err)
	}

	// CREATE TABLE IF NOT EXISTS is a no-op on an existing table, so the
	// actual column dimension must be read back from the catalog.
	var typmod int
	err := s.pool.QueryRow(ctx, `
		SELECT atttypmod
		FROM pg_attribute
		WHERE attrelid = $1::regclass AND attname = 'embedding'`,
		s.table,
	).Scan(&typmod)
	if err != nil {
		return fmt.Errorf("vectordb: read column dimension: %w", err)
	}
	if typmod != s.dimension {
		return fmt.Errorf("%w: table %s has dimension %d, requested %d",
			ErrDimensionMismatch, s.table, typmod, s.dimension)
	}
	return nil
}

// ident returns the table name as a quoted SQL identifier.
func (s *Storage) ident() string {
	return pgx.Identifier{s.table}.Sanitize()
}

// Dimension returns the collection's embedding dimension.
func (s *Storage) Dimension() int { return s.dimension }

// Close releases the connection pool.
func (s *Storage) Close() { s.pool.Close() }

// Insert stores a single row.
func (s *Storage) Insert(ctx context.Context, v Vector) error {
	metadata, err := sonic.Marshal(v.Metadata)
	if err != nil {
		return fmt.Errorf("vectordb: marshal metadata: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (embedding, file_name, file_position, content, metadata)
		VALUES ($1, $2, $3, $4, $5)`, s.ident())
	if _, err := s.pool.Exec(ctx, query,
		pgvector.NewVector(v.Embedding), v.FileName, v.FilePosition, v.Content, metadata,
	); err != nil {
		return fmt.Errorf("vectordb: insert: %w", err)
	}
	return nil
}

// BatchInsert ingests rows in pages of pageSize within batches of batchSize.
// Each batch commits atomically; progress, when non-nil, observes the number
// of rows committed so far.
func (s *Storage) BatchInsert(ctx context.Context, vectors []Vector, batchSize, pageSize int, progress func(done, total int)) error {
	if len(vectors) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (embedding, file_name, file_position, content, metadata)
		VALUES ($1, $2, $3, $4, $5)`, s.ident())

	for start := 0; start < len(vectors); start += batchSize {
		end := min(start+batchSize, len(vectors))

		if err := s.insertBatch(ctx, query, vectors[start:end], pageSize); err != nil {
			return err
		}
		if progress != nil {
			progress(end, len(vectors))
		}
	}
	return nil
}

func (s *Storage) insertBatch(ctx context.Context, query string, vectors []Vector, pageSize int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("vectordb: begin batch: %w", err)
	}
	defer tx.Rollback(ctx)

	for start := 0; start < len(vectors); start += pageSize {
		end := min(start+pageSize, len(vectors))

		var page pgx.Batch
		for _, v := range vectors[start:end] {
			metadata, err := sonic.Marshal(v.Metadata)
			if err != nil {
				return fmt.Errorf("vectordb: marshal metadata: %w", err)
			}
			page.Queue(query, pgvector.NewVector(v.Embedding), v.FileName, v.FilePosition, v.Content, metadata)
		}
		if err := tx.SendBatch(ctx, &page).Close(); err != nil {
			return fmt.Errorf("vectordb: batch insert: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("vectordb: commit batch: %w", err)
	}
	return nil
}

// Query returns the k rows closest to embedding under the given distance,
// ordered by ascending distance. Ties break on id, which keeps the ordering
// deterministic.
func (s *Storage) Query(ctx context.Context, embedding []float32, k int, distance Distance) ([]Vector, error) {
	op, ok := distanceOps[distance]
	if !ok {
		return nil, fmt.Errorf("vectordb: unknown distance %q", distance)
	}

	query := fmt.Sprintf(`
		SELECT id, embedding, file_name, file_position, content, metadata, updated_at
		FROM %s
		ORDER BY embedding %s $1, id
		LIMIT $2`, s.ident(), op)

	rows, err := s.pool.Query(ctx, query, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("vectordb: query: %w", err)
	}
	defer rows.Close()

	return scanVectors(rows)
}

// GetFile returns every row stored for a source file, in file order.
func (s *Storage) GetFile(ctx context.Context, fileName string) ([]Vector, error) {
	query := fmt.Sprintf(`
		SELECT id, embedding, file_name, file_position, content, metadata, updated_at
		FROM %s
		WHERE file_name = $1
		ORDER BY file_position`, s.ident())

	rows, err := s.pool.Query(ctx, query, fileName)
	if err != nil {
		return nil, fmt.Errorf("vectordb: get file: %w", err)
	}
	defer rows.Close()

	return scanVectors(rows)
}

// DeleteFile removes every row stored for a source file.
func (s *Storage) DeleteFile(ctx context.Context, fileName string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE file_name = $1", s.ident())
	if _, err := s.pool.Exec(ctx, query, fileName); err != nil {
		return fmt.Errorf("vectordb: delete file: %w", err)
	}
	return nil
}

// Clear removes every row but keeps the collection.
func (s *Storage) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "TRUNCATE "+s.ident()); err != nil {
		return fmt.Errorf("vectordb: clear: %w", err)
	}
	return nil
}

// Drop removes the collection entirely.
func (s *Storage) Drop(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "DROP TABLE IF EXISTS "+s.ident()); err != nil {
		return fmt.Errorf("vectordb: drop: %w", err)
	}
	return nil
}

func scanVectors(rows pgx.Rows) ([]Vector, error) {
	var vectors []Vector
	for rows.Next() {
		var (
			v        Vector
			emb      pgvector.Vector
			metadata []byte
		)
		if err := rows.Scan(&v.ID, &emb, &v.FileName, &v.FilePosition, &v.Content, &metadata, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("vectordb: scan row: %w", err)
		}
		v.Embedding = emb.Slice()
		if len(metadata) > 0 {
			if err := sonic.Unmarshal(metadata, &v.Metadata); err != nil {
				return nil, fmt.Errorf("vectordb: unmarshal metadata: %w", err)
			}
		}
		vectors = append(vectors, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vectordb: rows: %w", err)
	}
	return vectors, nil
}
