// Package vectordb persists embedded chunks in PostgreSQL with pgvector and
// serves top-k similarity queries under a selectable distance operator.
package vectordb

import (
	"time"

	"github.com/hsn0918/deepqa/internal/chunking"
)

// Vector is one stored row: a chunk plus its embedding, the store-assigned
// id and the row's update timestamp.
type Vector struct {
	ID           int64             `json:"id"`
	Embedding    []float32         `json:"embedding"`
	FileName     string            `json:"file_name"`
	FilePosition int               `json:"file_position"`
	Content      string            `json:"content"`
	Metadata     map[string]string `json:"metadata"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// FromChunk pairs a chunk with its embedding. ID and UpdatedAt are assigned
// by the store on insert.
func FromChunk(chunk chunking.Chunk, embedding []float32) Vector {
	return Vector{
		Embedding:    embedding,
		FileName:     chunk.FileName,
		FilePosition: chunk.FilePosition,
		Content:      chunk.Content,
		Metadata:     chunk.Metadata,
	}
}
