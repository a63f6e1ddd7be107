// Package server composes the HTTP frontend: fx modules wiring the store,
// cache, clients and the QA pipeline, plus the JSON API handlers.
package server

import (
	"log/slog"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/hsn0918/deepqa/internal/embedding"
	"github.com/hsn0918/deepqa/internal/qa"
	"github.com/hsn0918/deepqa/internal/vectordb"
)

// QAServer implements the JSON API. The pipeline handle is injected through
// fx rather than bound process-wide, so tests and alternative frontends can
// carry their own.
type QAServer struct {
	pipeline *qa.Pipeline
	embedder embedding.Embedder
	store    *vectordb.Storage
	cache    *CacheService
	logger   *slog.Logger
}

// NewQAServer is the QAServer constructor used by fx.
func NewQAServer(
	pipeline *qa.Pipeline,
	embedder embedding.Embedder,
	store *vectordb.Storage,
	cache *CacheService,
	logger *slog.Logger,
) *QAServer {
	return &QAServer{
		pipeline: pipeline,
		embedder: embedder,
		store:    store,
		cache:    cache,
		logger:   logger,
	}
}

// Handler returns the API routing table.
func (s *QAServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/ask", s.handleAsk)
	mux.HandleFunc("POST /api/v1/search", s.handleSearch)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// AskRequest asks the research loop a question.
type AskRequest struct {
	Query string `json:"query"`
}

// AskResponse is the answer with its provenance and accounting.
type AskResponse struct {
	RequestID  string   `json:"request_id"`
	RunID      string   `json:"run_id"`
	Answer     string   `json:"answer"`
	Iterations int      `json:"iterations"`
	Cost       float64  `json:"cost"`
	Sources    []string `json:"sources"`
}

func (s *QAServer) handleAsk(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()

	var req AskRequest
	if err := decodeJSON(r, &req); err != nil || req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	if result, ok, err := s.cache.GetAnswer(r.Context(), req.Query); err == nil && ok {
		s.logger.Info("answer cache hit", "request_id", requestID)
		writeJSON(w, http.StatusOK, askResponse(requestID, result))
		return
	}

	result, err := s.pipeline.Run(r.Context(), req.Query)
	if err != nil {
		s.logger.Error("pipeline run failed", "request_id", requestID, "error", err)
		writeError(w, http.StatusBadGateway, "research pipeline failed")
		return
	}

	if err := s.cache.CacheAnswer(r.Context(), req.Query, result); err != nil {
		s.logger.Warn("answer cache write failed", "request_id", requestID, "error", err)
	}

	writeJSON(w, http.StatusOK, askResponse(requestID, result))
}

func askResponse(requestID string, result *qa.Result) AskResponse {
	seen := make(map[string]bool)
	var sources []string
	for _, v := range result.UsedContext {
		if !seen[v.FileName] {
			seen[v.FileName] = true
			sources = append(sources, v.FileName)
		}
	}

	return AskResponse{
		RequestID:  requestID,
		RunID:      result.RunID,
		Answer:     result.FinalAnswer,
		Iterations: result.Iterations,
		Cost:       result.Cost,
		Sources:    sources,
	}
}

// SearchRequest runs a raw top-k similarity query.
type SearchRequest struct {
	Query    string `json:"query"`
	K        int    `json:"k"`
	Distance string `json:"distance"`
}

// SearchResult is one retrieved row, without its embedding.
type SearchResult struct {
	FileName     string            `json:"file_name"`
	FilePosition int               `json:"file_position"`
	Content      string            `json:"content"`
	Metadata     map[string]string `json:"metadata"`
}

func (s *QAServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := decodeJSON(r, &req); err != nil || req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.K <= 0 {
		req.K = qa.DefaultTopK
	}
	if req.Distance == "" {
		req.Distance = string(vectordb.DistanceCosine)
	}
	distance, err := vectordb.ParseDistance(req.Distance)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if rows, ok, err := s.cache.GetSearch(r.Context(), req.Query); err == nil && ok {
		writeJSON(w, http.StatusOK, searchResults(rows))
		return
	}

	vectors, err := s.embedder.Embed(r.Context(), []string{req.Query}, "")
	if err != nil {
		s.logger.Error("query embedding failed", "error", err)
		writeError(w, http.StatusBadGateway, "embedding failed")
		return
	}

	rows, err := s.store.Query(r.Context(), vectors[0], req.K, distance)
	if err != nil {
		s.logger.Error("similarity query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	if err := s.cache.CacheSearch(r.Context(), req.Query, rows); err != nil {
		s.logger.Warn("search cache write failed", "error", err)
	}

	writeJSON(w, http.StatusOK, searchResults(rows))
}

func searchResults(rows []vectordb.Vector) []SearchResult {
	results := make([]SearchResult, len(rows))
	for i, v := range rows {
		results[i] = SearchResult{
			FileName:     v.FileName,
			FilePosition: v.FilePosition,
			Content:      v.Content,
			Metadata:     v.Metadata,
		}
	}
	return results
}

func (s *QAServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeJSON(r *http.Request, dest interface{}) error {
	return sonic.ConfigDefault.NewDecoder(r.Body).Decode(dest)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = sonic.ConfigDefault.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
