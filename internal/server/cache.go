package server

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/bytedance/sonic"

	"github.com/hsn0918/deepqa/internal/qa"
	"github.com/hsn0918/deepqa/internal/vectordb"
	"github.com/hsn0918/deepqa/pkg/redis"
)

// Cache TTLs per payload kind.
const (
	AnswerCacheTTL = 1 * time.Hour
	SearchCacheTTL = 30 * time.Minute
)

// CacheService caches finished answers and search results keyed by a hash
// of the query, so repeated questions skip the research loop entirely.
type CacheService struct {
	client redis.RedisClient
}

// NewCacheService creates a cache on the given Redis client.
func NewCacheService(client redis.RedisClient) *CacheService {
	return &CacheService{client: client}
}

func (s *CacheService) CacheAnswer(ctx context.Context, query string, result *qa.Result) error {
	key := fmt.Sprintf("answer:%s", hashText(query))
	return s.client.SetJSON(ctx, key, result, AnswerCacheTTL)
}

// GetAnswer returns the cached result for query, reporting a miss with ok
// set to false.
func (s *CacheService) GetAnswer(ctx context.Context, query string) (*qa.Result, bool, error) {
	key := fmt.Sprintf("answer:%s", hashText(query))
	data, err := s.client.Get(ctx, key)
	if err != nil || data == "" {
		return nil, false, err
	}

	var result qa.Result
	if err := sonic.Unmarshal([]byte(data), &result); err != nil {
		return nil, false, err
	}
	return &result, true, nil
}

func (s *CacheService) CacheSearch(ctx context.Context, query string, results []vectordb.Vector) error {
	key := fmt.Sprintf("search:%s", hashText(query))
	return s.client.SetJSON(ctx, key, results, SearchCacheTTL)
}

// GetSearch returns cached search results for query, reporting a miss with
// ok set to false.
func (s *CacheService) GetSearch(ctx context.Context, query string) ([]vectordb.Vector, bool, error) {
	key := fmt.Sprintf("search:%s", hashText(query))
	data, err := s.client.Get(ctx, key)
	if err != nil || data == "" {
		return nil, false, err
	}

	var results []vectordb.Vector
	if err := sonic.Unmarshal([]byte(data), &results); err != nil {
		return nil, false, err
	}
	return results, true, nil
}

func hashText(text string) string {
	hash := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%x", hash)
}
