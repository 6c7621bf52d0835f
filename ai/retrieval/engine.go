// Package retrieval ranks stored conversations by cosine similarity to a
// query vector.
package retrieval

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hrygo/leodock/ai/cache"
	"github.com/hrygo/leodock/ai/embedding"
	"github.com/hrygo/leodock/ai/metrics"
	"github.com/hrygo/leodock/store"
)

const DefaultLimit = 10

// CandidateSource enumerates the conversations that carry an embedding.
type CandidateSource interface {
	ListEmbeddedConversations(ctx context.Context) ([]*store.Conversation, error)
}

// ScoredConversation is a search hit.
type ScoredConversation struct {
	Conversation *store.Conversation
	Similarity   float64
}

// Options configures an Engine.
type Options struct {
	Logger         *slog.Logger
	Metrics        *metrics.PrometheusExporter
	QueryCacheSize int
	QueryCacheTTL  time.Duration
}

// Engine answers semantic searches with a linear scan over embedded records.
type Engine struct {
	source   CandidateSource
	embedder embedding.Embedder
	queries  *cache.LRU[string, []float32]
	inflight singleflight.Group
	metrics  *metrics.PrometheusExporter
	logger   *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(source CandidateSource, embedder embedding.Embedder, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		source:   source,
		embedder: embedder,
		queries:  cache.NewLRU[string, []float32](opts.QueryCacheSize, opts.QueryCacheTTL),
		metrics:  opts.Metrics,
		logger:   opts.Logger,
	}
}

// SemanticSearch returns up to limit conversations whose similarity to query
// is at least threshold, best first. Ties are ordered by timestamp and then
// id, newest first. When no query vector can be obtained the call fails with
// embedding.ErrEmbeddingUnavailable before storage is read.
func (e *Engine) SemanticSearch(ctx context.Context, query string, limit int, threshold float64) ([]*ScoredConversation, error) {
	start := time.Now()
	results, err := e.search(ctx, query, limit, threshold)
	e.metrics.RecordSearch(metrics.SearchSemantic, time.Since(start), len(results), err)
	return results, err
}

func (e *Engine) search(ctx context.Context, query string, limit int, threshold float64) ([]*ScoredConversation, error) {
	if threshold > 1 {
		return []*ScoredConversation{}, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	queryVec, err := e.queryVector(ctx, query)
	if err != nil {
		return nil, err
	}

	candidates, err := e.source.ListEmbeddedConversations(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]*ScoredConversation, 0, min(limit, len(candidates)))
	skipped := 0
	for _, c := range candidates {
		if len(c.Embedding) != len(queryVec) {
			skipped++
			continue
		}
		sim := CosineSimilarity(queryVec, c.Embedding)
		if sim >= threshold {
			results = append(results, &ScoredConversation{Conversation: c, Similarity: sim})
		}
	}
	if skipped > 0 {
		e.logger.Warn("skipped stored vectors with mismatched dimension",
			"skipped", skipped,
			"query_dimension", len(queryVec),
		)
	}

	Rank(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Rank sorts hits by similarity, then timestamp, then id, all descending.
func Rank(results []*ScoredConversation) {
	slices.SortFunc(results, func(a, b *ScoredConversation) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		if c := b.Conversation.Timestamp.Compare(a.Conversation.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(b.Conversation.ID, a.Conversation.ID)
	})
}

// queryVector returns the cached vector for query or asks the embedder,
// collapsing concurrent requests for the same text. The shared request
// ignores the cancellation of whichever caller started it.
// QueryCacheStats reports the cached query vectors and the cache counters.
func (e *Engine) QueryCacheStats() (entries int, hits, misses int64) {
	hits, misses = e.queries.Stats()
	return e.queries.Len(), hits, misses
}

func (e *Engine) queryVector(ctx context.Context, query string) ([]float32, error) {
	if vec, ok := e.queries.Get(query); ok {
		e.metrics.RecordQueryCache(true)
		return vec, nil
	}
	e.metrics.RecordQueryCache(false)

	detached := context.WithoutCancel(ctx)
	ch := e.inflight.DoChan(query, func() (any, error) {
		vec, err := e.embedder.Embed(detached, query)
		if err != nil {
			return nil, err
		}
		e.queries.Set(query, vec)
		return vec, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", embedding.ErrEmbeddingUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			if errors.Is(res.Err, embedding.ErrEmbeddingUnavailable) {
				return nil, res.Err
			}
			return nil, fmt.Errorf("%w: %w", embedding.ErrEmbeddingUnavailable, res.Err)
		}
		return res.Val.([]float32), nil
	}
}
