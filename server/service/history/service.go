// Package history is the conversation log service: an append-only store of
// messages with keyword and semantic search, session tracking, and
// asynchronous embedding backfill.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/leodock/ai/embedding"
	"github.com/hrygo/leodock/ai/metrics"
	"github.com/hrygo/leodock/ai/retrieval"
	"github.com/hrygo/leodock/store"
)

const (
	DefaultSearchLimit   = 20
	DefaultRecentLimit   = 10
	DefaultContextWindow = 3
)

// Options configures a Service.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.PrometheusExporter
	// Guard is shared with the embedding client. A fresh guard is created
	// when nil.
	Guard *embedding.DimensionGuard
	// Dimension is the configured vector dimension; 0 adopts whatever the
	// store already holds or the first vector produced.
	Dimension int

	Workers        int
	QueueSize      int
	JobTimeout     time.Duration
	QueryCacheSize int
	QueryCacheTTL  time.Duration
}

// Service implements Log on top of store.Store.
type Service struct {
	store      *store.Store
	embedder   embedding.Embedder
	guard      *embedding.DimensionGuard
	engine     *retrieval.Engine
	backfiller *Backfiller
	metrics    *metrics.PrometheusExporter
	logger     *slog.Logger
}

var _ Log = (*Service)(nil)

// NewService wires the store, the embedder, the search engine and the
// backfill pool. The configured dimension must agree with the one already
// recorded in the store.
func NewService(ctx context.Context, st *store.Store, embedder embedding.Embedder, opts Options) (*Service, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Guard == nil {
		opts.Guard = embedding.NewDimensionGuard(0)
	}

	dim, err := st.GetEmbeddingDimension(ctx)
	if err != nil {
		return nil, err
	}
	if opts.Dimension > 0 {
		if dim, err = st.EstablishEmbeddingDimension(ctx, opts.Dimension); err != nil {
			return nil, errors.Wrap(err, "configured embedding dimension conflicts with stored vectors")
		}
	}
	if got := opts.Guard.Establish(dim); dim > 0 && got != dim {
		return nil, errors.Wrapf(store.ErrDimensionMismatch, "guard holds %d, store uses %d", got, dim)
	}

	s := &Service{
		store:    st,
		embedder: embedder,
		guard:    opts.Guard,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
	}
	s.engine = retrieval.NewEngine(st, embedder, retrieval.Options{
		Logger:         opts.Logger,
		Metrics:        opts.Metrics,
		QueryCacheSize: opts.QueryCacheSize,
		QueryCacheTTL:  opts.QueryCacheTTL,
	})
	s.backfiller = newBackfiller(s.embedAndFill, BackfillerOptions{
		Logger:     opts.Logger,
		Metrics:    opts.Metrics,
		Workers:    opts.Workers,
		QueueSize:  opts.QueueSize,
		JobTimeout: opts.JobTimeout,
	})

	if dim > 0 {
		s.logger.Info("embedding dimension established", "dimension", dim)
	}
	return s, nil
}

// Backfiller exposes the worker pool, mainly so callers can Wait on it.
func (s *Service) Backfiller() *Backfiller {
	return s.backfiller
}

// Close drains the backfill queue, giving up when ctx expires.
func (s *Service) Close(ctx context.Context) error {
	return s.backfiller.Close(ctx)
}

func (s *Service) Save(ctx context.Context, req *SaveRequest) (int64, error) {
	create := &store.CreateConversation{
		Timestamp:   req.Timestamp,
		Metadata:    req.Metadata,
		Participant: req.Participant,
		Message:     req.Message,
	}
	if req.SessionID != "" {
		create.SessionID = &req.SessionID
	}

	conversation, err := s.store.CreateConversation(ctx, create)
	s.metrics.RecordSave(err == nil)
	if err != nil {
		return 0, err
	}

	if !s.backfiller.Enqueue(conversation.ID) {
		s.logger.Warn("backfill queue full, conversation left pending",
			"conversation_id", conversation.ID,
		)
	}
	return conversation.ID, nil
}

func (s *Service) SearchKeyword(ctx context.Context, query string, limit int) ([]*store.Conversation, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	start := time.Now()
	list, err := s.store.SearchConversations(ctx, query, limit)
	s.metrics.RecordSearch(metrics.SearchKeyword, time.Since(start), len(list), err)
	return list, err
}

func (s *Service) SemanticSearch(ctx context.Context, query string, limit int, threshold float64) ([]*retrieval.ScoredConversation, error) {
	return s.engine.SemanticSearch(ctx, query, limit, threshold)
}

func (s *Service) ConversationContext(ctx context.Context, id int64, window int) ([]*ContextEntry, error) {
	if window < 0 {
		window = DefaultContextWindow
	}
	target, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if target.SessionID == nil {
		return []*ContextEntry{{Conversation: target, IsTarget: true}}, nil
	}

	list, err := s.store.ListConversations(ctx, &store.FindConversation{
		SessionID: target.SessionID,
		Ascending: true,
	})
	if err != nil {
		return nil, err
	}

	index := -1
	for i, c := range list {
		if c.ID == id {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, errors.Wrapf(store.ErrConversationNotFound, "id %d", id)
	}

	from, to := max(0, index-window), min(len(list), index+window+1)
	entries := make([]*ContextEntry, 0, to-from)
	for i := from; i < to; i++ {
		entries = append(entries, &ContextEntry{Conversation: list[i], IsTarget: i == index})
	}
	return entries, nil
}

func (s *Service) RecentConversations(ctx context.Context, limit int) ([]*store.Conversation, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return s.store.ListConversations(ctx, &store.FindConversation{Limit: limit})
}

func (s *Service) BackfillEmbedding(ctx context.Context, id int64) (bool, error) {
	filled, err := s.embedAndFill(ctx, id)
	s.metrics.RecordBackfill(backfillOutcome(filled, err))
	return filled, err
}

func (s *Service) BackfillPending(ctx context.Context, limit int) (int, error) {
	pending := false
	list, err := s.store.ListConversations(ctx, &store.FindConversation{
		HasEmbedding: &pending,
		Limit:        limit,
		Ascending:    true,
	})
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, c := range list {
		if err := s.backfiller.EnqueueWait(ctx, c.ID); err != nil {
			s.logger.Warn("backfill interrupted, remaining records stay pending",
				"enqueued", enqueued,
				"pending", len(list),
				"error", err,
			)
			return enqueued, err
		}
		enqueued++
	}
	return enqueued, nil
}

// embedAndFill requests a vector for one pending record and stores it.
// Records that already carry a vector are left untouched.
func (s *Service) embedAndFill(ctx context.Context, id int64) (bool, error) {
	conversation, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return false, err
	}
	if conversation.HasEmbedding() {
		return false, nil
	}

	vec, err := s.embedder.Embed(ctx, conversation.Message)
	if err != nil {
		return false, err
	}
	if err := s.guard.Check(vec); err != nil {
		return false, err
	}

	filled, err := s.store.FillConversationEmbedding(ctx, &store.FillConversationEmbedding{ID: id, Embedding: vec})
	if errors.Is(err, store.ErrDimensionMismatch) {
		return false, fmt.Errorf("%w: %w", embedding.ErrMalformedEmbedding, err)
	}
	if err != nil {
		return false, err
	}
	s.guard.Establish(len(vec))
	return filled, nil
}

func (s *Service) CreateSession(ctx context.Context, req *CreateSessionRequest) (*store.Session, error) {
	return s.store.CreateSession(ctx, &store.CreateSession{
		ID:           shortuuid.New(),
		Kind:         req.Kind,
		Topic:        req.Topic,
		Participants: req.Participants,
	})
}

func (s *Service) CloseSession(ctx context.Context, id string) (*store.Session, error) {
	return s.store.CloseSession(ctx, id)
}

func (s *Service) GetSession(ctx context.Context, id string) (*store.Session, error) {
	return s.store.GetSession(ctx, id)
}

func (s *Service) ListActiveSessions(ctx context.Context) ([]*store.Session, error) {
	active := store.SessionStatusActive
	return s.store.ListSessions(ctx, &store.FindSession{Status: &active})
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	conversations, err := s.store.GetConversationStats(ctx)
	if err != nil {
		return nil, err
	}
	sessions, err := s.store.GetSessionStats(ctx)
	if err != nil {
		return nil, err
	}
	dim, err := s.store.GetEmbeddingDimension(ctx)
	if err != nil {
		return nil, err
	}
	entries, hits, misses := s.engine.QueryCacheStats()
	return &Stats{
		MostActiveParticipant: conversations.MostActiveParticipant,
		TotalConversations:    conversations.Total,
		WithEmbedding:         conversations.WithEmbedding,
		WithoutEmbedding:      conversations.WithoutEmbedding,
		TotalSessions:         sessions.Total,
		ActiveSessions:        sessions.Active,
		UniqueParticipants:    conversations.UniqueParticipants,
		MostActiveCount:       conversations.MostActiveCount,
		EmbeddingDimension:    dim,
		QueryCacheEntries:     entries,
		QueryCacheHits:        hits,
		QueryCacheMisses:      misses,
	}, nil
}

func backfillOutcome(filled bool, err error) string {
	switch {
	case err == nil && filled:
		return metrics.OutcomeOK
	case err == nil:
		return metrics.OutcomeSkipped
	case errors.Is(err, embedding.ErrMalformedEmbedding):
		return metrics.OutcomeMalformed
	case errors.Is(err, embedding.ErrEmbeddingUnavailable):
		return metrics.OutcomeUnavailable
	default:
		return metrics.OutcomeError
	}
}
