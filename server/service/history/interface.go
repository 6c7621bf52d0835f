package history

import (
	"context"
	"time"

	"github.com/hrygo/leodock/ai/retrieval"
	"github.com/hrygo/leodock/store"
)

// Log is the conversation log surface shared by the CLI and the HTTP API.
type Log interface {
	// Save appends a conversation and schedules its embedding. The record is
	// committed even when the embedding service is down.
	Save(ctx context.Context, req *SaveRequest) (int64, error)

	// SearchKeyword matches query against message text and metadata values,
	// newest first. It never touches the embedding service.
	SearchKeyword(ctx context.Context, query string, limit int) ([]*store.Conversation, error)

	// SemanticSearch ranks embedded conversations by cosine similarity.
	SemanticSearch(ctx context.Context, query string, limit int, threshold float64) ([]*retrieval.ScoredConversation, error)

	// ConversationContext returns the records of the target's session around it.
	ConversationContext(ctx context.Context, id int64, window int) ([]*ContextEntry, error)

	// RecentConversations returns the latest records, newest first.
	RecentConversations(ctx context.Context, limit int) ([]*store.Conversation, error)

	// BackfillEmbedding embeds one pending record synchronously. It reports
	// false when the record already carried a vector.
	BackfillEmbedding(ctx context.Context, id int64) (bool, error)

	// BackfillPending queues up to limit pending records for embedding,
	// waiting for queue room as needed. A limit of 0 queues all of them.
	BackfillPending(ctx context.Context, limit int) (int, error)

	CreateSession(ctx context.Context, req *CreateSessionRequest) (*store.Session, error)
	CloseSession(ctx context.Context, id string) (*store.Session, error)
	GetSession(ctx context.Context, id string) (*store.Session, error)
	ListActiveSessions(ctx context.Context) ([]*store.Session, error)

	Stats(ctx context.Context) (*Stats, error)
}

// SaveRequest is the input to Save.
type SaveRequest struct {
	Timestamp   time.Time // zero means now
	SessionID   string
	Metadata    map[string]string
	Participant string
	Message     string
}

// CreateSessionRequest is the input to CreateSession.
type CreateSessionRequest struct {
	Kind         string
	Topic        string
	Participants []string
}

// ContextEntry is one record of a context window.
type ContextEntry struct {
	Conversation *store.Conversation
	IsTarget     bool
}

// Stats summarizes the log and the session registry.
type Stats struct {
	MostActiveParticipant string
	TotalConversations    int64
	WithEmbedding         int64
	WithoutEmbedding      int64
	TotalSessions         int64
	ActiveSessions        int64
	UniqueParticipants    int64
	MostActiveCount       int64
	EmbeddingDimension    int
	QueryCacheEntries     int
	QueryCacheHits        int64
	QueryCacheMisses      int64
}
