package store

import (
	"context"
	"database/sql"
	"time"
)

// Driver is the persistence backend behind Store. Implementations must make
// each create, fill and close atomic with respect to concurrent readers.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	Migrate(ctx context.Context) error

	// Conversation model related methods.
	CreateConversation(ctx context.Context, create *CreateConversation) (*Conversation, error)
	ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error)
	SearchConversations(ctx context.Context, query string, limit int) ([]*Conversation, error)
	FillConversationEmbedding(ctx context.Context, fill *FillConversationEmbedding) (bool, error)
	GetConversationStats(ctx context.Context) (*ConversationStats, error)

	// Session model related methods.
	CreateSession(ctx context.Context, create *CreateSession) (*Session, error)
	ListSessions(ctx context.Context, find *FindSession) ([]*Session, error)
	CloseSession(ctx context.Context, id string, endTime time.Time) (*Session, error)
	GetSessionStats(ctx context.Context) (*SessionStats, error)

	// SystemSetting model related methods.
	GetSystemSetting(ctx context.Context, name string) (string, error)
	UpsertSystemSetting(ctx context.Context, name, value string) error
	EstablishEmbeddingDimension(ctx context.Context, dim int) (int, error)
}
