package store

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Conversation is one immutable message in the append-only log.
// Only Embedding may change after creation, and only from absent to present.
type Conversation struct {
	Timestamp   time.Time
	SessionID   *string // weak reference, never enforced
	Metadata    map[string]string
	Participant string
	Message     string
	Embedding   []float32 // nil while pending
	ID          int64
	CreatedTs   int64
}

// HasEmbedding reports whether the record carries a vector.
func (c *Conversation) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

type CreateConversation struct {
	Timestamp   time.Time // zero means now
	SessionID   *string
	Metadata    map[string]string
	Participant string
	Message     string
}

// Validate checks the create request.
func (c *CreateConversation) Validate() error {
	if strings.TrimSpace(c.Participant) == "" {
		return errors.Wrap(ErrInvalidArgument, "participant is required")
	}
	if c.Message == "" {
		return errors.Wrap(ErrInvalidArgument, "message is required")
	}
	if c.SessionID != nil && *c.SessionID == "" {
		c.SessionID = nil
	}
	return nil
}

// FindConversation is the find condition for conversations. Results are
// ordered by timestamp then id, descending unless Ascending is set.
type FindConversation struct {
	ID           *int64
	SessionID    *string
	HasEmbedding *bool
	Limit        int
	Ascending    bool
}

// FillConversationEmbedding sets the vector of a record whose vector is absent.
type FillConversationEmbedding struct {
	Embedding []float32
	ID        int64
}

// ConversationStats summarizes the log.
type ConversationStats struct {
	MostActiveParticipant string
	Total                 int64
	WithEmbedding         int64
	WithoutEmbedding      int64
	UniqueParticipants    int64
	MostActiveCount       int64
}

// MatchKeyword reports whether query occurs in the message, case-insensitively,
// or failing that in the participant name or any metadata value.
func MatchKeyword(c *Conversation, query string) bool {
	q := strings.ToLower(query)
	if strings.Contains(strings.ToLower(c.Message), q) {
		return true
	}
	if strings.Contains(strings.ToLower(c.Participant), q) {
		return true
	}
	for _, v := range c.Metadata {
		if strings.Contains(strings.ToLower(v), q) {
			return true
		}
	}
	return false
}

// CreateConversation appends a record with an absent embedding.
// Persistence failures are returned as *StorageWriteError.
func (s *Store) CreateConversation(ctx context.Context, create *CreateConversation) (*Conversation, error) {
	if err := create.Validate(); err != nil {
		return nil, err
	}
	if create.Timestamp.IsZero() {
		create.Timestamp = time.Now()
	}
	create.Timestamp = create.Timestamp.UTC().Truncate(time.Microsecond)

	conversation, err := s.driver.CreateConversation(ctx, create)
	if err != nil {
		return nil, NewStorageWriteError("create conversation", err)
	}
	return conversation, nil
}

// GetConversation returns the record with id, or ErrConversationNotFound.
func (s *Store) GetConversation(ctx context.Context, id int64) (*Conversation, error) {
	list, err := s.driver.ListConversations(ctx, &FindConversation{ID: &id, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, errors.Wrapf(ErrConversationNotFound, "id %d", id)
	}
	return list[0], nil
}

func (s *Store) ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error) {
	return s.driver.ListConversations(ctx, find)
}

// ListEmbeddedConversations returns every record that carries a vector.
func (s *Store) ListEmbeddedConversations(ctx context.Context) ([]*Conversation, error) {
	hasEmbedding := true
	return s.driver.ListConversations(ctx, &FindConversation{HasEmbedding: &hasEmbedding})
}

// SearchConversations performs a case-insensitive keyword search, most recent first.
func (s *Store) SearchConversations(ctx context.Context, query string, limit int) ([]*Conversation, error) {
	if limit <= 0 {
		limit = 20
	}
	if query == "" {
		return s.driver.ListConversations(ctx, &FindConversation{Limit: limit})
	}
	return s.driver.SearchConversations(ctx, query, limit)
}

// FillConversationEmbedding stores a vector on a pending record. It returns
// false when the record already had one, ErrConversationNotFound for an
// unknown id and ErrDimensionMismatch when the vector breaks the store's
// single-dimension invariant.
func (s *Store) FillConversationEmbedding(ctx context.Context, fill *FillConversationEmbedding) (bool, error) {
	if len(fill.Embedding) == 0 {
		return false, errors.Wrap(ErrInvalidArgument, "embedding cannot be empty")
	}
	updated, err := s.driver.FillConversationEmbedding(ctx, fill)
	if err != nil && !errors.Is(err, ErrConversationNotFound) && !errors.Is(err, ErrDimensionMismatch) {
		return false, NewStorageWriteError("fill conversation embedding", err)
	}
	return updated, err
}

func (s *Store) GetConversationStats(ctx context.Context) (*ConversationStats, error) {
	return s.driver.GetConversationStats(ctx)
}
