package v1

import (
	"time"

	"github.com/hrygo/leodock/ai/retrieval"
	"github.com/hrygo/leodock/server/service/history"
	"github.com/hrygo/leodock/store"
)

type Conversation struct {
	Timestamp    time.Time         `json:"timestamp"`
	SessionID    *string           `json:"session_id,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Participant  string            `json:"participant"`
	Message      string            `json:"message"`
	ID           int64             `json:"id"`
	HasEmbedding bool              `json:"has_embedding"`
}

type ScoredConversation struct {
	Conversation
	Similarity float64 `json:"similarity"`
}

type ContextEntry struct {
	Conversation
	IsTarget bool `json:"is_target"`
}

type Session struct {
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	ID           string     `json:"id"`
	Kind         string     `json:"kind"`
	Topic        string     `json:"topic,omitempty"`
	Status       string     `json:"status"`
	Participants []string   `json:"participants"`
}

type Stats struct {
	MostActiveParticipant string `json:"most_active_participant,omitempty"`
	TotalConversations    int64  `json:"total_conversations"`
	WithEmbedding         int64  `json:"with_embedding"`
	WithoutEmbedding      int64  `json:"without_embedding"`
	TotalSessions         int64  `json:"total_sessions"`
	ActiveSessions        int64  `json:"active_sessions"`
	UniqueParticipants    int64  `json:"unique_participants"`
	MostActiveCount       int64  `json:"most_active_count"`
	EmbeddingDimension    int    `json:"embedding_dimension"`
	QueryCacheEntries     int    `json:"query_cache_entries"`
	QueryCacheHits        int64  `json:"query_cache_hits"`
	QueryCacheMisses      int64  `json:"query_cache_misses"`
}

type SaveConversationRequest struct {
	Timestamp   *time.Time        `json:"timestamp,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Participant string            `json:"participant"`
	Message     string            `json:"message"`
	SessionID   string            `json:"session_id,omitempty"`
}

type SaveConversationResponse struct {
	ID int64 `json:"id"`
}

type CreateSessionRequest struct {
	Kind         string   `json:"kind"`
	Topic        string   `json:"topic,omitempty"`
	Participants []string `json:"participants"`
}

type BackfillRequest struct {
	ID    *int64 `json:"id,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type BackfillResponse struct {
	Enqueued int   `json:"enqueued"`
	Filled   *bool `json:"filled,omitempty"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func convertConversationFromStore(c *store.Conversation) Conversation {
	return Conversation{
		Timestamp:    c.Timestamp,
		SessionID:    c.SessionID,
		Metadata:     c.Metadata,
		Participant:  c.Participant,
		Message:      c.Message,
		ID:           c.ID,
		HasEmbedding: c.HasEmbedding(),
	}
}

func convertConversationsFromStore(list []*store.Conversation) []Conversation {
	out := make([]Conversation, 0, len(list))
	for _, c := range list {
		out = append(out, convertConversationFromStore(c))
	}
	return out
}

func convertScoredFromRetrieval(list []*retrieval.ScoredConversation) []ScoredConversation {
	out := make([]ScoredConversation, 0, len(list))
	for _, r := range list {
		out = append(out, ScoredConversation{
			Conversation: convertConversationFromStore(r.Conversation),
			Similarity:   r.Similarity,
		})
	}
	return out
}

func convertContextFromHistory(list []*history.ContextEntry) []ContextEntry {
	out := make([]ContextEntry, 0, len(list))
	for _, e := range list {
		out = append(out, ContextEntry{
			Conversation: convertConversationFromStore(e.Conversation),
			IsTarget:     e.IsTarget,
		})
	}
	return out
}

func convertSessionFromStore(s *store.Session) Session {
	participants := s.Participants
	if participants == nil {
		participants = []string{}
	}
	return Session{
		StartTime:    s.StartTime,
		EndTime:      s.EndTime,
		ID:           s.ID,
		Kind:         s.Kind,
		Topic:        s.Topic,
		Status:       string(s.Status),
		Participants: participants,
	}
}

func convertStatsFromHistory(s *history.Stats) Stats {
	return Stats{
		MostActiveParticipant: s.MostActiveParticipant,
		TotalConversations:    s.TotalConversations,
		WithEmbedding:         s.WithEmbedding,
		WithoutEmbedding:      s.WithoutEmbedding,
		TotalSessions:         s.TotalSessions,
		ActiveSessions:        s.ActiveSessions,
		UniqueParticipants:    s.UniqueParticipants,
		MostActiveCount:       s.MostActiveCount,
		EmbeddingDimension:    s.EmbeddingDimension,
		QueryCacheEntries:     s.QueryCacheEntries,
		QueryCacheHits:        s.QueryCacheHits,
		QueryCacheMisses:      s.QueryCacheMisses,
	}
}
