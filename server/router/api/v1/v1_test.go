package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/leodock/ai/embedding"
	"github.com/hrygo/leodock/ai/retrieval"
	"github.com/hrygo/leodock/internal/profile"
	"github.com/hrygo/leodock/server/service/history"
	"github.com/hrygo/leodock/store"
)

type mockLog struct {
	mock.Mock
}

func (m *mockLog) Save(ctx context.Context, req *history.SaveRequest) (int64, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockLog) SearchKeyword(ctx context.Context, query string, limit int) ([]*store.Conversation, error) {
	args := m.Called(ctx, query, limit)
	list, _ := args.Get(0).([]*store.Conversation)
	return list, args.Error(1)
}

func (m *mockLog) SemanticSearch(ctx context.Context, query string, limit int, threshold float64) ([]*retrieval.ScoredConversation, error) {
	args := m.Called(ctx, query, limit, threshold)
	list, _ := args.Get(0).([]*retrieval.ScoredConversation)
	return list, args.Error(1)
}

func (m *mockLog) ConversationContext(ctx context.Context, id int64, window int) ([]*history.ContextEntry, error) {
	args := m.Called(ctx, id, window)
	list, _ := args.Get(0).([]*history.ContextEntry)
	return list, args.Error(1)
}

func (m *mockLog) RecentConversations(ctx context.Context, limit int) ([]*store.Conversation, error) {
	args := m.Called(ctx, limit)
	list, _ := args.Get(0).([]*store.Conversation)
	return list, args.Error(1)
}

func (m *mockLog) BackfillEmbedding(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockLog) BackfillPending(ctx context.Context, limit int) (int, error) {
	args := m.Called(ctx, limit)
	return args.Int(0), args.Error(1)
}

func (m *mockLog) CreateSession(ctx context.Context, req *history.CreateSessionRequest) (*store.Session, error) {
	args := m.Called(ctx, req)
	session, _ := args.Get(0).(*store.Session)
	return session, args.Error(1)
}

func (m *mockLog) CloseSession(ctx context.Context, id string) (*store.Session, error) {
	args := m.Called(ctx, id)
	session, _ := args.Get(0).(*store.Session)
	return session, args.Error(1)
}

func (m *mockLog) GetSession(ctx context.Context, id string) (*store.Session, error) {
	args := m.Called(ctx, id)
	session, _ := args.Get(0).(*store.Session)
	return session, args.Error(1)
}

func (m *mockLog) ListActiveSessions(ctx context.Context) ([]*store.Session, error) {
	args := m.Called(ctx)
	list, _ := args.Get(0).([]*store.Session)
	return list, args.Error(1)
}

func (m *mockLog) Stats(ctx context.Context) (*history.Stats, error) {
	args := m.Called(ctx)
	stats, _ := args.Get(0).(*history.Stats)
	return stats, args.Error(1)
}

func newTestEcho(log history.Log) *echo.Echo {
	e := echo.New()
	NewAPIV1Service(&profile.Profile{Mode: "dev"}, log).RegisterRoutes(e)
	return e
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestSaveConversation(t *testing.T) {
	log := &mockLog{}
	log.On("Save", mock.Anything, &history.SaveRequest{
		Participant: "leo",
		Message:     "hello",
		SessionID:   "s1",
		Metadata:    map[string]string{"source": "api"},
	}).Return(int64(7), nil)

	rec := do(newTestEcho(log), http.MethodPost, "/api/v1/conversations",
		`{"participant":"leo","message":"hello","session_id":"s1","metadata":{"source":"api"}}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"id":7}`, rec.Body.String())
	log.AssertExpectations(t)
}

func TestSaveConversation_Invalid(t *testing.T) {
	log := &mockLog{}
	log.On("Save", mock.Anything, mock.Anything).Return(int64(0), errors.Wrap(store.ErrInvalidArgument, "message is required"))

	rec := do(newTestEcho(log), http.MethodPost, "/api/v1/conversations", `{"participant":"leo"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(newTestEcho(log), http.MethodPost, "/api/v1/conversations", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchConversations(t *testing.T) {
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	log := &mockLog{}
	log.On("SearchKeyword", mock.Anything, "browser", 5).Return([]*store.Conversation{
		{ID: 2, Participant: "leo", Message: "browser bug", Timestamp: ts, Embedding: []float32{1}},
	}, nil)

	rec := do(newTestEcho(log), http.MethodGet, "/api/v1/conversations/search?q=browser&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.EqualValues(t, 2, got[0].ID)
	assert.True(t, got[0].HasEmbedding)

	rec = do(newTestEcho(log), http.MethodGet, "/api/v1/conversations/search?q=browser&limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSemanticSearch(t *testing.T) {
	log := &mockLog{}
	log.On("SemanticSearch", mock.Anything, "browser", 10, defaultSemanticThreshold).
		Return(nil, errors.Wrap(embedding.ErrEmbeddingUnavailable, "connection refused"))
	log.On("SemanticSearch", mock.Anything, "browser", 3, 0.5).
		Return([]*retrieval.ScoredConversation{{Conversation: &store.Conversation{ID: 1, Message: "browser"}, Similarity: 0.9}}, nil)

	e := newTestEcho(log)

	rec := do(e, http.MethodGet, "/api/v1/conversations/semantic?q=browser", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(e, http.MethodGet, "/api/v1/conversations/semantic?q=browser&limit=3&threshold=0.5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []ScoredConversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.InDelta(t, 0.9, got[0].Similarity, 1e-9)

	rec = do(e, http.MethodGet, "/api/v1/conversations/semantic", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(e, http.MethodGet, "/api/v1/conversations/semantic?q=x&threshold=high", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConversationContext(t *testing.T) {
	log := &mockLog{}
	log.On("ConversationContext", mock.Anything, int64(42), history.DefaultContextWindow).
		Return(nil, errors.Wrap(store.ErrConversationNotFound, "id 42"))

	e := newTestEcho(log)
	assert.Equal(t, http.StatusNotFound, do(e, http.MethodGet, "/api/v1/conversations/42/context", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodGet, "/api/v1/conversations/abc/context", "").Code)
}

func TestSessions(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	session := &store.Session{ID: "abc", Kind: "debug", Status: store.SessionStatusActive, StartTime: start, Participants: []string{"leo"}}

	log := &mockLog{}
	log.On("CreateSession", mock.Anything, &history.CreateSessionRequest{Kind: "debug", Participants: []string{"leo"}}).Return(session, nil)
	log.On("CloseSession", mock.Anything, "missing").Return(nil, errors.Wrap(store.ErrSessionNotFound, "missing"))
	log.On("CloseSession", mock.Anything, "broken").Return(nil, store.NewStorageWriteError("close session", errors.New("disk full")))
	log.On("ListActiveSessions", mock.Anything).Return([]*store.Session{session}, nil)

	e := newTestEcho(log)

	rec := do(e, http.MethodPost, "/api/v1/sessions", `{"kind":"debug","participants":["leo"]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "abc", created.ID)
	assert.Equal(t, "active", created.Status)

	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodPost, "/api/v1/sessions", `{}`).Code)
	assert.Equal(t, http.StatusNotFound, do(e, http.MethodPost, "/api/v1/sessions/missing/close", "").Code)
	assert.Equal(t, http.StatusInternalServerError, do(e, http.MethodPost, "/api/v1/sessions/broken/close", "").Code)

	rec = do(e, http.MethodGet, "/api/v1/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestBackfill(t *testing.T) {
	log := &mockLog{}
	log.On("BackfillPending", mock.Anything, 0).Return(3, nil)
	log.On("BackfillEmbedding", mock.Anything, int64(9)).Return(false, embedding.ErrMalformedEmbedding)
	log.On("BackfillEmbedding", mock.Anything, int64(10)).Return(true, nil)
	log.On("BackfillEmbedding", mock.Anything, int64(11)).Return(false, nil)

	e := newTestEcho(log)

	rec := do(e, http.MethodPost, "/api/v1/backfill", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"enqueued":3}`, rec.Body.String())

	rec = do(e, http.MethodPost, "/api/v1/backfill", `{"id":9}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = do(e, http.MethodPost, "/api/v1/backfill", `{"id":10}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"enqueued":0,"filled":true}`, rec.Body.String())

	// Already embedded records are reported as such.
	rec = do(e, http.MethodPost, "/api/v1/backfill", `{"id":11}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"enqueued":0,"filled":false}`, rec.Body.String())
	log.AssertExpectations(t)
}

func TestStatusFromError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errors.Wrap(store.ErrInvalidArgument, "x"), http.StatusBadRequest},
		{store.ErrSessionNotFound, http.StatusNotFound},
		{store.ErrConversationNotFound, http.StatusNotFound},
		{embedding.ErrEmbeddingUnavailable, http.StatusServiceUnavailable},
		{embedding.ErrMalformedEmbedding, http.StatusBadGateway},
		{store.NewStorageWriteError("save", errors.New("io")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFromError(tt.err))
		})
	}
}
