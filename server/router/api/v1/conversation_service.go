package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/leodock/server/service/history"
	"github.com/hrygo/leodock/store"
)

const defaultSemanticThreshold = 0.3

func (s *APIV1Service) SaveConversation(c echo.Context) error {
	var req SaveConversationRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	save := &history.SaveRequest{
		Metadata:    store.WithSource(req.Metadata, "api"),
		Participant: req.Participant,
		Message:     req.Message,
		SessionID:   req.SessionID,
	}
	if req.Timestamp != nil {
		save.Timestamp = *req.Timestamp
	}

	id, err := s.Log.Save(c.Request().Context(), save)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, SaveConversationResponse{ID: id})
}

func (s *APIV1Service) SearchConversations(c echo.Context) error {
	limit, err := queryInt(c, "limit", history.DefaultSearchLimit)
	if err != nil {
		return badRequest(c, err.Error())
	}
	list, err := s.Log.SearchKeyword(c.Request().Context(), c.QueryParam("q"), limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, convertConversationsFromStore(list))
}

func (s *APIV1Service) SemanticSearch(c echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return badRequest(c, "q is required")
	}
	limit, err := queryInt(c, "limit", 10)
	if err != nil {
		return badRequest(c, err.Error())
	}
	threshold := defaultSemanticThreshold
	if raw := c.QueryParam("threshold"); raw != "" {
		if threshold, err = strconv.ParseFloat(raw, 64); err != nil {
			return badRequest(c, "threshold must be a number")
		}
	}

	results, err := s.Log.SemanticSearch(c.Request().Context(), query, limit, threshold)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, convertScoredFromRetrieval(results))
}

func (s *APIV1Service) RecentConversations(c echo.Context) error {
	limit, err := queryInt(c, "limit", history.DefaultRecentLimit)
	if err != nil {
		return badRequest(c, err.Error())
	}
	list, err := s.Log.RecentConversations(c.Request().Context(), limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, convertConversationsFromStore(list))
}

func (s *APIV1Service) ConversationContext(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return badRequest(c, "id must be an integer")
	}
	window, err := queryInt(c, "window", history.DefaultContextWindow)
	if err != nil {
		return badRequest(c, err.Error())
	}
	entries, err := s.Log.ConversationContext(c.Request().Context(), id, window)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, convertContextFromHistory(entries))
}

func (s *APIV1Service) Backfill(c echo.Context) error {
	var req BackfillRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	ctx := c.Request().Context()
	if req.ID != nil {
		filled, err := s.Log.BackfillEmbedding(ctx, *req.ID)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, BackfillResponse{Filled: &filled})
	}

	enqueued, err := s.Log.BackfillPending(ctx, req.Limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, BackfillResponse{Enqueued: enqueued})
}

func (s *APIV1Service) GetStats(c echo.Context) error {
	stats, err := s.Log.Stats(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, convertStatsFromHistory(stats))
}

func queryInt(c echo.Context, name string, fallback int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.Errorf("%s must be a non-negative integer", name)
	}
	return v, nil
}
