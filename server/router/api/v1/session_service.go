package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/leodock/server/service/history"
)

func (s *APIV1Service) CreateSession(c echo.Context) error {
	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Kind == "" {
		return badRequest(c, "kind is required")
	}

	session, err := s.Log.CreateSession(c.Request().Context(), &history.CreateSessionRequest{
		Kind:         req.Kind,
		Topic:        req.Topic,
		Participants: req.Participants,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, convertSessionFromStore(session))
}

func (s *APIV1Service) CloseSession(c echo.Context) error {
	session, err := s.Log.CloseSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, convertSessionFromStore(session))
}

func (s *APIV1Service) GetSession(c echo.Context) error {
	session, err := s.Log.GetSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, convertSessionFromStore(session))
}

func (s *APIV1Service) ListActiveSessions(c echo.Context) error {
	list, err := s.Log.ListActiveSessions(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	out := make([]Session, 0, len(list))
	for _, session := range list {
		out = append(out, convertSessionFromStore(session))
	}
	return c.JSON(http.StatusOK, out)
}
