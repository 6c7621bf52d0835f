package v1

import (
	"github.com/labstack/echo/v4"

	"github.com/hrygo/leodock/internal/profile"
	"github.com/hrygo/leodock/server/service/history"
)

type APIV1Service struct {
	Profile *profile.Profile
	Log     history.Log
}

func NewAPIV1Service(profile *profile.Profile, log history.Log) *APIV1Service {
	return &APIV1Service{
		Profile: profile,
		Log:     log,
	}
}

// RegisterRoutes mounts the JSON API under /api/v1.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")

	g.POST("/conversations", s.SaveConversation)
	g.GET("/conversations/search", s.SearchConversations)
	g.GET("/conversations/semantic", s.SemanticSearch)
	g.GET("/conversations/recent", s.RecentConversations)
	g.GET("/conversations/:id/context", s.ConversationContext)

	g.POST("/sessions", s.CreateSession)
	g.GET("/sessions", s.ListActiveSessions)
	g.GET("/sessions/:id", s.GetSession)
	g.POST("/sessions/:id/close", s.CloseSession)

	g.GET("/stats", s.GetStats)
	g.POST("/backfill", s.Backfill)
}
