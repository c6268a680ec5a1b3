package web

import (
	"github.com/kozaktomas/face-groups/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	groupHandler := handlers.NewGroupHandler(s.grouper, s.config.Batch.MaxImages)

	s.router.Get("/health", handlers.HealthCheck(s.status))

	s.router.Get(s.config.Server.Route, groupHandler.Welcome)
	s.router.Post(s.config.Server.Route, groupHandler.Group)
}
