// Package api is the HTTP/WS Surface (C14): authentication, input
// validation, and delegation to the other components. It holds no business
// logic of its own (spec §4.14).
//
// Grounded on the teacher's pkg/api/server.go: an *echo.Echo wrapped in a
// Server struct constructed once with its required collaborators, routes
// registered in one setupRoutes pass, Start/Shutdown wrapping a
// *http.Server.
package api

import (
	"context"
	"net"
	"net/http"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/aion-systems/aion-core/pkg/config"
	"github.com/aion-systems/aion-core/pkg/custody"
	"github.com/aion-systems/aion-core/pkg/knowledge"
	"github.com/aion-systems/aion-core/pkg/ledger"
	"github.com/aion-systems/aion-core/pkg/proposal"
	"github.com/aion-systems/aion-core/pkg/scheduler"
	"github.com/aion-systems/aion-core/pkg/sources"
	"github.com/aion-systems/aion-core/pkg/store"
)

// bodyLimit caps request bodies well above any legitimate payload this
// surface accepts (proposal actions, source URLs) while still rejecting
// multi-MB garbage at the HTTP read level, the same role the teacher's
// BodyLimit plays ahead of its alert-ingestion endpoint.
const bodyLimit = 512 * 1024

// Server is the HTTP/WS Surface.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	cfg       *config.Manager
	store     store.Store
	custody   *custody.Engine
	proposals *proposal.Manager
	ledger    *ledger.Ledger
	sources   *sources.Registry
	scheduler *scheduler.Scheduler
	knowledge *knowledge.Store
	hub       *Hub
}

// New constructs a Server with every collaborator wired and routes registered.
func New(
	cfg *config.Manager,
	st store.Store,
	ce *custody.Engine,
	pm *proposal.Manager,
	led *ledger.Ledger,
	reg *sources.Registry,
	sched *scheduler.Scheduler,
	kn *knowledge.Store,
	hub *Hub,
) *Server {
	e := echo.New()
	s := &Server{
		echo:      e,
		cfg:       cfg,
		store:     st,
		custody:   ce,
		proposals: pm,
		ledger:    led,
		sources:   reg,
		scheduler: sched,
		knowledge: kn,
		hub:       hub,
	}
	s.setupRoutes()
	return s
}

// Start starts the HTTP server on the given address (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener, such
// as one bound to a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(bodyLimit))

	g := s.echo.Group("/api", bearerAuth(s.cfg.Get().HTTP.BearerToken))

	g.GET("/agents/status", s.agentsStatusHandler)
	g.POST("/agents/:kind/pause", s.agentPauseHandler)
	g.POST("/agents/:kind/resume", s.agentResumeHandler)
	g.POST("/agents/:kind/trigger", s.agentTriggerHandler)

	g.POST("/custody/test", s.custodyTestHandler)
	g.GET("/custody/analytics", s.custodyAnalyticsHandler)

	g.GET("/proposals", s.proposalsListHandler)
	g.POST("/proposals/:id/approve", s.proposalApproveHandler)
	g.POST("/proposals/:id/reject", s.proposalRejectHandler)
	g.POST("/proposals/:id/execute", s.proposalExecuteHandler)

	g.GET("/tokens/usage", s.tokensUsageHandler)
	g.POST("/tokens/reset", s.tokensResetHandler)

	g.GET("/sources", s.sourcesListHandler)
	g.POST("/sources", s.sourcesAddHandler)
	g.DELETE("/sources", s.sourcesRemoveHandler)

	g.GET("/knowledge", s.knowledgeQueryHandler)

	g.GET("/ws/events", s.wsEventsHandler)
}

func (s *Server) wsEventsHandler(c *echo.Context) error {
	conn, err := wsAccept(c)
	if err != nil {
		return err
	}
	s.hub.HandleConnection(c.Request().Context(), conn)
	return nil
}
