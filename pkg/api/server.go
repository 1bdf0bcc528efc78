// Package api is the HTTP layer: routing, auth, request validation, and the
// mapping from service errors to the response envelope.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	echo "github.com/labstack/echo/v5"

	"github.com/agora-discourse/agora/pkg/auth"
	"github.com/agora-discourse/agora/pkg/blocklist"
	"github.com/agora-discourse/agora/pkg/config"
	"github.com/agora-discourse/agora/pkg/queue"
	"github.com/agora-discourse/agora/pkg/services"
)

// Dependencies carries everything the server needs wired in.
type Dependencies struct {
	DB            *pgxpool.Pool
	Users         *services.UserService
	Content       *services.ContentService
	Votes         *services.VoteService
	Feeds         *services.FeedService
	Follows       *services.FollowService
	Notifications *services.NotificationService
	Search        *services.SearchService
	Arguments     *services.ArgumentService
	Analysis      *services.AnalysisService
	AuthService   *auth.Service
	Tokens        *auth.TokenIssuer
	Blocklist     *blocklist.Blocklist
	Workers       *queue.WorkerPool
}

// Server is the API server.
type Server struct {
	cfg        *config.Config
	echo       *echo.Echo
	httpServer *http.Server
	logger     *slog.Logger

	db            *pgxpool.Pool
	users         *services.UserService
	content       *services.ContentService
	votes         *services.VoteService
	feeds         *services.FeedService
	follows       *services.FollowService
	notifications *services.NotificationService
	search        *services.SearchService
	arguments     *services.ArgumentService
	analysis      *services.AnalysisService
	authService   *auth.Service
	tokens        *auth.TokenIssuer
	blocklist     *blocklist.Blocklist
	workers       *queue.WorkerPool
}

// NewServer creates the API server and registers all routes.
func NewServer(cfg *config.Config, deps Dependencies) *Server {
	s := &Server{
		cfg:           cfg,
		logger:        slog.Default().With("component", "api"),
		db:            deps.DB,
		users:         deps.Users,
		content:       deps.Content,
		votes:         deps.Votes,
		feeds:         deps.Feeds,
		follows:       deps.Follows,
		notifications: deps.Notifications,
		search:        deps.Search,
		arguments:     deps.Arguments,
		analysis:      deps.Analysis,
		authService:   deps.AuthService,
		tokens:        deps.Tokens,
		blocklist:     deps.Blocklist,
		workers:       deps.Workers,
	}

	e := echo.New()
	e.HTTPErrorHandler = errorHandler
	e.Use(securityHeaders())
	e.Use(s.blocklistGuard())
	e.Use(s.requestTimeout())

	s.registerRoutes(e)
	s.echo = e
	return s
}

func (s *Server) registerRoutes(e *echo.Echo) {
	e.GET("/health", s.healthHandler)

	internal := e.Group("/internal", s.internalSecretGuard())
	internal.POST("/block-ip", s.blockIPHandler)
	internal.GET("/blocked-ips", s.blockedIPsHandler)

	api := e.Group("/api/v1")
	api.POST("/auth/service", s.serviceTokenHandler)

	authed := api.Group("", s.requireAuth())
	authed.POST("/posts", s.createPostHandler)
	authed.GET("/posts/:id", s.getPostHandler)
	authed.DELETE("/posts/:id", s.deletePostHandler)
	authed.POST("/posts/:id/replies", s.createReplyHandler)
	authed.GET("/posts/:id/replies", s.listRepliesHandler)
	authed.GET("/replies/:id", s.getReplyHandler)
	authed.DELETE("/replies/:id", s.deleteReplyHandler)

	authed.POST("/votes", s.voteHandler)
	authed.DELETE("/votes", s.unvoteHandler)

	authed.GET("/feed", s.feedHandler)
	authed.GET("/search", s.searchHandler)

	authed.POST("/follows/:id", s.followHandler)
	authed.DELETE("/follows/:id", s.unfollowHandler)
	authed.GET("/users/:id/followers", s.listFollowersHandler)
	authed.GET("/users/:id/following", s.listFollowingHandler)

	authed.GET("/notifications", s.listNotificationsHandler)
	authed.POST("/notifications/read", s.markNotificationsReadHandler)

	authed.GET("/arguments/posts/:id/adus", s.listADUsHandler)
	authed.GET("/arguments/claims/:id", s.getCanonicalClaimHandler)
	authed.GET("/arguments/claims/:id/related", s.listADURelationsHandler)
	authed.GET("/arguments/canonical-claims/:id/related-posts", s.relatedPostsHandler)
}

// Start runs the HTTP server until Shutdown or a listener error.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("API server listening", "addr", s.cfg.Server.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the routing tree, used by tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
