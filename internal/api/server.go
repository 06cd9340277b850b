package api

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/iskrim46/ogurec/dashboard"
	"github.com/iskrim46/ogurec/internal/config"
	"github.com/iskrim46/ogurec/internal/db"
	"github.com/iskrim46/ogurec/internal/events"
	"github.com/iskrim46/ogurec/internal/health"
	intnet "github.com/iskrim46/ogurec/internal/network"
	"github.com/iskrim46/ogurec/internal/relay"
	"github.com/iskrim46/ogurec/internal/util"
)

// SessionSource is what the API needs from the session listener.
type SessionSource interface {
	Count() int
	Sessions() []relay.SessionInfo
	Session(id string) (relay.SessionInfo, error)
	Kick(id, reason string) error
}

// HealthSource reports the last upstream check.
type HealthSource interface {
	Status() health.Status
}

// Deps are the components the API reports on. Nil members disable the
// routes that need them.
type Deps struct {
	Version  string
	Config   *config.Config
	Sessions SessionSource
	Journal  *db.Journal
	Health   HealthSource
	Bus      *events.EventBus
	Gatherer prometheus.Gatherer
}

// Server is the admin REST API.
type Server struct {
	cfg     config.APIConfig
	deps    Deps
	started time.Time
	logger  zerolog.Logger

	stream     *Stream
	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates an API server and builds its routes.
func NewServer(cfg config.APIConfig, deps Deps) *Server {
	logger := util.ComponentLogger("api")
	if logger.GetLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:     cfg,
		deps:    deps,
		started: time.Now(),
		logger:  logger,
	}
	if deps.Bus != nil {
		s.stream = NewStream(deps.Bus, cfg.AllowedOrigins, logger)
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	lc := intnet.ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("API server error: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("REST API server starting")

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if s.stream != nil {
			s.stream.Close()
		}
		s.httpServer.Shutdown(shutdownCtx)
	})
	defer stop()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("API server error: %w", err)
	}
	return nil
}

func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLogger(s.logger))
	router.Use(SecurityHeaders())

	allowedOrigins := s.cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	rateLimiter := NewRateLimiter(s.cfg.RateLimitRPS)
	router.Use(rateLimiter.Middleware())

	api := router.Group("/api")
	{
		api.GET("/ping", s.handlePing)
		api.GET("/status", s.handleStatus)
		api.GET("/health", s.handleHealth)
		api.GET("/packets", s.handlePackets)
		api.GET("/config", s.handleGetConfig)

		api.GET("/sessions", s.handleSessions)
		api.GET("/sessions/:id", s.handleSession)
		api.POST("/sessions/:id/kick", s.handleKick)

		api.GET("/journal", s.handleJournal)
		api.GET("/journal/sessions", s.handleJournalSessions)

		if s.stream != nil {
			api.GET("/events/ws", gin.WrapF(s.stream.ServeHTTP))
		}
	}

	if s.deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
	}

	if page, err := fs.ReadFile(dashboard.FS(), "index.html"); err == nil {
		router.GET("/", func(c *gin.Context) {
			c.Data(http.StatusOK, "text/html; charset=utf-8", page)
		})
	} else {
		s.logger.Warn().Err(err).Msg("monitor page not embedded")
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
	})

	return router
}
