package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/five82/flowwatch/internal/entity"
	"github.com/five82/flowwatch/internal/state"
)

// Source provides snapshots and change notifications. *coordinator.Coordinator
// satisfies it.
type Source interface {
	Snapshot() state.Snapshot
	Subscribe(fn func(state.Snapshot)) func()
}

// Actions performs writes against the server. *entity.Controller satisfies it.
type Actions interface {
	SetNodeEnabled(ctx context.Context, uid string, enabled bool) error
	Pause(ctx context.Context, minutes int) error
	Resume(ctx context.Context) error
	ForceRefresh()
}

// Options configure a Server.
type Options struct {
	Source       Source
	Registry     *entity.Registry
	Actions      Actions
	Logger       *zap.Logger
	AllowOrigins []string // empty allows any origin
	Now          func() time.Time
}

// Server exposes snapshots and entity states over HTTP and a websocket stream.
type Server struct {
	source   Source
	registry *entity.Registry
	actions  Actions
	logger   *zap.Logger
	now      func() time.Time
	engine   *gin.Engine
	upgrader websocket.Upgrader
}

// New builds the gin engine and registers every route.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger))

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(opts.AllowOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = opts.AllowOrigins
	}
	engine.Use(cors.New(corsCfg))

	s := &Server{
		source:   opts.Source,
		registry: opts.Registry,
		actions:  opts.Actions,
		logger:   logger.Named("server"),
		now:      now,
		engine:   engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", s.health)

	api := s.engine.Group("/api")
	{
		api.GET("/snapshot", s.snapshot)
		api.GET("/entities", s.entities)
		api.GET("/entities/:id", s.entityByID)
		api.GET("/stream", s.stream)

		api.POST("/refresh", s.refresh)
		api.POST("/pause", s.pause)
		api.POST("/resume", s.resume)
		api.PUT("/nodes/:uid/enabled", s.setNodeEnabled)
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("address", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) states() []entity.State {
	return s.registry.Build(s.source.Snapshot(), s.now())
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	logger = logger.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Int("bytes", c.Writer.Size()),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote_addr", c.ClientIP()),
		)
	}
}
