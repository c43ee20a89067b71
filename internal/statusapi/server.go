package statusapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rickgao/papertrade/internal/connection"
	"github.com/rickgao/papertrade/internal/feed"
	"github.com/rickgao/papertrade/internal/model"
	"github.com/rickgao/papertrade/internal/version"
)

// StatsSource reports realtime connection statistics. connection.Manager implements it.
type StatsSource interface {
	Stats() connection.ManagerStats
}

// IdentitySource reports the signed-in user. *session.Provider implements it.
type IdentitySource interface {
	CurrentUser() (*model.User, bool)
}

// View renders the current snapshot of one feed.
type View func() SnapshotView

// SnapshotView is the JSON form of a feed snapshot.
type SnapshotView struct {
	Feed      string    `json:"feed"`
	Data      any       `json:"data"`
	Loaded    bool      `json:"loaded"`
	IsLoading bool      `json:"is_loading"`
	Error     string    `json:"error,omitempty"`
	Version   uint64    `json:"version"`
	Source    string    `json:"source,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// FeedView adapts a feed to a View.
func FeedView[T any](f *feed.Feed[T]) View {
	return func() SnapshotView {
		snap := f.Snapshot()
		v := SnapshotView{
			Feed:      f.Name(),
			Data:      snap.Data,
			Loaded:    snap.Loaded,
			IsLoading: snap.IsLoading,
			Version:   snap.Version,
			Source:    string(snap.Source),
			UpdatedAt: snap.UpdatedAt,
		}
		if snap.Err != nil {
			v.Error = snap.Err.Error()
		}
		return v
	}
}

// Server is the status HTTP server.
type Server struct {
	addr     string
	logger   *slog.Logger
	engine   *gin.Engine
	stats    StatsSource
	identity IdentitySource

	mu       sync.RWMutex
	views    map[string]View
	srv      *http.Server
	listener net.Listener
}

// New creates a server. stats and identity may be nil.
func New(addr string, stats StatsSource, identity IdentitySource, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		addr:     addr,
		logger:   logger.With("component", "statusapi"),
		engine:   gin.New(),
		stats:    stats,
		identity: identity,
		views:    make(map[string]View),
	}

	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes()
	return s
}

// Register exposes a feed under /snapshots/name.
func (s *Server) Register(name string, view View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views[name] = view
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.getHealth)
	s.engine.GET("/snapshots", s.listSnapshots)
	s.engine.GET("/snapshots/:feed", s.getSnapshot)
}

// requestLogger logs each request at debug level.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}

	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.mu.Lock()
	s.srv = srv
	s.listener = ln
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server failed", "error", err)
		}
	}()

	s.logger.Info("status api listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.srv
	s.mu.RUnlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status     string                   `json:"status"`
	Version    string                   `json:"version"`
	UserID     *int64                   `json:"user_id"`
	Connection *connection.ManagerStats `json:"connection,omitempty"`
	Feeds      []string                 `json:"feeds"`
}

func (s *Server) getHealth(c *gin.Context) {
	resp := healthResponse{
		Status:  "ok",
		Version: version.Version,
		Feeds:   s.feedNames(),
	}

	if s.identity != nil {
		if user, ok := s.identity.CurrentUser(); ok {
			id := user.ID
			resp.UserID = &id
		}
	}
	if s.stats != nil {
		stats := s.stats.Stats()
		resp.Connection = &stats
		if stats.State != connection.StateConnected {
			resp.Status = "degraded"
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) listSnapshots(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"feeds": s.feedNames()})
}

func (s *Server) getSnapshot(c *gin.Context) {
	name := c.Param("feed")

	s.mu.RLock()
	view, ok := s.views[name]
	s.mu.RUnlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": fmt.Sprintf("unknown feed %q", name)})
		return
	}

	c.JSON(http.StatusOK, view())
}

func (s *Server) feedNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.views))
	for name := range s.views {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
