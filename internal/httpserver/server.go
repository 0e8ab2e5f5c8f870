// Package httpserver serves the metrics snapshot, run history and the static
// dashboard.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tinytelemetry/satis/internal/model"
	"github.com/tinytelemetry/satis/internal/snapshot"
)

const (
	defaultAddr          = "127.0.0.1:8000"
	defaultRunsLimit     = 20
	defaultPatternsLimit = 10
	maxRunsLimit         = 500
	dashboardPage        = "dashboard.html"
)

// Config holds the server parameters.
type Config struct {
	Addr         string
	SnapshotPath string
	DashboardDir string
}

// Server provides the dashboard HTTP API.
type Server struct {
	cfg       Config
	runs      model.RunReader
	logger    zerolog.Logger
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a server. runs may be nil when history is disabled.
func NewServer(cfg Config, runs model.RunReader, logger zerolog.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if cfg.SnapshotPath == "" {
		cfg.SnapshotPath = model.DefaultOutput
	}
	if cfg.DashboardDir == "" {
		cfg.DashboardDir = filepath.Dir(cfg.SnapshotPath)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:       cfg,
		runs:      runs,
		logger:    logger.With().Str("component", "httpserver").Logger(),
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/api/health", s.handleHealth)
	r.GET("/api/metrics", s.handleMetrics)
	r.GET("/api/runs", s.handleRuns)
	r.GET("/api/runs/:id/players", s.handleRunPlayers)
	r.GET("/api/runs/:id/patterns", s.handleRunPatterns)
	r.GET("/", s.handleIndex)

	static := http.FileServer(http.Dir(s.cfg.DashboardDir))
	r.NoRoute(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		static.ServeHTTP(c.Writer, c.Request)
	})
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.Handler(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.startTime = time.Now()
	s.logger.Info().Str("addr", listener.Addr().String()).Str("dashboard_dir", s.cfg.DashboardDir).Msg("dashboard server listening")

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("dashboard server stopped")
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status":  "ok",
		"uptime":  time.Since(s.startTime).String(),
		"history": s.runs != nil,
	}
	if info, err := os.Stat(s.cfg.SnapshotPath); err == nil {
		body["snapshot_updated"] = info.ModTime().UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, body)
}

// handleMetrics serves the snapshot as JSON. A JSON snapshot is passed
// through byte for byte; a YAML snapshot is decoded and re-encoded.
func (s *Server) handleMetrics(c *gin.Context) {
	c.Header("Cache-Control", "no-cache")
	if snapshot.FormatOf(s.cfg.SnapshotPath) == snapshot.FormatYAML {
		s.serveDecodedSnapshot(c)
		return
	}

	data, err := os.ReadFile(s.cfg.SnapshotPath)
	if errors.Is(err, os.ErrNotExist) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot yet; run satis analyze"})
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("path", s.cfg.SnapshotPath).Msg("read snapshot")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read snapshot"})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

func (s *Server) serveDecodedSnapshot(c *gin.Context) {
	snap, err := snapshot.Read(s.cfg.SnapshotPath)
	if errors.Is(err, os.ErrNotExist) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot yet; run satis analyze"})
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("path", s.cfg.SnapshotPath).Msg("read snapshot")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read snapshot"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleRuns(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run history is disabled"})
		return
	}

	limit := defaultRunsLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := s.runs.RecentRuns(limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("list runs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read run history"})
		return
	}

	out := make([]gin.H, 0, len(runs))
	for _, r := range runs {
		out = append(out, gin.H{
			"id":          r.ID,
			"analyzed_at": r.AnalyzedAt.UTC().Format(time.RFC3339),
			"log_dir":     r.LogDir,
			"files":       r.Files,
			"players":     r.Players,
			"joins":       r.Joins,
			"errors":      r.Errors,
			"connections": r.Connections,
			"gaps":        r.Gaps,
		})
	}
	c.JSON(http.StatusOK, gin.H{"runs": out})
}

func (s *Server) handleRunPlayers(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run history is disabled"})
		return
	}

	id := c.Param("id")
	counts, err := s.runs.PlayerJoinCounts(id)
	if err != nil {
		s.logger.Error().Err(err).Str("run_id", id).Msg("player join counts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read run history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": id, "players": counts})
}

func (s *Server) handleRunPatterns(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run history is disabled"})
		return
	}

	limit := defaultPatternsLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxRunsLimit)
	}

	id := c.Param("id")
	patterns, err := s.runs.RunPatterns(id, limit)
	if err != nil {
		s.logger.Error().Err(err).Str("run_id", id).Msg("run patterns")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read run history"})
		return
	}

	out := make([]gin.H, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, gin.H{
			"severity":   string(p.Severity),
			"template":   p.Template,
			"count":      p.Count,
			"percentage": p.Percentage,
		})
	}
	c.JSON(http.StatusOK, gin.H{"run_id": id, "patterns": out})
}

func (s *Server) handleIndex(c *gin.Context) {
	page := filepath.Join(s.cfg.DashboardDir, dashboardPage)
	if _, err := os.Stat(page); err == nil {
		c.File(page)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"endpoints": []string{"/api/health", "/api/metrics", "/api/runs", "/api/runs/:id/players", "/api/runs/:id/patterns"},
	})
}
