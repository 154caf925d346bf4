package ops

import (
	"context"
	"expvar"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/copyfx/mirror/internal/engine"
	"github.com/copyfx/mirror/internal/journal"
	"github.com/copyfx/mirror/pkg/logger"
)

// Pinger probes one upstream dependency for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server exposes the operational surface: liveness, counters, the current
// snapshot and the recent journal tail. Read-only; it never drives the
// engine.
type Server struct {
	eng     *engine.Engine
	jnl     *journal.Journal // nil when journaling is disabled
	bridge  Pinger           // nil in dry-run
	gateway Pinger
	srv     *http.Server
}

func NewServer(addr string, eng *engine.Engine, jnl *journal.Journal, bridge, gateway Pinger) *Server {
	s := &Server{eng: eng, jnl: jnl, bridge: bridge, gateway: gateway}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealthz)
	r.GET("/debug/vars", gin.WrapH(expvar.Handler()))
	r.GET("/state", s.handleState)
	r.GET("/journal", s.handleJournal)

	return r
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	body := gin.H{"gateway": "ok", "bridge": "ok"}
	if err := s.gateway.Ping(ctx); err != nil {
		status = http.StatusServiceUnavailable
		body["gateway"] = err.Error()
	}
	if s.bridge != nil {
		if err := s.bridge.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["bridge"] = err.Error()
		}
	} else {
		body["bridge"] = "dry-run"
	}
	c.JSON(status, body)
}

func (s *Server) handleState(c *gin.Context) {
	positions, pending := s.eng.StateView()
	c.JSON(http.StatusOK, gin.H{
		"positions":      positions,
		"pending_orders": pending,
	})
}

func (s *Server) handleJournal(c *gin.Context) {
	if s.jnl == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "journal disabled"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	entries, err := s.jnl.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entries)
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		logger.Infof("ops server listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("ops server: %v", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
