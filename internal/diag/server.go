package diag

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/danmuck/scosock/internal/link"
	"github.com/danmuck/scosock/internal/observability"
	"github.com/danmuck/scosock/internal/sco"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const version = "0.1.0"

// Sockets is the protocol view the server reports on.
type Sockets interface {
	Snapshot() []sco.SocketInfo
	Stats() sco.Stats
}

// Links is the bus view the server reports on.
type Links interface {
	Adapters() []link.AdapterInfo
	Links() int
	Drop(a, peer sco.Addr, reason sco.Reason) error
}

type Server struct {
	ID      string
	Addr    string
	Started time.Time

	sockets Sockets
	links   Links
	router  *gin.Engine
}

func New(id, addr string, corsOrigins []string, sockets Sockets, links Links) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(id))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		ID:      id,
		Addr:    addr,
		Started: time.Now(),
		sockets: sockets,
		links:   links,
		router:  r,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Started).String(),
			"daemon":  s.ID,
			"version": version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/ready", func(c *gin.Context) {
		ready := s.sockets != nil && s.links != nil
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":   ready,
			"uptime":  time.Since(s.Started).String(),
			"daemon":  s.ID,
			"version": version,
		})
	})

	s.router.GET("/sockets", func(c *gin.Context) {
		if s.sockets == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no protocol"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"sockets": s.sockets.Snapshot(),
			"stats":   s.sockets.Stats(),
		})
	})

	s.router.GET("/adapters", func(c *gin.Context) {
		if s.links == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no bus"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"adapters": s.links.Adapters(),
			"links":    s.links.Links(),
		})
	})

	s.router.POST("/adapters/:addr/drop/:peer", s.handleDrop)
}

// handleDrop tears down the link between two adapters. The optional reason
// query parameter is an HCI status code.
func (s *Server) handleDrop(c *gin.Context) {
	if s.links == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no bus"})
		return
	}
	a, err := sco.ParseAddr(c.Param("addr"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	peer, err := sco.ParseAddr(c.Param("peer"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	reason := sco.ReasonRemoteUserTerminated
	if raw := c.Query("reason"); raw != "" {
		v, err := strconv.ParseUint(raw, 0, 8)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "reason must be an 8-bit status code"})
			return
		}
		reason = sco.Reason(v)
	}

	if err := s.links.Drop(a, peer, reason); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, link.ErrUnknownAdapter) || errors.Is(err, link.ErrNoLink) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	log.Info().
		Str("daemon", s.ID).
		Str("adapter", a.String()).
		Str("peer", peer.String()).
		Uint8("reason", uint8(reason)).
		Msg("link dropped")
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Serve listens on s.Addr until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.Info().Str("daemon", s.ID).Str("addr", s.Addr).Msg("diag listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
