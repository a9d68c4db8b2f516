// Package dashboard serves the engine's HTTP surface: the live
// WebSocket state stream, a JSON state endpoint, Prometheus metrics
// and a health check.
package dashboard

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Server hosts the dashboard endpoints and owns the broadcast hub.
type Server struct {
	hub  *Hub
	http *http.Server

	mu      sync.RWMutex
	latest  *StatePayload
	started time.Time
}

// NewServer builds the server on the given port.
func NewServer(port int, debug bool) *Server {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{hub: NewHub(), started: time.Now()}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type"}
	router.Use(cors.New(corsConfig))

	router.GET("/ws", func(c *gin.Context) {
		s.hub.serve(c.Writer, c.Request)
	})
	router.GET("/api/state", s.handleState)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", s.handleHealth)

	s.http = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}
	return s
}

// Hub exposes the broadcast hub for the orchestrator.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Publish stores the latest state and broadcasts it.
func (s *Server) Publish(payload *StatePayload) {
	s.mu.Lock()
	s.latest = payload
	s.mu.Unlock()
	s.hub.BroadcastState(payload)
}

// Start serves until Shutdown. Run in a goroutine.
func (s *Server) Start() {
	go s.hub.Run()
	log.Info().Str("addr", s.http.Addr).Msg("🖥️ dashboard listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("dashboard server stopped")
	}
}

// Shutdown drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleState(c *gin.Context) {
	s.mu.RLock()
	payload := s.latest
	s.mu.RUnlock()

	if payload == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no state yet"})
		return
	}
	c.JSON(http.StatusOK, payload)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}
