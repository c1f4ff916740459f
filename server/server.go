// Package server exposes the facilitator over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vitwit/x402-facilitator/config"
	"github.com/vitwit/x402-facilitator/logger"
	"github.com/vitwit/x402-facilitator/metrics"
	"github.com/vitwit/x402-facilitator/types"
)

// Route timeouts bound the awaited chain calls.
const (
	verifyTimeout = 30 * time.Second
	settleTimeout = 60 * time.Second
)

// Facilitator is the protocol surface the HTTP layer consumes.
type Facilitator interface {
	Verify(ctx context.Context, req *types.VerifyRequest) (*types.VerificationResult, error)
	Settle(ctx context.Context, req *types.VerifyRequest) (*types.SettleResponse, error)
	Supported() *types.SupportedResponse
	Networks() map[string]bool
}

// Server wraps a gin engine around a Facilitator. The engine is
// exposed as an http.Handler so hosts can mount it without the
// standalone listener.
type Server struct {
	engine         *gin.Engine
	fac            Facilitator
	log            logger.Logger
	metrics        metrics.Recorder
	metricsHandler http.Handler
	port           string
}

func New(fac Facilitator, opts ...Option) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		fac:     fac,
		log:     logger.NoopLogger{},
		metrics: metrics.Noop{},
		port:    config.DefaultPort,
	}
	for _, opt := range opts {
		opt(s)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger())

	engine.GET("/verify", s.handleVerifyDocs)
	engine.POST("/verify", s.handleVerify)
	engine.GET("/settle", s.handleSettleDocs)
	engine.POST("/settle", s.handleSettle)
	engine.GET("/supported", s.handleSupported)
	engine.GET("/health", s.handleHealth)
	if s.metricsHandler != nil {
		engine.GET("/metrics", gin.WrapH(s.metricsHandler))
	}

	s.engine = engine
	return s
}

// Handler returns the router for embedding in an external host.
func (s *Server) Handler() http.Handler { return s.engine }

// Run starts the standalone listener.
func (s *Server) Run() error {
	s.log.Info("listening", map[string]any{"port": s.port})
	return s.engine.Run(":" + s.port)
}

func (s *Server) handleVerify(c *gin.Context) {
	var req types.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.reject(c, "verify", err, gin.H{"error": "Invalid request"})
		return
	}
	if err := req.Validate(); err != nil {
		s.reject(c, "verify", err, gin.H{"error": "Invalid request"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), verifyTimeout)
	defer cancel()

	result, err := s.fac.Verify(ctx, &req)
	if err != nil {
		s.reject(c, "verify", err, gin.H{"error": "Invalid request"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleSettle(c *gin.Context) {
	var req types.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.reject(c, "settle", err, gin.H{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		s.reject(c, "settle", err, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), settleTimeout)
	defer cancel()

	resp, err := s.fac.Settle(ctx, &req)
	if err != nil {
		s.reject(c, "settle", err, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSupported(c *gin.Context) {
	c.JSON(http.StatusOK, s.fac.Supported())
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"networks": s.fac.Networks(),
	})
}

// reject applies the flat 400 policy: every request failure is a 400
// regardless of cause.
func (s *Server) reject(c *gin.Context, operation string, err error, body gin.H) {
	s.log.Warn("request rejected", map[string]any{
		"operation": operation,
		"error":     err.Error(),
	})
	c.JSON(http.StatusBadRequest, body)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.NewString()
		c.Set("requestID", requestID)
		start := time.Now()

		c.Next()

		latency := time.Since(start)
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		s.metrics.ObserveLatency("http "+path, latency, map[string]string{"network": ""})
		s.log.Info("request", map[string]any{
			"requestID": requestID,
			"method":    c.Request.Method,
			"path":      path,
			"status":    c.Writer.Status(),
			"latency":   latency.String(),
		})
	}
}
