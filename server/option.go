package server

import (
	"net/http"

	"github.com/vitwit/x402-facilitator/logger"
	"github.com/vitwit/x402-facilitator/metrics"
)

type Option func(*Server)

func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		s.log = l.Named("http")
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(s *Server) {
		s.metrics = r
	}
}

// WithMetricsHandler mounts h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metricsHandler = h
	}
}

func WithPort(port string) Option {
	return func(s *Server) {
		s.port = port
	}
}
