package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/vitwit/x402-facilitator/config"
	"github.com/vitwit/x402-facilitator/facilitator"
	"github.com/vitwit/x402-facilitator/logger"
	"github.com/vitwit/x402-facilitator/metrics"
	"github.com/vitwit/x402-facilitator/server"
)

func main() {
	// Optional .env; the environment wins when both are present.
	_ = godotenv.Load()

	log := logger.NewZapLogger(config.DefaultLogLevel)

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("configuration error", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	log = logger.NewZapLogger(cfg.LogLevel)

	recorder := metrics.NewPrometheusRecorder()

	fac := facilitator.New(cfg,
		facilitator.WithLogger(log),
		facilitator.WithMetrics(recorder),
	)

	srv := server.New(fac,
		server.WithLogger(log),
		server.WithMetrics(recorder),
		server.WithMetricsHandler(recorder.Handler()),
		server.WithPort(cfg.Port),
	)

	if err := srv.Run(); err != nil {
		log.Error("server stopped", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
}
