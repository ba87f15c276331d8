package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/app"
)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(lookup envLookup) {
	if format, ok := lookup(envLogFormat); ok && normalize(format) == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level := log.InfoLevel
	if raw, ok := lookup(envLogLevel); ok && normalize(raw) != "" {
		parsed, err := log.ParseLevel(normalize(raw))
		if err != nil {
			log.WithError(err).Warn("invalid log level, using info")
		} else {
			level = parsed
		}
	}
	log.SetLevel(level)
}

func main() {
	setupLogger(os.LookupEnv)
	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, warning := range warnings {
		log.Warn(warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr":      cfg.HTTPAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"grpc_addr":      cfg.GRPCAddr,
		"storage_driver": cfg.StorageDriver,
		"kafka_enabled":  cfg.KafkaBrokers != "",
	}).Info("starting storefront")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("storefront exited with error")
	}

	log.Info("storefront stopped")
}
