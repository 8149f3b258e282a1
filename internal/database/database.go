// Package database handles MongoDB connections and index management.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"restjam/internal/config"
	"restjam/internal/middleware"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.mongodb.org/mongo-driver/v2/event"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const slowCommandThreshold = 200 * time.Millisecond

// CommandLatency records MongoDB command latency by command name.
var CommandLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "restjam_mongo_command_latency_seconds",
	Help:    "MongoDB command latency in seconds",
	Buckets: prometheus.DefBuckets,
}, []string{"command", "outcome"})

// commandMonitor integrates driver command events with slog and Prometheus.
func commandMonitor(logger *slog.Logger) *event.CommandMonitor {
	return &event.CommandMonitor{
		Succeeded: func(ctx context.Context, e *event.CommandSucceededEvent) {
			CommandLatency.WithLabelValues(e.CommandName, "ok").Observe(e.Duration.Seconds())
			if e.Duration > slowCommandThreshold {
				logger.WarnContext(ctx, "mongo slow command",
					slog.String("command", e.CommandName),
					slog.Duration("elapsed", e.Duration),
				)
			}
		},
		Failed: func(ctx context.Context, e *event.CommandFailedEvent) {
			CommandLatency.WithLabelValues(e.CommandName, "error").Observe(e.Duration.Seconds())
			logger.ErrorContext(ctx, "mongo command failed",
				slog.String("command", e.CommandName),
				slog.Duration("elapsed", e.Duration),
			)
		},
	}
}

// Connect opens a client for cfg.MongoURI, verifies it with a ping and
// returns the configured database.
func Connect(ctx context.Context, cfg *config.Config) (*mongo.Database, error) {
	if cfg.MongoURI == "" {
		return nil, errors.New("MONGODB_URI is not set")
	}

	opts := options.Client().
		ApplyURI(cfg.MongoURI).
		SetAppName("restjam-api").
		SetMonitor(commandMonitor(middleware.Logger))

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	middleware.Logger.Info("mongo connected", "database", cfg.MongoDatabase)
	return client.Database(cfg.MongoDatabase), nil
}

// Ping checks that the database answers within ctx.
func Ping(ctx context.Context, db *mongo.Database) error {
	if db == nil {
		return errors.New("database not configured")
	}
	return db.Client().Ping(ctx, nil)
}

// Close disconnects the client behind db.
func Close(ctx context.Context, db *mongo.Database) error {
	if db == nil {
		return nil
	}
	return db.Client().Disconnect(ctx)
}
