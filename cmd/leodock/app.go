package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/hrygo/leodock/ai/embedding"
	"github.com/hrygo/leodock/ai/metrics"
	"github.com/hrygo/leodock/internal/profile"
	"github.com/hrygo/leodock/server/service/history"
	"github.com/hrygo/leodock/store"
	"github.com/hrygo/leodock/store/db"
)

// app holds the components shared by every subcommand.
type app struct {
	profile *profile.Profile
	store   *store.Store
	service *history.Service
	metrics *metrics.PrometheusExporter
}

func newApp(ctx context.Context) (*app, error) {
	instanceProfile, err := loadProfile()
	if err != nil {
		return nil, err
	}

	dbDriver, err := db.NewDBDriver(instanceProfile)
	if err != nil {
		printDatabaseError(err, instanceProfile)
		return nil, err
	}

	storeInstance := store.New(dbDriver, instanceProfile)
	if err := storeInstance.Migrate(ctx); err != nil {
		printDatabaseError(err, instanceProfile)
		_ = storeInstance.Close()
		return nil, err
	}

	exporter := metrics.NewPrometheusExporter(metrics.DefaultConfig())
	guard := embedding.NewDimensionGuard(0)

	embeddingConfig := embedding.ConfigFromProfile(instanceProfile)
	embeddingConfig.Guard = guard
	embeddingConfig.Observer = exporter
	client := embedding.New(embeddingConfig)

	service, err := history.NewService(ctx, storeInstance, client, history.Options{
		Metrics:        exporter,
		Guard:          guard,
		Dimension:      instanceProfile.EmbeddingDimensions,
		Workers:        instanceProfile.BackfillWorkers,
		QueueSize:      instanceProfile.BackfillQueueSize,
		JobTimeout:     instanceProfile.BackfillJobTimeout,
		QueryCacheSize: instanceProfile.QueryCacheSize,
		QueryCacheTTL:  instanceProfile.QueryCacheTTL,
	})
	if err != nil {
		_ = storeInstance.Close()
		return nil, err
	}

	return &app{
		profile: instanceProfile,
		store:   storeInstance,
		service: service,
		metrics: exporter,
	}, nil
}

// close drains pending embedding jobs, bounded by one job timeout, and
// closes the database.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), a.profile.BackfillJobTimeout)
	defer cancel()
	if err := a.service.Close(ctx); err != nil {
		slog.Warn("backfill did not drain before shutdown, pending records remain", "error", err)
	}
	if err := a.store.Close(); err != nil {
		slog.Error("failed to close store", "error", err)
	}
}

// printDatabaseError provides user-friendly error messages for database connection issues
func printDatabaseError(err error, profile *profile.Profile) {
	fmt.Fprintln(os.Stderr, "\nDatabase connection failed")

	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "no such host"):
		fmt.Fprintln(os.Stderr, "\n  PostgreSQL is not reachable.")
		fmt.Fprintln(os.Stderr, "  Or use SQLite: --driver=sqlite --data=./data")

	case strings.Contains(errMsg, "SSL is not enabled") || strings.Contains(errMsg, "sslmode"):
		fmt.Fprintln(os.Stderr, "\n  PostgreSQL SSL configuration mismatch.")
		fmt.Fprintln(os.Stderr, "  Add ?sslmode=disable to your DSN.")

	case strings.Contains(errMsg, "password authentication failed"):
		fmt.Fprintln(os.Stderr, "\n  PostgreSQL authentication failed.")
		fmt.Fprintln(os.Stderr, "  Check the credentials in LEODOCK_DSN or .env.")

	case strings.Contains(errMsg, "extension \"vector\""):
		fmt.Fprintln(os.Stderr, "\n  The pgvector extension is not installed on this server.")

	case strings.Contains(errMsg, "unable to open database file") || strings.Contains(errMsg, "permission denied"):
		fmt.Fprintf(os.Stderr, "\n  Cannot open %s; check the data directory permissions.\n", profile.DSN)

	default:
		fmt.Fprintln(os.Stderr, "\n  Error:", errMsg)
	}
	fmt.Fprintln(os.Stderr)
}
