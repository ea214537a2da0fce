package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/PL7092/MyMoney-sub001/internal/config"
	"github.com/PL7092/MyMoney-sub001/internal/decode"
	"github.com/PL7092/MyMoney-sub001/internal/dedupe"
	"github.com/PL7092/MyMoney-sub001/internal/model"
	"github.com/PL7092/MyMoney-sub001/internal/oracle"
	"github.com/PL7092/MyMoney-sub001/internal/service"
	"github.com/PL7092/MyMoney-sub001/internal/session"
	"github.com/PL7092/MyMoney-sub001/internal/storage"
)

// initStorage opens the SQLite store and applies pending migrations.
func initStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	dbPath := config.DatabasePath(viper.GetString("database.path"))

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// initOracle builds the optional classification client; absence of an
// endpoint, or oracle.enabled=false, means the pipeline relies on rules
// alone.
func initOracle() (service.Oracle, error) {
	endpoint := viper.GetString("oracle.endpoint")
	if endpoint == "" {
		return nil, nil
	}
	if viper.IsSet("oracle.enabled") && !viper.GetBool("oracle.enabled") {
		return nil, nil
	}
	return oracle.NewHTTPClient(oracle.Config{
		Endpoint:  endpoint,
		APIKey:    viper.GetString("oracle.api_key"),
		Timeout:   viper.GetDuration("oracle.timeout"),
		RateLimit: viper.GetInt("oracle.rate_limit"),
	})
}

// initPipeline wires the full pipeline service. The caller owns both
// returned closers.
func initPipeline(ctx context.Context) (*session.Service, *storage.SQLiteStorage, error) {
	store, err := initStorage(ctx)
	if err != nil {
		return nil, nil, err
	}
	oracleClient, err := initOracle()
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	dedupeCfg := dedupe.Config{
		WindowDays:          viper.GetInt("dedupe.window_days"),
		AmountTolerance:     viper.GetFloat64("dedupe.amount_tolerance"),
		SimilarityThreshold: viper.GetFloat64("dedupe.similarity_threshold"),
	}
	return session.New(store, decode.New(), store, oracleClient, dedupeCfg), store, nil
}

// resolveOwner returns the acting user for rule scoping and session
// ownership.
func resolveOwner() (string, error) {
	if owner := viper.GetString("owner"); owner != "" {
		return owner, nil
	}
	if owner := os.Getenv("USER"); owner != "" {
		return owner, nil
	}
	return "", fmt.Errorf("no owner configured; pass --owner or set SMARTIMPORT_OWNER")
}

// waitForReview polls the session until it reaches a reviewable or terminal
// state, reporting progress through the callback.
func waitForReview(ctx context.Context, svc *session.Service, id string, progress func(*model.ImportSession)) (*model.ImportSession, error) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		sess, err := svc.Status(ctx, id)
		if err != nil {
			return nil, err
		}
		if progress != nil {
			progress(sess)
		}
		switch sess.State {
		case model.StateCompleted, model.StateError, model.StateFinalized:
			return sess, nil
		}

		select {
		case <-ctx.Done():
			return sess, ctx.Err()
		case <-ticker.C:
		}
	}
}
