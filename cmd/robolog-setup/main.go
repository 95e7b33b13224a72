// Command robolog-setup bootstraps a Robolog deployment: it applies the
// database schema, verifies broker connectivity, and optionally probes the
// LLM provider. Safe to re-run; all schema statements are idempotent.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/robolog/robolog/internal/broker"
	"github.com/robolog/robolog/internal/config"
	"github.com/robolog/robolog/internal/llm"
	"github.com/robolog/robolog/internal/storage"
	"github.com/robolog/robolog/internal/storage/postgres"
	"github.com/robolog/robolog/internal/storage/sqlite"
)

func main() {
	checkLLM := flag.Bool("check-llm", false, "Also probe the LLM provider (issues one minimal completion)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ok := true

	// Database: opening a store applies the schema.
	store, err := openStore(cfg)
	if err != nil {
		fmt.Printf("Database:  FAIL  %v\n", err)
		ok = false
	} else {
		fmt.Printf("Database:  OK    %s schema applied\n", cfg.Storage.StorageEngine)
		store.Close()
	}

	// Broker connectivity and queue depths.
	b, err := broker.NewBroker(cfg.Broker, cfg.Queue)
	if err != nil {
		fmt.Printf("Broker:    FAIL  %v\n", err)
		ok = false
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		health, err := b.QueueHealth(ctx, broker.Queues)
		cancel()
		if err != nil {
			fmt.Printf("Broker:    FAIL  %v\n", err)
			ok = false
		} else {
			fmt.Printf("Broker:    OK    %s (%d workers alive)\n", cfg.Broker.Addr(), health.Workers)
			for _, q := range broker.Queues {
				stats := health.Queues[q]
				fmt.Printf("  %-18s pending=%d scheduled=%d failed=%d\n",
					q, stats.Pending, stats.Scheduled, stats.Failed)
			}
		}
		b.Close()
	}

	if *checkLLM {
		if cfg.LLM.APIKey == "" {
			fmt.Println("LLM:       FAIL  LLM_API_KEY is not set")
			ok = false
		} else {
			port := llm.NewAnthropicPort(llm.AnthropicConfig{
				APIKey:  cfg.LLM.APIKey,
				Model:   cfg.LLM.ModelName,
				BaseURL: cfg.LLM.BaseURL,
				Timeout: cfg.LLM.Timeout,
			}, llm.Prompts{}, nil, llm.RetryPolicy{})

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			status, err := port.HealthCheck(ctx)
			cancel()
			if err != nil {
				fmt.Printf("LLM:       FAIL  %v\n", err)
				ok = false
			} else {
				fmt.Printf("LLM:       OK    %s (%v)\n", status.Provider, status.Latency.Round(time.Millisecond))
			}
		}
	}

	if !ok {
		os.Exit(1)
	}
	fmt.Println("Status:    READY")
}

// openStore selects the storage backend from configuration.
func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.StorageEngine {
	case "postgres":
		return postgres.NewStore(cfg.Storage.DatabaseURL)
	case "sqlite":
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data path: %w", err)
		}
		return sqlite.NewStore(filepath.Join(cfg.Storage.DataPath, "robolog.db"))
	default:
		return nil, fmt.Errorf("unknown storage engine %q", cfg.Storage.StorageEngine)
	}
}
