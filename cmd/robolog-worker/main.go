package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"

	"github.com/robolog/robolog/internal/broker"
	"github.com/robolog/robolog/internal/config"
	"github.com/robolog/robolog/internal/enqueue"
	"github.com/robolog/robolog/internal/llm"
	"github.com/robolog/robolog/internal/storage"
	"github.com/robolog/robolog/internal/storage/postgres"
	"github.com/robolog/robolog/internal/storage/sqlite"
	"github.com/robolog/robolog/internal/worker"
)

func main() {
	workerID := flag.String("worker-id", "", "Worker identifier for heartbeats (default: generated)")
	flag.Parse()

	if *workerID == "" {
		host, _ := os.Hostname()
		*workerID = fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	b, err := broker.NewBroker(cfg.Broker, cfg.Queue)
	if err != nil {
		log.Fatalf("Failed to connect to broker: %v", err)
	}
	defer b.Close()

	limiter := llm.NewRateLimiter(cfg.LLM.MaxRequestsPerMinute, cfg.LLM.MaxTokensPerMinute, nil)
	policy := llm.RetryPolicy{
		MaxRetries: cfg.LLM.MaxRetries,
		BaseDelay:  cfg.LLM.RetryBaseDelay,
		MaxDelay:   cfg.LLM.RetryMaxDelay,
		Jitter:     cfg.LLM.RetryJitter,
	}
	port := llm.NewAnthropicPort(llm.AnthropicConfig{
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.ModelName,
		BaseURL: cfg.LLM.BaseURL,
		Timeout: cfg.LLM.Timeout,
	}, llm.Prompts{
		NoteEnrichment: cfg.Prompts.NoteEnrichment,
		TaskEnrichment: cfg.Prompts.TaskEnrichment,
		ActivitySchema: cfg.Prompts.ActivitySchema,
	}, limiter, policy)

	enq := enqueue.NewService(b)
	workers := worker.New(store, port, enq)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Re-enqueue entities whose jobs were lost while no worker was up.
	workers.RecoverPending(ctx)

	dispatcher := broker.NewDispatcher(b, broker.DispatcherConfig{
		WorkerID:   *workerID,
		JobTimeout: cfg.Queue.JobTimeout,
		Retryable:  worker.IsRetryable,
	}, workers.Handlers())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received %v, finishing current job before exit", sig)
		cancel()
	}()

	if err := dispatcher.Run(ctx); err != nil {
		log.Fatalf("Dispatcher error: %v", err)
	}
	log.Println("Worker stopped")
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
