// Command worker is the long-running host that drains the Job Queue: it
// claims ai_sanitization_validation, extract_learning, and
// publish_learning jobs and runs their handlers under a WorkerPool until
// signaled to shut down. Grounded on cmd/tarsy/main.go's flag/env/.env
// bootstrap shape, split from the hook into its own binary because
// SPEC_FULL.md §5 describes two distinct process kinds: a short-lived
// synchronous hook and a long-running worker host.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dennisonbertram/contextvault/pkg/aivalidate"
	"github.com/dennisonbertram/contextvault/pkg/budget"
	"github.com/dennisonbertram/contextvault/pkg/config"
	"github.com/dennisonbertram/contextvault/pkg/learning"
	"github.com/dennisonbertram/contextvault/pkg/llmoracle"
	"github.com/dennisonbertram/contextvault/pkg/models"
	"github.com/dennisonbertram/contextvault/pkg/publish"
	"github.com/dennisonbertram/contextvault/pkg/queue"
	"github.com/dennisonbertram/contextvault/pkg/store"
	"github.com/dennisonbertram/contextvault/pkg/telemetry"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONTEXTVAULT_CONFIG_DIR", "."), "Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("no %s found, continuing with existing environment", envPath)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	storeCfg := config.DefaultStoreConfig()
	db, err := store.Open(ctx, store.Config{
		Path:         storeCfg.Path,
		MaxOpenConns: storeCfg.MaxOpenConns,
		BusyTimeout:  storeCfg.BusyTimeout,
	})
	if err != nil {
		log.Fatalf("store unavailable: %v", err)
	}
	defer db.Close()

	telemetryCfg := config.DefaultTelemetryConfig()
	writer := telemetry.NewWriter(db, telemetryCfg.FlushInterval)
	writer.Start()
	defer writer.Stop()
	logger := telemetry.New(writer)

	budgetCfg := config.DefaultBudgetConfig()
	gov := budget.New(db, budgetCfg, budget.DefaultPricingTable(), logger)
	if err := gov.ResetIfPeriodRolled(ctx, time.Now().UTC()); err != nil {
		log.Printf("budget period reset check failed: %v", err)
	}

	oracle := newOracle()

	validator := aivalidate.New(db, oracle, gov, logger)
	extractor := learning.New(db, oracle, gov, nil, logger)
	publisher := publish.New(db, &publish.LocalPublisher{}, logger)

	hostID := "worker-" + uuid.NewString()
	queueCfg := config.DefaultQueueConfig()
	q := queue.New(db)
	pool := queue.NewWorkerPool(hostID, q, queueCfg, logger)
	pool.Register(models.JobTypeAISanitizationValidation, validator.Handler, 0)
	pool.Register(models.JobTypeExtractLearning, extractor.Handler, 0)
	pool.Register(models.JobTypePublishLearning, publisher.Handler, 0)

	pruner := telemetry.NewPruner(db, telemetryCfg.RetentionWindow, telemetryCfg.PruneRowCap)

	pool.Start(ctx)
	log.Printf("worker %s started, polling %d registered job type(s)", hostID, 3)

	stopPeriodic := runPeriodicTasks(ctx, gov, pruner)
	defer stopPeriodic()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Printf("worker %s shutting down", hostID)
	cancel()
	pool.Stop()
}

// runPeriodicTasks starts the budget period-roll check and retention
// pruner on their own tickers, both named as timers SPEC_FULL.md §5 calls
// out alongside the worker's poll loop and the telemetry batch flush.
// Returns a stop function.
func runPeriodicTasks(ctx context.Context, gov *budget.Governor, pruner *telemetry.Pruner) func() {
	done := make(chan struct{})
	go func() {
		budgetTicker := time.NewTicker(1 * time.Hour)
		pruneTicker := time.NewTicker(24 * time.Hour)
		defer budgetTicker.Stop()
		defer pruneTicker.Stop()
		for {
			select {
			case <-ctx.Done():
				close(done)
				return
			case now := <-budgetTicker.C:
				if err := gov.ResetIfPeriodRolled(ctx, now.UTC()); err != nil {
					log.Printf("budget period reset check failed: %v", err)
				}
			case now := <-pruneTicker.C:
				if _, err := pruner.Run(ctx, now.UTC()); err != nil {
					log.Printf("retention prune run failed: %v", err)
				}
			}
		}
	}()
	return func() { <-done }
}

// newOracle returns a real OpenAI-compatible oracle when an API key is
// configured, or an in-memory fake otherwise so the worker still starts
// (with budget-gated jobs simply returning empty results) in an
// environment with no LLM credentials wired up yet.
func newOracle() llmoracle.Oracle {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		log.Printf("OPENAI_API_KEY not set, using an in-memory fake oracle")
		return &llmoracle.Fake{}
	}
	var opts []llmoracle.OpenAIOption
	opts = append(opts, llmoracle.WithAPIKey(apiKey))
	if baseURL := os.Getenv("CONTEXTVAULT_LLM_BASE_URL"); baseURL != "" {
		opts = append(opts, llmoracle.WithBaseURL(baseURL))
	}
	return llmoracle.NewOpenAIOracle(opts...)
}
