// Command hook is the synchronous capture path a host coding assistant
// invokes once per conversational event: it reads one JSON event from
// stdin, sanitizes and persists it, and exits 0 within SPEC_FULL.md §4.4's
// hard deadline regardless of outcome. Grounded on cmd/tarsy/main.go's
// flag/env/.env bootstrap shape.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/dennisonbertram/contextvault/pkg/config"
	"github.com/dennisonbertram/contextvault/pkg/hook"
	"github.com/dennisonbertram/contextvault/pkg/sanitize"
	"github.com/dennisonbertram/contextvault/pkg/store"
	"github.com/dennisonbertram/contextvault/pkg/telemetry"
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

	ctx := context.Background()

	storeCfg := config.DefaultStoreConfig()
	db, err := store.Open(ctx, store.Config{
		Path:         storeCfg.Path,
		MaxOpenConns: storeCfg.MaxOpenConns,
		BusyTimeout:  storeCfg.BusyTimeout,
	})
	if err != nil {
		// Per SPEC_FULL.md §4.4: a Store the hook cannot even open is
		// StoreUnavailable. The hook still must not block the host with a
		// non-zero exit; it logs to stderr and exits 0 having written
		// nothing.
		log.Printf("store unavailable, dropping event: %v", err)
		os.Exit(0)
	}
	defer db.Close()

	writer := telemetry.NewWriter(db, config.DefaultTelemetryConfig().FlushInterval)
	writer.Start()
	defer writer.Stop()
	logger := telemetry.New(writer)

	h := hook.New(db, sanitize.New(), logger)
	_ = h.Handle(ctx, os.Stdin, os.Stdout, os.Stderr)

	// The public contract is unconditional: exit 0 no matter what happened
	// above. A non-zero exit would block the host process that invoked
	// this hook, which is exactly what the Hook Entry Point exists to
	// prevent.
	os.Exit(0)
}
