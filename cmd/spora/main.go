package main

import (
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"spora/internal/config"
	"spora/internal/engine"
	"spora/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	dataDir := flag.String("data-dir", "", "data directory (overrides config)")
	cacheBuckets := flag.Int("cache", 0, "resident bucket cap (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// CLI flags override config file values
	if *dataDir != "" {
		cfg.Store.DataDir = *dataDir
	}
	if *cacheBuckets != 0 {
		cfg.Store.CacheBuckets = *cacheBuckets
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logging.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger := logging.For("main")

	eng, err := engine.Open(engine.Options{
		DataDir:      config.ExpandHome(cfg.Store.DataDir),
		Buckets:      cfg.Store.Buckets,
		CacheBuckets: cfg.Store.CacheBuckets,
	})
	if err != nil {
		logger.Error("opening engine", "err", err)
		os.Exit(1)
	}

	// Flush on SIGINT/SIGTERM as well as on end of input, so an
	// interrupted run doesn't lose resident mutations. The engine is
	// single-goroutine by contract, so the signal handler only closes
	// stdin to unwind the command loop; the one eng.Close below runs
	// after the loop has returned.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutting down on signal", "signal", sig.String())
		os.Stdin.Close()
	}()

	if err := runCommands(os.Stdin, os.Stdout, eng); err != nil && !errors.Is(err, os.ErrClosed) {
		logger.Error("command loop", "err", err)
		os.Exit(1)
	}
	if err := eng.Close(); err != nil {
		logger.Error("flushing buckets", "err", err)
		os.Exit(1)
	}
}
