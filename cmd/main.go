package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/daxtrader54/mypredictify/internal/logger"
	"github.com/daxtrader54/mypredictify/pkg/forecast"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "compute and log actions without writing anything")
	season := flag.String("season", "", "season to operate on, e.g. 2025/2026")
	dataDir := flag.String("data-dir", "", "root directory for period artifacts")
	dbPath := flag.String("db", "", "sqlite database path")
	logOutput := flag.String("log", "c", "log destination: c=console, f=file, b=both")
	schedule := flag.String("schedule", "", "cron expression; run continuously instead of once")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	logger.SetShowDateTime(true)
	if len(*logOutput) > 0 {
		logger.SetLogOutput(rune((*logOutput)[0]))
	}
	if *verbose {
		logger.SetLevel(logger.DEBUG)
	}

	// A local .env is optional; flags and real environment win over it
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			logger.Warn("Failed to load .env file", err)
		}
	}

	config := forecast.DefaultPipelineConfig()
	config.ApplyEnvOverrides()
	if *dataDir != "" {
		config.DataDir = *dataDir
	}
	if *dbPath != "" {
		config.DbPath = *dbPath
	}
	if *season != "" {
		config.CurrentSeason = *season
	}

	normalized, err := forecast.ParseSeason(config.CurrentSeason)
	if err != nil {
		logger.Fatal("Invalid season", config.CurrentSeason, err)
	}
	config.CurrentSeason = normalized

	if err := forecast.ValidateConfig(config); err != nil {
		logger.Fatal("Invalid configuration", err)
	}
	forecast.UpdateConfig(config)

	if err := forecast.InitDatabase(config.DbPath); err != nil {
		logger.Fatal("Failed to initialize database", err)
	}
	defer forecast.CloseDatabase()

	orchestrator := forecast.NewOrchestrator(config.CurrentSeason, *dryRun)

	if *schedule == "" {
		summary := orchestrator.RunCycle(context.Background())
		if summary.EssentialFailure() {
			// os.Exit skips deferred calls
			forecast.CloseDatabase()
			os.Exit(1)
		}
		return
	}

	// Skip a tick rather than overlap if a cycle is still running
	runner := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err = runner.AddFunc(*schedule, func() {
		summary := orchestrator.RunCycle(context.Background())
		if summary.EssentialFailure() {
			logger.Error("Cycle finished with essential failures", summary.RunID)
		}
	})
	if err != nil {
		logger.Fatal("Invalid cron schedule", *schedule, err)
	}

	logger.Highlight("Running on schedule", *schedule)
	runner.Start()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down")
	ctx := runner.Stop()
	<-ctx.Done()
}
