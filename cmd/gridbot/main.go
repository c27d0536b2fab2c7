package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gridbot/internal/bot"
	"gridbot/internal/config"
	"gridbot/internal/logging"
)

var configFile = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	if envConfig := os.Getenv("CONFIG_FILE"); envConfig != "" {
		*configFile = envConfig
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(logging.Options{
		Level:   cfg.System.LogLevel,
		LogFile: cfg.System.LogFile,
	})
	defer logger.Sync()

	logger.Info("Starting grid trading bot",
		"mode", cfg.Trading.Mode,
		"pair", cfg.Pair.HumanReadable(),
		"strategy", cfg.Grid.StrategyType)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := bot.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize bot", "error", err)
	}

	result, err := b.Run(ctx)
	if err != nil {
		logger.Error("Bot session ended with error", "error", err)
	}

	if result != nil {
		fmt.Println(result.Summary.String())
		if len(result.Orders) > 0 {
			fmt.Println("Orders:")
			for _, line := range result.Orders {
				fmt.Println("  " + line)
			}
		}
	}

	if err != nil {
		os.Exit(1)
	}
}
