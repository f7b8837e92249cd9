package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"paperTrader/config"
	"paperTrader/internal/adapters/binanceclient"
	"paperTrader/internal/adapters/logger"
	"paperTrader/internal/adapters/sqlite"
	"paperTrader/internal/app"
	"paperTrader/internal/engine"
	"paperTrader/internal/risk"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err) // Also log to stderr
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()
	appLogger.Info(context.Background(), "Database repository initialized")

	// 4. Initialize Price Feed (Binance Adapter)
	feed, err := binanceclient.New(binanceclient.Config{
		UseTestnet:           cfg.IsTestnet,
		Logger:               appLogger,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	appLogger.Info(context.Background(), "Binance client initialized")

	// 5. Initialize Simulation Engine
	eng, err := engine.New(engine.Config{
		Coins:          cfg.Coins,
		RiskThresholds: cfg.RiskThresholds,
		FeeRate:        cfg.FeeRate,
		Logger:         appLogger.WithComponent("engine"),
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize simulation engine")
		log.Fatalf("FATAL: Failed to initialize simulation engine: %v", err)
	}
	appLogger.Info(context.Background(), "Simulation engine initialized")

	// 6. Initialize Application Service
	simulator, err := app.NewSimulatorService(
		cfg,
		appLogger,
		feed, // Pass the concrete implementation, service expects the interface
		eng,
		app.Repositories{
			Accounts:     repo,
			Trades:       repo,
			Liquidations: repo,
			Positions:    repo,
		},
	)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize simulator service")
		log.Fatalf("FATAL: Failed to initialize simulator service: %v", err)
	}
	appLogger.Info(context.Background(), "Simulator service initialized")

	// 7. Attach Risk Monitor
	riskMonitor, err := risk.NewMonitor(risk.Config{
		Thresholds:           cfg.RiskThresholds,
		WarnProximityPercent: 5.0,
		Logger:               appLogger.WithComponent("risk"),
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize risk monitor")
		log.Fatalf("FATAL: Failed to initialize risk monitor: %v", err)
	}
	simulator.Subscribe(riskMonitor.Observe)

	// 8. Start the Service
	// Use context.Background() as the base context for the application run
	if err := simulator.Start(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Simulator service exited with error")
		log.Fatalf("FATAL: Simulator service exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
