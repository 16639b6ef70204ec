package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"smartnotes/core"
	"smartnotes/core/validation"
	"smartnotes/db"
	"smartnotes/extractor"
	"smartnotes/handlers"
	"smartnotes/imageanalyzer"
	"smartnotes/llm"
	"smartnotes/logging"
	"smartnotes/metrics"
	"smartnotes/notegen"
	"smartnotes/orchestrator"
	"smartnotes/shutdown"
	"smartnotes/topics"
	"smartnotes/webui"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

var (
	activeManagerMu sync.Mutex
	activeManager   *shutdown.Manager
)

func setActiveManager(m *shutdown.Manager) {
	activeManagerMu.Lock()
	activeManager = m
	activeManagerMu.Unlock()
}

// requestShutdown begins graceful shutdown without an OS signal. The
// Windows service Stop handler calls it.
func requestShutdown() {
	activeManagerMu.Lock()
	m := activeManager
	activeManagerMu.Unlock()
	if m != nil {
		m.Cancel()
	}
}

func main() {
	// Service management commands (install/uninstall/start/stop/...) exit here.
	if HandleServiceCommand(os.Args) {
		return
	}

	// When launched by the Windows service manager, RunAsService blocks
	// until the service is stopped.
	ranAsService, err := RunAsService()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service error: %v\n", err)
		os.Exit(core.ExitCodeError)
	}
	if ranAsService {
		return
	}

	os.Exit(run())
}

// run starts the application in foreground mode and returns the process
// exit code. It is also the body of the Windows service lifecycle.
func run() int {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Use fmt here since logger isn't initialized yet
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	isDevelopment := os.Getenv("DEV_MODE") == "true"

	logger, err := logging.NewLogger(isDevelopment, "smartnotes.log")
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		return core.ExitCodeError
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Printf("Failed to sync logger: %v\n", syncErr)
		}
	}()

	// Run startup validation before heavy operations
	if code := runStartupValidation(logger); code != core.ExitCodeSuccess {
		return code
	}

	config, err := core.LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", zap.Error(err))
		return core.ExitCodeError
	}

	logger.Info("Configuration loaded",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("uploads_dir", config.UploadsDir),
		zap.String("database_path", config.DatabasePath),
		zap.Duration("ai_timeout", config.AITimeout),
		zap.Duration("processing_timeout", config.ProcessingTimeout),
		zap.Int("max_concurrent", config.MaxConcurrent),
		zap.Bool("auth_enabled", config.WebUIPassword != ""),
		zap.Bool("dev_mode", isDevelopment),
	)

	if err := os.MkdirAll(config.UploadsDir, 0755); err != nil {
		logger.Error("Failed to create uploads directory", zap.Error(err))
		return core.ExitCodeError
	}
	if dir := filepath.Dir(config.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Error("Failed to create database directory", zap.Error(err))
			return core.ExitCodeError
		}
	}

	database, err := db.NewDatabaseWithConfig(db.DatabaseConfig{
		Path:           config.DatabasePath,
		MigrationsPath: config.MigrationsPath,
	})
	if err != nil {
		logger.Error("Failed to open database", zap.Error(err))
		return core.ExitCodeError
	}
	if err := database.Migrate(); err != nil {
		logger.Error("Failed to run migrations", zap.Error(err))
		database.Close()
		return core.ExitCodeError
	}
	repo := db.NewRepository(database)

	client := llm.NewClient(config, logger)
	store := metrics.NewStore(metrics.DefaultStoreConfig(), time.Now())
	pool := orchestrator.NewPoolWithQueueDepth(config.MaxConcurrent, config.QueueDepth)

	// The hub is shared: the orchestrator publishes progress events into
	// it and the server exposes it at /ws.
	hub := webui.NewHub(logger)
	reporter := handlers.NewProgressReporter(hub, logger)

	orch := orchestrator.New(orchestrator.Deps{
		Config:    config,
		Repo:      repo,
		Extractor: extractor.New(client),
		Topics:    topics.NewExtractor(client, config, logger),
		Notes:     notegen.NewGenerator(client, config, logger),
		Images:    imageanalyzer.NewAnalyzer(client, config, logger),
		Pool:      pool,
		Collector: store,
		Progress:  reporter,
		Logger:    logger,
	})

	srvConfig := webui.DefaultServerConfig()
	srvConfig.Host = config.Host
	srvConfig.Port = config.Port
	srvConfig.UploadsDir = config.UploadsDir
	srvConfig.MaxUploadBytes = config.MaxFileSize
	srvConfig.Password = config.WebUIPassword
	srvConfig.SessionTTL = config.SessionTTL

	srv, err := webui.NewServer(srvConfig, webui.Deps{
		Orchestrator: orch,
		Repo:         repo,
		Collector:    store,
		Hub:          hub,
		Logger:       logger,
	})
	if err != nil {
		logger.Error("Failed to create server", zap.Error(err))
		database.Close()
		return core.ExitCodeError
	}

	manager := shutdown.NewManager(logger, shutdown.WithTimeout(srvConfig.ShutdownTimeout))
	manager.Register("http server", 10, srv.Shutdown)
	manager.Register("database", 30, func(ctx context.Context) error {
		return database.Close()
	})
	manager.Start()
	setActiveManager(manager)
	defer setActiveManager(nil)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start(manager.Context())
	}()

	logger.Info("SmartNotes started", zap.String("addr", srv.Addr()))

	exitCode := core.ExitCodeSuccess
	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("Server failed", zap.Error(err))
			exitCode = core.ExitCodeError
		}
	case <-manager.Context().Done():
	}

	if err := manager.Shutdown(); err != nil {
		logger.Error("Shutdown finished with errors", zap.Error(err))
		if exitCode == core.ExitCodeSuccess {
			exitCode = core.ExitCodeError
		}
	}

	logger.Info("Goodbye!")
	return exitCode
}

// runStartupValidation performs configuration, filesystem, and LLM endpoint
// checks before anything heavy starts.
//
// Returns the appropriate exit code:
//   - ExitCodeSuccess (0) if all validations pass
//   - ExitCodeError (1) if any validation fails
func runStartupValidation(logger *logging.Logger) int {
	logger.Info("Starting startup validation...")

	skipNetwork := os.Getenv("SKIP_NETWORK_CHECKS") == "true"

	suite := validation.NewValidationSuite().
		WithShowProgress(true).
		WithSkipNetwork(skipNetwork)

	result := suite.Validate()

	if !result.Success {
		logger.Error("Startup validation failed",
			zap.Int("passed", result.PassedSteps),
			zap.Int("failed", result.FailedSteps),
			zap.Duration("duration", result.Duration),
		)

		// Log individual failures for debugging
		for _, step := range result.Steps {
			if step.Status == validation.StepFailed {
				logger.Error("Validation step failed",
					zap.String("step", step.Name),
					zap.String("message", step.Message),
					zap.Error(step.Error),
				)
			}
		}

		return core.ExitCodeError
	}

	logger.Info("Startup validation passed",
		zap.Int("checks_passed", result.PassedSteps),
		zap.Duration("duration", result.Duration),
	)
	return core.ExitCodeSuccess
}
