package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/writepro/writepro/internal/aigc"
	"github.com/writepro/writepro/internal/config"
	"github.com/writepro/writepro/internal/repository"
	"github.com/writepro/writepro/internal/server"
	"github.com/writepro/writepro/internal/service"
	"github.com/writepro/writepro/internal/storage"
	"github.com/writepro/writepro/internal/worker"
	"github.com/writepro/writepro/pkg/database"
	"github.com/writepro/writepro/pkg/logging"
)

func main() {
	// Load .env if present; real environment wins
	gotenv.Load()

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting WritePro document rewrite service",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	if err := os.MkdirAll(cfg.Storage.BaseDir, 0755); err != nil {
		logger.Fatal("Failed to create storage directory", zap.Error(err))
	}

	// Repositories
	docRepo := repository.NewDocumentRepository(db.DB, logger)
	orderRepo := repository.NewOrderRepository(db.DB, logger)
	paymentRepo := repository.NewPaymentRepository(db.DB, logger)
	creditRepo := repository.NewCreditRepository(db.DB, logger)

	// Artifact storage and rewrite provider client
	store := storage.NewLocalStore(cfg.Storage.BaseDir, logger)
	rewriteClient := aigc.NewHTTPClient(aigc.Config{
		BaseURL:         cfg.AIGC.BaseURL,
		SubmitTimeout:   cfg.AIGC.SubmitTimeout,
		StatusTimeout:   cfg.AIGC.StatusTimeout,
		DownloadTimeout: cfg.AIGC.DownloadTimeout,
	}, logger)

	// Processing pipeline worker
	pipeline := worker.NewPipeline(db, docRepo, orderRepo, store, rewriteClient,
		worker.PipelineConfig{
			PollInterval:    cfg.Pipeline.PollInterval,
			MaxPollAttempts: cfg.Pipeline.MaxPollAttempts,
		}, logger)

	workerManager := worker.NewManager(logger)
	workerManager.Register(pipeline)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := workerManager.StartAll(ctx); err != nil {
		logger.Fatal("Failed to start workers", zap.Error(err))
	}

	// Services
	documentService := service.NewDocumentService(db, docRepo, orderRepo, store,
		rewriteClient, cfg.Upload.MaxFileSize, logger)
	orderService := service.NewOrderService(db, orderRepo, docRepo, creditRepo,
		store, pipeline, logger)
	paymentService := service.NewPaymentService(db, paymentRepo, creditRepo, logger)

	// HTTP server
	srv := server.New(server.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, documentService, orderService, paymentService, logger)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shut down
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerManager.StopAll()

	logger.Info("Server exited")
}
