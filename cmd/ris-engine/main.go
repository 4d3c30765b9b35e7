package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dimed/hisris/internal/config"
	"github.com/dimed/hisris/internal/domain/message"
	"github.com/dimed/hisris/internal/domain/worklist"
	"github.com/dimed/hisris/internal/platform/db"
	"github.com/dimed/hisris/internal/platform/hl7v2"
	"github.com/dimed/hisris/internal/platform/middleware"
	"github.com/dimed/hisris/internal/platform/mwl"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ris-engine",
		Short: "HIS/RIS HL7 interface engine",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the interface engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	builder := hl7v2.Builder{
		SendingFacility:   cfg.SendingFacility,
		ReceivingFacility: cfg.ReceivingFacility,
	}

	// Message ledger and the phase-2 consumer pool behind the frame queue.
	queue := make(chan hl7v2.InboundFrame, cfg.HL7QueueSize)
	msgRepo := message.NewRepoPG(pool)
	msgSvc := message.NewService(msgRepo, builder, cfg.HL7MaxRetries, cfg.HL7RetryBatch, logger)
	consumer := message.NewConsumer(msgSvc, queue, cfg.HL7Consumers, logger)
	consumer.Start(ctx)

	// Worklist lifecycle.
	wlStore := mwl.NewStore(cfg.WorklistDir, logger)
	wlRepo := worklist.NewRepoPG(pool)
	wlSvc := worklist.NewService(wlRepo, wlStore, cfg.InstitutionAETitle, cfg.WorklistRetentionDays, logger)

	// MLLP listener.
	mllpServer := hl7v2.NewServer(cfg.MLLPAddr, queue, builder, logger)
	if err := mllpServer.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start MLLP server")
	}
	logger.Info().Str("addr", mllpServer.Addr()).Msg("MLLP server listening")

	// Background jobs: delivery retry sweep and worklist retention.
	sched := cron.New()
	if _, err := sched.AddFunc("@every 5m", func() {
		if _, err := msgSvc.RetryFailed(ctx); err != nil {
			logger.Error().Err(err).Msg("retry sweep failed")
		}
	}); err != nil {
		logger.Fatal().Err(err).Msg("failed to schedule retry sweep")
	}
	if _, err := sched.AddFunc("0 2 * * *", func() {
		if _, err := wlSvc.CleanupExpired(ctx); err != nil {
			logger.Error().Err(err).Msg("worklist retention sweep failed")
		}
	}); err != nil {
		logger.Fatal().Err(err).Msg("failed to schedule worklist retention sweep")
	}
	sched.Start()

	// Operator HTTP surface.
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	apiV1 := e.Group("/api/v1")
	message.NewHandler(msgSvc).RegisterRoutes(apiV1)
	worklist.NewHandler(wlSvc).RegisterRoutes(apiV1)

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()
	logger.Info().Str("port", cfg.Port).Msg("operator API listening")

	// Graceful shutdown: stop accepting frames, drain the queue, then stop
	// the background jobs and the HTTP server.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	if err := mllpServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("MLLP server shutdown error")
	}
	close(queue)
	consumer.Wait()

	cronCtx := sched.Stop()
	<-cronCtx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown error")
	}

	logger.Info().Msg("shutdown complete")
	return nil
}
