package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/hms/internal/config"
	"github.com/ehr/hms/internal/domain/patient"
	"github.com/ehr/hms/internal/platform/db"
	"github.com/ehr/hms/internal/platform/middleware"
	"github.com/ehr/hms/internal/platform/validate"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "hms-server",
		Short: "Hospital records API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create an empty patient store if none exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			store, pool, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			if pool != nil {
				defer pool.Close()
			}
			if err := store.Init(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Patient store ready (%s).\n", cfg.StoreDriver)
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create patients from a JSON array file",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open seed file: %w", err)
			}
			defer f.Close()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			store, pool, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			if pool != nil {
				defer pool.Close()
			}

			created, skipped, err := seedPatients(ctx, patient.NewService(store), f, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %d patient(s), skipped %d.\n", created, skipped)
			return nil
		},
	}
	cmd.Flags().String("file", "", "Path to a JSON array of patients")
	return cmd
}

// seedPatients creates every patient in r through svc. Duplicates and invalid
// entries are reported on warn and skipped; any other error aborts.
func seedPatients(ctx context.Context, svc *patient.Service, r io.Reader, warn io.Writer) (created, skipped int, err error) {
	var patients []patient.Patient
	if err := json.NewDecoder(r).Decode(&patients); err != nil {
		return 0, 0, fmt.Errorf("decode seed file: %w", err)
	}
	if err := svc.Init(ctx); err != nil {
		return 0, 0, err
	}

	var verr *validate.Error
	for i := range patients {
		p := &patients[i]
		err := svc.Create(ctx, p)
		switch {
		case err == nil:
			created++
		case errors.Is(err, patient.ErrPatientExists) || errors.As(err, &verr):
			fmt.Fprintf(warn, "skipping %q: %v\n", p.ID, err)
			skipped++
		default:
			return created, skipped, err
		}
	}
	return created, skipped, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// openStore picks the record store backend. The pool is nil for the file
// backend.
func openStore(ctx context.Context, cfg *config.Config) (patient.RecordStore, *pgxpool.Pool, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, nil, err
		}
		return patient.NewPGStore(pool), pool, nil
	default:
		return patient.NewFileStore(cfg.DataFile), nil, nil
	}
}

// newServer wires middleware and routes. pool may be nil.
func newServer(cfg *config.Config, logger zerolog.Logger, svc *patient.Service, pool *pgxpool.Pool) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderContentType, middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
			"store":   cfg.StoreDriver,
		})
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool, func() *db.PoolStats { return db.GetPoolStats(pool) }))
	}

	patient.NewHandler(svc).RegisterRoutes(e.Group(""))
	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		logger := newLogger(nil)
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg)

	ctx := context.Background()
	store, pool, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open patient store")
	}
	if pool != nil {
		defer pool.Close()
		// The table is schema, not data, so creating it here does not
		// amount to an empty-store fallback.
		if err := store.Init(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to prepare patient_record table")
		}
		logger.Info().Msg("connected to database")
	}

	svc := patient.NewService(store)
	e := newServer(cfg, logger, svc, pool)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().
			Str("addr", addr).
			Str("store", cfg.StoreDriver).
			Str("data_file", cfg.DataFile).
			Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
