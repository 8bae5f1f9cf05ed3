package main

import (
	"context"
	crypto_rand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/domain/queue"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/middleware"
	"github.com/clinic/clinic/internal/platform/telemetry"
	"github.com/clinic/clinic/internal/platform/websocket"
	"github.com/clinic/clinic/internal/seed"
	"github.com/clinic/clinic/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "Clinic front desk queue server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(queueCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	if os.Getenv("ENV") == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the queue API server",
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

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			migrator, closeFn, err := openMigrator(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			migrator, closeFn, err := openMigrator(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
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
	})

	return cmd
}

func openMigrator(ctx context.Context) (*db.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required to run migrations")
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, migrations.FS), pool.Close, nil
}

func queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and operate the patient queue",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "display",
		Short: "Print the entry the now-serving screen shows",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, closeFn, err := openQueueService(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			entry, err := svc.Display(ctx)
			if err != nil {
				return err
			}
			fmt.Println(renderDisplay(entry))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print every queue entry in presentation order",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, closeFn, err := openQueueService(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			entries, err := svc.List(ctx)
			if err != nil {
				return err
			}
			fmt.Println(renderQueue(entries))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Move every in-progress entry back to waiting",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, closeFn, err := openQueueService(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			n, err := svc.ResetAllInProgressToWaiting(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Reset %d entry(ies) to %s.\n", n, queue.StatusWaiting)
			return nil
		},
	})

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the now-serving screen and print every change",
		RunE: func(cmd *cobra.Command, args []string) error {
			interval, _ := cmd.Flags().GetDuration("interval")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if interval <= 0 {
				interval = cfg.DisplayPollInterval
			}

			logger := newLogger()
			b, err := openBackend(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer b.Close()

			svc := b.queueService(logger)
			w := queue.NewWatcher(svc, interval, func(_ context.Context, e *queue.Entry) {
				fmt.Println(renderDisplay(e))
			}, logger)

			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	watchCmd.Flags().Duration("interval", 0, "Poll interval (defaults to DISPLAY_POLL_INTERVAL)")
	cmd.AddCommand(watchCmd)

	return cmd
}

func openQueueService(ctx context.Context) (*queue.Service, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger()
	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if cfg.StoreBackend == config.BackendMemory {
		logger.Warn().Msg("STORE_BACKEND=memory: this process sees an empty queue")
	}
	return b.queueService(logger), b.Close, nil
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage staff access tokens",
	}

	issueCmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a signed staff token",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			roles, _ := cmd.Flags().GetStringSlice("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if subject == "" {
				return fmt.Errorf("--subject is required")
			}
			if len(roles) == 0 {
				return fmt.Errorf("at least one --role is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.AuthSigningKey == "" {
				return fmt.Errorf("AUTH_SIGNING_KEY is required to issue tokens")
			}
			key, _, err := resolveSigningKey(cfg.AuthSigningKey)
			if err != nil {
				return err
			}
			issuer, err := auth.NewTokenIssuer(key)
			if err != nil {
				return err
			}

			token, err := issuer.Issue(subject, roles, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	issueCmd.Flags().String("subject", "", "Staff user id placed in the sub claim")
	issueCmd.Flags().StringSlice("role", nil, "Role to grant (admin, physician, nurse, registrar); repeatable")
	issueCmd.Flags().Duration("ttl", 12*time.Hour, "Token lifetime")
	cmd.AddCommand(issueCmd)

	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the clinic with fake patients and queue entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			nPatients, _ := cmd.Flags().GetInt("patients")
			nEntries, _ := cmd.Flags().GetInt("entries")
			fakeSeed, _ := cmd.Flags().GetUint64("seed")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := checkSeedBackend(cfg.StoreBackend); err != nil {
				return err
			}
			logger := newLogger()
			ctx := cmd.Context()
			b, err := openBackend(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer b.Close()

			var creator seed.PatientCreator
			if b.patients != nil {
				creator = b.patients
			}
			res, err := seed.Run(ctx, seed.NewGenerator(fakeSeed), creator, b.queueService(logger), nPatients, nEntries, logger)
			if err != nil {
				return err
			}
			fmt.Printf("Seeded %d patient(s) and %d queue entry(ies).\n", res.Patients, res.Entries)
			return nil
		},
	}
	cmd.Flags().Int("patients", 20, "Patients to create (postgres backend only)")
	cmd.Flags().Int("entries", 8, "Queue entries to add")
	cmd.Flags().Uint64("seed", 0, "Fake data seed; 0 picks a random one")
	return cmd
}

// checkSeedBackend refuses the memory backend: its store lives only as long
// as the seed command, so nothing would be left behind.
func checkSeedBackend(backend string) error {
	if backend == config.BackendMemory {
		return fmt.Errorf("seed needs a shared store; set STORE_BACKEND to %s or %s", config.BackendPostgres, config.BackendRedis)
	}
	return nil
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx := context.Background()
	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("failed to open storage backend")
	}
	defer b.Close()
	logger.Info().Str("backend", cfg.StoreBackend).Msg("storage backend ready")

	key, random, err := resolveSigningKey(cfg.AuthSigningKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to resolve signing key")
	}
	if random {
		logger.Warn().Msg("AUTH_SIGNING_KEY not set, using a random key; issued tokens stop working on restart")
	}
	issuer, err := auth.NewTokenIssuer(key)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create token issuer")
	}

	// Metrics
	reg := telemetry.NewRegistry()
	httpMetrics := telemetry.NewHTTPMetrics(reg)
	queueMetrics := telemetry.NewQueueMetrics(reg)

	// The hub's initial-state hook and the service's publisher refer to
	// each other.
	var queueSvc *queue.Service
	hub := websocket.NewHub(logger, websocket.WithInitialState(func(ctx context.Context, topic string) (websocket.Event, bool) {
		return queueSvc.InitialDisplay(ctx, topic)
	}))
	queueSvc = b.queueService(logger, queue.WithPublisher(hub), queue.WithRecorder(queueMetrics))

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(httpMetrics.Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	var authMW echo.MiddlewareFunc
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware(issuer)
	} else {
		authMW = auth.JWTMiddleware(issuer)
	}

	rateLimit := middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	})
	apiV1 := e.Group("/api/v1", rateLimit, authMW)
	publicV1 := e.Group("/api/v1", rateLimit)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"backend": cfg.StoreBackend,
		})
	})
	e.GET("/metrics", telemetry.Handler(reg))

	queue.NewHandler(queueSvc).RegisterRoutes(apiV1, publicV1)
	if b.patients != nil {
		patient.NewHandler(b.patients).RegisterRoutes(apiV1)
	}
	websocket.NewHandler(hub, cfg.CORSOrigins).RegisterRoutes(e)

	if b.pool != nil {
		e.GET("/health/db", db.HealthHandler(b.pool))
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
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
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// resolveSigningKey decodes the hex AUTH_SIGNING_KEY or generates a random
// 32-byte key. The second return value is true when the key is random.
func resolveSigningKey(envValue string) ([]byte, bool, error) {
	if envValue != "" {
		decoded, err := hex.DecodeString(envValue)
		if err != nil {
			return nil, false, fmt.Errorf("invalid AUTH_SIGNING_KEY hex value: %w", err)
		}
		return decoded, false, nil
	}
	key := make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("failed to generate random signing key: %w", err)
	}
	return key, true, nil
}
