package main

import (
	"context"
	"fmt"
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

	"github.com/clinterm/clinterm/internal/config"
	"github.com/clinterm/clinterm/internal/domain/concept"
	"github.com/clinterm/clinterm/internal/domain/dmd"
	"github.com/clinterm/clinterm/internal/domain/medication"
	"github.com/clinterm/clinterm/internal/domain/search"
	"github.com/clinterm/clinterm/internal/platform/auth"
	"github.com/clinterm/clinterm/internal/platform/db"
	"github.com/clinterm/clinterm/internal/platform/middleware"
	"github.com/clinterm/clinterm/internal/platform/release"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "termserver",
		Short: "Clinical terminology server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(closureCmd())
	rootCmd.AddCommand(indexCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

// openPool loads config and connects to the database. The caller owns the
// returned pool.
func openPool(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	p, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	return cfg, p, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the terminology API server",
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
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, cfg.MigrationsDir)
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
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, cfg.MigrationsDir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("migration status: %w", err)
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
	})

	return cmd
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <release-dir>",
		Short: "Import RF1 release files into the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := context.Background()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			importer := release.NewImporter(
				concept.NewConceptRepo(pool),
				concept.NewDescriptionRepo(pool),
				concept.NewRelationshipRepo(pool),
				logger,
			)
			results, err := importer.ImportDir(ctx, args[0])
			if err != nil {
				return err
			}
			for name, counts := range results {
				fmt.Printf("%s: read %d, imported %d, skipped %d\n",
					name, counts.Read, counts.Imported, counts.Skipped)
			}
			fmt.Println("Import complete. Run 'termserver closure rebuild' and 'termserver index rebuild' next.")
			return nil
		},
	}
}

func closureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "closure",
		Short: "Manage the ancestor closure cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "rebuild",
		Short: "Recompute the transitive closure for every concept",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := context.Background()
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := newConceptService(pool, logger)
			progress, err := svc.RebuildAll(ctx, cfg.ClosureBatch)
			if err != nil {
				return err
			}
			fmt.Printf("Closure rebuilt: %d of %d concepts, %d failed, took %s.\n",
				progress.Processed, progress.Total, progress.Failed, progress.Elapsed)
			return nil
		},
	})

	return cmd
}

func indexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the search index",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the search index into a fresh generation",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := context.Background()
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			conceptSvc := newConceptService(pool, logger)
			searchSvc := search.NewService(
				search.NewIndexRepo(pool),
				concept.NewDescriptionRepo(pool),
				conceptSvc,
				cfg.SearchMaxHits,
				logger,
			)
			progress, err := searchSvc.ReindexAll(ctx, cfg.IndexBatch)
			if err != nil {
				return err
			}
			fmt.Printf("Index generation %d published: %d documents, %d skipped, took %s.\n",
				progress.Generation, progress.Processed, progress.Skipped, progress.Elapsed)
			return nil
		},
	})

	return cmd
}

func newConceptService(pool *pgxpool.Pool, logger zerolog.Logger) *concept.Service {
	return concept.NewService(
		concept.NewConceptRepo(pool),
		concept.NewDescriptionRepo(pool),
		concept.NewRelationshipRepo(pool),
		concept.NewClosureRepo(pool),
		logger,
	)
}

func runServer() error {
	logger := newLogger()

	ctx := context.Background()
	cfg, pool, err := openPool(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware([]byte(cfg.AuthSecret)))
	}

	// API groups
	apiV1 := e.Group("/v1")
	adminV1 := e.Group("/v1/admin")
	adminV1.Use(auth.RequireRole("admin"))

	apiV1.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))

	// Services. The concept service backs the search indexer, the dm+d
	// navigator, and the medication name resolver.
	conceptSvc := newConceptService(pool, logger)
	searchSvc := search.NewService(
		search.NewIndexRepo(pool),
		concept.NewDescriptionRepo(pool),
		conceptSvc,
		cfg.SearchMaxHits,
		logger,
	)
	medicationSvc := medication.NewService(searchSvc, logger)
	dmdSvc := dmd.NewService(conceptSvc, logger)

	// Health check reports the pool plus the terminology subsystems.
	e.GET("/health", db.HealthHandler(pool, map[string]db.Check{
		"closure": func(context.Context) (interface{}, bool) {
			detail := map[string]interface{}{"rebuilding": conceptSvc.Rebuilding()}
			if p := conceptSvc.Progress(); p != nil {
				detail["last_rebuild"] = p
			}
			return detail, true
		},
		"search_index": func(ctx context.Context) (interface{}, bool) {
			gen, err := searchSvc.PublishedGeneration(ctx)
			if err != nil {
				return map[string]interface{}{"error": err.Error()}, false
			}
			return map[string]interface{}{
				"active_generation": gen,
				"published":         gen != 0,
				"reindexing":        searchSvc.Reindexing(),
			}, true
		},
	}))

	concept.NewHandler(conceptSvc, cfg.ClosureBatch).RegisterRoutes(apiV1, adminV1)
	search.NewHandler(searchSvc, cfg.IndexBatch).RegisterRoutes(apiV1, adminV1)
	medication.NewHandler(medicationSvc).RegisterRoutes(apiV1)
	dmd.NewHandler(dmdSvc).RegisterRoutes(apiV1)

	// Start server
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("server starting")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
	}
	return nil
}
