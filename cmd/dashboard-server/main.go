package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/naitur/dashboard/internal/config"
	"github.com/naitur/dashboard/internal/dashboard"
	"github.com/naitur/dashboard/internal/domain/dataset"
	"github.com/naitur/dashboard/internal/domain/export"
	"github.com/naitur/dashboard/internal/domain/seed"
	"github.com/naitur/dashboard/internal/domain/tracking"
	"github.com/naitur/dashboard/internal/platform/auth"
	"github.com/naitur/dashboard/internal/platform/charts"
	"github.com/naitur/dashboard/internal/platform/db"
	"github.com/naitur/dashboard/internal/platform/middleware"
	"github.com/naitur/dashboard/internal/platform/openapi"
	"github.com/naitur/dashboard/internal/platform/reporting"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "dashboard-server",
		Short: "Wellness tracking analytics dashboard",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config) (db.Store, error) {
	return db.Open(ctx, cfg.DatabaseURL, db.Options{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the dashboard server",
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

	// migrate up
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := context.Background()
			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			count, err := db.NewMigrator(store, nil).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := context.Background()
			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			statuses, err := db.NewMigrator(store, nil).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for %s store\n", store.Dialect())
			printStatus(os.Stdout, statuses)
			return nil
		},
	})

	return cmd
}

func printStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

// seedRand returns a generator seeded with seed, or with the clock when seed
// is zero.
func seedRand(seed int64) (*rand.Rand, int64) {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed)), seed
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the store with the form catalog and synthetic clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Env)

			clients := cfg.SeedClients
			if cmd.Flags().Changed("clients") {
				clients, _ = cmd.Flags().GetInt("clients")
			}
			seedValue := cfg.SeedRandom
			if cmd.Flags().Changed("seed") {
				seedValue, _ = cmd.Flags().GetInt64("seed")
			}
			if clients < 0 {
				return fmt.Errorf("--clients must not be negative")
			}

			ctx := context.Background()
			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			if _, err := db.NewMigrator(store, nil).WithLogger(logger).Up(ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			catalog, err := seed.DefaultCatalog()
			if err != nil {
				return err
			}
			rng, used := seedRand(seedValue)
			logger.Info().Int("clients", clients).Int64("seed", used).Msg("seeding store")

			res, err := seed.NewGenerator(store, tracking.NewRepository(store), catalog, seed.Options{
				Clients: clients,
				Rand:    rng,
				Logger:  logger,
			}).Run(ctx)
			if err != nil {
				return fmt.Errorf("seed failed: %w", err)
			}

			fmt.Printf("Seeded %d protocols, %d forms, %d questions, %d clients, %d answers in %s (seed %d).\n",
				res.Protocols, res.Forms, res.Questions, res.Clients, res.Answers, res.Elapsed, used)
			return nil
		},
	}
	cmd.Flags().Int("clients", 100, "Number of synthetic clients (default SEED_CLIENTS)")
	cmd.Flags().Int64("seed", 0, "Random seed; 0 seeds from the clock (default SEED_RANDOM)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write one client's responses as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			clientID, _ := cmd.Flags().GetInt64("client")
			columns, _ := cmd.Flags().GetStringSlice("columns")
			out, _ := cmd.Flags().GetString("out")
			if clientID <= 0 {
				return fmt.Errorf("--client is required")
			}
			if len(columns) == 0 {
				columns = nil
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := context.Background()
			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			loader := dataset.NewLoader(tracking.NewRepository(store))
			v, err := loader.Version(ctx)
			if err != nil {
				return err
			}
			s, err := loader.Load(ctx, v)
			if err != nil {
				return err
			}
			return writeExport(s, clientID, columns, out)
		},
	}
	cmd.Flags().Int64("client", 0, "Client id")
	cmd.Flags().StringSlice("columns", nil, "Columns to include, by label or key (default: the first seven)")
	cmd.Flags().String("out", "", "Output file; empty writes to stdout, \"-\" too, a directory gets <client>_data.csv")
	return cmd
}

// writeExport writes the client's CSV to out. An out naming a directory
// receives the file under its default name.
func writeExport(s *dataset.Snapshot, clientID int64, columns []string, out string) error {
	client, ok := s.Client(clientID)
	if !ok {
		return fmt.Errorf("client %d: %w", clientID, tracking.ErrNotFound)
	}
	rows, err := export.ClientRows(s, clientID)
	if err != nil {
		return err
	}

	if out == "" || out == "-" {
		return export.WriteCSV(os.Stdout, rows, columns)
	}
	if info, err := os.Stat(out); err == nil && info.IsDir() {
		out = filepath.Join(out, export.FileName(client.Name))
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}
	if err := export.WriteCSV(f, rows, columns); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the JSON API",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			roles, _ := cmd.Flags().GetStringSlice("roles")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.AuthSigningKey == "" {
				return fmt.Errorf("AUTH_SIGNING_KEY is not set")
			}

			tok, err := auth.IssueToken(jwtConfig(cfg), subject, roles, ttl)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().String("subject", "dashboard", "Token subject")
	cmd.Flags().StringSlice("roles", []string{auth.RoleViewer}, "Granted roles (viewer, admin)")
	cmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

func jwtConfig(cfg *config.Config) auth.JWTConfig {
	return auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		SigningKey: []byte(cfg.AuthSigningKey),
		Skipper:    auth.AuthSkipper,
	}
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	if cfg.ResolvedAuthMode() == config.AuthJWT {
		return auth.JWTMiddleware(jwtConfig(cfg))
	}
	return auth.NoAuthMiddleware()
}

var apiSummaries = map[string]string{
	"getSummary":      "Headline counts of clients, answers, forms and protocols",
	"getTrends":       "Mean, deviation and count per time point, grouped by form, protocol or client",
	"listClients":     "Clients, paginated with limit and offset",
	"getClient":       "One client with their trend by form and by protocol",
	"exportClient":    "One client's answers as CSV",
	"listForms":       "Forms with their question ids",
	"listProtocols":   "Protocols with their form ids",
	"getDistribution": "Score distribution for the selected form, client or protocols",
	"getReport":       "Protocol efficacy or client progress report",
	"invalidateCache": "Drop the cached snapshot; requires the admin role",
	"listMeasures":    "Predefined store measures",
	"evaluateMeasure": "Run one store measure",
}

// newServer wires every route of the dashboard on a fresh echo instance.
func newServer(cfg *config.Config, store db.Store, logger zerolog.Logger) (*echo.Echo, error) {
	renderer, err := dashboard.NewRenderer()
	if err != nil {
		return nil, err
	}
	metrics := middleware.NewMetrics()
	cache := dataset.NewCache(dataset.NewLoader(tracking.NewRepository(store)), metrics, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = renderer
	e.Validator = dashboard.NewValidator()

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.GzipWithConfig(echomw.GzipConfig{
		Skipper: func(c echo.Context) bool {
			return strings.HasPrefix(c.Request().URL.Path, "/charts/")
		},
	}))
	e.Use(middleware.ETagMiddleware(middleware.DefaultCacheConfig()))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(store))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	h := dashboard.NewHandler(cache, store, charts.Options{
		Width:  cfg.ChartWidth,
		Height: cfg.ChartHeight,
		Format: charts.PNG,
	}, logger)
	h.RegisterRoutes(e)

	apiV1 := e.Group("/api/v1")
	apiV1.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	apiV1.Use(authMiddleware(cfg))
	h.RegisterAPI(apiV1)
	reporting.NewHandler(store).RegisterRoutes(apiV1)

	docs := openapi.NewGenerator(version, "", "/api/v1", e.Routes)
	if cfg.ResolvedAuthMode() == config.AuthJWT {
		docs.WithBearerAuth()
	}
	for id, summary := range apiSummaries {
		docs.Describe(id, summary)
	}
	docs.RegisterRoutes(apiV1)

	return e, nil
}

func runServer() error {
	// Logger
	logger := newLogger(os.Getenv("ENV"))

	// Config
	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger = newLogger(cfg.Env)
	if cfg.ResolvedAuthMode() == config.AuthNone {
		logger.Warn().Msg("JSON API is unauthenticated (AUTH_MODE=none)")
	}

	// Database
	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer store.Close()
	logger.Info().Str("dialect", string(store.Dialect())).Msg("connected to database")

	applied, err := db.NewMigrator(store, nil).WithLogger(logger).Up(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to apply migrations")
	}
	if applied > 0 {
		logger.Info().Int("applied", applied).Msg("schema initialized")
	}

	e, err := newServer(cfg, store, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build server")
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
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
