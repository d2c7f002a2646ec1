package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"school_resources_backend/internal/config"
	"school_resources_backend/internal/database"
	"school_resources_backend/internal/models"
	"school_resources_backend/internal/repositories"
	"school_resources_backend/internal/repositories/memory"
	"school_resources_backend/internal/router"
	"school_resources_backend/internal/services"
	"school_resources_backend/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newRootCommand() *cobra.Command {
	var configPath string
	var cfg config.Config

	root := &cobra.Command{
		Use:           "schoolres",
		Short:         "School resource ledger: inventory, library loans and lab bookings",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
			utils.InitLogger(cfg.Log.Level, cfg.Log.Format)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file (yaml, json or toml)")

	root.AddCommand(
		newServeCommand(&cfg),
		newMigrateCommand(&cfg),
		newTokenCommand(&cfg),
	)
	return root
}

func newServeCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, *cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	if err := utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.Issuer); err != nil {
		return fmt.Errorf("configuring JWT: %w", err)
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	deps := router.Dependencies{
		Store:          store,
		Gate:           services.ClaimsGate{},
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	}
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		deps.Metrics = services.NewMetrics(reg)
		deps.Gatherer = reg
	}

	if utils.IsEmpty(os.Getenv(gin.EnvGinMode)) {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.New(deps),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		utils.LogInfo("Server starting", map[string]interface{}{"port": cfg.Port, "store": cfg.Store.Driver})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listening on :%s: %w", cfg.Port, err)
	case <-ctx.Done():
	}

	utils.LogInfo("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Config) (repositories.Store, func(), error) {
	if cfg.Store.Driver == config.DriverMemory {
		utils.LogWarn("Using the in-memory store; data is lost on restart")
		return memory.NewStore(), func() {}, nil
	}

	db, err := database.Open(ctx, cfg.DSN())
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if err := db.Close(); err != nil {
			utils.LogError(err, "Closing database")
		}
	}
	if cfg.DB.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			closeDB()
			return nil, nil, err
		}
	}
	return repositories.NewPostgresStore(db), closeDB, nil
}

func newMigrateCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := database.Open(cmd.Context(), cfg.DSN())
			if err != nil {
				return err
			}
			defer db.Close()
			return database.Migrate(cmd.Context(), db)
		},
	}
}

func newTokenCommand(cfg *config.Config) *cobra.Command {
	var (
		userID   int64
		username string
		role     string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for development and testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, ok := models.ParseRole(role)
			if !ok {
				return fmt.Errorf("unknown role %q", role)
			}
			if userID <= 0 {
				return fmt.Errorf("--user-id must be positive")
			}
			if err := utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.Issuer); err != nil {
				return fmt.Errorf("configuring JWT: %w", err)
			}
			token, err := utils.GenerateAccessToken(userID, username, string(parsed), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user-id", 0, "principal id")
	cmd.Flags().StringVar(&username, "username", "", "display name carried in the token")
	cmd.Flags().StringVar(&role, "role", "", "teacher, storekeeper, librarian, lab_technician or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user-id")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}
