package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cooperapp/cooperapp/internal"
	"github.com/cooperapp/cooperapp/internal/audit"
	auditPostgres "github.com/cooperapp/cooperapp/internal/audit/postgres"
	"github.com/cooperapp/cooperapp/internal/auth"
	authPostgres "github.com/cooperapp/cooperapp/internal/auth/postgres"
	"github.com/cooperapp/cooperapp/internal/expense"
	expensePostgres "github.com/cooperapp/cooperapp/internal/expense/postgres"
	"github.com/cooperapp/cooperapp/internal/project"
	projectPostgres "github.com/cooperapp/cooperapp/internal/project/postgres"
	"github.com/cooperapp/cooperapp/internal/transport/rest"
	"github.com/cooperapp/cooperapp/internal/user"
	userPostgres "github.com/cooperapp/cooperapp/internal/user/postgres"
	"github.com/cooperapp/cooperapp/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config *internal.Config
	DB     *sqlx.DB
	GormDB *gorm.DB
	Router *chi.Mux
	Logger *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	if err := setupRoutes(deps); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up routes: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	slog.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      deps.Router,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
		IdleTimeout:  deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		if err := deps.DB.Close(); err != nil {
			slog.Error("Database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Server stopped")
}

func setupRoutes(deps *Dependencies) error {
	cfg := deps.Config
	db := deps.GormDB

	auditRepo := auditPostgres.NewAuditRepository(db)
	auditService := audit.NewService(auditRepo, deps.Logger)
	auditHandler := audit.NewHandler(auditService)

	signer := auth.NewTokenSigner(cfg.Security.SessionSecret, cfg.Security.InternalSessionTTL)

	authRepo := authPostgres.NewAuthRepository(db)
	authService := auth.NewService(authRepo, auditService, signer, deps.Logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	provider, err := auth.NewOIDCProvider(ctx, cfg.Identity)
	if err != nil {
		return fmt.Errorf("identity provider: %w", err)
	}

	cookieSecure := strings.HasPrefix(cfg.Server.BaseURL, "https://")
	authHandler := auth.NewHandler(authService, provider, cookieSecure, cfg.Security.InternalSessionTTL)
	gate := auth.NewGate(authService, deps.Logger)

	userRepo := userPostgres.NewUserRepository(db)
	userTx := userPostgres.NewTxManager(db, auditService)
	userService := user.NewService(userRepo, userTx, deps.Logger)
	userHandler := user.NewHandler(userService)

	projectRepo := projectPostgres.NewProjectRepository(db)
	projectTx := projectPostgres.NewTxManager(db, auditService)
	projectService := project.NewService(projectRepo, projectTx, deps.Logger)
	projectHandler := project.NewHandler(projectService)

	expenseRepo := expensePostgres.NewExpenseRepository(db)
	expenseTx := expensePostgres.NewTxManager(db, auditService)
	expenseService := expense.NewService(expenseRepo, expenseTx, deps.Logger)
	expenseHandler := expense.NewHandler(expenseService)

	rest.RegisterAllRoutes(
		deps.Router,
		deps.DB,
		gate,
		authHandler,
		userHandler,
		projectHandler,
		expenseHandler,
		auditHandler,
		deps.Logger,
	)
	return nil
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(config.Observability.Logging.Level, config.Observability.Logging.Format)

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := initGorm(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize orm: %w", err)
	}

	return &Dependencies{
		Config: config,
		Logger: logger.L(),
		DB:     db,
		GormDB: gormDB,
		Router: chi.NewRouter(),
	}, nil
}

// initDB opens the plain database/sql connection used for health checks.
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// verify connection; close underlying *sql.DB on failure
	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGorm opens the ORM connection the repositories run on.
func initGorm(cfg internal.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(gormPostgres.Open(cfg.Source), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open orm connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access underlying connection: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}
