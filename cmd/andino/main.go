package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andino-labs/andino/internal/audit"
	"github.com/andino-labs/andino/internal/auth"
	"github.com/andino-labs/andino/internal/platform/config"
	"github.com/andino-labs/andino/internal/platform/database"
	"github.com/andino-labs/andino/internal/platform/server"
	"github.com/andino-labs/andino/internal/platform/telemetry"
	"github.com/andino-labs/andino/internal/rbac"
	"github.com/andino-labs/andino/internal/tenant"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.JWT.SigningKey == "" {
		return fmt.Errorf("auth.jwt.signingkey is required")
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}

	// Setup logging
	logger := telemetry.NewLogger(cfg.Log.Level, cfg.Log.Format)
	telemetry.SetDefault(logger)

	slog.Info("andino starting",
		"version", "0.3.0",
		"port", cfg.Server.Port,
	)

	// Connect to database
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	// Run migrations
	migrationsURL := fmt.Sprintf("file://%s", cfg.Database.MigrationsPath)
	if err := database.RunMigrations(cfg.Database.URL, migrationsURL); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("migrations complete")

	// RBAC
	rbacStore := rbac.NewStore(pool)
	resolver := rbac.NewResolver(rbacStore)
	permissionsHandler := rbac.NewPermissionsHandler(rbacStore, logger)

	// Audit trail
	auditStore := audit.NewStore()
	auditLogger := audit.NewAsyncLogger(pool, auditStore, audit.LoggerConfig{
		BufferSize:    cfg.Audit.BufferSize,
		BatchSize:     cfg.Audit.BatchSize,
		FlushInterval: time.Duration(cfg.Audit.FlushIntervalMS) * time.Millisecond,
	})
	defer auditLogger.Close()
	auditHandler := audit.NewHandler(pool, auditStore, logger)
	slog.Info("audit logger started")

	// Auth
	tokenSvc := auth.NewTokenService(
		cfg.Auth.JWT.SigningKey,
		cfg.Auth.JWT.Issuer,
		cfg.Auth.JWT.AccessExpiryMins,
		cfg.Auth.JWT.RefreshExpiryHours,
		cfg.Auth.JWT.RefreshGraceMins,
	)
	authStore := auth.NewStore(pool)
	refreshStore := auth.NewRefreshStore(pool)
	authSvc := auth.NewService(authStore, tokenSvc, refreshStore, logger,
		auth.WithAuditRecorder(auditLogger))
	authHandler := auth.NewHandler(authSvc, resolver, logger)

	// Tenant domain
	audited := tenant.WithAuditLogger(auditLogger)
	companyHandler := tenant.NewCompanyHandler(tenant.NewPGCompanyStore(pool), logger, audited)
	employeeHandler := tenant.NewEmployeeHandler(tenant.NewPGEmployeeStore(pool), logger, audited)
	roleHandler := tenant.NewRoleHandler(tenant.NewPGRoleStore(pool), logger, audited)

	fileStore := tenant.NewPGFileStore(pool)
	fileHandler := tenant.NewFileHandler(fileStore, fileStore, tenant.FileExpiryPolicy{
		DefaultExpiry: time.Duration(cfg.Files.DefaultExpiryMins) * time.Minute,
		MaxExpiry:     time.Duration(cfg.Files.MaxExpiryMins) * time.Minute,
	}, logger, audited)

	// Create and start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := server.New(addr, server.Dependencies{
		Pool:               pool,
		Auth:               authSvc,
		AuthHandler:        authHandler,
		Resolver:           resolver,
		PermissionsHandler: permissionsHandler,
		CompanyHandler:     companyHandler,
		EmployeeHandler:    employeeHandler,
		RoleHandler:        roleHandler,
		FileHandler:        fileHandler,
		AuditHandler:       auditHandler,
		DenialLogger:       auditLogger,
		Logger:             logger,
		CORSAllowedOrigins: cfg.Server.AllowedOrigins,
	})

	// Graceful shutdown on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sweeper := tenant.NewFileSweeper(fileStore,
		time.Duration(cfg.Files.SweepIntervalMins)*time.Minute, logger)
	go sweeper.Run(ctx)

	slog.Info("server ready", "addr", addr)
	return srv.Start(ctx)
}
