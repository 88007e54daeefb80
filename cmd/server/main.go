// Package main is the entrypoint for the FutureWork API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/kiranshivaraju/futurework/internal/ai"
	"github.com/kiranshivaraju/futurework/internal/api"
	"github.com/kiranshivaraju/futurework/internal/api/handler"
	mw "github.com/kiranshivaraju/futurework/internal/api/middleware"
	"github.com/kiranshivaraju/futurework/internal/cache"
	"github.com/kiranshivaraju/futurework/internal/config"
	"github.com/kiranshivaraju/futurework/internal/forecast"
	"github.com/kiranshivaraju/futurework/internal/session"
	"github.com/kiranshivaraju/futurework/internal/sheets"
	"github.com/kiranshivaraju/futurework/internal/state"
	"github.com/kiranshivaraju/futurework/internal/store"
	"github.com/kiranshivaraju/futurework/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

const shutdownTimeout = 30 * time.Second

// sheetsCallsPerFlow is the longest chain of spreadsheet calls one request
// makes: fetch, create, header append, row append.
const sheetsCallsPerFlow = 4

// writeSlack covers state lookups, run logging and encoding.
const writeSlack = 10 * time.Second

// writeTimeout bounds a response by the slowest prediction flow.
func writeTimeout(cfg *config.Config) time.Duration {
	return cfg.AI.InferenceTimeout + sheetsCallsPerFlow*cfg.Sheets.Timeout + writeSlack
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// A missing .env is normal in production.
	_ = godotenv.Load()

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "ai_provider", cfg.AI.Provider, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	pgStore := store.NewPostgresStore(pool)
	if err := ensureAdminKey(ctx, pgStore, cfg.Server.AdminKey); err != nil {
		return fmt.Errorf("install admin key: %w", err)
	}

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create prediction provider
	provider, err := ai.NewProvider(ctx, cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI provider: %w", err)
	}
	slog.Info("AI provider initialized", "provider", provider.Name())

	// 6. Spreadsheet cache: state in Redis, sessions in memory
	st := state.NewCacheStore(redisCache)
	registry := session.NewRegistry()
	authenticator := session.NewAuthenticator(cfg.OAuth, st, registry)
	sheetsClient := sheets.NewHTTPClient(cfg.Sheets, st)

	flow := forecast.NewFlow(
		ai.NewService(provider, cfg.AI.InferenceTimeout),
		sheetsClient,
		forecast.WithRunLog(pgStore),
	)

	// 7. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	sheetsH := handler.NewSheetsHandlers(authenticator, st)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: mw.NewRateLimit(redisCache, cfg.Server.RateLimitPerMin),
		Busy:      mw.NewBusy(redisCache, cfg.Server.FlowLockTTL),

		HealthHandler:  handler.NewHealthHandler(pgStore, redisCache),
		PredictHandler: handler.NewPredictHandler(flow, registry),
		BulkHandler:    handler.NewBulkHandler(flow, registry),
		ExportHandler:  handler.NewExportHandler(),

		GetRunHandler:   handler.NewGetRunHandler(pgStore),
		ListRunsHandler: handler.NewListRunsHandler(pgStore),

		SheetsStatusHandler:   sheetsH.Status,
		SheetsClientHandler:   sheetsH.SetClient,
		SheetsConnectHandler:  sheetsH.Connect,
		SheetsSignOutHandler:  sheetsH.SignOut,
		SheetsCallbackHandler: sheetsH.Callback,

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server. Writes wait for a full prediction flow.
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout(cfg),
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// ensureAdminKey installs rawKey as an admin key of the default tenant when
// that tenant has no keys. An empty rawKey does nothing.
func ensureAdminKey(ctx context.Context, s store.Store, rawKey string) error {
	if rawKey == "" {
		return nil
	}

	tenant, err := s.GetDefaultTenant(ctx)
	if err != nil {
		return fmt.Errorf("load default tenant: %w", err)
	}
	keys, err := s.ListAPIKeys(ctx, tenant.ID)
	if err != nil {
		return fmt.Errorf("list keys: %w", err)
	}
	if len(keys) > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	key := &models.APIKey{
		ID:        uuid.New(),
		TenantID:  tenant.ID,
		Name:      "bootstrap-admin",
		KeyHash:   string(hash),
		KeyPrefix: rawKey[:8],
		Scopes:    []string{"read", "write", "admin"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.CreateAPIKey(ctx, key); err != nil && !errors.Is(err, store.ErrDuplicateKey) {
		return err
	}
	slog.Info("bootstrap admin key installed", "tenant_id", tenant.ID, "key_prefix", key.KeyPrefix)
	return nil
}
