package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"

	"ogimage/internal/app"
	"ogimage/internal/chrome"
	"ogimage/internal/tokens"
	u "ogimage/internal/utils"
)

func main() {
	cfg := u.LoadConfig()
	cfg.ApplyEnv()
	u.InitLogger(
		cfg.Logger.File,
		cfg.Logger.MaxSizeMB,
		cfg.Logger.MaxBackups,
		cfg.Logger.MaxAgeDays,
		cfg.Logger.Compress,
		cfg.Logger.Level,
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var rdb *redis.Client
	if cfg.Cache.ImageCacheEnabled && cfg.Cache.RedisHost != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr: cfg.Cache.RedisHost,
			DB:   cfg.Cache.ImageCacheDB,
		})
		defer rdb.Close()
	}

	var tokenCache *tokens.Cache
	if cfg.Auth.Postgres.Enabled() {
		repo := tokens.NewPostgresRepository(cfg.Auth.Postgres)
		defer repo.Close()
		tokenCache = tokens.NewCache()
		reloader := tokens.NewReloader(repo, tokenCache, cfg.Auth.RefreshInterval)
		if err := reloader.LoadOnce(ctx); err != nil {
			u.Error("Failed to load API tokens", "error", err)
		}
		go reloader.Run(ctx)
	}

	driver := chrome.NewDriver(cfg, chrome.ResolverFromConfig(cfg.Chrome))
	defer driver.Close()

	fiberApp, err := app.SetupApp(app.Deps{
		Config:  cfg,
		Redis:   rdb,
		Tokens:  tokenCache,
		Shooter: driver,
	})
	if err != nil {
		u.Error("Failed to set up app", "error", err)
		os.Exit(1)
	}

	idleConnsClosed := make(chan struct{})
	startServer(fiberApp, cfg, idleConnsClosed)
	<-idleConnsClosed
}

// startServer starts the Fiber app and blocks until a shutdown signal.
func startServer(app *fiber.App, cfg u.Config, idleConnsClosed chan struct{}) {
	go func() {
		u.Info("Listening", "addr", cfg.Server.Host+cfg.Server.Port)
		if err := app.Listen(cfg.Server.Host + cfg.Server.Port); err != nil {
			u.Error("Server error", "error", err)
		}
	}()

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigint)
	<-sigint

	u.Warn("Shutdown signal received, closing server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		u.Error("Server forced to shutdown", "error", err)
	}

	close(idleConnsClosed)
	u.Info("Server stopped cleanly")
}
