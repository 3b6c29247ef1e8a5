package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/linkpocket/internal/backend"
	"github.com/MrSnakeDoc/linkpocket/internal/backend/local"
	"github.com/MrSnakeDoc/linkpocket/internal/backend/remote"
	"github.com/MrSnakeDoc/linkpocket/internal/config"
	"github.com/MrSnakeDoc/linkpocket/internal/enrich"
	"github.com/MrSnakeDoc/linkpocket/internal/httpserver"
	"github.com/MrSnakeDoc/linkpocket/internal/httpserver/deps"
	"github.com/MrSnakeDoc/linkpocket/internal/index"
	"github.com/MrSnakeDoc/linkpocket/internal/logger"
	"github.com/MrSnakeDoc/linkpocket/internal/redis"
	"github.com/MrSnakeDoc/linkpocket/internal/session"
	"github.com/MrSnakeDoc/linkpocket/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	session     *session.Session
	local       *local.Backend
	redisClient *goredis.Client
}

func New() (*App, error) {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	// Guest storage must open; a corrupt blob stops startup here.
	blobs, err := local.OpenBlobs(cfg.LocalStore, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	localBackend, err := local.New(blobs, loggerClient)
	if err != nil {
		_ = blobs.Close()
		return nil, fmt.Errorf("load local store: %w", err)
	}
	loggerClient.Info("local store ready",
		logger.String("kind", cfg.LocalStore), logger.String("dir", cfg.DataDir))

	// Redis is optional: without it the app runs in guest mode only.
	var (
		redisClient *goredis.Client
		factory     session.RemoteFactory
	)
	if cfg.SignInEnabled() {
		loggerClient.Infof("Connecting to Redis at %s", cfg.RedisAddr)
		redisClient, err = redis.Connect(context.Background(), redis.ConnectOptions{
			Addr:           cfg.RedisAddr,
			User:           cfg.RedisUser,
			Password:       cfg.RedisPassword,
			DB:             cfg.RedisDB,
			DialTimeout:    cfg.RedisDT,
			ReadTimeout:    cfg.RedisRT,
			WriteTimeout:   cfg.RedisWT,
			PoolSize:       cfg.RedisPoolSize,
			ConnectTimeout: cfg.RedisConnectTimeout,
			RetryInterval:  cfg.RedisRetryInterval,
			MaxWait:        cfg.RedisMaxWait,
			PingTimeout:    cfg.RedisPingTimeout,
			WarnThreshold:  cfg.RedisWarnThreshold,
		}, loggerClient)
		if err != nil {
			loggerClient.Error("redis unavailable, sign-in disabled", logger.Error(err))
			redisClient = nil
		} else {
			client, prefix := redisClient, cfg.KeyPrefix
			factory = func(uid string) (backend.Backend, error) {
				return remote.New(client, prefix, uid, loggerClient), nil
			}
		}
	} else {
		loggerClient.Info("redis not configured, sign-in disabled")
	}

	enricher := enrich.NewHTTP(enrich.Options{
		OEmbedEndpoint: cfg.EnrichEndpoint,
		Timeout:        cfg.EnrichTimeout,
		MaxBody:        cfg.EnrichMaxBody,
	}, loggerClient)

	sess := session.New(localBackend, factory, enricher, index.NewMemoryIndex(), loggerClient,
		session.WithDefaultFolderNames(cfg.DefaultFolderNames))

	d := deps.Deps{
		Logger:          loggerClient,
		StartTime:       time.Now(),
		Version:         version.Version,
		Commit:          version.Commit,
		BuildDate:       version.BuildDate,
		GoVersion:       version.GoVersion,
		TimeNow:         time.Now,
		AllowedCIDRS:    cfg.AllowedCIDRS,
		TrustProxy:      cfg.TrustProxy,
		CreateRateLimit: cfg.CreateRateLimit,
		LocalStore:      cfg.LocalStore,
		Session:         sess,
		RedisClient:     redisClient,
	}

	return &App{
		cfg:         cfg,
		logger:      loggerClient,
		server:      httpserver.New(cfg, loggerClient, d),
		session:     sess,
		local:       localBackend,
		redisClient: redisClient,
	}, nil
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting %s on %s", version.String(), a.cfg.ListenPort)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.session.Start(ctx); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	a.logger.Info("session started", logger.String("backend", a.session.Info().Backend))

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to stop server: %w", err)
	}

	a.session.Close()

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warnf("failed to close redis: %v", err)
		} else {
			a.logger.Info("✅ Redis closed cleanly")
		}
	}
	if err := a.local.Close(); err != nil {
		a.logger.Warnf("failed to close local store: %v", err)
	}

	_ = a.logger.Sync()
	if runErr == nil {
		a.logger.Info("✅ linkpocket stopped cleanly")
	}
	return runErr
}
