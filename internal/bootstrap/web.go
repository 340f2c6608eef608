package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"samchat/internal/apiclient"
	"samchat/internal/config"
	"samchat/internal/pkg/logging"
	redisClient "samchat/internal/platform/redis"
	"samchat/internal/session"
)

// WebApp holds the browser client's long-lived resources. Redis is nil when
// browser storage is kept in process memory.
type WebApp struct {
	Config   *config.Config
	Logger   *zap.Logger
	Redis    *redis.Client
	Sessions *session.Store
	API      *apiclient.Client

	StartedAt time.Time
}

func NewWeb(ctx context.Context) (*WebApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	logger := logging.New(cfg.Log).With(zap.String("app", cfg.App.Name), zap.String("binary", "web"))

	app := &WebApp{
		Config:    cfg,
		Logger:    logger,
		API:       apiclient.NewClient(cfg.Web.APIBaseURL, cfg.APITimeout()),
		StartedAt: time.Now(),
	}

	var storage session.Storage = session.NewMemoryStorage()
	if cfg.Web.UseRedis {
		app.Redis, err = redisClient.New(ctx, cfg.Redis)
		if err != nil {
			return nil, app.fail(err)
		}
		storage = session.NewRedisStorage(app.Redis, time.Duration(cfg.Web.StorageTTLHours)*time.Hour)
	}
	app.Sessions = session.NewStore(storage)

	logger.Info("web client resources ready",
		zap.String("api_base_url", cfg.Web.APIBaseURL),
		zap.Bool("redis_storage", app.Redis != nil),
	)
	return app, nil
}

func (a *WebApp) fail(err error) error {
	if closeErr := a.Close(); closeErr != nil {
		return errors.Join(err, closeErr)
	}
	return err
}

func (a *WebApp) Close() error {
	var closeErr error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = errors.Join(closeErr, err)
		}
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return closeErr
}
