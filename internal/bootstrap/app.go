package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"samchat/internal/config"
	"samchat/internal/model"
	"samchat/internal/pkg/logging"
	mysqlClient "samchat/internal/platform/mysql"
	rabbitmqClient "samchat/internal/platform/rabbitmq"
	redisClient "samchat/internal/platform/redis"
	"samchat/internal/repository"
	"samchat/internal/worker"
)

// App holds the chat API's long-lived resources.
type App struct {
	Config        *config.Config
	Logger        *zap.Logger
	MySQL         *gorm.DB
	Redis         *redis.Client
	MQConn        *amqp.Connection
	MessageWorker *worker.MessagePersistWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	logger := logging.New(cfg.Log).With(zap.String("app", cfg.App.Name), zap.String("binary", "server"))

	app := &App{Config: cfg, Logger: logger, StartedAt: time.Now()}

	app.MySQL, err = mysqlClient.New(ctx, cfg.MySQLDSN(), logger, &model.User{}, &model.Conversation{}, &model.Message{})
	if err != nil {
		return nil, app.fail(err)
	}

	app.Redis, err = redisClient.New(ctx, cfg.Redis)
	if err != nil {
		return nil, app.fail(err)
	}

	app.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.MessagePersistQueue)
	if err != nil {
		return nil, app.fail(err)
	}

	messageRepo := repository.NewMessageRepository(app.MySQL)
	app.MessageWorker = worker.NewMessagePersistWorker(app.MQConn, messageRepo, cfg.RabbitMQ.MessagePersistQueue, logger)
	if err := app.MessageWorker.Start(ctx); err != nil {
		return nil, app.fail(fmt.Errorf("start message worker failed: %w", err))
	}

	logger.Info("backend resources ready",
		zap.String("mysql", fmt.Sprintf("%s:%d/%s", cfg.MySQL.Host, cfg.MySQL.Port, cfg.MySQL.DB)),
		zap.String("redis", cfg.Redis.Addr),
		zap.String("queue", cfg.RabbitMQ.MessagePersistQueue),
	)
	return app, nil
}

// fail releases whatever was opened before a bootstrap step failed.
func (a *App) fail(err error) error {
	if closeErr := a.Close(); closeErr != nil {
		return errors.Join(err, closeErr)
	}
	return err
}

func (a *App) Close() error {
	var closeErr error
	if a.MessageWorker != nil {
		a.MessageWorker.Close()
	}
	if a.MQConn != nil && !a.MQConn.IsClosed() {
		if err := a.MQConn.Close(); err != nil {
			closeErr = errors.Join(closeErr, err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = errors.Join(closeErr, err)
		}
	}
	if a.MySQL != nil {
		if sqlDB, err := a.MySQL.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = errors.Join(closeErr, err)
			}
		}
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return closeErr
}
