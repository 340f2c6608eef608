package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"samchat/internal/ai"
	appsvc "samchat/internal/app"
	"samchat/internal/bootstrap"
	"samchat/internal/cache"
	"samchat/internal/mail"
	"samchat/internal/pkg/logging"
	"samchat/internal/platform/rabbitmq"
	"samchat/internal/repository"
	"samchat/internal/transport/http/handler"
	"samchat/internal/transport/http/middleware"
)

type Handlers struct {
	Auth   *handler.AuthHandler
	Chat   *handler.ChatHandler
	Health *handler.HealthHandler
}

// NewHandler wires the chat API and wraps it in the configured CORS policy.
func NewHandler(app *bootstrap.App) http.Handler {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(logging.GinMiddleware(app.Logger), gin.Recovery())

	cfg := app.Config
	authService := appsvc.NewAuthService(
		repository.NewUserRepository(app.MySQL),
		cache.NewLoginTokenStore(app.Redis, cfg.LoginTokenTTL()),
		mail.NewMailer(cfg.Mail, app.Logger),
		app.Logger,
		appsvc.AuthOptions{
			JWTSecret:     cfg.Auth.JWTSecret,
			JWTExpiration: cfg.JWTExpiration(),
			AllowedDomain: cfg.Auth.AllowedEmailDomain,
			DebugTokens:   cfg.Auth.DebugTokens,
		},
	)
	chatService := appsvc.NewChatService(
		repository.NewConversationRepository(app.MySQL),
		repository.NewMessageRepository(app.MySQL),
		rabbitmq.NewMessagePublisher(app.MQConn, cfg.RabbitMQ.MessagePersistQueue),
		cache.NewHistoryCache(app.Redis, cfg.HistoryTTL(), cfg.DirtyMarkerTTL()),
		ai.NewOpenAICompatibleClient(cfg.LLMTimeout()),
		ai.ChatConfig{BaseURL: cfg.LLM.BaseURL, APIKey: cfg.LLM.APIKey, Model: cfg.LLM.Model},
		cfg.LLM.MaxContextMessage,
		app.Logger,
	)

	RegisterRoutes(router, Handlers{
		Auth: handler.NewAuthHandler(authService),
		Chat: handler.NewChatHandler(chatService),
		Health: handler.NewHealthHandler(cfg.App.Name, cfg.App.Env, app.StartedAt,
			handler.DependencyCheck{Name: "mysql", Check: func(ctx context.Context) error {
				sqlDB, err := app.MySQL.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			}},
			handler.DependencyCheck{Name: "redis", Check: func(ctx context.Context) error {
				return app.Redis.Ping(ctx).Err()
			}},
			handler.DependencyCheck{Name: "rabbitmq", Check: func(context.Context) error {
				if app.MQConn == nil || app.MQConn.IsClosed() {
					return errors.New("connection closed")
				}
				return nil
			}},
		),
	}, cfg.Auth.JWTSecret)

	return WithCORS(router, cfg.App.CORSOrigins)
}

func RegisterRoutes(router gin.IRouter, h Handlers, jwtSecret string) {
	router.GET("/healthz", h.Health.Check)
	router.POST("/register", h.Auth.Register)
	router.POST("/login", h.Auth.Login)

	authed := router.Group("")
	authed.Use(middleware.AuthJWT(jwtSecret))
	authed.POST("/chat", h.Chat.Chat)
	authed.GET("/conversations", h.Chat.ListConversations)
	authed.GET("/conversations/:id", h.Chat.GetConversation)
	authed.DELETE("/conversations/:id", h.Chat.DeleteConversation)
}

// WithCORS allows browser calls from the given origins ("*" for any).
// Clients authenticate with a bearer token, so cookies are never shared.
func WithCORS(next http.Handler, origins []string) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler(next)
}
