// Package web serves the browser client: three server-rendered screens backed
// by one view-model per browser cookie.
package web

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"samchat/internal/bootstrap"
	"samchat/internal/pkg/logging"
	"samchat/internal/render"
	"samchat/internal/transport/http/handler"
	"samchat/internal/viewmodel"
)

//go:embed templates/*.html static/*
var assets embed.FS

const browserIDKey = "browser_id"

type CookieOptions struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

type PageHandler struct {
	registry *viewmodel.Registry
	cookie   CookieOptions
	logger   *zap.Logger
	// background outlives the request that started a send.
	background context.Context
}

func NewPageHandler(background context.Context, registry *viewmodel.Registry, cookie CookieOptions, logger *zap.Logger) *PageHandler {
	return &PageHandler{registry: registry, cookie: cookie, logger: logger, background: background}
}

// NewHandler wires the browser client. The idle-model sweeper runs until ctx
// is done.
func NewHandler(ctx context.Context, app *bootstrap.WebApp) (http.Handler, error) {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(logging.GinMiddleware(app.Logger), gin.Recovery())

	cfg := app.Config
	registry := viewmodel.NewRegistry(app.API, app.Sessions, time.Duration(cfg.Web.IdleMinutes)*time.Minute, app.Logger)
	go registry.Run(ctx, time.Minute)

	var checks []handler.DependencyCheck
	if app.Redis != nil {
		checks = append(checks, handler.DependencyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return app.Redis.Ping(ctx).Err()
		}})
	}

	h := NewPageHandler(ctx, registry, CookieOptions{
		Name:   cfg.Web.CookieName,
		Secure: cfg.Web.CookieSecure,
		MaxAge: time.Duration(cfg.Web.StorageTTLHours) * time.Hour,
	}, app.Logger)
	health := handler.NewHealthHandler(cfg.App.Name, cfg.App.Env, app.StartedAt, checks...)
	if err := RegisterRoutes(router, h, health); err != nil {
		return nil, err
	}
	return router, nil
}

func RegisterRoutes(router *gin.Engine, h *PageHandler, health *handler.HealthHandler) error {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"message": render.Message,
		"clock":   render.Clock,
	}).ParseFS(assets, "templates/*.html")
	if err != nil {
		return fmt.Errorf("parse templates failed: %w", err)
	}
	router.SetHTMLTemplate(tmpl)

	static, err := fs.Sub(assets, "static")
	if err != nil {
		return fmt.Errorf("open static assets failed: %w", err)
	}
	router.StaticFS("/static", http.FS(static))
	router.GET("/healthz", health.Check)

	pages := router.Group("")
	pages.Use(h.browserSession)
	pages.GET("/", h.Index)
	pages.POST("/start", h.Start)
	pages.POST("/back", h.Back)
	pages.POST("/auth/mode", h.SetAuthMode)
	pages.POST("/auth/register", h.Register)
	pages.POST("/auth/login", h.Login)
	pages.POST("/chat/new", h.NewChat)
	pages.POST("/chat/open/:id", h.OpenConversation)
	pages.POST("/chat/send", h.Send)
	pages.POST("/chat/delete/:id", h.DeleteConversation)
	pages.POST("/chat/dismiss", h.DismissError)
	pages.POST("/logout", h.Logout)
	return nil
}

// browserSession assigns every browser an opaque id cookie and refreshes its
// lifetime on each request.
func (h *PageHandler) browserSession(c *gin.Context) {
	id, err := c.Cookie(h.cookie.Name)
	if err == nil {
		_, err = uuid.Parse(id)
	}
	if err != nil {
		id = uuid.NewString()
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, id, int(h.cookie.MaxAge.Seconds()), "/", "", h.cookie.Secure, true)
	c.Set(browserIDKey, id)
	c.Next()
}

func (h *PageHandler) model(c *gin.Context) *viewmodel.Model {
	return h.registry.Get(c.Request.Context(), c.GetString(browserIDKey))
}

func (h *PageHandler) Index(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.HTML(http.StatusOK, "page.html", h.model(c).Snapshot())
}

func (h *PageHandler) Start(c *gin.Context) {
	h.model(c).EnterAuth()
	backToIndex(c)
}

func (h *PageHandler) Back(c *gin.Context) {
	h.model(c).BackToLanding()
	backToIndex(c)
}

func (h *PageHandler) SetAuthMode(c *gin.Context) {
	h.model(c).SetAuthMode(viewmodel.AuthMode(c.PostForm("mode")))
	backToIndex(c)
}

func (h *PageHandler) Register(c *gin.Context) {
	if err := h.model(c).Register(c.Request.Context(), c.PostForm("email")); err != nil {
		h.logger.Debug("register ignored", zap.Error(err))
	}
	backToIndex(c)
}

func (h *PageHandler) Login(c *gin.Context) {
	if err := h.model(c).Login(c.Request.Context(), c.PostForm("email"), c.PostForm("token")); err != nil {
		h.logger.Debug("login ignored", zap.Error(err))
	}
	backToIndex(c)
}

func (h *PageHandler) NewChat(c *gin.Context) {
	h.model(c).NewChat()
	backToIndex(c)
}

func (h *PageHandler) OpenConversation(c *gin.Context) {
	h.model(c).OpenConversation(c.Request.Context(), c.Param("id"))
	backToIndex(c)
}

// Send shows the user's message right away and completes the call in the
// background; the page refreshes itself until the reply lands.
func (h *PageHandler) Send(c *gin.Context) {
	m := h.model(c)
	pending, err := m.BeginSend(c.PostForm("message"))
	if err != nil {
		h.logger.Debug("send ignored", zap.Error(err))
		backToIndex(c)
		return
	}
	go m.CompleteSend(h.background, pending)
	backToIndex(c)
}

func (h *PageHandler) DeleteConversation(c *gin.Context) {
	h.model(c).DeleteConversation(c.Request.Context(), c.Param("id"))
	backToIndex(c)
}

func (h *PageHandler) DismissError(c *gin.Context) {
	h.model(c).DismissError()
	backToIndex(c)
}

func (h *PageHandler) Logout(c *gin.Context) {
	h.model(c).Logout(c.Request.Context())
	backToIndex(c)
}

func backToIndex(c *gin.Context) {
	c.Redirect(http.StatusSeeOther, "/")
}
