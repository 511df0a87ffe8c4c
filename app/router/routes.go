// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/callwatch/presenced/app/dto"
	"github.com/callwatch/presenced/app/handlers"
	"github.com/callwatch/presenced/app/middleware"
	"github.com/callwatch/presenced/config"
)

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	Shutdown() error
	ShutdownWithContext(ctx context.Context) error
	GetApp() *fiber.App
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app             *fiber.App
	config          *config.ServerConfig
	presenceHandler handlers.PresenceHandlerInterface
	teamsHandler    *handlers.TeamsHandler
	statusHandler   *handlers.StatusHandler
	configHandler   *handlers.ConfigHandler
	logger          *zap.Logger
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(
	cfg *config.ServerConfig,
	presenceHandler handlers.PresenceHandlerInterface,
	teamsHandler *handlers.TeamsHandler,
	statusHandler *handlers.StatusHandler,
	configHandler *handlers.ConfigHandler,
	logger *zap.Logger,
) Router {
	app := fiber.New(fiber.Config{
		AppName:      "presenced",
		ServerHeader: "presenced",
		ErrorHandler: errorHandler,
		BodyLimit:    cfg.BodyLimit,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	return &FiberRouter{
		app:             app,
		config:          cfg,
		presenceHandler: presenceHandler,
		teamsHandler:    teamsHandler,
		statusHandler:   statusHandler,
		configHandler:   configHandler,
		logger:          logger,
	}
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	r.setupMiddleware()

	if r.config.EnableMetrics {
		r.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	}

	// The service answers on its own prefix and on the platform gateway's.
	for _, prefix := range []string{"/1.0", "/api/chatd/1.0"} {
		api := r.app.Group(prefix)

		api.Get("/status", r.statusHandler.GetStatus)

		// Graph deliveries carry no platform token.
		api.Post("/users/:user_uuid/teams/presence", r.teamsHandler.Notify)

		authenticated := api.Group("", middleware.TokenAuth())
		authenticated.Get("/users/presences", r.presenceHandler.ListPresences)
		authenticated.Get("/users/:user_uuid/presences", r.presenceHandler.GetPresence)
		authenticated.Put("/users/:user_uuid/presences", r.presenceHandler.UpdatePresence)
		authenticated.Get("/config", r.configHandler.GetConfig)
		authenticated.Patch("/config", r.configHandler.PatchConfig)
	}

	r.app.Use(r.notFoundHandler)
}

func (r *FiberRouter) setupMiddleware() {
	r.app.Use(requestid.New(requestid.Config{
		Header: "X-Request-ID",
	}))

	r.app.Use(helmet.New(helmet.Config{
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}))

	r.app.Use(logger.New(logger.Config{
		Format:     `{"time":"${time}","request_id":"${locals:requestid}","level":"info","method":"${method}","path":"${path}","ip":"${ip}","status":${status},"latency":"${latency}","bytes_out":${bytesSent}}` + "\n",
		TimeFormat: time.RFC3339,
		TimeZone:   "UTC",
		Next: func(c fiber.Ctx) bool {
			// Status probes and scrapes would drown the access log.
			return c.Path() == "/metrics" || c.Path() == "/1.0/status" || c.Path() == "/api/chatd/1.0/status"
		},
	}))

	r.app.Use(cors.New(cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"Authorization",
			"X-Auth-Token",
			"X-Request-ID",
			"Wazo-Tenant",
		},
	}))

	r.app.Use(limiter.New(limiter.Config{
		Max:        r.config.GlobalRateLimit,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
				Success: false,
				Message: "Too many requests. Please try again later.",
				Error: dto.ErrorDetail{
					ErrorID: "rate-limit-exceeded",
				},
			})
		},
		Next: func(c fiber.Ctx) bool {
			return c.Path() == "/metrics"
		},
	}))

	if r.config.EnableMetrics {
		r.app.Use(middleware.Metrics())
	}

	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			r.logger.Error("panic while serving request",
				zap.Any("panic", e),
				zap.String("path", c.Path()),
				zap.String("method", c.Method()))
		},
	}))
}

// Start begins listening on the given address
func (r *FiberRouter) Start(address string) error {
	r.logger.Info("http server listening", zap.String("address", address))
	return r.app.Listen(address)
}

// Shutdown gracefully stops the server
func (r *FiberRouter) Shutdown() error {
	return r.app.Shutdown()
}

// ShutdownWithContext stops the server, abandoning in-flight requests when
// the context expires.
func (r *FiberRouter) ShutdownWithContext(ctx context.Context) error {
	return r.app.ShutdownWithContext(ctx)
}

// GetApp returns the underlying Fiber application
func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		Success: false,
		Message: "Resource not found",
		Error: dto.ErrorDetail{
			ErrorID: "not-found",
		},
	})
}

func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
		message = fiberErr.Message
	}

	return c.Status(code).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			ErrorID: "http-error",
		},
	})
}
