package server

import (
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/makeasinger/musicvideo/internal/handler"
	"github.com/makeasinger/musicvideo/internal/middleware"
	ws "github.com/makeasinger/musicvideo/internal/websocket"
)

// Config controls the HTTP surface
type Config struct {
	LogLevel      string
	CreatePerHour int
	// Services reports which upstream adapters are configured
	Services func() fiber.Map
}

// Handlers are the route handlers. Callback is nil when completion is
// detected by polling, which leaves /music-callback unmounted.
type Handlers struct {
	Jobs     *handler.JobHandler
	Events   *handler.EventHandler
	Callback *handler.CallbackHandler
}

// New builds the fiber app with all routes and middleware
func New(cfg Config, h Handlers, auth *middleware.AuthMiddleware, limiter *middleware.RateLimiter, hub *ws.Hub) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    1 * 1024 * 1024,
	})

	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(cfg.LogLevel, "debug") {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body}\n"
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		services := fiber.Map{}
		if cfg.Services != nil {
			services = cfg.Services()
		}
		return c.JSON(fiber.Map{
			"status":   "ok",
			"services": services,
		})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	createLimit := limiter.CreateLimit(cfg.CreatePerHour)

	// Browser form endpoint
	app.Post("/create", auth.Authenticate(), createLimit, h.Jobs.Create)

	// EventSource cannot send headers; the job id is the capability
	app.Get("/events/:jobId", h.Events.Stream)

	if h.Callback != nil {
		app.Post("/music-callback", h.Callback.Handle)
	}

	api := app.Group("/api", auth.Authenticate())
	api.Post("/jobs", createLimit, h.Jobs.Create)
	api.Get("/jobs/:jobId", h.Jobs.Status)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	return app
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
