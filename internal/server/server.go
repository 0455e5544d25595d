// Package server assembles the fiber application: middleware chain, error
// mapping and routes.
package server

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"

	"ourchants/internal/apierr"
	"ourchants/internal/catalog"
	"ourchants/internal/config"
	"ourchants/internal/handlers"
	"ourchants/internal/health"
	"ourchants/internal/logging"
	"ourchants/internal/metrics"
	"ourchants/internal/middleware"
	"ourchants/internal/presign"
	"ourchants/internal/tracing"
	"ourchants/internal/utils"
)

// Deps are the collaborators the HTTP layer is built from
type Deps struct {
	Catalog  *catalog.Service
	Presign  *presign.Checker
	Health   *health.Checker
	Logger   *logging.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Tracer   *tracing.Tracer
}

// APIServer represents the API server
type APIServer struct {
	app    *fiber.App
	cfg    *config.AppConfig
	logger *logging.Logger
}

// NewAPIServer creates a new API server
func NewAPIServer(cfg *config.AppConfig, deps Deps) *APIServer {
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop()
	}

	s := &APIServer{cfg: cfg, logger: deps.Logger}

	s.app = fiber.New(fiber.Config{
		AppName:               "OurChants API",
		ServerHeader:          "OurChants",
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		BodyLimit:             cfg.Server.BodyLimit,
		DisableStartupMessage: true,
		ErrorHandler:          ErrorHandler(deps.Logger),
	})

	s.app.Use(recover.New())
	s.app.Use(requestid.New())
	s.app.Use(deps.Logger.FiberLoggerMiddleware())
	if deps.Tracer != nil {
		s.app.Use(deps.Tracer.Middleware())
	}
	s.app.Use(helmet.New())
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.CORSOrigins,
		AllowMethods: strings.Join([]string{
			fiber.MethodGet,
			fiber.MethodPost,
			fiber.MethodPut,
			fiber.MethodDelete,
			fiber.MethodOptions,
		}, ","),
		AllowHeaders: "Content-Type,Authorization,X-Request-ID",
	}))
	s.app.Use(middleware.MetricsMiddleware(deps.Metrics))
	if cfg.RateLimit.Enabled {
		s.app.Use(middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Max:        cfg.RateLimit.Max,
			Expiration: cfg.RateLimit.Expiration,
		}))
	}

	s.setupRoutes(deps)
	return s
}

// setupRoutes configures the API routes
func (s *APIServer) setupRoutes(deps Deps) {
	songHandler := handlers.NewSongHandler(deps.Catalog, deps.Logger)
	presignHandler := handlers.NewPresignHandler(deps.Presign, deps.Logger)
	metricsHandler := handlers.NewMetricsHandler(deps.Gatherer)

	if deps.Health != nil {
		health.RegisterHealthRoutes(s.app, deps.Health)
	}
	s.app.Get("/metrics", metricsHandler.Metrics())

	s.app.Get("/songs", songHandler.ListSongs)
	s.app.Post("/songs", songHandler.CreateSong)
	s.app.Get("/songs/:id", songHandler.GetSong)
	s.app.Put("/songs/:id", songHandler.UpdateSong)
	s.app.Delete("/songs/:id", songHandler.DeleteSong)

	linkLimits := []fiber.Handler{}
	if s.cfg.RateLimit.Enabled && s.cfg.RateLimit.Burst > 0 && s.cfg.RateLimit.Expiration > 0 {
		perSecond := float64(s.cfg.RateLimit.Max) / s.cfg.RateLimit.Expiration.Seconds()
		linkLimits = append(linkLimits, middleware.RateLimitByClient(perSecond, s.cfg.RateLimit.Burst))
	}
	s.app.Post("/presigned-url", append(linkLimits, presignHandler.CreatePresignedURL)...)
}

// App exposes the fiber application, mainly for tests
func (s *APIServer) App() *fiber.App {
	return s.app
}

// Start starts the API server
func (s *APIServer) Start() error {
	addr := s.cfg.Server.Addr()
	s.logger.Infof("Starting API server on %s", addr)
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server
func (s *APIServer) Shutdown() error {
	return s.app.Shutdown()
}

// ErrorHandler maps errors escaping handlers and middleware onto the error
// envelope. Unmatched paths answer NOT_FOUND; known paths with the wrong
// method answer METHOD_NOT_ALLOWED.
func ErrorHandler(logger *logging.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			switch {
			case fiberErr.Code == fiber.StatusNotFound:
				return utils.SendError(c, apierr.CodeNotFound, "Route not found")
			case fiberErr.Code == fiber.StatusMethodNotAllowed:
				return utils.SendError(c, apierr.CodeMethodNotAllowed, "Method not allowed")
			case fiberErr.Code < fiber.StatusInternalServerError:
				return utils.SendInvalidRequestError(c)
			}
		}
		return utils.SendAPIError(c, logger, err)
	}
}
