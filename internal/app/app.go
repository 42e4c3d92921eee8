package app

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"ogimage/internal/chrome"
	"ogimage/internal/handlers"
	"ogimage/internal/metrics"
	"ogimage/internal/tokens"
	u "ogimage/internal/utils"
)

// Deps are the collaborators SetupApp wires together. Zero values are
// valid: no Redis, no API tokens, a fresh metrics registry and a chromedp
// driver built from Config.
type Deps struct {
	Config   u.Config
	Redis    *redis.Client
	Tokens   *tokens.Cache
	Shooter  chrome.Screenshotter
	Registry *prometheus.Registry
}

// SetupApp creates and configures a new Fiber app instance.
func SetupApp(d Deps) (*fiber.App, error) {
	cfg := d.Config
	app := fiber.New(fiber.Config{
		Prefork:               cfg.Server.Prefork,
		DisableStartupMessage: true,
		ErrorHandler:          handlers.ErrorHandler,
	})

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		if d.Registry == nil {
			d.Registry = prometheus.NewRegistry()
			d.Registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
		}
		var err error
		if m, err = metrics.New(d.Registry); err != nil {
			return nil, err
		}
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})))
	}

	RegisterMiddleware(app, cfg, d.Tokens, m)

	svc, err := handlers.NewOGService(cfg, d.Redis, d.Shooter, m)
	if err != nil {
		return nil, err
	}
	RegisterRoutes(app, cfg, svc)

	// Ensure all responses, including 404s, return JSON
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not Found")
	})

	return app, nil
}

// RegisterRoutes mounts the image endpoints. Each variant carries its own
// cache policy.
func RegisterRoutes(app *fiber.App, cfg u.Config, svc *handlers.OGService) {
	app.Get("/api", svc.HandleImage(cfg.Endpoints.Index))
	app.Get("/api/og", svc.HandleImage(cfg.Endpoints.OG))
	app.Get("/api/og/immutable", svc.HandleImage(cfg.Endpoints.Immutable))
	app.Get("/api/chrome/stats", svc.HandleChromeStats)
	app.Get("/api/:title/:date/og.png", svc.HandleImage(cfg.Endpoints.PathOG))

	app.Get("/monitor", monitor.New())
}
