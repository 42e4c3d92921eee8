package handlers

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"ogimage/internal/chrome"
	"ogimage/internal/metrics"
	"ogimage/internal/render"
	u "ogimage/internal/utils"
)

// Client-facing validation messages.
const (
	MsgTitleRequired   = "Title is required."
	MsgInvalidDate     = "Invalid date format. Use an ISO 8601 date such as 2021-01-01."
	MsgPlatformSingle  = "Platform must be a single value."
	MsgTagSingle       = "Tag must be a single value."
	MsgInternalFailure = "Internal Server Error"
)

// OGRequestParams holds validated input parameters.
type OGRequestParams struct {
	Title    string
	Date     time.Time
	Platform string
	Tag      string
}

// OGService bundles configuration and dependencies for image rendering.
type OGService struct {
	Config   *u.Config
	Redis    *redis.Client
	Metrics  *metrics.Metrics
	Shooter  chrome.Screenshotter
	Renderer *render.Renderer
}

// NewOGService creates a service. A nil shooter gets a chromedp Driver
// built from cfg.
func NewOGService(cfg u.Config, rdb *redis.Client, shooter chrome.Screenshotter, m *metrics.Metrics) (*OGService, error) {
	renderer, err := render.NewRenderer(cfg.Template.Path, cfg.Template.TimeZone, cfg.Template.EscapeValues)
	if err != nil {
		return nil, err
	}
	if shooter == nil {
		shooter = chrome.NewDriver(cfg, nil)
	}
	return &OGService{
		Config:   &cfg,
		Redis:    rdb,
		Metrics:  m,
		Shooter:  shooter,
		Renderer: renderer,
	}, nil
}

// HandleImage returns a handler that renders an image and answers with the
// Cache-Control value of policy.
func (svc *OGService) HandleImage(policy string) fiber.Handler {
	cacheControl, ok := u.CacheControl(policy)
	if !ok {
		cacheControl = u.CachePolicies[u.CachePolicyNoCache]
	}
	return func(c *fiber.Ctx) error {
		params, err := validateAndExtractOGParams(c)
		if err != nil {
			return err
		}
		return svc.processImage(c, params, cacheControl)
	}
}

func (svc *OGService) processImage(c *fiber.Ctx, params *OGRequestParams, cacheControl string) error {
	start := time.Now()
	cacheKey := computeImageCacheKey(params, *svc.Config)
	useCache := svc.Redis != nil && svc.Config.Cache.ImageCacheEnabled

	if useCache {
		if cached, err := getCachedImage(c.UserContext(), svc.Redis, cacheKey); err == nil && cached != nil {
			svc.Metrics.ObserveRender(metrics.OutcomeCacheHit, time.Since(start))
			return writeImage(c, cached, cacheControl)
		}
	}

	html, err := svc.Renderer.Render(render.Values{
		Title:    params.Title,
		Date:     &params.Date,
		Platform: params.Platform,
		Tag:      params.Tag,
	})
	if err != nil {
		u.Error("Template render failed", "error", err)
		svc.Metrics.ObserveRender(metrics.OutcomeFailed, time.Since(start))
		return fiber.NewError(fiber.StatusInternalServerError, internalMessage(err))
	}

	png, err := svc.Shooter.Screenshot(c.UserContext(), html)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			u.Error("Screenshot timeout", "timeout_secs", svc.Config.Chrome.TimeoutSecs, "error", err)
			svc.Metrics.ObserveRender(metrics.OutcomeTimeout, time.Since(start))
		} else {
			u.Error("Screenshot failed", "error", err)
			svc.Metrics.ObserveRender(metrics.OutcomeFailed, time.Since(start))
		}
		return fiber.NewError(fiber.StatusInternalServerError, internalMessage(err))
	}
	svc.Metrics.ObserveRender(metrics.OutcomeRendered, time.Since(start))

	if useCache {
		setCachedImage(c.UserContext(), svc.Redis, cacheKey, png, svc.Config.Cache.ImageCacheTTL)
	}

	u.Info("Image generated", "title", params.Title, "bytes", len(png), "request_id", c.GetRespHeader(fiber.HeaderXRequestID))
	return writeImage(c, png, cacheControl)
}

// HandleChromeStats exposes the Chrome pool state when the shooter has one.
func (svc *OGService) HandleChromeStats(c *fiber.Ctx) error {
	sp, ok := svc.Shooter.(interface {
		Stats() (chrome.PoolStats, error)
	})
	if !ok {
		return c.JSON(chrome.PoolStats{TimeoutSecs: svc.Config.Chrome.TimeoutSecs})
	}
	stats, err := sp.Stats()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Chrome pool init failed: "+err.Error())
	}
	return c.JSON(stats)
}

func writeImage(c *fiber.Ctx, png []byte, cacheControl string) error {
	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderCacheControl, cacheControl)
	return c.Status(fiber.StatusOK).Send(png)
}

func internalMessage(err error) string {
	if err == nil || err.Error() == "" {
		return MsgInternalFailure
	}
	return err.Error()
}

// validateAndExtractOGParams reads title, date, platform and tag from the
// query string, falling back to route parameters of the same name.
func validateAndExtractOGParams(c *fiber.Ctx) (*OGRequestParams, error) {
	args := c.Context().QueryArgs()

	title, ok := singleValue(args.PeekMulti("title"), routeParam(c, "title"))
	if !ok || title == "" {
		return nil, fiber.NewError(fiber.StatusBadRequest, MsgTitleRequired)
	}

	rawDate, ok := singleValue(args.PeekMulti("date"), routeParam(c, "date"))
	if !ok {
		return nil, fiber.NewError(fiber.StatusBadRequest, MsgInvalidDate)
	}
	date, err := render.ParseDate(rawDate)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, MsgInvalidDate)
	}

	platform, ok := singleValue(args.PeekMulti("platform"), "")
	if !ok {
		return nil, fiber.NewError(fiber.StatusBadRequest, MsgPlatformSingle)
	}

	tag, ok := singleValue(args.PeekMulti("tag"), "")
	if !ok {
		return nil, fiber.NewError(fiber.StatusBadRequest, MsgTagSingle)
	}

	return &OGRequestParams{
		Title:    title,
		Date:     date,
		Platform: strings.TrimSpace(platform),
		Tag:      strings.TrimSpace(tag),
	}, nil
}

// singleValue returns the only query value, or fallback when there is none.
// ok is false when the parameter was repeated.
func singleValue(values [][]byte, fallback string) (string, bool) {
	switch len(values) {
	case 0:
		return fallback, true
	case 1:
		return string(values[0]), true
	default:
		return "", false
	}
}

func routeParam(c *fiber.Ctx, name string) string {
	raw := c.Params(name)
	if raw == "" {
		return ""
	}
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}
