package router // package router defines how HTTP routes are registered for the API

import (
    "strconv"

    "github.com/labstack/echo/v4"
    echomw "github.com/labstack/echo/v4/middleware"
    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"

    "github.com/iliyamo/stock-image-platform/internal/config"
    "github.com/iliyamo/stock-image-platform/internal/handler"
    "github.com/iliyamo/stock-image-platform/internal/metrics"
    "github.com/iliyamo/stock-image-platform/internal/middleware"
)

// Deps is everything RegisterRoutes wires together.  Redis may be nil; the
// rate limiter then runs in-process and the list cache is skipped.
type Deps struct {
    Cfg       config.Config
    RateLimit config.RateLimitConfig
    Storage   config.StorageConfig
    Redis     *redis.Client
    Cache     *middleware.UserCache
    Metrics   *metrics.Metrics // nil disables /metrics
    Log       *zap.Logger

    Health handler.Pinger
    Auth   *handler.AuthHandler
    Images *handler.ImageHandler
}

// RegisterRoutes installs the global middleware and every route.
func RegisterRoutes(e *echo.Echo, d Deps) {
    e.Use(echomw.Recover())
    if d.Metrics != nil {
        e.Use(d.Metrics.Middleware())
        e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))
    }
    e.Use(middleware.RequestLogger(d.Log))
    e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
        AllowOrigins: d.Cfg.CORSOrigins,
        AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
    }))
    e.Use(echomw.BodyLimit(bodyLimit(d.Cfg.MaxUploadBytes)))

    // Liveness probe for load balancers; pings the store.
    e.GET("/healthz", handler.Health(d.Health))

    // Uploaded files are only served by this process for the local driver;
    // S3 URLs point at the bucket or CDN directly.
    if d.Storage.Driver == config.StorageLocal {
        e.Static(d.Storage.PublicPrefix, d.Storage.Dir)
    }

    registerAuth(e, d)
    registerImages(e, d)
}

// registerAuth mounts /api/auth.  Signup, login and password reset are open
// but share a tighter per-IP bucket; the rest needs a bearer token.
func registerAuth(e *echo.Echo, d Deps) {
    a := d.Auth
    open := e.Group("/api/auth", middleware.NewRateLimiter(d.RateLimit.ForAuth(), d.Redis, d.Log))
    open.POST("/signup", a.Signup)
    open.POST("/login", a.Login)
    open.POST("/request-password-reset", a.RequestPasswordReset)
    open.POST("/reset-password", a.ResetPassword)

    // The limiter runs after JWTAuth so user-based keys see the user id.
    authed := e.Group("/api/auth", middleware.JWTAuth(d.Cfg.JWTSecret), middleware.NewRateLimiter(d.RateLimit, d.Redis, d.Log))
    authed.POST("/change-password", a.ChangePassword)
    authed.GET("/me", a.Me)
}

// registerImages mounts /api/image.  Every route needs a bearer token.
func registerImages(e *echo.Echo, d Deps) {
    h := d.Images
    g := e.Group("/api/image", middleware.JWTAuth(d.Cfg.JWTSecret), middleware.NewRateLimiter(d.RateLimit, d.Redis, d.Log))

    g.POST("/upload", h.Upload)
    // Only the listing is cached; every mutation bumps the user's generation.
    g.GET("/getImage", h.GetImages, d.Cache.Middleware())
    g.PUT("/updateOrder", h.UpdateOrder)
    g.PUT("/rearrange", h.UpdateOrder)
    g.DELETE("/delete-image/:id", h.DeleteImage)
    g.PUT("/edit-image/:id", h.EditTitle)
    g.PUT("/edit/:id", h.Edit)
    g.GET("/:id", h.GetImage)
}

// bodyLimit renders a byte count in the "<n>K" form echo's BodyLimit parses.
func bodyLimit(n int64) string {
    if n <= 0 {
        n = 50 << 20
    }
    return strconv.FormatInt((n+1023)/1024, 10) + "K"
}
