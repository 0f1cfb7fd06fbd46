package middleware

import (
    "github.com/labstack/echo/v4"
    echomw "github.com/labstack/echo/v4/middleware"
    "go.uber.org/zap"
)

// RequestLogger logs one structured line per request.  Server errors log at
// error level, client errors at warn, everything else at info.
func RequestLogger(log *zap.Logger) echo.MiddlewareFunc {
    return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
        LogMethod:    true,
        LogURIPath:   true,
        LogRoutePath: true,
        LogStatus:    true,
        LogLatency:   true,
        LogRemoteIP:  true,
        LogError:     true,
        HandleError:  true,
        LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
            fields := []zap.Field{
                zap.String("method", v.Method),
                zap.String("path", v.URIPath),
                zap.String("route", v.RoutePath),
                zap.Int("status", v.Status),
                zap.Duration("latency", v.Latency),
                zap.String("ip", v.RemoteIP),
                zap.String("user_id", userOrAnon(c)),
            }
            switch {
            case v.Status >= 500:
                log.Error("request", append(fields, zap.Error(v.Error))...)
            case v.Status >= 400:
                log.Warn("request", fields...)
            default:
                log.Info("request", fields...)
            }
            return nil
        },
    })
}
