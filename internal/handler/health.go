package handler

import (
    "context"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
)

// Pinger is anything whose reachability the health check reports.
type Pinger interface {
    Ping(ctx context.Context) error
}

// Health returns "ok" while the store answers a ping and 503 otherwise.
// Load balancers poll it, so the check is kept to one round trip.
func Health(store Pinger) echo.HandlerFunc {
    return func(c echo.Context) error {
        if store != nil {
            ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
            defer cancel()
            if err := store.Ping(ctx); err != nil {
                return c.String(http.StatusServiceUnavailable, "store unavailable")
            }
        }
        return c.String(http.StatusOK, "ok")
    }
}
