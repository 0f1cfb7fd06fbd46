package handler // HTTP handlers for the auth and image APIs

import (
    "context"
    "errors"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/stock-image-platform/internal/service"
)

// Store work is bounded per request.  Uploads get longer because files are
// written and thumbnailed before the records.
const (
    requestTimeout = 5 * time.Second
    uploadTimeout  = 30 * time.Second
)

// Response is the envelope every API endpoint answers with.
type Response struct {
    Success bool        `json:"success"`
    Message string      `json:"message"`
    Data    interface{} `json:"data,omitempty"`
}

func ok(c echo.Context, status int, msg string, data interface{}) error {
    return c.JSON(status, Response{Success: true, Message: msg, Data: data})
}

func failure(c echo.Context, status int, msg string) error {
    return c.JSON(status, Response{Success: false, Message: msg})
}

// statusOf maps a service error kind to its HTTP status.
func statusOf(err error) int {
    switch {
    case errors.Is(err, service.ErrValidation):
        return http.StatusBadRequest
    case errors.Is(err, service.ErrUnauthorized):
        return http.StatusUnauthorized
    case errors.Is(err, service.ErrForbidden):
        return http.StatusForbidden
    case errors.Is(err, service.ErrNotFound):
        return http.StatusNotFound
    case errors.Is(err, service.ErrConflict):
        return http.StatusConflict
    case errors.Is(err, context.DeadlineExceeded):
        return http.StatusGatewayTimeout
    }
    return http.StatusInternalServerError
}

// fromError writes err as an envelope.  Field-level validation failures go
// into data; 5xx causes are logged and never shown to the client.
func fromError(c echo.Context, log *zap.Logger, err error) error {
    status := statusOf(err)
    msg := "Internal server error"
    var se *service.Error
    if errors.As(err, &se) {
        msg = se.Message
    }
    if status >= http.StatusInternalServerError {
        log.Error("request failed",
            zap.String("method", c.Request().Method),
            zap.String("path", c.Path()),
            zap.Error(err))
        if status == http.StatusGatewayTimeout {
            msg = "Request timed out"
        }
    }
    resp := Response{Success: false, Message: msg}
    if se != nil && len(se.Fields) > 0 {
        resp.Data = echo.Map{"errors": se.Fields}
    }
    return c.JSON(status, resp)
}
