package middleware // reusable HTTP middleware for the API

import (
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/stock-image-platform/internal/utils"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token and
// stores the embedded user id under UserIDKey.  The secret must match the one
// used when issuing tokens.  Requests without a valid token never reach the
// wrapped handler.
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get(echo.HeaderAuthorization)
            if !strings.HasPrefix(auth, "Bearer ") {
                return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "message": "Authorization token missing"})
            }
            raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

            uid, err := utils.ParseAccessToken(secret, raw)
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "message": "Invalid or expired token"})
            }
            c.Set(UserIDKey, uid)
            return next(c)
        }
    }
}
