package middleware

import "github.com/labstack/echo/v4"

// UserIDKey is the echo.Context key JWTAuth stores the user id under.
const UserIDKey = "user_id"

// UserID returns the authenticated user's id, or "" outside JWTAuth.
func UserID(c echo.Context) string {
    if s, ok := c.Get(UserIDKey).(string); ok {
        return s
    }
    return ""
}

// userOrAnon is UserID with a placeholder for unauthenticated requests, for
// use in rate-limit keys and logs.
func userOrAnon(c echo.Context) string {
    if s := UserID(c); s != "" {
        return s
    }
    return "anon"
}
