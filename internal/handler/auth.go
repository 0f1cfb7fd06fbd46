package handler

import (
    "context"
    "net/http"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/stock-image-platform/internal/middleware"
    "github.com/iliyamo/stock-image-platform/internal/model"
    "github.com/iliyamo/stock-image-platform/internal/service"
    "github.com/iliyamo/stock-image-platform/internal/utils"
)

// AuthAPI is the account logic AuthHandler drives.  *service.AuthService
// implements it.
type AuthAPI interface {
    Register(ctx context.Context, in service.RegisterInput) (utils.AccessToken, error)
    Login(ctx context.Context, email, password string) (utils.AccessToken, error)
    RequestPasswordReset(ctx context.Context, email string) (utils.ResetToken, error)
    ResetPassword(ctx context.Context, rawToken, newPassword string) error
    ChangePassword(ctx context.Context, userID, current, next string) (bool, error)
    Me(ctx context.Context, userID string) (model.Profile, error)
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
    Auth AuthAPI
    Log  *zap.Logger
    // ExposeResetToken puts the raw reset token into the response.  Only
    // for development setups without a mailer.
    ExposeResetToken bool
}

func NewAuthHandler(auth AuthAPI, log *zap.Logger, exposeResetToken bool) *AuthHandler {
    if log == nil {
        log = zap.NewNop()
    }
    return &AuthHandler{Auth: auth, Log: log, ExposeResetToken: exposeResetToken}
}

// ----- DTOs -----

type loginReq struct {
    Email    string `json:"email"`
    Password string `json:"password"`
}
type resetRequestReq struct {
    Email string `json:"email"`
}
type resetPasswordReq struct {
    Token       string `json:"token"`
    NewPassword string `json:"newPassword"`
}
type changePasswordReq struct {
    CurrentPassword string `json:"currentPassword"`
    NewPassword     string `json:"newPassword"`
}

// Signup creates the account and returns a bearer token (201).
func (h *AuthHandler) Signup(c echo.Context) error {
    var req service.RegisterInput
    if err := c.Bind(&req); err != nil {
        return failure(c, http.StatusBadRequest, "Invalid request body")
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()

    tok, err := h.Auth.Register(ctx, req)
    if err != nil {
        return fromError(c, h.Log, err)
    }
    return ok(c, http.StatusCreated, "User registered successfully", tok)
}

// Login verifies credentials and returns a bearer token.
func (h *AuthHandler) Login(c echo.Context) error {
    var req loginReq
    if err := c.Bind(&req); err != nil {
        return failure(c, http.StatusBadRequest, "Invalid request body")
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()

    tok, err := h.Auth.Login(ctx, req.Email, req.Password)
    if err != nil {
        return fromError(c, h.Log, err)
    }
    return ok(c, http.StatusOK, "Login successful. Welcome back!", tok)
}

// RequestPasswordReset issues a reset token.  The token leaves the process
// through the event queue; the response only confirms the request.
func (h *AuthHandler) RequestPasswordReset(c echo.Context) error {
    var req resetRequestReq
    if err := c.Bind(&req); err != nil {
        return failure(c, http.StatusBadRequest, "Invalid request body")
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()

    tok, err := h.Auth.RequestPasswordReset(ctx, req.Email)
    if err != nil {
        return fromError(c, h.Log, err)
    }
    if h.ExposeResetToken {
        return ok(c, http.StatusOK, "Reset your password !", echo.Map{"token": tok.Raw, "expires": tok.Exp})
    }
    return ok(c, http.StatusOK, "Reset your password !", nil)
}

// ResetPassword consumes a reset token and sets the new password.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
    var req resetPasswordReq
    if err := c.Bind(&req); err != nil {
        return failure(c, http.StatusBadRequest, "Invalid request body")
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()

    if err := h.Auth.ResetPassword(ctx, req.Token, req.NewPassword); err != nil {
        return fromError(c, h.Log, err)
    }
    return ok(c, http.StatusOK, "Password reset successfully !", nil)
}

// ChangePassword replaces the caller's password.  A wrong current password
// is answered with 200 and success=false, which is what clients expect.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
    var req changePasswordReq
    if err := c.Bind(&req); err != nil {
        return failure(c, http.StatusBadRequest, "Invalid request body")
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()

    changed, err := h.Auth.ChangePassword(ctx, middleware.UserID(c), req.CurrentPassword, req.NewPassword)
    if err != nil {
        return fromError(c, h.Log, err)
    }
    if !changed {
        return failure(c, http.StatusOK, "Current Password is Wrong")
    }
    return ok(c, http.StatusOK, "Password changed successfully", nil)
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()

    p, err := h.Auth.Me(ctx, middleware.UserID(c))
    if err != nil {
        return fromError(c, h.Log, err)
    }
    return ok(c, http.StatusOK, "User profile", p)
}
