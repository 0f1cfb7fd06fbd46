package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/stock-image-platform/internal/model"
	"github.com/iliyamo/stock-image-platform/internal/queue"
	"github.com/iliyamo/stock-image-platform/internal/repository"
	"github.com/iliyamo/stock-image-platform/internal/utils"
	"github.com/iliyamo/stock-image-platform/internal/validate"
)

// AuthConfig is the slice of the process configuration AuthService needs.
type AuthConfig struct {
	JWTSecret  string
	AccessTTL  time.Duration
	ResetTTL   time.Duration
	BcryptCost int
}

// AuthService registers users, checks credentials, issues bearer tokens and
// runs the password reset flow.  Every write goes straight to the store.
type AuthService struct {
	users  repository.UserStore
	events queue.Publisher
	cfg    AuthConfig
	log    *zap.Logger
	now    func() time.Time
}

func NewAuthService(users repository.UserStore, events queue.Publisher, cfg AuthConfig, log *zap.Logger) *AuthService {
	if events == nil {
		events = queue.NopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{users: users, events: events, cfg: cfg, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// RegisterInput is the signup payload.
type RegisterInput struct {
	Email       string `json:"email" validate:"required,email"`
	Username    string `json:"username" validate:"required,min=2,max=50"`
	PhoneNumber string `json:"phoneNumber" validate:"required,phone"`
	Password    string `json:"password" validate:"required,min=6"`
}

// Register creates the account and returns a bearer token for it.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (utils.AccessToken, error) {
	in.Email = normalizeEmail(in.Email)
	in.Username = strings.TrimSpace(in.Username)
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
	if err := validate.Struct(in); err != nil {
		return utils.AccessToken{}, invalid(err)
	}

	hash, err := utils.HashPassword(in.Password, s.cfg.BcryptCost)
	if err != nil {
		return utils.AccessToken{}, wrap(ErrInternal, "Failed to register user", err)
	}
	u := &model.User{Email: in.Email, Username: in.Username, PhoneNumber: in.PhoneNumber, PasswordHash: hash}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return utils.AccessToken{}, fail(ErrConflict, "User already exists")
		}
		return utils.AccessToken{}, wrap(ErrInternal, "Failed to register user", err)
	}
	return s.issue(u.ID)
}

// Login checks the password and returns a fresh bearer token.  An unknown
// email is NotFound, a wrong password Unauthorized.
func (s *AuthService) Login(ctx context.Context, email, password string) (utils.AccessToken, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return utils.AccessToken{}, fail(ErrValidation, "Email and password are required")
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return utils.AccessToken{}, fail(ErrNotFound, "User not found")
		}
		return utils.AccessToken{}, wrap(ErrInternal, "Login failed", err)
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return utils.AccessToken{}, fail(ErrUnauthorized, "Invalid credentials")
	}
	return s.issue(u.ID)
}

// RequestPasswordReset stores the hash of a new reset token for the user and
// returns the raw token.  Delivery happens outside the process: the token is
// published with a password.reset_requested event for a mailer to pick up.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (utils.ResetToken, error) {
	email = normalizeEmail(email)
	if email == "" {
		return utils.ResetToken{}, fail(ErrValidation, "Email is required")
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return utils.ResetToken{}, fail(ErrNotFound, "User not found")
		}
		return utils.ResetToken{}, wrap(ErrInternal, "Password reset failed", err)
	}
	tok, err := utils.NewResetToken(s.cfg.ResetTTL)
	if err != nil {
		return utils.ResetToken{}, wrap(ErrInternal, "Password reset failed", err)
	}
	if err := s.users.SetResetToken(ctx, u.ID, utils.HashToken(tok.Raw), tok.Exp); err != nil {
		return utils.ResetToken{}, wrap(ErrInternal, "Password reset failed", err)
	}

	ev := queue.NewEvent(queue.PasswordResetRequested, u.ID)
	ev.Email = u.Email
	ev.ResetToken = tok.Raw
	emit(ctx, s.events, s.log, ev)
	return tok, nil
}

// ResetPassword sets a new password for whoever holds rawToken.  The token
// is consumed in the same write, so it works once.
func (s *AuthService) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return fail(ErrValidation, "Reset token is required")
	}
	if len(newPassword) < 6 {
		return fail(ErrValidation, "Password must be at least 6 characters long")
	}
	hash := utils.HashToken(rawToken)
	u, err := s.users.GetByResetToken(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail(ErrUnauthorized, "Invalid or expired reset token")
		}
		return wrap(ErrInternal, "Password reset failed", err)
	}
	now := s.now()
	if u.ResetExpiresAt == nil || !now.Before(*u.ResetExpiresAt) {
		return fail(ErrUnauthorized, "Invalid or expired reset token")
	}
	pw, err := utils.HashPassword(newPassword, s.cfg.BcryptCost)
	if err != nil {
		return wrap(ErrInternal, "Password reset failed", err)
	}
	if err := s.users.ConsumeResetToken(ctx, u.ID, hash, pw, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail(ErrUnauthorized, "Invalid or expired reset token")
		}
		return wrap(ErrInternal, "Password reset failed", err)
	}
	return nil
}

// ChangePassword replaces the password after checking the current one.  A
// wrong current password is not an error: it returns false.
func (s *AuthService) ChangePassword(ctx context.Context, userID, current, next string) (bool, error) {
	if current == "" {
		return false, fail(ErrValidation, "Current password is required")
	}
	if len(next) < 6 {
		return false, fail(ErrValidation, "New password must be at least 6 characters long")
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, fail(ErrNotFound, "User not found")
		}
		return false, wrap(ErrInternal, "Failed to change password", err)
	}
	if !utils.VerifyPassword(u.PasswordHash, current) {
		return false, nil
	}
	hash, err := utils.HashPassword(next, s.cfg.BcryptCost)
	if err != nil {
		return false, wrap(ErrInternal, "Failed to change password", err)
	}
	if err := s.users.UpdatePassword(ctx, u.ID, hash); err != nil {
		return false, wrap(ErrInternal, "Failed to change password", err)
	}
	return true, nil
}

// Me returns the public profile of the authenticated user.
func (s *AuthService) Me(ctx context.Context, userID string) (model.Profile, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Profile{}, fail(ErrNotFound, "User not found")
		}
		return model.Profile{}, wrap(ErrInternal, "Failed to load user", err)
	}
	return u.Profile(), nil
}

func (s *AuthService) issue(userID string) (utils.AccessToken, error) {
	tok, err := utils.NewAccessToken(s.cfg.JWTSecret, userID, s.cfg.AccessTTL)
	if err != nil {
		return utils.AccessToken{}, wrap(ErrInternal, "Failed to issue token", err)
	}
	return tok, nil
}

func normalizeEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }

// emit publishes ev without failing the caller.  The publish gets its own
// short deadline so a slow broker cannot eat the request's budget.
func emit(ctx context.Context, pub queue.Publisher, log *zap.Logger, ev queue.Event) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := pub.Publish(pctx, ev); err != nil {
		log.Warn("event not published", zap.String("event", ev.Type), zap.String("user_id", ev.UserID), zap.Error(err))
	}
}
