package repository

import (
	"context"
	"time"

	"github.com/iliyamo/stock-image-platform/internal/model"
)

// UserStore persists user accounts and their password reset state.
type UserStore interface {
	// Create inserts u and fills in its ID and timestamps.
	Create(ctx context.Context, u *model.User) error
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id string) (model.User, error)
	// GetByResetToken finds the user holding the given token hash,
	// regardless of expiry.
	GetByResetToken(ctx context.Context, tokenHash string) (model.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SetResetToken(ctx context.Context, id, tokenHash string, exp time.Time) error
	// ConsumeResetToken sets a new password and clears the token in one
	// write, provided the user still holds tokenHash and it has not expired
	// at now.  A token can therefore be used once.
	ConsumeResetToken(ctx context.Context, id, tokenHash, passwordHash string, now time.Time) error
	Ping(ctx context.Context) error
}

// ImageStore persists image records.
type ImageStore interface {
	// InsertBatch stores all images in one write and returns them with IDs.
	InsertBatch(ctx context.Context, images []model.Image) ([]model.Image, error)
	// MaxOrder returns the highest order among the user's images; ok is
	// false when the user has none.
	MaxOrder(ctx context.Context, userID string) (max int, ok bool, err error)
	// ListByUser returns the user's images sorted by order, created time, id.
	ListByUser(ctx context.Context, userID string) ([]model.Image, error)
	GetByID(ctx context.Context, id string) (model.Image, error)
	Delete(ctx context.Context, id string) error
	// Reorder applies every update in one batched write.  If any id is
	// unknown or not owned by userID, nothing is written and ErrNotFound is
	// returned.
	Reorder(ctx context.Context, userID string, updates []model.OrderUpdate) error
	UpdateTitle(ctx context.Context, id, title string) error
	// Update overwrites title and file fields of img and returns the stored
	// record.
	Update(ctx context.Context, img model.Image) (model.Image, error)
}
