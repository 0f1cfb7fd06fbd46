package repository

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/stock-image-platform/internal/model"
)

const imageColumns = "id, user_id, title, image_url, thumbnail_url, content_type, size_bytes, width, height, sort_order, created_at, updated_at"

// MySQLImageRepo stores images in the 'images' table.  The display order
// lives in sort_order because ORDER is a reserved word.
type MySQLImageRepo struct {
	db *sql.DB
}

// NewMySQLImageRepo constructs a MySQLImageRepo with the given DB handle.
func NewMySQLImageRepo(db *sql.DB) *MySQLImageRepo {
	return &MySQLImageRepo{db: db}
}

// InsertBatch inserts all images in a single statement.  InnoDB hands out
// consecutive auto-increment values to a multi-row INSERT with a known row
// count, so the ids are derived from LastInsertId (the first row's id).
func (r *MySQLImageRepo) InsertBatch(ctx context.Context, images []model.Image) ([]model.Image, error) {
	if len(images) == 0 {
		return nil, nil
	}
	userIDs := make([]uint64, len(images))
	for i, img := range images {
		uid, ok := parseID(img.UserID)
		if !ok {
			return nil, ErrNotFound
		}
		userIDs[i] = uid
	}
	now := time.Now().UTC()
	var b strings.Builder
	b.WriteString(`INSERT INTO images (user_id, title, image_url, thumbnail_url, content_type, size_bytes, width, height, sort_order, created_at, updated_at) VALUES `)
	args := make([]interface{}, 0, len(images)*11)
	for i, img := range images {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, userIDs[i], img.Title, img.ImageURL, nullString(img.ThumbnailURL),
			img.ContentType, img.SizeBytes, img.Width, img.Height, img.Order, now, now)
	}
	res, err := r.db.ExecContext(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	first, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	out := make([]model.Image, len(images))
	for i, img := range images {
		img.ID = strconv.FormatInt(first+int64(i), 10)
		img.CreatedAt, img.UpdatedAt = now, now
		out[i] = img
	}
	return out, nil
}

func (r *MySQLImageRepo) MaxOrder(ctx context.Context, userID string) (int, bool, error) {
	uid, ok := parseID(userID)
	if !ok {
		return 0, false, nil
	}
	var maxOrder sql.NullInt64
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(sort_order) FROM images WHERE user_id = ?`, uid).Scan(&maxOrder); err != nil {
		return 0, false, err
	}
	return int(maxOrder.Int64), maxOrder.Valid, nil
}

// ListByUser retrieves all images of a user in display order.
func (r *MySQLImageRepo) ListByUser(ctx context.Context, userID string) ([]model.Image, error) {
	uid, ok := parseID(userID)
	if !ok {
		return []model.Image{}, nil
	}
	const q = `SELECT ` + imageColumns + `
	           FROM images
	           WHERE user_id = ?
	           ORDER BY sort_order, created_at, id`
	rows, err := r.db.QueryContext(ctx, q, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []model.Image{}
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, img)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetByID retrieves an image by its id (no ownership check).
func (r *MySQLImageRepo) GetByID(ctx context.Context, id string) (model.Image, error) {
	n, ok := parseID(id)
	if !ok {
		return model.Image{}, ErrNotFound
	}
	img, err := scanImage(r.db.QueryRowContext(ctx, `SELECT `+imageColumns+` FROM images WHERE id = ?`, n))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Image{}, ErrNotFound
	}
	return img, err
}

func (r *MySQLImageRepo) Delete(ctx context.Context, id string) error {
	n, ok := parseID(id)
	if !ok {
		return ErrNotFound
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM images WHERE id = ?`, n)
	return affectedOne(res, err)
}

// Reorder verifies that every id belongs to the user, then rewrites all
// sort_order values with one CASE update.  Both steps share a transaction,
// and the ownership rows are locked until commit.
func (r *MySQLImageRepo) Reorder(ctx context.Context, userID string, updates []model.OrderUpdate) (err error) {
	if len(updates) == 0 {
		return nil
	}
	uid, ok := parseID(userID)
	if !ok {
		return ErrNotFound
	}
	ids := make([]interface{}, len(updates))
	for i, u := range updates {
		n, ok := parseID(u.ID)
		if !ok {
			return ErrNotFound
		}
		ids[i] = n
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	var owned int
	countArgs := append([]interface{}{uid}, ids...)
	if err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM images WHERE user_id = ? AND id IN (`+placeholders+`) FOR UPDATE`,
		countArgs...).Scan(&owned); err != nil {
		return err
	}
	if owned != len(ids) {
		return ErrNotFound
	}

	var b strings.Builder
	b.WriteString(`UPDATE images SET sort_order = CASE id`)
	args := make([]interface{}, 0, len(ids)*3+2)
	for i, u := range updates {
		b.WriteString(` WHEN ? THEN ?`)
		args = append(args, ids[i], u.Order)
	}
	b.WriteString(` END, updated_at = ? WHERE user_id = ? AND id IN (` + placeholders + `)`)
	args = append(args, time.Now().UTC(), uid)
	args = append(args, ids...)
	_, err = tx.ExecContext(ctx, b.String(), args...)
	return err
}

func (r *MySQLImageRepo) UpdateTitle(ctx context.Context, id, title string) error {
	n, ok := parseID(id)
	if !ok {
		return ErrNotFound
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE images SET title = ?, updated_at = ? WHERE id = ?`, title, time.Now().UTC(), n)
	return affectedOne(res, err)
}

// Update rewrites the mutable columns and reads the row back.
func (r *MySQLImageRepo) Update(ctx context.Context, img model.Image) (model.Image, error) {
	n, ok := parseID(img.ID)
	if !ok {
		return model.Image{}, ErrNotFound
	}
	const q = `UPDATE images
	           SET title = ?, image_url = ?, thumbnail_url = ?, content_type = ?, size_bytes = ?,
	               width = ?, height = ?, updated_at = ?
	           WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q, img.Title, img.ImageURL, nullString(img.ThumbnailURL),
		img.ContentType, img.SizeBytes, img.Width, img.Height, time.Now().UTC(), n)
	if err := affectedOne(res, err); err != nil {
		return model.Image{}, err
	}
	return r.GetByID(ctx, img.ID)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanImage(s rowScanner) (model.Image, error) {
	var (
		img       model.Image
		id, uid   uint64
		thumbnail sql.NullString
	)
	if err := s.Scan(&id, &uid, &img.Title, &img.ImageURL, &thumbnail, &img.ContentType,
		&img.SizeBytes, &img.Width, &img.Height, &img.Order, &img.CreatedAt, &img.UpdatedAt); err != nil {
		return model.Image{}, err
	}
	img.ID = strconv.FormatUint(id, 10)
	img.UserID = strconv.FormatUint(uid, 10)
	img.ThumbnailURL = thumbnail.String
	return img, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
