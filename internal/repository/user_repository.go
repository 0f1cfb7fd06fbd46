package repository

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/stock-image-platform/internal/model"
)

// mysqlDuplicateEntry is MySQL's ER_DUP_ENTRY error number.
const mysqlDuplicateEntry = 1062

const userColumns = "id,email,username,phone_number,password_hash,reset_token_hash,reset_expires_at,created_at,updated_at"

// MySQLUserRepo stores users in the 'users' table.
type MySQLUserRepo struct{ DB *sql.DB }

func NewMySQLUserRepo(db *sql.DB) *MySQLUserRepo { return &MySQLUserRepo{DB: db} }

// Create inserts the user and sets its ID.
func (r *MySQLUserRepo) Create(ctx context.Context, u *model.User) error {
	now := time.Now().UTC()
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, username, phone_number, password_hash, created_at, updated_at) VALUES (?,?,?,?,?,?)",
		u.Email, u.Username, u.PhoneNumber, u.PasswordHash, now, now)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
			return ErrEmailExists
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = strconv.FormatInt(id, 10)
	u.CreatedAt, u.UpdatedAt = now, now
	return nil
}

// GetByEmail fetches a user by normalized email.
func (r *MySQLUserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email)
}

// GetByID fetches a user by id.
func (r *MySQLUserRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	n, ok := parseID(id)
	if !ok {
		return model.User{}, ErrNotFound
	}
	return r.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", n)
}

func (r *MySQLUserRepo) GetByResetToken(ctx context.Context, tokenHash string) (model.User, error) {
	return r.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE reset_token_hash=? LIMIT 1", tokenHash)
}

func (r *MySQLUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	n, ok := parseID(id)
	if !ok {
		return ErrNotFound
	}
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET password_hash=?, updated_at=? WHERE id=?",
		passwordHash, time.Now().UTC(), n)
	return affectedOne(res, err)
}

func (r *MySQLUserRepo) SetResetToken(ctx context.Context, id, tokenHash string, exp time.Time) error {
	n, ok := parseID(id)
	if !ok {
		return ErrNotFound
	}
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET reset_token_hash=?, reset_expires_at=?, updated_at=? WHERE id=?",
		tokenHash, exp.UTC(), time.Now().UTC(), n)
	return affectedOne(res, err)
}

func (r *MySQLUserRepo) ConsumeResetToken(ctx context.Context, id, tokenHash, passwordHash string, now time.Time) error {
	n, ok := parseID(id)
	if !ok {
		return ErrNotFound
	}
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET password_hash=?, reset_token_hash=NULL, reset_expires_at=NULL, updated_at=?
		 WHERE id=? AND reset_token_hash=? AND reset_expires_at > ?`,
		passwordHash, now.UTC(), n, tokenHash, now.UTC())
	return affectedOne(res, err)
}

func (r *MySQLUserRepo) Ping(ctx context.Context) error { return r.DB.PingContext(ctx) }

func (r *MySQLUserRepo) getOne(ctx context.Context, q string, args ...interface{}) (model.User, error) {
	var (
		u         model.User
		id        uint64
		tokenHash sql.NullString
		expires   sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx, q, args...).Scan(
		&id, &u.Email, &u.Username, &u.PhoneNumber, &u.PasswordHash,
		&tokenHash, &expires, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, err
	}
	u.ID = strconv.FormatUint(id, 10)
	u.ResetTokenHash = tokenHash.String
	if expires.Valid {
		t := expires.Time.UTC()
		u.ResetExpiresAt = &t
	}
	return u, nil
}

// parseID converts an opaque id into the numeric primary key.  Anything
// that is not a positive integer cannot name a row.
func parseID(id string) (uint64, bool) {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return n, true
}

// affectedOne maps "no row matched" onto ErrNotFound.
func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
