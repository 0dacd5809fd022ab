package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/kalambet/applytrack/internal/accounts"
)

const userColumns = `id, firstname, lastname, email, password_hash, referral_source, avatar, bio, phone, location, created_at, updated_at`

// CreateUser inserts u. A duplicate email yields accounts.ErrEmailTaken.
func (s *Store) CreateUser(ctx context.Context, u accounts.User) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Firstname, u.Lastname, strings.ToLower(u.Email), u.PasswordHash,
		u.ReferralSource, u.Avatar, u.Bio, u.Phone, u.Location,
		formatTime(u.CreatedAt), formatTime(now),
	)
	if isUniqueViolation(err) {
		return accounts.ErrEmailTaken
	}
	return err
}

// UserByEmail looks a user up by email, case-insensitively.
func (s *Store) UserByEmail(ctx context.Context, email string) (accounts.User, error) {
	return s.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, strings.ToLower(email))
}

// UserByID looks a user up by id.
func (s *Store) UserByID(ctx context.Context, id string) (accounts.User, error) {
	return s.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// UpdateUser overwrites the profile fields and password hash of u.
func (s *Store) UpdateUser(ctx context.Context, u accounts.User) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET firstname = ?, lastname = ?, password_hash = ?, avatar = ?,
			bio = ?, phone = ?, location = ?, updated_at = ?
		WHERE id = ?`,
		u.Firstname, u.Lastname, u.PasswordHash, u.Avatar, u.Bio, u.Phone, u.Location,
		formatTime(time.Now()), u.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return accounts.ErrUserNotFound
	}
	return nil
}

func (s *Store) queryUser(ctx context.Context, query string, arg string) (accounts.User, error) {
	var (
		u                    accounts.User
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Firstname, &u.Lastname, &u.Email,
		&u.PasswordHash, &u.ReferralSource, &u.Avatar, &u.Bio, &u.Phone, &u.Location,
		&createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return accounts.User{}, accounts.ErrUserNotFound
	}
	if err != nil {
		return accounts.User{}, err
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return accounts.User{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return accounts.User{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return u, nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
