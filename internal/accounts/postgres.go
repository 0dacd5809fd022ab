package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

const pgSchema = `
CREATE TABLE IF NOT EXISTS users (
    id              TEXT PRIMARY KEY,
    firstname       TEXT NOT NULL,
    lastname        TEXT NOT NULL,
    email           TEXT NOT NULL UNIQUE,
    password_hash   TEXT NOT NULL,
    referral_source TEXT NOT NULL DEFAULT '',
    avatar          TEXT NOT NULL DEFAULT '',
    bio             TEXT NOT NULL DEFAULT '',
    phone           TEXT NOT NULL DEFAULT '',
    location        TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL,
    updated_at      TIMESTAMPTZ NOT NULL
)`

const pgUserColumns = `id, firstname, lastname, email, password_hash, referral_source, avatar, bio, phone, location, created_at, updated_at`

// PostgresStore keeps users in PostgreSQL so several instances can share
// accounts.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to url and ensures the users table exists.
func OpenPostgres(ctx context.Context, url string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating users table: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) CreateUser(ctx context.Context, u User) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (`+pgUserColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		u.ID, u.Firstname, u.Lastname, strings.ToLower(u.Email), u.PasswordHash,
		u.ReferralSource, u.Avatar, u.Bio, u.Phone, u.Location, u.CreatedAt, now,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrEmailTaken
	}
	return err
}

func (s *PostgresStore) UserByEmail(ctx context.Context, email string) (User, error) {
	return s.queryUser(ctx, `SELECT `+pgUserColumns+` FROM users WHERE email = $1`, strings.ToLower(email))
}

func (s *PostgresStore) UserByID(ctx context.Context, id string) (User, error) {
	return s.queryUser(ctx, `SELECT `+pgUserColumns+` FROM users WHERE id = $1`, id)
}

func (s *PostgresStore) UpdateUser(ctx context.Context, u User) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET firstname = $1, lastname = $2, password_hash = $3, avatar = $4,
			bio = $5, phone = $6, location = $7, updated_at = $8
		WHERE id = $9`,
		u.Firstname, u.Lastname, u.PasswordHash, u.Avatar, u.Bio, u.Phone, u.Location,
		time.Now().UTC(), u.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *PostgresStore) queryUser(ctx context.Context, query, arg string) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx, query, arg).Scan(&u.ID, &u.Firstname, &u.Lastname, &u.Email,
		&u.PasswordHash, &u.ReferralSource, &u.Avatar, &u.Bio, &u.Phone, &u.Location,
		&u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	return u, err
}
