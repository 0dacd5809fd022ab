package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// GetSetting returns the schema version and raw value stored under key.
func (s *Store) GetSetting(ctx context.Context, key string) (int, []byte, error) {
	var (
		version int
		value   string
	)
	err := s.db.QueryRowContext(ctx, `SELECT version, value FROM settings WHERE key = ?`, key).Scan(&version, &value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, ErrNotFound
	}
	if err != nil {
		return 0, nil, err
	}
	return version, []byte(value), nil
}

// PutSetting overwrites the value stored under key.
func (s *Store) PutSetting(ctx context.Context, key string, version int, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, version, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET version = excluded.version, value = excluded.value, updated_at = excluded.updated_at`,
		key, version, string(value), formatTime(time.Now()),
	)
	return err
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
