package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/prm-gestao/projudi-verifier/internal/verify"
)

// SaveCredential stores or replaces the password for one portal username.
func (s *Store) SaveCredential(ctx context.Context, username, password string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO credentials (username, password) VALUES ($1, $2)
		ON CONFLICT (username) DO UPDATE SET password = EXCLUDED.password`,
		username, password)
	if err != nil {
		return fmt.Errorf("save credential %s: %w", username, err)
	}
	return nil
}

// Password returns the stored password or verify.ErrNotFound.
func (s *Store) Password(ctx context.Context, username string) (string, error) {
	var password string
	err := s.pool.QueryRow(ctx, `
		SELECT password FROM credentials WHERE username = $1`, username).Scan(&password)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", verify.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load credential %s: %w", username, err)
	}
	return password, nil
}

// Usernames lists stored portal usernames.
func (s *Store) Usernames(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT username FROM credentials ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan credential row: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}
	return names, nil
}

// SetSetting stores or replaces one configuration value.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// Setting returns one configuration value or verify.ErrNotFound.
func (s *Store) Setting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", verify.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load setting %s: %w", key, err)
	}
	return value, nil
}
