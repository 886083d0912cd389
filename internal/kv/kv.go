package kv

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// Get returns the record stored under key.
// The boolean is false when the key has never been written or was removed.
func (s *SQLite) Get(ctx context.Context, key string) (Record, bool, error) {
	if s.db == nil {
		return Record{}, false, ErrClosed
	}

	var (
		value     string
		writtenAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT value, written_at FROM records WHERE key = ?
	`, key).Scan(&value, &writtenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("get %q: %w", key, err)
	}

	return Record{
		Key:       key,
		Value:     json.RawMessage(value),
		WrittenAt: time.Unix(0, writtenAt).UTC(),
	}, true, nil
}

// Set stores value under key, replacing any previous value, and stamps the
// record with the current time. The value must be valid JSON.
func (s *SQLite) Set(ctx context.Context, key string, value json.RawMessage) error {
	if s.db == nil {
		return ErrClosed
	}
	if !json.Valid(value) {
		return fmt.Errorf("set %q: value is not valid JSON", key)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (key, value, written_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			written_at = excluded.written_at
	`, key, string(value), s.clock.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (s *SQLite) Remove(ctx context.Context, key string) error {
	if s.db == nil {
		return ErrClosed
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE key = ?`, key); err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	return nil
}

// Keys lists every key starting with prefix in byte order.
// Returns an empty slice (not nil) when nothing matches.
func (s *SQLite) Keys(ctx context.Context, prefix string) ([]string, error) {
	if s.db == nil {
		return nil, ErrClosed
	}

	// substr avoids LIKE wildcard escaping in user-controlled prefixes.
	rows, err := s.db.QueryContext(ctx, `
		SELECT key FROM records
		WHERE substr(key, 1, ?) = ?
		ORDER BY key COLLATE BINARY ASC
	`, utf8.RuneCountInString(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("query keys: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keys: %w", err)
	}
	return keys, nil
}
