package kv

import (
	"context"
	"encoding/json"
	"fmt"
)

// LoadList decodes the JSON array stored under key. An absent key loads as
// an empty, non-nil slice.
func LoadList[T any](ctx context.Context, s Store, key string) ([]T, error) {
	rec, ok, err := s.Get(ctx, key)
	if err != nil {
		return []T{}, err
	}
	if !ok {
		return []T{}, nil
	}
	var items []T
	if err := json.Unmarshal(rec.Value, &items); err != nil {
		return []T{}, fmt.Errorf("decode %s: %w", key, err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// SaveList stores items as a JSON array under key.
func SaveList[T any](ctx context.Context, s Store, key string, items []T) error {
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, data)
}
