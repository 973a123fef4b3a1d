// Package kv is the persistence boundary of the learner model: an async,
// per-key, last-write-wins store of JSON documents. Every learning component
// reads its aggregate fresh at the start of an operation and writes the whole
// aggregate back after a mutation; there are no partial writes and no
// transactions spanning keys.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyKey is returned for blank keys.
var ErrEmptyKey = errors.New("kv: empty key")

type Store interface {
	// Get decodes the value stored under key into dst. It reports false and
	// leaves dst untouched when the key has never been written.
	Get(ctx context.Context, key string, dst any) (bool, error)
	// Set replaces the value stored under key with the JSON encoding of value.
	Set(ctx context.Context, key string, value any) error
}

// Load reads key into a fresh T, returning def when the key is absent.
// Fields missing from older records keep their zero value; callers normalise
// them through their own defaulting functions.
func Load[T any](ctx context.Context, s Store, key string, def T) (T, error) {
	var out T
	ok, err := s.Get(ctx, key, &out)
	if err != nil {
		return def, err
	}
	if !ok {
		return def, nil
	}
	return out, nil
}

// Key joins non-empty parts with ':'.
func Key(parts ...string) string {
	clean := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			clean = append(clean, p)
		}
	}
	return strings.Join(clean, ":")
}

func encode(key string, value any) ([]byte, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrEmptyKey
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("kv: encode %q: %w", key, err)
	}
	return raw, nil
}

func decode(key string, raw []byte, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("kv: decode %q: %w", key, err)
	}
	return nil
}
