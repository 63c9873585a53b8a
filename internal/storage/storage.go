// Package storage persists per-visitor snapshots (cart, wishlist, auth
// session, order records) as versioned JSON documents.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Snapshot keys. Each store owns its key exclusively.
const (
	KeyCart     = "pureza-naturalis-cart-storage"
	KeyWishlist = "pureza-naturalis-wishlist-storage"
	KeyOrders   = "pureza-naturalis-orders"
	KeyAuth     = "pureza-naturalis-auth"
)

var (
	ErrNotFound        = errors.New("storage: key not found")
	ErrVersionMismatch = errors.New("storage: version mismatch")
)

// Store is a key/value backend for snapshot documents
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	// AppendRecord adds record to the array held in the envelope at key. A
	// missing, corrupt or other-version document is replaced by a new array.
	AppendRecord(ctx context.Context, key string, version int, record []byte) error
	Close() error
}

// Envelope is the stored form of every snapshot
type Envelope struct {
	Version int             `json:"version"`
	State   json.RawMessage `json:"state"`
}

// SessionKey namespaces a snapshot key to one visitor session
func SessionKey(base, sessionID string) string {
	return fmt.Sprintf("%s:%s", base, sessionID)
}

// Load decodes the snapshot at key into dst. It returns ErrNotFound,
// ErrVersionMismatch or a decode error; callers treat all of them as empty.
func Load(ctx context.Context, s Store, key string, version int, dst interface{}) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode envelope %s: %w", key, err)
	}
	if env.Version != version {
		return fmt.Errorf("%s has version %d, want %d: %w", key, env.Version, version, ErrVersionMismatch)
	}
	if err := json.Unmarshal(env.State, dst); err != nil {
		return fmt.Errorf("decode state %s: %w", key, err)
	}
	return nil
}

// Save writes state at key wrapped in a versioned envelope
func Save(ctx context.Context, s Store, key string, version int, state interface{}) error {
	data, err := Encode(version, state)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, data)
}

// Encode wraps state in an envelope
func Encode(version int, state interface{}) ([]byte, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Version: version, State: raw})
}

// AppendToEnvelope returns existing with record appended to its state array.
// Backends without a native append use it for read-modify-write.
func AppendToEnvelope(existing []byte, version int, record []byte) ([]byte, error) {
	records := []json.RawMessage{}

	if len(existing) > 0 {
		var env Envelope
		if err := json.Unmarshal(existing, &env); err == nil && env.Version == version {
			var prev []json.RawMessage
			if err := json.Unmarshal(env.State, &prev); err == nil {
				records = prev
			}
		}
	}

	if !json.Valid(record) {
		return nil, fmt.Errorf("record is not valid JSON")
	}
	records = append(records, json.RawMessage(record))
	return Encode(version, records)
}

// LoadRecords decodes the record array at key. Missing or unreadable
// documents yield an empty slice and the read error.
func LoadRecords[T any](ctx context.Context, s Store, key string, version int) ([]T, error) {
	var out []T
	if err := Load(ctx, s, key, version, &out); err != nil {
		return []T{}, err
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}
