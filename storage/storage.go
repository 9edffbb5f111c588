// Package storage is the durable key/value slot store used by the QR client.
// Slots hold JSON strings under fixed keys ("qr_session", "loyalty_customer",
// "token", ...), the same way a browser keeps them in localStorage.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("storage: key not found")

// Storage is implemented by every slot backend. Implementations must be safe
// for concurrent use.
type Storage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
	// Keys lists the stored keys starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// RemovePrefix deletes every key starting with prefix.
func RemovePrefix(ctx context.Context, s Storage, prefix string) error {
	keys, err := s.Keys(ctx, prefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.Remove(ctx, k); err != nil {
			return err
		}
	}
	return nil
}
