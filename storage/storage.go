// Package storage provides the pluggable backend interface for commit
// and index persistence, plus content addressing over it. The ledger
// core consumes this surface and treats its failures as opaque I/O
// errors; retry, if any, lives in the backend implementations.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/c360/semledger/errors"
)

// Store is the pluggable backend interface for storage operations.
//
// Keys are strings (hierarchical paths via "/" separators), values are
// binary data. All implementations must be safe for concurrent use.
//
// Implementations:
//   - memstore.Store: in-memory map, for tests and replay tooling
//   - objectstore.Store: NATS JetStream ObjectStore backend
type Store interface {
	// Put stores binary data at the specified key.
	Put(ctx context.Context, key string, data []byte) error

	// Get retrieves binary data for the specified key. Returns
	// errors.ErrKeyNotFound if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns all keys matching the specified prefix, in
	// lexicographic order.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the data at the specified key. Idempotent.
	Delete(ctx context.Context, key string) error
}

// AddressPrefix marks content-addressed keys.
const AddressPrefix = "sl://"

// Address computes the content address of a stored object: the hex
// SHA-256 of its bytes under the ledger address scheme.
func Address(data []byte) string {
	sum := sha256.Sum256(data)
	return AddressPrefix + hex.EncodeToString(sum[:])
}

// IsAddress reports whether a key is a content address.
func IsAddress(key string) bool {
	return strings.HasPrefix(key, AddressPrefix)
}

func addressKey(address string) string {
	return "content/" + strings.TrimPrefix(address, AddressPrefix)
}

// WriteContent stores data under its content address and returns the
// address.
func WriteContent(ctx context.Context, store Store, data []byte) (string, error) {
	address := Address(data)
	if err := store.Put(ctx, addressKey(address), data); err != nil {
		return "", errors.IO(err, "storage", "WriteContent", "storing object")
	}
	return address, nil
}

// ReadContent retrieves the object stored at a content address and
// verifies the bytes still hash to it.
func ReadContent(ctx context.Context, store Store, address string) ([]byte, error) {
	if !IsAddress(address) {
		return nil, errors.WrapInvalid(errors.ErrKeyNotFound, "storage", "ReadContent", "parsing address "+address)
	}
	data, err := store.Get(ctx, addressKey(address))
	if err != nil {
		return nil, errors.IO(err, "storage", "ReadContent", "fetching "+address)
	}
	if Address(data) != address {
		return nil, errors.WrapFatal(errors.ErrDataCorrupted, "storage", "ReadContent", "verifying "+address)
	}
	return data, nil
}

// WriteJSON marshals v and stores it under its content address.
func WriteJSON(ctx context.Context, store Store, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", errors.WrapInvalid(err, "storage", "WriteJSON", "marshaling object")
	}
	return WriteContent(ctx, store, data)
}

// ReadJSON retrieves a content-addressed object and unmarshals it into v.
func ReadJSON(ctx context.Context, store Store, address string, v any) error {
	data, err := ReadContent(ctx, store, address)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.WrapFatal(errors.ErrDataCorrupted, "storage", "ReadJSON", "decoding "+address)
	}
	return nil
}

// DefaultContextKey is the well-known key holding a ledger's default
// JSON-LD context document.
const DefaultContextKey = "context/default"

// ReadDefaultContext loads the default JSON-LD context map, returning
// nil without error when none has been stored.
func ReadDefaultContext(ctx context.Context, store Store, key string) (map[string]any, error) {
	if key == "" {
		key = DefaultContextKey
	}
	data, err := store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, errors.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, errors.IO(err, "storage", "ReadDefaultContext", "fetching "+key)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.WrapFatal(errors.ErrDataCorrupted, "storage", "ReadDefaultContext", "decoding "+key)
	}
	return out, nil
}
