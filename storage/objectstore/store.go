// Package objectstore provides a NATS JetStream ObjectStore-backed
// storage.Store for durable commit, data, and snapshot objects.
package objectstore

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/semledger/errors"
	"github.com/c360/semledger/pkg/retry"
	"github.com/c360/semledger/storage"
)

// Config controls the backing ObjectStore bucket.
type Config struct {
	// Bucket is the JetStream ObjectStore bucket name.
	Bucket string `json:"bucket" yaml:"bucket"`
	// Description annotates the bucket on creation.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// Replicas sets the JetStream replica count (0 = server default).
	Replicas int `json:"replicas,omitempty" yaml:"replicas,omitempty"`
	// Retry configures backoff for transient NATS failures.
	Retry retry.Config `json:"-" yaml:"-"`
}

// DefaultConfig returns a single-replica bucket config.
func DefaultConfig(bucket string) Config {
	return Config{
		Bucket:      bucket,
		Description: "semledger commit and index objects",
		Retry:       retry.DefaultConfig(),
	}
}

// Store implements storage.Store over a JetStream ObjectStore bucket.
// Safe for concurrent use; the underlying NATS client handles
// connection sharing.
type Store struct {
	bucket  jetstream.ObjectStore
	cfg     Config
	logger  *slog.Logger
	metrics *storeMetrics
}

var _ storage.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithMetrics registers operation counters with the given registerer.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(s *Store) { s.metrics = newStoreMetrics(reg, s.cfg.Bucket) }
}

// New creates or binds the configured ObjectStore bucket.
func New(ctx context.Context, nc *nats.Conn, cfg Config, opts ...Option) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "ObjectStore", "New", "bucket name")
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, errors.IO(err, "ObjectStore", "New", "creating jetstream context")
	}
	bucket, err := js.CreateOrUpdateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      cfg.Bucket,
		Description: cfg.Description,
		Replicas:    cfg.Replicas,
	})
	if err != nil {
		return nil, errors.IO(err, "ObjectStore", "New", "binding bucket "+cfg.Bucket)
	}

	s := &Store{bucket: bucket, cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger.Debug("object store ready", "bucket", cfg.Bucket)
	return s, nil
}

// Put stores binary data at the specified key.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	err := retry.Do(ctx, s.cfg.Retry, func() error {
		_, putErr := s.bucket.PutBytes(ctx, key, data)
		return putErr
	})
	if err != nil {
		s.metrics.observeError("put")
		return errors.IO(err, "ObjectStore", "Put", "storing "+key)
	}
	s.metrics.observe("put", len(data))
	return nil
}

// Get retrieves binary data for the specified key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := retry.DoWithResult(ctx, s.cfg.Retry, func() ([]byte, error) {
		b, getErr := s.bucket.GetBytes(ctx, key)
		if getErr != nil && errors.Is(getErr, jetstream.ErrObjectNotFound) {
			// Missing keys are a definitive answer, not a transient fault.
			return nil, retry.NonRetryable(errors.ErrKeyNotFound)
		}
		return b, getErr
	})
	if err != nil {
		if errors.Is(err, errors.ErrKeyNotFound) {
			return nil, errors.ErrKeyNotFound
		}
		s.metrics.observeError("get")
		return nil, errors.IO(err, "ObjectStore", "Get", "fetching "+key)
	}
	s.metrics.observe("get", len(data))
	return data, nil
}

// List returns all keys matching the specified prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	infos, err := s.bucket.List(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoObjectsFound) {
			return nil, nil
		}
		s.metrics.observeError("list")
		return nil, errors.IO(err, "ObjectStore", "List", "listing bucket")
	}

	var keys []string
	for _, info := range infos {
		if strings.HasPrefix(info.Name, prefix) {
			keys = append(keys, info.Name)
		}
	}
	sort.Strings(keys)
	s.metrics.observe("list", 0)
	return keys, nil
}

// Delete removes the data at the specified key. Idempotent.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.bucket.Delete(ctx, key)
	if err != nil && !errors.Is(err, jetstream.ErrObjectNotFound) {
		s.metrics.observeError("delete")
		return errors.IO(err, "ObjectStore", "Delete", "deleting "+key)
	}
	s.metrics.observe("delete", 0)
	return nil
}
