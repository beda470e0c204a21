package ledger

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/semledger/errors"
	"github.com/c360/semledger/flake"
	"github.com/c360/semledger/metric"
	"github.com/c360/semledger/storage"
	"github.com/c360/semledger/vocabulary"
)

// ValidateFunc checks a candidate statement batch against the version
// it would be merged onto, with the schema the merge would produce.
// Returning an error rejects the commit before any new version exists.
type ValidateFunc func(ctx context.Context, db *DB, schema *vocabulary.Schema, batch []flake.Flake) error

// Merger folds commit chains into database versions.
type Merger struct {
	store    storage.Store
	logger   *slog.Logger
	metrics  *metric.LedgerMetrics
	validate ValidateFunc

	// multiDB permits a commit to reuse the current transaction value,
	// which happens when independently written ledgers are merged.
	multiDB bool

	// prefetchWorkers bounds the commit-data reads done ahead of a
	// sequential replay.
	prefetchWorkers int
	// prefetchDrain bounds how long a load waits for outstanding
	// prefetch reads before replaying without them.
	prefetchDrain time.Duration
}

// MergerOption configures a Merger.
type MergerOption func(*Merger)

// WithLogger sets the merger's logger.
func WithLogger(logger *slog.Logger) MergerOption {
	return func(m *Merger) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics wires merge metrics into the given registry.
func WithMetrics(registry *metric.Registry) MergerOption {
	return func(m *Merger) {
		if registry != nil {
			m.metrics = registry.Ledger
		}
	}
}

// WithValidation runs fn against every candidate batch before it is
// folded; a validation error rejects the commit.
func WithValidation(fn ValidateFunc) MergerOption {
	return func(m *Merger) { m.validate = fn }
}

// WithMultiDBMerge permits transaction-value reuse when merging
// commits that originated from a different ledger instance.
func WithMultiDBMerge() MergerOption {
	return func(m *Merger) { m.multiDB = true }
}

// WithPrefetchWorkers sets the number of concurrent commit-data reads
// used while replaying a chain.
func WithPrefetchWorkers(n int) MergerOption {
	return func(m *Merger) {
		if n > 0 {
			m.prefetchWorkers = n
		}
	}
}

// NewMerger creates a merger reading commit documents from store.
func NewMerger(store storage.Store, opts ...MergerOption) *Merger {
	m := &Merger{
		store:           store,
		logger:          slog.Default().With("component", "ledger.merger"),
		prefetchWorkers: 4,
		prefetchDrain:   prefetchStopTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MergeCommit folds one commit onto db and returns the resulting new
// version. db itself is never modified; on any failure the prior
// version remains the latest and no partial state escapes.
func (m *Merger) MergeCommit(ctx context.Context, db *DB, commit *Commit) (*DB, error) {
	data, err := commit.ReadData(ctx, m.store)
	if err != nil {
		return nil, err
	}
	return m.mergeData(ctx, db, commit, data)
}

func (m *Merger) mergeData(ctx context.Context, db *DB, commit *Commit, data *CommitData) (*DB, error) {
	start := time.Now()
	newDB, err := m.merge(ctx, db, commit, data)
	if m.metrics != nil {
		status := "ok"
		flakes := 0
		if err != nil {
			status = "error"
		} else {
			flakes = int(newDB.Stats.Flakes - db.Stats.Flakes)
		}
		m.metrics.RecordMerge(db.Alias, status, flakes, time.Since(start))
	}
	if err != nil {
		return nil, err
	}
	m.logger.Debug("merged commit",
		"ledger", db.Alias, "t", commit.T,
		"flakes", newDB.Stats.Flakes-db.Stats.Flakes,
		"duration", time.Since(start))
	return newDB, nil
}

func (m *Merger) merge(ctx context.Context, db *DB, commit *Commit, data *CommitData) (*DB, error) {
	if data.Empty() {
		return nil, errors.WrapFatal(errors.ErrEmptyCommit, "ledger", "MergeCommit", "validate payload")
	}
	newT := db.T - 1
	if commit.T != -newT {
		if !(m.multiDB && commit.T == -db.T) {
			return nil, errors.InvalidCommit(
				"commit t=%d does not follow database t=%d", commit.T, db.LogicalT())
		}
		// Multi-ledger merge: fold at the next local value anyway.
	}

	alloc := NewAllocator(db.ECount)
	builder := NewBuilder(db, alloc, newT)
	for _, node := range data.Retract {
		if err := builder.Retract(ctx, node); err != nil {
			return nil, err
		}
	}
	for _, node := range data.Assert {
		if _, err := builder.Assert(ctx, node); err != nil {
			return nil, err
		}
	}

	flakes := builder.Flakes()
	var vocabFlakes []flake.Flake
	for _, f := range flakes {
		if vocabulary.IsVocabID(f.Subject) {
			vocabFlakes = append(vocabFlakes, f)
		}
	}

	schema, err := db.Schema.UpdateWith(newT, builder.NewRefPIDs(), vocabFlakes)
	if err != nil {
		return nil, err
	}
	// A commit can edit shapes without touching the vocabulary; the
	// shared schema would then carry a stale shape cache.
	if schema == db.Schema && touchesShapes(flakes) {
		schema = schema.WithFreshShapes(newT)
	}

	if m.validate != nil {
		if err := m.validate(ctx, db, schema, flakes); err != nil {
			return nil, err
		}
	}

	return m.foldIndexes(ctx, db, newT, schema, builder.NewRefPIDs(), alloc.Counters(), flakes)
}

// touchesShapes reports whether the batch carries any shape-machinery
// statement.
func touchesShapes(flakes []flake.Flake) bool {
	for _, f := range flakes {
		if f.Predicate >= vocabulary.IDShNodeShape && f.Predicate <= vocabulary.IDShIgnoredProperties {
			return true
		}
	}
	return false
}

// foldIndexes produces the new version: every index extended with the
// batch, OPST restricted to reference statements. The batch size sum
// runs concurrently with the index folds since it touches no shared
// state.
func (m *Merger) foldIndexes(ctx context.Context, db *DB, t int64, schema *vocabulary.Schema, newRefs map[flake.ID]bool, counters Counters, flakes []flake.Flake) (*DB, error) {
	var size int64
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		size = flake.TotalSize(flakes)
		return nil
	})

	var refFlakes []flake.Flake
	for _, f := range flakes {
		if f.Object.IsRef() && (newRefs[f.Predicate] || schema.IsRef(f.Predicate)) {
			refFlakes = append(refFlakes, f)
		}
	}

	newDB := &DB{
		Alias:  db.Alias,
		T:      t,
		SPOT:   db.SPOT.With(flakes),
		PSOT:   db.PSOT.With(flakes),
		POST:   db.POST.With(flakes),
		OPST:   db.OPST.With(refFlakes),
		TSPO:   db.TSPO.With(flakes),
		Schema: schema,
		ECount: counters,
		logger: db.logger,
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	newDB.Stats = Stats{
		Size:   db.Stats.Size + size,
		Flakes: db.Stats.Flakes + int64(len(flakes)),
	}
	return newDB, nil
}
