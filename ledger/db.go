package ledger

import (
	"context"
	"log/slog"

	"github.com/c360/semledger/errors"
	"github.com/c360/semledger/flake"
	"github.com/c360/semledger/index"
	"github.com/c360/semledger/vocabulary"
)

// Counters records the highest identifiers allocated so far. Both are
// monotonic per ledger; retraction never lowers them.
type Counters struct {
	// LastPID is the highest vocabulary identifier handed out.
	LastPID flake.ID `json:"last_pid"`
	// LastSID is the highest data-subject identifier handed out.
	LastSID flake.ID `json:"last_sid"`
}

// Stats carries running totals for a database version.
type Stats struct {
	// Size is the estimated byte footprint of all flakes ever merged.
	Size int64 `json:"size"`
	// Flakes counts every statement merged, retractions included.
	Flakes int64 `json:"flakes"`
}

// DB is one immutable database version. Merging a commit produces a
// new DB; existing versions are never mutated, so a DB is safe for
// concurrent readers without locking. Successive versions share index
// structure through copy-on-write.
type DB struct {
	// Alias names the ledger this version belongs to.
	Alias string
	// T is the version's transaction value in internal representation:
	// zero for genesis, then decreasing by one per merged commit.
	T int64

	// The five sort-order indexes. All hold the same statements except
	// OPST, which holds only reference statements.
	SPOT index.Index
	PSOT index.Index
	POST index.Index
	OPST index.Index
	TSPO index.Index

	// Schema is the vocabulary cache as of this version.
	Schema *vocabulary.Schema
	// ECount seeds identifier allocation for the next merge.
	ECount Counters
	// Stats accumulates size and statement totals.
	Stats Stats

	logger *slog.Logger
}

// NewDB creates the empty genesis version of a ledger: no statements,
// system vocabulary only, counters positioned at the top of the
// reserved ranges.
func NewDB(alias string) *DB {
	return &DB{
		Alias:  alias,
		T:      0,
		SPOT:   index.New(flake.OrderSPOT),
		PSOT:   index.New(flake.OrderPSOT),
		POST:   index.New(flake.OrderPOST),
		OPST:   index.New(flake.OrderOPST),
		TSPO:   index.New(flake.OrderTSPO),
		Schema: vocabulary.NewSchema(),
		ECount: Counters{
			LastPID: vocabulary.MaxSystemID,
			LastSID: vocabulary.MaxVocabID,
		},
		logger: slog.Default(),
	}
}

// LogicalT returns the version's transaction number in the positive
// numbering commits use.
func (db *DB) LogicalT() int64 { return -db.T }

// ScanSPOT scans the SPOT index from seed while match holds.
func (db *DB) ScanSPOT(ctx context.Context, seed flake.Flake, match func(flake.Flake) bool) ([]flake.Flake, error) {
	return db.SPOT.Scan(ctx, seed, match)
}

// ScanPSOT scans the PSOT index from seed while match holds.
func (db *DB) ScanPSOT(ctx context.Context, seed flake.Flake, match func(flake.Flake) bool) ([]flake.Flake, error) {
	return db.PSOT.Scan(ctx, seed, match)
}

// ScanPOST scans the POST index from seed while match holds.
func (db *DB) ScanPOST(ctx context.Context, seed flake.Flake, match func(flake.Flake) bool) ([]flake.Flake, error) {
	return db.POST.Scan(ctx, seed, match)
}

// ScanOPST scans the OPST index from seed while match holds.
func (db *DB) ScanOPST(ctx context.Context, seed flake.Flake, match func(flake.Flake) bool) ([]flake.Flake, error) {
	return db.OPST.Scan(ctx, seed, match)
}

// ScanTSPO scans the TSPO index from seed while match holds.
func (db *DB) ScanTSPO(ctx context.Context, seed flake.Flake, match func(flake.Flake) bool) ([]flake.Flake, error) {
	return db.TSPO.Scan(ctx, seed, match)
}

// SubjectIDByIRI resolves an IRI to its assigned identifier, looking
// first at the system vocabulary and the schema cache, then at the
// identifier statements in the POST index. The second return is false
// when the IRI has never been assigned.
func (db *DB) SubjectIDByIRI(ctx context.Context, iri string) (flake.ID, bool, error) {
	if id, ok := vocabulary.SystemID(iri); ok {
		return id, true, nil
	}
	if id, ok := db.Schema.SubjectID(iri); ok {
		return id, true, nil
	}

	// Identifier bindings are (sid, IDIRI, iri) statements; POST groups
	// them by object so one IRI's history sits contiguously.
	seed := index.Min()
	seed.Predicate = vocabulary.IDIRI
	seed.Object = flake.StringValue(iri)
	matches, err := db.POST.Scan(ctx, seed, func(f flake.Flake) bool {
		return f.Predicate == vocabulary.IDIRI && f.Object.Equal(flake.StringValue(iri))
	})
	if err != nil {
		return flake.NilID, false, errors.IO(err, "ledger", "SubjectIDByIRI", "scan POST")
	}
	for _, f := range matches {
		if f.Op {
			return f.Subject, true, nil
		}
	}
	return flake.NilID, false, nil
}

// Subject returns every statement about a subject that is currently
// visible: asserted and not later retracted.
func (db *DB) Subject(ctx context.Context, sid flake.ID) ([]flake.Flake, error) {
	seed := index.Min()
	seed.Subject = sid
	all, err := db.SPOT.Scan(ctx, seed, func(f flake.Flake) bool { return f.Subject == sid })
	if err != nil {
		return nil, errors.IO(err, "ledger", "Subject", "scan SPOT")
	}
	return Current(all), nil
}

// Current filters a batch sorted by one of the five orders down to the
// visible view: an assertion survives unless the same (s, p, o, dt)
// carries a retraction at a later transaction.
func Current(flakes []flake.Flake) []flake.Flake {
	type key struct {
		s, p, dt flake.ID
		o        flake.Value
		i        int
	}
	latest := make(map[key]flake.Flake, len(flakes))
	for _, f := range flakes {
		k := key{s: f.Subject, p: f.Predicate, dt: f.Datatype, o: f.Object, i: metaIndexOf(f)}
		prev, ok := latest[k]
		// Internal t decreases per commit, so smaller t is newer.
		if !ok || f.T < prev.T {
			latest[k] = f
		}
	}
	out := make([]flake.Flake, 0, len(latest))
	for _, f := range flakes {
		k := key{s: f.Subject, p: f.Predicate, dt: f.Datatype, o: f.Object, i: metaIndexOf(f)}
		if cur, ok := latest[k]; ok && cur == f && f.Op {
			out = append(out, f)
			delete(latest, k)
		}
	}
	return out
}

func metaIndexOf(f flake.Flake) int {
	if f.Meta == nil {
		return -1
	}
	return f.Meta.Index
}
