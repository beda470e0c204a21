// Package semledger maintains immutable database versions built from
// signed commit chains of semantic graph statements.
//
// # Model
//
// Every fact is a flake: a (subject, predicate, object, datatype, t,
// op) tuple. Assertions and retractions are both flakes and both stay
// in the database forever; "current" state is a view computed over the
// full history. Merging a commit produces a brand-new version that
// shares index structure with its parent, so old versions remain
// readable at no extra cost.
//
//	┌──────────────┐   TraceCommits   ┌──────────────┐
//	│ commit chain │ ───────────────► │ oldest-first │
//	│ (storage)    │                  │ commit list  │
//	└──────────────┘                  └──────┬───────┘
//	                                         │ MergeCommit
//	                                         ▼
//	┌─────────────────────────────────────────────────┐
//	│ DB version: SPOT PSOT POST OPST TSPO + Schema   │
//	└─────────────────────────────────────────────────┘
//
// Each version carries five sort-order indexes over the same flakes
// (OPST holds reference statements only) plus a vocabulary cache of
// predicates, classes, shapes, and compiled policies.
//
// # Packages
//
// Core:
//   - flake: statement representation and the five sort orders
//   - index: immutable B-tree indexes with copy-on-write versioning
//   - vocabulary: reserved identifiers and the schema cache
//   - ledger: commits, identifier resolution, merge, replay, snapshots
//   - shacl: shape compilation and merge-time batch validation
//   - policy: role policy compilation and per-session permission checks
//
// Infrastructure:
//   - storage: content-addressed document store interface
//   - storage/memstore, storage/objectstore: in-memory and JetStream backends
//   - natsclient: NATS connection management
//   - config: YAML configuration with environment overrides
//   - metric: Prometheus metrics
//   - errors: classified error handling
//
// Utilities:
//   - pkg/cache: LRU caching
//   - pkg/retry: retry policies
//   - pkg/worker: worker pools
//
// # Binary
//
// The semledger binary replays, verifies, and snapshots commit chains:
//
//	semledger replay --head <address>
//	semledger verify --head <address>
//	semledger snapshot --head <address>
package semledger
