package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semledger/errors"
	"github.com/c360/semledger/flake"
	"github.com/c360/semledger/index"
	"github.com/c360/semledger/storage"
	"github.com/c360/semledger/storage/memstore"
	"github.com/c360/semledger/vocabulary"
)

func aliceData() *CommitData {
	return &CommitData{Assert: []*Node{{
		ID:    exNS + "alice",
		Types: []string{exNS + "Person"},
		Properties: map[string][]ValueNode{
			exNS + "age":  {{Value: float64(30)}},
			exNS + "name": {{Value: "Alice"}},
		},
	}}}
}

// writeChain writes the payloads as a linked commit chain and returns
// the commits oldest first.
func writeChain(t *testing.T, store storage.Store, payloads ...*CommitData) []*Commit {
	t.Helper()
	ctx := context.Background()
	var commits []*Commit
	var prev *Commit
	for _, data := range payloads {
		c, err := WriteCommit(ctx, store, "test/ledger", data, prev)
		require.NoError(t, err)
		commits = append(commits, c)
		prev = c
	}
	return commits
}

func TestWriteCommitChainsAndTraces(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	commits := writeChain(t, store,
		aliceData(),
		&CommitData{Assert: []*Node{{ID: exNS + "bob", Properties: map[string][]ValueNode{
			exNS + "name": {{Value: "Bob"}},
		}}}},
	)
	require.Len(t, commits, 2)
	assert.Equal(t, int64(1), commits[0].T)
	assert.Equal(t, int64(2), commits[1].T)
	assert.Equal(t, commits[0].Address, commits[1].Previous)

	traced, err := TraceCommits(ctx, store, commits[1].Address)
	require.NoError(t, err)
	require.Len(t, traced, 2)
	assert.Equal(t, commits[0].ID, traced[0].ID)
	assert.Equal(t, commits[1].ID, traced[1].ID)
}

func TestTraceCommitsMissingCommitIsFatal(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	writeChain(t, store, aliceData())
	_, err := TraceCommits(ctx, store, storage.AddressPrefix+"deadbeef")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrKeyNotFound))
}

func TestTraceCommitsBrokenSequence(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	first, err := WriteCommit(ctx, store, "test/ledger", aliceData(), nil)
	require.NoError(t, err)

	// Skip a transaction value in the chain.
	gap := &Commit{
		ID: "gap", V: commitVersion, T: 3,
		Previous: first.Address, Data: first.Data,
	}
	addr, err := storage.WriteJSON(ctx, store, gap)
	require.NoError(t, err)

	_, err = TraceCommits(ctx, store, addr)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBrokenChain))
}

func TestMergeCommitProducesNewVersion(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	commits := writeChain(t, store, aliceData())

	merger := NewMerger(store)
	db0 := NewDB("test/ledger")
	db1, err := merger.MergeCommit(ctx, db0, commits[0])
	require.NoError(t, err)

	assert.Equal(t, int64(-1), db1.T)
	assert.Equal(t, int64(1), db1.LogicalT())
	assert.Greater(t, db1.Stats.Flakes, int64(0))
	assert.Greater(t, db1.Stats.Size, int64(0))

	// Prior version untouched.
	assert.Equal(t, int64(0), db0.T)
	assert.Equal(t, 0, db0.SPOT.Len())

	sid, ok, err := db1.SubjectIDByIRI(ctx, exNS+"alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Greater(t, sid, vocabulary.MaxVocabID)

	// Class registered in the schema.
	cid, ok := db1.Schema.SubjectID(exNS + "Person")
	require.True(t, ok)
	rec, ok := db1.Schema.PredicateByID(cid)
	require.True(t, ok)
	assert.True(t, rec.Class)
}

func TestMergeCommitRejectsWrongT(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	commits := writeChain(t, store, aliceData(), aliceData())

	merger := NewMerger(store)
	_, err := merger.MergeCommit(ctx, NewDB("test/ledger"), commits[1])
	require.Error(t, err)
	assert.Equal(t, errors.KindInvalidCommit, errors.KindOf(err))
}

func TestMergeCommitRejectsEmptyPayload(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	dataAddr, err := storage.WriteJSON(ctx, store, &CommitData{T: 1})
	require.NoError(t, err)
	addr, err := storage.WriteJSON(ctx, store, &Commit{ID: "empty", V: commitVersion, T: 1, Data: dataAddr})
	require.NoError(t, err)

	merger := NewMerger(store)
	c, err := ReadCommit(ctx, store, addr)
	require.NoError(t, err)
	_, err = merger.MergeCommit(ctx, NewDB("test/ledger"), c)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrEmptyCommit))
	assert.True(t, errors.IsFatal(err))
}

func TestMergeCommitMultiDBAllowsTReuse(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	commits := writeChain(t, store, aliceData())

	strict := NewMerger(store)
	db1, err := strict.MergeCommit(ctx, NewDB("test/ledger"), commits[0])
	require.NoError(t, err)

	// A commit reusing t=1 fails strict merging but folds in
	// multi-ledger mode.
	other, err := WriteCommit(ctx, store, "other/ledger", &CommitData{Assert: []*Node{{
		ID: exNS + "carol", Properties: map[string][]ValueNode{
			exNS + "name": {{Value: "Carol"}},
		},
	}}}, nil)
	require.NoError(t, err)

	_, err = strict.MergeCommit(ctx, db1, other)
	require.Error(t, err)

	lenient := NewMerger(store, WithMultiDBMerge())
	db2, err := lenient.MergeCommit(ctx, db1, other)
	require.NoError(t, err)
	assert.Equal(t, int64(-2), db2.T)
}

func TestRetractionKeepsHistoryAndHidesCurrent(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	commits := writeChain(t, store,
		aliceData(),
		&CommitData{Retract: []*Node{{ID: exNS + "alice", Properties: map[string][]ValueNode{
			exNS + "age": {{Value: float64(30)}},
		}}}},
	)

	merger := NewMerger(store)
	db := NewDB("test/ledger")
	var err error
	for _, c := range commits {
		db, err = merger.MergeCommit(ctx, db, c)
		require.NoError(t, err)
	}

	sid, ok, err := db.SubjectIDByIRI(ctx, exNS+"alice")
	require.NoError(t, err)
	require.True(t, ok)

	// History keeps both assertion and retraction.
	seed := index.Min()
	seed.Subject = sid
	all, err := db.ScanSPOT(ctx, seed, func(f flake.Flake) bool { return f.Subject == sid })
	require.NoError(t, err)
	var asserts, retracts int
	for _, f := range all {
		if f.Op {
			asserts++
		} else {
			retracts++
		}
	}
	assert.Greater(t, asserts, 0)
	assert.Equal(t, 1, retracts)

	// The current view hides the retracted age but keeps the name.
	current, err := db.Subject(ctx, sid)
	require.NoError(t, err)
	var sawAge, sawName bool
	for _, f := range current {
		if f.Object.Kind == flake.KindInt && f.Object.Int == 30 {
			sawAge = true
		}
		if f.Object.Str == "Alice" {
			sawName = true
		}
	}
	assert.False(t, sawAge)
	assert.True(t, sawName)
}

func TestRefStatementsLandInOPST(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	commits := writeChain(t, store, &CommitData{Assert: []*Node{{
		ID: exNS + "alice",
		Properties: map[string][]ValueNode{
			exNS + "friend": {{Node: &Node{ID: exNS + "bob"}}},
			exNS + "name":   {{Value: "Alice"}},
		},
	}}})

	merger := NewMerger(store)
	db, err := merger.MergeCommit(ctx, NewDB("test/ledger"), commits[0])
	require.NoError(t, err)

	pid, ok, err := db.SubjectIDByIRI(ctx, exNS+"friend")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, db.Schema.IsRef(pid))

	// OPST holds the reference statement, never the string literal.
	var literalInOPST bool
	db.OPST.Ascend(func(f flake.Flake) bool {
		if f.Object.Kind == flake.KindString {
			literalInOPST = true
		}
		return true
	})
	assert.False(t, literalInOPST)
	assert.Less(t, db.OPST.Len(), db.SPOT.Len())
	assert.Greater(t, db.OPST.Len(), 0)
}

func TestLoadDBReplaysFullChain(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	commits := writeChain(t, store,
		aliceData(),
		&CommitData{Assert: []*Node{{ID: exNS + "bob", Properties: map[string][]ValueNode{
			exNS + "name": {{Value: "Bob"}},
		}}}},
		&CommitData{Retract: []*Node{{ID: exNS + "alice", Properties: map[string][]ValueNode{
			exNS + "name": {{Value: "Alice"}},
		}}}},
	)

	merger := NewMerger(store)

	// Incremental merging and a cold load agree.
	want := NewDB("test/ledger")
	var err error
	for _, c := range commits {
		want, err = merger.MergeCommit(ctx, want, c)
		require.NoError(t, err)
	}

	got, err := merger.LoadDB(ctx, "test/ledger", commits[len(commits)-1].Address)
	require.NoError(t, err)

	assert.Equal(t, want.T, got.T)
	assert.Equal(t, want.ECount, got.ECount)
	assert.Equal(t, want.Stats, got.Stats)
	assert.Equal(t, want.SPOT.Len(), got.SPOT.Len())
	assert.Equal(t, want.OPST.Len(), got.OPST.Len())
}

func TestSnapshotRoundtrip(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	commits := writeChain(t, store, aliceData(), &CommitData{Assert: []*Node{{
		ID: exNS + "alice", Properties: map[string][]ValueNode{
			exNS + "friend": {{Node: &Node{ID: exNS + "bob"}}},
		},
	}}})

	merger := NewMerger(store)
	db := NewDB("test/ledger")
	var err error
	for _, c := range commits {
		db, err = merger.MergeCommit(ctx, db, c)
		require.NoError(t, err)
	}

	addr, err := WriteSnapshot(ctx, store, db)
	require.NoError(t, err)

	restored, err := ReadSnapshot(ctx, store, addr)
	require.NoError(t, err)
	assert.Equal(t, db.T, restored.T)
	assert.Equal(t, db.ECount, restored.ECount)
	assert.Equal(t, db.Stats, restored.Stats)
	assert.Equal(t, db.SPOT.Len(), restored.SPOT.Len())
	assert.Equal(t, db.OPST.Len(), restored.OPST.Len())
	assert.Equal(t, db.Schema.RefPIDs(), restored.Schema.RefPIDs())
}

func TestLoadDBIdxSkipsSnapshottedCommits(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	merger := NewMerger(store)
	db := NewDB("test/ledger")

	first, err := WriteCommit(ctx, store, "test/ledger", aliceData(), nil)
	require.NoError(t, err)
	db, err = merger.MergeCommit(ctx, db, first)
	require.NoError(t, err)

	snapAddr, err := WriteSnapshot(ctx, store, db)
	require.NoError(t, err)

	// The second commit references the snapshot covering t=1.
	data := &CommitData{Assert: []*Node{{ID: exNS + "bob", Properties: map[string][]ValueNode{
		exNS + "name": {{Value: "Bob"}},
	}}}}
	dataAddr, err := storage.WriteJSON(ctx, store, data)
	require.NoError(t, err)
	second := &Commit{
		ID: "second", V: commitVersion, T: 2,
		Previous: first.Address, Data: dataAddr, Index: snapAddr,
	}
	secondAddr, err := storage.WriteJSON(ctx, store, second)
	require.NoError(t, err)

	got, err := merger.LoadDBIdx(ctx, "test/ledger", secondAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(-2), got.T)

	_, ok, err := got.SubjectIDByIRI(ctx, exNS+"bob")
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = got.SubjectIDByIRI(ctx, exNS+"alice")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLoadDBIdxFallsBackOnMissingSnapshot(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	first, err := WriteCommit(ctx, store, "test/ledger", aliceData(), nil)
	require.NoError(t, err)

	data := &CommitData{Assert: []*Node{{ID: exNS + "bob", Properties: map[string][]ValueNode{
		exNS + "name": {{Value: "Bob"}},
	}}}}
	dataAddr, err := storage.WriteJSON(ctx, store, data)
	require.NoError(t, err)
	second := &Commit{
		ID: "second", V: commitVersion, T: 2,
		Previous: first.Address, Data: dataAddr,
		Index: storage.AddressPrefix + "0000000000000000000000000000000000000000000000000000000000000000",
	}
	secondAddr, err := storage.WriteJSON(ctx, store, second)
	require.NoError(t, err)

	merger := NewMerger(store)
	got, err := merger.LoadDBIdx(ctx, "test/ledger", secondAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(-2), got.T)
}

// stallStore delays every Get until its gate opens, pinning prefetch
// workers mid-read.
type stallStore struct {
	*memstore.Store
	gate chan struct{}
}

func (s *stallStore) Get(ctx context.Context, key string) ([]byte, error) {
	<-s.gate
	return s.Store.Get(ctx, key)
}

func TestPrefetchDiscardedWhenDrainTimesOut(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	commits := writeChain(t, store, aliceData())

	stalled := &stallStore{Store: store, gate: make(chan struct{})}
	defer close(stalled.gate)

	merger := NewMerger(stalled)
	merger.prefetchDrain = 10 * time.Millisecond

	// Workers are still blocked in Get when the drain gives up; the map
	// handed back must be safe to read, so it comes back empty.
	prefetched := merger.prefetchData(ctx, commits)
	assert.Empty(t, prefetched)
}
