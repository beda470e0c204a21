package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/c360/semledger/pkg/worker"
)

// prefetchStopTimeout bounds how long a load waits for outstanding
// prefetch reads before replaying without them.
const prefetchStopTimeout = 2 * time.Minute

// LoadDB rebuilds a database version by replaying the full commit
// chain ending at latestAddress onto the genesis version.
func (m *Merger) LoadDB(ctx context.Context, alias, latestAddress string) (*DB, error) {
	commits, err := TraceCommits(ctx, m.store, latestAddress)
	if err != nil {
		return nil, err
	}
	return m.replay(ctx, NewDB(alias), commits)
}

// LoadDBIdx rebuilds a database version like LoadDB but starts from
// the latest snapshot when the head commit references one, replaying
// only the commits past the snapshot point. An unreadable snapshot
// degrades to a full replay rather than failing the load.
func (m *Merger) LoadDBIdx(ctx context.Context, alias, latestAddress string) (*DB, error) {
	commits, err := TraceCommits(ctx, m.store, latestAddress)
	if err != nil {
		return nil, err
	}
	if len(commits) == 0 {
		return NewDB(alias), nil
	}

	head := commits[len(commits)-1]
	if head.Index == "" {
		return m.replay(ctx, NewDB(alias), commits)
	}

	db, err := ReadSnapshot(ctx, m.store, head.Index)
	if err != nil {
		m.logger.Warn("snapshot unreadable, replaying full chain",
			"ledger", alias, "snapshot", head.Index, "error", err)
		return m.replay(ctx, NewDB(alias), commits)
	}

	remaining := commits[:0:0]
	for _, c := range commits {
		if c.T > db.LogicalT() {
			remaining = append(remaining, c)
		}
	}
	return m.replay(ctx, db, remaining)
}

// replay merges commits onto db in order. Commit payloads are
// prefetched concurrently since the reads are independent; the merges
// themselves stay strictly sequential.
func (m *Merger) replay(ctx context.Context, db *DB, commits []*Commit) (*DB, error) {
	if len(commits) == 0 {
		return db, nil
	}

	prefetched := m.prefetchData(ctx, commits)
	for _, c := range commits {
		data, ok := prefetched[c.Data]
		if !ok {
			var err error
			data, err = c.ReadData(ctx, m.store)
			if err != nil {
				return nil, err
			}
		}
		var err error
		db, err = m.mergeData(ctx, db, c, data)
		if err != nil {
			return nil, err
		}
	}
	return db, nil
}

// prefetchData reads commit payloads through a bounded worker pool and
// returns whatever completed, keyed by data address. Prefetch failures
// are not fatal; the sequential replay re-reads misses and surfaces
// the real error in order.
func (m *Merger) prefetchData(ctx context.Context, commits []*Commit) map[string]*CommitData {
	var mu sync.Mutex
	results := make(map[string]*CommitData, len(commits))

	pool := worker.NewPool(m.prefetchWorkers, len(commits),
		func(ctx context.Context, c *Commit) error {
			data, err := c.ReadData(ctx, m.store)
			if err != nil {
				return err
			}
			mu.Lock()
			results[c.Data] = data
			mu.Unlock()
			return nil
		})
	if err := pool.Start(ctx); err != nil {
		return results
	}
	for _, c := range commits {
		// The queue is sized to the chain, so this never drops.
		if err := pool.Submit(c); err != nil {
			break
		}
	}
	if err := pool.Stop(m.prefetchDrain); err != nil {
		// Stuck workers may still be writing the map; hand the caller a
		// fresh one and let the sequential replay read everything itself.
		m.logger.Warn("commit prefetch did not drain, discarding prefetched data", "error", err)
		return make(map[string]*CommitData)
	}
	return results
}
