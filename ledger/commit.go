package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/c360/semledger/errors"
	"github.com/c360/semledger/storage"
	"github.com/c360/semledger/vocabulary"
)

// commitVersion is the current commit envelope format version.
const commitVersion = 1

// Commit is the signed, content-addressed envelope for one
// transaction. The statement payload lives in a separate
// content-addressed CommitData document referenced by Data.
type Commit struct {
	// ID is a stable identifier for the commit, assigned at write time.
	ID string `json:"id"`
	// Address is the content address the commit was read from. Derived,
	// never stored inside the document itself.
	Address string `json:"-"`
	// V is the envelope format version.
	V int `json:"v"`
	// T is the commit's logical transaction number, starting at 1.
	T int64 `json:"t"`
	// Alias names the ledger the commit belongs to.
	Alias string `json:"alias,omitempty"`
	// Time is the wall-clock instant the commit was written.
	Time time.Time `json:"time"`
	// Previous is the content address of the preceding commit. Empty
	// only for the genesis commit.
	Previous string `json:"previous,omitempty"`
	// Data is the content address of the CommitData payload.
	Data string `json:"data"`
	// Index is the content address of the latest snapshot covering
	// this commit, when one exists.
	Index string `json:"index,omitempty"`
	// Proof carries the commit's signature when present. The ledger
	// stores it opaquely; verification is an external concern.
	Proof map[string]any `json:"proof,omitempty"`
}

// CommitData is the statement payload of a commit: the expanded nodes
// to assert and retract.
type CommitData struct {
	ID      string  `json:"id"`
	T       int64   `json:"t"`
	Assert  []*Node `json:"assert,omitempty"`
	Retract []*Node `json:"retract,omitempty"`
}

// Empty reports whether the payload carries no statements at all.
func (d *CommitData) Empty() bool {
	return len(d.Assert) == 0 && len(d.Retract) == 0
}

// ReadCommit fetches and decodes a commit envelope from storage.
func ReadCommit(ctx context.Context, store storage.Store, address string) (*Commit, error) {
	var c Commit
	if err := storage.ReadJSON(ctx, store, address, &c); err != nil {
		return nil, err
	}
	if c.Data == "" {
		return nil, errors.InvalidCommitWrap(errors.ErrMissingData, "commit %s", address)
	}
	c.Address = address
	return &c, nil
}

// ReadData fetches and decodes the commit's statement payload.
func (c *Commit) ReadData(ctx context.Context, store storage.Store) (*CommitData, error) {
	var d CommitData
	if err := storage.ReadJSON(ctx, store, c.Data, &d); err != nil {
		if errors.Is(err, errors.ErrKeyNotFound) {
			return nil, errors.InvalidCommitWrap(err, "commit %s: data %s missing", c.ID, c.Data)
		}
		return nil, err
	}
	return &d, nil
}

// WriteCommit content-addresses the payload and envelope, chains the
// new commit after prev, and writes both documents. It returns the
// commit with Address populated. A nil prev writes a genesis commit
// with T=1.
func WriteCommit(ctx context.Context, store storage.Store, alias string, data *CommitData, prev *Commit) (*Commit, error) {
	if data == nil || data.Empty() {
		return nil, errors.Wrap(errors.ErrEmptyCommit, "ledger", "WriteCommit", "encode payload")
	}

	var t int64 = 1
	var previous string
	if prev != nil {
		t = prev.T + 1
		previous = prev.Address
	}
	data.T = t
	if data.ID == "" {
		data.ID = vocabulary.LedgerNamespace + "data/" + uuid.NewString()
	}

	dataAddr, err := storage.WriteJSON(ctx, store, data)
	if err != nil {
		return nil, err
	}

	c := &Commit{
		ID:       vocabulary.LedgerNamespace + "commit/" + uuid.NewString(),
		V:        commitVersion,
		T:        t,
		Alias:    alias,
		Time:     time.Now().UTC(),
		Previous: previous,
		Data:     dataAddr,
	}
	addr, err := storage.WriteJSON(ctx, store, c)
	if err != nil {
		return nil, err
	}
	c.Address = addr
	return c, nil
}
