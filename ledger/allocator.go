package ledger

import (
	"github.com/c360/semledger/errors"
	"github.com/c360/semledger/flake"
	"github.com/c360/semledger/vocabulary"
)

// Allocator hands out fresh identifiers during one merge. It is owned
// by a single merge at a time and is not safe for concurrent use;
// sharing an allocator across merges of the same prior version would
// let two commits claim the same identifier.
type Allocator struct {
	lastPID flake.ID
	lastSID flake.ID
}

// NewAllocator seeds an allocator from the counters of the version
// being merged onto.
func NewAllocator(c Counters) *Allocator {
	return &Allocator{lastPID: c.LastPID, lastSID: c.LastSID}
}

// NextPID allocates the next vocabulary identifier, for predicates and
// classes. It fails once the reserved vocabulary range is exhausted.
func (a *Allocator) NextPID() (flake.ID, error) {
	if a.lastPID >= vocabulary.MaxVocabID {
		return flake.NilID, errors.InvalidCommit(
			"vocabulary identifier range exhausted at %d", a.lastPID)
	}
	a.lastPID++
	return a.lastPID, nil
}

// NextSID allocates the next data-subject identifier.
func (a *Allocator) NextSID() flake.ID {
	a.lastSID++
	return a.lastSID
}

// Counters returns the high-water marks after allocation, for the new
// database version.
func (a *Allocator) Counters() Counters {
	return Counters{LastPID: a.lastPID, LastSID: a.lastSID}
}
