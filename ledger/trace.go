package ledger

import (
	"context"

	"github.com/c360/semledger/errors"
	"github.com/c360/semledger/storage"
)

// TraceCommits walks the previous-pointers from the latest commit back
// to genesis and returns the chain oldest first. The walk proves the
// chain is contiguous: t must decrease by exactly one at every hop and
// end at 1. A missing commit or a gap makes the whole ledger
// unloadable, so both fail hard.
func TraceCommits(ctx context.Context, store storage.Store, latestAddress string) ([]*Commit, error) {
	var chain []*Commit
	address := latestAddress
	var child *Commit

	for address != "" {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, err := ReadCommit(ctx, store, address)
		if err != nil {
			if errors.Is(err, errors.ErrKeyNotFound) {
				return nil, errors.WrapFatal(
					errors.InvalidCommitWrap(err, "commit %s unreachable", address),
					"ledger", "TraceCommits", "read chain")
			}
			return nil, err
		}
		if child != nil && c.T != child.T-1 {
			return nil, errors.InvalidCommitWrap(errors.ErrBrokenChain,
				"commit %s has t=%d, expected %d", c.ID, c.T, child.T-1)
		}
		chain = append(chain, c)
		child = c
		address = c.Previous
	}

	if len(chain) > 0 && chain[len(chain)-1].T != 1 {
		return nil, errors.InvalidCommitWrap(errors.ErrMissingPrevious,
			"chain ends at t=%d without a previous address", chain[len(chain)-1].T)
	}

	// Reverse into merge order, oldest first.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}
