// Package index provides the immutable sort-order indexes a database
// version carries. Each index is a btree ordered by one of the flake
// total orders; folding a commit clones the tree, so successive
// versions share structure and never mutate each other.
package index

import (
	"context"
	"math"

	"github.com/google/btree"

	"github.com/c360/semledger/flake"
)

// btreeDegree balances node fanout against copy cost on Clone.
const btreeDegree = 16

// Index is one immutable sort-order index over flakes. The zero value
// is not usable; create with New.
type Index struct {
	order flake.Order
	tree  *btree.BTreeG[flake.Flake]
}

// New creates an empty index for the given sort order.
func New(order flake.Order) Index {
	cmp := order.Comparator()
	less := func(a, b flake.Flake) bool { return cmp(a, b) < 0 }
	return Index{order: order, tree: btree.NewG(btreeDegree, less)}
}

// Order returns the sort order this index maintains.
func (ix Index) Order() flake.Order { return ix.order }

// Len returns the number of flakes in the index.
func (ix Index) Len() int {
	if ix.tree == nil {
		return 0
	}
	return ix.tree.Len()
}

// With returns a new index containing the given flakes in addition to
// the receiver's. The receiver is unchanged; the two indexes share
// structure via copy-on-write.
func (ix Index) With(flakes []flake.Flake) Index {
	if len(flakes) == 0 {
		return ix
	}
	clone := ix.tree.Clone()
	for _, f := range flakes {
		clone.ReplaceOrInsert(f)
	}
	return Index{order: ix.order, tree: clone}
}

// Min returns a flake minimal under every sort order. Range seeds are
// built by setting the desired leading components on the result.
func Min() flake.Flake {
	return flake.Flake{
		Subject:   0,
		Predicate: 0,
		Object:    flake.Value{},
		Datatype:  0,
		T:         math.MinInt64,
		Op:        false,
	}
}

// Ascend visits every flake in sort order until fn returns false.
func (ix Index) Ascend(fn func(flake.Flake) bool) {
	if ix.tree == nil {
		return
	}
	ix.tree.Ascend(btree.ItemIteratorG[flake.Flake](fn))
}

// AscendFrom visits flakes >= seed in sort order until fn returns false.
func (ix Index) AscendFrom(seed flake.Flake, fn func(flake.Flake) bool) {
	if ix.tree == nil {
		return
	}
	ix.tree.AscendGreaterOrEqual(seed, btree.ItemIteratorG[flake.Flake](fn))
}

// Scan collects flakes starting at seed for as long as match holds,
// checking ctx between items so long scans stay cancelable.
func (ix Index) Scan(ctx context.Context, seed flake.Flake, match func(flake.Flake) bool) ([]flake.Flake, error) {
	var out []flake.Flake
	var scanErr error
	ix.AscendFrom(seed, func(f flake.Flake) bool {
		if err := ctx.Err(); err != nil {
			scanErr = err
			return false
		}
		if !match(f) {
			return false
		}
		out = append(out, f)
		return true
	})
	return out, scanErr
}
