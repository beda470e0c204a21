// Package flake defines the atomic statement unit of the ledger: an
// immutable (subject, predicate, object, datatype, t, op) fact plus
// optional metadata, together with the total orders used by the
// sort-order indexes.
package flake

import "fmt"

// ID is a stable non-negative integer identifier assigned to a subject
// or predicate IRI the first time it is used. Identifiers are allocated
// monotonically per ledger and never reused.
type ID int64

// NilID marks an unassigned identifier.
const NilID ID = -1

// Meta carries per-statement metadata. Today that is only the position
// of a value inside an ordered list; absent for non-list values.
type Meta struct {
	// Index is the zero-based position within an @list value.
	Index int `json:"i"`
}

// Flake is one immutable graph statement. Identical (s, p, o, dt) with
// differing Op represent an assertion and its retraction at different
// transaction values; both remain in history permanently. "Current"
// visibility is a view concern of the indexes, never deletion.
type Flake struct {
	Subject   ID
	Predicate ID
	Object    Value
	Datatype  ID
	// T is the transaction value in internal representation: negative,
	// decreasing by one per commit. Logical commit numbering is -T.
	T int64
	// Op is true for an assertion, false for a retraction.
	Op   bool
	Meta *Meta
}

// New creates an assertion flake without metadata.
func New(s, p ID, o Value, dt ID, t int64, op bool) Flake {
	return Flake{Subject: s, Predicate: p, Object: o, Datatype: dt, T: t, Op: op}
}

// String renders the flake for logs and test failure output.
func (f Flake) String() string {
	op := "retract"
	if f.Op {
		op = "assert"
	}
	return fmt.Sprintf("[%d %d %s dt=%d t=%d %s]", f.Subject, f.Predicate, f.Object, f.Datatype, f.T, op)
}

// metaIndex orders list-element flakes by position; flakes without
// metadata sort before flakes with metadata.
func metaIndex(f Flake) int {
	if f.Meta == nil {
		return -1
	}
	return f.Meta.Index
}

// Size estimates the in-memory footprint of the flake in bytes. Used
// for database version statistics; an estimate, not an exact account.
func (f Flake) Size() int64 {
	// ids, datatype, t, op and slice/pointer overhead
	size := int64(48)
	size += f.Object.size()
	if f.Meta != nil {
		size += 16
	}
	return size
}

// TotalSize sums Size over a statement batch.
func TotalSize(flakes []Flake) int64 {
	var total int64
	for _, f := range flakes {
		total += f.Size()
	}
	return total
}
