package ledger

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/c360/semledger/errors"
	"github.com/c360/semledger/flake"
	"github.com/c360/semledger/pkg/cache"
	"github.com/c360/semledger/vocabulary"
)

// Builder turns one commit's expanded nodes into a statement batch,
// resolving IRIs to identifiers and allocating fresh ones for assert
// paths. Retract paths never allocate: retracting something that was
// never named is a malformed commit, not an implicit assignment.
//
// A builder serves a single merge and is not safe for concurrent use.
type Builder struct {
	db    *DB
	alloc *Allocator
	t     int64

	// iris caches resolved identifiers, including ones allocated
	// earlier in this same commit that the indexes can't see yet.
	iris cache.Cache[flake.ID]

	flakes  []flake.Flake
	newRefs map[flake.ID]bool
	logger  *slog.Logger
}

// NewBuilder creates a builder producing statements at internal
// transaction value t against the given prior version.
func NewBuilder(db *DB, alloc *Allocator, t int64) *Builder {
	iris, _ := cache.NewSimple[flake.ID]()
	return &Builder{
		db:      db,
		alloc:   alloc,
		t:       t,
		iris:    iris,
		newRefs: make(map[flake.ID]bool),
		logger:  slog.Default().With("component", "ledger.builder"),
	}
}

// Flakes returns the accumulated statement batch.
func (b *Builder) Flakes() []flake.Flake { return b.flakes }

// NewRefPIDs returns the predicates first observed holding a reference
// object in this batch.
func (b *Builder) NewRefPIDs() map[flake.ID]bool { return b.newRefs }

func (b *Builder) emit(f flake.Flake) { b.flakes = append(b.flakes, f) }

// lookupIRI resolves an IRI without allocating, consulting in-flight
// assignments before the prior version.
func (b *Builder) lookupIRI(ctx context.Context, iri string) (flake.ID, bool, error) {
	if id, ok := b.iris.Get(iri); ok {
		return id, true, nil
	}
	id, ok, err := b.db.SubjectIDByIRI(ctx, iri)
	if err != nil || !ok {
		return flake.NilID, false, err
	}
	b.iris.Set(iri, id)
	return id, true, nil
}

// bindIRI records a fresh identifier assignment: the cache entry plus
// the identifier-binding statement every later version resolves from.
func (b *Builder) bindIRI(id flake.ID, iri string) {
	b.iris.Set(iri, id)
	b.emit(flake.New(id, vocabulary.IDIRI, flake.StringValue(iri), vocabulary.DatatypeString, b.t, true))
}

// resolveSubject returns the identifier for an asserted node's
// subject, allocating one on first use. Blank nodes get a generated
// tag so their binding statement still round-trips.
func (b *Builder) resolveSubject(ctx context.Context, node *Node) (flake.ID, error) {
	if node.ID == "" {
		sid := b.alloc.NextSID()
		b.bindIRI(sid, "_:sl"+uuid.NewString())
		return sid, nil
	}
	if id, ok, err := b.lookupIRI(ctx, node.ID); err != nil || ok {
		return id, err
	}
	var sid flake.ID
	if b.isClassNode(ctx, node) {
		pid, err := b.alloc.NextPID()
		if err != nil {
			return flake.NilID, err
		}
		sid = pid
	} else {
		sid = b.alloc.NextSID()
	}
	b.bindIRI(sid, node.ID)
	return sid, nil
}

// isClassNode reports whether a node declares itself schema vocabulary
// (a class or property), which places its identifier in the reserved
// vocabulary range so schema updates can see its statements.
func (b *Builder) isClassNode(ctx context.Context, node *Node) bool {
	for _, typeIRI := range node.Types {
		id, ok, err := b.lookupIRI(ctx, typeIRI)
		if err != nil || !ok {
			continue
		}
		if id == vocabulary.IDRdfsClass || id == vocabulary.IDRdfProperty {
			return true
		}
	}
	return false
}

// resolveClass returns the identifier for a class IRI, allocating in
// the vocabulary range and declaring the class on first use.
func (b *Builder) resolveClass(ctx context.Context, iri string) (flake.ID, error) {
	if id, ok, err := b.lookupIRI(ctx, iri); err != nil || ok {
		return id, err
	}
	cid, err := b.alloc.NextPID()
	if err != nil {
		return flake.NilID, err
	}
	b.bindIRI(cid, iri)
	b.emit(flake.New(cid, vocabulary.IDRdfType, flake.RefValue(vocabulary.IDRdfsClass), vocabulary.DatatypeRef, b.t, true))
	return cid, nil
}

// vocabRefPredicates are predicates whose reference objects name
// vocabulary subjects (properties, classes, shape paths), so an
// unknown target allocates in the vocabulary range instead of getting
// a data-subject identifier.
var vocabRefPredicates = map[flake.ID]bool{
	vocabulary.IDOwlEquivalentProperty: true,
	vocabulary.IDShTargetClass:         true,
	vocabulary.IDShPath:                true,
	vocabulary.IDShEquals:              true,
	vocabulary.IDShDisjoint:            true,
	vocabulary.IDShLessThan:            true,
	vocabulary.IDShLessThanOrEquals:    true,
	vocabulary.IDShIgnoredProperties:   true,
	vocabulary.IDPolicyTarget:          true,
	vocabulary.IDPolicyPath:            true,
	vocabulary.IDPolicyEquals:          true,
}

// resolveVocabRef returns the identifier for an IRI referenced as
// vocabulary, allocating a bare vocabulary-range binding on first use.
func (b *Builder) resolveVocabRef(ctx context.Context, iri string) (flake.ID, error) {
	if id, ok, err := b.lookupIRI(ctx, iri); err != nil || ok {
		return id, err
	}
	pid, err := b.alloc.NextPID()
	if err != nil {
		return flake.NilID, err
	}
	b.bindIRI(pid, iri)
	return pid, nil
}

// resolvePredicate returns the identifier for a predicate IRI,
// allocating in the vocabulary range on first use.
func (b *Builder) resolvePredicate(ctx context.Context, iri string) (flake.ID, error) {
	if id, ok, err := b.lookupIRI(ctx, iri); err != nil || ok {
		return id, err
	}
	pid, err := b.alloc.NextPID()
	if err != nil {
		return flake.NilID, err
	}
	b.logger.Debug("allocated predicate", "iri", iri, "pid", pid)
	b.bindIRI(pid, iri)
	b.emit(flake.New(pid, vocabulary.IDRdfType, flake.RefValue(vocabulary.IDRdfProperty), vocabulary.DatatypeRef, b.t, true))
	return pid, nil
}

// Assert folds one asserted node, recursively including nested nodes,
// and returns the subject identifier the node resolved to.
func (b *Builder) Assert(ctx context.Context, node *Node) (flake.ID, error) {
	sid, err := b.resolveSubject(ctx, node)
	if err != nil {
		return flake.NilID, err
	}

	for _, typeIRI := range node.Types {
		cid, err := b.resolveClass(ctx, typeIRI)
		if err != nil {
			return flake.NilID, err
		}
		b.emit(flake.New(sid, vocabulary.IDRdfType, flake.RefValue(cid), vocabulary.DatatypeRef, b.t, true))
	}

	for _, predIRI := range node.sortedPredicates() {
		pid, err := b.resolvePredicate(ctx, predIRI)
		if err != nil {
			return flake.NilID, err
		}
		for _, v := range node.Properties[predIRI] {
			if err := b.insertValue(ctx, sid, pid, v, nil); err != nil {
				return flake.NilID, err
			}
		}
	}
	return sid, nil
}

// insertValue emits the statements for one value descriptor. List
// elements carry their position as statement metadata.
func (b *Builder) insertValue(ctx context.Context, sid, pid flake.ID, v ValueNode, meta *flake.Meta) error {
	switch {
	case v.List != nil:
		for i, item := range v.List {
			if item.List != nil {
				return errors.InvalidCommit("nested @list values are not supported")
			}
			if err := b.insertValue(ctx, sid, pid, item, &flake.Meta{Index: i}); err != nil {
				return err
			}
		}
		return nil

	case v.Node != nil:
		child := v.Node
		var oid flake.ID
		var err error
		// References to schema vocabulary stay in the vocabulary range.
		switch {
		case child.ID != "" && pid == vocabulary.IDRdfsSubClassOf:
			oid, err = b.resolveClass(ctx, child.ID)
		case child.ID != "" && vocabRefPredicates[pid] && len(child.Properties) == 0 && len(child.Types) == 0:
			oid, err = b.resolveVocabRef(ctx, child.ID)
		default:
			oid, err = b.Assert(ctx, child)
		}
		if err != nil {
			return err
		}
		b.newRefs[pid] = true
		f := flake.New(sid, pid, flake.RefValue(oid), vocabulary.DatatypeRef, b.t, true)
		f.Meta = meta
		b.emit(f)
		return nil

	default:
		obj, dt, err := coerceLiteral(v)
		if err != nil {
			return err
		}
		f := flake.New(sid, pid, obj, dt, b.t, true)
		f.Meta = meta
		b.emit(f)
		return nil
	}
}

// Retract folds one retracted node. Every IRI must already be bound;
// the retract path never allocates an identifier.
func (b *Builder) Retract(ctx context.Context, node *Node) error {
	if node.ID == "" {
		return errors.InvalidCommit("retraction of a blank node is ambiguous; a subject iri is required")
	}
	sid, err := b.mustLookup(ctx, node.ID)
	if err != nil {
		return err
	}

	for _, typeIRI := range node.Types {
		cid, err := b.mustLookup(ctx, typeIRI)
		if err != nil {
			return err
		}
		b.emit(flake.New(sid, vocabulary.IDRdfType, flake.RefValue(cid), vocabulary.DatatypeRef, b.t, false))
	}

	for _, predIRI := range node.sortedPredicates() {
		pid, err := b.mustLookup(ctx, predIRI)
		if err != nil {
			return err
		}
		for _, v := range node.Properties[predIRI] {
			if err := b.retractValue(ctx, sid, pid, v, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Builder) mustLookup(ctx context.Context, iri string) (flake.ID, error) {
	id, ok, err := b.lookupIRI(ctx, iri)
	if err != nil {
		return flake.NilID, err
	}
	if !ok {
		return flake.NilID, errors.InvalidCommitWrap(errors.ErrUnknownIRI, "retract %q", iri)
	}
	return id, nil
}

func (b *Builder) retractValue(ctx context.Context, sid, pid flake.ID, v ValueNode, meta *flake.Meta) error {
	switch {
	case v.List != nil:
		for i, item := range v.List {
			if err := b.retractValue(ctx, sid, pid, item, &flake.Meta{Index: i}); err != nil {
				return err
			}
		}
		return nil

	case v.Node != nil:
		if v.Node.ID == "" {
			return errors.InvalidCommit("retraction of a blank node is ambiguous; a subject iri is required")
		}
		oid, err := b.mustLookup(ctx, v.Node.ID)
		if err != nil {
			return err
		}
		f := flake.New(sid, pid, flake.RefValue(oid), vocabulary.DatatypeRef, b.t, false)
		f.Meta = meta
		b.emit(f)
		// A nested retraction node retracts its own statements too.
		if len(v.Node.Types) > 0 || len(v.Node.Properties) > 0 {
			return b.Retract(ctx, v.Node)
		}
		return nil

	default:
		obj, dt, err := coerceLiteral(v)
		if err != nil {
			return err
		}
		f := flake.New(sid, pid, obj, dt, b.t, false)
		f.Meta = meta
		b.emit(f)
		return nil
	}
}

// coerceLiteral maps a literal descriptor to its typed object value.
func coerceLiteral(v ValueNode) (flake.Value, flake.ID, error) {
	dt := vocabulary.DatatypeIRI(v.Type)
	switch val := v.Value.(type) {
	case bool:
		return flake.BoolValue(val), vocabulary.DatatypeBoolean, nil
	case string:
		switch dt {
		case vocabulary.DatatypeDateTime:
			tm, err := time.Parse(time.RFC3339, val)
			if err != nil {
				return flake.Value{}, flake.NilID, errors.InvalidCommit("malformed xsd:dateTime literal %q", val)
			}
			return flake.TimeValue(tm), vocabulary.DatatypeDateTime, nil
		case vocabulary.DatatypeAnyURI:
			return flake.StringValue(val), vocabulary.DatatypeAnyURI, nil
		default:
			return flake.StringValue(val), vocabulary.DatatypeString, nil
		}
	case float64:
		// JSON numbers arrive as float64. Whole numbers without an
		// explicit floating-point datatype are integers.
		if dt != vocabulary.DatatypeDouble && val == math.Trunc(val) {
			return flake.IntValue(int64(val)), vocabulary.DatatypeInteger, nil
		}
		return flake.FloatValue(val), vocabulary.DatatypeDouble, nil
	case int:
		return flake.IntValue(int64(val)), vocabulary.DatatypeInteger, nil
	case int64:
		return flake.IntValue(val), vocabulary.DatatypeInteger, nil
	case time.Time:
		return flake.TimeValue(val), vocabulary.DatatypeDateTime, nil
	case nil:
		return flake.Value{}, flake.NilID, errors.InvalidCommit("null literal value")
	default:
		return flake.Value{}, flake.NilID, errors.InvalidCommit("unsupported literal type %T", v.Value)
	}
}
