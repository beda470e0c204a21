package vocabulary

import (
	"context"
	"sort"
	"sync"

	"github.com/c360/semledger/errors"
	"github.com/c360/semledger/flake"
	"github.com/c360/semledger/index"
	"github.com/c360/semledger/pkg/cache"
)

// Predicate is the derived metadata for one vocabulary-range subject:
// a property, class, or both.
type Predicate struct {
	ID  flake.ID
	IRI string
	// Ref marks predicates whose object values are subject references.
	Ref bool
	// Class marks subjects declared rdf:type rdfs:Class.
	Class bool
	// SubclassOf lists direct parents from rdfs:subClassOf.
	SubclassOf []flake.ID
	// Equivalents lists owl:equivalentProperty declarations.
	Equivalents []flake.ID
}

func (p *Predicate) clone() *Predicate {
	cp := *p
	cp.SubclassOf = append([]flake.ID(nil), p.SubclassOf...)
	cp.Equivalents = append([]flake.ID(nil), p.Equivalents...)
	return &cp
}

// Schema is the recomputable vocabulary cache carried by one database
// version: predicate metadata keyed by identifier and IRI, a lazily
// computed subclass closure, the default JSON-LD context, and the
// shape cache consumed by shape validation.
//
// A Schema is immutable after construction; UpdateWith returns a new
// value sharing untouched predicate records with its parent. The shape
// cache starts empty on every new Schema, which bounds shape staleness
// to a single database version.
type Schema struct {
	// T is the internal transaction value of the commit that produced
	// this schema.
	T int64

	// Context is the default JSON-LD context for this ledger.
	Context map[string]any

	// Shapes caches compiled class shapes, keyed by class identifier.
	// Safe for concurrent read; population races are tolerated because
	// shape builds are pure functions of statement data.
	Shapes cache.Cache[any]

	preds map[flake.ID]*Predicate
	iris  map[string]*Predicate

	subOnce    sync.Once
	subclasses map[flake.ID][]flake.ID
}

// systemRefPIDs are pre-assigned predicates whose objects are always
// subject references.
var systemRefPIDs = map[flake.ID]bool{
	IDRdfType:               true,
	IDRdfsSubClassOf:        true,
	IDOwlEquivalentProperty: true,
	IDShTargetClass:         true,
	IDShTargetNode:          true,
	IDShProperty:            true,
	IDShPath:                true,
	IDShDatatype:            true,
	IDShNodeKind:            true,
	IDShEquals:              true,
	IDShDisjoint:            true,
	IDShLessThan:            true,
	IDShLessThanOrEquals:    true,
	IDShIgnoredProperties:   true,
	IDPolicyTarget:          true,
	IDPolicyNode:            true,
	IDPolicyProperty:        true,
	IDPolicyPath:            true,
	IDPolicyAllow:           true,
	IDPolicyRole:            true,
	IDPolicyEquals:          true,
	IDPolicyContains:        true,
	IDIdentityRole:          true,
}

// NewSchema creates the genesis schema: system predicates only, the
// default context, and an empty shape cache.
func NewSchema() *Schema {
	s := &Schema{
		T:       0,
		Context: DefaultContext(),
		preds:   make(map[flake.ID]*Predicate, len(systemIRIs)),
		iris:    make(map[string]*Predicate, len(systemIRIs)),
	}
	for id, iri := range systemIRIs {
		rec := &Predicate{ID: id, IRI: iri, Ref: systemRefPIDs[id]}
		s.preds[id] = rec
		s.iris[iri] = rec
	}
	s.Shapes, _ = cache.NewSimple[any]()
	return s
}

// clone prepares a successor schema for commit t. Predicate records
// are shared until touched.
func (s *Schema) clone(t int64) *Schema {
	next := &Schema{
		T:       t,
		Context: s.Context,
		preds:   make(map[flake.ID]*Predicate, len(s.preds)),
		iris:    make(map[string]*Predicate, len(s.iris)),
	}
	for id, rec := range s.preds {
		next.preds[id] = rec
	}
	for iri, rec := range s.iris {
		next.iris[iri] = rec
	}
	next.Shapes, _ = cache.NewSimple[any]()
	return next
}

// WithFreshShapes returns a schema for commit t sharing all predicate
// state with the receiver but starting an empty shape cache. Used when
// a commit touches shape statements without touching the vocabulary.
func (s *Schema) WithFreshShapes(t int64) *Schema {
	return s.clone(t)
}

// mutable returns a record for id that is safe to modify within this
// schema, cloning a shared record on first touch.
func (s *Schema) mutable(id flake.ID) *Predicate {
	rec, ok := s.preds[id]
	if !ok {
		rec = &Predicate{ID: id}
		s.preds[id] = rec
		return rec
	}
	cp := rec.clone()
	s.preds[id] = cp
	if cp.IRI != "" {
		s.iris[cp.IRI] = cp
	}
	return cp
}

// PredicateByID returns metadata for a vocabulary identifier.
func (s *Schema) PredicateByID(id flake.ID) (*Predicate, bool) {
	rec, ok := s.preds[id]
	return rec, ok
}

// PredicateByIRI returns metadata for a vocabulary IRI.
func (s *Schema) PredicateByIRI(iri string) (*Predicate, bool) {
	rec, ok := s.iris[iri]
	return rec, ok
}

// SubjectID resolves a vocabulary-range IRI to its identifier.
func (s *Schema) SubjectID(iri string) (flake.ID, bool) {
	if rec, ok := s.iris[iri]; ok {
		return rec.ID, true
	}
	return flake.NilID, false
}

// IsRef reports whether a predicate's objects are subject references.
func (s *Schema) IsRef(pid flake.ID) bool {
	rec, ok := s.preds[pid]
	return ok && rec.Ref
}

// RefPIDs returns the set of reference-typed predicate identifiers.
func (s *Schema) RefPIDs() map[flake.ID]bool {
	out := make(map[flake.ID]bool)
	for id, rec := range s.preds {
		if rec.Ref {
			out[id] = true
		}
	}
	return out
}

// Subclasses returns the descendant closure of a class, including the
// class itself. The closure over all classes is computed on first use
// and cached for the life of this schema value.
func (s *Schema) Subclasses(class flake.ID) []flake.ID {
	s.subOnce.Do(s.computeSubclasses)
	if descendants, ok := s.subclasses[class]; ok {
		return descendants
	}
	return []flake.ID{class}
}

func (s *Schema) computeSubclasses() {
	children := make(map[flake.ID][]flake.ID)
	for id, rec := range s.preds {
		for _, parent := range rec.SubclassOf {
			children[parent] = append(children[parent], id)
		}
	}

	s.subclasses = make(map[flake.ID][]flake.ID, len(children))
	for class := range children {
		seen := map[flake.ID]bool{class: true}
		queue := []flake.ID{class}
		closure := []flake.ID{class}
		for len(queue) > 0 {
			next := queue[0]
			queue = queue[1:]
			for _, child := range children[next] {
				if !seen[child] {
					seen[child] = true
					closure = append(closure, child)
					queue = append(queue, child)
				}
			}
		}
		rest := closure[1:]
		sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
		s.subclasses[class] = closure
	}
}

// UpdateWith folds one commit's vocabulary-range statements and newly
// flagged reference predicates into the schema, returning a new schema
// value. Returns the receiver unchanged when the commit touched no
// vocabulary state.
func (s *Schema) UpdateWith(t int64, newRefPIDs map[flake.ID]bool, vocabFlakes []flake.Flake) (*Schema, error) {
	if len(vocabFlakes) == 0 && len(newRefPIDs) == 0 {
		return s, nil
	}

	next := s.clone(t)
	for _, f := range vocabFlakes {
		if !IsVocabID(f.Subject) {
			return nil, errors.InvalidCommit("subject %d outside vocabulary range in schema update", f.Subject)
		}
		next.applyVocabFlake(f)
	}
	for pid := range newRefPIDs {
		rec := next.mutable(pid)
		rec.Ref = true
	}
	return next, nil
}

// applyVocabFlake dispatches one vocabulary statement on its fixed
// predicate identifier.
func (s *Schema) applyVocabFlake(f flake.Flake) {
	switch f.Predicate {
	case IDIRI:
		rec := s.mutable(f.Subject)
		if f.Op {
			rec.IRI = f.Object.Str
			s.iris[rec.IRI] = rec
		} else if rec.IRI == f.Object.Str {
			delete(s.iris, rec.IRI)
			rec.IRI = ""
		}
	case IDRdfType:
		if f.Object.Ref == IDRdfsClass {
			rec := s.mutable(f.Subject)
			rec.Class = f.Op
		}
	case IDRdfsSubClassOf:
		rec := s.mutable(f.Subject)
		if f.Op {
			rec.SubclassOf = addID(rec.SubclassOf, f.Object.Ref)
		} else {
			rec.SubclassOf = removeID(rec.SubclassOf, f.Object.Ref)
		}
	case IDOwlEquivalentProperty:
		rec := s.mutable(f.Subject)
		if f.Op {
			rec.Equivalents = addID(rec.Equivalents, f.Object.Ref)
		} else {
			rec.Equivalents = removeID(rec.Equivalents, f.Object.Ref)
		}
	default:
		// Other vocabulary-range statements (labels, comments) carry
		// no schema metadata.
	}
}

func addID(ids []flake.ID, id flake.ID) []flake.ID {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func removeID(ids []flake.ID, id flake.ID) []flake.ID {
	out := ids[:0]
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}

// Indexed is the slice of a database version the schema rebuild needs:
// ordered range scans over the subject-first and object-first indexes.
type Indexed interface {
	ScanSPOT(ctx context.Context, seed flake.Flake, match func(flake.Flake) bool) ([]flake.Flake, error)
	ScanOPST(ctx context.Context, seed flake.Flake, match func(flake.Flake) bool) ([]flake.Flake, error)
}

// VocabMap rebuilds the schema from scratch by range-scanning all
// vocabulary-range statements of a database version. Used for cold
// start and verification; must produce predicate metadata equivalent
// to the incremental UpdateWith path over the same statements.
func VocabMap(ctx context.Context, db Indexed) (*Schema, error) {
	vocabFlakes, err := db.ScanSPOT(ctx, index.Min(), func(f flake.Flake) bool {
		return IsVocabID(f.Subject)
	})
	if err != nil {
		return nil, errors.Wrap(err, "Schema", "VocabMap", "scanning vocabulary range")
	}

	// The object-first index holds only reference-typed statements, so
	// its predicate set is exactly the ref predicate set.
	refFlakes, err := db.ScanOPST(ctx, index.Min(), func(flake.Flake) bool { return true })
	if err != nil {
		return nil, errors.Wrap(err, "Schema", "VocabMap", "scanning reference statements")
	}
	refPIDs := make(map[flake.ID]bool)
	for _, f := range refFlakes {
		if !systemRefPIDs[f.Predicate] {
			refPIDs[f.Predicate] = true
		}
	}

	// Replay commits in logical order: internal t decreases per commit,
	// so logical order is descending internal t.
	byT := make(map[int64][]flake.Flake)
	var ts []int64
	for _, f := range vocabFlakes {
		if _, ok := byT[f.T]; !ok {
			ts = append(ts, f.T)
		}
		byT[f.T] = append(byT[f.T], f)
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i] > ts[j] })

	schema := NewSchema()
	for _, t := range ts {
		schema, err = schema.UpdateWith(t, nil, byT[t])
		if err != nil {
			return nil, err
		}
	}
	if len(refPIDs) > 0 {
		schema, err = schema.UpdateWith(schema.T, refPIDs, nil)
		if err != nil {
			return nil, err
		}
	}
	return schema, nil
}
