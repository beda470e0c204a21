package vocabulary

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semledger/flake"
	"github.com/c360/semledger/index"
)

func iriFlake(s flake.ID, iri string, t int64) flake.Flake {
	return flake.New(s, IDIRI, flake.StringValue(iri), DatatypeString, t, true)
}

func classFlake(s flake.ID, t int64) flake.Flake {
	return flake.New(s, IDRdfType, flake.RefValue(IDRdfsClass), DatatypeRef, t, true)
}

func subclassFlake(child, parent flake.ID, t int64) flake.Flake {
	return flake.New(child, IDRdfsSubClassOf, flake.RefValue(parent), DatatypeRef, t, true)
}

func TestSystemIDsRoundTrip(t *testing.T) {
	id, ok := SystemID(RDFNamespace + "type")
	require.True(t, ok)
	assert.Equal(t, IDRdfType, id)

	iri, ok := SystemIRI(IDShMinCount)
	require.True(t, ok)
	assert.Equal(t, SHNamespace+"minCount", iri)

	_, ok = SystemID("http://example.org/unknown")
	assert.False(t, ok)
}

func TestIsVocabID(t *testing.T) {
	assert.True(t, IsVocabID(IDRdfType))
	assert.True(t, IsVocabID(MaxVocabID))
	assert.False(t, IsVocabID(MaxVocabID+1))
}

func TestNewSchemaResolvesSystemVocabulary(t *testing.T) {
	s := NewSchema()

	rec, ok := s.PredicateByID(IDRdfsSubClassOf)
	require.True(t, ok)
	assert.True(t, rec.Ref)

	id, ok := s.SubjectID(SHNamespace + "targetClass")
	require.True(t, ok)
	assert.Equal(t, IDShTargetClass, id)
}

func TestUpdateWithNoVocabularyIsNoOp(t *testing.T) {
	s := NewSchema()
	next, err := s.UpdateWith(-1, nil, nil)
	require.NoError(t, err)
	assert.Same(t, s, next)
}

func TestUpdateWithAddsPredicateMetadata(t *testing.T) {
	s := NewSchema()
	pid := MaxSystemID + 1

	next, err := s.UpdateWith(-1, nil, []flake.Flake{
		iriFlake(pid, "http://example.org/age", -1),
	})
	require.NoError(t, err)
	require.NotSame(t, s, next)

	rec, ok := next.PredicateByIRI("http://example.org/age")
	require.True(t, ok)
	assert.Equal(t, pid, rec.ID)
	assert.False(t, rec.Ref)

	// Prior schema unchanged.
	_, ok = s.PredicateByIRI("http://example.org/age")
	assert.False(t, ok)
}

func TestUpdateWithMarksRefPredicates(t *testing.T) {
	s := NewSchema()
	pid := MaxSystemID + 2

	next, err := s.UpdateWith(-1, map[flake.ID]bool{pid: true}, []flake.Flake{
		iriFlake(pid, "http://example.org/knows", -1),
	})
	require.NoError(t, err)
	assert.True(t, next.IsRef(pid))
	assert.False(t, s.IsRef(pid))
	assert.True(t, next.RefPIDs()[pid])
}

func TestUpdateWithRejectsDataRangeSubjects(t *testing.T) {
	s := NewSchema()
	_, err := s.UpdateWith(-1, nil, []flake.Flake{
		iriFlake(MaxVocabID+50, "http://example.org/person-1", -1),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside vocabulary range")
}

func TestSubclassClosure(t *testing.T) {
	s := NewSchema()
	animal, mammal, dog := MaxSystemID+10, MaxSystemID+11, MaxSystemID+12

	next, err := s.UpdateWith(-1, nil, []flake.Flake{
		classFlake(animal, -1),
		classFlake(mammal, -1),
		classFlake(dog, -1),
		subclassFlake(mammal, animal, -1),
		subclassFlake(dog, mammal, -1),
	})
	require.NoError(t, err)

	closure := next.Subclasses(animal)
	assert.Equal(t, []flake.ID{animal, mammal, dog}, closure)

	// Classes without declared children close over themselves only.
	assert.Equal(t, []flake.ID{dog}, next.Subclasses(dog))
}

func TestSubclassRetraction(t *testing.T) {
	s := NewSchema()
	a, b := MaxSystemID+20, MaxSystemID+21

	v1, err := s.UpdateWith(-1, nil, []flake.Flake{subclassFlake(b, a, -1)})
	require.NoError(t, err)
	assert.Contains(t, v1.Subclasses(a), b)

	retract := flake.New(b, IDRdfsSubClassOf, flake.RefValue(a), DatatypeRef, -2, false)
	v2, err := v1.UpdateWith(-2, nil, []flake.Flake{retract})
	require.NoError(t, err)
	assert.Equal(t, []flake.ID{a}, v2.Subclasses(a))
	// Closure of the earlier version is unaffected.
	assert.Contains(t, v1.Subclasses(a), b)
}

// indexedDB is a minimal Indexed implementation over in-memory indexes.
type indexedDB struct {
	spot index.Index
	opst index.Index
}

func (d *indexedDB) ScanSPOT(ctx context.Context, seed flake.Flake, match func(flake.Flake) bool) ([]flake.Flake, error) {
	return d.spot.Scan(ctx, seed, match)
}

func (d *indexedDB) ScanOPST(ctx context.Context, seed flake.Flake, match func(flake.Flake) bool) ([]flake.Flake, error) {
	return d.opst.Scan(ctx, seed, match)
}

func TestVocabMapMatchesIncremental(t *testing.T) {
	ctx := context.Background()
	p1, p2 := MaxSystemID+1, MaxSystemID+2

	commit1 := []flake.Flake{
		iriFlake(p1, "http://example.org/name", -1),
	}
	commit2 := []flake.Flake{
		iriFlake(p2, "http://example.org/knows", -2),
		classFlake(p1, -2),
	}
	refFlake := flake.New(MaxVocabID+1, p2, flake.RefValue(MaxVocabID+2), DatatypeRef, -2, true)

	// Incremental path.
	incremental := NewSchema()
	var err error
	incremental, err = incremental.UpdateWith(-1, nil, commit1)
	require.NoError(t, err)
	incremental, err = incremental.UpdateWith(-2, map[flake.ID]bool{p2: true}, commit2)
	require.NoError(t, err)

	// Full rebuild path over the same statements.
	db := &indexedDB{
		spot: index.New(flake.OrderSPOT).With(commit1).With(commit2),
		opst: index.New(flake.OrderOPST).With([]flake.Flake{refFlake}),
	}
	rebuilt, err := VocabMap(ctx, db)
	require.NoError(t, err)

	for _, pid := range []flake.ID{p1, p2} {
		want, ok := incremental.PredicateByID(pid)
		require.True(t, ok)
		got, ok := rebuilt.PredicateByID(pid)
		require.True(t, ok, "rebuilt schema missing predicate %d", pid)
		assert.Equal(t, want.IRI, got.IRI)
		assert.Equal(t, want.Ref, got.Ref)
		assert.Equal(t, want.Class, got.Class)
		assert.Equal(t, want.SubclassOf, got.SubclassOf)
	}
	assert.True(t, rebuilt.IsRef(p2))
}

func TestVocabMapCommitOrderIndependence(t *testing.T) {
	// Independent commits may arrive in either order in the index; the
	// rebuilt metadata must not depend on insertion order.
	ctx := context.Background()
	p1, p2 := MaxSystemID+5, MaxSystemID+6

	c1 := iriFlake(p1, "http://example.org/a", -1)
	c2 := iriFlake(p2, "http://example.org/b", -2)

	forward := &indexedDB{
		spot: index.New(flake.OrderSPOT).With([]flake.Flake{c1}).With([]flake.Flake{c2}),
		opst: index.New(flake.OrderOPST),
	}
	reversed := &indexedDB{
		spot: index.New(flake.OrderSPOT).With([]flake.Flake{c2}).With([]flake.Flake{c1}),
		opst: index.New(flake.OrderOPST),
	}

	a, err := VocabMap(ctx, forward)
	require.NoError(t, err)
	b, err := VocabMap(ctx, reversed)
	require.NoError(t, err)

	for _, pid := range []flake.ID{p1, p2} {
		ra, ok := a.PredicateByID(pid)
		require.True(t, ok)
		rb, ok := b.PredicateByID(pid)
		require.True(t, ok)
		assert.Equal(t, ra.IRI, rb.IRI)
	}
}

func TestDatatypeIRI(t *testing.T) {
	assert.Equal(t, DatatypeInteger, DatatypeIRI(XSDNamespace+"integer"))
	assert.Equal(t, DatatypeString, DatatypeIRI(""))
	assert.Equal(t, DatatypeString, DatatypeIRI("http://example.org/custom"))
}
