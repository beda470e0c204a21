package flake

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want int
	}{
		{"ints ascending", IntValue(5), IntValue(10), -1},
		{"ints equal", IntValue(7), IntValue(7), 0},
		{"floats descending", FloatValue(2.5), FloatValue(1.5), 1},
		{"strings lexicographic", StringValue("alice"), StringValue("bob"), -1},
		{"refs by id", RefValue(3), RefValue(9), -1},
		{"bools false before true", BoolValue(false), BoolValue(true), -1},
		{"cross-kind orders by kind", IntValue(99), StringValue("a"), -1},
		{"ref sorts after literals", StringValue("zzz"), RefValue(1), -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Compare(tt.b))
			assert.Equal(t, -tt.want, tt.b.Compare(tt.a))
		})
	}
}

func TestValueCompareTime(t *testing.T) {
	early := TimeValue(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	late := TimeValue(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, -1, early.Compare(late))
	assert.True(t, early.Equal(early))
}

func TestOrdersAreTotal(t *testing.T) {
	// Distinct flakes must never tie under any order, or btree
	// insertion would silently replace one with the other.
	flakes := []Flake{
		New(100, 10, IntValue(1), 2, -1, true),
		New(100, 10, IntValue(1), 2, -2, true),
		New(100, 10, IntValue(1), 2, -2, false),
		New(100, 10, IntValue(2), 2, -1, true),
		New(100, 11, IntValue(1), 2, -1, true),
		New(101, 10, IntValue(1), 2, -1, true),
		New(101, 10, RefValue(100), 1, -1, true),
		{Subject: 101, Predicate: 12, Object: StringValue("a"), Datatype: 3, T: -1, Op: true, Meta: &Meta{Index: 0}},
		{Subject: 101, Predicate: 12, Object: StringValue("a"), Datatype: 3, T: -1, Op: true, Meta: &Meta{Index: 1}},
	}

	for _, order := range Orders {
		cmp := order.Comparator()
		for i := range flakes {
			for j := range flakes {
				got := cmp(flakes[i], flakes[j])
				if i == j {
					assert.Zero(t, got, "order %s: flake %d vs itself", order, i)
				} else {
					assert.NotZero(t, got, "order %s: flakes %d and %d tie", order, i, j)
					assert.Equal(t, -cmp(flakes[j], flakes[i]), got, "order %s antisymmetry", order)
				}
			}
		}
	}
}

func TestCmpSPOTGroupsBySubject(t *testing.T) {
	flakes := []Flake{
		New(200, 5, StringValue("b"), 3, -1, true),
		New(100, 9, StringValue("z"), 3, -1, true),
		New(100, 5, StringValue("a"), 3, -1, true),
	}
	sort.Slice(flakes, func(i, j int) bool { return CmpSPOT(flakes[i], flakes[j]) < 0 })

	require.Len(t, flakes, 3)
	assert.Equal(t, ID(100), flakes[0].Subject)
	assert.Equal(t, ID(5), flakes[0].Predicate)
	assert.Equal(t, ID(100), flakes[1].Subject)
	assert.Equal(t, ID(200), flakes[2].Subject)
}

func TestCmpPOSTResolvesByValue(t *testing.T) {
	// POST is the order used for IRI-to-identifier lookups: fix the
	// predicate, scan by object value.
	flakes := []Flake{
		New(300, 1, StringValue("ex:carol"), 3, -1, true),
		New(100, 1, StringValue("ex:alice"), 3, -1, true),
		New(200, 1, StringValue("ex:bob"), 3, -1, true),
	}
	sort.Slice(flakes, func(i, j int) bool { return CmpPOST(flakes[i], flakes[j]) < 0 })

	assert.Equal(t, "\"ex:alice\"", flakes[0].Object.String())
	assert.Equal(t, ID(100), flakes[0].Subject)
}

func TestCmpTSPONewestFirst(t *testing.T) {
	older := New(1, 1, IntValue(1), 2, -1, true)
	newer := New(1, 1, IntValue(1), 2, -3, true)
	// More negative t (later commit) sorts first.
	assert.Negative(t, CmpTSPO(newer, older))
}

func TestFlakeSize(t *testing.T) {
	small := New(1, 2, IntValue(42), 2, -1, true)
	big := New(1, 2, StringValue("a considerably longer string value"), 3, -1, true)
	assert.Greater(t, big.Size(), small.Size())

	withMeta := Flake{Subject: 1, Predicate: 2, Object: IntValue(1), Datatype: 2, T: -1, Op: true, Meta: &Meta{Index: 2}}
	assert.Greater(t, withMeta.Size(), small.Size())

	assert.Equal(t, small.Size()+big.Size(), TotalSize([]Flake{small, big}))
	assert.Zero(t, TotalSize(nil))
}
