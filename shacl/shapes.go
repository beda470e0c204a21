// Package shacl compiles node shapes from shape statements and
// validates candidate statement batches against them before commit.
package shacl

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/c360/semledger/errors"
	"github.com/c360/semledger/flake"
	"github.com/c360/semledger/index"
	"github.com/c360/semledger/ledger"
	"github.com/c360/semledger/vocabulary"
)

// Graph is the slice of a database version shape compilation and
// validation need: ordered range scans over the subject-first and
// lookup indexes.
type Graph interface {
	ScanSPOT(ctx context.Context, seed flake.Flake, match func(flake.Flake) bool) ([]flake.Flake, error)
	ScanPOST(ctx context.Context, seed flake.Flake, match func(flake.Flake) bool) ([]flake.Flake, error)
}

// NodeShape is one compiled shape targeting a class.
type NodeShape struct {
	ID          flake.ID
	TargetClass flake.ID
	Closed      bool
	Ignored     map[flake.ID]bool
	Properties  []*PropertyShape
}

// PropertyShape is one compiled property constraint. Pointer fields
// are nil when the constraint is absent; NilID likewise.
type PropertyShape struct {
	ID   flake.ID
	Path flake.ID

	MinCount *int
	MaxCount *int

	Datatype flake.ID
	NodeKind flake.ID

	Pattern   *regexp.Regexp
	MinLength *int
	MaxLength *int

	In []flake.Value

	Equals           []flake.ID
	Disjoint         []flake.ID
	LessThan         []flake.ID
	LessThanOrEquals []flake.ID
}

// ClassShapes is every shape targeting one class, plus the datatype
// each path is pinned to across those shapes.
type ClassShapes struct {
	Class     flake.ID
	Shapes    []*NodeShape
	Datatypes map[flake.ID]flake.ID
}

// Empty reports whether no shape targets the class.
func (cs *ClassShapes) Empty() bool { return cs == nil || len(cs.Shapes) == 0 }

// BuildClassShapes compiles every shape targeting the given class from
// the shape statements in g. Conflicting datatype declarations for the
// same path across shapes make the class unvalidatable and fail here
// rather than at first use.
func BuildClassShapes(ctx context.Context, g Graph, class flake.ID) (*ClassShapes, error) {
	seed := index.Min()
	seed.Predicate = vocabulary.IDShTargetClass
	seed.Object = flake.RefValue(class)
	targets, err := g.ScanPOST(ctx, seed, func(f flake.Flake) bool {
		return f.Predicate == vocabulary.IDShTargetClass && f.Object.Equal(flake.RefValue(class))
	})
	if err != nil {
		return nil, errors.IO(err, "shacl", "BuildClassShapes", "scan targets")
	}

	cs := &ClassShapes{Class: class, Datatypes: make(map[flake.ID]flake.ID)}
	for _, f := range ledger.Current(targets) {
		shape, err := buildNodeShape(ctx, g, f.Subject, class)
		if err != nil {
			return nil, err
		}
		cs.Shapes = append(cs.Shapes, shape)
		for _, ps := range shape.Properties {
			if ps.Datatype == flake.NilID {
				continue
			}
			if existing, ok := cs.Datatypes[ps.Path]; ok && existing != ps.Datatype {
				return nil, errors.ShaclValidation(
					"conflicting datatype declarations for path %d on class %d", ps.Path, class)
			}
			cs.Datatypes[ps.Path] = ps.Datatype
		}
	}
	sort.Slice(cs.Shapes, func(i, j int) bool { return cs.Shapes[i].ID < cs.Shapes[j].ID })
	return cs, nil
}

// CachedClassShapes returns compiled shapes for the class through the
// schema's shape cache. The cache lives for one database version, so a
// hit can never be staler than the version it was compiled against.
func CachedClassShapes(ctx context.Context, g Graph, schema *vocabulary.Schema, class flake.ID) (*ClassShapes, error) {
	key := fmt.Sprintf("%d", class)
	if v, ok := schema.Shapes.Get(key); ok {
		if cs, ok := v.(*ClassShapes); ok {
			return cs, nil
		}
	}
	cs, err := BuildClassShapes(ctx, g, class)
	if err != nil {
		return nil, err
	}
	schema.Shapes.Set(key, cs)
	return cs, nil
}

// subjectStatements returns a subject's current statements.
func subjectStatements(ctx context.Context, g Graph, sid flake.ID) ([]flake.Flake, error) {
	seed := index.Min()
	seed.Subject = sid
	all, err := g.ScanSPOT(ctx, seed, func(f flake.Flake) bool { return f.Subject == sid })
	if err != nil {
		return nil, errors.IO(err, "shacl", "subjectStatements", "scan subject")
	}
	return ledger.Current(all), nil
}

func buildNodeShape(ctx context.Context, g Graph, sid, class flake.ID) (*NodeShape, error) {
	stmts, err := subjectStatements(ctx, g, sid)
	if err != nil {
		return nil, err
	}

	shape := &NodeShape{ID: sid, TargetClass: class, Ignored: make(map[flake.ID]bool)}
	for _, f := range stmts {
		switch f.Predicate {
		case vocabulary.IDShClosed:
			shape.Closed = f.Object.Bool()
		case vocabulary.IDShIgnoredProperties:
			shape.Ignored[f.Object.Ref] = true
		case vocabulary.IDShProperty:
			ps, err := buildPropertyShape(ctx, g, f.Object.Ref)
			if err != nil {
				return nil, err
			}
			shape.Properties = append(shape.Properties, ps)
		}
	}
	sort.Slice(shape.Properties, func(i, j int) bool { return shape.Properties[i].ID < shape.Properties[j].ID })
	return shape, nil
}

func buildPropertyShape(ctx context.Context, g Graph, sid flake.ID) (*PropertyShape, error) {
	stmts, err := subjectStatements(ctx, g, sid)
	if err != nil {
		return nil, err
	}

	ps := &PropertyShape{ID: sid, Path: flake.NilID, Datatype: flake.NilID, NodeKind: flake.NilID}
	inValues := make(map[int]flake.Value)
	for _, f := range stmts {
		switch f.Predicate {
		case vocabulary.IDShPath:
			ps.Path = f.Object.Ref
		case vocabulary.IDShMinCount:
			ps.MinCount = intPtr(f.Object)
		case vocabulary.IDShMaxCount:
			ps.MaxCount = intPtr(f.Object)
		case vocabulary.IDShDatatype:
			ps.Datatype = f.Object.Ref
		case vocabulary.IDShNodeKind:
			ps.NodeKind = f.Object.Ref
		case vocabulary.IDShPattern:
			re, err := regexp.Compile(f.Object.Str)
			if err != nil {
				return nil, errors.ShaclValidation("malformed sh:pattern %q on shape %d", f.Object.Str, sid)
			}
			ps.Pattern = re
		case vocabulary.IDShMinLength:
			ps.MinLength = intPtr(f.Object)
		case vocabulary.IDShMaxLength:
			ps.MaxLength = intPtr(f.Object)
		case vocabulary.IDShIn:
			idx := 0
			if f.Meta != nil {
				idx = f.Meta.Index
			}
			inValues[idx] = f.Object
		case vocabulary.IDShEquals:
			ps.Equals = append(ps.Equals, f.Object.Ref)
		case vocabulary.IDShDisjoint:
			ps.Disjoint = append(ps.Disjoint, f.Object.Ref)
		case vocabulary.IDShLessThan:
			ps.LessThan = append(ps.LessThan, f.Object.Ref)
		case vocabulary.IDShLessThanOrEquals:
			ps.LessThanOrEquals = append(ps.LessThanOrEquals, f.Object.Ref)
		}
	}
	if ps.Path == flake.NilID {
		return nil, errors.ShaclValidation("property shape %d has no sh:path", sid)
	}
	if len(inValues) > 0 {
		positions := make([]int, 0, len(inValues))
		for i := range inValues {
			positions = append(positions, i)
		}
		sort.Ints(positions)
		for _, i := range positions {
			ps.In = append(ps.In, inValues[i])
		}
	}
	return ps, nil
}

func intPtr(v flake.Value) *int {
	n := int(v.Int)
	return &n
}
