package shacl

import (
	"context"
	"log/slog"

	"github.com/c360/semledger/errors"
	"github.com/c360/semledger/flake"
	"github.com/c360/semledger/index"
	"github.com/c360/semledger/ledger"
	"github.com/c360/semledger/metric"
	"github.com/c360/semledger/vocabulary"
)

// Validator checks candidate statement batches against the shapes
// targeting the classes of the subjects they touch. A violation
// carries the constraint and values that failed; the first violation
// found rejects the whole batch.
type Validator struct {
	logger  *slog.Logger
	metrics *metric.LedgerMetrics
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithLogger sets the validator's logger.
func WithLogger(logger *slog.Logger) ValidatorOption {
	return func(v *Validator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithMetrics wires violation counters into the given registry.
func WithMetrics(registry *metric.Registry) ValidatorOption {
	return func(v *Validator) {
		if registry != nil {
			v.metrics = registry.Ledger
		}
	}
}

// NewValidator creates a validator.
func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{logger: slog.Default().With("component", "shacl")}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidateBatch validates a candidate batch against g, the version the
// batch would be merged onto. Each touched subject is checked in its
// would-be state: existing statements with the batch applied. Shapes
// targeting a superclass apply to subclass instances through the
// schema's class hierarchy.
func (v *Validator) ValidateBatch(ctx context.Context, g Graph, schema *vocabulary.Schema, batch []flake.Flake) error {
	subjects := make(map[flake.ID]bool)
	for _, f := range batch {
		if !vocabulary.IsVocabID(f.Subject) {
			subjects[f.Subject] = true
		}
	}

	for sid := range subjects {
		if err := v.validateSubject(ctx, g, schema, sid, batch); err != nil {
			return err
		}
	}
	return nil
}

func (v *Validator) validateSubject(ctx context.Context, g Graph, schema *vocabulary.Schema, sid flake.ID, batch []flake.Flake) error {
	existing, err := subjectHistory(ctx, g, sid)
	if err != nil {
		return err
	}
	merged := make([]flake.Flake, 0, len(existing)+8)
	merged = append(merged, existing...)
	for _, f := range batch {
		if f.Subject == sid {
			merged = append(merged, f)
		}
	}
	current := ledger.Current(merged)

	for _, class := range subjectClasses(current, schema) {
		shapes, err := CachedClassShapes(ctx, g, schema, class)
		if err != nil {
			return err
		}
		if shapes.Empty() {
			continue
		}
		for _, shape := range shapes.Shapes {
			if err := v.validateShape(shape, sid, current); err != nil {
				return err
			}
		}
	}
	return nil
}

// subjectHistory returns a subject's raw statement history, retractions
// included, so the batch can still cancel existing assertions.
func subjectHistory(ctx context.Context, g Graph, sid flake.ID) ([]flake.Flake, error) {
	seed := index.Min()
	seed.Subject = sid
	all, err := g.ScanSPOT(ctx, seed, func(f flake.Flake) bool { return f.Subject == sid })
	if err != nil {
		return nil, errors.IO(err, "shacl", "subjectHistory", "scan subject")
	}
	return all, nil
}

// subjectClasses collects the subject's direct classes plus every
// superclass, so shapes declared high in the hierarchy still apply.
func subjectClasses(current []flake.Flake, schema *vocabulary.Schema) []flake.ID {
	seen := make(map[flake.ID]bool)
	var out []flake.ID
	var add func(class flake.ID)
	add = func(class flake.ID) {
		if seen[class] {
			return
		}
		seen[class] = true
		out = append(out, class)
		if rec, ok := schema.PredicateByID(class); ok {
			for _, parent := range rec.SubclassOf {
				add(parent)
			}
		}
	}
	for _, f := range current {
		if f.Predicate == vocabulary.IDRdfType && f.Object.IsRef() {
			add(f.Object.Ref)
		}
	}
	return out
}

func (v *Validator) violation(constraint, format string, args ...any) error {
	if v.metrics != nil {
		v.metrics.RecordValidationFailure(constraint)
	}
	return errors.ShaclValidation(format, args...)
}

func (v *Validator) validateShape(shape *NodeShape, sid flake.ID, current []flake.Flake) error {
	byPath := make(map[flake.ID][]flake.Flake)
	for _, f := range current {
		byPath[f.Predicate] = append(byPath[f.Predicate], f)
	}

	declared := make(map[flake.ID]bool, len(shape.Properties))
	for _, ps := range shape.Properties {
		declared[ps.Path] = true
		if err := v.validateProperty(shape, ps, sid, byPath); err != nil {
			return err
		}
	}

	if shape.Closed {
		for pid := range byPath {
			if declared[pid] || shape.Ignored[pid] || pid == vocabulary.IDIRI {
				continue
			}
			return v.violation("closed",
				"subject %d carries undeclared property %d under closed shape %d", sid, pid, shape.ID)
		}
	}
	return nil
}

func (v *Validator) validateProperty(shape *NodeShape, ps *PropertyShape, sid flake.ID, byPath map[flake.ID][]flake.Flake) error {
	values := byPath[ps.Path]

	if ps.MinCount != nil && len(values) < *ps.MinCount {
		return v.violation("minCount",
			"subject %d has %d values for path %d, shape %d requires at least %d",
			sid, len(values), ps.Path, shape.ID, *ps.MinCount)
	}
	if ps.MaxCount != nil && len(values) > *ps.MaxCount {
		return v.violation("maxCount",
			"subject %d has %d values for path %d, shape %d allows at most %d",
			sid, len(values), ps.Path, shape.ID, *ps.MaxCount)
	}

	for _, f := range values {
		if err := v.validateValue(shape, ps, sid, f); err != nil {
			return err
		}
	}

	if err := v.validatePairs(shape, ps, sid, byPath); err != nil {
		return err
	}
	return nil
}

func (v *Validator) validateValue(shape *NodeShape, ps *PropertyShape, sid flake.ID, f flake.Flake) error {
	if ps.Datatype != flake.NilID && f.Datatype != ps.Datatype {
		return v.violation("datatype",
			"subject %d path %d value %s has datatype %d, shape %d requires %d",
			sid, ps.Path, f.Object, f.Datatype, shape.ID, ps.Datatype)
	}

	if ps.NodeKind != flake.NilID {
		isRef := f.Object.IsRef()
		switch ps.NodeKind {
		case vocabulary.IDShIRI, vocabulary.IDShBlankNode, vocabulary.IDShBlankOrIRI:
			if !isRef {
				return v.violation("nodeKind",
					"subject %d path %d value %s is a literal, shape %d requires a node", sid, ps.Path, f.Object, shape.ID)
			}
		case vocabulary.IDShLiteral:
			if isRef {
				return v.violation("nodeKind",
					"subject %d path %d value %s is a node, shape %d requires a literal", sid, ps.Path, f.Object, shape.ID)
			}
		}
	}

	if ps.Pattern != nil || ps.MinLength != nil || ps.MaxLength != nil {
		if f.Object.Kind != flake.KindString {
			// String facets on non-string values are a modeling mistake,
			// not a data violation.
			v.logger.Warn("string constraint on non-string value",
				"shape", shape.ID, "path", ps.Path, "kind", f.Object.Kind.String())
		} else {
			s := f.Object.Str
			if ps.Pattern != nil && !ps.Pattern.MatchString(s) {
				return v.violation("pattern",
					"subject %d path %d value %q does not match pattern %s", sid, ps.Path, s, ps.Pattern)
			}
			if ps.MinLength != nil && len(s) < *ps.MinLength {
				return v.violation("minLength",
					"subject %d path %d value %q shorter than %d", sid, ps.Path, s, *ps.MinLength)
			}
			if ps.MaxLength != nil && len(s) > *ps.MaxLength {
				return v.violation("maxLength",
					"subject %d path %d value %q longer than %d", sid, ps.Path, s, *ps.MaxLength)
			}
		}
	}

	if len(ps.In) > 0 {
		found := false
		for _, allowed := range ps.In {
			if f.Object.Equal(allowed) {
				found = true
				break
			}
		}
		if !found {
			return v.violation("in",
				"subject %d path %d value %s not in the allowed value set", sid, ps.Path, f.Object)
		}
	}
	return nil
}

// validatePairs checks the pairwise constraints. Order comparisons
// require matching datatypes; comparing across datatypes is itself a
// violation rather than a silent pass.
func (v *Validator) validatePairs(shape *NodeShape, ps *PropertyShape, sid flake.ID, byPath map[flake.ID][]flake.Flake) error {
	values := byPath[ps.Path]

	for _, other := range ps.Equals {
		if !sameValueSet(values, byPath[other]) {
			return v.violation("equals",
				"subject %d paths %d and %d must hold equal value sets", sid, ps.Path, other)
		}
	}
	for _, other := range ps.Disjoint {
		for _, a := range values {
			for _, b := range byPath[other] {
				if a.Object.Equal(b.Object) {
					return v.violation("disjoint",
						"subject %d paths %d and %d share value %s", sid, ps.Path, other, a.Object)
				}
			}
		}
	}
	for _, other := range ps.LessThan {
		if err := v.comparePaths(shape, ps, sid, values, byPath[other], other, true); err != nil {
			return err
		}
	}
	for _, other := range ps.LessThanOrEquals {
		if err := v.comparePaths(shape, ps, sid, values, byPath[other], other, false); err != nil {
			return err
		}
	}
	return nil
}

func (v *Validator) comparePaths(shape *NodeShape, ps *PropertyShape, sid flake.ID, values, others []flake.Flake, other flake.ID, strict bool) error {
	constraint := "lessThanOrEquals"
	if strict {
		constraint = "lessThan"
	}
	for _, a := range values {
		for _, b := range others {
			if a.Datatype != b.Datatype {
				return v.violation(constraint,
					"subject %d cannot compare datatype %d with %d across paths %d and %d",
					sid, a.Datatype, b.Datatype, ps.Path, other)
			}
			cmp := a.Object.Compare(b.Object)
			if cmp > 0 || (strict && cmp == 0) {
				return v.violation(constraint,
					"subject %d value %s on path %d is not %s %s on path %d",
					sid, a.Object, ps.Path, constraint, b.Object, other)
			}
		}
	}
	return nil
}

func sameValueSet(a, b []flake.Flake) bool {
	if len(a) != len(b) {
		return false
	}
	matched := make([]bool, len(b))
	for _, x := range a {
		found := false
		for i, y := range b {
			if !matched[i] && x.Object.Equal(y.Object) {
				matched[i] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
