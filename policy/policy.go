// Package policy compiles role-based access policies from policy
// statements into permission maps and evaluates them per subject and
// property.
package policy

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

// Action names a permission class being requested.
type Action string

const (
	ActionView   Action = "view"
	ActionModify Action = "modify"
)

// Graph is the slice of a database version policy compilation and
// evaluation need.
type Graph interface {
	ScanSPOT(ctx context.Context, seed flake.Flake, match func(flake.Flake) bool) ([]flake.Flake, error)
	ScanPOST(ctx context.Context, seed flake.Flake, match func(flake.Flake) bool) ([]flake.Flake, error)
	SubjectIDByIRI(ctx context.Context, iri string) (flake.ID, bool, error)
}

// RuleKind discriminates the rule variants a policy can carry. Every
// consumer matches exhaustively; an unhandled variant is a programming
// error surfaced loudly rather than an implicit deny.
type RuleKind int

const (
	// RuleAllow grants unconditionally.
	RuleAllow RuleKind = iota
	// RuleEquals grants when the value reached by following Path from
	// the subject equals the caller's identity.
	RuleEquals
	// RuleContains is declared in the vocabulary but not yet
	// implemented; compiling it fails with errors.ErrNotImplemented.
	RuleContains
)

// Rule is one compiled access rule.
type Rule struct {
	Kind RuleKind
	// Path is the predicate chain walked from the candidate subject
	// for RuleEquals.
	Path []flake.ID
}

// ClassPolicy is one compiled policy: the classes or individual nodes
// it targets, the class-level rule, and per-property overrides.
type ClassPolicy struct {
	ID flake.ID
	// Classes are target class identifiers; the policy applies to any
	// subject whose type closure includes one of them.
	Classes []flake.ID
	// Nodes are individual target subject identifiers.
	Nodes      []flake.ID
	AllNodes   bool
	ClassRule  *Rule
	Properties map[flake.ID]*Rule
}

// PermissionMap is the compiled access decision structure for one
// (action, identity, role) triple against one database version.
type PermissionMap struct {
	Action   Action
	Identity flake.ID
	Role     flake.ID

	// Root short-circuits every check to allow. Detected when a policy
	// for the role targets all nodes with no restrictions.
	Root bool

	// byClass indexes the compiled policies by target class.
	byClass map[flake.ID][]*ClassPolicy
	// byNode indexes the compiled policies by individual target node.
	byNode map[flake.ID][]*ClassPolicy
	// allNodes holds policies applying to every subject.
	allNodes []*ClassPolicy
}

// Compiler builds permission maps from policy statements.
type Compiler struct {
	logger  *slog.Logger
	metrics *metric.LedgerMetrics
}

// CompilerOption configures a Compiler.
type CompilerOption func(*Compiler)

// WithLogger sets the compiler's logger.
func WithLogger(logger *slog.Logger) CompilerOption {
	return func(c *Compiler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics wires compile counters into the given registry.
func WithMetrics(registry *metric.Registry) CompilerOption {
	return func(c *Compiler) {
		if registry != nil {
			c.metrics = registry.Ledger
		}
	}
}

// NewCompiler creates a policy compiler.
func NewCompiler(opts ...CompilerOption) *Compiler {
	c := &Compiler{logger: slog.Default().With("component", "policy")}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Compiler) record(outcome string) {
	if c.metrics != nil {
		c.metrics.RecordPermissionCompile(outcome)
	}
}

// Compile builds the permission map for one caller against g. The
// identity and role are IRIs; the role filters which policies apply. A
// version with no policy statements at all is an invalid-policy error,
// distinguishing a missing policy model from a deny-all one.
func (c *Compiler) Compile(ctx context.Context, g Graph, action Action, identityIRI, roleIRI string) (*PermissionMap, error) {
	roleID, ok, err := g.SubjectIDByIRI(ctx, roleIRI)
	if err != nil {
		c.record("error")
		return nil, err
	}
	if !ok {
		c.record("error")
		return nil, errors.InvalidPolicy("role %q is not defined", roleIRI)
	}

	// An unknown identity still compiles; its equals rules just never
	// match.
	identityID, _, err := g.SubjectIDByIRI(ctx, identityIRI)
	if err != nil {
		c.record("error")
		return nil, err
	}

	policies, err := c.policySubjects(ctx, g)
	if err != nil {
		c.record("error")
		return nil, err
	}
	if len(policies) == 0 {
		c.record("error")
		return nil, errors.InvalidPolicy("no policy statements in this version")
	}

	pm := &PermissionMap{
		Action:   action,
		Identity: identityID,
		Role:     roleID,
		byClass:  make(map[flake.ID][]*ClassPolicy),
		byNode:   make(map[flake.ID][]*ClassPolicy),
	}

	for _, sid := range policies {
		cp, applies, err := c.compileOne(ctx, g, sid, action, roleID)
		if err != nil {
			c.record("error")
			return nil, err
		}
		if !applies {
			continue
		}
		if cp.AllNodes {
			if cp.ClassRule != nil && cp.ClassRule.Kind == RuleAllow && len(cp.Properties) == 0 {
				pm.Root = true
			}
			pm.allNodes = append(pm.allNodes, cp)
			continue
		}
		for _, class := range cp.Classes {
			pm.byClass[class] = append(pm.byClass[class], cp)
		}
		for _, node := range cp.Nodes {
			pm.byNode[node] = append(pm.byNode[node], cp)
		}
	}

	if pm.Root {
		c.record("root")
	} else {
		c.record("ok")
	}
	return pm, nil
}

// policySubjects returns every subject declared as a policy.
func (c *Compiler) policySubjects(ctx context.Context, g Graph) ([]flake.ID, error) {
	seed := index.Min()
	seed.Predicate = vocabulary.IDRdfType
	seed.Object = flake.RefValue(vocabulary.IDPolicyClass)
	matches, err := g.ScanPOST(ctx, seed, func(f flake.Flake) bool {
		return f.Predicate == vocabulary.IDRdfType && f.Object.Equal(flake.RefValue(vocabulary.IDPolicyClass))
	})
	if err != nil {
		return nil, errors.IO(err, "policy", "policySubjects", "scan policies")
	}
	var out []flake.ID
	for _, f := range ledger.Current(matches) {
		out = append(out, f.Subject)
	}
	return out, nil
}

func subjectStatements(ctx context.Context, g Graph, sid flake.ID) ([]flake.Flake, error) {
	seed := index.Min()
	seed.Subject = sid
	all, err := g.ScanSPOT(ctx, seed, func(f flake.Flake) bool { return f.Subject == sid })
	if err != nil {
		return nil, errors.IO(err, "policy", "subjectStatements", "scan subject")
	}
	return ledger.Current(all), nil
}

// compileOne compiles a single policy subject. The second return is
// false when the policy does not apply to this caller: neither its
// class-level nor any property-level allow list names the role, or its
// action list excludes the requested action.
func (c *Compiler) compileOne(ctx context.Context, g Graph, sid flake.ID, action Action, roleID flake.ID) (*ClassPolicy, bool, error) {
	stmts, err := subjectStatements(ctx, g, sid)
	if err != nil {
		return nil, false, err
	}

	cp := &ClassPolicy{ID: sid, Properties: make(map[flake.ID]*Rule)}
	var classAllow []flake.ID
	var actions []string
	var propertyNodes []flake.ID
	var equalsPath map[int]flake.ID
	var hasContains bool

	for _, f := range stmts {
		switch f.Predicate {
		case vocabulary.IDPolicyTarget:
			cp.Classes = append(cp.Classes, f.Object.Ref)
		case vocabulary.IDPolicyNode:
			if f.Object.Ref == vocabulary.IDAllNodes {
				cp.AllNodes = true
			} else {
				cp.Nodes = append(cp.Nodes, f.Object.Ref)
			}
		case vocabulary.IDPolicyAllow:
			classAllow = append(classAllow, f.Object.Ref)
		case vocabulary.IDPolicyAction:
			actions = append(actions, f.Object.Str)
		case vocabulary.IDPolicyProperty:
			propertyNodes = append(propertyNodes, f.Object.Ref)
		case vocabulary.IDPolicyEquals:
			if equalsPath == nil {
				equalsPath = make(map[int]flake.ID)
			}
			idx := 0
			if f.Meta != nil {
				idx = f.Meta.Index
			}
			equalsPath[idx] = f.Object.Ref
		case vocabulary.IDPolicyContains:
			hasContains = true
		}
	}

	if len(actions) > 0 && !containsAction(actions, action) {
		return nil, false, nil
	}

	roleAtClass := containsID(classAllow, roleID)
	classRule, err := compileRule(sid, equalsPath, hasContains, roleAtClass)
	if err != nil {
		return nil, false, err
	}
	cp.ClassRule = classRule

	roleAnywhere := roleAtClass
	for _, psid := range propertyNodes {
		pid, rule, applies, err := c.compilePropertyPolicy(ctx, g, psid, roleID)
		if err != nil {
			return nil, false, err
		}
		if !applies {
			continue
		}
		roleAnywhere = true
		if _, exists := cp.Properties[pid]; exists {
			c.logger.Warn("conflicting property rules on the same path, last one wins",
				"policy", sid, "path", pid)
		}
		cp.Properties[pid] = rule
	}

	if !roleAnywhere {
		// The caller's role appears nowhere in this policy.
		return nil, false, nil
	}
	if len(cp.Classes) == 0 && len(cp.Nodes) == 0 && !cp.AllNodes {
		return nil, false, errors.InvalidPolicy("policy %d names no target class or node", sid)
	}
	return cp, true, nil
}

// compilePropertyPolicy compiles one property restriction node.
func (c *Compiler) compilePropertyPolicy(ctx context.Context, g Graph, sid, roleID flake.ID) (flake.ID, *Rule, bool, error) {
	stmts, err := subjectStatements(ctx, g, sid)
	if err != nil {
		return flake.NilID, nil, false, err
	}

	var path flake.ID = flake.NilID
	var allow []flake.ID
	var equalsPath map[int]flake.ID
	var hasContains bool
	for _, f := range stmts {
		switch f.Predicate {
		case vocabulary.IDPolicyPath:
			path = f.Object.Ref
		case vocabulary.IDPolicyAllow:
			allow = append(allow, f.Object.Ref)
		case vocabulary.IDPolicyEquals:
			if equalsPath == nil {
				equalsPath = make(map[int]flake.ID)
			}
			idx := 0
			if f.Meta != nil {
				idx = f.Meta.Index
			}
			equalsPath[idx] = f.Object.Ref
		case vocabulary.IDPolicyContains:
			hasContains = true
		}
	}
	if path == flake.NilID {
		return flake.NilID, nil, false, errors.InvalidPolicy("property policy %d has no path", sid)
	}
	if !containsID(allow, roleID) {
		return flake.NilID, nil, false, nil
	}
	rule, err := compileRule(sid, equalsPath, hasContains, true)
	if err != nil {
		return flake.NilID, nil, false, err
	}
	return path, rule, true, nil
}

// compileRule builds the rule a policy (or property node) grants when
// the role matched. A nil return means no grant at this level.
func compileRule(sid flake.ID, equalsPath map[int]flake.ID, hasContains, roleMatched bool) (*Rule, error) {
	if hasContains {
		return nil, errors.WrapFatal(errors.ErrNotImplemented, "policy", "compileRule",
			"compiling contains rule")
	}
	if !roleMatched {
		return nil, nil
	}
	if len(equalsPath) > 0 {
		path := make([]flake.ID, 0, len(equalsPath))
		for i := 0; i < len(equalsPath); i++ {
			seg, ok := equalsPath[i]
			if !ok {
				return nil, errors.InvalidPolicy("policy %d has a gap in its equals path", sid)
			}
			path = append(path, seg)
		}
		if path[len(path)-1] != vocabulary.IDIdentity {
			return nil, errors.InvalidPolicy("policy %d equals path does not end at the identity placeholder", sid)
		}
		return &Rule{Kind: RuleEquals, Path: path[:len(path)-1]}, nil
	}
	return &Rule{Kind: RuleAllow}, nil
}

func containsID(ids []flake.ID, id flake.ID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func containsAction(actions []string, action Action) bool {
	for _, a := range actions {
		if Action(a) == action {
			return true
		}
	}
	return false
}
