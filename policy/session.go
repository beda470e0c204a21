package policy

import (
	"context"
	"fmt"

	"github.com/c360/semledger/errors"
	"github.com/c360/semledger/flake"
	"github.com/c360/semledger/pkg/cache"
	"github.com/c360/semledger/vocabulary"
)

// defaultSessionCacheSize bounds the per-session decision cache.
const defaultSessionCacheSize = 4096

// Session evaluates one compiled permission map against one database
// version, caching per-(subject, property) decisions. Decisions depend
// on statement data reachable from the subject, so a session must not
// outlive the version it was opened against.
type Session struct {
	pm    *PermissionMap
	cache cache.Cache[bool]
}

// NewSession opens an evaluation session over a permission map.
func NewSession(pm *PermissionMap, cacheSize int) (*Session, error) {
	if cacheSize <= 0 {
		cacheSize = defaultSessionCacheSize
	}
	decisions, err := cache.NewLRU[bool](cacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "policy", "NewSession", "creating decision cache")
	}
	return &Session{pm: pm, cache: decisions}, nil
}

// Allowed reports whether the session's caller may perform its action
// on the given subject and property. Absent any granting rule the
// answer is deny.
func (s *Session) Allowed(ctx context.Context, g Graph, schema *vocabulary.Schema, sid, pid flake.ID) (bool, error) {
	if s.pm.Root {
		return true, nil
	}

	key := fmt.Sprintf("%d/%d", sid, pid)
	if allowed, ok := s.cache.Get(key); ok {
		return allowed, nil
	}

	allowed, err := s.evaluate(ctx, g, schema, sid, pid)
	if err != nil {
		return false, err
	}
	s.cache.Set(key, allowed)
	return allowed, nil
}

func (s *Session) evaluate(ctx context.Context, g Graph, schema *vocabulary.Schema, sid, pid flake.ID) (bool, error) {
	stmts, err := subjectStatements(ctx, g, sid)
	if err != nil {
		return false, err
	}

	candidates := append([]*ClassPolicy(nil), s.pm.allNodes...)
	candidates = append(candidates, s.pm.byNode[sid]...)
	for _, class := range subjectClassClosure(stmts, schema) {
		candidates = append(candidates, s.pm.byClass[class]...)
	}

	for _, cp := range candidates {
		rule := cp.ClassRule
		if override, ok := cp.Properties[pid]; ok {
			rule = override
		}
		if rule == nil {
			continue
		}
		granted, err := s.evaluateRule(ctx, g, rule, sid)
		if err != nil {
			return false, err
		}
		if granted {
			return true, nil
		}
	}
	return false, nil
}

func (s *Session) evaluateRule(ctx context.Context, g Graph, rule *Rule, sid flake.ID) (bool, error) {
	switch rule.Kind {
	case RuleAllow:
		return true, nil
	case RuleEquals:
		return s.pathReachesIdentity(ctx, g, sid, rule.Path)
	case RuleContains:
		return false, errors.WrapFatal(errors.ErrNotImplemented, "policy", "evaluateRule",
			"evaluating contains rule")
	default:
		return false, errors.InvalidPolicy("unknown rule kind %d", rule.Kind)
	}
}

// pathReachesIdentity walks the equals path from sid and reports
// whether any reachable terminal reference is the caller's identity.
func (s *Session) pathReachesIdentity(ctx context.Context, g Graph, sid flake.ID, path []flake.ID) (bool, error) {
	if s.pm.Identity == flake.NilID {
		return false, nil
	}
	// An empty path compares the subject itself.
	current := []flake.ID{sid}
	for _, seg := range path {
		var next []flake.ID
		for _, at := range current {
			stmts, err := subjectStatements(ctx, g, at)
			if err != nil {
				return false, err
			}
			for _, f := range stmts {
				if f.Predicate == seg && f.Object.IsRef() {
					next = append(next, f.Object.Ref)
				}
			}
		}
		if len(next) == 0 {
			return false, nil
		}
		current = next
	}
	for _, id := range current {
		if id == s.pm.Identity {
			return true, nil
		}
	}
	return false, nil
}

// subjectClassClosure collects the subject's classes plus every
// superclass so policies targeting a parent class still apply.
func subjectClassClosure(current []flake.Flake, schema *vocabulary.Schema) []flake.ID {
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
