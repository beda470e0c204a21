package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semledger/errors"
	"github.com/c360/semledger/flake"
	"github.com/c360/semledger/ledger"
	"github.com/c360/semledger/storage/memstore"
	"github.com/c360/semledger/vocabulary"
)

const exNS = "http://example.org/ns#"

func ref(iri string) ledger.ValueNode {
	return ledger.ValueNode{Node: &ledger.Node{ID: iri}}
}

func lit(v any) ledger.ValueNode { return ledger.ValueNode{Value: v} }

// worldData sets up roles, identities, and two documents with owners.
func worldData() *ledger.CommitData {
	return &ledger.CommitData{Assert: []*ledger.Node{
		{ID: exNS + "adminRole", Types: []string{vocabulary.LedgerNamespace + "Role"}},
		{ID: exNS + "ownerRole", Types: []string{vocabulary.LedgerNamespace + "Role"}},
		{ID: exNS + "viewerRole", Types: []string{vocabulary.LedgerNamespace + "Role"}},
		{ID: exNS + "alice", Properties: map[string][]ledger.ValueNode{
			vocabulary.LedgerNamespace + "hasRole": {ref(exNS + "ownerRole")},
		}},
		{ID: exNS + "bob", Properties: map[string][]ledger.ValueNode{
			vocabulary.LedgerNamespace + "hasRole": {ref(exNS + "ownerRole")},
		}},
		{ID: exNS + "doc1", Types: []string{exNS + "Document"}, Properties: map[string][]ledger.ValueNode{
			exNS + "owner":   {ref(exNS + "alice")},
			exNS + "content": {lit("doc one body")},
			exNS + "title":   {lit("One")},
		}},
		{ID: exNS + "doc2", Types: []string{exNS + "Document"}, Properties: map[string][]ledger.ValueNode{
			exNS + "owner":   {ref(exNS + "bob")},
			exNS + "content": {lit("doc two body")},
			exNS + "title":   {lit("Two")},
		}},
	}}
}

func buildDB(t *testing.T, payloads ...*ledger.CommitData) *ledger.DB {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	merger := ledger.NewMerger(store)

	db := ledger.NewDB("test/ledger")
	var prev *ledger.Commit
	for _, data := range payloads {
		c, err := ledger.WriteCommit(ctx, store, "test/ledger", data, prev)
		require.NoError(t, err)
		db, err = merger.MergeCommit(ctx, db, c)
		require.NoError(t, err)
		prev = c
	}
	return db
}

func mustID(t *testing.T, db *ledger.DB, iri string) flake.ID {
	t.Helper()
	id, ok, err := db.SubjectIDByIRI(context.Background(), iri)
	require.NoError(t, err)
	require.True(t, ok, "expected %s to be bound", iri)
	return id
}

func rootPolicyData() *ledger.CommitData {
	return &ledger.CommitData{Assert: []*ledger.Node{{
		ID:    exNS + "rootPolicy",
		Types: []string{vocabulary.LedgerNamespace + "Policy"},
		Properties: map[string][]ledger.ValueNode{
			vocabulary.LedgerNamespace + "targetNode": {ref(vocabulary.LedgerNamespace + "allNodes")},
			vocabulary.LedgerNamespace + "allow":      {ref(exNS + "adminRole")},
		},
	}}}
}

func TestCompileRootPolicy(t *testing.T) {
	ctx := context.Background()
	db := buildDB(t, worldData(), rootPolicyData())

	pm, err := NewCompiler().Compile(ctx, db, ActionView, exNS+"alice", exNS+"adminRole")
	require.NoError(t, err)
	assert.True(t, pm.Root)

	session, err := NewSession(pm, 0)
	require.NoError(t, err)
	doc1 := mustID(t, db, exNS+"doc1")
	allowed, err := session.Allowed(ctx, db, db.Schema, doc1, flake.ID(999))
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestCompileDropsPoliciesForOtherRoles(t *testing.T) {
	ctx := context.Background()
	db := buildDB(t, worldData(), rootPolicyData())

	// The viewer role appears in no policy; everything is denied but
	// compilation itself succeeds.
	pm, err := NewCompiler().Compile(ctx, db, ActionView, exNS+"alice", exNS+"viewerRole")
	require.NoError(t, err)
	assert.False(t, pm.Root)

	session, err := NewSession(pm, 0)
	require.NoError(t, err)
	doc1 := mustID(t, db, exNS+"doc1")
	title := mustID(t, db, exNS+"title")
	allowed, err := session.Allowed(ctx, db, db.Schema, doc1, title)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestCompileWithoutPolicyStatementsIsInvalid(t *testing.T) {
	ctx := context.Background()
	db := buildDB(t, worldData())

	_, err := NewCompiler().Compile(ctx, db, ActionView, exNS+"alice", exNS+"adminRole")
	require.Error(t, err)
	assert.Equal(t, errors.KindInvalidPolicy, errors.KindOf(err))
	assert.Equal(t, 400, errors.StatusOf(err))
}

func TestCompileUnknownRoleIsInvalid(t *testing.T) {
	ctx := context.Background()
	db := buildDB(t, worldData(), rootPolicyData())

	_, err := NewCompiler().Compile(ctx, db, ActionView, exNS+"alice", exNS+"nobodyRole")
	require.Error(t, err)
	assert.Equal(t, errors.KindInvalidPolicy, errors.KindOf(err))
}

func TestClassPolicyWithActionFilter(t *testing.T) {
	ctx := context.Background()
	db := buildDB(t, worldData(), &ledger.CommitData{Assert: []*ledger.Node{{
		ID:    exNS + "docViewPolicy",
		Types: []string{vocabulary.LedgerNamespace + "Policy"},
		Properties: map[string][]ledger.ValueNode{
			vocabulary.LedgerNamespace + "targetClass": {ref(exNS + "Document")},
			vocabulary.LedgerNamespace + "allow":       {ref(exNS + "viewerRole")},
			vocabulary.LedgerNamespace + "action":      {lit("view")},
		},
	}}})

	doc1 := mustID(t, db, exNS+"doc1")
	title := mustID(t, db, exNS+"title")

	pm, err := NewCompiler().Compile(ctx, db, ActionView, exNS+"alice", exNS+"viewerRole")
	require.NoError(t, err)
	session, err := NewSession(pm, 0)
	require.NoError(t, err)
	allowed, err := session.Allowed(ctx, db, db.Schema, doc1, title)
	require.NoError(t, err)
	assert.True(t, allowed)

	// The same policy does not grant modify.
	pm, err = NewCompiler().Compile(ctx, db, ActionModify, exNS+"alice", exNS+"viewerRole")
	require.NoError(t, err)
	session, err = NewSession(pm, 0)
	require.NoError(t, err)
	allowed, err = session.Allowed(ctx, db, db.Schema, doc1, title)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func ownerPolicyData() *ledger.CommitData {
	return &ledger.CommitData{Assert: []*ledger.Node{{
		ID:    exNS + "ownerContentPolicy",
		Types: []string{vocabulary.LedgerNamespace + "Policy"},
		Properties: map[string][]ledger.ValueNode{
			vocabulary.LedgerNamespace + "targetClass": {ref(exNS + "Document")},
			vocabulary.LedgerNamespace + "property": {
				{Node: &ledger.Node{Properties: map[string][]ledger.ValueNode{
					vocabulary.LedgerNamespace + "path":  {ref(exNS + "content")},
					vocabulary.LedgerNamespace + "allow": {ref(exNS + "ownerRole")},
					vocabulary.LedgerNamespace + "equals": {{List: []ledger.ValueNode{
						ref(exNS + "owner"),
						ref(vocabulary.LedgerNamespace + "$identity"),
					}}},
				}}},
			},
		},
	}}}
}

func TestEqualsRuleSubstitutesIdentity(t *testing.T) {
	ctx := context.Background()
	db := buildDB(t, worldData(), ownerPolicyData())

	doc1 := mustID(t, db, exNS+"doc1")
	doc2 := mustID(t, db, exNS+"doc2")
	content := mustID(t, db, exNS+"content")
	title := mustID(t, db, exNS+"title")

	pm, err := NewCompiler().Compile(ctx, db, ActionView, exNS+"alice", exNS+"ownerRole")
	require.NoError(t, err)
	require.False(t, pm.Root)
	session, err := NewSession(pm, 0)
	require.NoError(t, err)

	// Alice owns doc1, so its content is visible.
	allowed, err := session.Allowed(ctx, db, db.Schema, doc1, content)
	require.NoError(t, err)
	assert.True(t, allowed)

	// Doc2 belongs to bob.
	allowed, err = session.Allowed(ctx, db, db.Schema, doc2, content)
	require.NoError(t, err)
	assert.False(t, allowed)

	// The policy restricts content only; other properties get no grant.
	allowed, err = session.Allowed(ctx, db, db.Schema, doc1, title)
	require.NoError(t, err)
	assert.False(t, allowed)

	// Cached decisions stay stable.
	again, err := session.Allowed(ctx, db, db.Schema, doc1, content)
	require.NoError(t, err)
	assert.True(t, again)
}

func TestEqualsRuleUnknownIdentityDenies(t *testing.T) {
	ctx := context.Background()
	db := buildDB(t, worldData(), ownerPolicyData())

	doc1 := mustID(t, db, exNS+"doc1")
	content := mustID(t, db, exNS+"content")

	pm, err := NewCompiler().Compile(ctx, db, ActionView, exNS+"stranger", exNS+"ownerRole")
	require.NoError(t, err)
	session, err := NewSession(pm, 0)
	require.NoError(t, err)
	allowed, err := session.Allowed(ctx, db, db.Schema, doc1, content)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestNodeTargetedPolicyGrantsOnlyThatNode(t *testing.T) {
	ctx := context.Background()
	db := buildDB(t, worldData(), &ledger.CommitData{Assert: []*ledger.Node{{
		ID:    exNS + "doc1Policy",
		Types: []string{vocabulary.LedgerNamespace + "Policy"},
		Properties: map[string][]ledger.ValueNode{
			vocabulary.LedgerNamespace + "targetNode": {ref(exNS + "doc1")},
			vocabulary.LedgerNamespace + "allow":      {ref(exNS + "viewerRole")},
		},
	}}})

	pm, err := NewCompiler().Compile(ctx, db, ActionView, exNS+"alice", exNS+"viewerRole")
	require.NoError(t, err)
	require.False(t, pm.Root)
	session, err := NewSession(pm, 0)
	require.NoError(t, err)

	doc1 := mustID(t, db, exNS+"doc1")
	doc2 := mustID(t, db, exNS+"doc2")
	title := mustID(t, db, exNS+"title")

	allowed, err := session.Allowed(ctx, db, db.Schema, doc1, title)
	require.NoError(t, err)
	assert.True(t, allowed)

	// Doc2 shares the class but is not the targeted node.
	allowed, err = session.Allowed(ctx, db, db.Schema, doc2, title)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestConflictingPropertyRulesLastOneWins(t *testing.T) {
	ctx := context.Background()
	db := buildDB(t, worldData(), &ledger.CommitData{Assert: []*ledger.Node{{
		ID:    exNS + "contentPolicy",
		Types: []string{vocabulary.LedgerNamespace + "Policy"},
		Properties: map[string][]ledger.ValueNode{
			vocabulary.LedgerNamespace + "targetClass": {ref(exNS + "Document")},
			vocabulary.LedgerNamespace + "property": {
				{Node: &ledger.Node{Properties: map[string][]ledger.ValueNode{
					vocabulary.LedgerNamespace + "path":  {ref(exNS + "content")},
					vocabulary.LedgerNamespace + "allow": {ref(exNS + "ownerRole")},
					vocabulary.LedgerNamespace + "equals": {{List: []ledger.ValueNode{
						ref(exNS + "owner"),
						ref(vocabulary.LedgerNamespace + "$identity"),
					}}},
				}}},
				{Node: &ledger.Node{Properties: map[string][]ledger.ValueNode{
					vocabulary.LedgerNamespace + "path":  {ref(exNS + "content")},
					vocabulary.LedgerNamespace + "allow": {ref(exNS + "ownerRole")},
				}}},
			},
		},
	}}})

	// Both nodes restrict the same path; the unconditional one compiled
	// last, so bob's document is readable despite the equals rule.
	pm, err := NewCompiler().Compile(ctx, db, ActionView, exNS+"alice", exNS+"ownerRole")
	require.NoError(t, err)
	session, err := NewSession(pm, 0)
	require.NoError(t, err)

	doc2 := mustID(t, db, exNS+"doc2")
	content := mustID(t, db, exNS+"content")
	allowed, err := session.Allowed(ctx, db, db.Schema, doc2, content)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestContainsRuleFailsLoudly(t *testing.T) {
	ctx := context.Background()
	db := buildDB(t, worldData(), &ledger.CommitData{Assert: []*ledger.Node{{
		ID:    exNS + "groupPolicy",
		Types: []string{vocabulary.LedgerNamespace + "Policy"},
		Properties: map[string][]ledger.ValueNode{
			vocabulary.LedgerNamespace + "targetClass": {ref(exNS + "Document")},
			vocabulary.LedgerNamespace + "allow":       {ref(exNS + "viewerRole")},
			vocabulary.LedgerNamespace + "contains":    {ref(exNS + "group")},
		},
	}}})

	_, err := NewCompiler().Compile(ctx, db, ActionView, exNS+"alice", exNS+"viewerRole")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotImplemented))
}

func TestPolicyWithoutTargetIsInvalid(t *testing.T) {
	ctx := context.Background()
	db := buildDB(t, worldData(), &ledger.CommitData{Assert: []*ledger.Node{{
		ID:    exNS + "aimlessPolicy",
		Types: []string{vocabulary.LedgerNamespace + "Policy"},
		Properties: map[string][]ledger.ValueNode{
			vocabulary.LedgerNamespace + "allow": {ref(exNS + "viewerRole")},
		},
	}}})

	_, err := NewCompiler().Compile(ctx, db, ActionView, exNS+"alice", exNS+"viewerRole")
	require.Error(t, err)
	assert.Equal(t, errors.KindInvalidPolicy, errors.KindOf(err))
}

func TestPolicyAppliesToSubclasses(t *testing.T) {
	ctx := context.Background()
	db := buildDB(t, worldData(),
		&ledger.CommitData{Assert: []*ledger.Node{
			{
				ID:    exNS + "Report",
				Types: []string{vocabulary.RDFSNamespace + "Class"},
				Properties: map[string][]ledger.ValueNode{
					vocabulary.RDFSNamespace + "subClassOf": {ref(exNS + "Document")},
				},
			},
			{ID: exNS + "report1", Types: []string{exNS + "Report"}, Properties: map[string][]ledger.ValueNode{
				exNS + "title": {lit("Q3")},
			}},
		}},
		&ledger.CommitData{Assert: []*ledger.Node{{
			ID:    exNS + "docPolicy",
			Types: []string{vocabulary.LedgerNamespace + "Policy"},
			Properties: map[string][]ledger.ValueNode{
				vocabulary.LedgerNamespace + "targetClass": {ref(exNS + "Document")},
				vocabulary.LedgerNamespace + "allow":       {ref(exNS + "viewerRole")},
			},
		}}},
	)

	pm, err := NewCompiler().Compile(ctx, db, ActionView, exNS+"alice", exNS+"viewerRole")
	require.NoError(t, err)
	session, err := NewSession(pm, 0)
	require.NoError(t, err)

	report1 := mustID(t, db, exNS+"report1")
	title := mustID(t, db, exNS+"title")
	allowed, err := session.Allowed(ctx, db, db.Schema, report1, title)
	require.NoError(t, err)
	assert.True(t, allowed)
}
