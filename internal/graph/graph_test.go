package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pelicanplatform/lotman-go/internal/lotkind"
	"github.com/pelicanplatform/lotman-go/internal/lotrepo"
	"github.com/pelicanplatform/lotman-go/internal/lotstore"
)

func newTestEngine(t *testing.T) (*Engine, *lotrepo.Repo) {
	t.Helper()
	ctx := context.Background()
	store, err := lotstore.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	txn, err := store.BeginTx(ctx, lotstore.TxImmediate)
	require.NoError(t, err)
	t.Cleanup(func() { txn.Rollback(ctx) })

	repo := lotrepo.New(txn)
	return New(repo), repo
}

// buildTree wires: default (root) -> a -> b -> c, with owners alice (default,a), bob (b,c).
func buildTree(t *testing.T, ctx context.Context, repo *lotrepo.Repo) {
	t.Helper()
	require.NoError(t, repo.UpsertOwner(ctx, lotstore.Owner{LotName: "default", Owner: "alice"}))
	require.NoError(t, repo.UpsertOwner(ctx, lotstore.Owner{LotName: "a", Owner: "alice"}))
	require.NoError(t, repo.UpsertOwner(ctx, lotstore.Owner{LotName: "b", Owner: "bob"}))
	require.NoError(t, repo.UpsertOwner(ctx, lotstore.Owner{LotName: "c", Owner: "bob"}))

	require.NoError(t, repo.UpsertParent(ctx, lotstore.Parent{LotName: "default", Parent: "default"}))
	require.NoError(t, repo.UpsertParent(ctx, lotstore.Parent{LotName: "a", Parent: "default"}))
	require.NoError(t, repo.UpsertParent(ctx, lotstore.Parent{LotName: "b", Parent: "a"}))
	require.NoError(t, repo.UpsertParent(ctx, lotstore.Parent{LotName: "c", Parent: "b"}))
}

func TestCheckIfRoot(t *testing.T) {
	ctx := context.Background()
	e, repo := newTestEngine(t)
	buildTree(t, ctx, repo)

	isRoot, err := e.CheckIfRoot(ctx, "default")
	require.NoError(t, err)
	assert.True(t, isRoot)

	isRoot, err = e.CheckIfRoot(ctx, "a")
	require.NoError(t, err)
	assert.False(t, isRoot)
}

func TestRecursiveParentsAndChildren(t *testing.T) {
	ctx := context.Background()
	e, repo := newTestEngine(t)
	buildTree(t, ctx, repo)

	parents, err := e.RecursiveParents(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "default"}, sorted(parents))

	children, err := e.RecursiveChildren(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, sorted(children))
}

func sorted(xs []string) []string {
	out := append([]string{}, xs...)
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j] < out[i] {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}

func TestCycleCheckRejectsAncestorAsNewChild(t *testing.T) {
	ctx := context.Background()
	e, repo := newTestEngine(t)
	buildTree(t, ctx, repo)

	err := e.CycleCheck(ctx, "c", []string{"default"}, []string{"a"})
	require.Error(t, err)
	var kindErr *lotkind.Error
	require.ErrorAs(t, err, &kindErr)
	assert.Equal(t, lotkind.InvariantViolation, kindErr.Kind)
}

func TestCycleCheckAllowsNonCyclicInsertion(t *testing.T) {
	ctx := context.Background()
	e, repo := newTestEngine(t)
	buildTree(t, ctx, repo)

	err := e.CycleCheck(ctx, "new-lot", []string{"a"}, []string{})
	assert.NoError(t, err)
}

func TestSpliceRewritesEdge(t *testing.T) {
	ctx := context.Background()
	e, repo := newTestEngine(t)
	buildTree(t, ctx, repo)

	require.NoError(t, e.Splice(ctx, "x", "a", "b"))

	parentsOfB, err := repo.GetParents(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, parentsOfB)

	parentsOfX, err := repo.GetParents(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, parentsOfX)
}

func TestOrphansDetectsSoleParentChildren(t *testing.T) {
	ctx := context.Background()
	e, repo := newTestEngine(t)
	buildTree(t, ctx, repo)
	require.NoError(t, repo.StoreNewParents(ctx, "c", []string{"default"})) // c now has b and default as parents

	orphans, err := e.Orphans(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, orphans, "c has two parents now, so removing b doesn't orphan it")

	orphans, err = e.Orphans(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, orphans)
}

func TestCheckContextForParentsAuthorizesOwner(t *testing.T) {
	ctx := context.Background()
	e, repo := newTestEngine(t)
	buildTree(t, ctx, repo)

	require.NoError(t, e.CheckContextForParents(ctx, "alice", []string{"c"}, false, false))
	err := e.CheckContextForParents(ctx, "mallory", []string{"c"}, false, false)
	require.Error(t, err)
	var kindErr *lotkind.Error
	require.ErrorAs(t, err, &kindErr)
	assert.Equal(t, lotkind.Unauthorized, kindErr.Kind)
}

func TestGetRestrictingAttributeTakesMinCapacityAcrossAncestors(t *testing.T) {
	ctx := context.Background()
	e, repo := newTestEngine(t)
	buildTree(t, ctx, repo)

	require.NoError(t, repo.UpsertPolicyAttributes(ctx, lotstore.ManagementPolicyAttributes{
		LotName: "default", DedicatedGB: 100, MaxNumObjects: -1, ExpirationTime: -1, DeletionTime: -1,
	}))
	require.NoError(t, repo.UpsertPolicyAttributes(ctx, lotstore.ManagementPolicyAttributes{
		LotName: "a", DedicatedGB: 10, MaxNumObjects: -1, ExpirationTime: -1, DeletionTime: -1,
	}))
	require.NoError(t, repo.UpsertPolicyAttributes(ctx, lotstore.ManagementPolicyAttributes{
		LotName: "b", DedicatedGB: 50, MaxNumObjects: -1, ExpirationTime: -1, DeletionTime: -1,
	}))

	value, ok, err := e.GetRestrictingAttribute(ctx, "b", AttrDedicatedGB, true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10.0, value)

	value, ok, err = e.GetRestrictingAttribute(ctx, "b", AttrDedicatedGB, false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 50.0, value)
}
