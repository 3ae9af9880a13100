package policy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pelicanplatform/lotman-go/internal/graph"
	"github.com/pelicanplatform/lotman-go/internal/lotrepo"
	"github.com/pelicanplatform/lotman-go/internal/lotstore"
)

func newTestEvaluator(t *testing.T) (*Evaluator, *lotrepo.Repo) {
	t.Helper()
	ctx := context.Background()
	store, err := lotstore.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	txn, err := store.BeginTx(ctx, lotstore.TxImmediate)
	require.NoError(t, err)
	t.Cleanup(func() { txn.Rollback(ctx) })

	repo := lotrepo.New(txn)
	g := graph.New(repo)
	return New(repo, g), repo
}

func TestGetLotsPastExp(t *testing.T) {
	ctx := context.Background()
	e, repo := newTestEvaluator(t)

	past := time.Now().Add(-time.Hour).UnixMilli()
	future := time.Now().Add(time.Hour).UnixMilli()

	require.NoError(t, repo.UpsertOwner(ctx, lotstore.Owner{LotName: "expired", Owner: "a"}))
	require.NoError(t, repo.UpsertPolicyAttributes(ctx, lotstore.ManagementPolicyAttributes{
		LotName: "expired", ExpirationTime: past, DeletionTime: -1, MaxNumObjects: -1,
	}))
	require.NoError(t, repo.UpsertOwner(ctx, lotstore.Owner{LotName: "fresh", Owner: "a"}))
	require.NoError(t, repo.UpsertPolicyAttributes(ctx, lotstore.ManagementPolicyAttributes{
		LotName: "fresh", ExpirationTime: future, DeletionTime: -1, MaxNumObjects: -1,
	}))

	hits, err := e.GetLotsPastExp(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"expired"}, hits)
}

func TestGetLotsPastExpRecursiveAncestor(t *testing.T) {
	ctx := context.Background()
	e, repo := newTestEvaluator(t)

	past := time.Now().Add(-time.Hour).UnixMilli()

	require.NoError(t, repo.UpsertOwner(ctx, lotstore.Owner{LotName: "parent", Owner: "a"}))
	require.NoError(t, repo.UpsertParent(ctx, lotstore.Parent{LotName: "parent", Parent: "parent"}))
	require.NoError(t, repo.UpsertPolicyAttributes(ctx, lotstore.ManagementPolicyAttributes{
		LotName: "parent", ExpirationTime: past, DeletionTime: -1, MaxNumObjects: -1,
	}))

	require.NoError(t, repo.UpsertOwner(ctx, lotstore.Owner{LotName: "child", Owner: "a"}))
	require.NoError(t, repo.UpsertParent(ctx, lotstore.Parent{LotName: "child", Parent: "parent"}))
	require.NoError(t, repo.UpsertPolicyAttributes(ctx, lotstore.ManagementPolicyAttributes{
		LotName: "child", ExpirationTime: -1, DeletionTime: -1, MaxNumObjects: -1,
	}))

	hits, err := e.GetLotsPastExp(ctx, false)
	require.NoError(t, err)
	assert.NotContains(t, hits, "child")

	hits, err = e.GetLotsPastExp(ctx, true)
	require.NoError(t, err)
	assert.Contains(t, hits, "child")
}

func TestGetLotsPastOppSelfUsageOnly(t *testing.T) {
	ctx := context.Background()
	e, repo := newTestEvaluator(t)

	require.NoError(t, repo.UpsertOwner(ctx, lotstore.Owner{LotName: "lot1", Owner: "a"}))
	require.NoError(t, repo.UpsertPolicyAttributes(ctx, lotstore.ManagementPolicyAttributes{
		LotName: "lot1", OpportunisticGB: 10, ExpirationTime: -1, DeletionTime: -1, MaxNumObjects: -1,
	}))
	require.NoError(t, repo.UpsertUsage(ctx, lotstore.LotUsage{LotName: "lot1", SelfGB: 15}))

	hits, err := e.GetLotsPastOpp(ctx, false, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"lot1"}, hits)
}

func TestGetLotsPastDedWithRecursiveChildren(t *testing.T) {
	ctx := context.Background()
	e, repo := newTestEvaluator(t)

	require.NoError(t, repo.UpsertOwner(ctx, lotstore.Owner{LotName: "lot1", Owner: "a"}))
	require.NoError(t, repo.UpsertPolicyAttributes(ctx, lotstore.ManagementPolicyAttributes{
		LotName: "lot1", DedicatedGB: 10, ExpirationTime: -1, DeletionTime: -1, MaxNumObjects: -1,
	}))
	require.NoError(t, repo.UpsertUsage(ctx, lotstore.LotUsage{LotName: "lot1", SelfGB: 4, ChildrenGB: 8}))

	hits, err := e.GetLotsPastDed(ctx, false, false)
	require.NoError(t, err)
	assert.Empty(t, hits, "self usage alone (4) is under the 10GB restriction")

	hits, err = e.GetLotsPastDed(ctx, false, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"lot1"}, hits, "self+children usage (12) exceeds the 10GB restriction")
}
