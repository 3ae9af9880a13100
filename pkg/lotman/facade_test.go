package lotman

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pelicanplatform/lotman-go/internal/lotctx"
	"github.com/pelicanplatform/lotman-go/internal/lotkind"
)

func newTestFacade(t *testing.T, callerName string) *Facade {
	t.Helper()
	lotctx.Reset()
	require.NoError(t, lotctx.Set(lotctx.KeyCaller, callerName))
	t.Cleanup(lotctx.Reset)

	ctx := context.Background()
	f, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func defaultAttrs() PolicyAttrsSpec {
	return PolicyAttrsSpec{MaxNumObjects: -1, ExpirationTime: -1, DeletionTime: -1}
}

// Scenario 1 (spec.md §8): bootstrap.
func TestBootstrapDefaultLot(t *testing.T) {
	ctx := context.Background()
	f := newTestFacade(t, "root")

	err := f.AddLot(ctx, NewLotSpec{
		LotName: "default", Owner: "root",
		Paths:                 []PathSpec{{Path: "/default/paths", Recursive: true}},
		ManagementPolicyAttrs: defaultAttrs(),
	})
	require.NoError(t, err)

	lots, err := f.ListAllLots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"default"}, lots)

	lot, err := f.GetLotAsJSON(ctx, "default", false)
	require.NoError(t, err)
	assert.Equal(t, "root", lot.Owner)
	assert.Equal(t, []string{"default"}, lot.Parents)
	require.Len(t, lot.Paths, 1)
	assert.Equal(t, "/default/paths/", lot.Paths[0].Path)
	assert.True(t, lot.Paths[0].Recursive)
}

func addDefault(t *testing.T, ctx context.Context, f *Facade, owner string) {
	t.Helper()
	require.NoError(t, f.AddLot(ctx, NewLotSpec{
		LotName: "default", Owner: owner, ManagementPolicyAttrs: defaultAttrs(),
	}))
}

// Scenario 2 (spec.md §8): insertion splice.
func TestInsertionSplicesExistingEdge(t *testing.T) {
	ctx := context.Background()
	f := newTestFacade(t, "root")
	addDefault(t, ctx, f, "root")

	require.NoError(t, f.AddLot(ctx, NewLotSpec{
		LotName: "lot3", Owner: "root", Parents: []string{"default"}, ManagementPolicyAttrs: defaultAttrs(),
	}))
	require.NoError(t, f.AddLot(ctx, NewLotSpec{
		LotName: "lot4", Owner: "root", Parents: []string{"lot3"}, ManagementPolicyAttrs: defaultAttrs(),
	}))

	require.NoError(t, f.AddLot(ctx, NewLotSpec{
		LotName: "lot5", Owner: "root", Parents: []string{"lot3"}, Children: []string{"lot4"},
		ManagementPolicyAttrs: defaultAttrs(),
	}))

	parentsOf4, err := f.GetParents(ctx, "lot4")
	require.NoError(t, err)
	assert.Equal(t, []string{"lot5"}, parentsOf4)

	childrenOf3, err := f.GetChildren(ctx, "lot3")
	require.NoError(t, err)
	assert.Contains(t, childrenOf3, "lot5")

	parentsOf5, err := f.GetParents(ctx, "lot5")
	require.NoError(t, err)
	assert.Equal(t, []string{"lot3"}, parentsOf5)
}

// Scenario 3 (spec.md §8): cycle rejection.
func TestCycleRejectionLeavesDatabaseUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newTestFacade(t, "root")
	addDefault(t, ctx, f, "root")

	chain := []string{"lot1", "lot2", "lot3", "lot4"}
	parent := "default"
	for _, lot := range chain {
		require.NoError(t, f.AddLot(ctx, NewLotSpec{
			LotName: lot, Owner: "root", Parents: []string{parent}, ManagementPolicyAttrs: defaultAttrs(),
		}))
		parent = lot
	}

	err := f.AddLot(ctx, NewLotSpec{
		LotName: "lot5", Owner: "root", Parents: []string{"lot4"}, Children: []string{"lot1"},
		ManagementPolicyAttrs: defaultAttrs(),
	})
	require.Error(t, err)

	exists, getErr := f.GetLotAsJSON(ctx, "lot5", false)
	assert.Error(t, getErr)
	assert.Empty(t, exists.LotName)
}

// Scenario 4 (spec.md §8): path normalization and lookup.
func TestPathNormalizationAndLookup(t *testing.T) {
	ctx := context.Background()
	f := newTestFacade(t, "root")
	addDefault(t, ctx, f, "root")

	require.NoError(t, f.AddLot(ctx, NewLotSpec{
		LotName: "lot_x", Owner: "root", Parents: []string{"default"},
		Paths:                 []PathSpec{{Path: "/a/b", Recursive: false}},
		ManagementPolicyAttrs: defaultAttrs(),
	}))
	require.NoError(t, f.AddLot(ctx, NewLotSpec{
		LotName: "lot_y", Owner: "root", Parents: []string{"default"},
		Paths:                 []PathSpec{{Path: "/a/", Recursive: true}},
		ManagementPolicyAttrs: defaultAttrs(),
	}))

	xDirs, err := f.GetLotDirs(ctx, "lot_x")
	require.NoError(t, err)
	require.Len(t, xDirs, 1)
	assert.Equal(t, "/a/b/", xDirs[0].Path)

	lots, err := f.GetLotsFromDir(ctx, "/a/b", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"lot_x"}, lots)

	lots, err = f.GetLotsFromDir(ctx, "/a/c", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"lot_y"}, lots)

	lots, err = f.GetLotsFromDir(ctx, "/a/b/sub", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"lot_y"}, lots)
}

func TestAddLotFailsBeforeDefaultExists(t *testing.T) {
	ctx := context.Background()
	f := newTestFacade(t, "root")

	err := f.AddLot(ctx, NewLotSpec{LotName: "orphan", Owner: "root", ManagementPolicyAttrs: defaultAttrs()})
	require.Error(t, err)
	var kindErr *lotkind.Error
	require.ErrorAs(t, err, &kindErr)
	assert.Equal(t, lotkind.NotFound, kindErr.Kind)
}

func TestRemoveLotReparentsChildrenToRemovedLotsParents(t *testing.T) {
	ctx := context.Background()
	f := newTestFacade(t, "root")
	addDefault(t, ctx, f, "root")

	require.NoError(t, f.AddLot(ctx, NewLotSpec{
		LotName: "mid", Owner: "root", Parents: []string{"default"}, ManagementPolicyAttrs: defaultAttrs(),
	}))
	require.NoError(t, f.AddLot(ctx, NewLotSpec{
		LotName: "leaf", Owner: "root", Parents: []string{"mid"}, ManagementPolicyAttrs: defaultAttrs(),
	}))

	require.NoError(t, f.RemoveLot(ctx, "mid", RemovalPolicy{ReassignOrphans: true}))

	parents, err := f.GetParents(ctx, "leaf")
	require.NoError(t, err)
	assert.Equal(t, []string{"default"}, parents)

	_, err = f.GetLotAsJSON(ctx, "mid", false)
	assert.Error(t, err)
}

func TestRemoveLotRecursiveDeletesSubtree(t *testing.T) {
	ctx := context.Background()
	f := newTestFacade(t, "root")
	addDefault(t, ctx, f, "root")

	require.NoError(t, f.AddLot(ctx, NewLotSpec{
		LotName: "mid", Owner: "root", Parents: []string{"default"}, ManagementPolicyAttrs: defaultAttrs(),
	}))
	require.NoError(t, f.AddLot(ctx, NewLotSpec{
		LotName: "leaf", Owner: "root", Parents: []string{"mid"}, ManagementPolicyAttrs: defaultAttrs(),
	}))

	require.NoError(t, f.RemoveLotRecursive(ctx, "mid"))

	lots, err := f.ListAllLots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"default"}, lots)
}

func TestUpdateLotRewritesOwnerAndPath(t *testing.T) {
	ctx := context.Background()
	f := newTestFacade(t, "root")
	addDefault(t, ctx, f, "root")

	require.NoError(t, f.AddLot(ctx, NewLotSpec{
		LotName: "lot1", Owner: "root", Parents: []string{"default"},
		Paths:                 []PathSpec{{Path: "/old/", Recursive: false}},
		ManagementPolicyAttrs: defaultAttrs(),
	}))

	newOwner := "alice"
	require.NoError(t, f.UpdateLot(ctx, UpdateLotSpec{
		LotName: "lot1",
		Owner:   &newOwner,
		Paths:   []PathRewrite{{Current: "/old/", New: "/new/", Recursive: true}},
	}))

	lot, err := f.GetLotAsJSON(ctx, "lot1", false)
	require.NoError(t, err)
	assert.Equal(t, "alice", lot.Owner)
	require.Len(t, lot.Paths, 1)
	assert.Equal(t, "/new/", lot.Paths[0].Path)
	assert.True(t, lot.Paths[0].Recursive)

	lots, err := f.GetLotsFromDir(ctx, "/old/", false)
	require.NoError(t, err)
	assert.Empty(t, lots)
}

func TestAddToLotIsIdempotentForDuplicateParent(t *testing.T) {
	ctx := context.Background()
	f := newTestFacade(t, "root")
	addDefault(t, ctx, f, "root")

	require.NoError(t, f.AddLot(ctx, NewLotSpec{
		LotName: "lot1", Owner: "root", Parents: []string{"default"}, ManagementPolicyAttrs: defaultAttrs(),
	}))
	require.NoError(t, f.AddLot(ctx, NewLotSpec{
		LotName: "lot2", Owner: "root", Parents: []string{"default"}, ManagementPolicyAttrs: defaultAttrs(),
	}))

	require.NoError(t, f.AddToLot(ctx, AdditionsSpec{LotName: "lot1", Parents: []string{"lot2"}}))
	require.NoError(t, f.AddToLot(ctx, AdditionsSpec{LotName: "lot1", Parents: []string{"lot2"}}))

	parents, err := f.GetParents(ctx, "lot1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"default", "lot2"}, parents)
}

func TestUpdateLotUsageOverwritesSelfCounter(t *testing.T) {
	ctx := context.Background()
	f := newTestFacade(t, "root")
	addDefault(t, ctx, f, "root")

	gb := 12.5
	require.NoError(t, f.UpdateLotUsage(ctx, UpdateUsageSpec{LotName: "default", SelfGB: &gb}))

	usage, err := f.GetLotUsage(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, 12.5, usage.SelfGB)
}

// Scenario 5 (spec.md §8): usage dedup.
func TestUpdateLotUsageByDirDedupsNonRecursiveParent(t *testing.T) {
	ctx := context.Background()
	f := newTestFacade(t, "root")
	addDefault(t, ctx, f, "root")

	require.NoError(t, f.AddLot(ctx, NewLotSpec{
		LotName: "lot_d", Owner: "root", Parents: []string{"default"},
		Paths:                 []PathSpec{{Path: "/d", Recursive: false}},
		ManagementPolicyAttrs: defaultAttrs(),
	}))
	require.NoError(t, f.AddLot(ctx, NewLotSpec{
		LotName: "lot_e", Owner: "root", Parents: []string{"default"},
		Paths:                 []PathSpec{{Path: "/d/e", Recursive: true}},
		ManagementPolicyAttrs: defaultAttrs(),
	}))

	err := f.UpdateLotUsageByDir(ctx, UsageDirNode{
		Path: "/d", SizeGB: 10, IncludesSubdirs: true,
		Subdirs: []UsageDirNode{{Path: "e", SizeGB: 3}},
	})
	require.NoError(t, err)

	usageD, err := f.GetLotUsage(ctx, "lot_d")
	require.NoError(t, err)
	assert.Equal(t, 7.0, usageD.SelfGB)

	usageE, err := f.GetLotUsage(ctx, "lot_e")
	require.NoError(t, err)
	assert.Equal(t, 3.0, usageE.SelfGB)
}

// Scenario 6 (spec.md §8): past expiration.
func TestGetLotsPastExpNonRecursive(t *testing.T) {
	ctx := context.Background()
	f := newTestFacade(t, "root")
	addDefault(t, ctx, f, "root")

	past := time.Now().Add(-time.Hour).UnixMilli()
	future := time.Now().Add(24 * time.Hour).UnixMilli()

	require.NoError(t, f.AddLot(ctx, NewLotSpec{
		LotName: "lot_soon", Owner: "root", Parents: []string{"default"},
		ManagementPolicyAttrs: PolicyAttrsSpec{MaxNumObjects: -1, ExpirationTime: past, DeletionTime: -1},
	}))
	require.NoError(t, f.AddLot(ctx, NewLotSpec{
		LotName: "lot_later", Owner: "root", Parents: []string{"default"},
		ManagementPolicyAttrs: PolicyAttrsSpec{MaxNumObjects: -1, ExpirationTime: future, DeletionTime: -1},
	}))

	hits, err := f.GetLotsPastExp(ctx, false)
	require.NoError(t, err)
	assert.Contains(t, hits, "lot_soon")
	assert.NotContains(t, hits, "lot_later")
}

func TestUnauthorizedCallerCannotUpdateLot(t *testing.T) {
	ctx := context.Background()
	f := newTestFacade(t, "root")
	addDefault(t, ctx, f, "root")

	require.NoError(t, lotctx.Set(lotctx.KeyCaller, "mallory"))
	newOwner := "mallory"
	err := f.UpdateLot(ctx, UpdateLotSpec{LotName: "default", Owner: &newOwner})
	require.Error(t, err)
	var kindErr *lotkind.Error
	require.ErrorAs(t, err, &kindErr)
	assert.Equal(t, lotkind.Unauthorized, kindErr.Kind)
}

func TestGetLotAsJSONMapRoundTripsAndReleases(t *testing.T) {
	ctx := context.Background()
	f := newTestFacade(t, "root")
	addDefault(t, ctx, f, "root")

	m, err := f.GetLotAsJSONMap(ctx, "default", false)
	require.NoError(t, err)
	assert.Equal(t, "default", m["lot_name"])
	assert.Equal(t, "root", m["owner"])
	ReleaseJSONMap(m)
}
