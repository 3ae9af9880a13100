// Package usageengine folds reported directory usage into per-lot
// counters: overwriting a single self-* field directly, or walking a
// whole directory-usage report tree, resolving each node to its owning
// lot via PathIndex, and deduplicating subdirectory totals before
// attribution (spec.md §4.5).
package usageengine

import (
	"context"
	"path"

	"github.com/pelicanplatform/lotman-go/internal/graph"
	"github.com/pelicanplatform/lotman-go/internal/lotkind"
	"github.com/pelicanplatform/lotman-go/internal/lotrepo"
	"github.com/pelicanplatform/lotman-go/internal/pathindex"
)

// SelfUsageKey names one of the four self-* counters update_self_usage can
// overwrite.
type SelfUsageKey int

const (
	SelfGB SelfUsageKey = iota
	SelfObjects
	SelfGBBeingWritten
	SelfObjectsBeingWritten
)

// DirUsageNode is one node of a directory-usage report tree, as produced
// by a storage scan: a path, its reported size/object counts, and
// (possibly empty) child reports for subdirectories.
type DirUsageNode struct {
	Path                string
	SizeGB              float64
	NumObj              int64
	GBBeingWritten      float64
	ObjectsBeingWritten int64
	IncludesSubdirs     bool
	Subdirs             []DirUsageNode
}

// Engine ties together the repository (for reading/writing usage rows),
// the path index (for directory->lot resolution), and the graph engine
// (for ancestor propagation).
type Engine struct {
	repo  *lotrepo.Repo
	index *pathindex.Index
	graph *graph.Engine
}

func New(repo *lotrepo.Repo, index *pathindex.Index, g *graph.Engine) *Engine {
	return &Engine{repo: repo, index: index, graph: g}
}

// selfUsageColumn names the lot_usage column a SelfUsageKey overwrites, and
// whether that column holds a float (GB fields) or an integer (object
// counts).
func selfUsageColumn(key SelfUsageKey) (column string, isInt bool, ok bool) {
	switch key {
	case SelfGB:
		return "self_gb", false, true
	case SelfObjects:
		return "self_objects", true, true
	case SelfGBBeingWritten:
		return "self_gb_being_written", false, true
	case SelfObjectsBeingWritten:
		return "self_objects_being_written", true, true
	default:
		return "", false, false
	}
}

// UpdateSelfUsage overwrites a single self-* counter on name's usage row,
// leaving the other seven fields untouched. Rather than branch over which
// of the four fields to assign in a read-modify-write round trip, it builds
// one data-driven upsert naming only the targeted column and hands it to
// ExecuteDynamicUpdate (spec.md §9).
func (e *Engine) UpdateSelfUsage(ctx context.Context, name string, key SelfUsageKey, value float64) error {
	column, isInt, ok := selfUsageColumn(key)
	if !ok {
		return lotkind.New(lotkind.SchemaValidation, "unrecognized self usage key")
	}

	sql := "INSERT INTO lot_usage (lot_name, " + column + ") VALUES (?, ?) " +
		"ON CONFLICT(lot_name) DO UPDATE SET " + column + " = excluded." + column

	update := lotrepo.DynamicUpdate{SQL: sql, StringParams: map[int]string{1: name}}
	if isInt {
		update.IntParams = map[int]int64{2: int64(value)}
	} else {
		update.DoubleParams = map[int]float64{2: value}
	}
	return e.repo.ExecuteDynamicUpdate(ctx, update)
}

type delta struct {
	gb, gbWritten     float64
	objects, objWritten int64
}

// UpdateUsageByDirs runs the directory-tree usage algorithm (spec.md §4.5)
// over the whole report tree rooted at tree, attributing deduplicated
// deltas to each resolved lot and propagating the net self-usage change
// to every ancestor's children_* counters.
func (e *Engine) UpdateUsageByDirs(ctx context.Context, tree DirUsageNode) error {
	accum := make(map[string]delta)
	if err := e.walk(ctx, tree, "", "", accum); err != nil {
		return err
	}

	for lotName, d := range accum {
		old, err := e.repo.GetUsage(ctx, lotName)
		if err != nil {
			return err
		}
		netGB := d.gb - old.SelfGB
		netObjects := d.objects - old.SelfObjects
		netGBWritten := d.gbWritten - old.SelfGBBeingWritten
		netObjWritten := d.objWritten - old.SelfObjectsBeingWritten

		updated := old
		updated.LotName = lotName
		updated.SelfGB = d.gb
		updated.SelfObjects = d.objects
		updated.SelfGBBeingWritten = d.gbWritten
		updated.SelfObjectsBeingWritten = d.objWritten
		if err := e.repo.UpsertUsage(ctx, updated); err != nil {
			return err
		}

		if netGB == 0 && netObjects == 0 && netGBWritten == 0 && netObjWritten == 0 {
			continue
		}

		ancestors, err := e.graph.RecursiveParents(ctx, lotName)
		if err != nil {
			return err
		}
		for _, ancestor := range ancestors {
			if err := e.repo.AccumulateChildrenUsage(ctx, ancestor, lotrepo.UsageDelta{
				ChildrenGB:                  netGB,
				ChildrenObjects:             netObjects,
				ChildrenGBBeingWritten:      netGBWritten,
				ChildrenObjectsBeingWritten: netObjWritten,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// walk recurses into the report tree, resolving each node to a lot and
// accumulating its deduplicated deltas. coveredBy names the lot whose
// recursive claim on an enclosing node (reported with includes_subdirs)
// already counted this node's usage; a node resolving to that same lot is
// not counted a second time.
func (e *Engine) walk(ctx context.Context, node DirUsageNode, parentPath, coveredBy string, accum map[string]delta) error {
	p := node.Path
	if parentPath != "" {
		p = path.Join(parentPath, node.Path)
	}
	canonical := pathindex.Canonicalize(p)

	match, _ := e.index.GetLotsFromDir(canonical, false)
	if match.LotName == "" {
		// No claim covers this directory; nothing to attribute, but still
		// walk subdirs in case a deeper claim exists.
		for _, s := range node.Subdirs {
			if err := e.walk(ctx, s, canonical, coveredBy, accum); err != nil {
				return err
			}
		}
		return nil
	}

	if match.LotName == coveredBy {
		// Already counted in the enclosing recursive node's total.
		for _, s := range node.Subdirs {
			if err := e.walk(ctx, s, canonical, coveredBy, accum); err != nil {
				return err
			}
		}
		return nil
	}

	recursiveFlag := false
	if row, ok := e.index.Lookup(canonical); ok {
		recursiveFlag = row.Recursive
	}

	sizeGB, numObj, gbWritten, objWritten := node.SizeGB, node.NumObj, node.GBBeingWritten, node.ObjectsBeingWritten
	if node.IncludesSubdirs && !recursiveFlag {
		for _, s := range node.Subdirs {
			sizeGB -= s.SizeGB
			numObj -= s.NumObj
			gbWritten -= s.GBBeingWritten
			objWritten -= s.ObjectsBeingWritten
		}
	}

	d := accum[match.LotName]
	d.gb += sizeGB
	d.objects += numObj
	d.gbWritten += gbWritten
	d.objWritten += objWritten
	accum[match.LotName] = d

	childCover := ""
	if node.IncludesSubdirs && recursiveFlag {
		childCover = match.LotName
	}
	for _, s := range node.Subdirs {
		if err := e.walk(ctx, s, canonical, childCover, accum); err != nil {
			return err
		}
	}
	return nil
}
