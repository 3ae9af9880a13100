package lotman

import (
	"context"

	"github.com/pelicanplatform/lotman-go/internal/lotstore"
	"github.com/pelicanplatform/lotman-go/internal/pathindex"
	"github.com/pelicanplatform/lotman-go/internal/usageengine"
)

// UpdateLot applies the optional field-level changes in spec to an
// existing lot: owner, parent renames, path rewrites, and/or policy
// attribute updates (spec.md §4.8 update_lot).
//
// Preconditions: the lot exists; the caller owns the lot's ancestry.
func (f *Facade) UpdateLot(ctx context.Context, spec UpdateLotSpec) error {
	return f.withTxn(ctx, lotstore.TxImmediate, "update_lot", func(s *scope) error {
		exists, err := s.repo.LotExists(ctx, spec.LotName)
		if err != nil {
			return err
		}
		if !exists {
			return notFound("lot " + spec.LotName + " does not exist")
		}
		if err := s.graph.CheckContextForParents(ctx, caller(), []string{spec.LotName}, true, false); err != nil {
			return err
		}

		if spec.Owner != nil {
			if err := s.repo.UpsertOwner(ctx, lotstore.Owner{LotName: spec.LotName, Owner: *spec.Owner}); err != nil {
				return err
			}
		}

		if len(spec.Parents) > 0 {
			newParents := make([]string, 0, len(spec.Parents))
			for _, rename := range spec.Parents {
				newParents = append(newParents, rename.New)
			}
			if err := s.graph.CycleCheck(ctx, spec.LotName, newParents, nil); err != nil {
				return err
			}
			for _, rename := range spec.Parents {
				if err := s.repo.RemoveParents(ctx, spec.LotName, []string{rename.Current}); err != nil {
					return err
				}
				if err := s.repo.UpsertParent(ctx, lotstore.Parent{LotName: spec.LotName, Parent: rename.New}); err != nil {
					return err
				}
			}
		}

		for _, rewrite := range spec.Paths {
			canonical := pathindex.Canonicalize(rewrite.Current)
			if err := s.repo.RemovePaths(ctx, spec.LotName, []string{canonical}); err != nil {
				return err
			}
			f.index.Remove(canonical)

			p := lotstore.Path{Path: pathindex.Canonicalize(rewrite.New), LotName: spec.LotName, Recursive: rewrite.Recursive}
			if err := s.repo.UpsertPath(ctx, p); err != nil {
				return err
			}
			f.index.Put(p)
		}

		if spec.ManagementPolicyAttrs != nil {
			if err := s.repo.UpsertPolicyAttributes(ctx, spec.ManagementPolicyAttrs.toModel(spec.LotName)); err != nil {
				return err
			}
		}

		return nil
	})
}

// AddToLot appends parent edges and/or path claims to an existing lot
// (spec.md §4.8 add_to_lot). Adding the same parent twice is a no-op
// (ON CONFLICT DO NOTHING at the repository layer).
func (f *Facade) AddToLot(ctx context.Context, spec AdditionsSpec) error {
	return f.withTxn(ctx, lotstore.TxImmediate, "add_to_lot", func(s *scope) error {
		exists, err := s.repo.LotExists(ctx, spec.LotName)
		if err != nil {
			return err
		}
		if !exists {
			return notFound("lot " + spec.LotName + " does not exist")
		}
		if err := s.graph.CheckContextForParents(ctx, caller(), []string{spec.LotName}, true, false); err != nil {
			return err
		}

		if len(spec.Parents) > 0 {
			if err := s.graph.CycleCheck(ctx, spec.LotName, spec.Parents, nil); err != nil {
				return err
			}
			if err := s.repo.StoreNewParents(ctx, spec.LotName, spec.Parents); err != nil {
				return err
			}
		}

		for _, p := range spec.Paths {
			row := lotstore.Path{Path: pathindex.Canonicalize(p.Path), LotName: spec.LotName, Recursive: p.Recursive}
			if err := s.repo.UpsertPath(ctx, row); err != nil {
				return err
			}
			f.index.Put(row)
		}
		return nil
	})
}

// RemoveFromLot removes parent edges and/or path claims from an existing
// lot (spec.md §4.8 remove_from_lot).
func (f *Facade) RemoveFromLot(ctx context.Context, spec SubtractionsSpec) error {
	return f.withTxn(ctx, lotstore.TxImmediate, "remove_from_lot", func(s *scope) error {
		exists, err := s.repo.LotExists(ctx, spec.LotName)
		if err != nil {
			return err
		}
		if !exists {
			return notFound("lot " + spec.LotName + " does not exist")
		}
		if err := s.graph.CheckContextForParents(ctx, caller(), []string{spec.LotName}, true, false); err != nil {
			return err
		}

		if len(spec.Parents) > 0 {
			if err := s.repo.RemoveParents(ctx, spec.LotName, spec.Parents); err != nil {
				return err
			}
		}
		for _, p := range spec.Paths {
			canonical := pathindex.Canonicalize(p)
			if err := s.repo.RemovePaths(ctx, spec.LotName, []string{canonical}); err != nil {
				return err
			}
			f.index.Remove(canonical)
		}
		return nil
	})
}

// UpdateLotUsage overwrites one or more self-* usage counters on a lot.
//
// Preconditions: the caller owns the lot's ancestry.
func (f *Facade) UpdateLotUsage(ctx context.Context, spec UpdateUsageSpec) error {
	return f.withTxn(ctx, lotstore.TxImmediate, "update_lot_usage", func(s *scope) error {
		if err := s.graph.CheckContextForParents(ctx, caller(), []string{spec.LotName}, true, false); err != nil {
			return err
		}
		if spec.SelfGB != nil {
			if err := s.usage.UpdateSelfUsage(ctx, spec.LotName, usageengine.SelfGB, *spec.SelfGB); err != nil {
				return err
			}
		}
		if spec.SelfObjects != nil {
			if err := s.usage.UpdateSelfUsage(ctx, spec.LotName, usageengine.SelfObjects, float64(*spec.SelfObjects)); err != nil {
				return err
			}
		}
		if spec.SelfGBBeingWritten != nil {
			if err := s.usage.UpdateSelfUsage(ctx, spec.LotName, usageengine.SelfGBBeingWritten, *spec.SelfGBBeingWritten); err != nil {
				return err
			}
		}
		if spec.SelfObjectsBeingWritten != nil {
			if err := s.usage.UpdateSelfUsage(ctx, spec.LotName, usageengine.SelfObjectsBeingWritten, float64(*spec.SelfObjectsBeingWritten)); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateLotUsageByDir runs the directory-tree usage algorithm over tree,
// attributing reported usage to whichever lots own the scanned
// directories (spec.md §4.8, §4.5).
func (f *Facade) UpdateLotUsageByDir(ctx context.Context, tree UsageDirNode) error {
	return f.withTxn(ctx, lotstore.TxImmediate, "update_lot_usage_by_dir", func(s *scope) error {
		return s.usage.UpdateUsageByDirs(ctx, toEngineNode(tree))
	})
}

func toEngineNode(n UsageDirNode) usageengine.DirUsageNode {
	subdirs := make([]usageengine.DirUsageNode, 0, len(n.Subdirs))
	for _, s := range n.Subdirs {
		subdirs = append(subdirs, toEngineNode(s))
	}
	return usageengine.DirUsageNode{
		Path: n.Path, SizeGB: n.SizeGB, NumObj: n.NumObj,
		GBBeingWritten: n.GBBeingWritten, ObjectsBeingWritten: n.ObjectsBeingWritten,
		IncludesSubdirs: n.IncludesSubdirs, Subdirs: subdirs,
	}
}
