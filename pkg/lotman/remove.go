package lotman

import (
	"context"

	"github.com/pelicanplatform/lotman-go/internal/lotstore"
)

// RemoveLot deletes a single lot after applying a reassignment policy to
// its children: each child of the removed lot either reparents to the
// removed lot's own parents (closing the gap) or keeps its remaining
// parent edges untouched, depending on whether it was an orphan (the
// removed lot was its only parent) and which of policy's flags apply
// (spec.md §4.8, §9(c)).
//
// Preconditions: the lot exists; the caller owns a recursive ancestor of
// it, or the lot itself.
func (f *Facade) RemoveLot(ctx context.Context, name string, reassign RemovalPolicy) error {
	return f.withTxn(ctx, lotstore.TxImmediate, "remove_lot", func(s *scope) error {
		exists, err := s.repo.LotExists(ctx, name)
		if err != nil {
			return err
		}
		if !exists {
			return notFound("lot does not exist, nothing to remove")
		}
		if name == lotstore.DefaultLotName {
			others, err := s.repo.ListAllLots(ctx)
			if err != nil {
				return err
			}
			if len(others) > 1 {
				return invariantViolation("default may not be removed while other lots exist")
			}
		}

		if err := s.graph.CheckContextForParents(ctx, caller(), []string{name}, true, false); err != nil {
			return err
		}

		removedParents, err := s.repo.GetParents(ctx, name)
		if err != nil {
			return err
		}
		removedAttrs, err := s.repo.GetPolicyAttributes(ctx, name)
		if err != nil {
			return err
		}

		orphans, err := s.graph.Orphans(ctx, name)
		if err != nil {
			return err
		}
		orphanSet := make(map[string]bool, len(orphans))
		for _, o := range orphans {
			orphanSet[o] = true
		}

		children, err := s.repo.GetChildren(ctx, name)
		if err != nil {
			return err
		}

		for _, child := range children {
			isOrphan := orphanSet[child]
			if (isOrphan && !reassign.ReassignOrphans) || (!isOrphan && !reassign.ReassignNonOrphans) {
				// Just drop the edge to the removed lot; leave the child's
				// other ancestry (if any) untouched. An orphan left
				// unreassigned becomes parentless under this lot and is
				// re-rooted to default to preserve invariant #2.
				if err := s.repo.RemoveParents(ctx, child, []string{name}); err != nil {
					return err
				}
				if isOrphan {
					if err := s.repo.StoreNewParents(ctx, child, []string{lotstore.DefaultLotName}); err != nil {
						return err
					}
				}
				continue
			}

			if err := s.repo.RemoveParents(ctx, child, []string{name}); err != nil {
				return err
			}
			reparentTo := removedParents
			if len(reparentTo) == 0 {
				reparentTo = []string{lotstore.DefaultLotName}
			}
			if err := s.repo.StoreNewParents(ctx, child, reparentTo); err != nil {
				return err
			}

			if reassign.OverwriteChildPolicy {
				childAttrs := removedAttrs
				childAttrs.LotName = child
				if err := s.repo.UpsertPolicyAttributes(ctx, childAttrs); err != nil {
					return err
				}
			}
		}

		paths, err := s.repo.GetPaths(ctx, name)
		if err != nil {
			return err
		}
		if err := s.repo.DeleteLot(ctx, name); err != nil {
			return err
		}
		for _, p := range paths {
			f.index.Remove(p.Path)
		}
		return nil
	})
}

// RemoveLotRecursive deletes name and its entire subtree.
//
// Preconditions: the lot exists; the caller owns a recursive ancestor of
// it, or the lot itself.
func (f *Facade) RemoveLotRecursive(ctx context.Context, name string) error {
	return f.withTxn(ctx, lotstore.TxImmediate, "remove_lot_recursive", func(s *scope) error {
		exists, err := s.repo.LotExists(ctx, name)
		if err != nil {
			return err
		}
		if !exists {
			return notFound("lot does not exist, nothing to remove")
		}
		if name == lotstore.DefaultLotName {
			return invariantViolation("default may not be removed")
		}

		if err := s.graph.CheckContextForParents(ctx, caller(), []string{name}, true, false); err != nil {
			return err
		}

		descendants, err := s.graph.RecursiveChildren(ctx, name)
		if err != nil {
			return err
		}

		toRemove := append(descendants, name)
		for _, lot := range toRemove {
			paths, err := s.repo.GetPaths(ctx, lot)
			if err != nil {
				return err
			}
			if err := s.repo.DeleteLot(ctx, lot); err != nil {
				return err
			}
			for _, p := range paths {
				f.index.Remove(p.Path)
			}
		}
		return nil
	})
}
