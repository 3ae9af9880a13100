package lotman

import (
	"context"

	"github.com/pelicanplatform/lotman-go/internal/lotstore"
	"github.com/pelicanplatform/lotman-go/internal/pathindex"
)

// AddLot creates a new lot: its owner row, parent edges, path claims,
// policy attributes, and zero-initialized usage (spec.md §4.8 add_lot).
//
// Preconditions: `default` already exists unless spec.LotName is itself
// "default"; the lot does not already exist; the caller owns every
// declared parent (or an ancestor of it), and, if children are declared,
// owns the relevant ancestry of each child.
func (f *Facade) AddLot(ctx context.Context, spec NewLotSpec) error {
	return f.withTxn(ctx, lotstore.TxImmediate, "add_lot", func(s *scope) error {
		if spec.LotName != lotstore.DefaultLotName {
			exists, err := s.repo.LotExists(ctx, lotstore.DefaultLotName)
			if err != nil {
				return err
			}
			if !exists {
				return notFound("default lot does not exist; it must be created before any other lot")
			}
		}

		exists, err := s.repo.LotExists(ctx, spec.LotName)
		if err != nil {
			return err
		}
		if exists {
			return alreadyExists("lot " + spec.LotName + " already exists")
		}

		if err := s.graph.CheckContextForParents(ctx, caller(), spec.Parents, true, false); err != nil {
			return err
		}
		if len(spec.Children) > 0 {
			if err := s.graph.CheckContextForChildren(ctx, caller(), spec.Children, false, true); err != nil {
				return err
			}
		}

		parents := spec.Parents
		if len(parents) == 0 && spec.LotName == lotstore.DefaultLotName {
			parents = []string{lotstore.DefaultLotName} // default is its own root
		}

		if err := s.graph.CycleCheck(ctx, spec.LotName, parents, spec.Children); err != nil {
			return err
		}

		paths := make([]lotstore.Path, 0, len(spec.Paths))
		for _, p := range spec.Paths {
			paths = append(paths, lotstore.Path{
				Path:      pathindex.Canonicalize(p.Path),
				LotName:   spec.LotName,
				Recursive: p.Recursive,
			})
		}

		owner := lotstore.Owner{LotName: spec.LotName, Owner: spec.Owner}
		attrs := spec.ManagementPolicyAttrs.toModel(spec.LotName)
		if err := s.repo.WriteNew(ctx, owner, parents, paths, attrs); err != nil {
			return err
		}
		if err := s.repo.UpsertUsage(ctx, lotstore.LotUsage{LotName: spec.LotName}); err != nil {
			return err
		}

		// Splice in new children: for every declared (parent, child) pair
		// that is currently a direct edge, rewrite it through the new lot.
		for _, p := range parents {
			for _, c := range spec.Children {
				if err := s.graph.Splice(ctx, spec.LotName, p, c); err != nil {
					return err
				}
			}
		}

		for _, p := range paths {
			f.index.Put(p)
		}
		return nil
	})
}
