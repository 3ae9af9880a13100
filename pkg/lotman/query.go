package lotman

import (
	"context"

	"github.com/pelicanplatform/lotman-go/internal/graph"
	"github.com/pelicanplatform/lotman-go/internal/lotstore"
)

// ListAllLots returns every known lot name.
func (f *Facade) ListAllLots(ctx context.Context) ([]string, error) {
	var out []string
	err := f.withTxn(ctx, lotstore.TxDeferred, "list_all_lots", func(s *scope) error {
		lots, err := s.repo.ListAllLots(ctx)
		out = lots
		return err
	})
	return out, err
}

// GetParents returns the direct parents of a lot.
func (f *Facade) GetParents(ctx context.Context, name string) ([]string, error) {
	var out []string
	err := f.withTxn(ctx, lotstore.TxDeferred, "get_parents", func(s *scope) error {
		parents, err := s.repo.GetParents(ctx, name)
		out = parents
		return err
	})
	return out, err
}

// GetChildren returns the direct children of a lot.
func (f *Facade) GetChildren(ctx context.Context, name string) ([]string, error) {
	var out []string
	err := f.withTxn(ctx, lotstore.TxDeferred, "get_children", func(s *scope) error {
		children, err := s.repo.GetChildren(ctx, name)
		out = children
		return err
	})
	return out, err
}

// GetOwners returns the distinct owners across name and, recursively, its
// ancestors.
func (f *Facade) GetOwners(ctx context.Context, name string, recursive bool) ([]string, error) {
	var out []string
	err := f.withTxn(ctx, lotstore.TxDeferred, "get_owners", func(s *scope) error {
		if !recursive {
			o, err := s.repo.GetOwner(ctx, name)
			if err != nil {
				return err
			}
			out = []string{o.Owner}
			return nil
		}
		owners, err := s.graph.RecursiveOwners(ctx, name)
		out = owners
		return err
	})
	return out, err
}

// GetLotDirs returns the path claims owned by a lot.
func (f *Facade) GetLotDirs(ctx context.Context, name string) ([]PathSpec, error) {
	var out []PathSpec
	err := f.withTxn(ctx, lotstore.TxDeferred, "get_lot_dirs", func(s *scope) error {
		paths, err := s.repo.GetPaths(ctx, name)
		if err != nil {
			return err
		}
		for _, p := range paths {
			out = append(out, PathSpec{Path: p.Path, Recursive: p.Recursive})
		}
		return nil
	})
	return out, err
}

// GetPolicyAttributes returns the policy attributes of a lot. With
// recursive set, capacity/deadline fields are instead resolved to the
// most-restrictive value across the lot and its ancestors.
func (f *Facade) GetPolicyAttributes(ctx context.Context, name string, recursive bool) (PolicyAttrsSpec, error) {
	var out PolicyAttrsSpec
	err := f.withTxn(ctx, lotstore.TxDeferred, "get_policy_attrs", func(s *scope) error {
		attrs, err := s.repo.GetPolicyAttributes(ctx, name)
		if err != nil {
			return err
		}
		out = policyAttrsFromModel(attrs)
		if !recursive {
			return nil
		}

		if v, ok, err := s.graph.GetRestrictingAttribute(ctx, name, graph.AttrDedicatedGB, true); err != nil {
			return err
		} else if ok {
			out.DedicatedGB = v
		}
		if v, ok, err := s.graph.GetRestrictingAttribute(ctx, name, graph.AttrOpportunisticGB, true); err != nil {
			return err
		} else if ok {
			out.OpportunisticGB = v
		}
		if v, ok, err := s.graph.GetRestrictingAttribute(ctx, name, graph.AttrMaxNumObjects, true); err != nil {
			return err
		} else if ok {
			out.MaxNumObjects = int64(v)
		}
		if v, ok, err := s.graph.GetRestrictingAttribute(ctx, name, graph.AttrExpirationTime, true); err != nil {
			return err
		} else if ok {
			out.ExpirationTime = int64(v)
		}
		if v, ok, err := s.graph.GetRestrictingAttribute(ctx, name, graph.AttrDeletionTime, true); err != nil {
			return err
		} else if ok {
			out.DeletionTime = int64(v)
		}
		return nil
	})
	return out, err
}

// GetLotUsage returns the usage counters of a lot.
func (f *Facade) GetLotUsage(ctx context.Context, name string) (UsageJSON, error) {
	var out UsageJSON
	err := f.withTxn(ctx, lotstore.TxDeferred, "get_lot_usage", func(s *scope) error {
		usage, err := s.repo.GetUsage(ctx, name)
		out = usageJSONFromModel(usage)
		return err
	})
	return out, err
}

// GetLotAsJSON returns the full projection of a lot (owner, parents,
// paths, policy, usage). With recursive set, Children is also populated.
func (f *Facade) GetLotAsJSON(ctx context.Context, name string, recursive bool) (LotJSON, error) {
	var out LotJSON
	err := f.withTxn(ctx, lotstore.TxDeferred, "get_lot_as_json", func(s *scope) error {
		owner, err := s.repo.GetOwner(ctx, name)
		if err != nil {
			return err
		}
		parents, err := s.repo.GetParents(ctx, name)
		if err != nil {
			return err
		}
		paths, err := s.repo.GetPaths(ctx, name)
		if err != nil {
			return err
		}
		attrs, err := s.repo.GetPolicyAttributes(ctx, name)
		if err != nil {
			return err
		}
		usage, err := s.repo.GetUsage(ctx, name)
		if err != nil {
			return err
		}

		pathSpecs := make([]PathSpec, 0, len(paths))
		for _, p := range paths {
			pathSpecs = append(pathSpecs, PathSpec{Path: p.Path, Recursive: p.Recursive})
		}

		out = LotJSON{
			LotName: name, Owner: owner.Owner, Parents: parents, Paths: pathSpecs,
			ManagementPolicyAttrs: policyAttrsFromModel(attrs), Usage: usageJSONFromModel(usage),
		}

		if recursive {
			children, err := s.graph.RecursiveChildren(ctx, name)
			if err != nil {
				return err
			}
			out.Children = children
		}
		return nil
	})
	return out, err
}

// GetLotsFromDir resolves the lot owning dir, and, with recursive set,
// every lot claiming a path under it (spec.md §4.3, §4.8).
func (f *Facade) GetLotsFromDir(ctx context.Context, dir string, recursive bool) ([]string, error) {
	best, subtree := f.index.GetLotsFromDir(dir, recursive)
	if best.LotName == "" {
		return nil, nil
	}
	if !recursive {
		return []string{best.LotName}, nil
	}

	seen := make(map[string]bool, len(subtree))
	names := make([]string, 0, len(subtree))
	for _, m := range subtree {
		if !seen[m.LotName] {
			seen[m.LotName] = true
			names = append(names, m.LotName)
		}
	}
	return names, nil
}

// GetLotsPastExp returns lots past their expiration_time.
func (f *Facade) GetLotsPastExp(ctx context.Context, recursive bool) ([]string, error) {
	var out []string
	err := f.withTxn(ctx, lotstore.TxDeferred, "get_lots_past_exp", func(s *scope) error {
		hits, err := s.pol.GetLotsPastExp(ctx, recursive)
		out = hits
		return err
	})
	return out, err
}

// GetLotsPastDel returns lots past their deletion_time.
func (f *Facade) GetLotsPastDel(ctx context.Context, recursive bool) ([]string, error) {
	var out []string
	err := f.withTxn(ctx, lotstore.TxDeferred, "get_lots_past_del", func(s *scope) error {
		hits, err := s.pol.GetLotsPastDel(ctx, recursive)
		out = hits
		return err
	})
	return out, err
}

// GetLotsPastOpp returns lots exceeding their opportunistic-GB restriction.
func (f *Facade) GetLotsPastOpp(ctx context.Context, recursiveQuota, recursiveChildren bool) ([]string, error) {
	var out []string
	err := f.withTxn(ctx, lotstore.TxDeferred, "get_lots_past_opp", func(s *scope) error {
		hits, err := s.pol.GetLotsPastOpp(ctx, recursiveQuota, recursiveChildren)
		out = hits
		return err
	})
	return out, err
}

// GetLotsPastDed returns lots exceeding their dedicated-GB restriction.
func (f *Facade) GetLotsPastDed(ctx context.Context, recursiveQuota, recursiveChildren bool) ([]string, error) {
	var out []string
	err := f.withTxn(ctx, lotstore.TxDeferred, "get_lots_past_ded", func(s *scope) error {
		hits, err := s.pol.GetLotsPastDed(ctx, recursiveQuota, recursiveChildren)
		out = hits
		return err
	})
	return out, err
}

// GetLotsPastObj returns lots exceeding their max_num_objects restriction.
func (f *Facade) GetLotsPastObj(ctx context.Context, recursiveQuota, recursiveChildren bool) ([]string, error) {
	var out []string
	err := f.withTxn(ctx, lotstore.TxDeferred, "get_lots_past_obj", func(s *scope) error {
		hits, err := s.pol.GetLotsPastObj(ctx, recursiveQuota, recursiveChildren)
		out = hits
		return err
	})
	return out, err
}

