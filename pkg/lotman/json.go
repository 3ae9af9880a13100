package lotman

import (
	"context"

	"github.com/pelicanplatform/lotman-go/pkg/pool"
)

// GetLotAsJSONMap builds the same projection as GetLotAsJSON but as a
// map[string]interface{}/[]interface{} tree drawn from pool, the shape a
// C-ABI shim marshals straight to a JSON string without an intermediate
// struct allocation per call. Callers must return every map/slice they
// receive (including nested path entries) via pool.PutMap/pool.PutSlice
// once the JSON has been serialized.
func (f *Facade) GetLotAsJSONMap(ctx context.Context, name string, recursive bool) (map[string]interface{}, error) {
	lot, err := f.GetLotAsJSON(ctx, name, recursive)
	if err != nil {
		return nil, err
	}

	paths := pool.GetSlice()
	for _, p := range lot.Paths {
		entry := pool.GetMap()
		entry["path"] = p.Path
		entry["recursive"] = p.Recursive
		paths = append(paths, entry)
	}

	attrs := pool.GetMap()
	attrs["dedicated_GB"] = lot.ManagementPolicyAttrs.DedicatedGB
	attrs["opportunistic_GB"] = lot.ManagementPolicyAttrs.OpportunisticGB
	attrs["max_num_objects"] = lot.ManagementPolicyAttrs.MaxNumObjects
	attrs["creation_time"] = lot.ManagementPolicyAttrs.CreationTime
	attrs["expiration_time"] = lot.ManagementPolicyAttrs.ExpirationTime
	attrs["deletion_time"] = lot.ManagementPolicyAttrs.DeletionTime

	usage := pool.GetMap()
	usage["self_GB"] = lot.Usage.SelfGB
	usage["children_GB"] = lot.Usage.ChildrenGB
	usage["self_objects"] = lot.Usage.SelfObjects
	usage["children_objects"] = lot.Usage.ChildrenObjects
	usage["self_GB_being_written"] = lot.Usage.SelfGBBeingWritten
	usage["children_GB_being_written"] = lot.Usage.ChildrenGBBeingWritten
	usage["self_objects_being_written"] = lot.Usage.SelfObjectsBeingWritten
	usage["children_objects_being_written"] = lot.Usage.ChildrenObjectsBeingWritten

	out := pool.GetMap()
	out["lot_name"] = lot.LotName
	out["owner"] = lot.Owner
	out["parents"] = stringsToInterfaces(lot.Parents)
	if recursive {
		out["children"] = stringsToInterfaces(lot.Children)
	}
	out["paths"] = paths
	out["management_policy_attrs"] = attrs
	out["usage"] = usage

	return out, nil
}

// ReleaseJSONMap returns every pooled map/slice produced by
// GetLotAsJSONMap back to pool, mirroring the allocation shape above.
func ReleaseJSONMap(m map[string]interface{}) {
	if paths, ok := m["paths"].([]interface{}); ok {
		for _, entry := range paths {
			if em, ok := entry.(map[string]interface{}); ok {
				pool.PutMap(em)
			}
		}
		pool.PutSlice(paths)
	}
	if parents, ok := m["parents"].([]interface{}); ok {
		pool.PutSlice(parents)
	}
	if children, ok := m["children"].([]interface{}); ok {
		pool.PutSlice(children)
	}
	if attrs, ok := m["management_policy_attrs"].(map[string]interface{}); ok {
		pool.PutMap(attrs)
	}
	if usage, ok := m["usage"].(map[string]interface{}); ok {
		pool.PutMap(usage)
	}
	pool.PutMap(m)
}

func stringsToInterfaces(xs []string) []interface{} {
	out := pool.GetSlice()
	for _, x := range xs {
		out = append(out, x)
	}
	return out
}
