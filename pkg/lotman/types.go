// Package lotman is the public facade: the operation set a caller
// (eventually a C-ABI shim, a CLI, or a Go program directly) uses to
// create, mutate, and query lots. Every mutating call runs inside one
// immediate transaction; authorization checks happen before any write, and
// a failed invariant check rolls back whatever the call had already
// written (spec.md §4.8).
package lotman

import "github.com/pelicanplatform/lotman-go/internal/lotstore"

// PathSpec is one path claim, as it appears in request/response JSON.
type PathSpec struct {
	Path      string `json:"path"`
	Recursive bool   `json:"recursive"`
}

// PolicyAttrsSpec mirrors ManagementPolicyAttributes field-for-field in
// request/response JSON (spec.md §6).
type PolicyAttrsSpec struct {
	DedicatedGB     float64 `json:"dedicated_GB"`
	OpportunisticGB float64 `json:"opportunistic_GB"`
	MaxNumObjects   int64   `json:"max_num_objects"`
	CreationTime    int64   `json:"creation_time"`
	ExpirationTime  int64   `json:"expiration_time"`
	DeletionTime    int64   `json:"deletion_time"`
}

func (p PolicyAttrsSpec) toModel(lotName string) lotstore.ManagementPolicyAttributes {
	return lotstore.ManagementPolicyAttributes{
		LotName: lotName, DedicatedGB: p.DedicatedGB, OpportunisticGB: p.OpportunisticGB,
		MaxNumObjects: p.MaxNumObjects, CreationTime: p.CreationTime,
		ExpirationTime: p.ExpirationTime, DeletionTime: p.DeletionTime,
	}
}

func policyAttrsFromModel(a lotstore.ManagementPolicyAttributes) PolicyAttrsSpec {
	return PolicyAttrsSpec{
		DedicatedGB: a.DedicatedGB, OpportunisticGB: a.OpportunisticGB, MaxNumObjects: a.MaxNumObjects,
		CreationTime: a.CreationTime, ExpirationTime: a.ExpirationTime, DeletionTime: a.DeletionTime,
	}
}

// NewLotSpec is the add_lot request payload (spec.md §6 "new lot" schema).
type NewLotSpec struct {
	LotName               string          `json:"lot_name"`
	Owner                 string          `json:"owner"`
	Parents               []string        `json:"parents"`
	Children              []string        `json:"children,omitempty"`
	Paths                 []PathSpec      `json:"paths"`
	ManagementPolicyAttrs PolicyAttrsSpec `json:"management_policy_attrs"`
}

// ParentRename is one entry of an update spec's parents[] rewrite list.
type ParentRename struct {
	Current string `json:"current"`
	New     string `json:"new"`
}

// PathRewrite is one entry of an update spec's paths[] rewrite list.
type PathRewrite struct {
	Current   string `json:"current"`
	New       string `json:"new"`
	Recursive bool   `json:"recursive"`
}

// UpdateLotSpec is the update_lot request payload (spec.md §6 "update"
// schema). Every field besides LotName is optional; nil/empty means "no
// change".
type UpdateLotSpec struct {
	LotName               string            `json:"lot_name"`
	Owner                 *string           `json:"owner,omitempty"`
	Parents               []ParentRename    `json:"parents,omitempty"`
	Paths                 []PathRewrite     `json:"paths,omitempty"`
	ManagementPolicyAttrs *PolicyAttrsSpec  `json:"management_policy_attrs,omitempty"`
}

// AdditionsSpec is the add_to_lot request payload (spec.md §6
// "additions" schema).
type AdditionsSpec struct {
	LotName string     `json:"lot_name"`
	Parents []string   `json:"parents,omitempty"`
	Paths   []PathSpec `json:"paths,omitempty"`
}

// SubtractionsSpec is the remove_from_lot request payload (spec.md §6
// "subtractions" schema).
type SubtractionsSpec struct {
	LotName string   `json:"lot_name"`
	Parents []string `json:"parents,omitempty"`
	Paths   []string `json:"paths,omitempty"`
}

// RemovalPolicy is the three-boolean reassignment policy remove_lot
// applies to a removed lot's children; the removed lot's paths are deleted
// with it, not reassigned (spec.md §9(c); only the
// call-time-flags path is implemented, per the resolved open question).
type RemovalPolicy struct {
	ReassignOrphans    bool
	ReassignNonOrphans bool
	OverwriteChildPolicy bool
}

// UpdateUsageSpec is the update_lot_usage request payload (spec.md §6
// "update usage" schema).
type UpdateUsageSpec struct {
	LotName                 string   `json:"lot_name"`
	SelfGB                  *float64 `json:"self_GB,omitempty"`
	SelfObjects             *int64   `json:"self_objects,omitempty"`
	SelfGBBeingWritten      *float64 `json:"self_GB_being_written,omitempty"`
	SelfObjectsBeingWritten *int64   `json:"self_objects_being_written,omitempty"`
}

// UsageDirNode is one node of the update_lot_usage_by_dir request payload
// (spec.md §6 "update usage by dir" schema).
type UsageDirNode struct {
	Path                string         `json:"path"`
	SizeGB              float64        `json:"size_GB,omitempty"`
	NumObj              int64          `json:"num_obj,omitempty"`
	GBBeingWritten      float64        `json:"GB_being_written,omitempty"`
	ObjectsBeingWritten int64          `json:"objects_being_written,omitempty"`
	IncludesSubdirs     bool           `json:"includes_subdirs"`
	Subdirs             []UsageDirNode `json:"subdirs,omitempty"`
}

// LotJSON is the get_lot_as_json response shape.
type LotJSON struct {
	LotName               string          `json:"lot_name"`
	Owner                 string          `json:"owner"`
	Parents               []string        `json:"parents"`
	Children              []string        `json:"children,omitempty"`
	Paths                 []PathSpec      `json:"paths"`
	ManagementPolicyAttrs PolicyAttrsSpec `json:"management_policy_attrs"`
	Usage                 UsageJSON       `json:"usage"`
}

// UsageJSON is the LotUsage projection embedded in LotJSON and returned
// by get_lot_usage.
type UsageJSON struct {
	SelfGB                      float64 `json:"self_GB"`
	ChildrenGB                  float64 `json:"children_GB"`
	SelfObjects                 int64   `json:"self_objects"`
	ChildrenObjects             int64   `json:"children_objects"`
	SelfGBBeingWritten          float64 `json:"self_GB_being_written"`
	ChildrenGBBeingWritten      float64 `json:"children_GB_being_written"`
	SelfObjectsBeingWritten     int64   `json:"self_objects_being_written"`
	ChildrenObjectsBeingWritten int64   `json:"children_objects_being_written"`
}

func usageJSONFromModel(u lotstore.LotUsage) UsageJSON {
	return UsageJSON{
		SelfGB: u.SelfGB, ChildrenGB: u.ChildrenGB, SelfObjects: u.SelfObjects, ChildrenObjects: u.ChildrenObjects,
		SelfGBBeingWritten: u.SelfGBBeingWritten, ChildrenGBBeingWritten: u.ChildrenGBBeingWritten,
		SelfObjectsBeingWritten: u.SelfObjectsBeingWritten, ChildrenObjectsBeingWritten: u.ChildrenObjectsBeingWritten,
	}
}
