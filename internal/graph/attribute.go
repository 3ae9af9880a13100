package graph

import (
	"context"

	"github.com/pelicanplatform/lotman-go/internal/lotstore"
)

// AttributeKey names one field of ManagementPolicyAttributes that
// GetRestrictingAttribute can resolve across a lot's ancestry.
type AttributeKey int

const (
	AttrDedicatedGB AttributeKey = iota
	AttrOpportunisticGB
	AttrMaxNumObjects
	AttrCreationTime
	AttrExpirationTime
	AttrDeletionTime
)

// unsetSentinel reports whether a value should be skipped when resolving
// the most restrictive attribute: non-positive capacities and the -1
// deadline sentinel both mean "no restriction configured here".
func unsetSentinel(key AttributeKey, value float64) bool {
	switch key {
	case AttrDedicatedGB, AttrOpportunisticGB:
		return value <= 0
	case AttrMaxNumObjects, AttrExpirationTime, AttrDeletionTime:
		return value < 0
	default:
		return false // creation_time has no sentinel
	}
}

func attrValue(key AttributeKey, a lotstore.ManagementPolicyAttributes) float64 {
	switch key {
	case AttrDedicatedGB:
		return a.DedicatedGB
	case AttrOpportunisticGB:
		return a.OpportunisticGB
	case AttrMaxNumObjects:
		return float64(a.MaxNumObjects)
	case AttrCreationTime:
		return float64(a.CreationTime)
	case AttrExpirationTime:
		return float64(a.ExpirationTime)
	case AttrDeletionTime:
		return float64(a.DeletionTime)
	default:
		return 0
	}
}

// GetRestrictingAttribute resolves the most restrictive value of key over
// name and, if recursive, all of its ancestors. Capacities and deadlines
// (max_num_objects, expiration_time, deletion_time, dedicated/opportunistic
// GB) take the minimum of the configured values; creation_time takes the
// maximum. Sentinel/unset values are skipped. Returns ok=false if no
// ancestor in scope has the attribute configured.
func (e *Engine) GetRestrictingAttribute(ctx context.Context, name string, key AttributeKey, recursive bool) (float64, bool, error) {
	lots := []string{name}
	if recursive {
		ancestors, err := e.RecursiveParents(ctx, name)
		if err != nil {
			return 0, false, err
		}
		lots = append(lots, ancestors...)
	}

	var best float64
	found := false
	for _, lot := range lots {
		attrs, err := e.repo.GetPolicyAttributes(ctx, lot)
		if err != nil {
			continue
		}
		v := attrValue(key, attrs)
		if unsetSentinel(key, v) {
			continue
		}
		if !found {
			best, found = v, true
			continue
		}
		if key == AttrCreationTime {
			if v > best {
				best = v
			}
		} else if v < best {
			best = v
		}
	}
	return best, found, nil
}
