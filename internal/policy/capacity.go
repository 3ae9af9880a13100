package policy

import (
	"context"

	"github.com/pelicanplatform/lotman-go/internal/graph"
)

// GetLotsPastOpp returns every lot whose opportunistic-GB usage exceeds
// its opportunistic_GB restriction. recursiveQuota takes the restriction
// from the most-restrictive recursive ancestor instead of the lot alone;
// recursiveChildren includes descendant usage in the comparison.
func (e *Evaluator) GetLotsPastOpp(ctx context.Context, recursiveQuota, recursiveChildren bool) ([]string, error) {
	return e.capacityPast(ctx, graph.AttrOpportunisticGB, recursiveQuota, recursiveChildren, false)
}

// GetLotsPastDed is the dedicated-GB analogue of GetLotsPastOpp.
func (e *Evaluator) GetLotsPastDed(ctx context.Context, recursiveQuota, recursiveChildren bool) ([]string, error) {
	return e.capacityPast(ctx, graph.AttrDedicatedGB, recursiveQuota, recursiveChildren, false)
}

// GetLotsPastObj is the object-count analogue of GetLotsPastOpp.
func (e *Evaluator) GetLotsPastObj(ctx context.Context, recursiveQuota, recursiveChildren bool) ([]string, error) {
	return e.capacityPast(ctx, graph.AttrMaxNumObjects, recursiveQuota, recursiveChildren, true)
}

func (e *Evaluator) capacityPast(ctx context.Context, key graph.AttributeKey, recursiveQuota, recursiveChildren, isObjectCount bool) ([]string, error) {
	lots, err := e.repo.ListAllLots(ctx)
	if err != nil {
		return nil, err
	}
	counter := e.usageCounterFor(recursiveChildren, isObjectCount)

	var hits []string
	for _, name := range lots {
		restriction, ok, err := e.graph.GetRestrictingAttribute(ctx, name, key, recursiveQuota)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		usage, err := e.repo.GetUsage(ctx, name)
		if err != nil {
			return nil, err
		}
		if counter(usage) > restriction {
			hits = append(hits, name)
		}
	}
	return hits, nil
}
