// Package policy reports lots that violate a management policy
// attribute: past their expiration or deletion deadline, or over their
// opportunistic/dedicated GB or object-count restriction (spec.md §4.6).
package policy

import (
	"context"
	"time"

	"github.com/pelicanplatform/lotman-go/internal/graph"
	"github.com/pelicanplatform/lotman-go/internal/lotrepo"
	"github.com/pelicanplatform/lotman-go/internal/lotstore"
)

// Evaluator runs policy queries against the repository, using the graph
// engine to resolve recursive ancestor restrictions. Children usage, where
// requested, is read from the lot's stored children_* counters.
type Evaluator struct {
	repo  *lotrepo.Repo
	graph *graph.Engine
}

func New(repo *lotrepo.Repo, g *graph.Engine) *Evaluator {
	return &Evaluator{repo: repo, graph: g}
}

// GetLotsPastExp returns every lot whose expiration_time is at or before
// now; with recursive, also those with a recursive ancestor past
// expiration.
func (e *Evaluator) GetLotsPastExp(ctx context.Context, recursive bool) ([]string, error) {
	return e.deadlinePast(ctx, recursive, func(a lotstore.ManagementPolicyAttributes) int64 { return a.ExpirationTime })
}

// GetLotsPastDel is the deletion_time analogue of GetLotsPastExp.
func (e *Evaluator) GetLotsPastDel(ctx context.Context, recursive bool) ([]string, error) {
	return e.deadlinePast(ctx, recursive, func(a lotstore.ManagementPolicyAttributes) int64 { return a.DeletionTime })
}

func (e *Evaluator) deadlinePast(ctx context.Context, recursive bool, field func(lotstore.ManagementPolicyAttributes) int64) ([]string, error) {
	now := time.Now().UnixMilli()

	lots, err := e.repo.ListAllLots(ctx)
	if err != nil {
		return nil, err
	}

	var hits []string
	for _, name := range lots {
		past, err := e.isPastDeadline(ctx, name, recursive, now, field)
		if err != nil {
			return nil, err
		}
		if past {
			hits = append(hits, name)
		}
	}
	return hits, nil
}

func (e *Evaluator) isPastDeadline(ctx context.Context, name string, recursive bool, now int64, field func(lotstore.ManagementPolicyAttributes) int64) (bool, error) {
	lots := []string{name}
	if recursive {
		ancestors, err := e.graph.RecursiveParents(ctx, name)
		if err != nil {
			return false, err
		}
		lots = append(lots, ancestors...)
	}

	for _, lot := range lots {
		attrs, err := e.repo.GetPolicyAttributes(ctx, lot)
		if err != nil {
			continue
		}
		deadline := field(attrs)
		if deadline >= 0 && deadline <= now {
			return true, nil
		}
	}
	return false, nil
}

// usageCounter selects one of the numeric usage fields GetLotsPastOpp /
// GetLotsPastDed / GetLotsPastObj compares against a restriction.
type usageCounter func(lotstore.LotUsage) float64

func selfGB(u lotstore.LotUsage) float64    { return u.SelfGB }
func totalGB(u lotstore.LotUsage) float64   { return u.SelfGB + u.ChildrenGB }
func selfObj(u lotstore.LotUsage) float64   { return float64(u.SelfObjects) }
func totalObj(u lotstore.LotUsage) float64  { return float64(u.SelfObjects + u.ChildrenObjects) }

func (e *Evaluator) usageCounterFor(recursiveChildren bool, isObjectCount bool) usageCounter {
	switch {
	case isObjectCount && recursiveChildren:
		return totalObj
	case isObjectCount && !recursiveChildren:
		return selfObj
	case !isObjectCount && recursiveChildren:
		return totalGB
	default:
		return selfGB
	}
}
