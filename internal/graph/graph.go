// Package graph implements the stateless traversals over the Parent edge
// table: ancestry/descent walks, cycle detection, insertion splicing, and
// the ownership checks the Facade uses to authorize mutations (spec.md
// §4.4). Every method operates within the caller's transaction; the
// package holds no state of its own.
package graph

import (
	"context"
	"sort"

	"github.com/pelicanplatform/lotman-go/internal/lotkind"
	"github.com/pelicanplatform/lotman-go/internal/lotrepo"
)

// Engine is a thin wrapper around a Repo, scoping every traversal to the
// caller's already-open transaction.
type Engine struct {
	repo *lotrepo.Repo
}

func New(repo *lotrepo.Repo) *Engine {
	return &Engine{repo: repo}
}

// CheckIfRoot reports whether name is its own parent.
func (e *Engine) CheckIfRoot(ctx context.Context, name string) (bool, error) {
	parents, err := e.repo.GetParents(ctx, name)
	if err != nil {
		return false, err
	}
	for _, p := range parents {
		if p == name {
			return true, nil
		}
	}
	return false, nil
}

// RecursiveParents returns every ancestor of name (direct and transitive),
// duplicate-free, in BFS order with ties broken by name. Self-loops
// terminate traversal rather than being walked as edges.
func (e *Engine) RecursiveParents(ctx context.Context, name string) ([]string, error) {
	return e.walk(ctx, name, e.repo.GetParents)
}

// RecursiveChildren returns every descendant of name (direct and
// transitive), duplicate-free, in BFS order with ties broken by name.
func (e *Engine) RecursiveChildren(ctx context.Context, name string) ([]string, error) {
	return e.walk(ctx, name, e.repo.GetChildren)
}

// RecursiveOwners returns the distinct set of owners across name and every
// ancestor of name, in deterministic order.
func (e *Engine) RecursiveOwners(ctx context.Context, name string) ([]string, error) {
	lots, err := e.RecursiveParents(ctx, name)
	if err != nil {
		return nil, err
	}
	lots = append([]string{name}, lots...)

	seen := make(map[string]bool)
	var owners []string
	for _, lot := range lots {
		o, err := e.repo.GetOwner(ctx, lot)
		if err != nil {
			continue
		}
		if !seen[o.Owner] {
			seen[o.Owner] = true
			owners = append(owners, o.Owner)
		}
	}
	sort.Strings(owners)
	return owners, nil
}

func (e *Engine) walk(ctx context.Context, start string, edges func(context.Context, string) ([]string, error)) ([]string, error) {
	visited := map[string]bool{start: true}
	queue := []string{start}
	var out []string

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		next, err := edges(ctx, cur)
		if err != nil {
			return nil, err
		}
		sort.Strings(next)

		for _, n := range next {
			if n == cur {
				// Self-loop: termination, not a traversal edge.
				continue
			}
			if visited[n] {
				continue
			}
			visited[n] = true
			out = append(out, n)
			queue = append(queue, n)
		}
	}
	return out, nil
}

// CycleCheck validates that inserting start with the given incoming
// (parents) and outgoing (children) edges keeps the graph acyclic: no
// ancestor walk from any parent reaches start, no proposed child is a
// proposed parent or one of its ancestors, no descendant walk from any
// child reaches start, and no proposed edge creates a non-root self-loop
// on a lot other than start itself.
func (e *Engine) CycleCheck(ctx context.Context, start string, parents, children []string) error {
	for _, p := range parents {
		if p == start {
			continue // the root self-loop is legal for start itself
		}
		ancestors, err := e.RecursiveParents(ctx, p)
		if err != nil {
			return err
		}
		if contains(ancestors, start) || p == start {
			return lotkind.New(lotkind.InvariantViolation, "cycle detected: "+start+" is already an ancestor of proposed parent "+p)
		}
		for _, c := range children {
			if c == p || contains(ancestors, c) {
				return lotkind.New(lotkind.InvariantViolation, "cycle detected: proposed child "+c+" is already an ancestor of proposed parent "+p)
			}
		}
	}

	for _, c := range children {
		if c == start {
			continue
		}
		descendants, err := e.RecursiveChildren(ctx, c)
		if err != nil {
			return err
		}
		if contains(descendants, start) {
			return lotkind.New(lotkind.InvariantViolation, "cycle detected: "+start+" is already a descendant of proposed child "+c)
		}
	}

	return nil
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// Splice implements the insertion-check invariant: when a new lot X is
// added with parent P and child C such that (P,C) is currently an edge,
// (P,C) is atomically replaced with (P,X) and (X,C).
func (e *Engine) Splice(ctx context.Context, newLot, parent, child string) error {
	children, err := e.repo.GetChildren(ctx, parent)
	if err != nil {
		return err
	}
	if !contains(children, child) {
		return nil // (P,C) isn't an edge; nothing to splice
	}
	if err := e.repo.RemoveParents(ctx, child, []string{parent}); err != nil {
		return err
	}
	if err := e.repo.StoreNewParents(ctx, newLot, []string{parent}); err != nil {
		return err
	}
	return e.repo.StoreNewParents(ctx, child, []string{newLot})
}

// CheckContextForParents authorizes a mutation touching the given parent
// targets: the caller must own at least one recursive ancestor of each
// target (or the target itself, when includeSelf is true). When
// forNewLot is true the targets don't exist as lots yet, so ownership of
// the target itself is never required or checked.
func (e *Engine) CheckContextForParents(ctx context.Context, caller string, targets []string, includeSelf, forNewLot bool) error {
	return e.checkOwnership(ctx, caller, targets, includeSelf, forNewLot)
}

// CheckContextForChildren is the children-side analogue of
// CheckContextForParents.
func (e *Engine) CheckContextForChildren(ctx context.Context, caller string, targets []string, includeSelf, forNewLot bool) error {
	return e.checkOwnership(ctx, caller, targets, includeSelf, forNewLot)
}

func (e *Engine) checkOwnership(ctx context.Context, caller string, targets []string, includeSelf, forNewLot bool) error {
	for _, target := range targets {
		candidates := []string{}
		if includeSelf && !forNewLot {
			candidates = append(candidates, target)
		}
		ancestors, err := e.RecursiveParents(ctx, target)
		if err != nil {
			return err
		}
		candidates = append(candidates, ancestors...)

		authorized := false
		for _, lot := range candidates {
			owner, err := e.repo.GetOwner(ctx, lot)
			if err != nil {
				continue
			}
			if owner.Owner == caller {
				authorized = true
				break
			}
		}
		if !authorized {
			return lotkind.New(lotkind.Unauthorized, "caller "+caller+" does not own the required ancestry of "+target)
		}
	}
	return nil
}

// Orphans returns the children of removed that would be left parentless
// if removed were deleted: those whose only parent is removed.
func (e *Engine) Orphans(ctx context.Context, removed string) ([]string, error) {
	children, err := e.repo.GetChildren(ctx, removed)
	if err != nil {
		return nil, err
	}

	var orphans []string
	for _, c := range children {
		parents, err := e.repo.GetParents(ctx, c)
		if err != nil {
			return nil, err
		}
		if len(parents) == 1 && parents[0] == removed {
			orphans = append(orphans, c)
		}
	}
	return orphans, nil
}
