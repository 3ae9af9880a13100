package lotrepo

import "context"

// DynamicUpdate is a single data-driven write built at runtime for cases
// where the column touched isn't known until the call site resolves which
// of several fields it means to update — UsageEngine's UpdateSelfUsage
// picks one of four self-* columns this way. Rather than branch over
// update kinds with one UPDATE statement per branch, callers build one of
// these, naming only the column(s) in play, and hand it to
// ExecuteDynamicUpdate (spec.md §4.2, §9).
//
// The three param maps are positional: binding index i of the prepared
// statement is filled from whichever of StringParams/IntParams/DoubleParams
// has that index as a key. A single source value may be referenced by more
// than one binding index (e.g. the same lot name bound into both a WHERE
// clause and a nested subquery).
type DynamicUpdate struct {
	SQL          string
	StringParams map[int]string
	IntParams    map[int]int64
	DoubleParams map[int]float64
}

// ExecuteDynamicUpdate runs the statement through the cache, resolving
// bindings in positional order across the three typed maps.
func (r *Repo) ExecuteDynamicUpdate(ctx context.Context, u DynamicUpdate) error {
	maxIdx := 0
	for i := range u.StringParams {
		if i > maxIdx {
			maxIdx = i
		}
	}
	for i := range u.IntParams {
		if i > maxIdx {
			maxIdx = i
		}
	}
	for i := range u.DoubleParams {
		if i > maxIdx {
			maxIdx = i
		}
	}

	args := make([]any, 0, maxIdx)
	for i := 1; i <= maxIdx; i++ {
		switch {
		case hasKey(u.StringParams, i):
			args = append(args, u.StringParams[i])
		case hasKey(u.IntParams, i):
			args = append(args, u.IntParams[i])
		case hasKey(u.DoubleParams, i):
			args = append(args, u.DoubleParams[i])
		default:
			args = append(args, nil)
		}
	}

	_, err := r.exec(ctx, u.SQL, args...)
	return err
}

func hasKey[V any](m map[int]V, k int) bool {
	_, ok := m[k]
	return ok
}
