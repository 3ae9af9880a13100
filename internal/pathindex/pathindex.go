// Package pathindex resolves a storage directory to the lot that claims
// it: the longest matching prefix in the Path table, with a deterministic
// tie-break (spec.md §4.3). It keeps an in-memory cache backed by a
// compressed trie so repeated resolution during a directory-tree usage
// update doesn't round-trip to the database per node.
package pathindex

import (
	"context"
	"sort"
	"strings"
	"sync"

	trie "github.com/derekparker/trie/v3"

	"github.com/pelicanplatform/lotman-go/internal/lotrepo"
	"github.com/pelicanplatform/lotman-go/internal/lotstore"
)

// Index is the in-memory cache. It is safe for concurrent reads once
// hydrated; writes (Put/Remove) take an exclusive lock. Callers are
// responsible for keeping it consistent with the durable Path table by
// calling Put/Remove alongside the corresponding lotrepo writes within the
// same transaction's success path.
type Index struct {
	mu sync.RWMutex
	t  *trie.Trie
	// rows indexed by canonical path, for attribute lookup (recursive flag,
	// owning lot) once the trie has told us a key exists.
	rows map[string]lotstore.Path
}

// New returns an empty index. Call Hydrate to load it from the store.
func New() *Index {
	return &Index{t: trie.New(), rows: make(map[string]lotstore.Path)}
}

// Hydrate loads every path row from the repository into the cache,
// replacing whatever the index currently holds.
func (idx *Index) Hydrate(ctx context.Context, repo *lotrepo.Repo) error {
	rows, err := repo.AllPaths(ctx)
	if err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.t = trie.New()
	idx.rows = make(map[string]lotstore.Path, len(rows))
	for _, r := range rows {
		idx.t.Add(r.Path, r.LotName)
		idx.rows[r.Path] = r
	}
	return nil
}

// Put records (or overwrites) one path claim in the cache.
func (idx *Index) Put(p lotstore.Path) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.t.Add(p.Path, p.LotName)
	idx.rows[p.Path] = p
}

// Remove drops a path claim from the cache.
func (idx *Index) Remove(path string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.t.Remove(path)
	delete(idx.rows, path)
}

// Lookup returns the exact path row for the canonical path p, if one
// exists, without walking ancestors. Used by UsageEngine to determine
// whether a directory's own recursive flag is set (spec.md §4.5).
func (idx *Index) Lookup(p string) (Match, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	row, ok := idx.rows[p]
	if !ok {
		return Match{}, false
	}
	return Match{LotName: row.LotName, Path: row.Path, Recursive: row.Recursive}, true
}

// Canonicalize appends a single trailing slash if absent, the storage form
// every Path row and lookup key uses (spec.md §4.2).
func Canonicalize(dir string) string {
	if strings.HasSuffix(dir, "/") {
		return dir
	}
	return dir + "/"
}

// Match is one resolved path claim: the lot owning it, the matched path
// prefix, and whether that claim is recursive.
type Match struct {
	LotName   string
	Path      string
	Recursive bool
}

// GetLotsFromDir resolves the lot owning dir (spec.md §4.3):
//  1. the longest strict-prefix (or exact) match among recursive=true rows,
//     or an exact match on a non-recursive row;
//  2. ties on match length broken by recursive-over-non-recursive, then by
//     lot-name lexicographic order;
//  3. if recursive is true, additionally every lot whose path starts with
//     the canonical form of dir (the subtree).
//
// Returns the primary match (zero value if none) and, when recursive is
// requested, the full subtree match list including the primary.
func (idx *Index) GetLotsFromDir(dir string, recursive bool) (Match, []Match) {
	p := Canonicalize(dir)

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	best, ok := idx.bestMatchLocked(p)
	if !ok {
		return Match{}, nil
	}

	if !recursive {
		return best, nil
	}

	subtreePaths := idx.t.PrefixSearch(p)
	matches := make([]Match, 0, len(subtreePaths)+1)
	if best.Path != p {
		// The primary match is an ancestor claim, outside the subtree of p.
		matches = append(matches, best)
	}
	for _, sp := range subtreePaths {
		row, ok := idx.rows[sp]
		if !ok {
			continue
		}
		matches = append(matches, Match{LotName: row.LotName, Path: row.Path, Recursive: row.Recursive})
	}
	sort.Slice(matches, func(i, j int) bool {
		if len(matches[i].Path) != len(matches[j].Path) {
			return len(matches[i].Path) < len(matches[j].Path)
		}
		return matches[i].LotName < matches[j].LotName
	})
	return best, matches
}

// bestMatchLocked finds the single best match for p: the longest prefix
// among recursive rows, or an exact non-recursive row, applying the
// recursive-beats-non-recursive then lexicographic tie-break on equal
// match length. Must be called with idx.mu held (read or write).
func (idx *Index) bestMatchLocked(p string) (Match, bool) {
	var candidates []Match

	if row, ok := idx.rows[p]; ok {
		candidates = append(candidates, Match{LotName: row.LotName, Path: row.Path, Recursive: row.Recursive})
	}

	// Walk every slash-delimited ancestor prefix of p, checking for a
	// recursive claim; non-recursive claims only ever match exactly (the
	// exact-match check above already covers that case).
	for _, prefix := range ancestorPrefixes(p) {
		row, ok := idx.rows[prefix]
		if !ok || !row.Recursive {
			continue
		}
		candidates = append(candidates, Match{LotName: row.LotName, Path: row.Path, Recursive: row.Recursive})
	}

	if len(candidates) == 0 {
		return Match{}, false
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if len(c.Path) > len(best.Path) {
			best = c
			continue
		}
		if len(c.Path) == len(best.Path) {
			if c.Recursive && !best.Recursive {
				best = c
				continue
			}
			if c.Recursive == best.Recursive && c.LotName < best.LotName {
				best = c
			}
		}
	}
	return best, true
}

// ancestorPrefixes returns every slash-terminated prefix of p, shortest
// first, excluding p itself (e.g. "/a/b/c/" -> "/", "/a/", "/a/b/").
func ancestorPrefixes(p string) []string {
	var prefixes []string
	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			prefixes = append(prefixes, p[:i+1])
		}
	}
	if len(prefixes) > 0 {
		prefixes = prefixes[:len(prefixes)-1]
	}
	return prefixes
}
