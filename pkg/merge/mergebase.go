// Package merge implements the three-way merge engine: merge-base
// discovery over the commit graph, and a tree-level merge that walks
// base/ours/theirs together, classifying each path and delegating
// conflicting file content to pkg/diff3.
package merge

import (
	"errors"
	"fmt"

	"github.com/nyxforge/gitcore/pkg/object"
)

// ErrNoMergeBase is returned when two commits share no common ancestor.
var ErrNoMergeBase = errors.New("merge: no common ancestor")

const maxMergeBaseSteps = 1_000_000

// FindBase finds the merge base of a and b: a breadth-first walk marks
// every commit reachable from a and from b; a commit in both sets that
// is the parent of another commit in both sets has a common descendant
// and is discarded. Among the remaining common ancestors the newest
// committer timestamp wins, ties broken by the smaller OID.
func FindBase(store *object.Store, a, b object.Hash) (object.Hash, error) {
	if a == b {
		return a, nil
	}

	reachA, err := reachableCommits(store, a)
	if err != nil {
		return object.Hash{}, err
	}
	reachB, err := reachableCommits(store, b)
	if err != nil {
		return object.Hash{}, err
	}

	common := make(map[object.Hash]*object.Commit)
	dominated := make(map[object.Hash]struct{})
	for h := range reachA {
		if _, ok := reachB[h]; !ok {
			continue
		}
		c, err := store.GetCommit(h)
		if err != nil {
			return object.Hash{}, fmt.Errorf("merge base: read %s: %w", h, err)
		}
		common[h] = c
		for _, p := range c.Parents {
			dominated[p] = struct{}{}
		}
	}

	var best object.Hash
	var bestCommit *object.Commit
	found := false
	for h, c := range common {
		if _, ok := dominated[h]; ok {
			continue
		}
		if !found || isBetterBase(c, h, bestCommit, best) {
			best, bestCommit, found = h, c, true
		}
	}

	if !found {
		return object.Hash{}, ErrNoMergeBase
	}
	return best, nil
}

func isBetterBase(c *object.Commit, h object.Hash, best *object.Commit, bestHash object.Hash) bool {
	if c.Committer.Timestamp != best.Committer.Timestamp {
		return c.Committer.Timestamp > best.Committer.Timestamp
	}
	return h.String() < bestHash.String()
}

// IsAncestor reports whether ancestor is reachable from descendant by
// following parent links, ancestor == descendant included.
func IsAncestor(store *object.Store, ancestor, descendant object.Hash) (bool, error) {
	if ancestor == descendant {
		return true, nil
	}
	reach, err := reachableCommits(store, descendant)
	if err != nil {
		return false, err
	}
	_, ok := reach[ancestor]
	return ok, nil
}

func reachableCommits(store *object.Store, start object.Hash) (map[object.Hash]struct{}, error) {
	visited := map[object.Hash]struct{}{start: {}}
	queue := []object.Hash{start}
	steps := 0

	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]

		steps++
		if steps > maxMergeBaseSteps {
			return nil, fmt.Errorf("merge base: traversal exceeded %d commits", maxMergeBaseSteps)
		}

		c, err := store.GetCommit(h)
		if err != nil {
			return nil, fmt.Errorf("merge base: read %s: %w", h, err)
		}
		for _, p := range c.Parents {
			if _, seen := visited[p]; seen {
				continue
			}
			visited[p] = struct{}{}
			queue = append(queue, p)
		}
	}
	return visited, nil
}
