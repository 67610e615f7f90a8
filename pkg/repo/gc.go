package repo

import (
	"fmt"
	"time"

	"github.com/nyxforge/gitcore/pkg/object"
)

// DefaultGCSafetyWindow is how long an unreachable loose object survives
// before GC deletes it, giving a concurrent writer (or a ref update still
// mid-flight) room to make it reachable again before it disappears.
const DefaultGCSafetyWindow = 14 * 24 * time.Hour

// GCResult summarizes a GC/repack run.
type GCResult struct {
	Packed            GCPacked
	Pruned            int // loose objects removed after packing (already duplicated in a pack)
	PrunedUnreachable int // loose objects removed because they were unreachable and past the safety window
}

// GCPacked mirrors object.GCSummary, named at the repo layer so callers
// don't need to import pkg/object just to print a gc summary.
type GCPacked struct {
	PackedObjects int
	PackFile      string
	IndexFile     string
}

// GC first deletes loose objects that are both unreachable from every
// ref/reflog tip and older than window (an object still named by the
// staging index is kept regardless of reachability, since a pending
// `add` may be the only thing pointing at it), then packs whatever loose
// objects remain into a new pack file and removes the now redundant
// loose copies. Pruning runs before packing so an expired unreachable
// object is deleted outright instead of being swept into the pack.
//
// Pass window <= 0 to use DefaultGCSafetyWindow.
func (r *Repo) GC(window time.Duration) (*GCResult, error) {
	if window <= 0 {
		window = DefaultGCSafetyWindow
	}

	keep, err := r.reachableKeepSet()
	if err != nil {
		return nil, fmt.Errorf("gc: %w", err)
	}
	prunedUnreachable, err := r.Store.PruneUnreachable(keep, time.Now().Add(-window))
	if err != nil {
		return nil, fmt.Errorf("gc: %w", err)
	}

	summary, err := r.Store.GC()
	if err != nil {
		return nil, err
	}
	pruned, err := r.Store.PruneLoose()
	if err != nil {
		return nil, err
	}

	return &GCResult{
		Packed: GCPacked{
			PackedObjects: summary.PackedObjects,
			PackFile:      summary.PackFile,
			IndexFile:     summary.IndexFile,
		},
		Pruned:            pruned,
		PrunedUnreachable: prunedUnreachable,
	}, nil
}

// reachableKeepSet computes the set of objects GC must not delete: every
// object reachable from a current ref tip or a reflog tip (a ref's past
// values, which still need to resolve while a reflog file records them),
// unioned with every blob the staging index currently references.
func (r *Repo) reachableKeepSet() (map[object.Hash]struct{}, error) {
	refs, err := r.Refs.List("refs/")
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	roots := make([]object.Hash, 0, len(refs))
	for _, h := range refs {
		roots = append(roots, h)
	}
	if head, err := r.Refs.Resolve("HEAD"); err == nil {
		roots = append(roots, head)
	}

	tips, err := r.Refs.AllTips()
	if err != nil {
		return nil, fmt.Errorf("reflog tips: %w", err)
	}
	roots = append(roots, tips...)

	keep, err := r.Store.ReachableSet(roots)
	if err != nil {
		return nil, fmt.Errorf("reachable set: %w", err)
	}

	idx, err := r.ReadIndex()
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	for _, e := range idx.Entries {
		keep[e.Hash] = struct{}{}
	}

	return keep, nil
}

// Repack compacts the ref namespace's loose refs into packed-refs, the
// ref-store counterpart to packing loose objects.
func (r *Repo) Repack() error {
	return r.Refs.PackRefs()
}
