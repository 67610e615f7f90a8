package repo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nyxforge/gitcore/pkg/index"
)

// Reset unstages paths by restoring their index entries to HEAD's
// version, or removing them from the index if HEAD has no such path. It
// never touches the working tree. An empty paths list resets the whole
// index to HEAD.
func (r *Repo) Reset(paths []string) error {
	idx, err := r.ReadIndex()
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	headEntries, err := r.headTreeEntries()
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	targets, err := r.resolveResetTargets(paths, idx, headEntries)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	for _, p := range targets {
		if headEntry, ok := headEntries[p]; ok {
			// Force a content rehash on the next status check, since the
			// working copy may not match the restored HEAD entry's stat.
			idx.SetEntry(index.Entry{
				Name: p,
				Hash: headEntry.Hash,
				Mode: headEntry.Mode,
			})
			continue
		}
		idx.Unstage(p)
	}

	if err := r.WriteIndex(idx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	r.invalidateStatusCache()
	return nil
}

func (r *Repo) resolveResetTargets(paths []string, idx *index.Index, head map[string]index.Entry) ([]string, error) {
	all := make(map[string]struct{}, len(idx.Entries)+len(head))
	for _, e := range idx.Entries {
		all[e.Name] = struct{}{}
	}
	for p := range head {
		all[p] = struct{}{}
	}

	if len(paths) == 0 {
		return sortedPathSet(all), nil
	}

	targets := make(map[string]struct{})
	for _, raw := range paths {
		rel, err := r.repoRelPath(raw)
		if err != nil {
			return nil, err
		}
		rel = strings.TrimSuffix(rel, "/")

		matched := false
		if _, ok := all[rel]; ok {
			targets[rel] = struct{}{}
			matched = true
		}
		prefix := rel + "/"
		for p := range all {
			if strings.HasPrefix(p, prefix) {
				targets[p] = struct{}{}
				matched = true
			}
		}
		if !matched {
			return nil, fmt.Errorf("path %q did not match staged or HEAD entries", raw)
		}
	}
	return sortedPathSet(targets), nil
}

func sortedPathSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
