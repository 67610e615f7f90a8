package object

import (
	"fmt"
	"os"
	"time"
)

// PruneUnreachable removes loose objects that are absent from keep and
// whose file modification time is at or before cutoff. keep is normally
// a reachable set seeded from ref tips and reflog entries, unioned with
// every hash the staging index currently references, so an object never
// disappears out from under a pending commit. Objects already folded
// into a pack are untouched here; PruneLoose reclaims those once a
// caller has repacked.
func (s *Store) PruneUnreachable(keep map[Hash]struct{}, cutoff time.Time) (int, error) {
	looseHashes, err := s.listLooseObjectHashes()
	if err != nil {
		return 0, err
	}

	pruned := 0
	for _, h := range looseHashes {
		if _, ok := keep[h]; ok {
			continue
		}
		path := s.loosePath(h)
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return pruned, fmt.Errorf("prune unreachable %s: stat: %w", h, err)
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return pruned, fmt.Errorf("prune unreachable %s: %w", h, err)
		}
		// Drop any cached copy so Exists and Get stop serving the object.
		s.cache.mu.Lock()
		if e, ok := s.cache.entries[h]; ok {
			s.cache.order.remove(e.node)
			delete(s.cache.entries, h)
			s.cache.size -= int64(len(e.payload))
		}
		s.cache.mu.Unlock()
		pruned++
	}
	return pruned, nil
}
