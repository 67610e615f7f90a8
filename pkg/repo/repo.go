// Package repo ties the object store, reference store, and staging index
// together into an opened working repository: init/open, commit, status,
// branch, checkout, tag, reset, merge, and gc.
package repo

import (
	"sync"

	"github.com/nyxforge/gitcore/pkg/index"
	"github.com/nyxforge/gitcore/pkg/object"
	"github.com/nyxforge/gitcore/pkg/refstore"
)

// Repo represents an opened repository.
type Repo struct {
	RootDir string         // working directory root
	GitDir  string         // .git/ directory
	Store   *object.Store  // content-addressed object store
	Refs    *refstore.Store // HEAD, refs/, reflogs

	statusCacheMu sync.Mutex
	statusCache   map[string]statusCacheEntry
}

// statusCacheEntry memoizes the blob hash computed for a working-tree file
// the last time its stat fingerprint was seen, so a repeated Status call
// within the same process does not re-read unchanged file content.
type statusCacheEntry struct {
	fingerprint index.Stat
	blobHash    object.Hash
}

func (r *Repo) invalidateStatusCache() {
	r.statusCacheMu.Lock()
	r.statusCache = nil
	r.statusCacheMu.Unlock()
}

// indexPath returns the path to the repository's staging index file.
func (r *Repo) indexPath() string {
	return r.GitDir + "/index"
}

// ReadIndex loads the staging index, returning an empty one if it does
// not exist yet (a freshly initialized repository).
func (r *Repo) ReadIndex() (*index.Index, error) {
	return readIndexFile(r.indexPath())
}

// WriteIndex atomically persists idx to the repository's index file.
func (r *Repo) WriteIndex(idx *index.Index) error {
	return writeIndexFile(r.indexPath(), idx)
}
