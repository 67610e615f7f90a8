package repo

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/nyxforge/gitcore/pkg/index"
	"github.com/nyxforge/gitcore/pkg/object"
)

// FileStatus represents the state of a file in the working tree or index.
type FileStatus int

const (
	StatusClean     FileStatus = iota // matches between the compared areas
	StatusNew                         // in the index, not in HEAD's tree
	StatusModified                    // in the index, different from HEAD
	StatusConflict                    // unresolved merge conflict in the index
	StatusDeleted                     // present in one area, absent in the other
	StatusUntracked                   // in the working tree, not in the index
)

// StatusEntry records the status of a single path.
type StatusEntry struct {
	Path        string
	IndexStatus FileStatus // index vs HEAD
	WorkStatus  FileStatus // working tree vs index
}

// Status computes the working tree status for the repository:
//  1. Read the staging index.
//  2. Walk the working directory (skipping .git/ and ignored paths).
//  3. Compare working tree files against index entries.
//  4. Compare index entries against the HEAD tree, if one exists.
func (r *Repo) Status() ([]StatusEntry, error) {
	idx, err := r.ReadIndex()
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	ic := NewIgnoreChecker(r.RootDir)

	workFiles := make(map[string]bool)
	err = filepath.WalkDir(r.RootDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(r.RootDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if ic.IsIgnored(rel) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			workFiles[rel] = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("status: walk: %w", err)
	}

	staged := make(map[string]index.Entry)
	conflicted := make(map[string]bool)
	for _, e := range idx.Entries {
		if e.Stage == index.StageMerged {
			staged[e.Name] = e
		} else {
			conflicted[e.Name] = true
		}
	}

	result := make(map[string]*StatusEntry)

	for path := range workFiles {
		if conflicted[path] {
			result[path] = &StatusEntry{Path: path, WorkStatus: StatusConflict}
			continue
		}
		se, inIndex := staged[path]
		if !inIndex {
			result[path] = &StatusEntry{Path: path, IndexStatus: StatusUntracked, WorkStatus: StatusUntracked}
			continue
		}

		workStatus := StatusClean
		modified, err := r.worktreeModified(path, se)
		if err != nil {
			return nil, fmt.Errorf("status: %w", err)
		}
		if modified {
			workStatus = StatusModified
		}
		result[path] = &StatusEntry{Path: path, WorkStatus: workStatus}
	}

	for path := range staged {
		if _, onDisk := workFiles[path]; !onDisk {
			entry, ok := result[path]
			if !ok {
				entry = &StatusEntry{Path: path}
				result[path] = entry
			}
			entry.WorkStatus = StatusDeleted
		}
	}
	for path := range conflicted {
		if _, onDisk := workFiles[path]; !onDisk {
			entry, ok := result[path]
			if !ok {
				entry = &StatusEntry{Path: path}
				result[path] = entry
			}
			entry.WorkStatus = StatusConflict
		}
	}

	headEntries, err := r.headTreeEntries()
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}

	for path, se := range staged {
		entry, ok := result[path]
		if !ok {
			entry = &StatusEntry{Path: path}
			result[path] = entry
		}
		headEntry, inHead := headEntries[path]
		switch {
		case !inHead:
			entry.IndexStatus = StatusNew
		case headEntry.Hash != se.Hash || headEntry.Mode != se.Mode:
			entry.IndexStatus = StatusModified
		default:
			entry.IndexStatus = StatusClean
		}
	}
	for path := range conflicted {
		entry, ok := result[path]
		if !ok {
			entry = &StatusEntry{Path: path}
			result[path] = entry
		}
		entry.IndexStatus = StatusConflict
	}
	for path := range headEntries {
		if _, inIndex := staged[path]; inIndex {
			continue
		}
		if conflicted[path] {
			continue
		}
		entry, ok := result[path]
		if !ok {
			entry = &StatusEntry{Path: path}
			result[path] = entry
		}
		entry.IndexStatus = StatusDeleted
	}

	entries := make([]StatusEntry, 0, len(result))
	for _, e := range result {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// worktreeModified reports whether path's on-disk content differs from
// its staged entry, trusting a matching stat fingerprint and otherwise
// re-hashing (and caching the result for this process's lifetime).
func (r *Repo) worktreeModified(path string, se index.Entry) (bool, error) {
	absPath := filepath.Join(r.RootDir, filepath.FromSlash(path))
	st, err := index.StatPath(absPath)
	if err != nil {
		return false, fmt.Errorf("stat %q: %w", path, err)
	}

	rehash := func() (object.Hash, error) {
		r.statusCacheMu.Lock()
		if cached, ok := r.statusCache[path]; ok && cached.fingerprint == st {
			r.statusCacheMu.Unlock()
			return cached.blobHash, nil
		}
		r.statusCacheMu.Unlock()

		data, err := os.ReadFile(absPath)
		if err != nil {
			return object.Hash{}, err
		}
		h := object.HashObject(object.TypeBlob, data)

		r.statusCacheMu.Lock()
		if r.statusCache == nil {
			r.statusCache = make(map[string]statusCacheEntry)
		}
		r.statusCache[path] = statusCacheEntry{fingerprint: st, blobHash: h}
		r.statusCacheMu.Unlock()
		return h, nil
	}

	idx := &index.Index{Entries: []index.Entry{se}}
	return idx.IsModified(path, st, rehash)
}

// headTreeEntries flattens HEAD's tree into path -> Entry. Returns an
// empty map if there are no commits yet.
func (r *Repo) headTreeEntries() (map[string]index.Entry, error) {
	headHash, err := r.Refs.Resolve("HEAD")
	if err != nil {
		return map[string]index.Entry{}, nil
	}
	commit, err := r.Store.GetCommit(headHash)
	if err != nil {
		return nil, fmt.Errorf("read HEAD commit: %w", err)
	}
	flat, err := index.ReadTree(r.Store, commit.Tree)
	if err != nil {
		return nil, fmt.Errorf("flatten HEAD tree: %w", err)
	}

	out := make(map[string]index.Entry, len(flat))
	for _, e := range flat {
		out[e.Name] = e
	}
	return out, nil
}
