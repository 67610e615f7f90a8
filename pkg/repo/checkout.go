package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nyxforge/gitcore/pkg/index"
	"github.com/nyxforge/gitcore/pkg/object"
)

// Checkout switches the working directory to the state of target, which
// may be a branch name or a raw commit hash.
//
//  1. Refuse if the working tree has uncommitted changes.
//  2. Resolve target: a branch name first, then a raw hash.
//  3. Read the target commit and flatten its tree.
//  4. Remove every currently tracked file not present in the target tree.
//  5. Write every file from the target tree to the working directory.
//  6. Replace the index with entries matching the target tree.
//  7. Update HEAD (symbolic ref for a branch, raw hash when detached).
func (r *Repo) Checkout(target string) error {
	if err := r.ensureClean(); err != nil {
		return fmt.Errorf("checkout: %w", err)
	}

	isBranch := false
	var targetHash object.Hash
	if h, err := r.Refs.Resolve("refs/heads/" + target); err == nil {
		targetHash, isBranch = h, true
	} else {
		h, perr := object.ParseHash(target)
		if perr != nil {
			return fmt.Errorf("checkout: %q is not a branch or commit hash", target)
		}
		targetHash = h
	}

	commit, err := r.Store.GetCommit(targetHash)
	if err != nil {
		return fmt.Errorf("checkout: read commit %s: %w", targetHash, err)
	}
	targetFiles, err := index.ReadTree(r.Store, commit.Tree)
	if err != nil {
		return fmt.Errorf("checkout: flatten target tree: %w", err)
	}
	targetMap := make(map[string]index.Entry, len(targetFiles))
	for _, f := range targetFiles {
		targetMap[f.Name] = f
	}

	current := r.trackedFiles()
	for path := range current {
		if _, keep := targetMap[path]; keep {
			continue
		}
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(path))
		if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("checkout: remove %q: %w", path, err)
		}
		r.removeEmptyParents(filepath.Dir(absPath))
	}

	newIdx := index.New()
	for _, f := range targetFiles {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(f.Name))
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return fmt.Errorf("checkout: mkdir for %q: %w", f.Name, err)
		}
		blob, err := r.Store.GetBlob(f.Hash)
		if err != nil {
			return fmt.Errorf("checkout: read blob for %q: %w", f.Name, err)
		}
		if err := os.WriteFile(absPath, blob.Data, filePermFromMode(f.Mode)); err != nil {
			return fmt.Errorf("checkout: write %q: %w", f.Name, err)
		}

		st, err := index.StatPath(absPath)
		if err != nil {
			return fmt.Errorf("checkout: stat %q: %w", f.Name, err)
		}
		newIdx.SetEntry(index.EntryFromStat(f.Name, f.Hash, st))
	}
	if err := r.WriteIndex(newIdx); err != nil {
		return fmt.Errorf("checkout: %w", err)
	}

	if isBranch {
		if err := r.Refs.SetSymbolic("HEAD", "refs/heads/"+target); err != nil {
			return fmt.Errorf("checkout: update HEAD: %w", err)
		}
	} else {
		headPath := filepath.Join(r.GitDir, "HEAD")
		if err := os.WriteFile(headPath, []byte(targetHash.String()+"\n"), 0o644); err != nil {
			return fmt.Errorf("checkout: update HEAD: %w", err)
		}
	}

	r.invalidateStatusCache()
	return nil
}

// POSIX stat format bits (S_IFMT/S_IFLNK), distinct from os.FileMode's bit
// encoding — see pkg/index/ops.go for the same constants used on write.
const (
	modeFmtMask = 0o170000
	modeFmtLnk  = 0o120000
)

func filePermFromMode(mode uint32) os.FileMode {
	if mode&modeFmtMask == modeFmtLnk {
		return 0o777
	}
	if mode&0o111 != 0 {
		return 0o755
	}
	return 0o644
}

// ensureClean reports an error if the working tree has any uncommitted
// changes relative to the index or the index relative to HEAD.
func (r *Repo) ensureClean() error {
	entries, err := r.Status()
	if err != nil {
		return fmt.Errorf("check status: %w", err)
	}
	for _, e := range entries {
		if e.IndexStatus != StatusClean || e.WorkStatus != StatusClean {
			return fmt.Errorf("working tree is not clean (file %q has uncommitted changes)", e.Path)
		}
	}
	return nil
}

// trackedFiles returns the union of paths in HEAD's tree and the index.
func (r *Repo) trackedFiles() map[string]bool {
	files := make(map[string]bool)
	headEntries, _ := r.headTreeEntries()
	for path := range headEntries {
		files[path] = true
	}
	if idx, err := r.ReadIndex(); err == nil {
		for _, e := range idx.Entries {
			files[e.Name] = true
		}
	}
	return files
}

// removeEmptyParents removes empty directories up to, but not including,
// the repository root.
func (r *Repo) removeEmptyParents(dir string) {
	for {
		if dir == r.RootDir || !strings.HasPrefix(dir, r.RootDir) {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		os.Remove(dir)
		dir = filepath.Dir(dir)
	}
}
