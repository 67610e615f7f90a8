package repo

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/nyxforge/gitcore/pkg/index"
)

// Add stages the given paths into the repository index. A path naming a
// directory is expanded recursively, skipping ignored entries.
func (r *Repo) Add(paths []string) error {
	idx, err := r.ReadIndex()
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}

	ic := NewIgnoreChecker(r.RootDir)

	for _, p := range paths {
		rel, err := r.repoRelPath(p)
		if err != nil {
			return fmt.Errorf("add: resolve path %q: %w", p, err)
		}

		absPath := filepath.Join(r.RootDir, filepath.FromSlash(rel))
		info, err := os.Stat(absPath)
		if err != nil {
			return fmt.Errorf("add: stat %q: %w", rel, err)
		}

		if !info.IsDir() {
			if err := index.StagePath(r.Store, idx, r.RootDir, rel); err != nil {
				return fmt.Errorf("add: stage %q: %w", rel, err)
			}
			continue
		}

		err = filepath.WalkDir(absPath, func(walkPath string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			walkRel, err := filepath.Rel(r.RootDir, walkPath)
			if err != nil {
				return err
			}
			walkRel = filepath.ToSlash(walkRel)
			if ic.IsIgnored(walkRel) {
				if d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			return index.StagePath(r.Store, idx, r.RootDir, walkRel)
		})
		if err != nil {
			return fmt.Errorf("add: walk %q: %w", rel, err)
		}
	}

	if err := r.WriteIndex(idx); err != nil {
		return fmt.Errorf("add: %w", err)
	}
	r.invalidateStatusCache()
	return nil
}

// repoRelPath converts p (absolute, or relative to the current working
// directory) into a slash-separated path relative to the repository root.
func (r *Repo) repoRelPath(p string) (string, error) {
	if filepath.IsAbs(p) {
		rel, err := filepath.Rel(r.RootDir, p)
		if err != nil {
			return "", fmt.Errorf("cannot make %q relative to %q: %w", p, r.RootDir, err)
		}
		return filepath.ToSlash(rel), nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return filepath.ToSlash(filepath.Clean(p)), nil
	}

	abs := filepath.Join(cwd, p)
	rel, err := filepath.Rel(r.RootDir, abs)
	if err != nil {
		return filepath.ToSlash(filepath.Clean(p)), nil
	}
	if len(rel) >= 2 && rel[:2] == ".." {
		return filepath.ToSlash(filepath.Clean(p)), nil
	}
	return filepath.ToSlash(rel), nil
}
