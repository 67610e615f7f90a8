package index

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/nyxforge/gitcore/pkg/object"
)

// StagePath reads relPath from the working tree rooted at rootDir, writes
// its content as a blob, and records a fresh stage-0 entry for it,
// replacing whatever stage 0/1/2/3 entries already existed for that path.
func StagePath(store *object.Store, idx *Index, rootDir, relPath string) error {
	relPath = filepath.ToSlash(relPath)
	absPath := filepath.Join(rootDir, filepath.FromSlash(relPath))

	content, err := os.ReadFile(absPath)
	if err != nil {
		return fmt.Errorf("stage %q: %w", relPath, err)
	}
	st, err := StatPath(absPath)
	if err != nil {
		return fmt.Errorf("stage %q: %w", relPath, err)
	}
	hash, err := store.PutBlob(&object.Blob{Data: content})
	if err != nil {
		return fmt.Errorf("stage %q: write blob: %w", relPath, err)
	}

	idx.SetEntry(EntryFromStat(relPath, hash, st))
	return nil
}

// Raw unix st_mode format-type bits (S_IFMT and friends), used because
// e.Mode carries a POSIX stat mode, not a Go os.FileMode.
const (
	modeFmtMask = 0o170000
	modeFmtLnk  = 0o120000
)

// treeMode picks the canonical tree entry mode for a staged file: a
// symlink's target is stored literally, an executable bit promotes the
// entry to the executable mode, everything else is a plain file.
func treeMode(e Entry) string {
	switch {
	case e.Mode&modeFmtMask == modeFmtLnk:
		return object.ModeSymlink
	case e.Mode&0o111 != 0:
		return object.ModeExecutable
	default:
		return object.ModeFile
	}
}

// WriteTree converts the index's stage-0 entries into a hierarchical
// tree, writing every subtree to store, and returns the root tree hash.
// Callers must ensure idx.HasConflicts() is false first; conflict-stage
// entries are ignored here rather than rejected, since resolving that is
// the caller's job (abort the commit, or re-stage first).
func WriteTree(store *object.Store, idx *Index) (object.Hash, error) {
	merged := make([]Entry, 0, len(idx.Entries))
	for _, e := range idx.Entries {
		if e.Stage == StageMerged {
			merged = append(merged, e)
		}
	}
	return writeTreeDir(store, merged, "")
}

func writeTreeDir(store *object.Store, entries []Entry, prefix string) (object.Hash, error) {
	files := make(map[string]Entry)
	subdirs := make(map[string]struct{})

	for _, e := range entries {
		var rel string
		if prefix == "" {
			rel = e.Name
		} else {
			if !strings.HasPrefix(e.Name, prefix+"/") {
				continue
			}
			rel = e.Name[len(prefix)+1:]
		}

		if slash := strings.IndexByte(rel, '/'); slash < 0 {
			files[rel] = e
		} else {
			subdirs[rel[:slash]] = struct{}{}
		}
	}

	names := make([]string, 0, len(files)+len(subdirs))
	for name := range files {
		names = append(names, name)
	}
	for name := range subdirs {
		if _, isFile := files[name]; !isFile {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var treeEntries []object.TreeEntry
	for _, name := range names {
		if e, isFile := files[name]; isFile {
			treeEntries = append(treeEntries, object.TreeEntry{
				Mode: treeMode(e),
				Name: name,
				Hash: e.Hash,
			})
			continue
		}

		childPrefix := name
		if prefix != "" {
			childPrefix = prefix + "/" + name
		}
		subHash, err := writeTreeDir(store, entries, childPrefix)
		if err != nil {
			return object.Hash{}, fmt.Errorf("write tree %q: %w", childPrefix, err)
		}
		treeEntries = append(treeEntries, object.TreeEntry{
			Mode: object.ModeDir,
			Name: name,
			Hash: subHash,
		})
	}

	return store.PutTree(&object.Tree{Entries: treeEntries})
}

// ReadTree flattens a tree object (recursively) back into the flat
// stage-0 entries WriteTree would have produced for it, used to rebuild
// an index after checkout or to diff two commits' trees path by path.
func ReadTree(store *object.Store, root object.Hash) ([]Entry, error) {
	return readTreeDir(store, root, "")
}

func readTreeDir(store *object.Store, h object.Hash, prefix string) ([]Entry, error) {
	tree, err := store.GetTree(h)
	if err != nil {
		return nil, fmt.Errorf("read tree %s: %w", h, err)
	}

	var out []Entry
	for _, te := range tree.Entries {
		full := te.Name
		if prefix != "" {
			full = prefix + "/" + te.Name
		}
		if te.IsDir() {
			sub, err := readTreeDir(store, te.Hash, full)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
			continue
		}

		mode, err := strconv.ParseUint(te.Mode, 8, 32)
		if err != nil {
			mode = 0o100644
		}
		out = append(out, Entry{
			Mode:  uint32(mode),
			Hash:  te.Hash,
			Stage: StageMerged,
			Name:  full,
		})
	}
	return out, nil
}
