package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/nyxforge/gitcore/pkg/index"
	"github.com/nyxforge/gitcore/pkg/merge"
	"github.com/nyxforge/gitcore/pkg/object"
)

// MergeReport summarizes the outcome of a Merge call.
type MergeReport struct {
	Status         merge.Status
	MergeCommit    object.Hash // set on Success
	Conflicts      []merge.Conflict
	TotalConflicts int
}

// MergeOptions controls how a clean merge concludes.
type MergeOptions struct {
	// NoCommit stages the merged tree but leaves the commit to the
	// caller, the way "merge --no-commit" does.
	NoCommit bool
}

// Merge merges branchName into the current HEAD.
//
//  1. Resolve HEAD and the branch to commit hashes.
//  2. Delegate to pkg/merge.Merge, which finds the merge base and
//     performs the tree-level three-way merge.
//  3. AlreadyUpToDate: nothing to do.
//  4. FastForward: move HEAD's ref to branchHash directly, no merge commit.
//  5. Success: write the merged tree to the working directory and index,
//     then create a two-parent merge commit (unless NoCommit).
//  6. Conflicts: write conflict-marker files and stage 1/2/3 index
//     entries for each conflicted path, leave HEAD untouched.
func (r *Repo) Merge(branchName string, opts MergeOptions) (*MergeReport, error) {
	if err := r.ensureClean(); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	headHash, err := r.Refs.Resolve("HEAD")
	if err != nil {
		return nil, fmt.Errorf("merge: resolve HEAD: %w", err)
	}
	branchHash, err := r.Refs.Resolve("refs/heads/" + branchName)
	if err != nil {
		return nil, fmt.Errorf("merge: resolve branch %q: %w", branchName, err)
	}

	result, err := merge.Merge(r.Store, headHash, branchHash)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	report := &MergeReport{Status: result.Status}

	switch result.Status {
	case merge.AlreadyUpToDate:
		return report, nil

	case merge.FastForward:
		targetRef, err := r.headUpdateTarget()
		if err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
		committer, err := r.defaultPerson()
		if err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
		if err := r.Refs.Update(targetRef, branchHash, headHash, true, committer, "merge: fast-forward "+branchName); err != nil {
			return nil, fmt.Errorf("merge: advance ref: %w", err)
		}
		if err := r.checkoutTree(result.Tree); err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
		r.invalidateStatusCache()
		return report, nil

	case merge.Conflicts:
		report.Conflicts = result.Conflicts
		for _, c := range result.Conflicts {
			report.TotalConflicts++
			if err := r.writeConflict(c); err != nil {
				return nil, fmt.Errorf("merge: %w", err)
			}
		}
		if err := r.stageConflicts(result.Conflicts); err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
		r.invalidateStatusCache()
		return report, nil

	case merge.Success:
		if err := r.checkoutTree(result.Tree); err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
		r.invalidateStatusCache()
		if opts.NoCommit {
			return report, nil
		}
		commitHash, err := r.commitMerge(result.Tree, headHash, branchHash, branchName)
		if err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
		report.MergeCommit = commitHash
		return report, nil

	default:
		return nil, fmt.Errorf("merge: failed")
	}
}

// checkoutTree rewrites the working directory and index to match tree,
// the same file-level operation Checkout performs for a target commit.
func (r *Repo) checkoutTree(tree object.Hash) error {
	targetFiles, err := index.ReadTree(r.Store, tree)
	if err != nil {
		return fmt.Errorf("flatten merged tree: %w", err)
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
			return fmt.Errorf("remove %q: %w", path, err)
		}
		r.removeEmptyParents(filepath.Dir(absPath))
	}

	newIdx := index.New()
	for _, f := range targetFiles {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(f.Name))
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return fmt.Errorf("mkdir for %q: %w", f.Name, err)
		}
		blob, err := r.Store.GetBlob(f.Hash)
		if err != nil {
			return fmt.Errorf("read blob for %q: %w", f.Name, err)
		}
		if err := os.WriteFile(absPath, blob.Data, filePermFromMode(f.Mode)); err != nil {
			return fmt.Errorf("write %q: %w", f.Name, err)
		}
		st, err := index.StatPath(absPath)
		if err != nil {
			return fmt.Errorf("stat %q: %w", f.Name, err)
		}
		newIdx.SetEntry(index.EntryFromStat(f.Name, f.Hash, st))
	}
	return r.WriteIndex(newIdx)
}

// writeConflict writes c's rendered conflict markers to the working
// tree, replacing whatever content (if any) is currently there.
func (r *Repo) writeConflict(c merge.Conflict) error {
	absPath := filepath.Join(r.RootDir, filepath.FromSlash(c.Path))
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return fmt.Errorf("mkdir for %q: %w", c.Path, err)
	}
	mode, err := strconv.ParseUint(c.Mode, 8, 32)
	if err != nil {
		mode = 0o100644
	}
	return os.WriteFile(absPath, c.Rendered, filePermFromMode(uint32(mode)))
}

// stageConflicts rewrites the index with stage 1/2/3 entries for every
// conflicted path, clearing any prior stage-0 entry for that path.
func (r *Repo) stageConflicts(conflicts []merge.Conflict) error {
	idx, err := r.ReadIndex()
	if err != nil {
		return fmt.Errorf("read index: %w", err)
	}
	for _, c := range conflicts {
		idx.Unstage(c.Path)
		mode, err := strconv.ParseUint(c.Mode, 8, 32)
		if err != nil {
			mode = 0o100644
		}
		if !c.Base.IsZero() {
			if err := idx.SetConflictEntry(index.Entry{Name: c.Path, Hash: c.Base, Mode: uint32(mode), Stage: index.StageBase}); err != nil {
				return err
			}
		}
		if !c.Ours.IsZero() {
			if err := idx.SetConflictEntry(index.Entry{Name: c.Path, Hash: c.Ours, Mode: uint32(mode), Stage: index.StageOurs}); err != nil {
				return err
			}
		}
		if !c.Theirs.IsZero() {
			if err := idx.SetConflictEntry(index.Entry{Name: c.Path, Hash: c.Theirs, Mode: uint32(mode), Stage: index.StageTheirs}); err != nil {
				return err
			}
		}
	}
	return r.WriteIndex(idx)
}

// commitMerge writes a merge commit with two parents and advances the
// current ref to point at it.
func (r *Repo) commitMerge(tree, ours, theirs object.Hash, branchName string) (object.Hash, error) {
	committer, err := r.defaultPerson()
	if err != nil {
		return object.Hash{}, err
	}
	commit := &object.Commit{
		Tree:      tree,
		Parents:   []object.Hash{ours, theirs},
		Author:    committer,
		Committer: committer,
		Message:   "Merge branch '" + branchName + "'\n",
	}
	commitHash, err := r.Store.PutCommit(commit)
	if err != nil {
		return object.Hash{}, fmt.Errorf("write merge commit: %w", err)
	}
	targetRef, err := r.headUpdateTarget()
	if err != nil {
		return object.Hash{}, err
	}
	if err := r.Refs.Update(targetRef, commitHash, ours, true, committer, "merge: "+branchName); err != nil {
		return object.Hash{}, fmt.Errorf("update ref: %w", err)
	}
	return commitHash, nil
}

// defaultPerson builds the committer identity for an automatic merge
// commit from the repository's configuration, falling back the way
// other porcelain tools do when user.name/user.email are unset.
func (r *Repo) defaultPerson() (object.Person, error) {
	cfg, err := r.ReadConfig()
	if err != nil {
		return object.Person{}, fmt.Errorf("read config: %w", err)
	}
	name, _ := cfg.Get("user", "", "name")
	email, _ := cfg.Get("user", "", "email")
	if name == "" {
		name = "unknown"
	}
	now := time.Now()
	return object.Person{
		Name:      name,
		Email:     email,
		Timestamp: now.Unix(),
		TZOffset:  FormatTZOffset(now),
	}, nil
}
