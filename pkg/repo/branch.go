package repo

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nyxforge/gitcore/pkg/object"
	"github.com/nyxforge/gitcore/pkg/refstore"
)

// CreateBranch creates a new branch pointing at target. Returns an error
// if the branch already exists.
func (r *Repo) CreateBranch(name string, target object.Hash) error {
	refName := "refs/heads/" + name
	committer, err := r.defaultPerson()
	if err != nil {
		return fmt.Errorf("create branch %q: %w", name, err)
	}
	if err := r.Refs.Create(refName, target, committer); err != nil {
		if errors.Is(err, refstore.ErrCASMismatch) {
			return fmt.Errorf("create branch: branch %q already exists", name)
		}
		return fmt.Errorf("create branch %q: %w", name, err)
	}
	return nil
}

// DeleteBranch removes a branch ref. Returns an error if the branch is
// the current branch or does not exist.
func (r *Repo) DeleteBranch(name string) error {
	current, err := r.CurrentBranch()
	if err != nil {
		return fmt.Errorf("delete branch: %w", err)
	}
	if current == name {
		return fmt.Errorf("delete branch: cannot delete current branch %q", name)
	}

	refName := "refs/heads/" + name
	if _, err := r.Refs.Resolve(refName); err != nil {
		if errors.Is(err, refstore.ErrNotFound) {
			return fmt.Errorf("delete branch: branch %q does not exist", name)
		}
		return fmt.Errorf("delete branch %q: %w", name, err)
	}
	committer, err := r.defaultPerson()
	if err != nil {
		return fmt.Errorf("delete branch %q: %w", name, err)
	}
	if err := r.Refs.Delete(refName, committer); err != nil {
		return fmt.Errorf("delete branch %q: %w", name, err)
	}
	return nil
}

// ListBranches returns branch names sorted alphabetically.
func (r *Repo) ListBranches() ([]string, error) {
	refs, err := r.Refs.List("refs/heads/")
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}

	names := make([]string, 0, len(refs))
	for full := range refs {
		names = append(names, strings.TrimPrefix(full, "refs/heads/"))
	}
	sort.Strings(names)
	return names, nil
}

// CurrentBranch returns the branch name if HEAD is a symbolic ref
// ("refs/heads/main" -> "main"). Returns "" for a detached HEAD.
func (r *Repo) CurrentBranch() (string, error) {
	head, err := r.Refs.Head()
	if err != nil {
		return "", fmt.Errorf("current branch: %w", err)
	}

	const prefix = "refs/heads/"
	if strings.HasPrefix(head, prefix) {
		return strings.TrimPrefix(head, prefix), nil
	}
	return "", nil
}
