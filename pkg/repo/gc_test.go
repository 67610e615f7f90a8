package repo

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nyxforge/gitcore/pkg/object"
)

func looseObjectPath(r *Repo, h object.Hash) string {
	hex := h.String()
	return filepath.Join(r.GitDir, "objects", hex[:2], hex[2:])
}

func ageLooseObject(t *testing.T, r *Repo, h object.Hash, age time.Duration) {
	t.Helper()
	path := looseObjectPath(r, h)
	old := time.Now().Add(-age)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}

func TestGC_KeepsReachableObjects(t *testing.T) {
	r := newTestRepo(t)
	head := commitFile(t, r, "a.txt", "a\n", "initial")
	ageLooseObject(t, r, head, 30*24*time.Hour)

	result, err := r.GC(DefaultGCSafetyWindow)
	if err != nil {
		t.Fatalf("gc: %v", err)
	}
	if result.PrunedUnreachable != 0 {
		t.Fatalf("pruned %d unreachable objects, want 0 (HEAD commit is reachable)", result.PrunedUnreachable)
	}
	if _, err := r.Store.GetCommit(head); err != nil {
		t.Fatalf("HEAD commit missing after gc: %v", err)
	}
}

func deleteFeatureBranchLeavingOrphan(t *testing.T, r *Repo) object.Hash {
	t.Helper()
	commitFile(t, r, "a.txt", "a\n", "initial")

	if err := r.Refs.Create("refs/heads/feature", mustResolve(t, r, "HEAD"), testCommitter()); err != nil {
		t.Fatalf("create branch: %v", err)
	}
	if err := r.Checkout("feature"); err != nil {
		t.Fatalf("checkout feature: %v", err)
	}
	orphan := commitFile(t, r, "b.txt", "b\n", "add b")
	if err := r.Checkout("main"); err != nil {
		t.Fatalf("checkout main: %v", err)
	}
	if err := r.DeleteBranch("feature"); err != nil {
		t.Fatalf("delete branch: %v", err)
	}
	if err := r.Refs.PruneLog("refs/heads/feature"); err != nil {
		t.Fatalf("prune reflog: %v", err)
	}
	return orphan
}

func TestGC_KeepsOrphanedCommitWithinSafetyWindow(t *testing.T) {
	r := newTestRepo(t)
	orphan := deleteFeatureBranchLeavingOrphan(t, r)

	// Within the safety window the orphaned commit must survive even
	// though no ref or reflog names it anymore.
	if _, err := r.GC(DefaultGCSafetyWindow); err != nil {
		t.Fatalf("gc: %v", err)
	}
	if !r.Store.Exists(orphan) {
		t.Fatalf("orphaned commit should survive within the safety window")
	}
}

func TestGC_PrunesOrphanedCommitPastSafetyWindow(t *testing.T) {
	r := newTestRepo(t)
	orphan := deleteFeatureBranchLeavingOrphan(t, r)

	// Age the loose object past the window before gc ever runs, so it is
	// never swept into a pack before the unreachable-prune pass sees it.
	ageLooseObject(t, r, orphan, 30*24*time.Hour)

	result, err := r.GC(DefaultGCSafetyWindow)
	if err != nil {
		t.Fatalf("gc: %v", err)
	}
	if result.PrunedUnreachable == 0 {
		t.Fatalf("expected gc to prune the orphaned commit past the safety window")
	}
	if r.Store.Exists(orphan) {
		t.Fatalf("orphaned commit %s still present after gc", orphan)
	}
}

func TestGC_KeepsIndexReferencedObjectRegardlessOfReachability(t *testing.T) {
	r := newTestRepo(t)
	commitFile(t, r, "a.txt", "a\n", "initial")

	writeWorkingFile(t, r, "staged.txt", "staged\n")
	if err := r.Add([]string{"staged.txt"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	idx, err := r.ReadIndex()
	if err != nil {
		t.Fatalf("read index: %v", err)
	}
	var blobHash object.Hash
	for _, e := range idx.Entries {
		if e.Name == "staged.txt" {
			blobHash = e.Hash
		}
	}
	if blobHash.IsZero() {
		t.Fatalf("staged.txt not found in index")
	}
	ageLooseObject(t, r, blobHash, 30*24*time.Hour)

	if _, err := r.GC(DefaultGCSafetyWindow); err != nil {
		t.Fatalf("gc: %v", err)
	}
	if !r.Store.Exists(blobHash) {
		t.Fatalf("index-referenced blob %s was pruned", blobHash)
	}
}
