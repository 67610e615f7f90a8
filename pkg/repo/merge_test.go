package repo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nyxforge/gitcore/pkg/merge"
	"github.com/nyxforge/gitcore/pkg/object"
)

func testCommitter() object.Person {
	return object.Person{Name: "tester", Email: "tester@example.com", Timestamp: 1700000000, TZOffset: "+0000"}
}

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	dir := t.TempDir()
	r, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	return r
}

func writeWorkingFile(t *testing.T, r *Repo, name, content string) {
	t.Helper()
	abs := filepath.Join(r.RootDir, name)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func commitFile(t *testing.T, r *Repo, name, content, message string) object.Hash {
	t.Helper()
	writeWorkingFile(t, r, name, content)
	if err := r.Add([]string{name}); err != nil {
		t.Fatalf("add %q: %v", name, err)
	}
	who := object.Person{Name: "tester", Email: "tester@example.com", Timestamp: 1700000000, TZOffset: "+0000"}
	h, err := r.Commit(message, who, who)
	if err != nil {
		t.Fatalf("commit %q: %v", message, err)
	}
	return h
}

func TestMerge_FastForward(t *testing.T) {
	r := newTestRepo(t)
	commitFile(t, r, "a.txt", "a\n", "initial")

	if err := r.Refs.Create("refs/heads/feature", mustResolve(t, r, "HEAD"), testCommitter()); err != nil {
		t.Fatalf("create branch: %v", err)
	}
	if err := r.Checkout("feature"); err != nil {
		t.Fatalf("checkout feature: %v", err)
	}
	featureHead := commitFile(t, r, "b.txt", "b\n", "add b")

	if err := r.Checkout("main"); err != nil {
		t.Fatalf("checkout main: %v", err)
	}

	report, err := r.Merge("feature", MergeOptions{})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if report.Status != merge.FastForward {
		t.Fatalf("status = %v, want FastForward", report.Status)
	}
	if got := mustResolve(t, r, "HEAD"); got != featureHead {
		t.Fatalf("HEAD = %s, want %s", got, featureHead)
	}
	if _, err := os.Stat(filepath.Join(r.RootDir, "b.txt")); err != nil {
		t.Fatalf("expected b.txt in working tree: %v", err)
	}
}

func TestMerge_AlreadyUpToDate(t *testing.T) {
	r := newTestRepo(t)
	commitFile(t, r, "a.txt", "a\n", "initial")

	if err := r.Refs.Create("refs/heads/feature", mustResolve(t, r, "HEAD"), testCommitter()); err != nil {
		t.Fatalf("create branch: %v", err)
	}

	report, err := r.Merge("feature", MergeOptions{})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if report.Status != merge.AlreadyUpToDate {
		t.Fatalf("status = %v, want AlreadyUpToDate", report.Status)
	}
}

func TestMerge_CleanMergeCreatesCommit(t *testing.T) {
	r := newTestRepo(t)
	base := commitFile(t, r, "a.txt", "a\n", "initial")

	if err := r.Refs.Create("refs/heads/feature", base, testCommitter()); err != nil {
		t.Fatalf("create branch: %v", err)
	}
	if err := r.Checkout("feature"); err != nil {
		t.Fatalf("checkout feature: %v", err)
	}
	theirs := commitFile(t, r, "b.txt", "b\n", "add b")

	if err := r.Checkout("main"); err != nil {
		t.Fatalf("checkout main: %v", err)
	}
	ours := commitFile(t, r, "c.txt", "c\n", "add c")

	report, err := r.Merge("feature", MergeOptions{})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if report.Status != merge.Success {
		t.Fatalf("status = %v, want Success", report.Status)
	}
	if report.MergeCommit.IsZero() {
		t.Fatalf("expected a merge commit hash")
	}

	mergeCommit, err := r.Store.GetCommit(report.MergeCommit)
	if err != nil {
		t.Fatalf("read merge commit: %v", err)
	}
	if len(mergeCommit.Parents) != 2 || mergeCommit.Parents[0] != ours || mergeCommit.Parents[1] != theirs {
		t.Fatalf("merge commit parents = %v, want [%s %s]", mergeCommit.Parents, ours, theirs)
	}

	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		if _, err := os.Stat(filepath.Join(r.RootDir, name)); err != nil {
			t.Fatalf("expected %s in working tree: %v", name, err)
		}
	}
}

func TestMerge_ConflictsStageIndexAndLeaveHEAD(t *testing.T) {
	r := newTestRepo(t)
	base := commitFile(t, r, "a.txt", "base\n", "initial")

	if err := r.Refs.Create("refs/heads/feature", base, testCommitter()); err != nil {
		t.Fatalf("create branch: %v", err)
	}
	if err := r.Checkout("feature"); err != nil {
		t.Fatalf("checkout feature: %v", err)
	}
	commitFile(t, r, "a.txt", "theirs\n", "edit on feature")

	if err := r.Checkout("main"); err != nil {
		t.Fatalf("checkout main: %v", err)
	}
	ours := commitFile(t, r, "a.txt", "ours\n", "edit on main")

	report, err := r.Merge("feature", MergeOptions{})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if report.Status != merge.Conflicts {
		t.Fatalf("status = %v, want Conflicts", report.Status)
	}
	if report.TotalConflicts != 1 {
		t.Fatalf("TotalConflicts = %d, want 1", report.TotalConflicts)
	}
	if got := mustResolve(t, r, "HEAD"); got != ours {
		t.Fatalf("HEAD moved during conflicted merge: %s, want %s", got, ours)
	}

	idx, err := r.ReadIndex()
	if err != nil {
		t.Fatalf("read index: %v", err)
	}
	if !idx.HasConflicts() {
		t.Fatalf("expected index to have conflict stages for a.txt")
	}

	data, err := os.ReadFile(filepath.Join(r.RootDir, "a.txt"))
	if err != nil {
		t.Fatalf("read working file: %v", err)
	}
	marked := string(data)
	if !strings.Contains(marked, "<<<<<<<") || !strings.Contains(marked, "=======") || !strings.Contains(marked, ">>>>>>>") {
		t.Fatalf("working file missing conflict markers: %q", marked)
	}
}

func mustResolve(t *testing.T, r *Repo, ref string) object.Hash {
	t.Helper()
	h, err := r.Refs.Resolve(ref)
	if err != nil {
		t.Fatalf("resolve %q: %v", ref, err)
	}
	return h
}
