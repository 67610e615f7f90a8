package merge

import (
	"os"
	"testing"

	"github.com/nyxforge/gitcore/pkg/index"
	"github.com/nyxforge/gitcore/pkg/object"
)

func newTestStore(t *testing.T) *object.Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "gitcore-merge-test-")
	if err != nil {
		t.Fatalf("mkdtemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	return object.NewStore(dir)
}

func writeTreeFromFiles(t *testing.T, store *object.Store, files map[string]string) object.Hash {
	t.Helper()
	idx := index.New()
	for path, content := range files {
		h, err := store.PutBlob(&object.Blob{Data: []byte(content)})
		if err != nil {
			t.Fatalf("put blob %q: %v", path, err)
		}
		idx.SetEntry(index.Entry{Mode: 0o100644, Hash: h, Name: path})
	}
	tree, err := index.WriteTree(store, idx)
	if err != nil {
		t.Fatalf("write tree: %v", err)
	}
	return tree
}

func writeCommit(t *testing.T, store *object.Store, tree object.Hash, parents []object.Hash, ts int64) object.Hash {
	t.Helper()
	c := &object.Commit{
		Tree:      tree,
		Parents:   parents,
		Author:    object.Person{Name: "tester", Email: "tester@example.com", Timestamp: ts, TZOffset: "+0000"},
		Committer: object.Person{Name: "tester", Email: "tester@example.com", Timestamp: ts, TZOffset: "+0000"},
		Message:   "test commit",
	}
	h, err := store.PutCommit(c)
	if err != nil {
		t.Fatalf("put commit: %v", err)
	}
	return h
}

func TestMerge_FastForward(t *testing.T) {
	store := newTestStore(t)

	baseTree := writeTreeFromFiles(t, store, map[string]string{"a.txt": "a\n"})
	base := writeCommit(t, store, baseTree, nil, 1000)

	theirsTree := writeTreeFromFiles(t, store, map[string]string{"a.txt": "a\n", "b.txt": "b\n"})
	theirs := writeCommit(t, store, theirsTree, []object.Hash{base}, 1001)

	result, err := Merge(store, base, theirs)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if result.Status != FastForward {
		t.Fatalf("status = %v, want FastForward", result.Status)
	}
	if result.Tree != theirsTree {
		t.Fatalf("tree = %s, want %s", result.Tree, theirsTree)
	}
}

func TestMerge_AlreadyUpToDate(t *testing.T) {
	store := newTestStore(t)

	baseTree := writeTreeFromFiles(t, store, map[string]string{"a.txt": "a\n"})
	base := writeCommit(t, store, baseTree, nil, 1000)

	oursTree := writeTreeFromFiles(t, store, map[string]string{"a.txt": "a\n", "b.txt": "b\n"})
	ours := writeCommit(t, store, oursTree, []object.Hash{base}, 1001)

	result, err := Merge(store, ours, base)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if result.Status != AlreadyUpToDate {
		t.Fatalf("status = %v, want AlreadyUpToDate", result.Status)
	}
}

func TestMerge_CleanTreeMerge(t *testing.T) {
	store := newTestStore(t)

	baseTree := writeTreeFromFiles(t, store, map[string]string{"a.txt": "a\n"})
	base := writeCommit(t, store, baseTree, nil, 1000)

	oursTree := writeTreeFromFiles(t, store, map[string]string{"a.txt": "a\n", "ours.txt": "ours\n"})
	ours := writeCommit(t, store, oursTree, []object.Hash{base}, 1001)

	theirsTree := writeTreeFromFiles(t, store, map[string]string{"a.txt": "a\n", "theirs.txt": "theirs\n"})
	theirs := writeCommit(t, store, theirsTree, []object.Hash{base}, 1002)

	result, err := Merge(store, ours, theirs)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if result.Status != Success {
		t.Fatalf("status = %v, want Success", result.Status)
	}

	entries, err := index.ReadTree(store, result.Tree)
	if err != nil {
		t.Fatalf("read merged tree: %v", err)
	}
	want := map[string]bool{"a.txt": false, "ours.txt": false, "theirs.txt": false}
	for _, e := range entries {
		if _, ok := want[e.Name]; !ok {
			t.Errorf("unexpected path %q in merged tree", e.Name)
		}
		want[e.Name] = true
	}
	for path, seen := range want {
		if !seen {
			t.Errorf("expected path %q in merged tree", path)
		}
	}
}

func TestMerge_Conflict(t *testing.T) {
	store := newTestStore(t)

	baseTree := writeTreeFromFiles(t, store, map[string]string{"hello.txt": "hello\n"})
	base := writeCommit(t, store, baseTree, nil, 1000)

	oursTree := writeTreeFromFiles(t, store, map[string]string{"hello.txt": "main\n"})
	ours := writeCommit(t, store, oursTree, []object.Hash{base}, 1001)

	theirsTree := writeTreeFromFiles(t, store, map[string]string{"hello.txt": "feat\n"})
	theirs := writeCommit(t, store, theirsTree, []object.Hash{base}, 1002)

	result, err := Merge(store, ours, theirs)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if result.Status != Conflicts {
		t.Fatalf("status = %v, want Conflicts", result.Status)
	}
	if len(result.Conflicts) != 1 {
		t.Fatalf("conflicts = %d, want 1", len(result.Conflicts))
	}
	c := result.Conflicts[0]
	if c.Path != "hello.txt" {
		t.Errorf("conflict path = %q, want hello.txt", c.Path)
	}

	want := "<<<<<<< ours\nmain\n=======\nfeat\n>>>>>>> theirs\n"
	if string(c.Rendered) != want {
		t.Errorf("rendered =\n%s\nwant =\n%s", c.Rendered, want)
	}
}
