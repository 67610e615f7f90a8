package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nyxforge/gitcore/pkg/object"
)

func newTestStore(t *testing.T) *object.Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "gitcore-index-test-")
	if err != nil {
		t.Fatalf("mkdtemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return object.NewStore(dir)
}

func TestStagePath_WriteTree_RoundTrip(t *testing.T) {
	store := newTestStore(t)

	root, err := os.MkdirTemp("", "gitcore-worktree-")
	if err != nil {
		t.Fatalf("mkdtemp: %v", err)
	}
	defer os.RemoveAll(root)

	if err := os.MkdirAll(filepath.Join(root, "pkg", "util"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	files := map[string]string{
		"README.md":          "hello\n",
		"pkg/util/util.go":   "package util\n",
		"pkg/util/extra.txt": "extra\n",
	}
	for rel, content := range files {
		if err := os.WriteFile(filepath.Join(root, filepath.FromSlash(rel)), []byte(content), 0o644); err != nil {
			t.Fatalf("write %q: %v", rel, err)
		}
	}

	idx := New()
	for rel := range files {
		if err := StagePath(store, idx, root, rel); err != nil {
			t.Fatalf("stage %q: %v", rel, err)
		}
	}
	if idx.HasConflicts() {
		t.Fatal("fresh stage produced conflicts")
	}

	treeHash, err := WriteTree(store, idx)
	if err != nil {
		t.Fatalf("write tree: %v", err)
	}

	flat, err := ReadTree(store, treeHash)
	if err != nil {
		t.Fatalf("read tree: %v", err)
	}
	if len(flat) != len(files) {
		t.Fatalf("flattened %d entries, want %d", len(flat), len(files))
	}
	for _, e := range flat {
		want, ok := files[e.Name]
		if !ok {
			t.Errorf("unexpected path %q in flattened tree", e.Name)
			continue
		}
		blob, err := store.GetBlob(e.Hash)
		if err != nil {
			t.Fatalf("get blob %q: %v", e.Name, err)
		}
		if string(blob.Data) != want {
			t.Errorf("path %q content = %q, want %q", e.Name, blob.Data, want)
		}
	}
}

func TestIsModified_TrustsMatchingStat(t *testing.T) {
	idx := New()
	h := object.Hash{0x01}
	idx.SetEntry(Entry{Name: "f.txt", Hash: h, Size: 5, MTimeSec: 100})

	calls := 0
	rehash := func() (object.Hash, error) {
		calls++
		return h, nil
	}

	modified, err := idx.IsModified("f.txt", Stat{Size: 5, MTimeSec: 100}, rehash)
	if err != nil {
		t.Fatalf("is modified: %v", err)
	}
	if modified {
		t.Error("expected unmodified when stat matches")
	}
	if calls != 0 {
		t.Errorf("rehash called %d times, want 0 when stat matches", calls)
	}
}

func TestIsModified_RehashesOnStatMismatch(t *testing.T) {
	idx := New()
	h := object.Hash{0x01}
	idx.SetEntry(Entry{Name: "f.txt", Hash: h, Size: 5, MTimeSec: 100})

	rehash := func() (object.Hash, error) { return h, nil }

	modified, err := idx.IsModified("f.txt", Stat{Size: 5, MTimeSec: 200}, rehash)
	if err != nil {
		t.Fatalf("is modified: %v", err)
	}
	if modified {
		t.Error("expected unmodified when rehash matches stored blob hash")
	}
}

func TestIsModified_NoEntryMeansModified(t *testing.T) {
	idx := New()
	modified, err := idx.IsModified("missing.txt", Stat{}, func() (object.Hash, error) { return object.Hash{}, nil })
	if err != nil {
		t.Fatalf("is modified: %v", err)
	}
	if !modified {
		t.Error("expected modified for a path with no staged entry")
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	idx := New()
	idx.SetEntry(Entry{Name: "a.txt", Hash: object.Hash{0x01}, Size: 1, Mode: 0o100644})
	idx.SetEntry(Entry{Name: "b/c.txt", Hash: object.Hash{0x02}, Size: 2, Mode: 0o100644})
	if err := idx.SetConflictEntry(Entry{Name: "conflicted.txt", Stage: StageBase, Hash: object.Hash{0x03}}); err != nil {
		t.Fatalf("set conflict entry: %v", err)
	}
	if err := idx.SetConflictEntry(Entry{Name: "conflicted.txt", Stage: StageOurs, Hash: object.Hash{0x04}}); err != nil {
		t.Fatalf("set conflict entry: %v", err)
	}

	data, err := Encode(idx)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded.Entries) != len(idx.Entries) {
		t.Fatalf("decoded %d entries, want %d", len(decoded.Entries), len(idx.Entries))
	}
	if !decoded.HasConflicts() {
		t.Error("expected decoded index to report conflicts")
	}
}
