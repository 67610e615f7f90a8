package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"strings"
	"testing"

	"github.com/nyxforge/gitcore/pkg/object"
)

func newSyncTestStore(t *testing.T) *object.Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "gitcore-sync-test-")
	if err != nil {
		t.Fatalf("mkdtemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return object.NewStore(dir)
}

func seedCommitChain(t *testing.T, store *object.Store) (blobHash, treeHash, commitHash object.Hash) {
	t.Helper()
	var err error
	blobHash, err = store.PutBlob(&object.Blob{Data: []byte("hello\n")})
	if err != nil {
		t.Fatal(err)
	}
	treeHash, err = store.PutTree(&object.Tree{Entries: []object.TreeEntry{{Mode: "100644", Name: "README.md", Hash: blobHash}}})
	if err != nil {
		t.Fatal(err)
	}
	commitHash, err = store.PutCommit(&object.Commit{
		Tree:      treeHash,
		Author:    object.Person{Name: "Alice", Email: "alice@example.com", Timestamp: 1700000000, TZOffset: "+0000"},
		Committer: object.Person{Name: "Alice", Email: "alice@example.com", Timestamp: 1700000000, TZOffset: "+0000"},
		Message:   "init",
	})
	if err != nil {
		t.Fatal(err)
	}
	return blobHash, treeHash, commitHash
}

func TestFetchIntoStoreBatchThenGetFallback(t *testing.T) {
	remoteStore := newSyncTestStore(t)
	blobHash, treeHash, commitHash := seedCommitChain(t, remoteStore)

	commitType, commitData, err := remoteStore.Get(commitHash)
	if err != nil {
		t.Fatal(err)
	}
	treeType, treeData, err := remoteStore.Get(treeHash)
	if err != nil {
		t.Fatal(err)
	}
	_, blobData, err := remoteStore.Get(blobHash)
	if err != nil {
		t.Fatal(err)
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/alice/repo/objects/batch":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"objects": []map[string]any{
					{"hash": commitHash.String(), "type": string(commitType), "data": commitData},
					{"hash": treeHash.String(), "type": string(treeType), "data": treeData},
				},
				"truncated": true,
			})
			return
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/alice/repo/objects/"):
			hashStr := path.Base(r.URL.Path)
			if hashStr != blobHash.String() {
				http.Error(w, "object not found", http.StatusNotFound)
				return
			}
			w.Header().Set("X-Object-Type", string(object.TypeBlob))
			_, _ = w.Write(blobData)
			return
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}))
	defer ts.Close()

	client, err := NewClient(ts.URL + "/alice/repo")
	if err != nil {
		t.Fatal(err)
	}
	localStore := newSyncTestStore(t)

	written, err := FetchIntoStore(context.Background(), client, localStore, []object.Hash{commitHash}, nil)
	if err != nil {
		t.Fatalf("FetchIntoStore: %v", err)
	}
	if written != 3 {
		t.Fatalf("written = %d, want 3", written)
	}

	for _, h := range []object.Hash{commitHash, treeHash, blobHash} {
		if !localStore.Exists(h) {
			t.Fatalf("missing expected object %s", h)
		}
	}
}

func TestFetchIntoStoreRejectsHashMismatch(t *testing.T) {
	blobData := object.EncodeBlob(&object.Blob{Data: []byte("data")})
	blobHash := object.HashObject(object.TypeBlob, blobData)
	badHash := object.HashObject(object.TypeBlob, object.EncodeBlob(&object.Blob{Data: []byte("not data")}))
	if badHash == blobHash {
		t.Fatalf("test setup produced equal hashes")
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/alice/repo/objects/batch" {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"objects": []map[string]any{
					{"hash": badHash.String(), "type": string(object.TypeBlob), "data": blobData},
				},
				"truncated": false,
			})
			return
		}
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer ts.Close()

	client, err := NewClient(ts.URL + "/alice/repo")
	if err != nil {
		t.Fatal(err)
	}

	localStore := newSyncTestStore(t)
	_, err = FetchIntoStore(context.Background(), client, localStore, []object.Hash{blobHash}, nil)
	if err == nil {
		t.Fatalf("expected hash mismatch error")
	}
	if !strings.Contains(err.Error(), "hash mismatch") {
		t.Fatalf("expected hash mismatch error, got %v", err)
	}
}

func TestCollectObjectsForPushStopsAtReachableRoots(t *testing.T) {
	store := newSyncTestStore(t)

	blobA, err := store.PutBlob(&object.Blob{Data: []byte("v1\n")})
	if err != nil {
		t.Fatal(err)
	}
	treeA, err := store.PutTree(&object.Tree{Entries: []object.TreeEntry{{Mode: "100644", Name: "main.txt", Hash: blobA}}})
	if err != nil {
		t.Fatal(err)
	}
	commitA, err := store.PutCommit(&object.Commit{
		Tree:      treeA,
		Author:    object.Person{Name: "Alice", Timestamp: 1700000000, TZOffset: "+0000"},
		Committer: object.Person{Name: "Alice", Timestamp: 1700000000, TZOffset: "+0000"},
		Message:   "A",
	})
	if err != nil {
		t.Fatal(err)
	}

	blobB, err := store.PutBlob(&object.Blob{Data: []byte("v2\n")})
	if err != nil {
		t.Fatal(err)
	}
	treeB, err := store.PutTree(&object.Tree{Entries: []object.TreeEntry{{Mode: "100644", Name: "main.txt", Hash: blobB}}})
	if err != nil {
		t.Fatal(err)
	}
	commitB, err := store.PutCommit(&object.Commit{
		Tree:      treeB,
		Parents:   []object.Hash{commitA},
		Author:    object.Person{Name: "Alice", Timestamp: 1700000001, TZOffset: "+0000"},
		Committer: object.Person{Name: "Alice", Timestamp: 1700000001, TZOffset: "+0000"},
		Message:   "B",
	})
	if err != nil {
		t.Fatal(err)
	}

	objs, err := CollectObjectsForPush(store, []object.Hash{commitB}, []object.Hash{commitA})
	if err != nil {
		t.Fatalf("CollectObjectsForPush: %v", err)
	}

	got := make(map[object.Hash]struct{}, len(objs))
	for _, o := range objs {
		got[o.Hash] = struct{}{}
	}
	for _, h := range []object.Hash{commitB, treeB, blobB} {
		if _, ok := got[h]; !ok {
			t.Fatalf("missing expected object %s", h)
		}
	}
	for _, h := range []object.Hash{commitA, treeA, blobA} {
		if _, ok := got[h]; ok {
			t.Fatalf("unexpected object from stop root history: %s", h)
		}
	}
}

func TestCollectObjectsForPushTraversesTagTargets(t *testing.T) {
	store := newSyncTestStore(t)
	_, _, commitHash := seedCommitChain(t, store)

	tagHash, err := store.PutTag(&object.Tag{
		Object:  commitHash,
		Type:    object.TypeCommit,
		Name:    "v1.0.0",
		Tagger:  object.Person{Name: "Alice", Timestamp: 1700000000, TZOffset: "+0000"},
		Message: "release",
	})
	if err != nil {
		t.Fatal(err)
	}

	objs, err := CollectObjectsForPush(store, []object.Hash{tagHash}, nil)
	if err != nil {
		t.Fatalf("CollectObjectsForPush: %v", err)
	}
	got := make(map[object.Hash]struct{}, len(objs))
	for _, obj := range objs {
		got[obj.Hash] = struct{}{}
	}
	if _, ok := got[tagHash]; !ok {
		t.Fatalf("expected tag object in traversal")
	}
	if _, ok := got[commitHash]; !ok {
		t.Fatalf("expected tagged commit in traversal")
	}
}

func TestReachableSetIgnoresMissingRoots(t *testing.T) {
	store := newSyncTestStore(t)
	blobHash, err := store.PutBlob(&object.Blob{Data: []byte("hello")})
	if err != nil {
		t.Fatal(err)
	}
	missing := object.HashObject(object.TypeBlob, object.EncodeBlob(&object.Blob{Data: []byte("never written")}))

	set, err := ReachableSet(store, []object.Hash{blobHash, missing})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := set[blobHash]; !ok {
		t.Fatalf("expected reachable set to include %s", blobHash)
	}
	if len(set) != 1 {
		t.Fatalf("reachable set len = %d, want 1", len(set))
	}
}

func TestUniqueHashes(t *testing.T) {
	a := object.HashObject(object.TypeBlob, object.EncodeBlob(&object.Blob{Data: []byte("a")}))
	b := object.HashObject(object.TypeBlob, object.EncodeBlob(&object.Blob{Data: []byte("b")}))
	in := []object.Hash{{}, a, b, a}
	got := uniqueHashes(in)
	if len(got) != 2 {
		t.Fatalf("uniqueHashes len = %d, want 2: %v", len(got), got)
	}
	seen := map[object.Hash]bool{}
	for _, h := range got {
		seen[h] = true
	}
	if !seen[a] || !seen[b] {
		t.Fatalf("uniqueHashes = %v, missing expected entries", got)
	}
}

func TestUniqueHashesDeterministicOrder(t *testing.T) {
	a := object.HashObject(object.TypeBlob, object.EncodeBlob(&object.Blob{Data: []byte("a")}))
	b := object.HashObject(object.TypeBlob, object.EncodeBlob(&object.Blob{Data: []byte("b")}))
	got1 := uniqueHashes([]object.Hash{b, a})
	got2 := uniqueHashes([]object.Hash{a, b})
	if fmt.Sprint(got1) != fmt.Sprint(got2) {
		t.Fatalf("uniqueHashes order not deterministic: %v vs %v", got1, got2)
	}
}
