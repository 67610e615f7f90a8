package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nyxforge/gitcore/pkg/object"
)

func TestChooseDefaultBranchPrefersMain(t *testing.T) {
	refs := map[string]object.Hash{
		"heads/develop": mustHash(t, "1111111111111111111111111111111111111111"),
		"heads/main":    mustHash(t, "2222222222222222222222222222222222222222"),
		"heads/master":  mustHash(t, "3333333333333333333333333333333333333333"),
	}
	branch, hash, ok := chooseDefaultBranch(refs)
	if !ok {
		t.Fatalf("expected a default branch")
	}
	if branch != "main" || hash != refs["heads/main"] {
		t.Fatalf("got (%q, %s), want main", branch, hash)
	}
}

func TestChooseDefaultBranchFallsBackToSortedName(t *testing.T) {
	refs := map[string]object.Hash{
		"heads/zeta":  mustHash(t, "1111111111111111111111111111111111111111"),
		"heads/alpha": mustHash(t, "2222222222222222222222222222222222222222"),
	}
	branch, hash, ok := chooseDefaultBranch(refs)
	if !ok {
		t.Fatalf("expected a default branch")
	}
	if branch != "alpha" || hash != refs["heads/alpha"] {
		t.Fatalf("got (%q, %s), want alpha", branch, hash)
	}
}

func TestChooseDefaultBranchEmpty(t *testing.T) {
	if _, _, ok := chooseDefaultBranch(map[string]object.Hash{}); ok {
		t.Fatalf("expected no default branch for empty ref map")
	}
}

func TestEnsureEmptyDirCreatesMissing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "fresh")
	if err := ensureEmptyDir(dir); err != nil {
		t.Fatalf("ensureEmptyDir: %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("expected %q to be created as a directory", dir)
	}
}

func TestEnsureEmptyDirRejectsNonEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "existing.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write existing.txt: %v", err)
	}
	if err := ensureEmptyDir(dir); err == nil {
		t.Fatalf("expected error for non-empty destination")
	}
}

func mustHash(t *testing.T, hex string) object.Hash {
	t.Helper()
	h, err := object.ParseHash(hex)
	if err != nil {
		t.Fatalf("object.ParseHash(%q): %v", hex, err)
	}
	return h
}
