package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nyxforge/gitcore/pkg/repo"
)

func TestReflogShowsRefHistory(t *testing.T) {
	dir := t.TempDir()
	if _, err := repo.Init(dir); err != nil {
		t.Fatalf("repo.Init: %v", err)
	}

	prevWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir(%q): %v", dir, err)
	}
	defer func() {
		if err := os.Chdir(prevWD); err != nil {
			t.Fatalf("restore cwd: %v", err)
		}
	}()

	t.Setenv("GIT_AUTHOR_NAME", "Tester")
	t.Setenv("GIT_AUTHOR_EMAIL", "tester@example.com")
	t.Setenv("GIT_COMMITTER_NAME", "Tester")
	t.Setenv("GIT_COMMITTER_EMAIL", "tester@example.com")

	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a\n"), 0o644); err != nil {
		t.Fatalf("write a.txt: %v", err)
	}

	var out bytes.Buffer
	addCmd := newAddCmd()
	addCmd.SetArgs([]string{"a.txt"})
	addCmd.SetOut(&out)
	if err := addCmd.Execute(); err != nil {
		t.Fatalf("add: %v", err)
	}

	commitCmd := newCommitCmd()
	commitCmd.SetArgs([]string{"-m", "first commit"})
	commitCmd.SetOut(&out)
	if err := commitCmd.Execute(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	reflogCmd := newReflogCmd()
	reflogCmd.SetArgs([]string{"main"})
	var reflogOut bytes.Buffer
	reflogCmd.SetOut(&reflogOut)
	if err := reflogCmd.Execute(); err != nil {
		t.Fatalf("reflog: %v\n%s", err, reflogOut.String())
	}
	if !strings.Contains(reflogOut.String(), "refs/heads/main") {
		t.Fatalf("reflog output %q does not mention refs/heads/main", reflogOut.String())
	}
}

func TestReflogUnknownRefIsEmpty(t *testing.T) {
	dir := t.TempDir()
	if _, err := repo.Init(dir); err != nil {
		t.Fatalf("repo.Init: %v", err)
	}

	prevWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir(%q): %v", dir, err)
	}
	defer func() {
		if err := os.Chdir(prevWD); err != nil {
			t.Fatalf("restore cwd: %v", err)
		}
	}()

	reflogCmd := newReflogCmd()
	reflogCmd.SetArgs([]string{"never-existed"})
	var out bytes.Buffer
	reflogCmd.SetOut(&out)
	if err := reflogCmd.Execute(); err != nil {
		t.Fatalf("reflog: %v", err)
	}
	if out.String() != "" {
		t.Fatalf("expected empty output for a ref with no history, got %q", out.String())
	}
}
