package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nyxforge/gitcore/pkg/repo"
)

func TestCommitStatusBranchCheckoutFlow(t *testing.T) {
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

	if err := os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("write hello.txt: %v", err)
	}

	addCmd := newAddCmd()
	addCmd.SetArgs([]string{"hello.txt"})
	var addOut bytes.Buffer
	addCmd.SetOut(&addOut)
	addCmd.SetErr(&addOut)
	if err := addCmd.Execute(); err != nil {
		t.Fatalf("add: %v\n%s", err, addOut.String())
	}

	commitCmd := newCommitCmd()
	commitCmd.SetArgs([]string{"-m", "first commit"})
	var commitOut bytes.Buffer
	commitCmd.SetOut(&commitOut)
	commitCmd.SetErr(&commitOut)
	if err := commitCmd.Execute(); err != nil {
		t.Fatalf("commit: %v\n%s", err, commitOut.String())
	}
	if !strings.Contains(commitOut.String(), "first commit") {
		t.Fatalf("commit output %q does not mention commit message", commitOut.String())
	}

	statusCmd := newStatusCmd()
	var statusOut bytes.Buffer
	statusCmd.SetOut(&statusOut)
	statusCmd.SetErr(&statusOut)
	if err := statusCmd.Execute(); err != nil {
		t.Fatalf("status: %v\n%s", err, statusOut.String())
	}
	if !strings.Contains(statusOut.String(), "working tree clean") {
		t.Fatalf("status output %q, want clean working tree", statusOut.String())
	}

	branchCmd := newBranchCmd()
	branchCmd.SetArgs([]string{"feature"})
	var branchOut bytes.Buffer
	branchCmd.SetOut(&branchOut)
	branchCmd.SetErr(&branchOut)
	if err := branchCmd.Execute(); err != nil {
		t.Fatalf("branch create: %v\n%s", err, branchOut.String())
	}

	checkoutCmd := newCheckoutCmd()
	checkoutCmd.SetArgs([]string{"feature"})
	var checkoutOut bytes.Buffer
	checkoutCmd.SetOut(&checkoutOut)
	checkoutCmd.SetErr(&checkoutOut)
	if err := checkoutCmd.Execute(); err != nil {
		t.Fatalf("checkout: %v\n%s", err, checkoutOut.String())
	}

	branchAfter, err := openRepo()
	if err != nil {
		t.Fatalf("openRepo: %v", err)
	}
	current, err := branchAfter.CurrentBranch()
	if err != nil {
		t.Fatalf("CurrentBranch: %v", err)
	}
	if current != "feature" {
		t.Fatalf("current branch = %q, want %q", current, "feature")
	}
}

func TestTagListAndCreate(t *testing.T) {
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
	addCmd := newAddCmd()
	addCmd.SetArgs([]string{"a.txt"})
	var out bytes.Buffer
	addCmd.SetOut(&out)
	if err := addCmd.Execute(); err != nil {
		t.Fatalf("add: %v", err)
	}
	commitCmd := newCommitCmd()
	commitCmd.SetArgs([]string{"-m", "add a"})
	commitCmd.SetOut(&out)
	if err := commitCmd.Execute(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	tagCmd := newTagCmd()
	tagCmd.SetArgs([]string{"v1"})
	tagCmd.SetOut(&out)
	if err := tagCmd.Execute(); err != nil {
		t.Fatalf("tag create: %v", err)
	}

	listCmd := newTagCmd()
	var listOut bytes.Buffer
	listCmd.SetOut(&listOut)
	if err := listCmd.Execute(); err != nil {
		t.Fatalf("tag list: %v", err)
	}
	if !strings.Contains(listOut.String(), "v1") {
		t.Fatalf("tag list output %q does not contain %q", listOut.String(), "v1")
	}
}
