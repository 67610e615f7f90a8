package main

import (
	"strings"
	"testing"

	"github.com/nyxforge/gitcore/pkg/repo"
)

func TestRemoteTrackingRefName(t *testing.T) {
	tests := []struct {
		remoteName, remoteRef, want string
	}{
		{"origin", "heads/main", "refs/remotes/origin/main"},
		{"upstream", "heads/feature/x", "refs/remotes/upstream/feature/x"},
	}
	for _, tc := range tests {
		if got := remoteTrackingRefName(tc.remoteName, tc.remoteRef); got != tc.want {
			t.Fatalf("remoteTrackingRefName(%q, %q) = %q, want %q", tc.remoteName, tc.remoteRef, got, tc.want)
		}
	}
}

func TestResolveRemoteNameAndURLDefaultsToOrigin(t *testing.T) {
	r, err := repo.Init(t.TempDir())
	if err != nil {
		t.Fatalf("repo.Init: %v", err)
	}
	if err := r.SetRemote("origin", "https://example.com/alice/proj"); err != nil {
		t.Fatalf("SetRemote: %v", err)
	}

	name, url, err := resolveRemoteNameAndURL(r, "")
	if err != nil {
		t.Fatalf("resolveRemoteNameAndURL: %v", err)
	}
	if name != "origin" || url != "https://example.com/alice/proj" {
		t.Fatalf("got (%q, %q), want (origin, https://example.com/alice/proj)", name, url)
	}
}

func TestResolveRemoteNameAndURLNoOriginConfigured(t *testing.T) {
	r, err := repo.Init(t.TempDir())
	if err != nil {
		t.Fatalf("repo.Init: %v", err)
	}
	if _, _, err := resolveRemoteNameAndURL(r, ""); err == nil {
		t.Fatalf("expected error with no origin configured")
	}
}

func TestResolveRemoteNameAndURLByConfiguredName(t *testing.T) {
	r, err := repo.Init(t.TempDir())
	if err != nil {
		t.Fatalf("repo.Init: %v", err)
	}
	if err := r.SetRemote("upstream", "https://example.com/bob/proj"); err != nil {
		t.Fatalf("SetRemote: %v", err)
	}

	name, url, err := resolveRemoteNameAndURL(r, "upstream")
	if err != nil {
		t.Fatalf("resolveRemoteNameAndURL: %v", err)
	}
	if name != "upstream" || url != "https://example.com/bob/proj" {
		t.Fatalf("got (%q, %q), want (upstream, https://example.com/bob/proj)", name, url)
	}
}

func TestResolveRemoteNameAndURLRawURL(t *testing.T) {
	r, err := repo.Init(t.TempDir())
	if err != nil {
		t.Fatalf("repo.Init: %v", err)
	}

	name, url, err := resolveRemoteNameAndURL(r, "https://example.com/alice/proj")
	if err != nil {
		t.Fatalf("resolveRemoteNameAndURL: %v", err)
	}
	if name != "anonymous" || url != "https://example.com/alice/proj" {
		t.Fatalf("got (%q, %q), want (anonymous, https://example.com/alice/proj)", name, url)
	}
}

func TestTemporaryPullBranchSanitizesName(t *testing.T) {
	got := temporaryPullBranch("feature/x y:z")
	if got == "" {
		t.Fatalf("temporaryPullBranch returned empty string")
	}
	if strings.ContainsAny(got, "/\\ :") {
		t.Fatalf("temporaryPullBranch(%q) = %q still contains an unsafe character", "feature/x y:z", got)
	}
}
