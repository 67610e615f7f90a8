package main

import (
	"testing"

	"github.com/nyxforge/gitcore/pkg/object"
	"github.com/nyxforge/gitcore/pkg/repo"
)

func TestParseGitDate(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantTS  int64
		wantTZ  string
		wantOK  bool
	}{
		{name: "well formed", raw: "1700000000 -0500", wantTS: 1700000000, wantTZ: "-0500", wantOK: true},
		{name: "missing timezone", raw: "1700000000", wantOK: false},
		{name: "non-numeric seconds", raw: "soon -0500", wantOK: false},
		{name: "empty", raw: "", wantOK: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ts, tz, ok := parseGitDate(tc.raw)
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if !ok {
				return
			}
			if ts != tc.wantTS || tz != tc.wantTZ {
				t.Fatalf("parseGitDate(%q) = (%d, %q), want (%d, %q)", tc.raw, ts, tz, tc.wantTS, tc.wantTZ)
			}
		})
	}
}

func TestEnvNamesFor(t *testing.T) {
	name, email, date := envNamesFor("committer")
	if name != "GIT_COMMITTER_NAME" || email != "GIT_COMMITTER_EMAIL" || date != "GIT_COMMITTER_DATE" {
		t.Fatalf("envNamesFor(committer) = (%q, %q, %q)", name, email, date)
	}

	name, email, date = envNamesFor("author")
	if name != "GIT_AUTHOR_NAME" || email != "GIT_AUTHOR_EMAIL" || date != "GIT_AUTHOR_DATE" {
		t.Fatalf("envNamesFor(author) = (%q, %q, %q)", name, email, date)
	}
}

func TestResolvePersonFallsBackToUnknown(t *testing.T) {
	r, err := repo.Init(t.TempDir())
	if err != nil {
		t.Fatalf("repo.Init: %v", err)
	}

	t.Setenv("GIT_AUTHOR_NAME", "")
	t.Setenv("GIT_AUTHOR_EMAIL", "")
	t.Setenv("GIT_AUTHOR_DATE", "")

	person, err := resolvePerson(r, "author")
	if err != nil {
		t.Fatalf("resolvePerson: %v", err)
	}
	if person.Name != "unknown" {
		t.Fatalf("person.Name = %q, want %q", person.Name, "unknown")
	}
}

func TestResolvePersonPrefersEnv(t *testing.T) {
	r, err := repo.Init(t.TempDir())
	if err != nil {
		t.Fatalf("repo.Init: %v", err)
	}

	t.Setenv("GIT_COMMITTER_NAME", "Ada Lovelace")
	t.Setenv("GIT_COMMITTER_EMAIL", "ada@example.com")
	t.Setenv("GIT_COMMITTER_DATE", "1700000000 +0000")

	person, err := resolvePerson(r, "committer")
	if err != nil {
		t.Fatalf("resolvePerson: %v", err)
	}
	if person.Name != "Ada Lovelace" || person.Email != "ada@example.com" {
		t.Fatalf("person = %+v, want name/email from env", person)
	}
	if person.Timestamp != 1700000000 || person.TZOffset != "+0000" {
		t.Fatalf("person timestamp/tz = %d/%q, want 1700000000/+0000", person.Timestamp, person.TZOffset)
	}
}

func TestShortHash(t *testing.T) {
	h, err := object.ParseHash("aabbccddee0011223344556677889900aabbccdd")
	if err != nil {
		t.Fatalf("object.ParseHash: %v", err)
	}
	if got := shortHash(h); got != "aabbccdd" {
		t.Fatalf("shortHash = %q, want %q", got, "aabbccdd")
	}
}
