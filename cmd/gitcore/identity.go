package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nyxforge/gitcore/pkg/object"
	"github.com/nyxforge/gitcore/pkg/repo"
)

// resolvePerson builds a commit/tag identity from (in priority order) the
// GIT_*_NAME/EMAIL/DATE environment variables, falling back to
// user.name/user.email in .git/config, then "unknown".
func resolvePerson(r *repo.Repo, role string) (object.Person, error) {
	nameEnv, emailEnv, dateEnv := envNamesFor(role)

	name := strings.TrimSpace(os.Getenv(nameEnv))
	email := strings.TrimSpace(os.Getenv(emailEnv))

	if name == "" || email == "" {
		cfg, err := r.ReadConfig()
		if err != nil {
			return object.Person{}, err
		}
		if name == "" {
			name, _ = cfg.Get("user", "", "name")
		}
		if email == "" {
			email, _ = cfg.Get("user", "", "email")
		}
	}
	if name == "" {
		name = "unknown"
	}

	now := time.Now()
	ts := now.Unix()
	tz := repo.FormatTZOffset(now)
	if raw := strings.TrimSpace(os.Getenv(dateEnv)); raw != "" {
		if parsedTS, parsedTZ, ok := parseGitDate(raw); ok {
			ts, tz = parsedTS, parsedTZ
		}
	}

	return object.Person{Name: name, Email: email, Timestamp: ts, TZOffset: tz}, nil
}

func envNamesFor(role string) (name, email, date string) {
	if role == "committer" {
		return "GIT_COMMITTER_NAME", "GIT_COMMITTER_EMAIL", "GIT_COMMITTER_DATE"
	}
	return "GIT_AUTHOR_NAME", "GIT_AUTHOR_EMAIL", "GIT_AUTHOR_DATE"
}

// parseGitDate parses "<unix-seconds> <+hhmm>", the format gitcore itself
// writes; anything else is rejected rather than guessed at.
func parseGitDate(raw string) (int64, string, bool) {
	parts := strings.Fields(raw)
	if len(parts) != 2 {
		return 0, "", false
	}
	ts, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", false
	}
	tz := parts[1]
	if len(tz) != 5 || (tz[0] != '+' && tz[0] != '-') {
		return 0, "", false
	}
	for _, c := range tz[1:] {
		if c < '0' || c > '9' {
			return 0, "", false
		}
	}
	return ts, tz, true
}

func shortHash(h object.Hash) string {
	s := h.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

func openRepo() (*repo.Repo, error) {
	r, err := repo.Open(".")
	if err != nil {
		return nil, fmt.Errorf("not a gitcore repository (or any parent up to /): %w", err)
	}
	return r, nil
}
