package refstore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nyxforge/gitcore/pkg/object"
)

// LogEntry is one line of a ref's reflog.
type LogEntry struct {
	Ref       string
	OldHash   object.Hash
	NewHash   object.Hash
	Committer object.Person
	Reason    string
}

func (s *Store) logPath(ref string) string {
	return filepath.Join(s.gitDir, "logs", filepath.FromSlash(ref))
}

// appendReflog writes a line of the form
// "<old-oid> <new-oid> <committer-ident>\t<reason>\n", where
// committer-ident is "Name <email> timestamp tz" the same way commit and
// tag headers encode identities, so the update's timestamp lives inside
// the ident field rather than as a separate column.
func (s *Store) appendReflog(ref string, oldHash, newHash object.Hash, committer object.Person, reason string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil
	}
	if strings.TrimSpace(reason) == "" {
		reason = "update"
	}
	if committer.Timestamp == 0 {
		committer.Timestamp = time.Now().Unix()
	}

	path := s.logPath(ref)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("reflog mkdir: %w", err)
	}

	line := fmt.Sprintf("%s %s %s\t%s\n", oldHash, newHash, object.FormatPersonIdent(committer), reason)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("reflog open: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("reflog write: %w", err)
	}
	return nil
}

// ReadLog returns ref's reflog entries, most recent first, optionally
// truncated to limit entries (limit <= 0 means unlimited).
func (s *Store) ReadLog(ref string, limit int) ([]LogEntry, error) {
	refName, err := s.resolveLogRefName(ref)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(s.logPath(refName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read reflog: %w", err)
	}
	defer f.Close()

	var entries []LogEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		entry, ok := parseReflogLine(refName, line)
		if !ok {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read reflog: %w", err)
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// parseReflogLine parses a "<old> <new> <ident>\t<reason>" line. ident
// parsing locates the '<' '>' email delimiters itself, matching the way
// commit/tag headers are decoded, since it must tolerate a name field
// containing spaces.
func parseReflogLine(ref, line string) (LogEntry, bool) {
	tab := strings.IndexByte(line, '\t')
	if tab < 0 {
		return LogEntry{}, false
	}
	head, reason := line[:tab], line[tab+1:]

	fields := strings.SplitN(head, " ", 3)
	if len(fields) != 3 {
		return LogEntry{}, false
	}
	oldH, err := object.ParseHash(fields[0])
	if err != nil {
		return LogEntry{}, false
	}
	newH, err := object.ParseHash(fields[1])
	if err != nil {
		return LogEntry{}, false
	}
	committer, ok := parsePersonIdent(fields[2])
	if !ok {
		return LogEntry{}, false
	}
	return LogEntry{
		Ref:       ref,
		OldHash:   oldH,
		NewHash:   newH,
		Committer: committer,
		Reason:    reason,
	}, true
}

func parsePersonIdent(s string) (object.Person, bool) {
	emailStart := strings.IndexByte(s, '<')
	emailEnd := strings.IndexByte(s, '>')
	if emailStart < 0 || emailEnd < emailStart {
		return object.Person{}, false
	}
	name := strings.TrimSpace(s[:emailStart])
	email := s[emailStart+1 : emailEnd]

	rest := strings.TrimSpace(s[emailEnd+1:])
	parts := strings.SplitN(rest, " ", 2)
	if len(parts) != 2 {
		return object.Person{}, false
	}
	ts, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return object.Person{}, false
	}
	return object.Person{Name: name, Email: email, Timestamp: ts, TZOffset: parts[1]}, true
}

// AllTips walks every reflog file under logs/ and returns the set of
// distinct non-zero old/new hashes recorded across all of them. Used as
// additional GC roots so an object a ref no longer points at, but whose
// reflog history still names it, survives for as long as a reflog file
// records it (only PruneLog removes reflog history, a whole file at a
// time).
func (s *Store) AllTips() ([]object.Hash, error) {
	logsDir := filepath.Join(s.gitDir, "logs")
	seen := make(map[object.Hash]struct{})
	var out []object.Hash

	err := filepath.Walk(logsDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("read reflog %s: %w", path, err)
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimRight(scanner.Text(), "\r\n")
			if strings.TrimSpace(line) == "" {
				continue
			}
			entry, ok := parseReflogLine("", line)
			if !ok {
				continue
			}
			for _, h := range []object.Hash{entry.OldHash, entry.NewHash} {
				if h.IsZero() {
					continue
				}
				if _, ok := seen[h]; ok {
					continue
				}
				seen[h] = struct{}{}
				out = append(out, h)
			}
		}
		return scanner.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("reflog tips: %w", err)
	}
	return out, nil
}

func (s *Store) resolveLogRefName(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" || ref == "HEAD" {
		head, err := s.Head()
		if err == nil && strings.HasPrefix(head, "refs/") {
			return head, nil
		}
		return "HEAD", nil
	}
	if strings.HasPrefix(ref, "refs/") {
		return ref, nil
	}
	return "refs/heads/" + ref, nil
}

// PruneLog deletes a ref's reflog file entirely (an all-or-nothing drop;
// individual entries are never expired). Deleting a branch does not call
// it: the branch's reflog keeps its history, ending in a deletion line.
func (s *Store) PruneLog(ref string) error {
	refName, err := s.resolveLogRefName(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(s.logPath(refName)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("prune reflog %q: %w", refName, err)
	}
	return nil
}
