package refstore

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/nyxforge/gitcore/pkg/object"
)

// ErrCASMismatch is returned when Update's expected old value does not
// match the ref's current value.
var ErrCASMismatch = errors.New("refstore: compare-and-swap mismatch")

// ErrNotFound is returned when a ref does not exist in either the loose
// or packed tier.
var ErrNotFound = errors.New("refstore: ref not found")

// ErrSymrefCycle is returned when resolving a chain of symbolic refs
// exceeds maxSymrefDepth without reaching a direct (hash) value.
var ErrSymrefCycle = errors.New("refstore: symbolic ref cycle")

// ErrInvalidName is returned when a ref name fails ValidName.
var ErrInvalidName = errors.New("refstore: invalid ref name")

const maxSymrefDepth = 5

const (
	refLockRetryDelay = 5 * time.Millisecond
	refLockWaitLimit  = 2 * time.Second
)

// UpdateError wraps a successful ref write whose reflog append failed.
// The ref update itself is NOT rolled back: callers observe the new
// value even though the append failed.
type UpdateError struct {
	Ref     string
	OldHash object.Hash
	NewHash object.Hash
	Err     error
}

func (e *UpdateError) Error() string {
	return fmt.Sprintf("refstore: ref %q updated but reflog append failed (old=%s new=%s): %v",
		e.Ref, e.OldHash, e.NewHash, e.Err)
}

func (e *UpdateError) Unwrap() error { return e.Err }

// Store is the reference namespace rooted at a repository's git
// directory: HEAD, refs/, logs/refs/ (reflogs), and packed-refs.
type Store struct {
	gitDir string
}

// New returns a Store rooted at gitDir (e.g. ".git").
func New(gitDir string) *Store {
	return &Store{gitDir: gitDir}
}

func (s *Store) refPath(name string) string {
	return filepath.Join(s.gitDir, filepath.FromSlash(name))
}

// Head returns HEAD's raw content: a ref path like "refs/heads/main" if
// symbolic, or the literal 40-char hex hash if detached.
func (s *Store) Head() (string, error) {
	return s.readRawRef("HEAD")
}

// readRawRef returns the literal one-line content of a loose ref file
// (symbolic "ref: ..." text stripped of its prefix, or a raw hash
// string), falling back to packed-refs for non-HEAD names.
func (s *Store) readRawRef(name string) (string, error) {
	data, err := os.ReadFile(s.refPath(name))
	if err == nil {
		return parseRawRefContent(data), nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("read ref %q: %w", name, err)
	}

	if name == "HEAD" {
		return "", fmt.Errorf("read ref %q: %w", name, ErrNotFound)
	}

	packed, err := s.readPackedRefs()
	if err != nil {
		return "", err
	}
	if h, ok := packed[name]; ok {
		return h.String(), nil
	}
	return "", fmt.Errorf("read ref %q: %w", name, ErrNotFound)
}

func parseRawRefContent(data []byte) string {
	content := strings.TrimRight(string(data), "\n")
	if rest, ok := strings.CutPrefix(content, "ref: "); ok {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(content)
}

// Resolve follows name (which may be "HEAD" or any ref path) through
// symbolic indirection until it reaches a direct hash, bounded by
// maxSymrefDepth to detect cycles.
func (s *Store) Resolve(name string) (object.Hash, error) {
	cur := name
	for depth := 0; depth < maxSymrefDepth; depth++ {
		raw, err := s.readRawRef(cur)
		if err != nil {
			return object.Hash{}, err
		}
		if strings.HasPrefix(raw, "refs/") || raw == "HEAD" {
			cur = raw
			continue
		}
		h, err := object.ParseHash(raw)
		if err != nil {
			return object.Hash{}, fmt.Errorf("resolve %q: not a hash or ref: %q", name, raw)
		}
		return h, nil
	}
	return object.Hash{}, fmt.Errorf("resolve %q: %w", name, ErrSymrefCycle)
}

// SetSymbolic points name (typically "HEAD") at another ref, e.g.
// "refs/heads/main", writing "ref: refs/heads/main\n".
func (s *Store) SetSymbolic(name, target string) error {
	path := s.refPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("set symbolic ref %q: mkdir: %w", name, err)
	}
	content := "ref: " + target + "\n"
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-ref-*")
	if err != nil {
		return fmt.Errorf("set symbolic ref %q: tmpfile: %w", name, err)
	}
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("set symbolic ref %q: write: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("set symbolic ref %q: close: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("set symbolic ref %q: rename: %w", name, err)
	}
	return nil
}

// Update writes newHash to ref name using lockfile + rename atomic
// semantics. If hasExpectedOld is true, the update only succeeds when the
// ref's current value equals expectedOld (ErrCASMismatch otherwise).
// newHash may be the zero hash to delete the ref. committer identifies
// who is recorded in the reflog line for this update.
//
// Reflog append happens after the ref rename; if it fails the ref update
// is NOT rolled back and an *UpdateError wraps the append failure.
func (s *Store) Update(name string, newHash, expectedOld object.Hash, hasExpectedOld bool, committer object.Person, reason string) error {
	if !ValidName(name) && name != "HEAD" {
		return fmt.Errorf("update ref %q: %w", name, ErrInvalidName)
	}

	path := s.refPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("update ref %q: mkdir: %w", name, err)
	}

	lockPath := path + ".lock"
	lockFile, err := acquireLock(lockPath)
	if err != nil {
		return fmt.Errorf("update ref %q: lock: %w", name, err)
	}
	cleanupLock := true
	defer func() {
		if lockFile != nil {
			_ = lockFile.Close()
		}
		if cleanupLock {
			_ = os.Remove(lockPath)
		}
	}()

	oldHash, err := s.readDirectHash(name)
	if err != nil {
		return fmt.Errorf("update ref %q: read old value: %w", name, err)
	}
	if hasExpectedOld && oldHash != expectedOld {
		return fmt.Errorf("update ref %q: %w (expected %s, found %s)", name, ErrCASMismatch, expectedOld, oldHash)
	}

	if newHash.IsZero() {
		lockFile.Close()
		lockFile = nil
		os.Remove(lockPath)
		cleanupLock = false
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete ref %q: %w", name, err)
		}
	} else {
		if _, err := lockFile.WriteString(newHash.String() + "\n"); err != nil {
			return fmt.Errorf("update ref %q: write: %w", name, err)
		}
		if err := lockFile.Sync(); err != nil {
			return fmt.Errorf("update ref %q: sync: %w", name, err)
		}
		if err := lockFile.Close(); err != nil {
			lockFile = nil
			return fmt.Errorf("update ref %q: close: %w", name, err)
		}
		lockFile = nil
		if err := os.Rename(lockPath, path); err != nil {
			return fmt.Errorf("update ref %q: rename: %w", name, err)
		}
		cleanupLock = false
	}

	if err := s.appendReflog(name, oldHash, newHash, committer, reason); err != nil {
		return &UpdateError{Ref: name, OldHash: oldHash, NewHash: newHash, Err: err}
	}
	return nil
}

// readDirectHash reads name's current value as a hash, returning the zero
// hash if the ref does not exist. It is used to compute CAS "old" values;
// a symbolic value is followed through Resolve to the hash it finally
// names.
func (s *Store) readDirectHash(name string) (object.Hash, error) {
	raw, err := s.readRawRef(name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return object.Hash{}, nil
		}
		return object.Hash{}, err
	}
	if strings.HasPrefix(raw, "refs/") {
		return s.Resolve(raw)
	}
	h, err := object.ParseHash(raw)
	if err != nil {
		return object.Hash{}, fmt.Errorf("ref %q: malformed value %q", name, raw)
	}
	return h, nil
}

// Create writes a brand new ref, failing with ErrCASMismatch if it
// already exists.
func (s *Store) Create(name string, target object.Hash, committer object.Person) error {
	return s.Update(name, target, object.Hash{}, true, committer, "create")
}

// Delete removes a ref, recording its prior value in the reflog as a
// deletion (new hash = zero).
func (s *Store) Delete(name string, committer object.Person) error {
	return s.Update(name, object.Hash{}, object.Hash{}, false, committer, "delete")
}

// List returns every ref (loose + packed) whose name has the given
// prefix (e.g. "refs/heads/"), mapped to its resolved hash.
func (s *Store) List(prefix string) (map[string]object.Hash, error) {
	out := make(map[string]object.Hash)

	packed, err := s.readPackedRefs()
	if err != nil {
		return nil, err
	}
	for name, h := range packed {
		if strings.HasPrefix(name, prefix) {
			out[name] = h
		}
	}

	root := filepath.Join(s.gitDir, "refs")
	dir := root
	if trimmed := strings.TrimPrefix(prefix, "refs/"); trimmed != prefix && trimmed != "" {
		dir = filepath.Join(root, filepath.FromSlash(strings.TrimSuffix(trimmed, "/")))
	}

	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return nil
			}
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := "refs/" + filepath.ToSlash(rel)
		if !strings.HasPrefix(name, prefix) {
			return nil
		}
		h, err := s.readDirectHash(name)
		if err != nil {
			return fmt.Errorf("list refs: %s: %w", name, err)
		}
		out[name] = h
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	return out, nil
}

func (s *Store) readPackedRefs() (map[string]object.Hash, error) {
	f, err := os.Open(filepath.Join(s.gitDir, "packed-refs"))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]object.Hash{}, nil
		}
		return nil, fmt.Errorf("read packed-refs: %w", err)
	}
	defer f.Close()

	out := make(map[string]object.Hash)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "^") {
			continue
		}
		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			continue
		}
		h, err := object.ParseHash(parts[0])
		if err != nil {
			continue
		}
		out[parts[1]] = h
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read packed-refs: %w", err)
	}
	return out, nil
}

// PackRefs writes the current loose heads/tags into packed-refs and
// removes the now-redundant loose files, the same compaction `gc`
// performs on a real Git repository.
func (s *Store) PackRefs() error {
	loose, err := s.List("refs/")
	if err != nil {
		return err
	}
	if len(loose) == 0 {
		return nil
	}

	names := make([]string, 0, len(loose))
	for name := range loose {
		names = append(names, name)
	}
	sort.Strings(names)

	path := filepath.Join(s.gitDir, "packed-refs")
	tmp, err := os.CreateTemp(s.gitDir, ".tmp-packed-refs-*")
	if err != nil {
		return fmt.Errorf("pack-refs: tmpfile: %w", err)
	}
	w := bufio.NewWriter(tmp)
	fmt.Fprintln(w, "# pack-refs with: peeled fully-peeled sorted")
	for _, name := range names {
		fmt.Fprintf(w, "%s %s\n", loose[name], name)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("pack-refs: flush: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("pack-refs: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("pack-refs: rename: %w", err)
	}

	for name := range loose {
		if err := os.Remove(s.refPath(name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("pack-refs: remove loose %s: %w", name, err)
		}
	}
	return nil
}

func acquireLock(lockPath string) (*os.File, error) {
	deadline := time.Now().Add(refLockWaitLimit)
	for {
		f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, nil
		}
		if os.IsExist(err) {
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("timeout waiting for lock %q", lockPath)
			}
			time.Sleep(refLockRetryDelay)
			continue
		}
		return nil, err
	}
}
