package object

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrNotFound is returned when an object cannot be located in any tier
// (in-memory cache, loose files, or packfiles).
var ErrNotFound = errors.New("object: not found")

// Store is a content-addressed object database rooted at a repository's
// git directory. It layers an in-memory decoded-object cache over loose
// files (objects/<xx>/<rest>, zlib-deflated) and packfiles
// (objects/pack/*.pack + *.idx).
type Store struct {
	root  string // <gitdir>
	cache *objectCache
	packs *packSet
}

// NewStore creates a Store rooted at gitdir. The objects/ subdirectory is
// created lazily on first write.
func NewStore(gitdir string) *Store {
	return &Store{
		root:  gitdir,
		cache: newObjectCache(defaultCacheBytes),
		packs: newPackSet(filepath.Join(gitdir, "objects", "pack")),
	}
}

func (s *Store) looseDir(h Hash) string {
	hex := h.String()
	return filepath.Join(s.root, "objects", hex[:2])
}

func (s *Store) loosePath(h Hash) string {
	hex := h.String()
	return filepath.Join(s.root, "objects", hex[:2], hex[2:])
}

// Exists reports whether the store contains an object with the given hash,
// in any tier.
func (s *Store) Exists(h Hash) bool {
	if s.cache.has(h) {
		return true
	}
	if _, err := os.Stat(s.loosePath(h)); err == nil {
		return true
	}
	return s.packs.has(h)
}

// Put encodes+frames payload for kind, writes it (idempotently, via a temp
// file and rename for crash atomicity) if absent, and returns its OID.
func (s *Store) Put(kind ObjectType, payload []byte) (Hash, error) {
	framed := Frame(kind, payload)
	h := OidOf(framed)

	if s.Exists(h) {
		return h, nil
	}

	dir := s.looseDir(h)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Hash{}, fmt.Errorf("object put: mkdir: %w", err)
	}

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(framed); err != nil {
		zw.Close()
		return Hash{}, fmt.Errorf("object put: deflate: %w", err)
	}
	if err := zw.Close(); err != nil {
		return Hash{}, fmt.Errorf("object put: deflate close: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "tmp_*")
	if err != nil {
		return Hash{}, fmt.Errorf("object put: tmpfile: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(compressed.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return Hash{}, fmt.Errorf("object put: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return Hash{}, fmt.Errorf("object put: close: %w", err)
	}
	if err := os.Rename(tmpName, s.loosePath(h)); err != nil {
		os.Remove(tmpName)
		return Hash{}, fmt.Errorf("object put: rename: %w", err)
	}

	s.cache.put(h, kind, payload)
	return h, nil
}

// Get retrieves an object by hash: in-memory cache, then loose file, then
// each packfile index, in that order.
func (s *Store) Get(h Hash) (ObjectType, []byte, error) {
	if kind, payload, ok := s.cache.get(h); ok {
		return kind, payload, nil
	}

	if data, err := os.ReadFile(s.loosePath(h)); err == nil {
		kind, payload, err := inflateFramed(data)
		if err != nil {
			return "", nil, fmt.Errorf("object get %s: %w", h, err)
		}
		if OidOf(Frame(kind, payload)) != h {
			return "", nil, &CorruptError{Kind: kind, Detail: "oid mismatch"}
		}
		s.cache.put(h, kind, payload)
		return kind, payload, nil
	} else if !os.IsNotExist(err) {
		return "", nil, fmt.Errorf("object get %s: %w", h, err)
	}

	if kind, payload, ok, err := s.packs.get(h); err != nil {
		return "", nil, fmt.Errorf("object get %s: %w", h, err)
	} else if ok {
		s.cache.put(h, kind, payload)
		return kind, payload, nil
	}

	return "", nil, fmt.Errorf("%w: %s", ErrNotFound, h)
}

func inflateFramed(deflated []byte) (ObjectType, []byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(deflated))
	if err != nil {
		return "", nil, &CorruptError{Detail: "bad zlib stream: " + err.Error()}
	}
	defer zr.Close()
	framed, err := io.ReadAll(zr)
	if err != nil {
		return "", nil, &CorruptError{Detail: "bad zlib stream: " + err.Error()}
	}
	return Unframe(framed)
}

// CorruptError reports a non-recoverable integrity or format failure.
type CorruptError struct {
	Kind   ObjectType
	Detail string
}

func (e *CorruptError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("corrupt %s: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("corrupt object: %s", e.Detail)
}

// Iter returns every OID known to the store across loose files and
// packfiles. It is restartable: each call performs a fresh scan.
func (s *Store) Iter() ([]Hash, error) {
	seen := make(map[Hash]struct{})
	var out []Hash

	objectsDir := filepath.Join(s.root, "objects")
	entries, err := os.ReadDir(objectsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("iter objects: %w", err)
	}
	for _, fanout := range entries {
		if !fanout.IsDir() || len(fanout.Name()) != 2 {
			continue
		}
		subEntries, err := os.ReadDir(filepath.Join(objectsDir, fanout.Name()))
		if err != nil {
			return nil, fmt.Errorf("iter objects: %w", err)
		}
		for _, e := range subEntries {
			if len(e.Name()) != HashSize*2-2 {
				continue
			}
			h, err := ParseHash(fanout.Name() + e.Name())
			if err != nil {
				continue
			}
			if _, ok := seen[h]; !ok {
				seen[h] = struct{}{}
				out = append(out, h)
			}
		}
	}

	packHashes, err := s.packs.allHashes()
	if err != nil {
		return nil, fmt.Errorf("iter packs: %w", err)
	}
	for _, h := range packHashes {
		if _, ok := seen[h]; !ok {
			seen[h] = struct{}{}
			out = append(out, h)
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------
// Typed convenience methods
// ---------------------------------------------------------------------

func (s *Store) PutBlob(b *Blob) (Hash, error) {
	return s.Put(TypeBlob, EncodeBlob(b))
}

func (s *Store) GetBlob(h Hash) (*Blob, error) {
	kind, data, err := s.Get(h)
	if err != nil {
		return nil, err
	}
	if kind != TypeBlob {
		return nil, fmt.Errorf("object %s: expected blob, got %s", h, kind)
	}
	return DecodeBlob(data)
}

func (s *Store) PutTree(t *Tree) (Hash, error) {
	payload, err := EncodeTree(t)
	if err != nil {
		return Hash{}, err
	}
	return s.Put(TypeTree, payload)
}

func (s *Store) GetTree(h Hash) (*Tree, error) {
	kind, data, err := s.Get(h)
	if err != nil {
		return nil, err
	}
	if kind != TypeTree {
		return nil, fmt.Errorf("object %s: expected tree, got %s", h, kind)
	}
	return DecodeTree(data)
}

func (s *Store) PutCommit(c *Commit) (Hash, error) {
	return s.Put(TypeCommit, EncodeCommit(c))
}

func (s *Store) GetCommit(h Hash) (*Commit, error) {
	kind, data, err := s.Get(h)
	if err != nil {
		return nil, err
	}
	if kind != TypeCommit {
		return nil, fmt.Errorf("object %s: expected commit, got %s", h, kind)
	}
	return DecodeCommit(data)
}

func (s *Store) PutTag(t *Tag) (Hash, error) {
	return s.Put(TypeTag, EncodeTag(t))
}

func (s *Store) GetTag(h Hash) (*Tag, error) {
	kind, data, err := s.Get(h)
	if err != nil {
		return nil, err
	}
	if kind != TypeTag {
		return nil, fmt.Errorf("object %s: expected tag, got %s", h, kind)
	}
	return DecodeTag(data)
}
