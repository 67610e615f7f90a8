// Package index implements the staging area: a binary DIRC-format file
// tracking the blob each path would contribute to the next commit, plus
// enough stat metadata to cheaply tell whether a working-tree file has
// changed since it was staged.
package index

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/nyxforge/gitcore/pkg/object"
)

const (
	magic          = "DIRC"
	formatVersion  = 2
	headerSize     = 4 + 4 + 4 // magic + version + count
	entryFixedSize = 4 + 4 + 4 + 4 + 4 + 4 + 4 + 4 + 4 + 4 + object.HashSize + 2
)

// Stage identifies which slot of a conflicted path an entry occupies.
// Stage 0 means "no conflict, this is the merged content".
type Stage uint16

const (
	StageMerged Stage = 0
	StageBase   Stage = 1
	StageOurs   Stage = 2
	StageTheirs Stage = 3
)

// Entry is one row of the index: a path (at a given conflict stage)
// paired with its blob and the stat metadata captured at stage time.
type Entry struct {
	CTimeSec  uint32
	CTimeNsec uint32
	MTimeSec  uint32
	MTimeNsec uint32
	Dev       uint32
	Ino       uint32
	Mode      uint32
	UID       uint32
	GID       uint32
	Size      uint32
	Hash      object.Hash
	Stage     Stage
	Name      string
}

func (e Entry) matchesStat(st Stat) bool {
	return e.CTimeSec == st.CTimeSec && e.CTimeNsec == st.CTimeNsec &&
		e.MTimeSec == st.MTimeSec && e.MTimeNsec == st.MTimeNsec &&
		e.Dev == st.Dev && e.Ino == st.Ino && e.Size == st.Size
}

func sortKey(e Entry) (string, Stage) { return e.Name, e.Stage }

// Index is the full in-memory staging area: I4 requires entries sorted
// by (path, stage) ascending, which every mutating method maintains.
type Index struct {
	Entries []Entry
}

func New() *Index {
	return &Index{}
}

func (idx *Index) sort() {
	sort.Slice(idx.Entries, func(i, j int) bool {
		ni, si := sortKey(idx.Entries[i])
		nj, sj := sortKey(idx.Entries[j])
		if ni != nj {
			return ni < nj
		}
		return si < sj
	})
}

// EntriesAt returns every stage present for path, keyed by stage number.
func (idx *Index) EntriesAt(path string) map[Stage]Entry {
	out := make(map[Stage]Entry)
	for _, e := range idx.Entries {
		if e.Name == path {
			out[e.Stage] = e
		}
	}
	return out
}

// HasConflicts reports whether any entry occupies a non-merged stage.
func (idx *Index) HasConflicts() bool {
	for _, e := range idx.Entries {
		if e.Stage != StageMerged {
			return true
		}
	}
	return false
}

// Unstage removes every entry (at any stage) for path.
func (idx *Index) Unstage(path string) {
	out := idx.Entries[:0]
	for _, e := range idx.Entries {
		if e.Name != path {
			out = append(out, e)
		}
	}
	idx.Entries = out
}

// SetEntry inserts or replaces the stage-0 entry for e.Name, first
// removing any stage 1/2/3 entries for that path — the collapse-to-merged
// behavior that resolves a conflict.
func (idx *Index) SetEntry(e Entry) {
	e.Stage = StageMerged
	idx.Unstage(e.Name)
	idx.Entries = append(idx.Entries, e)
	idx.sort()
}

// SetConflictEntry inserts or replaces an entry at a specific non-zero
// stage, used while recording an unresolved three-way merge conflict.
func (idx *Index) SetConflictEntry(e Entry) error {
	if e.Stage == StageMerged {
		return fmt.Errorf("index: conflict entry must use stage 1, 2, or 3")
	}
	out := idx.Entries[:0]
	for _, existing := range idx.Entries {
		if existing.Name == e.Name && existing.Stage == e.Stage {
			continue
		}
		out = append(out, existing)
	}
	idx.Entries = append(out, e)
	idx.sort()
	return nil
}

// IsModified reports whether path's working-tree state differs from what
// is staged. It trusts matching (ctime, mtime, dev, ino, size) without
// re-hashing; on any mismatch it re-hashes the working file and compares
// OIDs, so a touch with unchanged content is not reported as modified.
func (idx *Index) IsModified(path string, st Stat, rehash func() (object.Hash, error)) (bool, error) {
	entries := idx.EntriesAt(path)
	e, ok := entries[StageMerged]
	if !ok {
		return true, nil
	}
	if e.matchesStat(st) {
		return false, nil
	}
	h, err := rehash()
	if err != nil {
		return false, fmt.Errorf("index: is-modified %q: %w", path, err)
	}
	return h != e.Hash, nil
}

// ---------------------------------------------------------------------
// Binary encode/decode
// ---------------------------------------------------------------------

// Encode serializes the index to the DIRC binary format: header, entries
// in (path, stage) order, trailing SHA-1 checksum over everything
// preceding it.
func Encode(idx *Index) ([]byte, error) {
	sorted := make([]Entry, len(idx.Entries))
	copy(sorted, idx.Entries)
	sort.Slice(sorted, func(i, j int) bool {
		ni, si := sortKey(sorted[i])
		nj, sj := sortKey(sorted[j])
		if ni != nj {
			return ni < nj
		}
		return si < sj
	})

	var buf bytes.Buffer
	buf.WriteString(magic)
	writeU32(&buf, formatVersion)
	writeU32(&buf, uint32(len(sorted)))

	for _, e := range sorted {
		if err := encodeEntry(&buf, e); err != nil {
			return nil, err
		}
	}

	sum := sha1.Sum(buf.Bytes())
	buf.Write(sum[:])
	return buf.Bytes(), nil
}

func encodeEntry(buf *bytes.Buffer, e Entry) error {
	nameBytes := []byte(e.Name)
	if len(nameBytes) > 0xFFF {
		return fmt.Errorf("index: name %q too long to encode", e.Name)
	}

	writeU32(buf, e.CTimeSec)
	writeU32(buf, e.CTimeNsec)
	writeU32(buf, e.MTimeSec)
	writeU32(buf, e.MTimeNsec)
	writeU32(buf, e.Dev)
	writeU32(buf, e.Ino)
	writeU32(buf, e.Mode)
	writeU32(buf, e.UID)
	writeU32(buf, e.GID)
	writeU32(buf, e.Size)
	buf.Write(e.Hash[:])

	flags := uint16(e.Stage)<<12 | uint16(len(nameBytes))
	writeU16(buf, flags)
	buf.Write(nameBytes)

	entryLen := entryFixedSize + len(nameBytes)
	padLen := 8 - (entryLen % 8)
	if padLen == 0 {
		padLen = 8
	}
	buf.Write(make([]byte, padLen))
	return nil
}

// Decode parses the DIRC binary format, verifying the trailing checksum.
func Decode(data []byte) (*Index, error) {
	if len(data) < headerSize+sha1.Size {
		return nil, fmt.Errorf("index: too short")
	}
	body := data[:len(data)-sha1.Size]
	trailer := data[len(data)-sha1.Size:]
	sum := sha1.Sum(body)
	if !bytes.Equal(sum[:], trailer) {
		return nil, fmt.Errorf("index: checksum mismatch")
	}

	if string(body[:4]) != magic {
		return nil, fmt.Errorf("index: bad magic %q", body[:4])
	}
	version := binary.BigEndian.Uint32(body[4:8])
	if version != formatVersion {
		return nil, fmt.Errorf("index: unsupported version %d", version)
	}
	count := binary.BigEndian.Uint32(body[8:12])

	pos := headerSize
	entries := make([]Entry, 0, count)
	for i := uint32(0); i < count; i++ {
		e, consumed, err := decodeEntry(body[pos:])
		if err != nil {
			return nil, fmt.Errorf("index: entry %d: %w", i, err)
		}
		entries = append(entries, e)
		pos += consumed
	}
	if pos != len(body) {
		return nil, fmt.Errorf("index: trailing undecoded bytes: %d", len(body)-pos)
	}

	return &Index{Entries: entries}, nil
}

func decodeEntry(data []byte) (Entry, int, error) {
	if len(data) < entryFixedSize {
		return Entry{}, 0, fmt.Errorf("truncated fixed fields")
	}
	var e Entry
	r := &byteCursor{data: data}
	e.CTimeSec = r.u32()
	e.CTimeNsec = r.u32()
	e.MTimeSec = r.u32()
	e.MTimeNsec = r.u32()
	e.Dev = r.u32()
	e.Ino = r.u32()
	e.Mode = r.u32()
	e.UID = r.u32()
	e.GID = r.u32()
	e.Size = r.u32()
	copy(e.Hash[:], r.bytes(object.HashSize))
	flags := r.u16()
	e.Stage = Stage(flags >> 12)
	nameLen := int(flags & 0x0FFF)

	if r.pos+nameLen > len(data) {
		return Entry{}, 0, fmt.Errorf("truncated name")
	}
	e.Name = string(data[r.pos : r.pos+nameLen])
	r.pos += nameLen

	entryLen := entryFixedSize + nameLen
	padLen := 8 - (entryLen % 8)
	if padLen == 0 {
		padLen = 8
	}
	if r.pos+padLen > len(data) {
		return Entry{}, 0, fmt.Errorf("truncated padding")
	}
	r.pos += padLen

	return e, r.pos, nil
}

type byteCursor struct {
	data []byte
	pos  int
}

func (c *byteCursor) u32() uint32 {
	v := binary.BigEndian.Uint32(c.data[c.pos : c.pos+4])
	c.pos += 4
	return v
}

func (c *byteCursor) u16() uint16 {
	v := binary.BigEndian.Uint16(c.data[c.pos : c.pos+2])
	c.pos += 2
	return v
}

func (c *byteCursor) bytes(n int) []byte {
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}
