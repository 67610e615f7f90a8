package object

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
)

const (
	packIndexVersion        = 2
	packIndexFanoutSize     = 256 * 4
	packIndexLargeOffsetBit = uint32(1 << 31)
)

var packIndexMagic = [4]byte{0xff, 't', 'O', 'c'}

// PackIndexEntry is one row in a pack index file.
type PackIndexEntry struct {
	Hash   Hash
	Offset uint64
	CRC32  uint32
}

func normalizePackIndexEntries(entries []PackIndexEntry) []PackIndexEntry {
	out := make([]PackIndexEntry, len(entries))
	copy(out, entries)
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Hash[:], out[j].Hash[:]) < 0
	})
	return out
}

// WritePackIndex writes a Git idx v2 style index for the provided entries
// and pack checksum. It returns the index's own checksum.
func WritePackIndex(w io.Writer, entries []PackIndexEntry, packChecksum Hash) (Hash, error) {
	normalized := normalizePackIndexEntries(entries)

	var buf bytes.Buffer
	buf.Write(packIndexMagic[:])
	_ = binary.Write(&buf, binary.BigEndian, uint32(packIndexVersion))

	fanout := buildPackIndexFanout(normalized)
	for i := 0; i < 256; i++ {
		_ = binary.Write(&buf, binary.BigEndian, fanout[i])
	}

	for _, entry := range normalized {
		buf.Write(entry.Hash[:])
	}
	for _, entry := range normalized {
		_ = binary.Write(&buf, binary.BigEndian, entry.CRC32)
	}

	largeOffsets := make([]uint64, 0)
	for _, entry := range normalized {
		if entry.Offset < uint64(packIndexLargeOffsetBit) {
			_ = binary.Write(&buf, binary.BigEndian, uint32(entry.Offset))
			continue
		}
		pos := uint32(len(largeOffsets))
		ref := packIndexLargeOffsetBit | pos
		_ = binary.Write(&buf, binary.BigEndian, ref)
		largeOffsets = append(largeOffsets, entry.Offset)
	}
	for _, offset := range largeOffsets {
		_ = binary.Write(&buf, binary.BigEndian, offset)
	}

	buf.Write(packChecksum[:])
	indexSum := sha1.Sum(buf.Bytes())
	buf.Write(indexSum[:])

	if _, err := w.Write(buf.Bytes()); err != nil {
		return Hash{}, fmt.Errorf("write pack index: %w", err)
	}
	var out Hash
	copy(out[:], indexSum[:])
	return out, nil
}

func buildPackIndexFanout(entries []PackIndexEntry) [256]uint32 {
	var counts [256]uint32
	for _, entry := range entries {
		counts[entry.Hash[0]]++
	}
	var fanout [256]uint32
	var total uint32
	for i := 0; i < 256; i++ {
		total += counts[i]
		fanout[i] = total
	}
	return fanout
}

// ReadPackIndex parses a Git idx v2 file and returns its entries sorted by
// hash, exactly as WritePackIndex laid them out.
func ReadPackIndex(data []byte) ([]PackIndexEntry, Hash, error) {
	const headerSize = 8
	if len(data) < headerSize {
		return nil, Hash{}, fmt.Errorf("pack index too short")
	}
	if !bytes.Equal(data[:4], packIndexMagic[:]) {
		return nil, Hash{}, fmt.Errorf("bad pack index magic")
	}
	version := binary.BigEndian.Uint32(data[4:8])
	if version != packIndexVersion {
		return nil, Hash{}, fmt.Errorf("unsupported pack index version %d", version)
	}

	pos := headerSize
	if len(data) < pos+packIndexFanoutSize {
		return nil, Hash{}, fmt.Errorf("pack index: truncated fanout table")
	}
	var fanout [256]uint32
	for i := 0; i < 256; i++ {
		fanout[i] = binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4
	}
	count := int(fanout[255])

	hashesStart := pos
	if len(data) < hashesStart+count*HashSize {
		return nil, Hash{}, fmt.Errorf("pack index: truncated hash table")
	}
	hashes := make([]Hash, count)
	for i := 0; i < count; i++ {
		copy(hashes[i][:], data[hashesStart+i*HashSize:hashesStart+(i+1)*HashSize])
	}
	pos = hashesStart + count*HashSize

	crcsStart := pos
	if len(data) < crcsStart+count*4 {
		return nil, Hash{}, fmt.Errorf("pack index: truncated crc table")
	}
	crcs := make([]uint32, count)
	for i := 0; i < count; i++ {
		crcs[i] = binary.BigEndian.Uint32(data[crcsStart+i*4 : crcsStart+(i+1)*4])
	}
	pos = crcsStart + count*4

	offsetsStart := pos
	if len(data) < offsetsStart+count*4 {
		return nil, Hash{}, fmt.Errorf("pack index: truncated offset table")
	}
	rawOffsets := make([]uint32, count)
	var largeCount int
	for i := 0; i < count; i++ {
		rawOffsets[i] = binary.BigEndian.Uint32(data[offsetsStart+i*4 : offsetsStart+(i+1)*4])
		if rawOffsets[i]&packIndexLargeOffsetBit != 0 {
			largeCount++
		}
	}
	pos = offsetsStart + count*4

	largeOffsets := make([]uint64, largeCount)
	if largeCount > 0 {
		if len(data) < pos+largeCount*8 {
			return nil, Hash{}, fmt.Errorf("pack index: truncated large offset table")
		}
		for i := 0; i < largeCount; i++ {
			largeOffsets[i] = binary.BigEndian.Uint64(data[pos+i*8 : pos+(i+1)*8])
		}
		pos += largeCount * 8
	}

	if len(data) < pos+HashSize+HashSize {
		return nil, Hash{}, fmt.Errorf("pack index: truncated trailer")
	}
	var packChecksum Hash
	copy(packChecksum[:], data[pos:pos+HashSize])
	pos += HashSize

	idxSum := sha1.Sum(data[:pos])
	var wantSum Hash
	copy(wantSum[:], data[pos:pos+HashSize])
	if idxSum != [HashSize]byte(wantSum) {
		return nil, Hash{}, fmt.Errorf("pack index checksum mismatch")
	}

	entries := make([]PackIndexEntry, count)
	for i := 0; i < count; i++ {
		offset := uint64(rawOffsets[i])
		if rawOffsets[i]&packIndexLargeOffsetBit != 0 {
			offset = largeOffsets[rawOffsets[i]&^packIndexLargeOffsetBit]
		}
		entries[i] = PackIndexEntry{Hash: hashes[i], Offset: offset, CRC32: crcs[i]}
	}
	return entries, packChecksum, nil
}
