package object

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// packSet resolves objects against every packfile found under a
// repository's objects/pack directory. It is re-scanned on every call so
// a concurrent gc/repack that drops a new pack in place is picked up
// without restarting the process.
type packSet struct {
	dir string
}

func newPackSet(dir string) *packSet {
	return &packSet{dir: dir}
}

type loadedPack struct {
	path     string
	data     []byte
	byHash   map[Hash]PackIndexEntry
	checksum Hash
}

func (ps *packSet) load() ([]*loadedPack, error) {
	entries, err := os.ReadDir(ps.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var packs []*loadedPack
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".idx" {
			continue
		}
		base := strings.TrimSuffix(e.Name(), ".idx")
		idxData, err := os.ReadFile(filepath.Join(ps.dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read pack index %s: %w", e.Name(), err)
		}
		idxEntries, checksum, err := ReadPackIndex(idxData)
		if err != nil {
			return nil, fmt.Errorf("parse pack index %s: %w", e.Name(), err)
		}

		packPath := filepath.Join(ps.dir, base+".pack")
		packData, err := os.ReadFile(packPath)
		if err != nil {
			return nil, fmt.Errorf("read pack %s: %w", base, err)
		}

		byHash := make(map[Hash]PackIndexEntry, len(idxEntries))
		for _, ie := range idxEntries {
			byHash[ie.Hash] = ie
		}
		packs = append(packs, &loadedPack{path: packPath, data: packData, byHash: byHash, checksum: checksum})
	}
	return packs, nil
}

func (ps *packSet) has(h Hash) bool {
	packs, err := ps.load()
	if err != nil {
		return false
	}
	for _, p := range packs {
		if _, ok := p.byHash[h]; ok {
			return true
		}
	}
	return false
}

func (ps *packSet) get(h Hash) (ObjectType, []byte, bool, error) {
	packs, err := ps.load()
	if err != nil {
		return "", nil, false, err
	}
	for _, p := range packs {
		if entry, ok := p.byHash[h]; ok {
			kind, payload, err := resolvePackObject(p, packs, entry.Offset, 0)
			if err != nil {
				return "", nil, false, fmt.Errorf("resolve %s in %s: %w", h, p.path, err)
			}
			return kind, payload, true, nil
		}
	}
	return "", nil, false, nil
}

func (ps *packSet) allHashes() ([]Hash, error) {
	packs, err := ps.load()
	if err != nil {
		return nil, err
	}
	var out []Hash
	for _, p := range packs {
		for h := range p.byHash {
			out = append(out, h)
		}
	}
	return out, nil
}

// GCSummary reports the outcome of Store.GC.
type GCSummary struct {
	PackedObjects int
	PackFile      string
	IndexFile     string
}

// GC packs every loose object not already present in a pack into one new
// pack + index pair. It is non-destructive: loose objects remain on disk
// until a caller explicitly prunes them (Store.PruneLoose).
func (s *Store) GC() (*GCSummary, error) {
	looseHashes, err := s.listLooseObjectHashes()
	if err != nil {
		return nil, err
	}
	packHashes, err := s.packs.allHashes()
	if err != nil {
		return nil, err
	}
	packed := make(map[Hash]struct{}, len(packHashes))
	for _, h := range packHashes {
		packed[h] = struct{}{}
	}

	var toPack []Hash
	for _, h := range looseHashes {
		if _, ok := packed[h]; !ok {
			toPack = append(toPack, h)
		}
	}
	if len(toPack) == 0 {
		return &GCSummary{}, nil
	}

	packDir := filepath.Join(s.root, "objects", "pack")
	if err := os.MkdirAll(packDir, 0o755); err != nil {
		return nil, fmt.Errorf("gc: mkdir pack dir: %w", err)
	}

	packTmp, err := os.CreateTemp(packDir, ".tmp-pack-*.pack")
	if err != nil {
		return nil, fmt.Errorf("gc: create pack temp file: %w", err)
	}
	packTmpPath := packTmp.Name()
	packTmpRemoved := false
	defer func() {
		if !packTmpRemoved {
			_ = os.Remove(packTmpPath)
		}
	}()

	pw, err := NewPackWriter(packTmp, uint32(len(toPack)))
	if err != nil {
		_ = packTmp.Close()
		return nil, fmt.Errorf("gc: create pack writer: %w", err)
	}

	indexEntries := make([]PackIndexEntry, 0, len(toPack))
	for _, h := range toPack {
		kind, payload, err := s.readLoose(h)
		if err != nil {
			_ = packTmp.Close()
			return nil, fmt.Errorf("gc: read loose object %s: %w", h, err)
		}
		packType, err := packObjectTypeOf(kind)
		if err != nil {
			_ = packTmp.Close()
			return nil, fmt.Errorf("gc: %w", err)
		}
		offset := pw.CurrentOffset()
		crc, err := pw.WriteEntry(packType, payload)
		if err != nil {
			_ = packTmp.Close()
			return nil, fmt.Errorf("gc: write pack entry %s: %w", h, err)
		}
		indexEntries = append(indexEntries, PackIndexEntry{Hash: h, Offset: offset, CRC32: crc})
	}

	packChecksum, err := pw.Finish()
	if err != nil {
		_ = packTmp.Close()
		return nil, fmt.Errorf("gc: finalize pack: %w", err)
	}
	if err := packTmp.Close(); err != nil {
		return nil, fmt.Errorf("gc: close pack temp file: %w", err)
	}

	packBase := "pack-" + packChecksum.String()
	packPath := filepath.Join(packDir, packBase+".pack")
	idxPath := filepath.Join(packDir, packBase+".idx")
	if err := os.Rename(packTmpPath, packPath); err != nil {
		return nil, fmt.Errorf("gc: rename pack file: %w", err)
	}
	packTmpRemoved = true

	idxTmp, err := os.CreateTemp(packDir, ".tmp-pack-*.idx")
	if err != nil {
		_ = os.Remove(packPath)
		return nil, fmt.Errorf("gc: create index temp file: %w", err)
	}
	idxTmpPath := idxTmp.Name()
	idxTmpRemoved := false
	defer func() {
		if !idxTmpRemoved {
			_ = os.Remove(idxTmpPath)
		}
	}()

	if _, err := WritePackIndex(idxTmp, indexEntries, packChecksum); err != nil {
		_ = idxTmp.Close()
		_ = os.Remove(packPath)
		return nil, fmt.Errorf("gc: write pack index: %w", err)
	}
	if err := idxTmp.Close(); err != nil {
		_ = os.Remove(packPath)
		return nil, fmt.Errorf("gc: close index temp file: %w", err)
	}
	if err := os.Rename(idxTmpPath, idxPath); err != nil {
		_ = os.Remove(packPath)
		return nil, fmt.Errorf("gc: rename index file: %w", err)
	}
	idxTmpRemoved = true

	return &GCSummary{
		PackedObjects: len(toPack),
		PackFile:      filepath.Base(packPath),
		IndexFile:     filepath.Base(idxPath),
	}, nil
}

// PruneLoose removes loose object files that are already present in some
// pack. Call after GC once the caller is confident the new pack is sound.
func (s *Store) PruneLoose() (int, error) {
	packHashes, err := s.packs.allHashes()
	if err != nil {
		return 0, err
	}
	packed := make(map[Hash]struct{}, len(packHashes))
	for _, h := range packHashes {
		packed[h] = struct{}{}
	}

	looseHashes, err := s.listLooseObjectHashes()
	if err != nil {
		return 0, err
	}
	pruned := 0
	for _, h := range looseHashes {
		if _, ok := packed[h]; !ok {
			continue
		}
		if err := os.Remove(s.loosePath(h)); err != nil && !os.IsNotExist(err) {
			return pruned, fmt.Errorf("prune loose %s: %w", h, err)
		}
		pruned++
	}
	return pruned, nil
}

func (s *Store) readLoose(h Hash) (ObjectType, []byte, error) {
	data, err := os.ReadFile(s.loosePath(h))
	if err != nil {
		return "", nil, err
	}
	return inflateFramed(data)
}

func (s *Store) listLooseObjectHashes() ([]Hash, error) {
	objectsDir := filepath.Join(s.root, "objects")
	fanoutDirs, err := os.ReadDir(objectsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read objects dir: %w", err)
	}

	var hashes []Hash
	for _, fanoutDir := range fanoutDirs {
		if !fanoutDir.IsDir() || fanoutDir.Name() == "pack" || len(fanoutDir.Name()) != 2 {
			continue
		}
		objectEntries, err := os.ReadDir(filepath.Join(objectsDir, fanoutDir.Name()))
		if err != nil {
			return nil, fmt.Errorf("read objects fanout %s: %w", fanoutDir.Name(), err)
		}
		for _, e := range objectEntries {
			if e.IsDir() || len(e.Name()) != HashSize*2-2 {
				continue
			}
			h, err := ParseHash(fanoutDir.Name() + e.Name())
			if err != nil {
				continue
			}
			hashes = append(hashes, h)
		}
	}
	return hashes, nil
}

const maxDeltaChainDepth = 64

// resolvePackObject decodes the entry at offset within pack p, following
// OFS_DELTA/REF_DELTA chains (searching sibling packs for REF_DELTA bases)
// until a full object is reconstructed.
func resolvePackObject(p *loadedPack, siblings []*loadedPack, offset uint64, depth int) (ObjectType, []byte, error) {
	if depth > maxDeltaChainDepth {
		return "", nil, fmt.Errorf("delta chain too deep")
	}
	if offset >= uint64(len(p.data)) {
		return "", nil, fmt.Errorf("entry offset %d out of range", offset)
	}

	packType, size, headerLen, err := decodePackEntryHeader(p.data[offset:])
	if err != nil {
		return "", nil, err
	}
	pos := offset + uint64(headerLen)

	switch packType {
	case PackCommit, PackTree, PackBlob, PackTag:
		payload, err := inflatePackBody(p.data, pos, size)
		if err != nil {
			return "", nil, err
		}
		kind, err := objectTypeOfPack(packType)
		if err != nil {
			return "", nil, err
		}
		return kind, payload, nil

	case PackOfsDelta:
		distance, distLen, err := decodeOfsDeltaDistance(p.data[pos:])
		if err != nil {
			return "", nil, err
		}
		pos += uint64(distLen)
		if distance > offset {
			return "", nil, fmt.Errorf("ofs-delta base offset underflows pack start")
		}
		baseOffset := offset - distance

		deltaPayload, err := inflatePackBody(p.data, pos, size)
		if err != nil {
			return "", nil, err
		}
		baseKind, baseData, err := resolvePackObject(p, siblings, baseOffset, depth+1)
		if err != nil {
			return "", nil, err
		}
		result, err := applyDelta(baseData, deltaPayload)
		if err != nil {
			return "", nil, err
		}
		return baseKind, result, nil

	case PackRefDelta:
		if pos+HashSize > uint64(len(p.data)) {
			return "", nil, fmt.Errorf("truncated ref-delta base hash")
		}
		var baseHash Hash
		copy(baseHash[:], p.data[pos:pos+HashSize])
		pos += HashSize

		deltaPayload, err := inflatePackBody(p.data, pos, size)
		if err != nil {
			return "", nil, err
		}

		baseKind, baseData, err := resolveAcrossPacks(siblings, baseHash, depth+1)
		if err != nil {
			return "", nil, fmt.Errorf("ref-delta base %s: %w", baseHash, err)
		}
		result, err := applyDelta(baseData, deltaPayload)
		if err != nil {
			return "", nil, err
		}
		return baseKind, result, nil

	default:
		return "", nil, fmt.Errorf("unsupported pack entry type %d", packType)
	}
}

func resolveAcrossPacks(packs []*loadedPack, h Hash, depth int) (ObjectType, []byte, error) {
	for _, p := range packs {
		if entry, ok := p.byHash[h]; ok {
			return resolvePackObject(p, packs, entry.Offset, depth)
		}
	}
	return "", nil, ErrNotFound
}

func inflatePackBody(data []byte, pos uint64, wantSize uint64) ([]byte, error) {
	if pos >= uint64(len(data)) {
		return nil, fmt.Errorf("entry body offset out of range")
	}
	zr, err := zlib.NewReader(bytes.NewReader(data[pos:]))
	if err != nil {
		return nil, fmt.Errorf("zlib reader: %w", err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress entry: %w", err)
	}
	if uint64(len(raw)) != wantSize {
		return nil, fmt.Errorf("entry size mismatch: header=%d decoded=%d", wantSize, len(raw))
	}
	return raw, nil
}
