package merge

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"github.com/nyxforge/gitcore/pkg/diff3"
	"github.com/nyxforge/gitcore/pkg/index"
	"github.com/nyxforge/gitcore/pkg/object"
)

// Status is the outcome of a merge attempt.
type Status int

const (
	AlreadyUpToDate Status = iota
	FastForward
	Success
	Conflicts
	Failed
)

func (s Status) String() string {
	switch s {
	case AlreadyUpToDate:
		return "AlreadyUpToDate"
	case FastForward:
		return "FastForward"
	case Success:
		return "Success"
	case Conflicts:
		return "Conflicts"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Conflict records one unresolved path: the blob each side contributed
// (a zero Hash means the path was absent on that side) and the
// conflict-marker content written to the index stage-2/3 entries and
// the working tree.
type Conflict struct {
	Path    string
	Mode    string
	Base    object.Hash
	Ours    object.Hash
	Theirs  object.Hash
	Rendered []byte
}

// Result is the outcome of a three-way commit merge.
type Result struct {
	Status    Status
	Tree      object.Hash // valid on Success/FastForward
	Conflicts []Conflict  // valid on Conflicts
}

const binarySniffLen = 8 << 10

func looksBinary(data []byte) bool {
	if len(data) > binarySniffLen {
		data = data[:binarySniffLen]
	}
	return bytes.IndexByte(data, 0) >= 0
}

// Merge performs a three-way merge of the ours and theirs commits.
// AlreadyUpToDate and FastForward short-circuit without reading either
// tree. Otherwise the two trees are diffed against their merge base
// path by path; conflicting file content is resolved with diff3.Merge,
// falling back to an unconditional conflict for binary content that
// differs on all three sides.
func Merge(store *object.Store, ours, theirs object.Hash) (*Result, error) {
	if ours == theirs {
		return &Result{Status: AlreadyUpToDate}, nil
	}

	base, err := FindBase(store, ours, theirs)
	if err != nil {
		return &Result{Status: Failed}, err
	}

	if base == ours {
		theirsCommit, err := store.GetCommit(theirs)
		if err != nil {
			return &Result{Status: Failed}, fmt.Errorf("merge: read theirs commit: %w", err)
		}
		return &Result{Status: FastForward, Tree: theirsCommit.Tree}, nil
	}
	if base == theirs {
		return &Result{Status: AlreadyUpToDate}, nil
	}

	baseCommit, err := store.GetCommit(base)
	if err != nil {
		return &Result{Status: Failed}, fmt.Errorf("merge: read base commit: %w", err)
	}
	oursCommit, err := store.GetCommit(ours)
	if err != nil {
		return &Result{Status: Failed}, fmt.Errorf("merge: read ours commit: %w", err)
	}
	theirsCommit, err := store.GetCommit(theirs)
	if err != nil {
		return &Result{Status: Failed}, fmt.Errorf("merge: read theirs commit: %w", err)
	}

	baseEntries, err := index.ReadTree(store, baseCommit.Tree)
	if err != nil {
		return &Result{Status: Failed}, fmt.Errorf("merge: flatten base tree: %w", err)
	}
	oursEntries, err := index.ReadTree(store, oursCommit.Tree)
	if err != nil {
		return &Result{Status: Failed}, fmt.Errorf("merge: flatten ours tree: %w", err)
	}
	theirsEntries, err := index.ReadTree(store, theirsCommit.Tree)
	if err != nil {
		return &Result{Status: Failed}, fmt.Errorf("merge: flatten theirs tree: %w", err)
	}

	baseMap := byPath(baseEntries)
	oursMap := byPath(oursEntries)
	theirsMap := byPath(theirsEntries)
	paths := allPaths(baseMap, oursMap, theirsMap)

	var merged []index.Entry
	var conflicts []Conflict

	for _, p := range paths {
		x, inBase := baseMap[p]
		y, inOurs := oursMap[p]
		z, inTheirs := theirsMap[p]

		switch {
		case inBase && inOurs && inTheirs:
			e, conflict, err := mergePresentInAll(store, p, x, y, z)
			if err != nil {
				return &Result{Status: Failed}, err
			}
			if conflict != nil {
				conflicts = append(conflicts, *conflict)
			} else {
				merged = append(merged, e)
			}

		case !inBase && inOurs && inTheirs:
			if y.Hash == z.Hash {
				merged = append(merged, y)
				continue
			}
			conflicts = append(conflicts, renderConflict(store, p, modeStringOf(y), object.Hash{}, y.Hash, z.Hash))

		case inBase && inOurs && !inTheirs:
			if y.Hash == x.Hash {
				continue // deleted by theirs, ours untouched: clean delete
			}
			conflicts = append(conflicts, renderConflict(store, p, modeStringOf(y), x.Hash, y.Hash, object.Hash{}))

		case inBase && !inOurs && inTheirs:
			if z.Hash == x.Hash {
				continue // deleted by ours, theirs untouched: clean delete
			}
			conflicts = append(conflicts, renderConflict(store, p, modeStringOf(z), x.Hash, object.Hash{}, z.Hash))

		case !inBase && inOurs && !inTheirs:
			merged = append(merged, y)

		case !inBase && !inOurs && inTheirs:
			merged = append(merged, z)

		case inBase && !inOurs && !inTheirs:
			// deleted on both sides: stays deleted
		}
	}

	if len(conflicts) > 0 {
		sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].Path < conflicts[j].Path })
		return &Result{Status: Conflicts, Conflicts: conflicts}, nil
	}

	idx := index.New()
	for _, e := range merged {
		idx.SetEntry(e)
	}
	tree, err := index.WriteTree(store, idx)
	if err != nil {
		return &Result{Status: Failed}, fmt.Errorf("merge: write tree: %w", err)
	}
	return &Result{Status: Success, Tree: tree}, nil
}

func mergePresentInAll(store *object.Store, path string, base, ours, theirs index.Entry) (index.Entry, *Conflict, error) {
	if ours.Hash == theirs.Hash {
		return ours, nil, nil
	}
	if ours.Hash == base.Hash {
		return theirs, nil, nil
	}
	if theirs.Hash == base.Hash {
		return ours, nil, nil
	}

	baseBlob, err := store.GetBlob(base.Hash)
	if err != nil {
		return index.Entry{}, nil, fmt.Errorf("merge %q: read base blob: %w", path, err)
	}
	oursBlob, err := store.GetBlob(ours.Hash)
	if err != nil {
		return index.Entry{}, nil, fmt.Errorf("merge %q: read ours blob: %w", path, err)
	}
	theirsBlob, err := store.GetBlob(theirs.Hash)
	if err != nil {
		return index.Entry{}, nil, fmt.Errorf("merge %q: read theirs blob: %w", path, err)
	}

	if looksBinary(baseBlob.Data) || looksBinary(oursBlob.Data) || looksBinary(theirsBlob.Data) {
		c := renderConflict(store, path, modeStringOf(ours), base.Hash, ours.Hash, theirs.Hash)
		return index.Entry{}, &c, nil
	}

	result := diff3.Merge(baseBlob.Data, oursBlob.Data, theirsBlob.Data)
	if !result.HasConflicts {
		h, err := store.PutBlob(&object.Blob{Data: result.Merged})
		if err != nil {
			return index.Entry{}, nil, fmt.Errorf("merge %q: write merged blob: %w", path, err)
		}
		e := ours
		e.Hash = h
		e.Name = path
		e.Stage = index.StageMerged
		return e, nil, nil
	}

	c := Conflict{
		Path:     path,
		Mode:     modeStringOf(ours),
		Base:     base.Hash,
		Ours:     ours.Hash,
		Theirs:   theirs.Hash,
		Rendered: result.Merged,
	}
	return index.Entry{}, &c, nil
}

// renderConflict builds a Conflict for paths that aren't a clean
// three-way text merge: add/add divergence, delete/modify, or binary
// content that differs on every side. It brackets whichever sides are
// present with the standard ours/theirs markers.
func renderConflict(store *object.Store, path, mode string, base, ours, theirs object.Hash) Conflict {
	var oursData, theirsData []byte
	if !ours.IsZero() {
		if b, err := store.GetBlob(ours); err == nil {
			oursData = b.Data
		}
	}
	if !theirs.IsZero() {
		if b, err := store.GetBlob(theirs); err == nil {
			theirsData = b.Data
		}
	}

	var buf bytes.Buffer
	buf.WriteString("<<<<<<< ours\n")
	buf.Write(oursData)
	if len(oursData) > 0 && oursData[len(oursData)-1] != '\n' {
		buf.WriteByte('\n')
	}
	buf.WriteString("=======\n")
	buf.Write(theirsData)
	if len(theirsData) > 0 && theirsData[len(theirsData)-1] != '\n' {
		buf.WriteByte('\n')
	}
	buf.WriteString(">>>>>>> theirs\n")

	return Conflict{Path: path, Mode: mode, Base: base, Ours: ours, Theirs: theirs, Rendered: buf.Bytes()}
}

func modeStringOf(e index.Entry) string {
	return strconv.FormatUint(uint64(e.Mode), 8)
}

func byPath(entries []index.Entry) map[string]index.Entry {
	m := make(map[string]index.Entry, len(entries))
	for _, e := range entries {
		m[e.Name] = e
	}
	return m
}

func allPaths(maps ...map[string]index.Entry) []string {
	seen := make(map[string]struct{})
	for _, m := range maps {
		for p := range m {
			seen[p] = struct{}{}
		}
	}
	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
