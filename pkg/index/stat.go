package index

import (
	"os"

	"github.com/nyxforge/gitcore/pkg/object"
)

// Stat is the subset of file metadata the index stores per entry, used
// by IsModified to cheaply short-circuit re-hashing an unchanged file.
type Stat struct {
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
}

// StatPath stats path and extracts the fields the index tracks. On
// platforms without dev/ino/ctime support (see stat_other.go) dev and
// ino are left zero and ctime mirrors mtime, which only costs an extra rehash on the rare
// false-positive "maybe modified" path; it never hides a real change.
func StatPath(path string) (Stat, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return Stat{}, err
	}
	return statFromFileInfo(fi), nil
}

// EntryFromStat builds a fresh stage-0 entry for path from its blob hash
// and captured stat metadata.
func EntryFromStat(name string, hash object.Hash, st Stat) Entry {
	return Entry{
		CTimeSec:  st.CTimeSec,
		CTimeNsec: st.CTimeNsec,
		MTimeSec:  st.MTimeSec,
		MTimeNsec: st.MTimeNsec,
		Dev:       st.Dev,
		Ino:       st.Ino,
		Mode:      st.Mode,
		UID:       st.UID,
		GID:       st.GID,
		Size:      st.Size,
		Hash:      hash,
		Stage:     StageMerged,
		Name:      name,
	}
}
