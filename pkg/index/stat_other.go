//go:build !linux

package index

import "os"

// statFromFileInfo is the portable fallback for platforms where the
// dev/ino/ctime fields of unix.Stat_t aren't available in a uniform
// shape. Dev and Ino stay zero, which only costs IsModified an extra
// rehash on a false-positive "maybe changed" — it can never mask a real
// content change, since the final comparison is always by blob hash.
func statFromFileInfo(fi os.FileInfo) Stat {
	st := Stat{
		MTimeSec: uint32(fi.ModTime().Unix()),
		CTimeSec: uint32(fi.ModTime().Unix()),
		Size:     uint32(fi.Size()),
		Mode:     uint32(fi.Mode().Perm()),
	}
	switch {
	case fi.Mode().IsDir():
		st.Mode |= 0o40000
	case fi.Mode()&os.ModeSymlink != 0:
		st.Mode |= modeFmtLnk
	default:
		st.Mode |= 0o100000
	}
	return st
}
