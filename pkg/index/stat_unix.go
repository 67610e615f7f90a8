//go:build linux

package index

import (
	"os"

	"golang.org/x/sys/unix"
)

func statFromFileInfo(fi os.FileInfo) Stat {
	st := Stat{
		MTimeSec: uint32(fi.ModTime().Unix()),
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

	sys, ok := fi.Sys().(*unix.Stat_t)
	if !ok {
		return st
	}

	st.CTimeSec = uint32(sys.Ctim.Sec)
	st.CTimeNsec = uint32(sys.Ctim.Nsec)
	st.MTimeSec = uint32(sys.Mtim.Sec)
	st.MTimeNsec = uint32(sys.Mtim.Nsec)
	st.Dev = uint32(sys.Dev)
	st.Ino = uint32(sys.Ino)
	st.UID = sys.Uid
	st.GID = sys.Gid
	st.Mode = sys.Mode
	return st
}
