package engine

import (
	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"

	"github.com/cloudxtreme/wlfs/internal/vtree"
)

func modeFor(kind vtree.Kind) uint32 {
	if kind == vtree.KindDir {
		return unix.S_IFDIR
	}
	return unix.S_IFREG
}

func toFuseAttr(a vtree.Attr) fuse.Attr {
	return fuse.Attr{
		Ino:       a.Ino,
		Size:      a.Size,
		Blocks:    a.Blocks,
		Atime:     uint64(a.Atime.Unix()),
		Atimensec: uint32(a.Atime.Nanosecond()),
		Mtime:     uint64(a.Mtime.Unix()),
		Mtimensec: uint32(a.Mtime.Nanosecond()),
		Ctime:     uint64(a.Ctime.Unix()),
		Ctimensec: uint32(a.Ctime.Nanosecond()),
		Mode:      modeFor(a.Kind) | uint32(a.Perm),
		Nlink:     a.Nlink,
		Owner:     fuse.Owner{Uid: a.Uid, Gid: a.Gid},
		Rdev:      a.Rdev,
		Blksize:   4096,
	}
}

// fillEntryOut stamps a lookup/create reply. Entry and attribute TTLs
// are left at zero so the kernel never caches a provider-synthesized
// attribute (see the attribute-TTL ambient requirement).
func fillEntryOut(out *fuse.EntryOut, a vtree.Attr) {
	out.NodeId = a.Ino
	out.Generation = 1
	out.EntryValid = 0
	out.EntryValidNsec = 0
	out.AttrValid = 0
	out.AttrValidNsec = 0
	out.Attr = toFuseAttr(a)
}

func fillAttrOut(out *fuse.AttrOut, a vtree.Attr) {
	out.AttrValid = 0
	out.AttrValidNsec = 0
	out.Attr = toFuseAttr(a)
}
