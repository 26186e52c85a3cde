package engine

import (
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/cloudxtreme/wlfs/internal/ops"
	"github.com/cloudxtreme/wlfs/internal/vtree"
)

// rawFS is the fuse.RawFileSystem adapter around Engine. It embeds the
// library's null implementation so every out-of-scope wire method
// (xattrs, symlinks, links, locks, ioctl) replies ENOSYS without the
// engine needing to know about it.
type rawFS struct {
	fuse.RawFileSystem
	e *Engine
}

// RawFS returns the fuse.RawFileSystem adapter for e, ready to pass to
// fuse.NewServer.
func (e *Engine) RawFS() fuse.RawFileSystem {
	return &rawFS{RawFileSystem: fuse.NewDefaultRawFileSystem(), e: e}
}

func (r *rawFS) String() string { return "wlfs" }

func (r *rawFS) Init(s *fuse.Server) {}

func (r *rawFS) findDir(ino uint64) (*vtree.Dir, fuse.Status) {
	node, ok := r.e.FindNode(ino)
	if !ok || node.Kind() != vtree.KindDir {
		return nil, fuse.ENOENT
	}
	return node.AsDir(), fuse.OK
}

func (r *rawFS) Lookup(cancel <-chan struct{}, header *fuse.InHeader, name string, out *fuse.EntryOut) fuse.Status {
	parent, status := r.findDir(header.NodeId)
	if !status.Ok() {
		return status
	}
	child, ok := parent.FindChild(name)
	if !ok {
		return fuse.ENOENT
	}
	attr, err := r.getAttr(child)
	if err != nil {
		return fuse.ToStatus(err)
	}
	fillEntryOut(out, attr)
	return fuse.OK
}

func (r *rawFS) getAttr(node vtree.Node) (vtree.Attr, error) {
	p, ok := node.Ops().(ops.Provider)
	if !ok {
		return node.Attr(), nil
	}
	return p.GetAttr(node)
}

func (r *rawFS) GetAttr(cancel <-chan struct{}, input *fuse.GetAttrIn, out *fuse.AttrOut) fuse.Status {
	node, ok := r.e.FindNode(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	attr, err := r.getAttr(node)
	if err != nil {
		return fuse.ToStatus(err)
	}
	fillAttrOut(out, attr)
	return fuse.OK
}

func (r *rawFS) SetAttr(cancel <-chan struct{}, input *fuse.SetAttrIn, out *fuse.AttrOut) fuse.Status {
	node, ok := r.e.FindNode(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}

	attr := node.Attr()
	if input.Valid&fuse.FATTR_SIZE != 0 {
		attr.Size = input.Size
	}
	if input.Valid&fuse.FATTR_MODE != 0 {
		attr.Perm = uint16(input.Mode & 0o7777)
	}
	if input.Valid&fuse.FATTR_UID != 0 {
		attr.Uid = input.Owner.Uid
	}
	if input.Valid&fuse.FATTR_GID != 0 {
		attr.Gid = input.Owner.Gid
	}
	if input.Valid&fuse.FATTR_ATIME != 0 {
		attr.Atime = time.Unix(int64(input.Atime), int64(input.Atimensec))
	}
	if input.Valid&fuse.FATTR_MTIME != 0 {
		attr.Mtime = time.Unix(int64(input.Mtime), int64(input.Mtimensec))
	}
	node.SetAttr(attr)

	updated, err := r.getAttr(node)
	if err != nil {
		return fuse.ToStatus(err)
	}
	fillAttrOut(out, updated)
	return fuse.OK
}

func (r *rawFS) OpenDir(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	_, status := r.findDir(input.NodeId)
	return status
}

func (r *rawFS) ReleaseDir(input *fuse.ReleaseIn) {}

func (r *rawFS) ReadDir(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	if input.Offset > 0 {
		return fuse.OK
	}
	dir, status := r.findDir(input.NodeId)
	if !status.Ok() {
		return status
	}

	out.AddDirEntry(fuse.DirEntry{Mode: unix.S_IFDIR, Name: ".", Ino: dir.Ino()})
	parentIno, hasParent := dir.Parent()
	if !hasParent {
		parentIno = dir.Ino()
	}
	out.AddDirEntry(fuse.DirEntry{Mode: unix.S_IFDIR, Name: "..", Ino: parentIno})

	for name, child := range dir.Children() {
		mode := uint32(unix.S_IFREG)
		if child.Kind() == vtree.KindDir {
			mode = unix.S_IFDIR
		}
		if !out.AddDirEntry(fuse.DirEntry{Mode: mode, Name: name, Ino: child.Ino()}) {
			break
		}
	}
	return fuse.OK
}

func (r *rawFS) Mkdir(cancel <-chan struct{}, input *fuse.MkdirIn, name string, out *fuse.EntryOut) fuse.Status {
	parent, status := r.findDir(input.NodeId)
	if !status.Ok() {
		return status
	}
	dir, err := r.e.Mkdir(parent, name, uint16(input.Mode&0o7777))
	if err != nil {
		return fuse.ToStatus(err)
	}
	fillEntryOut(out, dir.Attr())
	return fuse.OK
}

func (r *rawFS) Mknod(cancel <-chan struct{}, input *fuse.MknodIn, name string, out *fuse.EntryOut) fuse.Status {
	parent, status := r.findDir(input.NodeId)
	if !status.Ok() {
		return status
	}
	f, err := r.e.Mkfile(parent, name, uint16(input.Mode&0o7777))
	if err != nil {
		return fuse.ToStatus(err)
	}
	fillEntryOut(out, f.Attr())
	return fuse.OK
}

func (r *rawFS) Rmdir(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	parent, status := r.findDir(header.NodeId)
	if !status.Ok() {
		return status
	}
	if err := r.e.rmnod(parent, name, vtree.KindDir); err != nil {
		return fuse.ToStatus(err)
	}
	return fuse.OK
}

func (r *rawFS) Unlink(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	parent, status := r.findDir(header.NodeId)
	if !status.Ok() {
		return status
	}
	if err := r.e.rmnod(parent, name, vtree.KindFile); err != nil {
		return fuse.ToStatus(err)
	}
	return fuse.OK
}

// Rename reparents the node in a single engine-lock critical section;
// no provider callback is involved.
func (r *rawFS) Rename(cancel <-chan struct{}, input *fuse.RenameIn, oldName string, newName string) fuse.Status {
	oldParent, status := r.findDir(input.NodeId)
	if !status.Ok() {
		return status
	}
	newParent, status := r.findDir(input.Newdir)
	if !status.Ok() {
		return status
	}

	e := r.e
	e.mu.Lock()
	defer e.mu.Unlock()

	node, ok := oldParent.FindChild(oldName)
	if !ok {
		return fuse.ENOENT
	}
	if _, exists := newParent.FindChild(newName); exists {
		return fuse.ToStatus(unix.EEXIST)
	}

	kind := node.Kind()
	oldParent.RemoveChild(oldName, kind)
	node.SetName(newName)
	if err := newParent.InsertChild(node); err != nil {
		node.SetName(oldName)
		oldParent.InsertChild(node)
		return fuse.ToStatus(err)
	}
	return fuse.OK
}

func (r *rawFS) Open(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	node, ok := r.e.FindNode(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	if node.Kind() == vtree.KindDir {
		return fuse.EBADF
	}
	p, ok := node.Ops().(ops.Provider)
	if !ok {
		return fuse.EIO
	}

	handler, err := p.Open(r.e, node.Ino(), node.Attr().Perm)
	if err != nil {
		return fuse.ToStatus(err)
	}
	fh := r.e.handles.Open(handler)

	r.e.log.WithFields(logrus.Fields{
		"op":     "open",
		"ino":    node.Ino(),
		"handle": fh,
	}).Info("opened handle")

	out.Fh = fh
	out.OpenFlags = fuse.FOPEN_DIRECT_IO
	return fuse.OK
}

func (r *rawFS) Read(cancel <-chan struct{}, input *fuse.ReadIn, buf []byte) (fuse.ReadResult, fuse.Status) {
	h, ok := r.e.handles.Get(input.Fh)
	if !ok {
		return nil, fuse.EBADF
	}
	data, err := h.Read(input.Offset, input.Size)
	if err != nil {
		return nil, fuse.ToStatus(err)
	}
	return &fuse.ReadResultData{Data: data}, fuse.OK
}

func (r *rawFS) Write(cancel <-chan struct{}, input *fuse.WriteIn, data []byte) (uint32, fuse.Status) {
	h, ok := r.e.handles.Get(input.Fh)
	if !ok {
		return 0, fuse.EBADF
	}
	n, err := h.Write(data, input.Offset)
	if err != nil {
		return 0, fuse.ToStatus(err)
	}
	return n, fuse.OK
}

func (r *rawFS) Release(input *fuse.ReleaseIn) {
	h, ok := r.e.handles.Release(input.Fh)
	if !ok {
		return
	}
	flush := input.ReleaseFlags&fuse.RELEASE_FLUSH != 0
	h.Release(input.Flags, flush)

	r.e.log.WithField("handle", input.Fh).Info("released handle")
}

func (r *rawFS) Flush(cancel <-chan struct{}, input *fuse.FlushIn) fuse.Status {
	return fuse.OK
}

func (r *rawFS) Fsync(cancel <-chan struct{}, input *fuse.FsyncIn) fuse.Status {
	return fuse.OK
}

// StatFs replies with a fixed, plausible block count; there is no real
// backing store to report on (see the named supplemented behavior).
func (r *rawFS) StatFs(cancel <-chan struct{}, header *fuse.InHeader, out *fuse.StatfsOut) fuse.Status {
	out.Blocks = 1 << 20
	out.Bfree = 1 << 20
	out.Bavail = 1 << 20
	out.Files = 1 << 16
	out.Ffree = 1 << 16
	out.Bsize = 4096
	out.NameLen = 255
	out.Frsize = 4096
	return fuse.OK
}
