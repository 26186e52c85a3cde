package ops

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/cloudxtreme/wlfs/internal/vtree"
)

// FileOps is the catch-all provider for plain files: an in-memory byte
// buffer, installed at PriorityMin so any more specific provider matched
// on the same path always wins. Matches every file path.
type FileOps struct {
	BaseProvider

	mu   sync.Mutex
	data []byte
}

func NewFileOps() *FileOps { return &FileOps{} }

func (o *FileOps) Name() string { return "builtin.file" }

func (o *FileOps) CloneForNode() Provider { return &FileOps{} }

func (o *FileOps) Matches(_ string, kind vtree.Kind) bool {
	return kind == vtree.KindFile
}

func (o *FileOps) GetAttr(node vtree.Node) (vtree.Attr, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	attr := node.Attr()
	attr.Size = uint64(len(o.data))
	return attr, nil
}

func (o *FileOps) Mknod(Filesystem, uint64, uint16) error { return nil }

func (o *FileOps) Rmnod(Filesystem, uint64) error { return nil }

func (o *FileOps) Open(_ Filesystem, _ uint64, _ uint16) (OpenHandler, error) {
	return &fileHandler{owner: o}, nil
}

// fileHandler is the per-open session against a FileOps buffer. Reads
// and writes go straight through to the shared buffer under its lock;
// there is no independent per-handle cursor because the kernel bridge
// always supplies an explicit offset.
type fileHandler struct {
	owner *FileOps
}

func (h *fileHandler) Read(offset uint64, size uint32) ([]byte, error) {
	h.owner.mu.Lock()
	defer h.owner.mu.Unlock()

	if offset >= uint64(len(h.owner.data)) {
		return []byte{}, nil
	}
	end := offset + uint64(size)
	if end > uint64(len(h.owner.data)) {
		end = uint64(len(h.owner.data))
	}
	out := make([]byte, end-offset)
	copy(out, h.owner.data[offset:end])
	return out, nil
}

func (h *fileHandler) Write(data []byte, offset uint64) (uint32, error) {
	h.owner.mu.Lock()
	defer h.owner.mu.Unlock()

	end := offset + uint64(len(data))
	if end > uint64(len(h.owner.data)) {
		grown := make([]byte, end)
		copy(grown, h.owner.data)
		h.owner.data = grown
	}
	copy(h.owner.data[offset:end], data)
	return uint32(len(data)), nil
}

func (h *fileHandler) Release(uint32, bool) error { return nil }

// DirOps is the catch-all provider for plain directories: it carries no
// state of its own beyond what vtree.Dir already tracks. Its mknod and
// rmnod are no-ops, since plain directories have no provider-owned
// backing resource to allocate, and open is rejected with EISDIR.
type DirOps struct {
	BaseProvider
}

func NewDirOps() *DirOps { return &DirOps{} }

func (o *DirOps) Name() string { return "builtin.dir" }

func (o *DirOps) CloneForNode() Provider { return &DirOps{} }

func (o *DirOps) Matches(_ string, kind vtree.Kind) bool {
	return kind == vtree.KindDir
}

func (o *DirOps) Mknod(Filesystem, uint64, uint16) error { return nil }

func (o *DirOps) Rmnod(Filesystem, uint64) error { return nil }

func (o *DirOps) Open(Filesystem, uint64, uint16) (OpenHandler, error) {
	return nil, unix.EISDIR
}
