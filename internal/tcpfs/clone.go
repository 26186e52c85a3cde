package tcpfs

import (
	"strconv"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/cloudxtreme/wlfs/internal/ops"
	"github.com/cloudxtreme/wlfs/internal/vtree"
)

// cloneOps backs /tcp/clone. Opening it allocates a new session
// directory under /tcp and returns its name, once, to the reader.
type cloneOps struct {
	ops.BaseProvider

	mu      sync.Mutex
	counter uint64
	named   bool
}

func newCloneOps(named bool) *cloneOps {
	return &cloneOps{named: named}
}

func (o *cloneOps) Name() string { return "tcp.clone" }

func (o *cloneOps) CloneForNode() ops.Provider {
	return &cloneOps{named: o.named}
}

func (o *cloneOps) Matches(path string, kind vtree.Kind) bool {
	return kind == vtree.KindFile && path == "/tcp/clone"
}

func (o *cloneOps) Mknod(ops.Filesystem, uint64, uint16) error { return nil }

func (o *cloneOps) peekNameLocked() string {
	if o.named {
		return uuid.New().String()[:8]
	}
	return strconv.FormatUint(o.counter, 10)
}

// Open performs the allocation itself: read the counter, mkdir under
// the clone file's parent, and only on success increment the counter
// and hand back a handler whose single Read yields the new directory's
// name. A failed mkdir (e.g. a collision with a manually-created
// directory) leaves the counter untouched so the next open retries the
// same name instead of burning a session number.
func (o *cloneOps) Open(fs ops.Filesystem, ino uint64, perm uint16) (ops.OpenHandler, error) {
	node, ok := fs.FindNode(ino)
	if !ok {
		return nil, unix.ENOENT
	}
	parentIno, ok := node.Parent()
	if !ok {
		return nil, unix.ENOENT
	}
	parentNode, ok := fs.FindNode(parentIno)
	if !ok {
		return nil, unix.ENOENT
	}

	o.mu.Lock()
	name := o.peekNameLocked()
	o.mu.Unlock()

	if _, err := fs.Mkdir(parentNode.AsDir(), name, 0o755); err != nil {
		return nil, err
	}

	o.mu.Lock()
	if !o.named {
		o.counter++
	}
	o.mu.Unlock()

	return &cloneHandler{name: []byte(name)}, nil
}

// cloneHandler yields the allocated session name exactly once; a
// second read at offset 0 (re-reading the same handle) would repeat
// it, but a read past the start yields nothing, the usual
// offset-beyond-start-is-empty rule applied to a single-shot reply.
type cloneHandler struct {
	name []byte
}

func (h *cloneHandler) Read(offset uint64, size uint32) ([]byte, error) {
	if offset > 0 || offset >= uint64(len(h.name)) {
		return []byte{}, nil
	}
	end := offset + uint64(size)
	if end > uint64(len(h.name)) {
		end = uint64(len(h.name))
	}
	return h.name[offset:end], nil
}

func (h *cloneHandler) Write([]byte, uint64) (uint32, error) {
	return 0, unix.ENOSYS
}

func (h *cloneHandler) Release(uint32, bool) error { return nil }
