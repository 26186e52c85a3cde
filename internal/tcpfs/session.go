package tcpfs

import (
	"regexp"

	"golang.org/x/sys/unix"

	"github.com/cloudxtreme/wlfs/internal/ops"
	"github.com/cloudxtreme/wlfs/internal/vtree"
)

// sessionPattern matches both the default decimal counter names and the
// short hex-uuid names used when named sessions are enabled.
var sessionPattern = regexp.MustCompile(`^/tcp/[0-9a-f]+$`)

// sessionDirOps backs the per-connection directories the clone pattern
// creates. They carry no state of their own; they exist purely as a
// namespace marker for an allocated session.
type sessionDirOps struct {
	ops.BaseProvider
}

func newSessionDirOps() *sessionDirOps { return &sessionDirOps{} }

func (o *sessionDirOps) Name() string { return "tcp.session" }

func (o *sessionDirOps) CloneForNode() ops.Provider { return &sessionDirOps{} }

func (o *sessionDirOps) Matches(path string, kind vtree.Kind) bool {
	return kind == vtree.KindDir && sessionPattern.MatchString(path)
}

func (o *sessionDirOps) Mknod(ops.Filesystem, uint64, uint16) error { return nil }

func (o *sessionDirOps) Rmnod(ops.Filesystem, uint64) error { return nil }

func (o *sessionDirOps) Open(ops.Filesystem, uint64, uint16) (ops.OpenHandler, error) {
	return nil, unix.EISDIR
}
