// Package tcpfs is the Plan-9-inspired /tcp example provider suite
// (C7): opening /tcp/clone allocates a numbered session directory, and
// creating a client file named after an address (/tcp/IP:PORT) dials a
// TCP connection whose reads and writes are proxied to the resulting
// socket.
package tcpfs

import (
	"github.com/cloudxtreme/wlfs/internal/ops"
	"github.com/cloudxtreme/wlfs/internal/vtree"
)

const rootName = "tcp"

// RootDirOps is installed at a root directory node named "tcp". Its
// Install hook registers the three helper providers at maximum
// priority, and its Mknod creates the well-known clone file the moment
// /tcp itself is created.
type RootDirOps struct {
	ops.BaseProvider
	namedSessions bool
}

// New returns the provider suite's root provider. Register it with
// engine.RegisterOps at a priority above the built-in DirOps so it wins
// the match for "/tcp" itself (registration runs Install, which installs
// the helpers), then call engine.Mkdir(root, "tcp", ...) to create the
// directory and, through Mknod, its clone file.
//
// namedSessions selects short uuid-prefixed session directory names
// instead of the default decimal counter (see cloneOps).
func New(namedSessions bool) *RootDirOps {
	return &RootDirOps{namedSessions: namedSessions}
}

func (o *RootDirOps) Name() string { return "tcp.root" }

func (o *RootDirOps) CloneForNode() ops.Provider {
	return &RootDirOps{namedSessions: o.namedSessions}
}

func (o *RootDirOps) Matches(path string, kind vtree.Kind) bool {
	return kind == vtree.KindDir && path == "/"+rootName
}

// Install registers the clone-file, session-directory, and client-file
// helpers. They are matched by full path so they only ever fire for
// nodes living under /tcp.
func (o *RootDirOps) Install(fs ops.Filesystem) bool {
	fs.RegisterOps(ops.PriorityMax, newCloneOps(o.namedSessions))
	fs.RegisterOps(ops.PriorityMax, newSessionDirOps())
	fs.RegisterOps(ops.PriorityMax, newClientOps())
	return true
}

func (o *RootDirOps) Uninstall(fs ops.Filesystem) {
	fs.UnregisterOps("tcp.clone")
	fs.UnregisterOps("tcp.session")
	fs.UnregisterOps("tcp.client")
}

// Mknod runs after /tcp itself has been inserted into the tree; it
// eagerly creates /tcp/clone, the well-known entry point of the clone
// pattern.
func (o *RootDirOps) Mknod(fs ops.Filesystem, ino uint64, perm uint16) error {
	node, ok := fs.FindNode(ino)
	if !ok {
		return nil
	}
	dir := node.AsDir()
	_, err := fs.Mkfile(dir, "clone", 0o644)
	return err
}
