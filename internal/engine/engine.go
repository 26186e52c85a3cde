// Package engine implements the filesystem engine (C5): it owns the
// inode tree, the operations registry, and the open-handle table, and
// presents the kernel-bridge callback contract as a fuse.RawFileSystem.
//
// Engine methods that a provider may call back into during its own
// mknod/install/open callback (FindNode, PathOf, Mkdir, Mkfile,
// RegisterOps, UnregisterOps) never hold the engine's lock while
// invoking a provider's Install, Uninstall, Mknod, Rmnod or Open hook —
// see mknod/rmnod below for the pattern. Provider matching (Matches,
// CloneForNode) does run under the lock.
package engine

import (
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/cloudxtreme/wlfs/internal/handle"
	"github.com/cloudxtreme/wlfs/internal/ops"
	"github.com/cloudxtreme/wlfs/internal/vtree"
)

const rootIno = 1

// Engine owns the whole virtual tree and dispatches kernel-bridge
// callbacks against it. The zero value is not usable; construct with
// New.
type Engine struct {
	log *logrus.Entry

	mu        sync.Mutex
	root      *vtree.Dir
	inodes    map[uint64]vtree.Node
	nextIno   uint64
	registry  *ops.Registry
	installed []string
	handles   *handle.Table
}

// New constructs an engine with the root directory installed and the
// built-in file/dir providers registered at ops.PriorityMin, guaranteeing
// every (path, kind) request has a match (invariant 6).
func New(log *logrus.Entry) *Engine {
	attr := vtree.NewAttr(vtree.KindDir)
	attr.Ino = rootIno
	attr.Perm = 0o755
	root := vtree.NewDir("/", attr, nil)

	e := &Engine{
		log:      log,
		root:     root,
		inodes:   map[uint64]vtree.Node{rootIno: root},
		nextIno:  rootIno + 1,
		registry: ops.NewRegistry(),
		handles:  handle.New(),
	}

	fileOps := ops.NewFileOps()
	dirOps := ops.NewDirOps()
	root.SetOps(dirOps)
	e.RegisterOps(ops.PriorityMin, fileOps)
	e.RegisterOps(ops.PriorityMin, dirOps)

	return e
}

// Root returns the root directory node.
func (e *Engine) Root() *vtree.Dir {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.root
}

// FindNode looks a node up by inode. Safe to call from a provider
// callback.
func (e *Engine) FindNode(ino uint64) (vtree.Node, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.inodes[ino]
	return n, ok
}

func (e *Engine) resolveLocked(ino uint64) (vtree.Node, bool) {
	n, ok := e.inodes[ino]
	return n, ok
}

func (e *Engine) pathOfLocked(node vtree.Node) string {
	return vtree.PathOf(e.resolveLocked, node)
}

// PathOf reconstructs a node's full path. Safe to call from a provider
// callback.
func (e *Engine) PathOf(node vtree.Node) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pathOfLocked(node)
}

func joinPath(parentPath, name string) string {
	if parentPath == "/" {
		return "/" + name
	}
	return parentPath + "/" + name
}

// RegisterOps installs p at priority. Install is invoked without the
// engine lock held, so a provider's install hook may itself call Mkdir,
// Mkfile, or RegisterOps.
func (e *Engine) RegisterOps(priority ops.Priority, p ops.Provider) {
	if !p.Install(e) {
		e.log.WithField("provider", p.Name()).Debug("provider declined install")
		return
	}
	e.mu.Lock()
	e.registry.Register(priority, p)
	e.installed = append(e.installed, p.Name())
	e.mu.Unlock()

	e.log.WithFields(logrus.Fields{
		"provider": p.Name(),
		"priority": priority,
	}).Info("registered operation provider")
}

// UnregisterOps removes the provider by name and invokes its Uninstall
// hook outside the engine lock.
func (e *Engine) UnregisterOps(name string) {
	e.mu.Lock()
	p, ok := e.registry.Unregister(name)
	if ok {
		e.removeInstalled(name)
	}
	e.mu.Unlock()
	if !ok {
		return
	}

	p.Uninstall(e)
	e.log.WithField("provider", name).Info("unregistered operation provider")
}

func (e *Engine) removeInstalled(name string) {
	for i, n := range e.installed {
		if n == name {
			e.installed = append(e.installed[:i], e.installed[i+1:]...)
			return
		}
	}
}

// Destroy uninstalls every remaining provider in insertion order and
// drops the tree. Called once, at mount teardown.
func (e *Engine) Destroy() {
	e.mu.Lock()
	names := append([]string(nil), e.installed...)
	e.mu.Unlock()

	for _, name := range names {
		e.UnregisterOps(name)
	}

	e.mu.Lock()
	e.root = vtree.NewDir("/", vtree.NewAttr(vtree.KindDir), nil)
	e.inodes = map[uint64]vtree.Node{}
	e.mu.Unlock()

	e.log.WithField("providers", names).Info("engine destroyed")
}

// mknod implements the create lifecycle: the node is inserted into the
// tree and inode map *before* the provider's Mknod runs, so a provider
// callback can resolve it via FindNode; on provider failure both
// inserts are rolled back.
func (e *Engine) mknod(parent *vtree.Dir, name string, kind vtree.Kind, mode uint16) (vtree.Node, error) {
	e.mu.Lock()
	parentPath := e.pathOfLocked(parent)
	childPath := joinPath(parentPath, name)

	provider, ok := e.registry.Match(childPath, kind)
	if !ok {
		e.mu.Unlock()
		return nil, unix.ENOSYS
	}

	ino := e.nextIno
	attr := vtree.NewAttr(kind)
	attr.Ino = ino
	attr.Perm = mode & 0o7777

	nodeOps := provider.CloneForNode()
	var node vtree.Node
	if kind == vtree.KindDir {
		node = vtree.NewDir(name, attr, nodeOps)
	} else {
		node = vtree.NewFile(name, attr, nodeOps)
	}

	if err := parent.InsertChild(node); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	e.nextIno++
	e.inodes[ino] = node
	e.mu.Unlock()

	if err := nodeOps.Mknod(e, ino, attr.Perm); err != nil {
		e.mu.Lock()
		parent.RemoveChild(name, kind)
		delete(e.inodes, ino)
		e.mu.Unlock()
		return nil, err
	}

	e.log.WithFields(logrus.Fields{
		"op":   "mknod",
		"path": childPath,
		"ino":  ino,
	}).Info("created node")
	return node, nil
}

// Mkdir creates a directory child of parent. Safe to call from a
// provider callback (the clone pattern's primary use).
func (e *Engine) Mkdir(parent *vtree.Dir, name string, mode uint16) (*vtree.Dir, error) {
	node, err := e.mknod(parent, name, vtree.KindDir, mode)
	if err != nil {
		return nil, err
	}
	return node.AsDir(), nil
}

// Mkfile creates a regular-file child of parent.
func (e *Engine) Mkfile(parent *vtree.Dir, name string, mode uint16) (*vtree.File, error) {
	node, err := e.mknod(parent, name, vtree.KindFile, mode)
	if err != nil {
		return nil, err
	}
	return node.AsFile(), nil
}

// rmnod implements the remove lifecycle. The kind check happens before
// the provider's Rmnod runs and before any tree mutation, so a provider
// failure or a kind mismatch never leaves an orphaned inode-map entry.
func (e *Engine) rmnod(parent *vtree.Dir, name string, kind vtree.Kind) error {
	e.mu.Lock()
	node, ok := parent.FindChild(name)
	if !ok || node.Kind() != kind {
		e.mu.Unlock()
		return unix.ENOENT
	}
	ino := node.Ino()
	provider, _ := node.Ops().(ops.Provider)
	e.mu.Unlock()

	if provider != nil {
		if err := provider.Rmnod(e, ino); err != nil {
			return err
		}
	}

	e.mu.Lock()
	parent.RemoveChild(name, kind)
	delete(e.inodes, ino)
	e.mu.Unlock()

	e.log.WithFields(logrus.Fields{
		"op":  "rmnod",
		"ino": ino,
	}).Info("removed node")
	return nil
}
