// Package ops defines the pluggable-operation contract (the "Operations"
// capability) that the engine dispatches to, plus the built-in File/Dir
// providers that guarantee every (path, kind) request has a match.
//
// This package depends on vtree but never on the engine package: the
// Filesystem interface below is the narrow slice of engine behavior a
// provider is allowed to call back into, declared here so engine can
// implement it without ops importing engine (which would cycle back
// through engine's own dependency on ops.Provider).
package ops

import (
	"syscall"

	"github.com/cloudxtreme/wlfs/internal/vtree"
)

// Priority orders providers in the registry; higher is matched first.
type Priority = uint32

const (
	PriorityMin Priority = 0
	PriorityMax Priority = ^Priority(0)
)

// Filesystem is the subset of the engine a provider may call back into
// from install/mknod/rmnod/open. Engine methods reachable here must be
// re-entrant: none of them may hold a lock or partial borrow across a
// call back into a provider.
type Filesystem interface {
	FindNode(ino uint64) (vtree.Node, bool)
	PathOf(node vtree.Node) string
	Mkdir(parent *vtree.Dir, name string, mode uint16) (*vtree.Dir, error)
	Mkfile(parent *vtree.Dir, name string, mode uint16) (*vtree.File, error)
	RegisterOps(priority Priority, p Provider)
	UnregisterOps(name string)
}

// OpenHandler is the per-open session a provider's Open returns. Its
// lifetime is independent of the node it was opened from (see
// Provider.Open and the handle package).
type OpenHandler interface {
	Read(offset uint64, size uint32) ([]byte, error)
	Write(data []byte, offset uint64) (uint32, error)
	Release(flags uint32, flush bool) error
}

// Provider is a stateful operation handler matched against (path, kind)
// requests. Name and CloneForNode have no useful default and must be
// implemented by every provider; the rest default through BaseProvider.
type Provider interface {
	Name() string
	CloneForNode() Provider

	Install(fs Filesystem) bool
	Uninstall(fs Filesystem)
	Matches(path string, kind vtree.Kind) bool
	GetAttr(node vtree.Node) (vtree.Attr, error)
	Mknod(fs Filesystem, ino uint64, perm uint16) error
	Rmnod(fs Filesystem, ino uint64) error
	Open(fs Filesystem, ino uint64, perm uint16) (OpenHandler, error)
}

// BaseProvider supplies null-op defaults for every Provider method
// except Name and CloneForNode. Concrete providers embed it, implement
// those two, and override only what else they need.
type BaseProvider struct{}

func (BaseProvider) Install(Filesystem) bool { return true }
func (BaseProvider) Uninstall(Filesystem)    {}
func (BaseProvider) Matches(string, vtree.Kind) bool {
	return false
}
func (BaseProvider) GetAttr(node vtree.Node) (vtree.Attr, error) {
	return node.Attr(), nil
}
func (BaseProvider) Mknod(Filesystem, uint64, uint16) error {
	return syscall.ENOSYS
}
func (BaseProvider) Rmnod(Filesystem, uint64) error {
	return syscall.ENOSYS
}
func (BaseProvider) Open(Filesystem, uint64, uint16) (OpenHandler, error) {
	return nil, syscall.ENOSYS
}
