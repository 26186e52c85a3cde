package vtree

import "golang.org/x/sys/unix"

// Dir is a directory node. Children are keyed by name; names are unique
// within a directory. Iteration order over Children is not meaningful
// (map order), matching the "insertion order not observable" invariant.
type Dir struct {
	base
	children map[string]Node
}

// NewDir constructs a directory node. ops is the node's operation
// provider handle (see Node.Ops).
func NewDir(name string, attr Attr, ops any) *Dir {
	attr.Kind = KindDir
	if attr.Nlink == 0 {
		attr.Nlink = 2
	}
	if attr.Size == 0 {
		attr.Size = 4096
	}
	return &Dir{
		base:     base{name: name, attr: attr, ops: ops},
		children: make(map[string]Node),
	}
}

func (d *Dir) AsDir() *Dir { return d }

// FindChild looks up a child by name.
func (d *Dir) FindChild(name string) (Node, bool) {
	n, ok := d.children[name]
	return n, ok
}

// Children returns the live children map. Callers must not retain it
// across a mutation of the directory.
func (d *Dir) Children() map[string]Node {
	return d.children
}

// InsertChild adds node under its own Name(), stamping its parent to this
// directory's inode. Fails with EEXIST if the name is already taken.
func (d *Dir) InsertChild(node Node) error {
	if _, exists := d.children[node.Name()]; exists {
		return unix.EEXIST
	}
	node.SetParent(d.Ino(), true)
	d.children[node.Name()] = node
	return nil
}

// RemoveChild removes the named child, provided its kind matches. It does
// not clear the removed node's parent field — the caller owns dropping
// the now-orphaned node from the inode map (see package engine).
func (d *Dir) RemoveChild(name string, kind Kind) error {
	node, ok := d.children[name]
	if !ok || node.Kind() != kind {
		return unix.ENOENT
	}
	delete(d.children, name)
	return nil
}
