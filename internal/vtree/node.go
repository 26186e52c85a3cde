// Package vtree implements the in-memory inode tree: tagged File/Directory
// nodes, parent/child linkage, and full-path reconstruction. It knows
// nothing about the operations registry or the engine that owns it; a
// node's operation provider is held as an opaque handle (see Node.Ops) so
// that this package never needs to import the package that defines the
// provider contract.
package vtree

// Node is the common surface of File and Dir. Callers that need
// type-specific behavior must check Kind() and then use AsDir/AsFile,
// which panic on mismatch.
type Node interface {
	Ino() uint64
	Name() string
	SetName(name string)
	Kind() Kind
	Attr() Attr
	SetAttr(a Attr)

	// Parent returns the containing directory's inode and whether this
	// node has a parent at all (false only for the root).
	Parent() (ino uint64, ok bool)
	SetParent(ino uint64, ok bool)

	// Ops holds a non-owning handle to this node's operation provider.
	// Its concrete type is defined by the ops package; vtree treats it
	// opaquely to avoid an import cycle (ops.Provider references
	// vtree.Node in its method signatures).
	Ops() any
	SetOps(p any)

	AsDir() *Dir
	AsFile() *File
}

type base struct {
	name      string
	attr      Attr
	parentIno uint64
	hasParent bool
	ops       any
}

func (b *base) Ino() uint64         { return b.attr.Ino }
func (b *base) Name() string        { return b.name }
func (b *base) SetName(name string) { b.name = name }
func (b *base) Kind() Kind          { return b.attr.Kind }
func (b *base) Attr() Attr          { return b.attr }
func (b *base) SetAttr(a Attr)      { b.attr = a }

func (b *base) Parent() (uint64, bool)    { return b.parentIno, b.hasParent }
func (b *base) SetParent(ino uint64, ok bool) {
	b.parentIno = ino
	b.hasParent = ok
}

func (b *base) Ops() any      { return b.ops }
func (b *base) SetOps(p any)  { b.ops = p }

func (b *base) AsDir() *Dir {
	panic("vtree: node \"" + b.name + "\" is not a directory")
}

func (b *base) AsFile() *File {
	panic("vtree: node \"" + b.name + "\" is not a file")
}
