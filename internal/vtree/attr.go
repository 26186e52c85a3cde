package vtree

import "time"

// Kind is a node's variant tag. It never changes after a node is created.
type Kind int

const (
	KindFile Kind = iota
	KindDir
)

func (k Kind) String() string {
	if k == KindDir {
		return "directory"
	}
	return "file"
}

// Attr is the POSIX-like attribute set carried by every node.
type Attr struct {
	Ino    uint64
	Size   uint64
	Blocks uint64

	Atime  time.Time
	Mtime  time.Time
	Ctime  time.Time
	Crtime time.Time

	Kind  Kind
	Perm  uint16
	Nlink uint32
	Uid   uint32
	Gid   uint32
	Rdev  uint32
	Flags uint32
}

// NewAttr returns a zero-valued attribute for kind, with its time fields
// stamped to now.
func NewAttr(kind Kind) Attr {
	now := time.Now()
	return Attr{
		Kind:   kind,
		Nlink:  1,
		Atime:  now,
		Mtime:  now,
		Ctime:  now,
		Crtime: now,
	}
}
