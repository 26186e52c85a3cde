package engine

import (
	"io"
	"testing"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/cloudxtreme/wlfs/internal/ops"
	"github.com/cloudxtreme/wlfs/internal/vtree"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l.WithField("test", true)
}

func newTestEngine() *Engine {
	return New(testLog())
}

func TestNewEngineHasRootAtInodeOne(t *testing.T) {
	e := newTestEngine()
	root := e.Root()
	if root.Ino() != rootIno {
		t.Fatalf("root ino = %d, want %d", root.Ino(), rootIno)
	}
	if _, ok := root.Parent(); ok {
		t.Fatal("root reports a parent")
	}
}

func TestBuiltinProvidersCoverEveryPathAndKind(t *testing.T) {
	e := newTestEngine()
	if _, ok := e.registry.Match("/whatever", vtree.KindFile); !ok {
		t.Fatal("no provider matched a file path")
	}
	if _, ok := e.registry.Match("/whatever", vtree.KindDir); !ok {
		t.Fatal("no provider matched a directory path")
	}
}

func TestMkfileThenLookupRoundTrip(t *testing.T) {
	e := newTestEngine()
	f, err := e.Mkfile(e.Root(), "a", 0o644)
	if err != nil {
		t.Fatalf("Mkfile: %v", err)
	}
	if f.Ino() != rootIno+1 {
		t.Fatalf("Mkfile ino = %d, want %d", f.Ino(), rootIno+1)
	}
	got, ok := e.Root().FindChild("a")
	if !ok || got.Attr().Perm != 0o644 {
		t.Fatalf("FindChild(a) = %v, %v", got, ok)
	}
}

// stubFailProvider always matches one path and fails Mknod, to exercise
// the rollback path (scenario 4 of the testable-properties list).
type stubFailProvider struct {
	ops.BaseProvider
	path string
	kind vtree.Kind
}

func (s *stubFailProvider) Name() string           { return "stub.fail" }
func (s *stubFailProvider) CloneForNode() ops.Provider { return s }
func (s *stubFailProvider) Matches(path string, kind vtree.Kind) bool {
	return path == s.path && kind == s.kind
}
func (s *stubFailProvider) Mknod(ops.Filesystem, uint64, uint16) error {
	return unix.EIO
}

func TestMknodRollbackLeavesNoOrphan(t *testing.T) {
	e := newTestEngine()
	e.RegisterOps(ops.PriorityMax, &stubFailProvider{path: "/f", kind: vtree.KindFile})

	_, err := e.Mkfile(e.Root(), "f", 0o644)
	if err != unix.EIO {
		t.Fatalf("Mkfile err = %v, want EIO", err)
	}
	if _, ok := e.Root().FindChild("f"); ok {
		t.Fatal("failed mknod left a child in the tree")
	}
	for ino, node := range e.inodes {
		if node.Name() == "f" {
			t.Fatalf("failed mknod left an orphan at inode %d", ino)
		}
	}
}

func TestPriorityOrderingAndUnregister(t *testing.T) {
	e := newTestEngine()
	b := &stubMatchProvider{name: "b", path: "/x", kind: vtree.KindDir}
	aNamed := &stubMatchProvider{name: "a", path: "/x", kind: vtree.KindDir}

	e.RegisterOps(10, aNamed)
	e.RegisterOps(20, b)

	p, ok := e.registry.Match("/x", vtree.KindDir)
	if !ok || p.Name() != "b" {
		t.Fatalf("Match = %v, %v, want b", p, ok)
	}

	e.UnregisterOps("b")
	p, ok = e.registry.Match("/x", vtree.KindDir)
	if !ok || p.Name() != "a" {
		t.Fatalf("Match after unregister = %v, %v, want a", p, ok)
	}
}

type stubMatchProvider struct {
	ops.BaseProvider
	name string
	path string
	kind vtree.Kind
}

func (s *stubMatchProvider) Name() string               { return s.name }
func (s *stubMatchProvider) CloneForNode() ops.Provider { return s }
func (s *stubMatchProvider) Matches(path string, kind vtree.Kind) bool {
	return path == s.path && kind == s.kind
}
func (s *stubMatchProvider) Mknod(ops.Filesystem, uint64, uint16) error { return nil }

func TestRenameAcrossDirectories(t *testing.T) {
	e := newTestEngine()
	a, _ := e.Mkdir(e.Root(), "a", 0o755)
	b, _ := e.Mkdir(e.Root(), "b", 0o755)
	x, _ := e.Mkfile(a, "x", 0o644)

	raw := e.RawFS()
	status := raw.Rename(nil, &fuse.RenameIn{
		InHeader: fuse.InHeader{NodeId: a.Ino()},
		Newdir:   b.Ino(),
	}, "x", "y")
	if !status.Ok() {
		t.Fatalf("Rename status = %v", status)
	}

	if _, ok := a.FindChild("x"); ok {
		t.Fatal("x still present in source directory")
	}
	got, ok := b.FindChild("y")
	if !ok || got.Ino() != x.Ino() {
		t.Fatalf("FindChild(y) = %v, %v, want ino %d", got, ok, x.Ino())
	}
}

func TestRenameCollisionReturnsEEXIST(t *testing.T) {
	e := newTestEngine()
	a, _ := e.Mkdir(e.Root(), "a", 0o755)
	b, _ := e.Mkdir(e.Root(), "b", 0o755)
	e.Mkfile(a, "x", 0o644)
	e.Mkfile(b, "y", 0o644)

	raw := e.RawFS()
	status := raw.Rename(nil, &fuse.RenameIn{
		InHeader: fuse.InHeader{NodeId: a.Ino()},
		Newdir:   b.Ino(),
	}, "x", "y")
	if status != fuse.ToStatus(unix.EEXIST) {
		t.Fatalf("Rename status = %v, want EEXIST", status)
	}
	if _, ok := a.FindChild("x"); !ok {
		t.Fatal("source entry removed despite collision")
	}
}

func TestOpenReadWriteReleaseRoundTrip(t *testing.T) {
	e := newTestEngine()
	f, _ := e.Mkfile(e.Root(), "a", 0o644)
	raw := e.RawFS()

	var openOut fuse.OpenOut
	if status := raw.Open(nil, &fuse.OpenIn{InHeader: fuse.InHeader{NodeId: f.Ino()}}, &openOut); !status.Ok() {
		t.Fatalf("Open status = %v", status)
	}
	if openOut.OpenFlags&fuse.FOPEN_DIRECT_IO == 0 {
		t.Fatal("Open reply missing FOPEN_DIRECT_IO")
	}

	n, status := raw.Write(nil, &fuse.WriteIn{Fh: openOut.Fh, Offset: 0}, []byte("hello"))
	if !status.Ok() || n != 5 {
		t.Fatalf("Write = %d, %v", n, status)
	}

	result, status := raw.Read(nil, &fuse.ReadIn{Fh: openOut.Fh, Offset: 0, Size: 5}, nil)
	if !status.Ok() {
		t.Fatalf("Read status = %v", status)
	}
	data, _ := result.Bytes(make([]byte, 5))
	if string(data) != "hello" {
		t.Fatalf("Read = %q, want hello", data)
	}

	var attrOut fuse.AttrOut
	if status := raw.GetAttr(nil, &fuse.GetAttrIn{InHeader: fuse.InHeader{NodeId: f.Ino()}}, &attrOut); !status.Ok() {
		t.Fatalf("GetAttr status = %v", status)
	}
	if attrOut.Size != 5 {
		t.Fatalf("GetAttr size = %d, want 5", attrOut.Size)
	}

	raw.Release(&fuse.ReleaseIn{Fh: openOut.Fh})
	if _, ok := e.handles.Get(openOut.Fh); ok {
		t.Fatal("handle still present after Release")
	}
}

func TestOpenOnDirectoryReturnsEBADF(t *testing.T) {
	e := newTestEngine()
	raw := e.RawFS()
	var out fuse.OpenOut
	status := raw.Open(nil, &fuse.OpenIn{InHeader: fuse.InHeader{NodeId: rootIno}}, &out)
	if status != fuse.EBADF {
		t.Fatalf("Open(dir) status = %v, want EBADF", status)
	}
}

func TestRmdirOnRegularFileReturnsENOENT(t *testing.T) {
	e := newTestEngine()
	e.Mkfile(e.Root(), "f", 0o644)
	raw := e.RawFS()

	status := raw.Rmdir(nil, &fuse.InHeader{NodeId: rootIno}, "f")
	if status != fuse.ENOENT {
		t.Fatalf("Rmdir(file) status = %v, want ENOENT", status)
	}
	if _, ok := e.Root().FindChild("f"); !ok {
		t.Fatal("file removed by Rmdir despite kind mismatch")
	}
}

func TestHandleSurvivesUnlink(t *testing.T) {
	e := newTestEngine()
	f, _ := e.Mkfile(e.Root(), "a", 0o644)
	raw := e.RawFS()

	var out fuse.OpenOut
	raw.Open(nil, &fuse.OpenIn{InHeader: fuse.InHeader{NodeId: f.Ino()}}, &out)
	raw.Write(nil, &fuse.WriteIn{Fh: out.Fh, Offset: 0}, []byte("hi"))

	if status := raw.Unlink(nil, &fuse.InHeader{NodeId: rootIno}, "a"); !status.Ok() {
		t.Fatalf("Unlink status = %v", status)
	}
	if _, ok := e.Root().FindChild("a"); ok {
		t.Fatal("unlinked file still present")
	}

	result, status := raw.Read(nil, &fuse.ReadIn{Fh: out.Fh, Offset: 0, Size: 2}, nil)
	if !status.Ok() {
		t.Fatalf("Read after unlink status = %v", status)
	}
	data, _ := result.Bytes(make([]byte, 2))
	if string(data) != "hi" {
		t.Fatalf("Read after unlink = %q, want hi", data)
	}

	raw.Release(&fuse.ReleaseIn{Fh: out.Fh})
}

func TestReadDirOffsetBeyondZeroIsEmpty(t *testing.T) {
	e := newTestEngine()
	e.Mkfile(e.Root(), "a", 0o644)
	raw := e.RawFS()

	list := fuse.NewDirEntryList(make([]byte, 4096), 0)
	status := raw.ReadDir(nil, &fuse.ReadIn{InHeader: fuse.InHeader{NodeId: rootIno}, Offset: 1}, list)
	if !status.Ok() {
		t.Fatalf("ReadDir status = %v", status)
	}
}

func TestReadPastEndOfFileIsEmptyOk(t *testing.T) {
	e := newTestEngine()
	f, _ := e.Mkfile(e.Root(), "a", 0o644)
	raw := e.RawFS()

	var out fuse.OpenOut
	raw.Open(nil, &fuse.OpenIn{InHeader: fuse.InHeader{NodeId: f.Ino()}}, &out)
	raw.Write(nil, &fuse.WriteIn{Fh: out.Fh, Offset: 0}, []byte("ab"))

	result, status := raw.Read(nil, &fuse.ReadIn{Fh: out.Fh, Offset: 100, Size: 5}, nil)
	if !status.Ok() {
		t.Fatalf("Read past end status = %v", status)
	}
	data, _ := result.Bytes(make([]byte, 5))
	if len(data) != 0 {
		t.Fatalf("Read past end = %v, want empty", data)
	}
}
