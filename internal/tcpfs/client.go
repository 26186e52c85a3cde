package tcpfs

import (
	"bytes"
	"context"
	"net"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/cloudxtreme/wlfs/internal/ops"
	"github.com/cloudxtreme/wlfs/internal/vtree"
)

// clientPattern matches an IPv4 literal and a port directly under /tcp,
// e.g. /tcp/127.0.0.1:8080.
var clientPattern = regexp.MustCompile(`^/tcp/(\d{1,3}\.){3}\d{1,3}:\d{1,5}$`)

const dialTimeout = 10 * time.Second

// clientOps backs a client file: mknod dials the address named by the
// file, open hands back a handler proxying to the resulting socket.
type clientOps struct {
	ops.BaseProvider

	mu   sync.Mutex
	conn net.Conn
}

func newClientOps() *clientOps { return &clientOps{} }

func (o *clientOps) Name() string { return "tcp.client" }

func (o *clientOps) CloneForNode() ops.Provider { return &clientOps{} }

func (o *clientOps) Matches(path string, kind vtree.Kind) bool {
	return kind == vtree.KindFile && clientPattern.MatchString(path)
}

func (o *clientOps) Mknod(fs ops.Filesystem, ino uint64, perm uint16) error {
	node, ok := fs.FindNode(ino)
	if !ok {
		return unix.ENOENT
	}
	conn, err := net.DialTimeout("tcp", node.Name(), dialTimeout)
	if err != nil {
		return translateDialErr(err)
	}
	o.mu.Lock()
	o.conn = conn
	o.mu.Unlock()
	return nil
}

func (o *clientOps) Rmnod(ops.Filesystem, uint64) error {
	o.mu.Lock()
	conn := o.conn
	o.conn = nil
	o.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	return nil
}

func (o *clientOps) Open(ops.Filesystem, uint64, uint16) (ops.OpenHandler, error) {
	o.mu.Lock()
	conn := o.conn
	o.mu.Unlock()
	if conn == nil {
		return nil, unix.EIO
	}
	return newClientHandler(conn), nil
}

func translateDialErr(err error) error {
	if strings.Contains(err.Error(), "refused") {
		return unix.ECONNREFUSED
	}
	return unix.EIO
}

// clientHandler proxies a single TCP connection to the kernel bridge's
// read/write callbacks. Writes pass straight through to the socket
// since the callback thread already runs synchronously; reads are fed
// by a background pump goroutine (run under an errgroup so Release can
// reap it and observe its terminal error) because data can arrive on
// the wire at any time, not only while a read() is pending.
type clientHandler struct {
	conn net.Conn

	mu      sync.Mutex
	buf     bytes.Buffer
	readErr error

	eg     *errgroup.Group
	cancel context.CancelFunc
}

func newClientHandler(conn net.Conn) *clientHandler {
	ctx, cancel := context.WithCancel(context.Background())
	eg, ctx := errgroup.WithContext(ctx)
	h := &clientHandler{conn: conn, eg: eg, cancel: cancel}
	eg.Go(func() error { return h.pump(ctx) })
	return h
}

func (h *clientHandler) pump(ctx context.Context) error {
	buf := make([]byte, 32*1024)
	for {
		n, err := h.conn.Read(buf)
		if n > 0 {
			h.mu.Lock()
			h.buf.Write(buf[:n])
			h.mu.Unlock()
		}
		if err != nil {
			h.mu.Lock()
			h.readErr = err
			h.mu.Unlock()
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (h *clientHandler) Read(offset uint64, size uint32) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.buf.Len() == 0 {
		if h.readErr != nil {
			return nil, unix.EIO
		}
		return []byte{}, nil
	}
	n := int(size)
	if n > h.buf.Len() {
		n = h.buf.Len()
	}
	out := make([]byte, n)
	h.buf.Read(out)
	return out, nil
}

func (h *clientHandler) Write(data []byte, offset uint64) (uint32, error) {
	n, err := h.conn.Write(data)
	if err != nil {
		return uint32(n), unix.EIO
	}
	return uint32(n), nil
}

func (h *clientHandler) Release(flags uint32, flush bool) error {
	h.cancel()
	h.conn.Close()
	h.eg.Wait()
	return nil
}
