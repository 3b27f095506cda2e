package tcl

import (
	"errors"
	"net"
	"os"
	"sync"
	"time"
)

// Socket is the connected datagram socket a Controller talks through.
type Socket interface {
	Write(b []byte) (int, error)
	Read(b []byte) (int, error)
	SetReadDeadline(t time.Time) error
	Close() error
	LocalAddr() net.Addr
}

// SocketFactory creates sockets connected to raddr from an ephemeral local port.
type SocketFactory interface {
	DialUDP(raddr *net.UDPAddr) (Socket, error)
}

// UDPSocketFactory dials real UDP sockets.
type UDPSocketFactory struct{}

func (UDPSocketFactory) DialUDP(raddr *net.UDPAddr) (Socket, error) {
	conn, err := net.DialUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0}, raddr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// isWouldBlock reports read errors that just mean no datagram is queued.
func isWouldBlock(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// MockSocket is an in-memory Socket recording every datagram written.
type MockSocket struct {
	mu sync.Mutex

	// Written holds a copy of each datagram in send order.
	Written [][]byte
	// Replies are returned by Read, one per call, until exhausted.
	Replies [][]byte
	// Reads counts Read calls, including ones that found nothing.
	Reads int
	// FailWriteAt makes the n-th Write (1-based) fail with WriteErr.
	FailWriteAt int
	WriteErr    error
	// ShortWriteAt makes the n-th Write (1-based) report one byte less.
	ShortWriteAt int
	// ReadErr is returned once by the next Read instead of a reply.
	ReadErr error
	Closed  bool
}

func (m *MockSocket) Write(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Closed {
		return 0, net.ErrClosed
	}
	n := len(m.Written) + 1
	if n == m.FailWriteAt {
		m.Written = append(m.Written, nil)
		return 0, m.WriteErr
	}
	m.Written = append(m.Written, append([]byte(nil), b...))
	if n == m.ShortWriteAt {
		return len(b) - 1, nil
	}
	return len(b), nil
}

func (m *MockSocket) Read(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reads++
	if m.ReadErr != nil {
		err := m.ReadErr
		m.ReadErr = nil
		return 0, err
	}
	if len(m.Replies) == 0 {
		return 0, &net.OpError{Op: "read", Net: "udp", Err: os.ErrDeadlineExceeded}
	}
	r := m.Replies[0]
	m.Replies = m.Replies[1:]
	return copy(b, r), nil
}

func (m *MockSocket) SetReadDeadline(time.Time) error { return nil }

func (m *MockSocket) Close() error {
	m.mu.Lock()
	m.Closed = true
	m.mu.Unlock()
	return nil
}

func (m *MockSocket) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000}
}

// Sent returns a copy of the datagrams written so far.
func (m *MockSocket) Sent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.Written...)
}

// MockSocketFactory hands out Socket and records dialed addresses.
type MockSocketFactory struct {
	Socket *MockSocket
	Err    error
	Dialed []string
}

func (f *MockSocketFactory) DialUDP(raddr *net.UDPAddr) (Socket, error) {
	f.Dialed = append(f.Dialed, raddr.String())
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Socket, nil
}
