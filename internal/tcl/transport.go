package tcl

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/strandlight/internal/clock"
	"github.com/coreman2200/strandlight/internal/led"
	"github.com/coreman2200/strandlight/internal/stats"
)

const (
	controllerPort = 5000
	drainWait      = 200 * time.Microsecond
	recvBufSize    = 65536
	delayHistory   = 600
)

// DefaultAddress is the controller's fixed address on the LED network.
func DefaultAddress(id int) string {
	return fmt.Sprintf("192.168.60.%d:%d", 49+id, controllerPort)
}

// TransportError wraps a socket failure during handshake or frame send.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return "tcl " + e.Op + ": " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

var errShortWrite = errors.New("not all data was sent in UDP packet")

// Options configures a Controller. Zero values select the real network
// and wall clock.
type Options struct {
	ID      int
	Address string
	Factory SocketFactory
	Clock   clock.Clock
}

// Controller drives one strand controller. It implements led.StrandTransport.
// Calls must not overlap; RequireReset and the stats accessors may be called
// from any goroutine.
type Controller struct {
	id      int
	addr    string
	factory SocketFactory
	clk     clock.Clock
	session string
	log     zerolog.Logger

	mu           sync.Mutex
	sock         Socket
	initSent     bool
	requireReset bool
	framesSent   uint64
	buf          []byte

	delays  *stats.Window
	history *stats.Window
}

var _ led.StrandTransport = (*Controller)(nil)

func NewController(o Options) *Controller {
	if o.Address == "" {
		o.Address = DefaultAddress(o.ID)
	}
	if o.Factory == nil {
		o.Factory = UDPSocketFactory{}
	}
	if o.Clock == nil {
		o.Clock = clock.Real{}
	}
	session := uuid.NewString()
	return &Controller{
		id:           o.ID,
		addr:         o.Address,
		factory:      o.Factory,
		clk:          o.Clock,
		session:      session,
		log:          log.With().Int("controller", o.ID).Str("session", session).Logger(),
		requireReset: true,
		buf:          make([]byte, recvBufSize),
		delays:       stats.NewWindow(delayHistory, o.Clock),
		history:      stats.NewWindow(delayHistory, o.Clock),
	}
}

func (c *Controller) ID() int           { return c.id }
func (c *Controller) Address() string   { return c.addr }
func (c *Controller) SessionID() string { return c.session }

// Connect opens the socket if it is not open yet.
func (c *Controller) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked()
}

func (c *Controller) connectLocked() error {
	if c.sock != nil {
		return nil
	}
	raddr, err := net.ResolveUDPAddr("udp4", c.addr)
	if err != nil {
		return &TransportError{Op: "resolve", Err: err}
	}
	s, err := c.factory.DialUDP(raddr)
	if err != nil {
		return &TransportError{Op: "dial", Err: err}
	}
	c.sock = s
	c.log.Info().Str("remote", c.addr).Str("local", s.LocalAddr().String()).Msg("controller socket open")
	return nil
}

// RequireReset makes the next frame re-run the RESET/INIT handshake.
func (c *Controller) RequireReset() {
	c.mu.Lock()
	c.requireReset = true
	c.mu.Unlock()
}

// SendFrame transmits one PayloadSize payload. targetMS is the wall-clock
// millisecond the frame is meant for; the difference to the actual end of
// transmission is recorded as the frame delay. A failed frame schedules a
// reset for the next one.
func (c *Controller) SendFrame(ctx context.Context, payload []byte, targetMS int64) error {
	if len(payload) != PayloadSize {
		return fmt.Errorf("tcl: payload is %d bytes, want %d", len(payload), PayloadSize)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.sendFrameLocked(payload)
	if err != nil {
		c.requireReset = true
		c.log.Warn().Err(err).Msg("scheduling reset after failed frame")
	} else {
		c.framesSent++
		delay := float64(clock.Millis(c.clk.Now()) - targetMS)
		c.delays.Add(delay)
		c.history.Add(delay)
	}
	c.drainLocked()
	return err
}

func (c *Controller) sendFrameLocked(payload []byte) error {
	if err := c.connectLocked(); err != nil {
		return err
	}
	if err := c.handshakeLocked(); err != nil {
		return err
	}
	c.drainLocked()
	if err := c.send("start frame", MsgStartFrame); err != nil {
		return err
	}
	c.clk.Sleep(StartFrameDelay)
	for i := 0; i < ChunkCount; i++ {
		if err := c.send("frame chunk", Chunk(payload, i)); err != nil {
			return err
		}
		c.clk.Sleep(ChunkDelay)
	}
	return c.send("end frame", MsgEndFrame)
}

func (c *Controller) handshakeLocked() error {
	if c.initSent && !c.requireReset {
		return nil
	}
	if c.requireReset {
		if c.initSent {
			c.log.Warn().Msg("performing a requested reset")
		}
		if err := c.send("reset", MsgReset); err != nil {
			return err
		}
		c.requireReset = false
		c.clk.Sleep(ResetDelay)
	}
	if err := c.send("init", MsgInit); err != nil {
		return err
	}
	c.clk.Sleep(InitDelay)
	c.initSent = true
	c.log.Debug().Msg("controller initialized")
	return nil
}

func (c *Controller) send(op string, msg []byte) error {
	n, err := c.sock.Write(msg)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	if n != len(msg) {
		return &TransportError{Op: op, Err: errShortWrite}
	}
	return nil
}

// drainLocked discards queued replies until a read would block. Replies
// are not interpreted.
func (c *Controller) drainLocked() {
	if c.sock == nil {
		return
	}
	if err := c.sock.SetReadDeadline(c.clk.Now().Add(drainWait)); err != nil {
		c.log.Debug().Err(err).Msg("set read deadline")
		return
	}
	for {
		if _, err := c.sock.Read(c.buf); err != nil {
			if !isWouldBlock(err) {
				c.log.Debug().Err(err).Msg("recv")
			}
			return
		}
	}
}

// FrameDelays returns the delays (ms) recorded since the previous call.
func (c *Controller) FrameDelays() []float64 { return c.delays.Drain() }

// DelaySummary digests the recent frame delays without clearing them.
func (c *Controller) DelaySummary() stats.Summary { return c.history.Summary() }

func (c *Controller) FramesSent() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.framesSent
}

// Close releases the socket. Only call between frames.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sock == nil {
		return nil
	}
	err := c.sock.Close()
	c.sock = nil
	c.initSent = false
	c.requireReset = true
	return err
}
