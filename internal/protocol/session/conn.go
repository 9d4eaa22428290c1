package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/scopectl/internal/logging"
	"github.com/danmuck/scopectl/internal/protocol/frame"
	"github.com/danmuck/scopectl/internal/protocol/schema"
	"github.com/rs/zerolog"
)

var ErrAddressRequired = errors.New("session: address required")

// Conn multiplexes tagged request/response pairs and pushed events over one
// stream. It implements Dispatcher.
type Conn struct {
	rw      io.ReadWriteCloser
	reader  io.Reader
	cfg     Config
	log     zerolog.Logger
	pending *PendingTable
	events  chan Event

	nextTag atomic.Uint64
	dropped atomic.Uint64
	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
	errMu     sync.Mutex
	err       error
}

var _ Dispatcher = (*Conn)(nil)

// Dial connects to a scope host, enables cfg.Services and starts the read loop.
// Failed connects are retried with backoff up to cfg.MaxConnectAttempts; a
// rejected handshake is not retried.
func Dial(ctx context.Context, addr string, cfg Config) (*Conn, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, ErrAddressRequired
	}
	cfg = cfg.WithDefaults()
	log := logging.Component("session")
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var attempt int
	for {
		attempt++
		conn, err := dialOnce(ctx, addr, cfg)
		if err == nil {
			log.Info().Str("addr", addr).Strs("services", cfg.Services).Int("attempt", attempt).Msg("scope session established")
			return conn, nil
		}
		log.Warn().Err(err).Str("addr", addr).Int("attempt", attempt).Msg("dial failed")
		if errors.Is(err, ErrHandshakeRejected) || attempt >= cfg.MaxConnectAttempts {
			return nil, err
		}
		timer := time.NewTimer(NextBackoffDelay(cfg.Backoff, attempt, rng))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func dialOnce(ctx context.Context, addr string, cfg Config) (*Conn, error) {
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	reader, err := enableServices(raw, cfg)
	if err != nil {
		_ = raw.Close()
		return nil, err
	}
	return newConn(raw, reader, cfg), nil
}

func enableServices(conn net.Conn, cfg Config) (*bufio.Reader, error) {
	_ = conn.SetDeadline(time.Now().Add(cfg.HandshakeTimeout))
	reader := bufio.NewReader(conn)
	req := EnableServices{Client: cfg.ClientName, Services: cfg.Services}
	if err := WriteEnableServices(conn, req); err != nil {
		return nil, err
	}
	ack, err := ReadEnableAck(reader)
	if err != nil {
		return nil, err
	}
	if ack.Status != AckStatusAccepted {
		return nil, fmt.Errorf("%w: %s", ErrHandshakeRejected, ack.Message)
	}
	_ = conn.SetDeadline(time.Time{})
	return reader, nil
}

// NewConn wraps an already negotiated stream and starts its read loop.
func NewConn(rw io.ReadWriteCloser, cfg Config) *Conn {
	return newConn(rw, rw, cfg.WithDefaults())
}

func newConn(rw io.ReadWriteCloser, reader io.Reader, cfg Config) *Conn {
	c := &Conn{
		rw:      rw,
		reader:  reader,
		cfg:     cfg,
		log:     logging.Component("session"),
		pending: NewPendingTable(),
		events:  make(chan Event, cfg.EventBuffer),
		closed:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Send writes cmd with a fresh tag and waits for the matching response. A
// non-positive timeout uses Config.ResponseTimeout.
func (c *Conn) Send(ctx context.Context, cmd schema.Command, payload []byte, timeout time.Duration) ([]byte, error) {
	select {
	case <-c.closed:
		return nil, ErrConnClosed
	default:
	}
	if timeout <= 0 {
		timeout = c.cfg.ResponseTimeout
	}
	tag := c.nextTag.Add(1)
	raw, err := EncodeCommandFrame(tag, cmd, payload)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	replyCh := c.pending.Register(PendingCall{
		Tag:      tag,
		Command:  cmd,
		QueuedAt: now,
		Deadline: now.Add(timeout),
	})
	if err := c.write(ctx, raw); err != nil {
		c.pending.Abandon(tag)
		return nil, fmt.Errorf("session: write %s: %w", cmd, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case reply := <-replyCh:
		if reply.Err != nil {
			return nil, reply.Err
		}
		if reply.IsError {
			return nil, commandFailure(cmd, reply.Payload)
		}
		return reply.Payload, nil
	case <-timer.C:
		c.pending.Abandon(tag)
		return nil, fmt.Errorf("%w: %s tag=%d after %s", ErrNoResponse, cmd, tag, timeout)
	case <-ctx.Done():
		c.pending.Abandon(tag)
		return nil, ctx.Err()
	case <-c.closed:
		c.pending.Abandon(tag)
		return nil, ErrConnClosed
	}
}

func commandFailure(cmd schema.Command, payload []byte) error {
	info, err := UnmarshalErrorInfo(payload)
	if err != nil || info.Message == "" {
		return fmt.Errorf("%w: %s", ErrCommandFailed, cmd)
	}
	return fmt.Errorf("%w: %s: %s", ErrCommandFailed, cmd, info.Message)
}

type writeDeadliner interface {
	SetWriteDeadline(time.Time) error
}

func (c *Conn) write(ctx context.Context, raw []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if wd, ok := c.rw.(writeDeadliner); ok {
		deadline := time.Now().Add(c.cfg.WriteTimeout)
		if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
			deadline = ctxDeadline
		}
		if err := wd.SetWriteDeadline(deadline); err != nil {
			return err
		}
	}
	_, err := c.rw.Write(raw)
	return err
}

// Events returns pushed notifications. The channel is closed once the read
// loop exits. A full buffer blocks the read loop until the consumer catches up.
func (c *Conn) Events() <-chan Event {
	return c.events
}

// Pending lists calls still waiting for a response.
func (c *Conn) Pending() []PendingCall {
	return c.pending.List()
}

// Dropped counts responses that arrived for a tag nobody was waiting on.
func (c *Conn) Dropped() uint64 {
	return c.dropped.Load()
}

// Done is closed after the read loop has exited.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that ended the read loop, if any.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close stops the connection. Waiting callers get ErrConnClosed. Safe to call
// more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.rw.Close()
		if n := c.pending.FailAll(ErrConnClosed); n > 0 {
			c.log.Debug().Int("pending", n).Msg("failed pending calls on close")
		}
	})
	<-c.done
	return err
}

func (c *Conn) readLoop() {
	defer close(c.done)
	defer close(c.events)
	for {
		f, err := frame.ReadFrame(c.reader, frame.DefaultLimits())
		if err != nil {
			c.setErr(err)
			select {
			case <-c.closed:
			default:
				if !errors.Is(err, io.EOF) {
					c.log.Warn().Err(err).Msg("read loop stopped")
				}
			}
			c.closeOnce.Do(func() {
				close(c.closed)
				_ = c.rw.Close()
				c.pending.FailAll(ErrConnClosed)
			})
			return
		}
		c.route(f)
	}
}

func (c *Conn) route(f frame.Frame) {
	switch {
	case f.Header.IsEvent():
		ev, err := DecodeEventFrame(f)
		if err != nil {
			c.log.Warn().Err(err).Msg("dropping event")
			return
		}
		select {
		case c.events <- ev:
		case <-c.closed:
		}
	case f.Header.IsResponse():
		reply := Reply{Payload: f.Payload, IsError: f.Header.IsError()}
		if !c.pending.Resolve(f.Header.Tag, reply) {
			c.dropped.Add(1)
			c.log.Debug().Uint64("tag", f.Header.Tag).Msg("dropping response with no pending call")
		}
	default:
		c.log.Warn().
			Uint64("tag", f.Header.Tag).
			Uint16("service", f.Header.Service).
			Uint16("command", f.Header.Command).
			Msg("dropping frame that is neither response nor event")
	}
}

func (c *Conn) setErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}
