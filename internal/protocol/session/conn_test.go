package session

import (
	"bufio"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/danmuck/scopectl/internal/protocol/frame"
	"github.com/danmuck/scopectl/internal/protocol/schema"
	"github.com/danmuck/scopectl/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

func newPipeConn(t *testing.T) (*Conn, net.Conn) {
	t.Helper()
	client, host := net.Pipe()
	c := NewConn(client, Config{ResponseTimeout: 2 * time.Second})
	t.Cleanup(func() {
		_ = c.Close()
		_ = host.Close()
	})
	return c, host
}

func hostRead(t *testing.T, host net.Conn) frame.Frame {
	t.Helper()
	f, err := frame.ReadFrame(host, frame.DefaultLimits())
	if err != nil {
		t.Errorf("host read: %v", err)
	}
	return f
}

func hostReply(t *testing.T, host net.Conn, tag uint64, cmd schema.Command, msg Message, isError bool) {
	t.Helper()
	payload, err := Marshal(msg)
	if err != nil {
		t.Errorf("host marshal: %v", err)
		return
	}
	raw, err := EncodeResponseFrame(tag, cmd, payload, isError)
	if err != nil {
		t.Errorf("host encode: %v", err)
		return
	}
	if _, err := host.Write(raw); err != nil {
		t.Errorf("host write: %v", err)
	}
}

func TestConnSendRoundTrip(t *testing.T) {
	testlog.Start(t)
	c, host := newPipeConn(t)

	go func() {
		f := hostRead(t, host)
		if f.Header.Service != uint16(schema.ServiceEcmascriptDebugger) || f.Header.Command != 3 {
			t.Errorf("unexpected request header: %+v", f.Header)
		}
		hostReply(t, host, f.Header.Tag, schema.CmdEval, EvalResult{Status: StatusCompleted, Type: "number", Value: "42"}, false)
	}()

	payload, err := Marshal(EvalData{RuntimeID: 1, ScriptData: "return 42"})
	require.NoError(t, err)
	resp, err := c.Send(context.Background(), schema.CmdEval, payload, time.Second)
	require.NoError(t, err)
	res, err := UnmarshalEvalResult(resp)
	require.NoError(t, err)
	require.Equal(t, "42", res.Value)
	require.Empty(t, c.Pending())
}

func TestConnLateResponseIsDropped(t *testing.T) {
	testlog.Start(t)
	c, host := newPipeConn(t)

	go func() {
		first := hostRead(t, host)
		second := hostRead(t, host)
		hostReply(t, host, first.Header.Tag, schema.CmdEval, EvalResult{Status: StatusCompleted, Type: "string", Value: "late"}, false)
		hostReply(t, host, second.Header.Tag, schema.CmdEval, EvalResult{Status: StatusCompleted, Type: "string", Value: "fresh"}, false)
	}()

	payload, err := Marshal(EvalData{RuntimeID: 1, ScriptData: "x"})
	require.NoError(t, err)

	_, err = c.Send(context.Background(), schema.CmdEval, payload, 20*time.Millisecond)
	require.ErrorIs(t, err, ErrNoResponse)

	resp, err := c.Send(context.Background(), schema.CmdEval, payload, 2*time.Second)
	require.NoError(t, err)
	res, err := UnmarshalEvalResult(resp)
	require.NoError(t, err)
	require.Equal(t, "fresh", res.Value)
	require.Equal(t, uint64(1), c.Dropped())
}

func TestConnErrorFrame(t *testing.T) {
	testlog.Start(t)
	c, host := newPipeConn(t)

	go func() {
		f := hostRead(t, host)
		hostReply(t, host, f.Header.Tag, schema.CmdListRuntimes, ErrorInfo{Message: "service not enabled"}, true)
	}()

	payload, err := Marshal(RuntimeSelection{AllRuntimes: true})
	require.NoError(t, err)
	_, err = c.Send(context.Background(), schema.CmdListRuntimes, payload, time.Second)
	require.ErrorIs(t, err, ErrCommandFailed)
	require.Contains(t, err.Error(), "service not enabled")
}

func TestConnDeliversEvents(t *testing.T) {
	testlog.Start(t)
	c, host := newPipeConn(t)

	go func() {
		raw, err := EncodeEventFrame(schema.EvtRuntimeStopped, RuntimeRef{RuntimeID: 8})
		if err != nil {
			t.Errorf("encode event: %v", err)
			return
		}
		if _, err := host.Write(raw); err != nil {
			t.Errorf("host write: %v", err)
		}
	}()

	select {
	case ev := <-c.Events():
		require.Equal(t, schema.EvtRuntimeStopped, ev.Command)
		ref, err := UnmarshalRuntimeRef(ev.Payload)
		require.NoError(t, err)
		require.Equal(t, uint32(8), ref.RuntimeID)
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
}

func TestConnCloseFailsPendingCalls(t *testing.T) {
	testlog.Start(t)
	c, host := newPipeConn(t)

	read := make(chan struct{})
	go func() {
		hostRead(t, host)
		close(read)
	}()

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Send(context.Background(), schema.CmdListRuntimes, nil, 5*time.Second)
		errCh <- err
	}()

	<-read
	require.NoError(t, c.Close())
	require.ErrorIs(t, <-errCh, ErrConnClosed)
	require.NoError(t, c.Close())

	_, err := c.Send(context.Background(), schema.CmdListRuntimes, nil, time.Second)
	require.ErrorIs(t, err, ErrConnClosed)

	_, open := <-c.Events()
	require.False(t, open)
}

func TestConnPeerHangupEndsReadLoop(t *testing.T) {
	testlog.Start(t)
	c, host := newPipeConn(t)
	require.NoError(t, host.Close())

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("read loop did not stop")
	}
	require.Error(t, c.Err())
	_, err := c.Send(context.Background(), schema.CmdListRuntimes, nil, time.Second)
	require.ErrorIs(t, err, ErrConnClosed)
}

func TestDialHandshake(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		req, err := ReadEnableServices(bufio.NewReader(conn))
		if err != nil {
			t.Errorf("read enable: %v", err)
			return
		}
		_ = WriteEnableAck(conn, EnableAck{Status: AckStatusAccepted, Services: req.Services})
		_, _ = frame.ReadFrame(conn, frame.DefaultLimits())
	}()

	c, err := Dial(context.Background(), ln.Addr().String(), Config{ClientName: "probe"})
	require.NoError(t, err)
	require.NoError(t, c.Close())
}

func TestDialRejectedIsNotRetried(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		if _, err := ReadEnableServices(bufio.NewReader(conn)); err != nil {
			return
		}
		_ = WriteEnableAck(conn, EnableAck{Status: AckStatusRejected, Message: "debugger busy"})
	}()

	_, err = Dial(context.Background(), ln.Addr().String(), Config{MaxConnectAttempts: 5})
	require.True(t, errors.Is(err, ErrHandshakeRejected), "got %v", err)
	require.Contains(t, err.Error(), "debugger busy")
}

func TestDialRequiresAddress(t *testing.T) {
	testlog.Start(t)
	_, err := Dial(context.Background(), " ", DefaultConfig())
	require.ErrorIs(t, err, ErrAddressRequired)
}
