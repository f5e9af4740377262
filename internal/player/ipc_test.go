package player

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePlayerProcess is a single-connection line-delimited JSON server
// standing in for a real player process. handle is invoked once per
// decoded request line and may write response lines to conn in any order.
type fakePlayerProcess struct {
	t      *testing.T
	ln     net.Listener
	handle func(conn net.Conn, req map[string]any)

	mu   sync.Mutex
	conn net.Conn
}

func startFakePlayer(t *testing.T, handle func(conn net.Conn, req map[string]any)) *fakePlayerProcess {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	f := &fakePlayerProcess{t: t, ln: ln, handle: handle}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conn = conn
		f.mu.Unlock()

		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			var req map[string]any
			if json.Unmarshal(scanner.Bytes(), &req) != nil {
				continue
			}
			f.handle(conn, req)
		}
	}()
	return f
}

func (f *fakePlayerProcess) addr() string { return f.ln.Addr().String() }

// push writes a server-initiated event line (e.g. an EOF notification).
func (f *fakePlayerProcess) push(line string) {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if conn != nil {
		fmt.Fprintf(conn, "%s\n", line)
	}
}

func respondOK(conn net.Conn, req map[string]any) {
	fmt.Fprintf(conn, `{"request_id":%q,"ok":true}`+"\n", req["request_id"])
}

func dialTestPlayer(t *testing.T, addr string) *IPCPlayer {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p, err := Dial(ctx, "tcp", addr, "zone1")
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestIPCPlayerRoundTrip(t *testing.T) {
	var mu sync.Mutex
	var commands []string
	srv := startFakePlayer(t, func(conn net.Conn, req map[string]any) {
		mu.Lock()
		commands = append(commands, req["command"].(string))
		mu.Unlock()
		respondOK(conn, req)
	})
	p := dialTestPlayer(t, srv.addr())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Load(ctx, "/media/a.wav", true))
	require.NoError(t, p.SetVolume(ctx, 80))
	require.NoError(t, p.Play(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"load", "set_volume", "play"}, commands)
}

// Responses are matched by request_id, not arrival order: the server holds
// the first request's reply until the second arrives, then answers in
// reverse. Both concurrent calls must still succeed.
func TestIPCPlayerCorrelatesOutOfOrderResponses(t *testing.T) {
	var mu sync.Mutex
	var held map[string]any
	srv := startFakePlayer(t, func(conn net.Conn, req map[string]any) {
		mu.Lock()
		defer mu.Unlock()
		if held == nil {
			held = req
			return
		}
		respondOK(conn, req)
		respondOK(conn, held)
	})
	p := dialTestPlayer(t, srv.addr())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	errs := make(chan error, 2)
	go func() { errs <- p.Play(ctx) }()
	time.Sleep(50 * time.Millisecond)
	go func() { errs <- p.Pause(ctx) }()

	require.NoError(t, <-errs)
	require.NoError(t, <-errs)
}

func TestIPCPlayerErrorResponse(t *testing.T) {
	srv := startFakePlayer(t, func(conn net.Conn, req map[string]any) {
		fmt.Fprintf(conn, `{"request_id":%q,"ok":false,"error":"no such file"}`+"\n", req["request_id"])
	})
	p := dialTestPlayer(t, srv.addr())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := p.Load(ctx, "/media/missing.wav", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such file")
}

// Three consecutive unanswered calls trip the breaker; the next call fails
// fast with the breaker open instead of waiting out another deadline.
func TestIPCPlayerTimeoutTripsBreaker(t *testing.T) {
	srv := startFakePlayer(t, func(net.Conn, map[string]any) {
		// never respond
	})
	p := dialTestPlayer(t, srv.addr())

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		err := p.Play(ctx)
		cancel()
		require.ErrorIs(t, err, context.DeadlineExceeded)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	started := time.Now()
	err := p.Play(ctx)
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Less(t, time.Since(started), 100*time.Millisecond, "open breaker must fail fast")
}

func TestIPCPlayerObserveEOF(t *testing.T) {
	srv := startFakePlayer(t, respondOK)
	p := dialTestPlayer(t, srv.addr())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Play(ctx))

	srv.push(`{"event":"eof"}`)

	select {
	case <-p.ObserveEOF():
	case <-time.After(time.Second):
		t.Fatal("EOF event not observed")
	}
}

func TestIPCPlayerClosedConnectionErrors(t *testing.T) {
	srv := startFakePlayer(t, respondOK)
	p := dialTestPlayer(t, srv.addr())
	require.NoError(t, p.Close())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := p.Play(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection closed")
}
