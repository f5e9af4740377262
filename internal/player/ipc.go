package player

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/MStylesMS/ParadoxFX-sub001/internal/logging"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/metrics"
	"github.com/rs/zerolog"
)

// request is a single line-delimited JSON command sent to the player
// process, mirroring the wire shape an mpv-style IPC socket expects.
type request struct {
	ID      string `json:"request_id"`
	Command string `json:"command"`
	File    string `json:"file,omitempty"`
	Loop    *bool  `json:"loop,omitempty"`
	Volume  *int   `json:"volume,omitempty"`
	Replace bool   `json:"replace,omitempty"`
}

type response struct {
	ID    string `json:"request_id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Event string `json:"event,omitempty"`
}

var _ Handle = (*IPCPlayer)(nil)

// IPCPlayer implements Handle over a newline-delimited JSON socket,
// protected by a circuit breaker so a wedged player process trips fast
// instead of hanging every future call behind a 5s timeout.
type IPCPlayer struct {
	name    string
	conn    net.Conn
	breaker *gobreaker.CircuitBreaker[any]
	logger  zerolog.Logger

	// wmu serializes writes: concurrent calls share one bufio.Writer.
	wmu    sync.Mutex
	writer *bufio.Writer

	mu      sync.Mutex
	pending map[string]chan response

	eofCh  chan struct{}
	closed atomic.Bool
}

// Dial connects to a media player process's control socket at addr over
// network ("tcp", "unix", or any other network net.Dial understands) and
// starts the response reader loop.
func Dial(ctx context.Context, network, addr, zoneName string) (*IPCPlayer, error) {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial player at %s://%s: %w", network, addr, err)
	}

	p := &IPCPlayer{
		name:    zoneName,
		conn:    conn,
		writer:  bufio.NewWriter(conn),
		logger:  logging.ForComponent("player-ipc").With().Str("zone", zoneName).Logger(),
		pending: make(map[string]chan response),
		eofCh:   make(chan struct{}, 1),
	}
	p.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "player-ipc-" + zoneName,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	go p.readLoop()
	return p, nil
}

func (p *IPCPlayer) readLoop() {
	scanner := bufio.NewScanner(p.conn)
	for scanner.Scan() {
		var resp response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			p.logger.Warn().Err(err).Msg("malformed player response line")
			continue
		}
		if resp.Event == "eof" {
			select {
			case p.eofCh <- struct{}{}:
			default:
			}
			continue
		}
		p.mu.Lock()
		ch, ok := p.pending[resp.ID]
		if ok {
			delete(p.pending, resp.ID)
		}
		p.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

// call sends req and waits for its matching response, bounded by ctx, and
// routed through the circuit breaker.
func (p *IPCPlayer) call(ctx context.Context, req request) error {
	if p.closed.Load() {
		return fmt.Errorf("player %s: connection closed", p.name)
	}
	req.ID = uuid.NewString()
	started := time.Now()

	_, err := p.breaker.Execute(func() (any, error) {
		ch := make(chan response, 1)
		p.mu.Lock()
		p.pending[req.ID] = ch
		p.mu.Unlock()

		payload, err := json.Marshal(req)
		if err != nil {
			p.forgetPending(req.ID)
			return nil, fmt.Errorf("encode request: %w", err)
		}
		payload = append(payload, '\n')

		p.wmu.Lock()
		_, err = p.writer.Write(payload)
		if err == nil {
			err = p.writer.Flush()
		}
		p.wmu.Unlock()
		if err != nil {
			p.forgetPending(req.ID)
			return nil, fmt.Errorf("write request: %w", err)
		}

		select {
		case resp := <-ch:
			if !resp.OK {
				return nil, fmt.Errorf("player error: %s", resp.Error)
			}
			return nil, nil
		case <-ctx.Done():
			p.forgetPending(req.ID)
			return nil, ctx.Err()
		}
	})

	errKind := ""
	if err != nil {
		errKind = "player_ipc_timeout"
	}
	metrics.RecordPlayerIPC(p.name, req.Command, time.Since(started), errKind)
	return err
}

func (p *IPCPlayer) forgetPending(id string) {
	p.mu.Lock()
	delete(p.pending, id)
	p.mu.Unlock()
}

func (p *IPCPlayer) Load(ctx context.Context, file string, replace bool) error {
	return p.call(ctx, request{Command: "load", File: file, Replace: replace})
}

func (p *IPCPlayer) SetLoop(ctx context.Context, loop bool) error {
	return p.call(ctx, request{Command: "set_loop", Loop: &loop})
}

func (p *IPCPlayer) SetVolume(ctx context.Context, volume int) error {
	return p.call(ctx, request{Command: "set_volume", Volume: &volume})
}

func (p *IPCPlayer) Play(ctx context.Context) error  { return p.call(ctx, request{Command: "play"}) }
func (p *IPCPlayer) Pause(ctx context.Context) error { return p.call(ctx, request{Command: "pause"}) }
func (p *IPCPlayer) Resume(ctx context.Context) error {
	return p.call(ctx, request{Command: "resume"})
}
func (p *IPCPlayer) Stop(ctx context.Context) error { return p.call(ctx, request{Command: "stop"}) }

func (p *IPCPlayer) ObserveEOF() <-chan struct{} { return p.eofCh }

func (p *IPCPlayer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.conn.Close()
}

// WithDeadline wraps ctx with the standard 5s player response deadline,
// returning the derived context and its cancel func.
func WithDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 5*time.Second)
}
