// Package wsbackend implements recorder.BackendContract as a
// live-streaming sink: every Notify batch is fanned out, as JSON, to
// every currently connected websocket client. Grounded on the
// teacher's SSE event-stream handler (internal/server/events_stream.go)
// — a per-connection buffered channel, non-blocking send, and a
// heartbeat to keep idle connections alive — adapted from SSE to
// nhooyr.io/websocket framing.
package wsbackend

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/aristath/simkernel/internal/kernerr"
	"github.com/aristath/simkernel/internal/recorder"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Backend holds the set of connected clients and fans out every
// recorded batch to them as a JSON frame.
type Backend struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	log     zerolog.Logger
}

type client struct {
	send chan message
}

type message struct {
	Table string          `json:"table"`
	Rows  []recorder.Row  `json:"rows"`
}

// New constructs an empty Backend; call ServeHTTP from an HTTP route to
// accept client connections.
func New(log zerolog.Logger) *Backend {
	return &Backend{
		clients: make(map[*client]struct{}),
		log:     log.With().Str("component", "wsbackend").Logger(),
	}
}

var _ recorder.BackendContract = (*Backend)(nil)

func (b *Backend) Name() string { return "ws:live" }

// Notify fans the batch out to every connected client, dropping it for
// any client whose send buffer is full rather than blocking the
// simulation loop (spec §5 failure isolation).
func (b *Backend) Notify(rows []recorder.Row) error {
	if len(rows) == 0 {
		return nil
	}
	byTable := make(map[string][]recorder.Row)
	for _, r := range rows {
		byTable[r.Table] = append(byTable[r.Table], r)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for table, trows := range byTable {
		msg := message{Table: table, Rows: trows}
		for c := range b.clients {
			select {
			case c.send <- msg:
			default:
				b.log.Warn().Str("table", table).Msg("client send buffer full, dropping batch")
			}
		}
	}
	return nil
}

// Flush has nothing to do beyond what Notify already pushed.
func (b *Backend) Flush() error { return nil }

// Close disconnects every client.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		close(c.send)
	}
	b.clients = make(map[*client]struct{})
	return nil
}

// Query is unsupported: a live stream has no durable read-back surface.
func (b *Backend) Query(table string) ([]recorder.Row, error) {
	return nil, kernerr.Newf(kernerr.KeyError, "ws backend does not support queries (table %q)", table)
}

// ServeHTTP upgrades the connection and streams every future recorded
// batch to it until the client disconnects.
func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		b.log.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	c := &client{send: make(chan message, 256)}
	b.mu.Lock()
	b.clients[c] = struct{}{}
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.clients, c)
		b.mu.Unlock()
	}()

	ctx := r.Context()
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "client disconnected")
			return
		case msg, ok := <-c.send:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "backend closed")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(wctx, conn, msg)
			cancel()
			if err != nil {
				b.log.Debug().Err(err).Msg("client write failed, disconnecting")
				return
			}
		case <-heartbeat.C:
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(wctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
