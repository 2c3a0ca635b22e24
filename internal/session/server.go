// Package session serves the duplex ingest protocol over WebSocket: readiness
// and ledger replay on connect, correlated request handling, per-request
// status streaming and liveness probing.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lehigh-university-libraries/shelfscan/internal/blobstore"
	"github.com/lehigh-university-libraries/shelfscan/internal/ingesterr"
	"github.com/lehigh-university-libraries/shelfscan/internal/ledger"
	"github.com/lehigh-university-libraries/shelfscan/internal/logging"
	"github.com/lehigh-university-libraries/shelfscan/internal/pipeline"
	"github.com/lehigh-university-libraries/shelfscan/internal/status"
)

const (
	writeWait = 10 * time.Second
	// maxMissedPings unanswered probes in a row close the connection.
	maxMissedPings = 2
	maxMessageSize = 1 << 20
)

// ErrShuttingDown is returned to requests that arrive after Wait was called.
var ErrShuttingDown = errors.New("server is shutting down")

// Runner executes one pipeline invocation.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request, sink status.Sink) (*pipeline.Result, error)
}

// Options tunes a Server. Zero values take the defaults.
type Options struct {
	SnapshotSize       int
	PingInterval       time.Duration
	DefaultContentType string
	// MaxPending bounds the requests queued per connection behind the one
	// being handled. Requests beyond it get an error reply.
	MaxPending int
}

// Server tracks every open connection. It implements http.Handler.
type Server struct {
	runner    Runner
	presigner blobstore.Presigner
	ledger    *ledger.Ledger
	opts      Options
	upgrader  websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]*conn

	runMu    sync.Mutex
	draining bool
	runs     sync.WaitGroup
}

func NewServer(runner Runner, presigner blobstore.Presigner, led *ledger.Ledger, opts Options) *Server {
	if opts.SnapshotSize <= 0 {
		opts.SnapshotSize = 50
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.DefaultContentType == "" {
		opts.DefaultContentType = "image/jpeg"
	}
	if opts.MaxPending <= 0 {
		opts.MaxPending = 64
	}
	return &Server{
		runner:    runner,
		presigner: presigner,
		ledger:    led,
		opts:      opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// no authentication; any origin may connect
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[string]*conn),
	}
}

type conn struct {
	id     string
	ws     *websocket.Conn
	server *Server
	ctx    context.Context

	writeMu   sync.Mutex
	missed    atomic.Int32
	closeOnce sync.Once
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &conn{id: uuid.NewString(), ws: ws, server: s}
	c.ctx = logging.WithConnection(context.Background(), c.id)
	ws.SetReadLimit(maxMessageSize)
	ws.SetPongHandler(func(string) error {
		c.missed.Store(0)
		return nil
	})

	s.add(c)
	defer s.remove(c)

	c.send(TypeReady, uuid.NewString(), ReadyPayload{ConnectionID: c.id, Timestamp: time.Now().UTC()})
	if s.ledger != nil && s.ledger.Len() > 0 {
		c.send(TypeSnapshot, uuid.NewString(), s.ledger.Snapshot(s.opts.SnapshotSize))
	}

	// The read loop keeps draining frames, so pongs are seen while the
	// worker is busy with a long pipeline run.
	inbox := make(chan []byte, s.opts.MaxPending)
	go c.work(inbox)
	defer close(inbox)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.With(c.ctx).Info("Connection closed unexpectedly", "error", err)
			}
			return
		}
		select {
		case inbox <- data:
		default:
			c.reject(data)
		}
	}
}

// reject answers a request that did not fit in the inbox.
func (c *conn) reject(data []byte) {
	var msg Message
	correlationID := ""
	if err := json.Unmarshal(data, &msg); err == nil {
		correlationID = msg.CorrelationID
	}
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	logging.With(c.ctx).Warn("Rejecting request, inbox full", "type", msg.Type, "correlation_id", correlationID)
	c.sendError(correlationID, ingesterr.Upstream("session.receive", errors.New("too many pending requests")))
}

func (s *Server) add(c *conn) {
	s.mu.Lock()
	s.conns[c.id] = c
	total := len(s.conns)
	s.mu.Unlock()
	logging.With(c.ctx).Info("Client connected", "total_connections", total)
}

func (s *Server) remove(c *conn) {
	s.mu.Lock()
	_, ok := s.conns[c.id]
	delete(s.conns, c.id)
	total := len(s.conns)
	s.mu.Unlock()
	c.close()
	if ok {
		logging.With(c.ctx).Info("Client disconnected", "total_connections", total)
	}
}

// ConnCount returns the number of open connections.
func (s *Server) ConnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

func (s *Server) snapshotConns() []*conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c)
	}
	return out
}

// beginRun registers an in-flight pipeline run. It reports false once the
// server is draining.
func (s *Server) beginRun() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.draining {
		return false
	}
	s.runs.Add(1)
	return true
}

// Wait stops accepting pipeline runs and blocks until the in-flight ones
// finish or ctx is done.
func (s *Server) Wait(ctx context.Context) error {
	s.runMu.Lock()
	s.draining = true
	s.runMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run probes every connection and prunes the ledger on each tick until ctx
// is done, then closes all connections.
func (s *Server) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			for _, c := range s.snapshotConns() {
				c.closeWith(websocket.CloseGoingAway, "server shutting down")
			}
			return nil
		case <-ticker.C:
			if s.ledger != nil {
				if n := s.ledger.Prune(); n > 0 {
					slog.Debug("Pruned operation ledger", "removed", n)
				}
			}
			for _, c := range s.snapshotConns() {
				c.probe()
			}
		}
	}
}

// probe sends a ping, or closes the connection once too many went unanswered.
func (c *conn) probe() {
	if c.missed.Load() >= maxMissedPings {
		logging.With(c.ctx).Warn("Closing unresponsive connection", "missed_pings", c.missed.Load())
		c.server.remove(c)
		return
	}
	c.missed.Add(1)
	if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
		logging.With(c.ctx).Debug("Ping failed", "error", err)
	}
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		_ = c.ws.Close()
	})
}

func (c *conn) closeWith(code int, reason string) {
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	c.close()
}

// work handles inbound messages one at a time.
func (c *conn) work(inbox <-chan []byte) {
	for data := range inbox {
		c.server.handle(c, data)
	}
}

// send writes one message. Failures are logged and dropped: a client that
// went away still has its operations recorded in the ledger.
func (c *conn) send(t MessageType, correlationID string, payload any) {
	msg, err := encode(t, correlationID, payload)
	if err != nil {
		logging.With(c.ctx).Error("Unable to encode message", "type", t, "error", err)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteJSON(msg); err != nil {
		logging.With(c.ctx).Debug("Dropping message for closed connection", "type", t, "error", err)
	}
}

func (c *conn) sendError(correlationID string, err error) {
	c.send(TypeError, correlationID, ErrorPayload{
		Message: err.Error(),
		Kind:    string(ingesterr.KindOf(err)),
	})
}

func (s *Server) handle(c *conn, data []byte) {
	correlationID := ""
	defer func() {
		if r := recover(); r != nil {
			logging.With(c.ctx).Error("Recovered from panic while handling message", "panic", r)
			if correlationID == "" {
				correlationID = uuid.NewString()
			}
			c.sendError(correlationID, ingesterr.Upstream("session.handle", fmt.Errorf("internal error: %v", r)))
		}
	}()

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		correlationID = uuid.NewString()
		c.sendError(correlationID, ingesterr.Protocol("session.decode", err, "malformed message"))
		return
	}
	correlationID = msg.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	ctx := logging.WithCorrelationID(c.ctx, correlationID)
	logging.With(ctx).Debug("Message received", "type", msg.Type)

	switch msg.Type {
	case "":
		c.sendError(correlationID, ingesterr.Protocol("session.decode", nil, "missing message type"))
	case TypePing:
		c.missed.Store(0)
		c.send(TypePong, correlationID, map[string]any{"timestamp": time.Now().UTC()})
	case TypePresignRequest:
		s.handlePresign(ctx, c, correlationID, msg.Payload)
	case TypeIngestComplete:
		s.handleIngest(ctx, c, correlationID, msg.Payload, false)
	case TypeReanalyzeRequest:
		s.handleIngest(ctx, c, correlationID, msg.Payload, true)
	default:
		c.sendError(correlationID, ingesterr.Protocol("session.decode", nil, "unknown message type %q", msg.Type))
	}
}

func (s *Server) handlePresign(ctx context.Context, c *conn, correlationID string, raw json.RawMessage) {
	if s.presigner == nil {
		c.sendError(correlationID, ingesterr.Validation("session.presign", "upload authorization is not available for this blob backend"))
		return
	}
	var req blobstore.PresignRequest
	if err := decodePayload(raw, &req); err != nil {
		c.sendError(correlationID, ingesterr.Validation("session.presign", "invalid payload: %v", err))
		return
	}
	auth, err := s.presigner.Presign(ctx, req)
	if err != nil {
		logging.With(ctx).Warn("Presign failed", "identifier", req.Identifier, "error", err)
		c.sendError(correlationID, err)
		return
	}
	c.send(TypePresignResponse, correlationID, auth)
}

func (s *Server) handleIngest(ctx context.Context, c *conn, correlationID string, raw json.RawMessage, reanalyze bool) {
	var payload IngestPayload
	if err := decodePayload(raw, &payload); err != nil {
		c.sendError(correlationID, ingesterr.Validation("session.ingest", "invalid payload: %v", err))
		return
	}
	req, err := payload.Request(reanalyze, s.opts.DefaultContentType)
	if err != nil {
		c.sendError(correlationID, err)
		return
	}

	if !s.beginRun() {
		c.sendError(correlationID, ingesterr.Upstream("session.ingest", ErrShuttingDown))
		return
	}
	defer s.runs.Done()

	sink := status.SinkFunc(func(e status.Event) {
		c.send(TypeStatus, correlationID, e)
	})

	// a dropped connection must not abort the run
	result, err := s.runner.Run(context.WithoutCancel(ctx), req, sink)
	if err != nil {
		c.sendError(correlationID, err)
		return
	}
	c.send(TypeResult, correlationID, result)
}

func decodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return fmt.Errorf("payload is required")
	}
	return json.Unmarshal(raw, dst)
}
