package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lehigh-university-libraries/shelfscan/internal/blobstore"
	"github.com/lehigh-university-libraries/shelfscan/internal/ledger"
	"github.com/lehigh-university-libraries/shelfscan/internal/pipeline"
	"github.com/lehigh-university-libraries/shelfscan/internal/status"
)

var (
	// ErrRequestTimeout means no response arrived within the client timeout.
	// It is never returned for a failure the server reported.
	ErrRequestTimeout = errors.New("request timed out waiting for server response")
	ErrClientClosed   = errors.New("session client closed")
)

// ServerError is an error response sent by the server.
type ServerError struct {
	CorrelationID string
	Kind          string
	Message       string
}

func (e *ServerError) Error() string {
	if e.Kind == "" {
		return "server error: " + e.Message
	}
	return fmt.Sprintf("server error (%s): %s", e.Kind, e.Message)
}

// ClientOptions configures Dial.
type ClientOptions struct {
	// Timeout bounds each request from send to final response.
	Timeout time.Duration
	// OnStatus receives status events for in-flight requests, in order.
	OnStatus func(correlationID string, e status.Event)
	// OnSnapshot receives the ledger replay sent on connect.
	OnSnapshot func(entries []ledger.Entry)
	Header     http.Header
}

// Client correlates requests with their responses over one connection.
type Client struct {
	ws   *websocket.Conn
	opts ClientOptions

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan Message
	ready   chan ReadyPayload
	closed  chan struct{}
	err     error
}

// Dial connects to url and waits for the server's ready message.
func Dial(ctx context.Context, url string, opts ClientOptions) (*Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, opts.Header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	c := &Client{
		ws:      ws,
		opts:    opts,
		pending: make(map[string]chan Message),
		ready:   make(chan ReadyPayload, 1),
		closed:  make(chan struct{}),
	}
	go c.readLoop()

	select {
	case <-c.ready:
		return c, nil
	case <-c.closed:
		return nil, c.closeErr()
	case <-ctx.Done():
		_ = c.Close()
		return nil, ctx.Err()
	}
}

func (c *Client) closeErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	return ErrClientClosed
}

func (c *Client) readLoop() {
	defer close(c.closed)
	for {
		var msg Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			c.mu.Lock()
			if c.err == nil {
				c.err = fmt.Errorf("%w: %v", ErrClientClosed, err)
			}
			c.mu.Unlock()
			return
		}

		switch msg.Type {
		case TypeReady:
			var p ReadyPayload
			_ = json.Unmarshal(msg.Payload, &p)
			select {
			case c.ready <- p:
			default:
			}
		case TypeSnapshot:
			if c.opts.OnSnapshot != nil {
				var entries []ledger.Entry
				if err := json.Unmarshal(msg.Payload, &entries); err != nil {
					slog.Warn("Unable to decode snapshot", "error", err)
					continue
				}
				c.opts.OnSnapshot(entries)
			}
		case TypeStatus:
			if c.opts.OnStatus != nil {
				var e status.Event
				if err := json.Unmarshal(msg.Payload, &e); err != nil {
					slog.Warn("Unable to decode status event", "error", err)
					continue
				}
				c.opts.OnStatus(msg.CorrelationID, e)
			}
		default:
			c.mu.Lock()
			ch, ok := c.pending[msg.CorrelationID]
			delete(c.pending, msg.CorrelationID)
			c.mu.Unlock()
			if ok {
				ch <- msg
			} else {
				slog.Debug("Dropping uncorrelated message", "type", msg.Type, "correlation_id", msg.CorrelationID)
			}
		}
	}
}

// Close closes the connection. Pending requests fail with ErrClientClosed.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	c.writeMu.Unlock()
	return c.ws.Close()
}

// Do sends one request and waits for its correlated response. Error
// responses become *ServerError.
func (c *Client) Do(ctx context.Context, t MessageType, payload any) (Message, error) {
	id := uuid.NewString()
	msg, err := encode(t, id, payload)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode %s: %w", t, err)
	}

	ch := make(chan Message, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	c.writeMu.Lock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	err = c.ws.WriteJSON(msg)
	c.writeMu.Unlock()
	if err != nil {
		return Message{}, fmt.Errorf("failed to send %s: %w", t, err)
	}

	timer := time.NewTimer(c.opts.Timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.Type == TypeError {
			var p ErrorPayload
			_ = json.Unmarshal(resp.Payload, &p)
			return resp, &ServerError{CorrelationID: id, Kind: p.Kind, Message: p.Message}
		}
		return resp, nil
	case <-timer.C:
		return Message{}, fmt.Errorf("%w: %s after %s", ErrRequestTimeout, t, c.opts.Timeout)
	case <-c.closed:
		return Message{}, c.closeErr()
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Ingest runs the pipeline for an uploaded blob.
func (c *Client) Ingest(ctx context.Context, p IngestPayload) (*pipeline.Result, error) {
	return c.analyze(ctx, TypeIngestComplete, p)
}

// Reanalyze re-runs the pipeline for a blob already ingested.
func (c *Client) Reanalyze(ctx context.Context, p IngestPayload) (*pipeline.Result, error) {
	return c.analyze(ctx, TypeReanalyzeRequest, p)
}

func (c *Client) analyze(ctx context.Context, t MessageType, p IngestPayload) (*pipeline.Result, error) {
	resp, err := c.Do(ctx, t, p)
	if err != nil {
		return nil, err
	}
	var result pipeline.Result
	if err := json.Unmarshal(resp.Payload, &result); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return &result, nil
}

// Presign asks the server for an upload authorization.
func (c *Client) Presign(ctx context.Context, req blobstore.PresignRequest) (*blobstore.Authorization, error) {
	resp, err := c.Do(ctx, TypePresignRequest, req)
	if err != nil {
		return nil, err
	}
	var auth blobstore.Authorization
	if err := json.Unmarshal(resp.Payload, &auth); err != nil {
		return nil, fmt.Errorf("failed to decode authorization: %w", err)
	}
	return &auth, nil
}

// Ping round-trips an application-level ping.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Do(ctx, TypePing, nil)
	return err
}
