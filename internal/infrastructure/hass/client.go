package hass

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oasis-climate/oasis-bridge/internal/infrastructure/config"
)

// Default command and reconnect timings.
const (
	commandTimeout        = 10 * time.Second
	defaultInitialBackoff = 1 * time.Second
	defaultMaxBackoff     = 30 * time.Second
)

// Logger defines the logging interface used by the client.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// subscriberEntry is one registered handler in the fan-out table.
type subscriberEntry struct {
	subID   int
	handler StateChangeHandler
}

// Client is the Home Assistant WebSocket client.
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	url            string
	token          string
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         Logger

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	reconnect bool
	ctx       context.Context
	cancel    context.CancelFunc

	writeMu sync.Mutex // gorilla allows one concurrent writer

	msgIDMu sync.Mutex
	msgID   int

	pendingMu sync.Mutex
	pending   map[int]chan message

	subsMu    sync.RWMutex
	subs      map[string][]subscriberEntry
	nextSubID int
}

// New creates a Home Assistant client from configuration.
func New(cfg config.HomeAssistantConfig) *Client {
	initial := time.Duration(cfg.Reconnect.InitialDelay) * time.Second
	if initial <= 0 {
		initial = defaultInitialBackoff
	}
	maxDelay := time.Duration(cfg.Reconnect.MaxDelay) * time.Second
	if maxDelay <= 0 {
		maxDelay = defaultMaxBackoff
	}

	return &Client{
		url:            cfg.URL,
		token:          cfg.Token,
		initialBackoff: initial,
		maxBackoff:     maxDelay,
		logger:         noopLogger{},
		pending:        make(map[int]chan message),
		subs:           make(map[string][]subscriberEntry),
	}
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	c.logger = logger
}

// Connect dials Home Assistant, authenticates and subscribes to
// state_changed events. Per-entity subscribers registered before Connect
// (or before a reconnect) remain in effect.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	if connected {
		return ErrAlreadyConnected
	}

	// Dial and authenticate before touching client state, so IsConnected,
	// Close and in-flight commands never wait on the network.
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	if err := c.authenticate(conn); err != nil {
		conn.Close() //nolint:errcheck // Best effort cleanup on error path
		return err
	}

	c.mu.Lock()
	if c.connected {
		// Lost the race to a concurrent Connect.
		c.mu.Unlock()
		conn.Close() //nolint:errcheck // Best effort cleanup on error path
		return ErrAlreadyConnected
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.conn = conn
	c.connected = true
	c.reconnect = true
	readCtx := c.ctx
	c.mu.Unlock()

	go c.readLoop(readCtx, conn)

	if err := c.subscribeEvents(ctx); err != nil {
		c.logger.Warn("event subscription failed", "error", err)
	}

	c.logger.Info("connected to home assistant", "url", c.url)
	return nil
}

// authenticate runs the auth_required/auth/auth_ok handshake.
func (c *Client) authenticate(conn *websocket.Conn) error {
	var required message
	if err := conn.ReadJSON(&required); err != nil {
		return fmt.Errorf("%w: reading auth_required: %w", ErrConnectionFailed, err)
	}
	if required.Type != "auth_required" {
		return fmt.Errorf("%w: unexpected frame %q", ErrConnectionFailed, required.Type)
	}

	if err := conn.WriteJSON(authMessage{Type: "auth", AccessToken: c.token}); err != nil {
		return fmt.Errorf("%w: sending auth: %w", ErrConnectionFailed, err)
	}

	var resp message
	if err := conn.ReadJSON(&resp); err != nil {
		return fmt.Errorf("%w: reading auth response: %w", ErrConnectionFailed, err)
	}
	switch resp.Type {
	case "auth_ok":
		return nil
	case "auth_invalid":
		return ErrAuthFailed
	default:
		return fmt.Errorf("%w: unexpected frame %q", ErrConnectionFailed, resp.Type)
	}
}

// subscribeEvents registers the single wire-level state_changed subscription.
func (c *Client) subscribeEvents(ctx context.Context) error {
	req := struct {
		ID        int    `json:"id"`
		Type      string `json:"type"`
		EventType string `json:"event_type"`
	}{c.nextMsgID(), "subscribe_events", "state_changed"}

	_, err := c.send(ctx, req.ID, req)
	return err
}

// Close shuts the connection down and disables reconnection.
// Per-entity subscribers are retained; a later Connect reactivates them.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reconnect = false
	if !c.connected {
		return nil
	}
	c.connected = false

	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil {
		c.writeMu.Lock()
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		c.conn.Close() //nolint:errcheck // Connection is being discarded
		c.conn = nil
	}

	c.logger.Info("disconnected from home assistant")
	return nil
}

// IsConnected reports whether the client has a live authenticated
// connection.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// nextMsgID returns the next command correlation id.
func (c *Client) nextMsgID() int {
	c.msgIDMu.Lock()
	defer c.msgIDMu.Unlock()
	c.msgID++
	return c.msgID
}

// send transmits a command and waits for its correlated response.
func (c *Client) send(ctx context.Context, id int, req any) (*message, error) {
	c.mu.RLock()
	conn := c.conn
	connected := c.connected
	clientCtx := c.ctx
	c.mu.RUnlock()

	if !connected || conn == nil {
		return nil, ErrNotConnected
	}

	respChan := make(chan message, 1)
	c.pendingMu.Lock()
	c.pending[id] = respChan
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	c.writeMu.Lock()
	err := conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("hass: sending command: %w", err)
	}

	select {
	case resp := <-respChan:
		if resp.Success != nil && !*resp.Success {
			if resp.Error != nil {
				return nil, fmt.Errorf("%w: %s: %s", ErrCommandFailed, resp.Error.Code, resp.Error.Message)
			}
			return nil, ErrCommandFailed
		}
		return &resp, nil
	case <-time.After(commandTimeout):
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-clientCtx.Done():
		return nil, ErrNotConnected
	}
}

// readLoop consumes frames until the connection drops, routing events to
// subscribers and responses to waiting commands.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			select {
			case <-ctx.Done(): // clean shutdown
			default:
				c.logger.Warn("connection lost", "error", err)
				c.handleDisconnect()
			}
			return
		}

		if msg.Type == "event" {
			c.dispatchEvent(&msg)
			continue
		}

		if msg.ID > 0 {
			c.pendingMu.Lock()
			if ch, ok := c.pending[msg.ID]; ok {
				select {
				case ch <- msg:
				default:
				}
			}
			c.pendingMu.Unlock()
		}
	}
}

// dispatchEvent fans a state_changed event out to its entity's subscribers.
func (c *Client) dispatchEvent(msg *message) {
	if msg.Event == nil || msg.Event.EventType != "state_changed" {
		return
	}

	var data stateChangedEvent
	if err := json.Unmarshal(msg.Event.Data, &data); err != nil {
		c.logger.Error("malformed state_changed event", "error", err)
		return
	}

	c.subsMu.RLock()
	entries := append([]subscriberEntry(nil), c.subs[data.EntityID]...)
	c.subsMu.RUnlock()

	for _, entry := range entries {
		entry.handler(data.EntityID, data.OldState, data.NewState)
	}
}

// handleDisconnect marks the client down and starts the reconnect loop.
func (c *Client) handleDisconnect() {
	c.mu.Lock()
	c.connected = false
	if c.conn != nil {
		c.conn.Close() //nolint:errcheck // Connection already broken
		c.conn = nil
	}
	shouldReconnect := c.reconnect
	c.mu.Unlock()

	if shouldReconnect {
		go c.reconnectLoop()
	}
}

// reconnectLoop retries Connect with exponential backoff until it succeeds
// or the client is closed.
func (c *Client) reconnectLoop() {
	backoff := c.initialBackoff
	for {
		time.Sleep(backoff)

		c.mu.RLock()
		shouldReconnect := c.reconnect
		c.mu.RUnlock()
		if !shouldReconnect {
			return
		}

		c.logger.Info("reconnecting to home assistant", "backoff", backoff.String())
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		err := c.Connect(ctx)
		cancel()
		if err == nil {
			c.logger.Info("reconnected to home assistant")
			return
		}

		c.logger.Warn("reconnect failed", "error", err)
		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}

// GetStates fetches every entity state.
func (c *Client) GetStates(ctx context.Context) ([]*State, error) {
	req := struct {
		ID   int    `json:"id"`
		Type string `json:"type"`
	}{c.nextMsgID(), "get_states"}

	resp, err := c.send(ctx, req.ID, req)
	if err != nil {
		return nil, err
	}

	var states []*State
	if err := json.Unmarshal(resp.Result, &states); err != nil {
		return nil, fmt.Errorf("hass: decoding states: %w", err)
	}
	return states, nil
}

// GetState fetches one entity's state.
func (c *Client) GetState(ctx context.Context, entityID string) (*State, error) {
	states, err := c.GetStates(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range states {
		if s.EntityID == entityID {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, entityID)
}

// CallService invokes a Home Assistant service.
func (c *Client) CallService(ctx context.Context, domain, service string, data map[string]any) error {
	req := struct {
		ID          int            `json:"id"`
		Type        string         `json:"type"`
		Domain      string         `json:"domain"`
		Service     string         `json:"service"`
		ServiceData map[string]any `json:"service_data,omitempty"`
	}{c.nextMsgID(), "call_service", domain, service, data}

	_, err := c.send(ctx, req.ID, req)
	return err
}

// SubscribeStateChanges registers a handler for one entity's state changes.
//
// Registration is purely local (the wire subscription covers all entities),
// so it works while disconnected and survives reconnects. The entity does
// not need to exist yet; events flow from when it appears.
func (c *Client) SubscribeStateChanges(entityID string, handler StateChangeHandler) (*Subscription, error) {
	c.subsMu.Lock()
	c.nextSubID++
	subID := c.nextSubID
	c.subs[entityID] = append(c.subs[entityID], subscriberEntry{subID: subID, handler: handler})
	c.subsMu.Unlock()

	return &Subscription{entityID: entityID, subID: subID, client: c}, nil
}

// unsubscribe removes one handler from the fan-out table.
func (c *Client) unsubscribe(entityID string, subID int) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	entries := c.subs[entityID]
	for i, entry := range entries {
		if entry.subID == subID {
			c.subs[entityID] = append(entries[:i], entries[i+1:]...)
			if len(c.subs[entityID]) == 0 {
				delete(c.subs, entityID)
			}
			return
		}
	}
}
