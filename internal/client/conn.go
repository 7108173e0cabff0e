// Package client implements the Go side of a live channel: one managed
// websocket connection per machine with automatic reconnection and gap
// recovery. The manager never surfaces transport failures as errors; they
// become state transitions, and application failures arrive as protocol
// frames like any other traffic.
package client

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roastwire/roastwire/internal/protocol"
)

// State is the connection lifecycle state reported to the owner.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// Options configures a connection manager.
type Options struct {
	// BaseURL is the server root, e.g. "http://roaster.local:8080" or
	// "wss://roaster.example". http(s) schemes are upgraded to ws(s).
	BaseURL   string
	MachineID string

	// OnMessage receives every well-formed inbound frame. Malformed
	// frames never reach it.
	OnMessage func(protocol.Message)

	// OnState receives lifecycle transitions. Never called concurrently.
	OnState func(State)

	Dialer *websocket.Dialer
	Policy ReconnectPolicy
}

// Conn manages one channel to one machine: connect, retry with backoff,
// resume with a sync request, and forward inbound frames in receive
// order. All methods are safe for concurrent use.
type Conn struct {
	opts    Options
	liveURL string

	mu          sync.Mutex
	ws          *websocket.Conn
	state       State
	lastSeenMs  int64
	backoff     time.Duration
	intentional bool
	dialing     bool
	retryTimer  *time.Timer
	generation  uint64
	stateQueue  []State
	notifying   bool

	// writeMu serializes outbound websocket writes.
	writeMu sync.Mutex

	// cbMu serializes owner callbacks so the owner observes a
	// single-threaded event stream.
	cbMu sync.Mutex
}

// New builds a connection manager. It does not dial; call Connect.
func New(opts Options) (*Conn, error) {
	liveURL, err := buildLiveURL(opts.BaseURL, opts.MachineID)
	if err != nil {
		return nil, err
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Conn{
		opts:    opts,
		liveURL: liveURL,
		state:   StateDisconnected,
		backoff: opts.Policy.Floor(),
	}, nil
}

// buildLiveURL maps the base scheme onto the websocket scheme and appends
// the per-machine live path. A secure page talks to a secure channel.
func buildLiveURL(base, machineID string) (string, error) {
	if machineID == "" {
		return "", fmt.Errorf("client: machine id is required")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("client: parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("client: unsupported scheme %q", u.Scheme)
	}
	u.Path = "/live/" + machineID
	return u.String(), nil
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastSeenMs returns the newest telemetry timestamp accepted on this
// channel. Monotonically non-decreasing for the life of the Conn.
func (c *Conn) LastSeenMs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeenMs
}

// Connect starts a connection attempt. No-op when an attempt is already
// in flight or the channel is open.
func (c *Conn) Connect() {
	c.mu.Lock()
	if c.dialing || c.state == StateConnected {
		c.mu.Unlock()
		return
	}
	c.intentional = false
	c.dialing = true
	c.generation++
	gen := c.generation
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	go c.dial(gen)
}

// Disconnect closes the channel for good: it marks the close intentional
// and cancels any pending reconnect before touching the transport, so no
// reconnect can fire afterwards.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	c.intentional = true
	c.cancelRetryLocked()
	ws := c.ws
	c.ws = nil
	c.dialing = false
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if ws != nil {
		_ = ws.Close()
	}
}

// RetryNow cancels any pending backoff wait, resets the backoff to its
// minimum, and attempts to connect immediately.
func (c *Conn) RetryNow() {
	c.mu.Lock()
	c.cancelRetryLocked()
	c.backoff = c.opts.Policy.Floor()
	c.mu.Unlock()

	c.Connect()
}

// Send serializes and transmits a frame if the channel is currently open,
// and silently drops it otherwise. Delivery of control traffic is
// confirmed end to end by acknowledgement frames, not by the transport.
func (c *Conn) Send(m protocol.Message) {
	c.mu.Lock()
	ws := c.ws
	open := c.state == StateConnected
	c.mu.Unlock()
	if !open || ws == nil {
		return
	}

	data, err := protocol.Encode(m)
	if err != nil {
		return
	}
	c.writeMu.Lock()
	_ = ws.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
}

// dial performs one connection attempt for the given generation.
func (c *Conn) dial(gen uint64) {
	ws, resp, err := c.opts.Dialer.Dial(c.liveURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	c.mu.Lock()
	if gen != c.generation || c.intentional {
		// Disconnect (or a newer attempt) won the race.
		c.mu.Unlock()
		if ws != nil {
			_ = ws.Close()
		}
		return
	}
	c.dialing = false

	if err != nil {
		c.setStateLocked(StateDisconnected)
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		return
	}

	c.ws = ws
	c.backoff = c.opts.Policy.Floor()
	resume := c.lastSeenMs
	c.setStateLocked(StateConnected)
	c.mu.Unlock()

	// A resumed channel asks for its gap before any other traffic.
	if resume > 0 {
		if data, err := protocol.Encode(protocol.NewSync(resume)); err == nil {
			c.writeMu.Lock()
			_ = ws.WriteMessage(websocket.TextMessage, data)
			c.writeMu.Unlock()
		}
	}

	go c.readPump(ws, gen)
}

// readPump forwards inbound frames until the transport closes, then runs
// the close handling exactly once.
func (c *Conn) readPump(ws *websocket.Conn, gen uint64) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.handleClose(ws, gen, err)
			return
		}

		m, decodeErr := protocol.Decode(data)
		if decodeErr != nil {
			// Malformed frames never surface to the owner.
			continue
		}

		if temp, ok := m.(*protocol.Temperature); ok {
			c.mu.Lock()
			if temp.TimestampMs > c.lastSeenMs {
				c.lastSeenMs = temp.TimestampMs
			}
			c.mu.Unlock()
		}

		c.forward(m)
	}
}

// handleClose settles the state after the transport went away. Intentional
// closes stop here; unexpected ones schedule a reconnect.
func (c *Conn) handleClose(ws *websocket.Conn, gen uint64, err error) {
	_ = ws.Close()

	c.mu.Lock()
	if gen != c.generation || c.ws != ws {
		// A newer connection already replaced this one.
		c.mu.Unlock()
		return
	}
	c.ws = nil

	if c.intentional {
		c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		return
	}

	// A mid-stream transport fault is reported as an error state before
	// the close settles; reconnection is always driven by the close.
	if err != nil && !websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseNoStatusReceived) {
		c.setStateLocked(StateError)
	}

	c.setStateLocked(StateDisconnected)
	c.scheduleReconnectLocked()
	c.mu.Unlock()
}

// scheduleReconnectLocked arms the backoff timer. Caller holds c.mu.
func (c *Conn) scheduleReconnectLocked() {
	if c.intentional || c.retryTimer != nil {
		return
	}
	delay, next := c.opts.Policy.Next(c.backoff)
	c.backoff = next
	c.retryTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		c.retryTimer = nil
		intentional := c.intentional
		c.mu.Unlock()
		if !intentional {
			c.Connect()
		}
	})
}

// cancelRetryLocked stops a pending reconnect timer. Caller holds c.mu.
func (c *Conn) cancelRetryLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

// setStateLocked updates the state and queues the owner notification.
// Caller holds c.mu. Notifications are delivered in order, outside c.mu,
// so the callback may safely call back into the Conn.
func (c *Conn) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if c.opts.OnState == nil {
		return
	}
	c.stateQueue = append(c.stateQueue, s)
	if c.notifying {
		return
	}
	c.notifying = true
	go c.drainStateQueue()
}

func (c *Conn) drainStateQueue() {
	for {
		c.mu.Lock()
		if len(c.stateQueue) == 0 {
			c.notifying = false
			c.mu.Unlock()
			return
		}
		s := c.stateQueue[0]
		c.stateQueue = c.stateQueue[1:]
		c.mu.Unlock()

		c.cbMu.Lock()
		c.opts.OnState(s)
		c.cbMu.Unlock()
	}
}

// forward hands a frame to the owner in receive order.
func (c *Conn) forward(m protocol.Message) {
	if c.opts.OnMessage == nil {
		return
	}
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.opts.OnMessage(m)
}
