package server

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roastwire/roastwire/internal/protocol"
)

// conn is one client's live channel to a machine. Outbound frames go
// through a buffered send queue drained by writePump; a client that
// cannot keep up is disconnected rather than allowed to stall the
// machine's fan-out.
type conn struct {
	id string
	rt *machineRuntime
	ws *websocket.Conn

	send      chan []byte
	closeOnce sync.Once
	closed    atomic.Bool

	// firstLiveTs is the timestamp of the first live temperature frame
	// queued for this connection, guarded by rt.mu. Sync replay stops
	// below it: anything at or past it is already on the send queue.
	firstLiveTs int64
}

// enqueue serializes a frame onto the send queue. A full queue means the
// client fell behind the stream, so the connection is torn down.
func (c *conn) enqueue(m protocol.Message) {
	data, err := protocol.Encode(m)
	if err != nil {
		return
	}
	if !c.trySend(data) {
		if c.closed.CompareAndSwap(false, true) {
			c.rt.obs.RecordDrop(c.rt.id, "slow_client")
		}
		c.shutdown()
	}
}

// trySend places data on the send queue without blocking. There is an
// unavoidable race between the closed check and the send, so the
// send-on-closed-channel panic is absorbed here.
func (c *conn) trySend(data []byte) (sent bool) {
	defer func() {
		if recover() != nil {
			sent = false
		}
	}()
	if c.closed.Load() {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// shutdown closes the send queue and the transport exactly once. The
// read pump notices the closed transport and runs detach, so shutdown
// never needs the runtime lock and is safe from the broadcast path.
func (c *conn) shutdown() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.send)
		_ = c.ws.Close()
	})
}

// readPump decodes and dispatches inbound frames until the transport
// closes. Malformed frames are counted and dropped without any reply and
// without touching the session.
func (c *conn) readPump() {
	defer func() {
		c.rt.detach(c)
	}()

	pol := c.rt.policy
	c.ws.SetReadLimit(pol.MaxFrameBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(pol.PongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pol.PongTimeout))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}

		m, err := protocol.Decode(data)
		if err != nil {
			c.rt.obs.IncCounter("roastwire_bad_frames_total", 1)
			c.rt.obs.RecordDrop(c.rt.id, "bad_frame")
			continue
		}
		c.dispatch(m)
	}
}

// dispatch routes one well-formed inbound frame. Sync is serviced here
// from the history buffer; everything else goes to the session. Replies
// are private to this connection, broadcasts come back through the
// runtime.
func (c *conn) dispatch(m protocol.Message) {
	switch f := m.(type) {
	case *protocol.Command:
		if f.Action == protocol.ActionSync {
			// Live frames broadcast between attach and this sync are
			// already queued. The replay skips them so the resumption
			// window never carries duplicates; consumers order the
			// window on timestamp_ms.
			n := 0
			c.rt.session.SyncReplay(f.LastTimestampMs, func(m protocol.Message) {
				if t, ok := m.(*protocol.Temperature); ok {
					if floor := c.liveFloor(); floor != 0 && t.TimestampMs >= floor {
						return
					}
				}
				c.enqueue(m)
				n++
			})
			c.rt.obs.IncCounter("roastwire_replayed_samples_total", float64(n))
			return
		}
		c.reply(c.rt.session.HandleCommand(c.id, f))
	case *protocol.Control:
		c.reply(c.rt.session.HandleControl(c.id, f))
	case *protocol.ReplayControl:
		c.reply(c.rt.session.HandleReplayControl(c.id, f))
	default:
		// Server-to-client frame types arriving inbound are noise.
		c.rt.obs.RecordDrop(c.rt.id, "unexpected_frame")
	}
}

// liveFloor reads the resumption-window floor. Temperature broadcasts
// hold the session lock, so the floor cannot move while a sync replay is
// consulting it.
func (c *conn) liveFloor() int64 {
	c.rt.mu.Lock()
	defer c.rt.mu.Unlock()
	return c.firstLiveTs
}

func (c *conn) reply(msgs []protocol.Message) {
	for _, m := range msgs {
		c.enqueue(m)
	}
}

// writePump drains the send queue to the transport and keeps the
// connection alive with pings. It owns all websocket writes for this
// connection.
func (c *conn) writePump() {
	pol := c.rt.policy
	ticker := time.NewTicker(pol.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(pol.WriteTimeout))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(pol.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
