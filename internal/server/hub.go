// Package server hosts the machine hub: per-machine sessions fed by their
// drivers, fanned out over websocket live channels, with a small HTTP
// surface for discovery and metrics.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roastwire/roastwire/internal/adapters/history"
	"github.com/roastwire/roastwire/internal/app/pipeline"
	"github.com/roastwire/roastwire/internal/domain"
	"github.com/roastwire/roastwire/internal/ports"
	"github.com/roastwire/roastwire/internal/protocol"
	"github.com/roastwire/roastwire/internal/session"
)

// Config wires the hub's collaborators and transport tuning.
type Config struct {
	ListenAddr  string
	MetricsAddr string
	Policy      ports.Policy
	Obs         ports.Observability
	Archive     ports.Archive       // optional
	Profiles    ports.ProfileSource // optional
}

// Machine describes one roaster to register with the hub.
type Machine struct {
	ID     string
	Name   string
	Driver ports.Driver
	Alarms []session.AlarmRule
}

// Hub owns every machine runtime and the HTTP/websocket surface over
// them. Register machines with AddMachine before Run.
type Hub struct {
	cfg Config
	obs ports.Observability

	mu       sync.RWMutex
	machines map[string]*machineRuntime
	running  bool
}

func New(cfg Config) *Hub {
	cfg.Policy = withPolicyDefaults(cfg.Policy)
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	return &Hub{
		cfg:      cfg,
		obs:      cfg.Obs,
		machines: make(map[string]*machineRuntime),
	}
}

// withPolicyDefaults fills unset transport knobs. The ping period must
// stay below the pong timeout or healthy clients get reaped.
func withPolicyDefaults(p ports.Policy) ports.Policy {
	if p.HistoryWindow <= 0 {
		p.HistoryWindow = history.DefaultWindow
	}
	if p.SendBuffer <= 0 {
		p.SendBuffer = 256
	}
	if p.FeedBuffer <= 0 {
		p.FeedBuffer = 64
	}
	if p.PongTimeout <= 0 {
		p.PongTimeout = 60 * time.Second
	}
	if p.PingInterval <= 0 || p.PingInterval >= p.PongTimeout {
		p.PingInterval = p.PongTimeout * 9 / 10
	}
	if p.WriteTimeout <= 0 {
		p.WriteTimeout = 10 * time.Second
	}
	if p.MaxFrameBytes <= 0 {
		p.MaxFrameBytes = 64 * 1024
	}
	return p
}

// AddMachine registers a machine and builds its runtime. Must be called
// before Run.
func (h *Hub) AddMachine(m Machine) error {
	if m.ID == "" {
		return fmt.Errorf("server: machine id is required")
	}
	if m.Driver == nil {
		return fmt.Errorf("server: machine %q has no driver", m.ID)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return fmt.Errorf("server: hub already running")
	}
	if _, ok := h.machines[m.ID]; ok {
		return fmt.Errorf("server: duplicate machine id %q", m.ID)
	}

	rt := &machineRuntime{
		id:      m.ID,
		name:    m.Name,
		driver:  m.Driver,
		history: history.NewRing(h.cfg.Policy.HistoryWindow),
		obs:     h.obs,
		policy:  h.cfg.Policy,
		conns:   make(map[*conn]struct{}),
	}
	rt.session = session.New(session.Config{
		MachineID: m.ID,
		Driver:    m.Driver,
		History:   rt.history,
		Archive:   h.cfg.Archive,
		Profiles:  h.cfg.Profiles,
		Obs:       h.obs,
		Broadcast: rt.broadcast,
		Alarms:    m.Alarms,
	})
	h.machines[m.ID] = rt
	return nil
}

// Session returns the named machine's session, for embedders that feed
// detected events or inspect state directly. Nil when unknown.
func (h *Hub) Session(machineID string) *session.Session {
	if rt := h.runtime(machineID); rt != nil {
		return rt.session
	}
	return nil
}

func (h *Hub) runtime(machineID string) *machineRuntime {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.machines[machineID]
}

func (h *Hub) runtimes() []*machineRuntime {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*machineRuntime, 0, len(h.machines))
	for _, rt := range h.machines {
		out = append(out, rt)
	}
	return out
}

// Run starts every machine's driver feed and serves the HTTP surface
// until ctx is cancelled, then shuts down gracefully.
func (h *Hub) Run(ctx context.Context) error {
	h.mu.Lock()
	h.running = true
	h.mu.Unlock()

	feedCtx, cancelFeeds := context.WithCancel(ctx)
	defer cancelFeeds()

	for _, rt := range h.runtimes() {
		rt := rt
		err := pipeline.RunFeed(feedCtx, rt.driver, rt.ingest, rt.driverStatus, h.cfg.Policy, h.obs)
		if err != nil {
			return fmt.Errorf("server: start feed for %s: %w", rt.id, err)
		}
	}

	srv := &http.Server{Addr: h.cfg.ListenAddr, Handler: h.Handler()}

	var metricsSrv *http.Server
	if h.cfg.MetricsAddr != "" {
		metricsSrv = &http.Server{Addr: h.cfg.MetricsAddr, Handler: metricsHandler()}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				h.obs.LogError("metrics_listen_failed", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
	}()

	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		err = nil
	}

	for _, rt := range h.runtimes() {
		rt.closeAll()
		rt.session.Close()
	}
	return err
}

// machineRuntime binds one machine's driver, session, history buffer, and
// the set of live connections observing it.
type machineRuntime struct {
	id      string
	name    string
	driver  ports.Driver
	history ports.HistoryStore
	session *session.Session
	obs     ports.Observability
	policy  ports.Policy

	mu     sync.Mutex
	conns  map[*conn]struct{}
	nextID atomic.Uint64
}

// ingest is the feed sink: one driver sample through the session's
// single-writer path, then the retention gauge.
func (rt *machineRuntime) ingest(s *domain.Sample) {
	rt.session.Ingest(s)
	rt.obs.SetMachineGauge("roastwire_history_samples", rt.id, float64(rt.history.Len()))
}

// driverStatus relays driver lifecycle notifications onto the channel.
// Every state transition becomes a connection frame; losing the
// transport additionally raises DRIVER_DISCONNECTED, and a failed read
// with the transport still up raises DRIVER_READ_FAILED.
func (rt *machineRuntime) driverStatus(st ports.DriverStatus) {
	if st.Err != nil && st.State == ports.DriverConnected {
		rt.obs.LogError("driver_read_failed", st.Err, ports.Field{Key: "machine", Value: rt.id})
		rt.obs.IncCounter("roastwire_driver_faults_total", 1)
		rt.broadcast(protocol.NewError(domain.CodeDriverReadFailed, st.Err.Error()))
		return
	}

	frame := &protocol.Connection{
		Type:        protocol.TypeConnection,
		DriverState: string(st.State),
		DriverName:  rt.driver.Name(),
	}
	if st.Err != nil {
		frame.Message = st.Err.Error()
	}
	rt.broadcast(frame)

	if st.State == ports.DriverDisconnected || st.State == ports.DriverErrored {
		msg := "driver connection lost"
		if st.Err != nil {
			msg = st.Err.Error()
		}
		rt.obs.LogError("driver_disconnected", st.Err, ports.Field{Key: "machine", Value: rt.id})
		rt.obs.IncCounter("roastwire_driver_faults_total", 1)
		rt.broadcast(protocol.NewError(domain.CodeDriverDisconnected, msg))
	}
}

// broadcast fans one frame out to every attached connection. It encodes
// once and never blocks; connections that cannot accept the frame are
// torn down. The session invokes this while holding its own lock, which
// is what serializes sync replay against live traffic. Temperature
// frames record each connection's live floor so a later sync replay can
// tell what the resumption window already delivered.
func (rt *machineRuntime) broadcast(m protocol.Message) {
	data, err := protocol.Encode(m)
	if err != nil {
		return
	}
	var tempTs int64
	if temp, ok := m.(*protocol.Temperature); ok {
		tempTs = temp.TimestampMs
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	for c := range rt.conns {
		if !c.trySend(data) {
			rt.obs.RecordDrop(rt.id, "slow_client")
			c.shutdown()
			continue
		}
		if tempTs != 0 && c.firstLiveTs == 0 {
			c.firstLiveTs = tempTs
		}
	}
}

// attach registers a websocket as a new live connection and starts its
// pumps. The connection frame is queued under the runtime lock so no
// broadcast can precede it.
func (rt *machineRuntime) attach(ws *websocket.Conn) *conn {
	c := &conn{
		id:   fmt.Sprintf("%s-conn-%d", rt.id, rt.nextID.Add(1)),
		rt:   rt,
		ws:   ws,
		send: make(chan []byte, rt.policy.SendBuffer),
	}

	rt.mu.Lock()
	rt.conns[c] = struct{}{}
	n := len(rt.conns)
	c.enqueue(&protocol.Connection{
		Type:        protocol.TypeConnection,
		DriverState: string(rt.driver.State()),
		DriverName:  rt.driver.Name(),
	})
	rt.mu.Unlock()

	rt.obs.SetMachineGauge("roastwire_active_connections", rt.id, float64(n))
	rt.obs.LogInfo("client_attached",
		ports.Field{Key: "machine", Value: rt.id},
		ports.Field{Key: "conn", Value: c.id})

	go c.writePump()
	go c.readPump()
	return c
}

// detach unregisters a connection and releases any advisory lock it held.
func (rt *machineRuntime) detach(c *conn) {
	rt.mu.Lock()
	_, present := rt.conns[c]
	delete(rt.conns, c)
	n := len(rt.conns)
	rt.mu.Unlock()

	if !present {
		return
	}
	c.shutdown()
	rt.session.ReleaseLock(c.id)
	rt.obs.SetMachineGauge("roastwire_active_connections", rt.id, float64(n))
	rt.obs.LogInfo("client_detached",
		ports.Field{Key: "machine", Value: rt.id},
		ports.Field{Key: "conn", Value: c.id})
}

func (rt *machineRuntime) closeAll() {
	rt.mu.Lock()
	conns := make([]*conn, 0, len(rt.conns))
	for c := range rt.conns {
		conns = append(conns, c)
	}
	rt.mu.Unlock()

	for _, c := range conns {
		rt.detach(c)
	}
}

func (rt *machineRuntime) connCount() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.conns)
}
