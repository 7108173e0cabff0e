// Package driver contains the in-tree roaster driver: a first-order-lag
// thermal simulator. Real hardware transports (Modbus, serial) implement
// ports.Driver outside this repository.
package driver

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/roastwire/roastwire/internal/domain"
	"github.com/roastwire/roastwire/internal/ports"
)

// Config captures the simulator's thermal model and sampling cadence.
type Config struct {
	MachineID string        `yaml:"machine_id"`
	Interval  time.Duration `yaml:"interval"`

	AmbientC   float64 `yaml:"ambient_c"`
	BurnerMaxC float64 `yaml:"burner_max_c"`

	// ETLag and BTLag are first-order time constants: environment
	// temperature chases the burner setpoint, bean temperature chases ET.
	ETLag time.Duration `yaml:"et_lag"`
	BTLag time.Duration `yaml:"bt_lag"`
}

func (c *Config) ApplyDefaults() {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.AmbientC == 0 {
		c.AmbientC = 25
	}
	if c.BurnerMaxC == 0 {
		c.BurnerMaxC = 280
	}
	if c.ETLag <= 0 {
		c.ETLag = 20 * time.Second
	}
	if c.BTLag <= 0 {
		c.BTLag = 45 * time.Second
	}
}

func (c *Config) Validate() error {
	if c.MachineID == "" {
		return fmt.Errorf("machine_id is required")
	}
	return nil
}

// Sim is a simulated roaster. It exposes two control channels, "burner"
// and "air", both normalized to [0,1]; only the burner feeds the thermal
// model, the air value is echoed into the extra channels.
type Sim struct {
	cfg Config

	mu       sync.Mutex
	started  bool
	state    ports.DriverState
	status   chan ports.DriverStatus
	controls map[string]float64
	et, bt   float64
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewSim(cfg Config) (*Sim, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Sim{
		cfg:      cfg,
		state:    ports.DriverIdle,
		status:   make(chan ports.DriverStatus, 4),
		controls: map[string]float64{"burner": 0, "air": 0.5},
		et:       cfg.AmbientC,
		bt:       cfg.AmbientC,
	}, nil
}

func (s *Sim) Name() string { return "sim" }

func (s *Sim) State() ports.DriverState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Sim) Status() <-chan ports.DriverStatus { return s.status }

// pushStatus reports a transition without ever blocking the caller; a
// stalled reader just misses intermediate statuses.
func (s *Sim) pushStatus(st ports.DriverStatus) {
	select {
	case s.status <- st:
	default:
	}
}

// SetControl applies a normalized value to a known channel. Unknown
// channels and out-of-range values report DRIVER_WRITE_FAILED upstream.
func (s *Sim) SetControl(channel string, value float64) error {
	if value < 0 || value > 1 {
		return fmt.Errorf("sim driver: control %q value %v outside [0,1]", channel, value)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.controls[channel]; !ok {
		return fmt.Errorf("sim driver: unknown control channel %q", channel)
	}
	s.controls[channel] = value
	return nil
}

func (s *Sim) Start(out chan<- *domain.Sample) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("sim driver already started")
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.started = true
	s.state = ports.DriverConnected
	s.cancel = cancel
	s.mu.Unlock()

	s.pushStatus(ports.DriverStatus{State: ports.DriverConnected})
	s.wg.Add(1)
	go s.run(ctx, out)
	return nil
}

func (s *Sim) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.started = false
	s.state = ports.DriverDisconnected
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.pushStatus(ports.DriverStatus{State: ports.DriverDisconnected})
	return nil
}

func (s *Sim) run(ctx context.Context, out chan<- *domain.Sample) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			sample := s.step(now)
			select {
			case out <- sample:
			case <-ctx.Done():
				return
			}
		}
	}
}

// step advances the thermal model by one interval and produces a sample.
func (s *Sim) step(now time.Time) *domain.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	dt := s.cfg.Interval.Seconds()
	target := s.cfg.AmbientC + s.controls["burner"]*(s.cfg.BurnerMaxC-s.cfg.AmbientC)

	s.et += (target - s.et) * (1 - math.Exp(-dt/s.cfg.ETLag.Seconds()))
	s.bt += (s.et - s.bt) * (1 - math.Exp(-dt/s.cfg.BTLag.Seconds()))

	return &domain.Sample{
		MachineID:   s.cfg.MachineID,
		TimestampMs: now.UnixMilli(),
		ET:          s.et,
		BT:          s.bt,
		Extra: map[string]float64{
			"burner": s.controls["burner"],
			"air":    s.controls["air"],
		},
	}
}

var _ ports.Driver = (*Sim)(nil)
