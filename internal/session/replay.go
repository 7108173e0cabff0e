package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/roastwire/roastwire/internal/domain"
	"github.com/roastwire/roastwire/internal/ports"
	"github.com/roastwire/roastwire/internal/protocol"
)

// replayer plays a stored profile back over the live channel as replay
// frames. One playback at a time per machine; the session only starts it
// while idle.
type replayer struct {
	machineID string
	profiles  ports.ProfileSource
	emit      Broadcaster

	mu      sync.Mutex
	playing bool
	paused  bool
	speed   float64
	idx     int
	profile *domain.Profile
	stopCh  chan struct{}
	wakeCh  chan struct{}
}

func newReplayer(machineID string, profiles ports.ProfileSource, emit Broadcaster) *replayer {
	return &replayer{machineID: machineID, profiles: profiles, emit: emit}
}

// handle services one replay_control frame and returns direct replies.
func (r *replayer) handle(rc *protocol.ReplayControl) []protocol.Message {
	switch rc.Action {
	case protocol.ReplayStart:
		return r.start(rc.ProfileID, rc.Speed)
	case protocol.ReplayPause:
		return r.setPaused(true)
	case protocol.ReplayResume:
		return r.setPaused(false)
	case protocol.ReplayStop:
		r.stop()
		return nil
	case protocol.ReplaySeek:
		return r.seek(rc.SeekMs)
	default:
		return []protocol.Message{protocol.NewError(domain.CodeInvalidMessage,
			fmt.Sprintf("unknown replay action %q", rc.Action))}
	}
}

func (r *replayer) start(profileID string, speed float64) []protocol.Message {
	if r.profiles == nil {
		return []protocol.Message{protocol.NewError(domain.CodeInvalidMessage,
			"no profile source configured")}
	}

	profile, err := r.profiles.Load(profileID)
	if err != nil {
		return []protocol.Message{protocol.NewError(domain.CodeInvalidMessage,
			fmt.Sprintf("load profile %q: %v", profileID, err))}
	}
	if len(profile.Samples) == 0 {
		return []protocol.Message{protocol.NewError(domain.CodeInvalidMessage,
			fmt.Sprintf("profile %q is empty", profileID))}
	}
	if speed <= 0 {
		speed = 1
	}

	r.mu.Lock()
	if r.playing {
		r.mu.Unlock()
		return []protocol.Message{protocol.NewError(domain.CodeInvalidStateTransition,
			"playback already running")}
	}
	r.playing = true
	r.paused = false
	r.speed = speed
	r.idx = 0
	r.profile = profile
	r.stopCh = make(chan struct{})
	r.wakeCh = make(chan struct{}, 1)
	stopCh := r.stopCh
	r.mu.Unlock()

	go r.run(stopCh)
	return nil
}

func (r *replayer) setPaused(paused bool) []protocol.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.playing {
		return []protocol.Message{protocol.NewError(domain.CodeInvalidStateTransition,
			"no playback running")}
	}
	r.paused = paused
	r.wake()
	return nil
}

func (r *replayer) seek(seekMs int64) []protocol.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.playing {
		return []protocol.Message{protocol.NewError(domain.CodeInvalidStateTransition,
			"no playback running")}
	}

	base := r.profile.Samples[0].TimestampMs
	idx := len(r.profile.Samples) - 1
	for i, s := range r.profile.Samples {
		if s.TimestampMs-base >= seekMs {
			idx = i
			break
		}
	}
	r.idx = idx
	r.wake()
	return nil
}

func (r *replayer) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.playing {
		return
	}
	r.playing = false
	close(r.stopCh)
}

// wake nudges a paused run loop without blocking.
func (r *replayer) wake() {
	select {
	case r.wakeCh <- struct{}{}:
	default:
	}
}

func (r *replayer) run(stopCh chan struct{}) {
	for {
		r.mu.Lock()
		if !r.playing || r.idx >= len(r.profile.Samples) {
			r.playing = false
			r.mu.Unlock()
			return
		}
		if r.paused {
			wakeCh := r.wakeCh
			r.mu.Unlock()
			select {
			case <-wakeCh:
				continue
			case <-stopCh:
				return
			}
		}

		frame, delay := r.nextLocked()
		r.mu.Unlock()

		r.emit(frame)

		if delay <= 0 {
			continue
		}
		select {
		case <-time.After(delay):
		case <-stopCh:
			return
		}
	}
}

// nextLocked builds the frame for the current index and the wall delay to
// the following sample, scaled by speed. Caller holds r.mu.
func (r *replayer) nextLocked() (*protocol.Replay, time.Duration) {
	samples := r.profile.Samples
	base := samples[0].TimestampMs
	total := r.profile.TotalDurationMs()
	s := samples[r.idx]

	var controls map[string]float64
	if r.idx < len(r.profile.Controls) {
		controls = r.profile.Controls[r.idx]
	}

	progress := 100.0
	if total > 0 {
		progress = float64(s.TimestampMs-base) / float64(total) * 100
	}

	frame := &protocol.Replay{
		Type:            protocol.TypeReplay,
		TimestampMs:     s.TimestampMs,
		ET:              s.ET,
		BT:              s.BT,
		ETRoR:           s.ETRoR,
		BTRoR:           s.BTRoR,
		Controls:        controls,
		ProgressPct:     progress,
		TotalDurationMs: total,
	}

	var delay time.Duration
	if r.idx+1 < len(samples) {
		gap := samples[r.idx+1].TimestampMs - s.TimestampMs
		delay = time.Duration(float64(gap)/r.speed) * time.Millisecond
	}
	r.idx++
	return frame, delay
}
