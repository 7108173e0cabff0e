package session

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/roastwire/roastwire/internal/domain"
	"github.com/roastwire/roastwire/internal/protocol"
)

// AlarmRule is one configured threshold check, evaluated against every
// sample while the session is monitoring or recording.
type AlarmRule struct {
	Channel  string               `yaml:"channel"` // bt, et, bt_ror, et_ror
	Op       string               `yaml:"op"`      // "above" or "below"
	Value    float64              `yaml:"value"`
	Severity domain.AlarmSeverity `yaml:"severity"`
	Message  string               `yaml:"message"`
}

func (r *AlarmRule) ApplyDefaults() {
	if r.Severity == "" {
		r.Severity = domain.SeverityWarning
	}
	if r.Message == "" {
		r.Message = fmt.Sprintf("%s %s %.1f", r.Channel, r.Op, r.Value)
	}
}

// Validate rejects rules the evaluator cannot interpret.
func (r *AlarmRule) Validate() error {
	switch r.Channel {
	case "bt", "et", "bt_ror", "et_ror":
	default:
		return fmt.Errorf("alarm channel %q is not one of bt, et, bt_ror, et_ror", r.Channel)
	}
	switch r.Op {
	case "above", "below":
	default:
		return fmt.Errorf("alarm op %q is not one of above, below", r.Op)
	}
	return nil
}

// alarmSet tracks per-rule firing state so each rule fires once per
// threshold crossing instead of once per sample.
type alarmSet struct {
	rules []AlarmRule
	fired []bool
}

func newAlarmSet(rules []AlarmRule) *alarmSet {
	set := &alarmSet{
		rules: append([]AlarmRule(nil), rules...),
		fired: make([]bool, len(rules)),
	}
	for i := range set.rules {
		set.rules[i].ApplyDefaults()
	}
	return set
}

func (a *alarmSet) evaluate(s *domain.Sample) []*protocol.Alarm {
	var out []*protocol.Alarm
	for i, rule := range a.rules {
		v := channelValue(s, rule.Channel)
		breached := (rule.Op == "above" && v > rule.Value) ||
			(rule.Op == "below" && v < rule.Value)

		if !breached {
			a.fired[i] = false
			continue
		}
		if a.fired[i] {
			continue
		}
		a.fired[i] = true
		out = append(out, &protocol.Alarm{
			Type:        protocol.TypeAlarm,
			AlarmID:     uuid.NewString(),
			Message:     rule.Message,
			Severity:    rule.Severity,
			TimestampMs: s.TimestampMs,
			BT:          s.BT,
			ET:          s.ET,
		})
	}
	return out
}

func channelValue(s *domain.Sample, channel string) float64 {
	switch channel {
	case "bt":
		return s.BT
	case "et":
		return s.ET
	case "bt_ror":
		return s.BTRoR
	case "et_ror":
		return s.ETRoR
	}
	return 0
}
