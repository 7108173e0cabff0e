package domain

// Sample is the canonical unit of roaster telemetry in roastwire: one
// reading of environment temperature (ET) and bean temperature (BT) plus
// any extra channels the driver exposes. Temperatures are Celsius on the
// wire and everywhere else. The rate-of-rise fields are filled in
// server-side before the sample is buffered or broadcast; drivers leave
// them zero.
type Sample struct {
	MachineID   string             `json:"machine_id,omitempty"`
	TimestampMs int64              `json:"timestamp_ms"`
	ET          float64            `json:"et"`
	BT          float64            `json:"bt"`
	ETRoR       float64            `json:"et_ror"`
	BTRoR       float64            `json:"bt_ror"`
	Extra       map[string]float64 `json:"extra_channels,omitempty"`
}
