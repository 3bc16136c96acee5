package domain

// StateSpec holds the flapping and stealthy thresholds of the alarm state
// machine. It is stored as a single state-spec record.
type StateSpec struct {
	Bagot        BagotSpec `mapstructure:"bagot"`
	StealthyTime int64     `mapstructure:"stealthy_time"`
	StealthyShow int64     `mapstructure:"stealthy_show"`
	RestoreEvent bool      `mapstructure:"restore_event"`
}

// BagotSpec is the flapping threshold: Freq changes within Time seconds.
type BagotSpec struct {
	Freq int64 `mapstructure:"freq"`
	Time int64 `mapstructure:"time"`
}

// DefaultStateSpec returns the thresholds used when no state-spec record
// exists. Decoding a record on top of it keeps defaults for absent keys.
func DefaultStateSpec() StateSpec {
	return StateSpec{
		Bagot:        BagotSpec{Freq: 10, Time: 3600},
		StealthyTime: 300,
		StealthyShow: 300,
		RestoreEvent: true,
	}
}

// SLAMacro names the event fields read for entity thresholds.
type SLAMacro struct {
	Crit string `mapstructure:"mCrit"`
	Warn string `mapstructure:"mWarn"`
}

// DefaultSLAMacro returns the field names used when no SLA macro record exists.
func DefaultSLAMacro() SLAMacro {
	return SLAMacro{Crit: "PROC_CRITICAL", Warn: "PROC_WARNING"}
}

// WithDefaults fills empty names from DefaultSLAMacro.
func (m SLAMacro) WithDefaults() SLAMacro {
	def := DefaultSLAMacro()
	if m.Crit == "" {
		m.Crit = def.Crit
	}
	if m.Warn == "" {
		m.Warn = def.Warn
	}
	return m
}
