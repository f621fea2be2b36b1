package config

// Registry represents the entire user configuration file.
// It stores the probe identity and default session parameters shared by
// the advertise and scan roles.
type Registry struct {
	Version     int          `yaml:"version"`
	Identity    string       `yaml:"identity"`              // Advertised local name / scan matching key
	Adapter     string       `yaml:"adapter,omitempty"`     // BlueZ adapter id (e.g. "hci0")
	Advertise   *Advertise   `yaml:"advertise,omitempty"`   // Sender-role defaults
	Scan        *Scan        `yaml:"scan,omitempty"`        // Receiver-role defaults
	Preferences *Preferences `yaml:"preferences,omitempty"` // Application-wide preferences
}

// Advertise holds sender-role defaults.
type Advertise struct {
	Mode  string `yaml:"mode"`  // Duty-cycle mode: low-latency, balanced, low-power
	Power string `yaml:"power"` // Tx power level: ultra-low, low, medium, high
}

// Scan holds receiver-role defaults.
type Scan struct {
	WindowSeconds int `yaml:"window_seconds"`           // Fixed duration of one scan cycle
	Cycles        int `yaml:"cycles,omitempty"`         // 0 means scan until interrupted
	ExpectedCount int `yaml:"expected_count,omitempty"` // Packets expected per run, for loss estimates
}

// Preferences represents application-wide user preferences.
type Preferences struct {
	ListenAddr string `yaml:"listen_addr,omitempty"` // Live result export address (e.g. ":8765")
	TrailLines int    `yaml:"trail_lines,omitempty"` // Bounded event trail capacity
}

// Default session parameters when the config file has no say.
const (
	DefaultIdentity      = "bleprobe-tx"
	DefaultAdapter       = "hci0"
	DefaultMode          = "balanced"
	DefaultPower         = "high"
	DefaultWindowSeconds = 10
	DefaultExpectedCount = 200
)

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version:  1,
		Identity: DefaultIdentity,
		Adapter:  DefaultAdapter,
		Advertise: &Advertise{
			Mode:  DefaultMode,
			Power: DefaultPower,
		},
		Scan: &Scan{
			WindowSeconds: DefaultWindowSeconds,
			ExpectedCount: DefaultExpectedCount,
		},
		Preferences: &Preferences{},
	}
}
