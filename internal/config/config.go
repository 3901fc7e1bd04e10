package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration accepts yaml scalars like "500ms" as well as bare nanosecond
// counts.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil && value.Tag != "!!int" {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("bad duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("bad duration: %w", err)
	}
	*d = Duration(n)
	return nil
}

func (d Duration) D() time.Duration { return time.Duration(d) }

type BusConfig struct {
	Device      string   `yaml:"device"`       // "/dev/ttyUSB0"
	Baud        int      `yaml:"baud"`         // 115200, 8N1
	UnitID      string   `yaml:"unit_id"`      // last 4 digits are stamped into every frame
	Timeout     Duration `yaml:"timeout"`      // full response budget
	ByteTimeout Duration `yaml:"byte_timeout"` // gap between bytes of one response
	MaxRetries  int      `yaml:"max_retries"`
	BackoffBase Duration `yaml:"backoff_base"`

	CameraEntry uint8 `yaml:"camera_entry"`
	CameraExit  uint8 `yaml:"camera_exit"`
	Display     uint8 `yaml:"display"`
}

type GatePins struct {
	Motor       uint8 `yaml:"motor"`
	SensorOpen  uint8 `yaml:"sensor_open"`
	SensorClose uint8 `yaml:"sensor_close"`
}

// FloorConfig describes one physical floor: the multiplexed occupancy
// sensor bank and, on the upper floors, the two passage sensors.
type FloorConfig struct {
	AddressPins []uint8 `yaml:"address_pins"` // 2 or 3 mux address bits
	SensorPin   uint8   `yaml:"sensor_pin"`
	Spots       int     `yaml:"spots"`
	Accessible  int     `yaml:"accessible"` // first N spots
	Priority    int     `yaml:"priority"`   // next N spots, rest are standard
	Passage1    uint8   `yaml:"passage_1"`
	Passage2    uint8   `yaml:"passage_2"`
}

type RelayConfig struct {
	CentralAddr string `yaml:"central_addr"` // empty = locate via discovery
	Port        int    `yaml:"port"`         // central listen port
}

type WebConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DiscoveryConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Interface string `yaml:"interface"`
	Group     string `yaml:"group"`
	Port      int    `yaml:"port"`
}

type Config struct {
	Node string `yaml:"node"` // "central", "ground", "floor1", "floor2"

	Bus       BusConfig       `yaml:"bus"`
	EntryGate GatePins        `yaml:"entry_gate"`
	ExitGate  GatePins        `yaml:"exit_gate"`
	Floors    []FloorConfig   `yaml:"floors"`
	Relay     RelayConfig     `yaml:"relay"`
	Web       WebConfig       `yaml:"web"`
	Discovery DiscoveryConfig `yaml:"discovery"`

	ScanInterval   Duration `yaml:"scan_interval"`   // occupancy sweep
	StatusInterval Duration `yaml:"status_interval"` // push to central / display refresh
}

func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse yaml %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.UnitDigits() == nil {
		return fmt.Errorf("bus.unit_id %q: need at least 4 decimal digits", c.Bus.UnitID)
	}
	for i, f := range c.Floors {
		if n := len(f.AddressPins); n < 2 || n > 3 {
			return fmt.Errorf("floor %d: address_pins must hold 2 or 3 pins, got %d", i, n)
		}
		if f.Spots < 1 || f.Spots > 1<<len(f.AddressPins) {
			return fmt.Errorf("floor %d: %d spots not addressable with %d mux bits", i, f.Spots, len(f.AddressPins))
		}
		if f.Accessible+f.Priority > f.Spots {
			return fmt.Errorf("floor %d: typed spots exceed total", i)
		}
	}
	return nil
}

// UnitDigits returns the last four decimal digits of the configured unit ID,
// or nil if there are fewer than four.
func (c *Config) UnitDigits() []byte {
	var digits []byte
	for _, r := range c.Bus.UnitID {
		if r >= '0' && r <= '9' {
			digits = append(digits, byte(r))
		}
	}
	if len(digits) < 4 {
		return nil
	}
	return digits[len(digits)-4:]
}
