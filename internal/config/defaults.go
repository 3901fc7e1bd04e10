package config

import (
	"time"
)

// Defaults carries the canonical hardware map of the deployment: three
// floors, two gates on the ground floor, cameras 0x11/0x12 and the status
// display 0x20 on one RS-485 run.
func Defaults() *Config {

	return &Config{
		Node: "central",

		Bus: BusConfig{
			Device:      "/dev/ttyUSB0",
			Baud:        115200,
			UnitID:      "1234",
			Timeout:     Duration(500 * time.Millisecond),
			ByteTimeout: Duration(100 * time.Millisecond),
			MaxRetries:  3,
			BackoffBase: Duration(100 * time.Millisecond),
			CameraEntry: 0x11,
			CameraExit:  0x12,
			Display:     0x20,
		},

		EntryGate: GatePins{Motor: 23, SensorOpen: 7, SensorClose: 1},
		ExitGate:  GatePins{Motor: 24, SensorOpen: 12, SensorClose: 25},

		Floors: []FloorConfig{
			{
				AddressPins: []uint8{17, 18},
				SensorPin:   8,
				Spots:       4,
				Accessible:  1,
				Priority:    1,
			},
			{
				AddressPins: []uint8{16, 20, 21},
				SensorPin:   27,
				Spots:       8,
				Accessible:  1,
				Priority:    1,
				Passage1:    22,
				Passage2:    11,
			},
			{
				AddressPins: []uint8{0, 5, 6},
				SensorPin:   13,
				Spots:       8,
				Accessible:  1,
				Priority:    1,
				Passage1:    19,
				Passage2:    26,
			},
		},

		Relay: RelayConfig{
			CentralAddr: "127.0.0.1:8080",
			Port:        8080,
		},

		Web: WebConfig{
			Host: "0.0.0.0",
			Port: 8090,
		},

		Discovery: DiscoveryConfig{
			Enabled:   false,
			Interface: "eth0",
			Group:     "239.255.40.40",
			Port:      3702,
		},

		ScanInterval:   Duration(100 * time.Millisecond),
		StatusInterval: Duration(1 * time.Second),
	}
}
