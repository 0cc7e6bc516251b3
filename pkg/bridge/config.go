package bridge

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rctelem/sport.go/pkg/sport"
)

// Config is the YAML configuration of one bridge instance.
type Config struct {
	// Broker is the MQTT broker URL. Its path becomes the topic
	// prefix of every subscription and publication.
	Broker string `yaml:"broker"`
	// ClientID overrides the machine-derived broker identity. A
	// client-id query parameter in the broker URL wins over both.
	ClientID string `yaml:"client_id"`

	Device DeviceConfig `yaml:"device"`
	Slots  []SlotConfig `yaml:"slots"`
}

// DeviceConfig describes the bus side.
type DeviceConfig struct {
	Port         string `yaml:"port"`
	Baud         int    `yaml:"baud"`
	SensorID     byte   `yaml:"sensor_id"`
	IDWaitMs     int    `yaml:"id_wait_ms"`
	RTSDirection bool   `yaml:"rts_direction"`
	DiscardEcho  bool   `yaml:"discard_echo"`
}

// SlotConfig binds one sensor table slot to a topic.
type SlotConfig struct {
	Index int    `yaml:"index"`
	ID    uint16 `yaml:"id"`
	Topic string `yaml:"topic"`
}

// Load reads and parses a config file. It does not validate.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks configuration correctness without mutating it.
func (c *Config) Validate() error {
	if c.Broker == "" {
		return errors.New("broker is required")
	}
	if c.Device.Port == "" {
		return errors.New("device.port is required")
	}
	if c.Device.Baud < 0 {
		return fmt.Errorf("device.baud %d is invalid", c.Device.Baud)
	}
	if c.Device.IDWaitMs < 0 {
		return errors.New("device.id_wait_ms must not be negative")
	}
	if len(c.Slots) > sport.MaxSensors {
		return fmt.Errorf("%d slots configured, the device holds %d", len(c.Slots), sport.MaxSensors)
	}
	seen := make(map[int]bool, len(c.Slots))
	for n, slot := range c.Slots {
		if slot.Index < 0 || slot.Index >= len(c.Slots) {
			return fmt.Errorf("slot[%d]: index %d out of range 0..%d", n, slot.Index, len(c.Slots)-1)
		}
		if seen[slot.Index] {
			return fmt.Errorf("slot[%d]: index %d used twice", n, slot.Index)
		}
		seen[slot.Index] = true
		if slot.Topic == "" {
			return fmt.Errorf("slot[%d]: topic is required", n)
		}
	}
	return nil
}
