package env

import (
	"errors"
	"flag"
	"log"
	"os"
	"strconv"

	"github.com/rctelem/sport.go/pkg/serialport"
)

// Config provides common options to open the sensor-side serial device.
type Config struct {
	// Device is the serial device path, e.g. /dev/ttyUSB0.
	Device string

	// Baud is the line rate, 0 for the Smart Port default.
	Baud int

	// RTSDirection drives RTS as the transmit direction switch.
	RTSDirection bool

	// DiscardEcho drops bytes echoed back on the single wire.
	DiscardEcho bool
}

var defaultConfig = Config{}

func init() {
	if val := os.Getenv("SPORT_DEVICE"); val != "" {
		defaultConfig.Device = val
	}
	if val := os.Getenv("SPORT_BAUD"); val != "" {
		if baud, err := strconv.Atoi(val); err == nil {
			defaultConfig.Baud = baud
		}
	}
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Device, "device", defaultConfig.Device, "Serial device wired to the bus.")
	flag.IntVar(&defaultConfig.Baud, "baud", defaultConfig.Baud, "Line rate, 0 for the Smart Port default.")
	flag.BoolVar(&defaultConfig.RTSDirection, "rts", defaultConfig.RTSDirection, "Drive RTS as the transmit direction switch.")
	flag.BoolVar(&defaultConfig.DiscardEcho, "echo", defaultConfig.DiscardEcho, "Discard bytes echoed back on the single wire.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// SerialConfig translates into a serial port config.
func (c *Config) SerialConfig() serialport.Config {
	return serialport.Config{
		Device:       c.Device,
		Baud:         c.Baud,
		RTSDirection: c.RTSDirection,
		DiscardEcho:  c.DiscardEcho,
	}
}

// Open opens the configured serial device.
func (c *Config) Open() (*serialport.Port, error) {
	if c.Device == "" {
		return nil, errors.New("serial device must be specified")
	}
	return serialport.Open(c.SerialConfig())
}

// MustOpen opens the configured serial device and fails on error.
func (c *Config) MustOpen() *serialport.Port {
	port, err := c.Open()
	if err != nil {
		log.Fatalln(err)
	}
	return port
}
