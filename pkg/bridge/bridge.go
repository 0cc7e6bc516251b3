// Package bridge feeds a Smart Port device from MQTT and mirrors its
// answered polls back out to the broker.
package bridge

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/rctelem/sport.go/pkg/mqtt"
	"github.com/rctelem/sport.go/pkg/serialport"
	"github.com/rctelem/sport.go/pkg/sport"
)

// SlotWriter receives decoded slot updates. *sport.Device implements
// it.
type SlotWriter interface {
	SetSensorData(index int, id uint16, value uint32)
}

// Bridge connects one sensor device to one broker: each configured
// slot topic feeds the sensor table, and every answered poll is
// published under sent/<id>.
type Bridge struct {
	Device *sport.Device
	Queue  *mqtt.Queue

	cfg   *Config
	port  *serialport.Port
	slots SlotWriter
	subs  []io.Closer
}

// New validates the config, opens the serial port and prepares the
// device and the queue. The broker is not contacted until Run.
func New(cfg *Config) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	port, err := serialport.Open(serialport.Config{
		Device:       cfg.Device.Port,
		Baud:         cfg.Device.Baud,
		RTSDirection: cfg.Device.RTSDirection,
		DiscardEcho:  cfg.Device.DiscardEcho,
	})
	if err != nil {
		return nil, err
	}
	dev := sport.NewDevice(port)
	dev.IDWait = time.Duration(cfg.Device.IDWaitMs) * time.Millisecond
	if err = dev.Begin(cfg.Device.SensorID, len(cfg.Slots)); err != nil {
		port.Close()
		return nil, err
	}

	opts, prefix, err := mqtt.ClientOptionsFromURL(cfg.Broker)
	if err != nil {
		port.Close()
		return nil, err
	}
	if opts.ClientID == "" {
		if cfg.ClientID != "" {
			opts.SetClientID(cfg.ClientID)
		} else {
			opts.SetClientID(mqtt.ClientID("sport"))
		}
	}

	b := &Bridge{
		Device: dev,
		Queue:  mqtt.NewQueue(opts, prefix),
		cfg:    cfg,
		port:   port,
		slots:  dev,
	}
	dev.Handler = sport.SendHandlerFunc(b.handleSent)
	return b, nil
}

// Run connects the broker, binds the slot topics and serves the bus
// until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	token := b.Queue.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		b.port.Close()
		return fmt.Errorf("connect %s: %v", b.cfg.Broker, err)
	}
	defer b.Queue.Close()
	b.bind()
	defer b.unbind()
	defer b.port.Close()
	glog.Infof("serving sensor %#02x on %s with %d slots",
		b.cfg.Device.SensorID, b.cfg.Device.Port, len(b.cfg.Slots))
	return b.Device.Run(ctx)
}

func (b *Bridge) bind() {
	for _, slot := range b.cfg.Slots {
		b.subs = append(b.subs, b.Queue.Sub(slot.Topic, b.slotHandler(slot)))
	}
}

func (b *Bridge) unbind() {
	for _, sub := range b.subs {
		sub.Close()
	}
	b.subs = nil
}

func (b *Bridge) slotHandler(slot SlotConfig) mqtt.Handler {
	return func(topic string, payload []byte) {
		value, err := ParseValue(payload)
		if err != nil {
			glog.Warningf("slot[%d] %s: %v", slot.Index, topic, err)
			return
		}
		b.slots.SetSensorData(slot.Index, slot.ID, value)
		glog.V(3).Infof("slot[%d] id=%04x value=%#x", slot.Index, slot.ID, value)
	}
}

func (b *Bridge) handleSent(p sport.Packet) {
	b.Queue.Pub(sentTopic(p.ID), sentPayload(p))
}

type sentMsg struct {
	Type  byte   `json:"type"`
	ID    uint16 `json:"id"`
	Value int32  `json:"value"`
	Raw   string `json:"raw"`
}

func sentTopic(id uint16) string {
	return fmt.Sprintf("sent/%04x", id)
}

func sentPayload(p sport.Packet) []byte {
	payload, _ := json.Marshal(sentMsg{
		Type:  p.Type,
		ID:    p.ID,
		Value: p.Value,
		Raw:   hex.EncodeToString(p.Bytes()),
	})
	return payload
}

// ParseValue decodes a slot update payload: either a bare number,
// decimal or 0x hex, optionally negative, or a JSON object with a
// value member. The result is the raw 32-bit cell.
func ParseValue(payload []byte) (uint32, error) {
	s := strings.TrimSpace(string(payload))
	if s == "" {
		return 0, fmt.Errorf("empty payload")
	}
	if s[0] == '{' {
		var msg struct {
			Value *int64 `json:"value"`
		}
		if err := json.Unmarshal(payload, &msg); err != nil {
			return 0, err
		}
		if msg.Value == nil {
			return 0, fmt.Errorf("no value member")
		}
		return toCell(*msg.Value)
	}
	if s[0] == '-' {
		v, err := strconv.ParseInt(s, 0, 32)
		if err != nil {
			return 0, err
		}
		return uint32(int32(v)), nil
	}
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

func toCell(v int64) (uint32, error) {
	if v < -(1<<31) || v > (1<<32)-1 {
		return 0, fmt.Errorf("value %d out of 32-bit range", v)
	}
	return uint32(v), nil
}
