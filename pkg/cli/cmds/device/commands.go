package device

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/rctelem/sport.go/pkg/cli/sh"
	"github.com/rctelem/sport.go/pkg/sport"
)

const defaultPollTimeout = 100 * time.Millisecond

// frameResult is the JSON form of a decoded packet.
type frameResult struct {
	Type  byte   `json:"type"`
	ID    uint16 `json:"id"`
	Value int32  `json:"value"`
	Raw   string `json:"raw"`
}

// packResult is the JSON form of an encoded packet.
type packResult struct {
	Raw  string `json:"raw"`
	Wire string `json:"wire"`
}

var (
	// ListenCmd serves polls as a sensor on the open device.
	ListenCmd = ishell.Cmd{
		Name: "listen",
		Help: "SENSORID [SLOTS [IDWAIT(ms)]]",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("SENSORID required"))
				return
			}
			id, err := parseByte(c.Args[0])
			if err != nil {
				c.Err(fmt.Errorf("Invalid SENSORID: %v", err))
				return
			}
			slots := sport.MaxSensors
			if len(c.Args) > 1 {
				if slots, err = strconv.Atoi(c.Args[1]); err != nil {
					c.Err(fmt.Errorf("Invalid SLOTS: %v", err))
					return
				}
			}
			var idWait time.Duration
			if len(c.Args) > 2 {
				ms, err := strconv.Atoi(c.Args[2])
				if err != nil {
					c.Err(fmt.Errorf("Invalid IDWAIT: %v", err))
					return
				}
				idWait = time.Duration(ms) * time.Millisecond
			}
			if err = sh.ShellFrom(c).Listen(id, slots, idWait); err != nil {
				c.Err(err)
			}
		}),
	}

	// SetCmd exposes sensor slot update.
	SetCmd = ishell.Cmd{
		Name:    "set",
		Aliases: []string{"s"},
		Help:    "INDEX ID VALUE",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			if len(c.Args) < 3 {
				c.Err(fmt.Errorf("INDEX ID VALUE required"))
				return
			}
			index, err := strconv.Atoi(c.Args[0])
			if err != nil || index < 0 || index >= sport.MaxSensors {
				c.Err(fmt.Errorf("Invalid INDEX: %q", c.Args[0]))
				return
			}
			id, err := parseID(c.Args[1])
			if err != nil {
				c.Err(fmt.Errorf("Invalid ID: %v", err))
				return
			}
			value, err := parseCell(c.Args[2])
			if err != nil {
				c.Err(fmt.Errorf("Invalid VALUE: %v", err))
				return
			}
			sh.ShellFrom(c).Session.Device.SetSensorData(index, id, value)
		}),
	}

	// PeekCmd shows the live sensor table.
	PeekCmd = ishell.Cmd{
		Name: "peek",
		Help: "",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			slots := sh.ShellFrom(c).Session.Device.Table().Snapshot()
			if len(slots) == 0 {
				sh.Emit(c, slots, "No live slots")
				return
			}
			var w bytes.Buffer
			for n, slot := range slots {
				fmt.Fprintf(&w, "slot %d: id %04x value %d\n", n, slot.ID, slot.Value)
			}
			sh.Emit(c, slots, strings.TrimRight(w.String(), "\n"))
		}),
	}

	// PollCmd polls a sensor from the master side of the bus.
	PollCmd = ishell.Cmd{
		Name: "poll",
		Help: "SENSORID [TIMEOUT(ms)]",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			s := sh.ShellFrom(c)
			if s.Session.Listening() {
				c.Err(fmt.Errorf("device is listening as a sensor"))
				return
			}
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("SENSORID required"))
				return
			}
			id, err := parseByte(c.Args[0])
			if err != nil {
				c.Err(fmt.Errorf("Invalid SENSORID: %v", err))
				return
			}
			timeout := defaultPollTimeout
			if len(c.Args) > 1 {
				ms, err := strconv.Atoi(c.Args[1])
				if err != nil {
					c.Err(fmt.Errorf("Invalid TIMEOUT: %v", err))
					return
				}
				timeout = time.Duration(ms) * time.Millisecond
			}
			pkt, raw, err := pollSensor(s.Session.Port, id, timeout)
			if err != nil {
				c.Err(err)
				return
			}
			sh.Emit(c, frameResult{
				Type:  pkt.Type,
				ID:    pkt.ID,
				Value: pkt.Value,
				Raw:   hex.EncodeToString(raw),
			}, fmt.Sprintf("type %#02x id %04x value %d raw %x", pkt.Type, pkt.ID, pkt.Value, raw))
		}),
	}

	// PackCmd encodes a packet without touching the bus.
	PackCmd = ishell.Cmd{
		Name: "pack",
		Help: "TYPE ID VALUE",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 3 {
				c.Err(fmt.Errorf("TYPE ID VALUE required"))
				return
			}
			typ, err := parseByte(c.Args[0])
			if err != nil {
				c.Err(fmt.Errorf("Invalid TYPE: %v", err))
				return
			}
			id, err := parseID(c.Args[1])
			if err != nil {
				c.Err(fmt.Errorf("Invalid ID: %v", err))
				return
			}
			value, err := parseCell(c.Args[2])
			if err != nil {
				c.Err(fmt.Errorf("Invalid VALUE: %v", err))
				return
			}
			pkt := sport.Packet{Type: typ, ID: id, Value: int32(value)}
			raw := pkt.Bytes()
			wire := pkt.AppendStuffed(nil)
			sh.Emit(c, packResult{
				Raw:  hex.EncodeToString(raw),
				Wire: hex.EncodeToString(wire),
			}, fmt.Sprintf("raw  %x\nwire %x", raw, wire))
		},
	}
)

// pollSensor emits a poll frame and decodes the stuffed answer.
func pollSensor(bus sport.Transport, id byte, timeout time.Duration) (sport.Packet, []byte, error) {
	if err := bus.SetTransmit(true); err != nil {
		return sport.Packet{}, nil, err
	}
	err := bus.WriteByte(sport.FrameBegin)
	if err == nil {
		err = bus.WriteByte(id)
	}
	if err == nil {
		err = bus.Flush()
	}
	if rerr := bus.SetTransmit(false); rerr != nil && err == nil {
		err = rerr
	}
	if err != nil {
		return sport.Packet{}, nil, err
	}

	var un sport.Unstuffer
	raw := make([]byte, 0, sport.PacketSize)
	deadline := time.Now().Add(timeout)
	for len(raw) < sport.PacketSize {
		if time.Now().After(deadline) {
			return sport.Packet{}, nil, fmt.Errorf("no answer from %#02x", id)
		}
		b, err := bus.ReadByte()
		if err != nil {
			if os.IsTimeout(err) {
				continue
			}
			return sport.Packet{}, nil, err
		}
		if out, ok := un.Feed(b); ok {
			raw = append(raw, out)
		}
	}
	pkt, err := sport.ParsePacket(raw)
	return pkt, raw, err
}

func parseByte(arg string) (byte, error) {
	val, err := strconv.ParseUint(arg, 0, 8)
	return byte(val), err
}

func parseID(arg string) (uint16, error) {
	val, err := strconv.ParseUint(arg, 0, 16)
	return uint16(val), err
}

// parseCell accepts a decimal or 0x hex number, signed or unsigned,
// and returns its raw 32-bit cell form.
func parseCell(arg string) (uint32, error) {
	if strings.HasPrefix(arg, "-") {
		val, err := strconv.ParseInt(arg, 0, 32)
		return uint32(int32(val)), err
	}
	val, err := strconv.ParseUint(arg, 0, 32)
	return uint32(val), err
}

func init() {
	sh.AddCmds(
		&ListenCmd,
		&SetCmd,
		&PeekCmd,
		&PollCmd,
		&PackCmd,
	)
}
