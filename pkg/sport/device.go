package sport

import (
	"context"
	"os"
	"sync"
	"time"
)

// idPollInterval paces the busy wait for the ID byte. One byte at
// 57600 baud takes about 190us on the wire.
const idPollInterval = 50 * time.Microsecond

// SendHandler observes every answered poll.
type SendHandler interface {
	HandleSent(p Packet)
}

// SendHandlerFunc is the func form of SendHandler.
type SendHandlerFunc func(p Packet)

// HandleSent implements SendHandler.
func (f SendHandlerFunc) HandleSent(p Packet) {
	f(p)
}

// Device is one Smart Port sensor unit: a poll dispatcher bound to a
// sensor table and a transport. Configure it once with Begin, drive it
// either by calling Poll from a control loop or by running Run, and
// update values from the producing side with SetSensorData.
//
// Begin must complete before the first Poll or Run call. Poll and Run
// are alternative drivers of the same dispatcher and must not be used
// concurrently with each other. SetSensorData is safe from any
// goroutine.
type Device struct {
	// Transport carries the bus bytes.
	Transport Transport

	// IDWait bounds the wait for the ID byte after a frame head.
	// Zero waits indefinitely.
	IDWait time.Duration

	// Handler, when non-nil, is called after each answered poll.
	Handler SendHandler

	lock       sync.Mutex
	configured bool

	dispatcher Dispatcher
	table      Table
}

// NewDevice creates a Device over a transport.
func NewDevice(t Transport) *Device {
	return &Device{Transport: t}
}

// Begin configures the physical sensor ID and the number of live
// sensor slots. It must be called exactly once.
func (d *Device) Begin(sensorID byte, sensorCount int) error {
	if sensorCount < 0 || sensorCount > MaxSensors {
		return ErrSensorCount
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.configured {
		return ErrConfigured
	}
	d.configured = true
	d.dispatcher.SensorID = sensorID
	d.table.SetActive(sensorCount)
	return nil
}

// SetSensorData overwrites one sensor slot with a logical ID and a raw
// value. The index must be under the count given to Begin; an
// out-of-range index panics.
func (d *Device) SetSensorData(index int, id uint16, value uint32) {
	d.table.Set(index, id, value)
}

// Table exposes the sensor table for inspection.
func (d *Device) Table() *Table {
	return &d.table
}

// Poll drains the currently available inbound bytes through the
// dispatcher and answers the polls addressed to this device. It does
// not block, with one exception: a frame head with no ID byte behind
// it waits for the ID until IDWait expires.
func (d *Device) Poll() error {
	for d.Transport.Available() {
		b, err := d.Transport.ReadByte()
		if err != nil {
			return err
		}
		pr := d.dispatcher.Parse(b)
		if pr.Polled {
			// A previous call was cut off between head and ID.
			if err = d.answer(); err != nil {
				return err
			}
			continue
		}
		if pr.State != StateAwaitID {
			continue
		}
		id, ok, err := d.awaitID()
		if err != nil {
			return err
		}
		if !ok {
			d.dispatcher.Reset()
			continue
		}
		if d.dispatcher.Parse(id).Polled {
			if err = d.answer(); err != nil {
				return err
			}
		}
	}
	return nil
}

// awaitID waits for the ID byte following a frame head. ok is false
// when IDWait expired first.
func (d *Device) awaitID() (b byte, ok bool, err error) {
	var deadline time.Time
	if d.IDWait > 0 {
		deadline = time.Now().Add(d.IDWait)
	}
	for !d.Transport.Available() {
		if !deadline.IsZero() && time.Now().After(deadline) {
			return 0, false, nil
		}
		time.Sleep(idPollInterval)
	}
	if b, err = d.Transport.ReadByte(); err != nil {
		return 0, false, err
	}
	return b, true, nil
}

// Run drives the dispatcher from the transport until ctx is done or
// the transport fails. Timeout errors from ReadByte are idle ticks:
// they bound the ID wait and otherwise keep the loop turning, which is
// how Run stays responsive to ctx on a quiet bus.
func (d *Device) Run(ctx context.Context) error {
	var idDeadline time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		b, err := d.Transport.ReadByte()
		if err != nil {
			if !os.IsTimeout(err) {
				return err
			}
			if !idDeadline.IsZero() && time.Now().After(idDeadline) {
				d.dispatcher.Reset()
				idDeadline = time.Time{}
			}
			continue
		}
		pr := d.dispatcher.Parse(b)
		switch {
		case pr.Polled:
			idDeadline = time.Time{}
			if err = d.answer(); err != nil {
				return err
			}
		case pr.State == StateAwaitID:
			if d.IDWait > 0 {
				idDeadline = time.Now().Add(d.IDWait)
			}
		default:
			idDeadline = time.Time{}
		}
	}
}

// answer transmits the next live sensor slot as a data frame. The
// transmit direction stays asserted from before the first byte until
// the transport has drained, which is what keeps a half-duplex line
// clean. The cursor advances even when the write fails; the protocol
// has no retransmit.
func (d *Device) answer() error {
	slot, ok := d.table.Next()
	if !ok {
		return nil
	}
	pkt := Packet{Type: DataFrame, ID: slot.ID, Value: int32(slot.Value)}
	if err := d.Transport.SetTransmit(true); err != nil {
		return err
	}
	err := d.send(pkt)
	if err == nil {
		err = d.Transport.Flush()
	}
	if rerr := d.Transport.SetTransmit(false); rerr != nil && err == nil {
		err = rerr
	}
	if err == nil && d.Handler != nil {
		d.Handler.HandleSent(pkt)
	}
	return err
}

func (d *Device) send(pkt Packet) error {
	for _, b := range pkt.AppendStuffed(nil) {
		if err := d.Transport.WriteByte(b); err != nil {
			return err
		}
	}
	return nil
}
