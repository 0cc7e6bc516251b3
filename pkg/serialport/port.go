package serialport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

// ErrClosed is returned by ReadByte after Close.
var ErrClosed = errors.New("serialport: port closed")

type timeoutError struct{}

func (timeoutError) Error() string { return "serialport: read timed out" }
func (timeoutError) Timeout() bool { return true }

const rxBufferSize = 512

// Port is an open serial device implementing sport.Transport.
//
// ReadByte, Available, WriteByte, Flush and SetTransmit belong to the
// polling goroutine. Close may be called from anywhere and unblocks a
// pending ReadByte.
type Port struct {
	cfg  Config
	port serial.Port

	rx   chan byte
	done chan struct{}

	// tx is owned by the polling goroutine.
	tx []byte

	lock   sync.Mutex
	closed bool
	err    error
}

// List enumerates the serial devices present on the system.
func List() ([]string, error) {
	return serial.GetPortsList()
}

// Open opens the configured serial device in 8N1 mode and starts the
// reader.
func Open(cfg Config) (*Port, error) {
	if cfg.Device == "" {
		return nil, errors.New("serialport: no device")
	}
	cfg = cfg.withDefaults()
	sp, err := serial.Open(cfg.Device, &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("serialport: open %s: %w", cfg.Device, err)
	}
	if err = sp.SetReadTimeout(cfg.ReadTimeout); err != nil {
		sp.Close()
		return nil, fmt.Errorf("serialport: %s: %w", cfg.Device, err)
	}
	// start clean, stale bytes predate this session
	sp.ResetInputBuffer()
	return newPort(sp, cfg), nil
}

func newPort(sp serial.Port, cfg Config) *Port {
	p := &Port{
		cfg:  cfg.withDefaults(),
		port: sp,
		rx:   make(chan byte, rxBufferSize),
		done: make(chan struct{}),
	}
	go p.reader()
	return p
}

// Device returns the configured device path.
func (p *Port) Device() string {
	return p.cfg.Device
}

// Close closes the device and stops the reader.
func (p *Port) Close() error {
	p.lock.Lock()
	p.closed = true
	p.lock.Unlock()
	return p.port.Close()
}

func (p *Port) reader() {
	defer close(p.done)
	buf := make([]byte, 64)
	for {
		n, err := p.port.Read(buf)
		if err != nil {
			p.setErr(err)
			return
		}
		// a read timeout surfaces as n == 0 with no error
		for _, b := range buf[:n] {
			select {
			case p.rx <- b:
			default:
				// consumer stalled, drop the byte: the bus
				// repeats its polls anyway
			}
		}
	}
}

func (p *Port) setErr(err error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.closed {
		err = ErrClosed
	}
	p.err = err
}

func (p *Port) readErr() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.err == nil {
		return ErrClosed
	}
	return p.err
}

// Available reports whether a byte is buffered.
func (p *Port) Available() bool {
	return len(p.rx) > 0
}

// ReadByte returns the next inbound byte. It blocks up to the
// configured read timeout and then returns an error satisfying
// os.IsTimeout.
func (p *Port) ReadByte() (byte, error) {
	// buffered bytes win over shutdown
	select {
	case b := <-p.rx:
		return b, nil
	default:
	}
	select {
	case b := <-p.rx:
		return b, nil
	case <-p.done:
		return 0, p.readErr()
	case <-time.After(p.cfg.ReadTimeout):
		return 0, timeoutError{}
	}
}

// WriteByte queues one byte for the next Flush.
func (p *Port) WriteByte(b byte) error {
	p.tx = append(p.tx, b)
	return nil
}

// Flush writes the queued bytes in one burst and blocks until the
// device has drained them onto the wire.
func (p *Port) Flush() error {
	if len(p.tx) == 0 {
		return nil
	}
	buf := p.tx
	p.tx = p.tx[:0]
	if _, err := p.port.Write(buf); err != nil {
		return err
	}
	return p.port.Drain()
}

// SetTransmit toggles the transmit direction. Asserting drops any
// unflushed queued bytes. Releasing with echo discard enabled clears
// the input that piled up during the transmission.
func (p *Port) SetTransmit(on bool) error {
	if on {
		p.tx = p.tx[:0]
		if p.cfg.RTSDirection {
			return p.port.SetRTS(true)
		}
		return nil
	}
	var err error
	if p.cfg.RTSDirection {
		err = p.port.SetRTS(false)
	}
	if p.cfg.DiscardEcho {
		if rerr := p.port.ResetInputBuffer(); rerr != nil && err == nil {
			err = rerr
		}
		p.drainRx()
	}
	return err
}

func (p *Port) drainRx() {
	for {
		select {
		case <-p.rx:
		default:
			return
		}
	}
}
