package sport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeTimeout struct{}

func (fakeTimeout) Error() string { return "fake: read timed out" }
func (fakeTimeout) Timeout() bool { return true }

// fakeTransport is an in-memory bus endpoint. It records the wire
// bytes of every answer frame and checks the half-duplex direction
// discipline: writes only with the direction asserted, release only
// after a flush. Violations are collected instead of failing in place
// because transport calls may run off the test goroutine.
type fakeTransport struct {
	rx chan byte

	lock         sync.Mutex
	transmitting bool
	flushed      bool
	cur          []byte
	frames       [][]byte
	violations   []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{rx: make(chan byte, 64), flushed: true}
}

func (f *fakeTransport) inject(bs ...byte) {
	for _, b := range bs {
		f.rx <- b
	}
}

func (f *fakeTransport) WriteByte(b byte) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if !f.transmitting {
		f.violations = append(f.violations, "write with transmit direction released")
	}
	f.cur = append(f.cur, b)
	f.flushed = false
	return nil
}

func (f *fakeTransport) Flush() error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.flushed = true
	return nil
}

func (f *fakeTransport) Available() bool {
	return len(f.rx) > 0
}

func (f *fakeTransport) ReadByte() (byte, error) {
	select {
	case b := <-f.rx:
		return b, nil
	case <-time.After(2 * time.Millisecond):
		return 0, fakeTimeout{}
	}
}

func (f *fakeTransport) SetTransmit(on bool) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if on {
		if f.transmitting {
			f.violations = append(f.violations, "transmit direction asserted twice")
		}
		f.transmitting = true
		f.cur = nil
		return nil
	}
	if !f.transmitting {
		f.violations = append(f.violations, "transmit direction released twice")
	}
	if !f.flushed {
		f.violations = append(f.violations, "transmit direction released before flush")
	}
	f.transmitting = false
	f.frames = append(f.frames, f.cur)
	f.cur = nil
	return nil
}

func (f *fakeTransport) sentFrames() [][]byte {
	f.lock.Lock()
	defer f.lock.Unlock()
	out := make([][]byte, len(f.frames))
	copy(out, f.frames)
	return out
}

func (f *fakeTransport) requireClean(t *testing.T) {
	f.lock.Lock()
	defer f.lock.Unlock()
	require.Empty(t, f.violations)
}

func TestDeviceAnswersPolls(t *testing.T) {
	ft := newFakeTransport()
	dev := NewDevice(ft)
	require.NoError(t, dev.Begin(0x06, 2))
	require.Equal(t, 2, dev.Table().Active())
	dev.SetSensorData(0, 0x0600, 100)
	dev.SetSensorData(1, 0x0610, 200)

	ft.inject(FrameBegin, 0x06)
	require.NoError(t, dev.Poll())
	ft.inject(FrameBegin, 0x06)
	require.NoError(t, dev.Poll())

	require.Equal(t, [][]byte{
		{0x10, 0x00, 0x06, 0x64, 0x00, 0x00, 0x00, 0x85},
		{0x10, 0x10, 0x06, 0xc8, 0x00, 0x00, 0x00, 0x11},
	}, ft.sentFrames())
	ft.requireClean(t)
}

func TestDeviceIgnoresOtherIDs(t *testing.T) {
	ft := newFakeTransport()
	dev := NewDevice(ft)
	require.NoError(t, dev.Begin(0x06, 1))
	dev.SetSensorData(0, 0x0600, 1)

	ft.inject(FrameBegin, 0x10, FrameBegin, 0x1b)
	require.NoError(t, dev.Poll())
	require.Empty(t, ft.sentFrames())

	// and the dispatcher is back in seek, not stuck
	ft.inject(FrameBegin, 0x06)
	require.NoError(t, dev.Poll())
	require.Len(t, ft.sentFrames(), 1)
	ft.requireClean(t)
}

func TestDeviceRoundRobin(t *testing.T) {
	ft := newFakeTransport()
	dev := NewDevice(ft)
	require.NoError(t, dev.Begin(0x06, 3))
	dev.SetSensorData(0, 0x0100, 1)
	dev.SetSensorData(1, 0x0200, 2)
	dev.SetSensorData(2, 0x0300, 3)

	// one Poll drains every queued frame
	ft.inject(
		FrameBegin, 0x06,
		FrameBegin, 0x06,
		FrameBegin, 0x06,
		FrameBegin, 0x06,
	)
	require.NoError(t, dev.Poll())

	frames := ft.sentFrames()
	require.Len(t, frames, 4)
	var ids []uint16
	for _, raw := range frames {
		pkt, err := ParsePacket(raw)
		require.NoError(t, err)
		ids = append(ids, pkt.ID)
	}
	require.Equal(t, []uint16{0x0100, 0x0200, 0x0300, 0x0100}, ids)
	ft.requireClean(t)
}

func TestDeviceNoSensors(t *testing.T) {
	ft := newFakeTransport()
	dev := NewDevice(ft)
	require.NoError(t, dev.Begin(0x06, 0))

	ft.inject(FrameBegin, 0x06, FrameBegin, 0x06)
	require.NoError(t, dev.Poll())
	require.Empty(t, ft.sentFrames())
	ft.requireClean(t)
}

func TestDeviceStuffedAnswer(t *testing.T) {
	ft := newFakeTransport()
	dev := NewDevice(ft)
	require.NoError(t, dev.Begin(0x06, 1))
	dev.SetSensorData(0, 0x7e7d, 0xffffffff)

	ft.inject(FrameBegin, 0x06)
	require.NoError(t, dev.Poll())
	require.Equal(t, [][]byte{
		{0x10, 0x7d, 0x5d, 0x7d, 0x5e, 0xff, 0xff, 0xff, 0xff, 0xf3},
	}, ft.sentFrames())
	ft.requireClean(t)
}

func TestDeviceEchoIsHarmless(t *testing.T) {
	ft := newFakeTransport()
	dev := NewDevice(ft)
	require.NoError(t, dev.Begin(0x06, 1))
	// the raw packet contains the frame head byte, the wire must not
	dev.SetSensorData(0, 0x7e7d, 0x7e7e7e7e)

	ft.inject(FrameBegin, 0x06)
	require.NoError(t, dev.Poll())
	frames := ft.sentFrames()
	require.Len(t, frames, 1)

	// a line that echoes the transmission back must not re-trigger
	ft.inject(frames[0]...)
	require.NoError(t, dev.Poll())
	require.Len(t, ft.sentFrames(), 1)
	ft.requireClean(t)
}

func TestDeviceBegin(t *testing.T) {
	dev := NewDevice(newFakeTransport())
	require.Equal(t, ErrSensorCount, dev.Begin(0x06, MaxSensors+1))
	require.Equal(t, ErrSensorCount, dev.Begin(0x06, -1))
	require.NoError(t, dev.Begin(0x06, 1))
	require.Equal(t, ErrConfigured, dev.Begin(0x06, 1))

	require.Panics(t, func() { dev.SetSensorData(MaxSensors, 1, 1) })
}

func TestDeviceIDWaitExpires(t *testing.T) {
	ft := newFakeTransport()
	dev := NewDevice(ft)
	dev.IDWait = 2 * time.Millisecond
	require.NoError(t, dev.Begin(0x06, 1))
	dev.SetSensorData(0, 0x0600, 1)

	// a head with no id behind it gives up after IDWait
	ft.inject(FrameBegin)
	require.NoError(t, dev.Poll())
	require.Empty(t, ft.sentFrames())

	// the late id is plain noise now
	ft.inject(0x06)
	require.NoError(t, dev.Poll())
	require.Empty(t, ft.sentFrames())

	ft.inject(FrameBegin, 0x06)
	require.NoError(t, dev.Poll())
	require.Len(t, ft.sentFrames(), 1)
	ft.requireClean(t)
}

func TestDeviceWaitsForSplitPoll(t *testing.T) {
	ft := newFakeTransport()
	dev := NewDevice(ft)
	require.NoError(t, dev.Begin(0x06, 1))
	dev.SetSensorData(0, 0x0600, 1)

	// with IDWait zero the device holds out for the id
	ft.inject(FrameBegin)
	done := make(chan error, 1)
	go func() { done <- dev.Poll() }()
	time.Sleep(5 * time.Millisecond)
	ft.inject(0x06)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("poll did not return")
	}
	require.Len(t, ft.sentFrames(), 1)
	ft.requireClean(t)
}

func TestDeviceRun(t *testing.T) {
	ft := newFakeTransport()
	dev := NewDevice(ft)
	dev.IDWait = 50 * time.Millisecond
	require.NoError(t, dev.Begin(0x1b, 1))
	dev.SetSensorData(0, 0x0210, 0x1234)

	sent := make(chan Packet, 4)
	dev.Handler = SendHandlerFunc(func(p Packet) { sent <- p })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- dev.Run(ctx) }()

	ft.inject(FrameBegin, 0x1b)
	select {
	case p := <-sent:
		require.Equal(t, Packet{Type: DataFrame, ID: 0x0210, Value: 0x1234}, p)
	case <-time.After(time.Second):
		t.Fatal("no answer")
	}

	cancel()
	select {
	case err := <-done:
		require.Equal(t, context.Canceled, err)
	case <-time.After(time.Second):
		t.Fatal("run did not stop")
	}
	ft.requireClean(t)
}

func TestDeviceRunIDWaitExpiry(t *testing.T) {
	ft := newFakeTransport()
	dev := NewDevice(ft)
	dev.IDWait = 20 * time.Millisecond
	require.NoError(t, dev.Begin(0x1b, 1))
	dev.SetSensorData(0, 0x0210, 7)

	sent := make(chan Packet, 4)
	dev.Handler = SendHandlerFunc(func(p Packet) { sent <- p })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- dev.Run(ctx) }()

	// head, then a long gap: the id arriving after IDWait is noise
	ft.inject(FrameBegin)
	time.Sleep(60 * time.Millisecond)
	ft.inject(0x1b)
	ft.inject(FrameBegin, 0x1b)

	select {
	case <-sent:
	case <-time.After(time.Second):
		t.Fatal("no answer")
	}
	select {
	case p := <-sent:
		t.Fatalf("expired poll was answered: %+v", p)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		require.Equal(t, context.Canceled, err)
	case <-time.After(time.Second):
		t.Fatal("run did not stop")
	}
	ft.requireClean(t)
}
