package sport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDispatcher(t *testing.T) {
	testCases := []struct {
		name  string
		id    byte
		in    []byte
		polls int
		final State
	}{
		{"poll for own id", 0x06, []byte{FrameBegin, 0x06}, 1, StateSeekFrame},
		{"poll for other id", 0x06, []byte{FrameBegin, 0x10}, 0, StateSeekFrame},
		{"noise before frame", 0x06, []byte{0x01, 0x55, 0xaa, FrameBegin, 0x06}, 1, StateSeekFrame},
		{"head then silence", 0x06, []byte{FrameBegin}, 0, StateAwaitID},
		{"head inside frame is an id candidate", 0x06, []byte{FrameBegin, FrameBegin, 0x06}, 0, StateSeekFrame},
		{"back to back polls", 0x06, []byte{FrameBegin, 0x06, FrameBegin, 0x06}, 2, StateSeekFrame},
		{"interleaved ids", 0x06, []byte{FrameBegin, 0x07, FrameBegin, 0x06, FrameBegin, 0x1b}, 1, StateSeekFrame},
		{"id without head is noise", 0x06, []byte{0x06, 0x06}, 0, StateSeekFrame},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := Dispatcher{SensorID: tc.id}
			polls := 0
			for _, b := range tc.in {
				if d.Parse(b).Polled {
					polls++
				}
			}
			require.Equal(t, tc.polls, polls)
			require.Equal(t, tc.final, d.State())
		})
	}
}

func TestDispatcherReset(t *testing.T) {
	d := Dispatcher{SensorID: 0x06}
	d.Parse(FrameBegin)
	require.Equal(t, StateAwaitID, d.State())

	pr := d.Reset()
	require.Equal(t, ParseResult{State: StateSeekFrame}, pr)

	// the id that would have matched is now plain noise
	require.False(t, d.Parse(0x06).Polled)
	require.Equal(t, StateAwaitID, d.Parse(FrameBegin).State)
	require.True(t, d.Parse(0x06).Polled)
}
