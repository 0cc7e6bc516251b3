package sport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChecksum(t *testing.T) {
	testCases := []struct {
		name   string
		in     []byte
		expect byte
	}{
		{"empty", nil, 0xff},
		{"zeros", make([]byte, 7), 0xff},
		{"single", []byte{0x01}, 0xfe},
		{"carry fold", []byte{0xff, 0xff}, 0x00},
		{"data frame", []byte{0x10, 0x00, 0x06, 0xd2, 0x04, 0x00, 0x00}, 0x13},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expect, Checksum(tc.in))
			require.Equal(t, tc.expect, Checksum(tc.in), "not deterministic")
		})
	}
}

func TestChecksumByteEdits(t *testing.T) {
	base := []byte{0x10, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77}
	want := Checksum(base)
	for i := range base {
		for _, delta := range []byte{0x01, 0x55, 0x80} {
			edited := append([]byte(nil), base...)
			edited[i] += delta
			require.NotEqualf(t, want, Checksum(edited), "edit [%d]+=%#x not detected", i, delta)
		}
	}
}

func TestVerify(t *testing.T) {
	raw := Packet{Type: DataFrame, ID: 0x0600, Value: 1234}.Bytes()
	require.True(t, Verify(raw))
	// a full packet folds to 0xff before the complement
	require.Equal(t, byte(0), Checksum(raw))

	require.False(t, Verify(raw[:7]))
	raw[3]++
	require.False(t, Verify(raw))
}
