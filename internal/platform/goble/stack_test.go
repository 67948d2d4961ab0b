package goble

import (
	"testing"

	"github.com/go-ble/ble"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestFormatAddress(t *testing.T) {
	tests := []struct {
		name string
		addr uint64
		want string
	}{
		{name: "full address", addr: 0xAABBCCDDEEFF, want: "AA:BB:CC:DD:EE:FF"},
		{name: "leading zeros", addr: 0x0000000000A1, want: "00:00:00:00:00:A1"},
		{name: "high bits ignored", addr: 0xFFFF112233445566, want: "11:22:33:44:55:66"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatAddress(tt.addr))
		})
	}
}

func TestUUIDFromBLE(t *testing.T) {
	tests := []struct {
		name string
		in   ble.UUID
		want string
	}{
		{
			name: "16-bit expands to base UUID",
			in:   ble.UUID16(0x2A19),
			want: "00002a19-0000-1000-8000-00805f9b34fb",
		},
		{
			name: "32-bit expands to base UUID",
			// ble.MustParse rejects 4-byte UUIDs, so build the
			// little-endian ble.UUID for 0x0001A7E5 directly.
			in:   ble.UUID{0xE5, 0xA7, 0x01, 0x00},
			want: "0001a7e5-0000-1000-8000-00805f9b34fb",
		},
		{
			name: "128-bit passes through",
			in:   ble.MustParse("22bb746f-2ba1-7554-2d6f-726568705327"),
			want: "22bb746f-2ba1-7554-2d6f-726568705327",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, uuid.MustParse(tt.want), uuidFromBLE(tt.in))
		})
	}
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Positive(t, opts.EnumerationWindow)
	assert.Positive(t, opts.DeviceExpiry)
}
