// Package bleid converts between the identifier forms used at the BLE
// platform boundary: human-readable MAC address strings vs. the 64-bit
// integer address the stack dials by, and raw 16-byte characteristic
// identifiers vs. 128-bit UUIDs.
package bleid

import (
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// IdentifierLength is the wire size of a raw characteristic identifier.
const IdentifierLength = 16

// ErrBadIdentifierLength is returned when a raw characteristic identifier
// is not exactly 16 bytes.
var ErrBadIdentifierLength = errors.New("characteristic identifier must be 16 bytes")

// AddressToUint converts a colon-delimited MAC address string (or plain
// hex) to its 64-bit integer form, e.g. "AA:BB:CC:DD:EE:FF" -> 0xAABBCCDDEEFF.
//
// Unparseable input yields 0. Callers that cannot accept a zero address
// must validate the string first.
func AddressToUint(address string) uint64 {
	hex := strings.ReplaceAll(address, ":", "")
	v, err := strconv.ParseUint(hex, 16, 64)
	if err != nil {
		return 0
	}
	return v
}

// UUIDFromBytes decodes a raw 16-byte characteristic identifier into a
// UUID. The platform stores the final 8 bytes (the variant/node field)
// little-endian, so they are reversed here; without this flip the result
// is a structurally valid UUID that never matches a real characteristic.
func UUIDFromBytes(raw []byte) (uuid.UUID, error) {
	if len(raw) != IdentifierLength {
		return uuid.Nil, ErrBadIdentifierLength
	}

	var b [IdentifierLength]byte
	copy(b[:], raw)
	reverse(b[8:])

	return uuid.FromBytes(b[:])
}

// UUIDToBytes is the exact inverse of UUIDFromBytes: it re-encodes a UUID
// into the raw 16-byte wire form, reversing the final 8 bytes back.
func UUIDToBytes(u uuid.UUID) []byte {
	b := make([]byte, IdentifierLength)
	copy(b, u[:])
	reverse(b[8:])
	return b
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
