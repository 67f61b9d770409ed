package bleid

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// UUID is a 128-bit GATT identifier in RFC 4122 byte order (big-endian).
type UUID [16]byte

// EncodedLen is the size of the binary UUID encoding used at the platform
// boundary.
const EncodedLen = 16

// DecodeUUID converts the 16-byte boundary encoding into a UUID.
//
// The first three GUID fields (4, 2 and 2 bytes) are read big-endian, so the
// leading 8 bytes carry RFC 4122 order unchanged; the trailing 8-byte field
// is stored reversed relative to the native GUID layout. The reversal is a
// compatibility requirement of the wire format, not a local convention;
// identifiers built off-device must reproduce it exactly.
func DecodeUUID(raw []byte) (UUID, error) {
	if len(raw) != EncodedLen {
		return UUID{}, fmt.Errorf("uuid encoding must be %d bytes, got %d", EncodedLen, len(raw))
	}

	var u UUID
	copy(u[:8], raw[:8])
	for i := 0; i < 8; i++ {
		u[8+i] = raw[15-i]
	}
	return u, nil
}

// EncodeUUID is the exact inverse of DecodeUUID. The round trip is lossless
// for every 128-bit value.
func EncodeUUID(u UUID) []byte {
	raw := make([]byte, EncodedLen)
	copy(raw[:8], u[:8])
	for i := 0; i < 8; i++ {
		raw[8+i] = u[15-i]
	}
	return raw
}

// ParseUUID parses a textual UUID. Dashes are optional; 16-bit short forms
// ("2902") are expanded against the Bluetooth SIG base UUID.
func ParseUUID(text string) (UUID, error) {
	norm := NormalizeUUID(text)
	switch len(norm) {
	case 4:
		norm = "0000" + norm + baseUUIDSuffix
	case 8:
		norm = norm + baseUUIDSuffix
	case 32:
		// full form
	default:
		return UUID{}, fmt.Errorf("invalid UUID %q", text)
	}

	b, err := hex.DecodeString(norm)
	if err != nil {
		return UUID{}, fmt.Errorf("invalid UUID %q: %w", text, err)
	}

	var u UUID
	copy(u[:], b)
	return u, nil
}

// baseUUIDSuffix is the tail of the Bluetooth SIG base UUID
// (0000xxxx-0000-1000-8000-00805f9b34fb) with dashes stripped.
const baseUUIDSuffix = "00001000800000805f9b34fb"

// String renders the conventional hyphenated lowercase form.
func (u UUID) String() string {
	s := hex.EncodeToString(u[:])
	return s[:8] + "-" + s[8:12] + "-" + s[12:16] + "-" + s[16:20] + "-" + s[20:]
}

// Normalized renders the internal lookup form: lowercase hex, no dashes.
func (u UUID) Normalized() string {
	return hex.EncodeToString(u[:])
}

// Short returns the 16-bit short form ("2902") when the UUID sits on the
// Bluetooth SIG base, otherwise the full normalized form.
func (u UUID) Short() string {
	n := u.Normalized()
	if strings.HasPrefix(n, "0000") && strings.HasSuffix(n, baseUUIDSuffix) {
		return n[4:8]
	}
	return n
}

// NormalizeUUID converts a UUID string to the internal lookup format
// (lowercase, no dashes, no 0x prefix). It does not validate hex content.
func NormalizeUUID(uuid string) string {
	s := strings.ToLower(strings.ReplaceAll(uuid, "-", ""))
	s = strings.TrimPrefix(s, "0x")
	return s
}

// NormalizeUUIDs normalizes a slice of UUID strings to internal format.
func NormalizeUUIDs(uuids []string) []string {
	normalized := make([]string, len(uuids))
	for i, uuid := range uuids {
		normalized[i] = NormalizeUUID(uuid)
	}
	return normalized
}
