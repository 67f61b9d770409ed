// Package bleid implements the identifier codecs shared by the watcher and
// session layers: 48-bit device addresses and 128-bit GATT UUIDs, including
// the 16-byte binary UUID layout used at the platform boundary.
package bleid

import (
	"fmt"
	"strings"
)

// Address is a 48-bit BLE device address stored in the low bits of a uint64.
type Address uint64

// addressBits limits parsed addresses to the 48-bit BLE address space.
const addressBits = 48

// ParseAddress parses a textual device address into its 48-bit value.
// Colon separators are accepted and stripped before parsing
// ("AA:BB:CC:DD:EE:FF" and "AABBCCDDEEFF" are equivalent).
//
// Parsing fails closed: empty input, non-hex characters, or values wider than
// 48 bits are rejected. Callers that need the legacy permissive behavior can
// use ParseAddressLenient.
func ParseAddress(text string) (Address, error) {
	hex := strings.ReplaceAll(text, ":", "")
	if hex == "" {
		return 0, fmt.Errorf("address %q: empty after stripping separators", text)
	}
	if len(hex) > addressBits/4 {
		return 0, fmt.Errorf("address %q: longer than 48 bits", text)
	}

	var v uint64
	for _, r := range hex {
		d, ok := hexDigit(r)
		if !ok {
			return 0, fmt.Errorf("address %q: invalid hex digit %q", text, r)
		}
		v = v<<4 | uint64(d)
	}
	return Address(v), nil
}

// ParseAddressLenient parses like ParseAddress but never fails: malformed
// input yields the zero address, matching the permissiveness of the platform
// API this codec replaces. Prefer ParseAddress in new code.
func ParseAddressLenient(text string) Address {
	addr, err := ParseAddress(text)
	if err != nil {
		return 0
	}
	return addr
}

// FormatAddress renders the canonical textual form: 12 lowercase hex digits,
// no separators.
func FormatAddress(addr Address) string {
	return fmt.Sprintf("%012x", uint64(addr))
}

// String implements fmt.Stringer using the canonical colon-free form.
func (a Address) String() string {
	return FormatAddress(a)
}

// Display renders the conventional colon-separated form for human output.
func (a Address) Display() string {
	s := FormatAddress(a)
	parts := make([]string, 0, 6)
	for i := 0; i < len(s); i += 2 {
		parts = append(parts, s[i:i+2])
	}
	return strings.ToUpper(strings.Join(parts, ":"))
}

func hexDigit(r rune) (byte, bool) {
	switch {
	case r >= '0' && r <= '9':
		return byte(r - '0'), true
	case r >= 'a' && r <= 'f':
		return byte(r-'a') + 10, true
	case r >= 'A' && r <= 'F':
		return byte(r-'A') + 10, true
	default:
		return 0, false
	}
}
