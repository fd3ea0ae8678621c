// Package bledb normalizes Bluetooth UUIDs and resolves the well-known
// SIG assigned numbers for services, characteristics and descriptors.
package bledb

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// sigBaseSuffix is the trailing 96 bits of the Bluetooth SIG base UUID
// 0000xxxx-0000-1000-8000-00805f9b34fb, without dashes.
const sigBaseSuffix = "00001000800000805f9b34fb"

// NormalizeUUID converts a UUID string to the internal format: lowercase,
// no dashes, no braces, no 0x prefix. UUIDs built on the SIG base are
// shortened to their 16-bit (or 32-bit) form. Returns "" for malformed input.
func NormalizeUUID(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "0x")

	switch len(s) {
	case 4, 8:
		if !isHex(s) {
			return ""
		}
		return s
	}

	u, err := uuid.Parse(s)
	if err != nil {
		return ""
	}

	full := hex.EncodeToString(u[:])
	if strings.HasSuffix(full, sigBaseSuffix) {
		if strings.HasPrefix(full, "0000") {
			return full[4:8]
		}
		return full[:8]
	}
	return full
}

// NormalizeUUIDs normalizes every entry, dropping malformed ones.
func NormalizeUUIDs(uuids []string) []string {
	result := make([]string, 0, len(uuids))
	for _, u := range uuids {
		if n := NormalizeUUID(u); n != "" {
			result = append(result, n)
		}
	}
	return result
}

// ExpandUUID returns the canonical dashed 128-bit form of a normalized or
// raw UUID. Short forms are placed onto the SIG base UUID.
func ExpandUUID(s string) string {
	n := NormalizeUUID(s)
	switch len(n) {
	case 0:
		return ""
	case 4:
		n = "0000" + n + sigBaseSuffix
	case 8:
		n = n + sigBaseSuffix
	}
	u, err := uuid.Parse(n)
	if err != nil {
		return ""
	}
	return u.String()
}

func isHex(s string) bool {
	_, err := hex.DecodeString(s)
	return err == nil
}

// LookupService returns the SIG name of a service UUID, or "".
func LookupService(u string) string {
	return services[NormalizeUUID(u)]
}

// LookupCharacteristic returns the SIG name of a characteristic UUID, or "".
func LookupCharacteristic(u string) string {
	return characteristics[NormalizeUUID(u)]
}

// LookupDescriptor returns the SIG name of a descriptor UUID, or "".
func LookupDescriptor(u string) string {
	return descriptors[NormalizeUUID(u)]
}
