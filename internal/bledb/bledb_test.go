package bledb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "short form kept", input: "2A37", want: "2a37"},
		{name: "hex prefix and padding", input: "  0x180F ", want: "180f"},
		{name: "32-bit short form kept", input: "1234ABCD", want: "1234abcd"},
		{name: "SIG base collapses to 16-bit", input: "0000180D-0000-1000-8000-00805F9B34FB", want: "180d"},
		{name: "SIG base collapses to 32-bit", input: "1234abcd-0000-1000-8000-00805f9b34fb", want: "1234abcd"},
		{name: "undashed SIG base", input: "00002a1900001000800000805f9b34fb", want: "2a19"},
		{name: "braced", input: "{0000180a-0000-1000-8000-00805f9b34fb}", want: "180a"},
		{name: "urn form", input: "urn:uuid:0000180a-0000-1000-8000-00805f9b34fb", want: "180a"},
		{name: "vendor UUID stays 128-bit", input: "6E400001-B5A3-F393-E0A9-E50E24DCCA9E", want: "6e400001b5a3f393e0a9e50e24dcca9e"},
		{name: "near-base vendor UUID stays 128-bit", input: "0000180d-0000-1000-8000-00805f9b34fc", want: "0000180d00001000800000805f9b34fc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeUUID(tt.input))
		})
	}
}

func TestNormalizeUUID_Malformed(t *testing.T) {
	for _, in := range []string{"", "   ", "xyz", "18", "180", "zzzz", "12345", "0x", "0000180d-0000-1000-8000"} {
		assert.Empty(t, NormalizeUUID(in), "input %q MUST normalize to empty", in)
	}
}

func TestNormalizeUUID_Idempotent(t *testing.T) {
	for _, in := range []string{"180D", "0x2a37", "1234abcd-0000-1000-8000-00805f9b34fb", "6E400001-B5A3-F393-E0A9-E50E24DCCA9E"} {
		once := NormalizeUUID(in)
		require.NotEmpty(t, once, in)
		assert.Equal(t, once, NormalizeUUID(once), "normalizing %q twice MUST be stable", in)
	}
}

func TestNormalizeUUIDs_DropsMalformed(t *testing.T) {
	got := NormalizeUUIDs([]string{"180D", "bogus", "0x2A37"})
	assert.Equal(t, []string{"180d", "2a37"}, got)
	assert.Empty(t, NormalizeUUIDs(nil))
}

func TestExpandUUID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "16-bit", input: "180d", want: "0000180d-0000-1000-8000-00805f9b34fb"},
		{name: "32-bit", input: "1234abcd", want: "1234abcd-0000-1000-8000-00805f9b34fb"},
		{name: "custom 128-bit", input: "6e400001b5a3f393e0a9e50e24dcca9e", want: "6e400001-b5a3-f393-e0a9-e50e24dcca9e"},
		{name: "malformed", input: "nope", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandUUID(tt.input))
		})
	}
}

func TestExpandUUID_RoundTripsThroughNormalize(t *testing.T) {
	for _, short := range []string{"180d", "1234abcd", "6e400001b5a3f393e0a9e50e24dcca9e"} {
		assert.Equal(t, short, NormalizeUUID(ExpandUUID(short)))
	}
}

func TestLookups(t *testing.T) {
	tests := []struct {
		name   string
		lookup func(string) string
		input  string
		want   string
	}{
		{name: "service short", lookup: LookupService, input: "180D", want: "Heart Rate"},
		{name: "service long", lookup: LookupService, input: "0000180f-0000-1000-8000-00805f9b34fb", want: "Battery Service"},
		{name: "vendor service", lookup: LookupService, input: "6E400001-B5A3-F393-E0A9-E50E24DCCA9E", want: "Nordic UART Service"},
		{name: "characteristic", lookup: LookupCharacteristic, input: "0x2a19", want: "Battery Level"},
		{name: "vendor characteristic", lookup: LookupCharacteristic, input: "6e400003-b5a3-f393-e0a9-e50e24dcca9e", want: "Nordic UART TX"},
		{name: "descriptor", lookup: LookupDescriptor, input: "00002902-0000-1000-8000-00805f9b34fb", want: "Client Characteristic Configuration"},
		{name: "unknown service", lookup: LookupService, input: "ffff", want: ""},
		{name: "malformed", lookup: LookupCharacteristic, input: "not-a-uuid", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.lookup(tt.input))
		})
	}
}

func TestLookupsDoNotCrossTables(t *testing.T) {
	// 2a19 is a characteristic and 2902 a descriptor; neither is a service.
	assert.Empty(t, LookupService("2a19"))
	assert.Empty(t, LookupCharacteristic("2902"))
	assert.Empty(t, LookupDescriptor("180d"))
}

func TestNameTablesAreNormalized(t *testing.T) {
	for name, table := range map[string]map[string]string{
		"services":        services,
		"characteristics": characteristics,
		"descriptors":     descriptors,
	} {
		for key, value := range table {
			assert.Equal(t, NormalizeUUID(key), key, "%s key %q MUST be in normalized form", name, key)
			assert.NotEmpty(t, value, "%s key %q has no name", name, key)
		}
	}
}
