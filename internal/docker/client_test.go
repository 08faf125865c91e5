package docker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePortMappings(t *testing.T) {
	ports, err := ParsePortMappings([]string{"16261:16261/udp", "27015:27015"})
	require.NoError(t, err)
	assert.Equal(t, []PortMapping{
		{Host: "16261", Container: "16261", Protocol: "udp"},
		{Host: "27015", Container: "27015", Protocol: "tcp"},
	}, ports)
}

func TestParsePortMappings_Invalid(t *testing.T) {
	_, err := ParsePortMappings([]string{"16261"})
	assert.Error(t, err)
}

func TestParseMemory(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"0", 0},
		{"4G", 4 << 30},
		{"512m", 512 << 20},
		{"1024", 1024},
	}
	for _, tt := range tests {
		got, err := ParseMemory(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseMemory("lots")
	assert.Error(t, err)
}
