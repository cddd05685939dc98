package ports

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsTenantPort(t *testing.T) {
	tests := []struct {
		name     string
		expected bool
	}{
		{"tapd3315981-0b", true},
		{"qvod3315981-0b", true},
		{"qr-328827e7-2d", true},
		{"qg-328827e7-2d", true},
		{"tapd3315981-0", false},
		{"tapd3315981-0bc", false},
		{"patch-tun", false},
		{"br-int", false},
		{"_ofa-tun-vxlan", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, IsTenantPort(tt.name))
			require.Equal(t, tt.expected, FromInterface(tt.name, 1).IsTenantPort())
		})
	}
}

func TestCanonicalName(t *testing.T) {
	tests := []struct {
		name     string
		expected string
	}{
		{"tapd3315981-0b", "tapd3315981-0b"},
		{"qvod3315981-0b", "tapd3315981-0b"},
		{"qr-328827e7-2d", "tap328827e7-2d"},
		{"qg-328827e7-2d", "tap328827e7-2d"},
		{"patch-tun", "patch-tun"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, CanonicalName(tt.name))
		})
	}
}

func TestCanonicalNameForID(t *testing.T) {
	require.Equal(t, "tapd3315981-0b", CanonicalNameForID("d3315981-0b2a-4e2c-8b1f-0123456789ab"))
	require.Equal(t, "tap328827e7-2d", CanonicalNameForID("328827e7-2d"))
	require.Equal(t, "tapabc", CanonicalNameForID("abc"))
}

func TestPortMAC(t *testing.T) {
	p := FromInterface("tapd3315981-0b", 5)
	require.False(t, p.HasMAC())
	require.Equal(t, "Port<name=tapd3315981-0b, ofport=5, mac=<unknown>>", p.String())

	p.SetMAC("fa:16:3e:00:00:01")
	require.True(t, p.HasMAC())
	require.Equal(t, "fa:16:3e:00:00:01", *p.MAC)

	p.SetMAC("")
	require.False(t, p.HasMAC())
	require.Nil(t, p.MAC)
}
