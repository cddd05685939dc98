package ovs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kubeovn/ofagent/pkg/util"
)

func TestUpdateOVSVsctlLimiter(t *testing.T) {
	UpdateOVSVsctlLimiter(0)
	require.Nil(t, limiter)
	UpdateOVSVsctlLimiter(10)
	require.NotNil(t, limiter)
	limiter = nil
}

func TestOvsExec(t *testing.T) {
	// ovs-vsctl is not available in the test environment
	ret, err := Exec("show")
	require.Error(t, err)
	require.Empty(t, ret)
}

func TestParseOfport(t *testing.T) {
	tests := []struct {
		value  string
		ofport int32
	}{
		{"5", 5},
		{" 12\n", 12},
		{"-1", util.InvalidOfport},
		{"[]", util.InvalidOfport},
		{"", util.InvalidOfport},
		{"abc", util.InvalidOfport},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			require.Equal(t, tt.ofport, parseOfport(tt.value))
		})
	}
}

func TestTunnelPortArgs(t *testing.T) {
	args := tunnelPortArgs("br-int", "_ofa-tun-vxlan", "flow", "0", util.NetworkTypeVxlan, 8472, false)
	require.Equal(t, []string{
		"--may-exist", "add-port", "br-int", "_ofa-tun-vxlan",
		"--", "set", "Interface", "_ofa-tun-vxlan",
		"type=vxlan",
		"options:remote_ip=flow",
		"options:local_ip=0",
		"options:in_key=flow",
		"options:out_key=flow",
		"options:dst_port=8472",
		"options:df_default=false",
	}, args)

	args = tunnelPortArgs("br-int", "_ofa-tun-gre", "flow", "0", util.NetworkTypeGre, 8472, true)
	require.NotContains(t, args, "options:dst_port=8472")
	require.Contains(t, args, "options:df_default=true")
}
