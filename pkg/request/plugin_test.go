package request

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *PluginClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewPluginClient(strings.TrimPrefix(server.URL, "http://"), 5*time.Second)
}

func TestGetDeviceDetails(t *testing.T) {
	portID := "d3315981-0b2a-4e2c-8b1f-0123456789ab"
	mac := "fa:16:3e:00:00:01"
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/devices/details", r.URL.Path)

		var req DeviceRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, DeviceRequest{Device: "tapd3315981-0b", AgentID: "ovs0a0b0c0d0e0f", Host: "node1"}, req)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(DeviceDetails{
			Device:       req.Device,
			PortID:       &portID,
			NetworkID:    "net1",
			NetworkType:  "vxlan",
			AdminStateUp: true,
			MACAddress:   &mac,
		})
	})

	details, err := client.GetDeviceDetails("tapd3315981-0b", "ovs0a0b0c0d0e0f", "node1")
	require.NoError(t, err)
	require.NotNil(t, details.PortID)
	require.Equal(t, portID, *details.PortID)
	require.Equal(t, "net1", details.NetworkID)
	require.True(t, details.AdminStateUp)
	require.Nil(t, details.PhysicalNetwork)
	require.Equal(t, mac, *details.MACAddress)
}

func TestUpdateDevice(t *testing.T) {
	paths := make(chan string, 2)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, client.UpdateDeviceUp("tap1", "agent", "node1"))
	require.Equal(t, "/api/v1/devices/up", <-paths)
	require.NoError(t, client.UpdateDeviceDown("tap1", "agent", "node1"))
	require.Equal(t, "/api/v1/devices/down", <-paths)
}

func TestRequestFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	})

	err := client.TunnelSync("192.168.0.1", "vxlan", "node1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "500")
	require.Contains(t, err.Error(), "boom")
}

func TestUnreachableServer(t *testing.T) {
	client := NewPluginClient("127.0.0.1:1", time.Second)
	_, err := client.GetDeviceDetails("tap1", "agent", "node1")
	require.Error(t, err)
}

func TestReportState(t *testing.T) {
	states := make(chan AgentState, 1)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var state AgentState
		if r.URL.Path != "/api/v1/agents/state" || json.NewDecoder(r.Body).Decode(&state) != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		states <- state
		w.WriteHeader(http.StatusOK)
	})

	err := client.ReportState(&AgentState{
		Binary:    "neutron-ofa-agent",
		Host:      "node1",
		StartFlag: true,
		Configurations: AgentConfigurations{
			TunnelTypes:  []string{"vxlan"},
			L2Population: true,
			Devices:      3,
		},
	})
	require.NoError(t, err)
	state := <-states
	require.True(t, state.StartFlag)
	require.Equal(t, 3, state.Configurations.Devices)
	require.Equal(t, []string{"vxlan"}, state.Configurations.TunnelTypes)
}

func TestSecurityGroupInfoForDevices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/security-groups/devices", r.URL.Path)
		var req SecurityGroupInfoRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		info := SecurityGroupInfo{Devices: map[string][]SecurityGroupRule{}}
		for _, device := range req.Devices {
			info.Devices[device] = []SecurityGroupRule{{Direction: "ingress", Ethertype: "IPv4"}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(info)
	})

	info, err := client.SecurityGroupInfoForDevices([]string{"tap1", "tap2"})
	require.NoError(t, err)
	require.Len(t, info.Devices, 2)
	require.Equal(t, "ingress", info.Devices["tap1"][0].Direction)
}

func TestFloodingEntry(t *testing.T) {
	require.True(t, FloodingEntry.IsFlooding())
	require.True(t, PortInfo{MAC: "00:00:00:00:00:00", IP: "0.0.0.0"}.IsFlooding())
	require.False(t, PortInfo{MAC: "fa:16:3e:00:00:01", IP: "10.0.0.1"}.IsFlooding())
}
