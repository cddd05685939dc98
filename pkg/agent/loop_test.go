package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/scylladb/go-set/strset"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	mockagent "github.com/kubeovn/ofagent/mocks/pkg/agent"
	"github.com/kubeovn/ofagent/pkg/monitor"
	"github.com/kubeovn/ofagent/pkg/ports"
	"github.com/kubeovn/ofagent/pkg/request"
	"github.com/kubeovn/ofagent/pkg/util"
)

const (
	testAgentID = "ovsaabbccddeeff"
	testHost    = "host1"
)

func deviceDetails(device, netUUID string, adminStateUp bool) *request.DeviceDetails {
	return &request.DeviceDetails{
		Device:         device,
		PortID:         strPtr(device[3:]),
		NetworkID:      netUUID,
		NetworkType:    util.NetworkTypeVxlan,
		SegmentationID: intPtr(1000),
		AdminStateUp:   adminStateUp,
		MACAddress:     strPtr("fa:16:3e:00:00:01"),
	}
}

func newLoopTestAgent(t *testing.T) (*testAgent, *mockagent.MockPluginAPI) {
	t.Helper()
	ctrl := gomock.NewController(t)
	plugin := mockagent.NewMockPluginAPI(ctrl)
	return newTestAgent(t, newTestConfig(), plugin), plugin
}

func TestPortUpdate(t *testing.T) {
	ta, _ := newLoopTestAgent(t)
	ta.PortUpdate("1234567890abcdef")
	ta.PortUpdate("1234567890abcdef")

	updated := ta.swapUpdatedPorts()
	require.Equal(t, []string{"tap1234567890a"}, updated.List())
	require.True(t, ta.swapUpdatedPorts().IsEmpty())

	ta.PortUpdate("fedcba")
	ta.restoreUpdatedPorts(updated)
	require.ElementsMatch(t, []string{"tap1234567890a", "tapfedcba"}, ta.swapUpdatedPorts().List())
}

func TestTreatDevicesAddedOrUpdated(t *testing.T) {
	t.Run("bind and report up", func(t *testing.T) {
		ta, plugin := newLoopTestAgent(t)
		ta.source.set("tap1")
		plugin.EXPECT().GetDeviceDetails("tap1", testAgentID, testHost).Return(deviceDetails("tap1", "net1", true), nil)
		plugin.EXPECT().UpdateDeviceUp("tap1", testAgentID, testHost).Return(nil)

		resync, err := ta.treatDevicesAddedOrUpdated(strset.New("tap1"), nil)
		require.NoError(t, err)
		require.False(t, resync)
		lvm := ta.localVlanMap["net1"]
		require.NotNil(t, lvm)
		require.True(t, lvm.VifPorts["tap1"].HasMAC())
		require.Equal(t, lvm.Vlan, ta.bridge.checkIn[1])
		require.Contains(t, ta.bridge.localOut, outKey(lvm.Vlan, "fa:16:3e:00:00:01"))
	})

	t.Run("admin down", func(t *testing.T) {
		ta, plugin := newLoopTestAgent(t)
		ta.source.set("tap1")
		plugin.EXPECT().GetDeviceDetails("tap1", testAgentID, testHost).Return(deviceDetails("tap1", "net1", false), nil)
		plugin.EXPECT().UpdateDeviceDown("tap1", testAgentID, testHost).Return(nil)

		resync, err := ta.treatDevicesAddedOrUpdated(strset.New("tap1"), nil)
		require.NoError(t, err)
		require.False(t, resync)
		require.NotContains(t, ta.localVlanMap, "net1")
		require.Equal(t, 1, ta.bridge.count("CheckInPortDeletePort"))
	})

	t.Run("vanished device", func(t *testing.T) {
		ta, _ := newLoopTestAgent(t)
		resync, err := ta.treatDevicesAddedOrUpdated(strset.New("tap1"), nil)
		require.NoError(t, err)
		require.False(t, resync)
	})

	t.Run("details failure", func(t *testing.T) {
		ta, plugin := newLoopTestAgent(t)
		ta.source.set("tap1", "tap2")
		plugin.EXPECT().GetDeviceDetails("tap1", testAgentID, testHost).Return(nil, errors.New("timeout"))
		plugin.EXPECT().GetDeviceDetails("tap2", testAgentID, testHost).Return(deviceDetails("tap2", "net1", true), nil)
		plugin.EXPECT().UpdateDeviceUp("tap2", testAgentID, testHost).Return(nil)

		resync, err := ta.treatDevicesAddedOrUpdated(strset.New("tap1", "tap2"), nil)
		require.NoError(t, err)
		require.True(t, resync)
		require.Contains(t, ta.localVlanMap["net1"].VifPorts, "tap2")
	})

	t.Run("device not defined on plugin", func(t *testing.T) {
		ta, plugin := newLoopTestAgent(t)
		ta.source.set("tap1")
		plugin.EXPECT().GetDeviceDetails("tap1", testAgentID, testHost).Return(&request.DeviceDetails{Device: "tap1"}, nil)

		resync, err := ta.treatDevicesAddedOrUpdated(strset.New("tap1"), nil)
		require.NoError(t, err)
		require.False(t, resync)
		require.Equal(t, []string{"CheckInPortDeletePort[1]"}, ta.bridge.calls[len(ta.bridge.calls)-1:])
		require.Empty(t, ta.localVlanMap)
	})

	t.Run("no local vlan available", func(t *testing.T) {
		ta, plugin := newLoopTestAgent(t)
		ta.vlanPool = newVlanPool(1, 1)
		ta.source.set("tap1")
		plugin.EXPECT().GetDeviceDetails("tap1", testAgentID, testHost).Return(deviceDetails("tap1", "net1", true), nil)

		// the status is not reported for a port that is not wired
		resync, err := ta.treatDevicesAddedOrUpdated(strset.New("tap1"), nil)
		require.NoError(t, err)
		require.True(t, resync)
		require.NotContains(t, ta.localVlanMap, "net1")
		require.Empty(t, ta.bridge.checkIn)
	})

	t.Run("status update failure", func(t *testing.T) {
		ta, plugin := newLoopTestAgent(t)
		ta.source.set("tap1")
		plugin.EXPECT().GetDeviceDetails("tap1", testAgentID, testHost).Return(deviceDetails("tap1", "net1", true), nil)
		plugin.EXPECT().UpdateDeviceUp("tap1", testAgentID, testHost).Return(errors.New("timeout"))

		_, err := ta.treatDevicesAddedOrUpdated(strset.New("tap1"), nil)
		require.Error(t, err)
	})

	t.Run("ofport changed", func(t *testing.T) {
		ta, plugin := newLoopTestAgent(t)
		require.NoError(t, ta.portBound(portWithMAC("tap1", 4, "fa:16:3e:00:00:01"), "net1", util.NetworkTypeVxlan, nil, intPtr(1000)))
		ta.source.set("tap1")
		plugin.EXPECT().GetDeviceDetails("tap1", testAgentID, testHost).Return(deviceDetails("tap1", "net1", true), nil)
		plugin.EXPECT().UpdateDeviceUp("tap1", testAgentID, testHost).Return(nil)

		checkPorts := map[string]monitor.PortStatusEvent{
			"tap1": {Reason: monitor.PortDeleted, Port: ports.FromInterface("tap1", 4), Name: "tap1"},
		}
		_, err := ta.treatDevicesAddedOrUpdated(strset.New("tap1"), checkPorts)
		require.NoError(t, err)
		require.Contains(t, ta.bridge.calls, "CheckInPortDeletePort[4]")
		require.NotContains(t, ta.bridge.checkIn, int32(4))
		require.Equal(t, []int32{1}, ta.bridge.localFlood[ta.localVlanMap["net1"].Vlan])
	})
}

func TestTreatDevicesRemoved(t *testing.T) {
	ta, plugin := newLoopTestAgent(t)
	require.NoError(t, ta.portBound(portWithMAC("tap1", 1, "fa:16:3e:00:00:01"), "net1", util.NetworkTypeLocal, nil, nil))
	require.NoError(t, ta.portBound(portWithMAC("tap2", 2, "fa:16:3e:00:00:02"), "net1", util.NetworkTypeLocal, nil, nil))

	plugin.EXPECT().UpdateDeviceDown("tap1", testAgentID, testHost).Return(nil)
	plugin.EXPECT().UpdateDeviceDown("tap2", testAgentID, testHost).Return(errors.New("timeout"))

	resync, err := ta.treatDevicesRemoved(strset.New("tap1", "tap2"))
	require.NoError(t, err)
	require.True(t, resync)
	require.ElementsMatch(t, []string{"tap1", "tap2"}, ta.sgAgent.removed.List())
	require.NotContains(t, ta.localVlanMap["net1"].VifPorts, "tap1")
	require.Contains(t, ta.localVlanMap["net1"].VifPorts, "tap2")
}

func TestTunnelSync(t *testing.T) {
	ta, plugin := newLoopTestAgent(t)
	plugin.EXPECT().TunnelSync("10.0.0.1", util.NetworkTypeGre, testHost).Return(nil)
	plugin.EXPECT().TunnelSync("10.0.0.1", util.NetworkTypeVxlan, testHost).Return(nil)
	require.False(t, ta.tunnelSync())

	plugin.EXPECT().TunnelSync("10.0.0.1", util.NetworkTypeGre, testHost).Return(errors.New("timeout"))
	require.True(t, ta.tunnelSync())
}

func TestIterate(t *testing.T) {
	ta, plugin := newLoopTestAgent(t)
	ta.source.set("tap1")

	// first cycle: resync and tunnel sync fail
	plugin.EXPECT().TunnelSync("10.0.0.1", util.NetworkTypeGre, testHost).Return(errors.New("timeout"))
	plugin.EXPECT().GetDeviceDetails("tap1", testAgentID, testHost).Return(deviceDetails("tap1", "net1", true), nil)
	plugin.EXPECT().UpdateDeviceUp("tap1", testAgentID, testHost).Return(nil)
	topologyResync, tunnelResync := ta.iterate(true, true)
	require.False(t, topologyResync)
	require.True(t, tunnelResync)
	require.Equal(t, []string{"tap1"}, ta.registered.List())
	require.Equal(t, []string{"tap1"}, ta.sgAgent.added.List())

	// nothing changed
	plugin.EXPECT().TunnelSync(gomock.Any(), gomock.Any(), testHost).Return(nil).Times(2)
	topologyResync, tunnelResync = ta.iterate(false, true)
	require.False(t, topologyResync)
	require.False(t, tunnelResync)

	// a failed status update restores the port updates and forces a resync
	ta.PortUpdate("1")
	ta.source.set("tap1", "tap2")
	plugin.EXPECT().GetDeviceDetails("tap1", testAgentID, testHost).Return(deviceDetails("tap1", "net1", true), nil)
	plugin.EXPECT().UpdateDeviceUp("tap1", testAgentID, testHost).Return(nil)
	plugin.EXPECT().GetDeviceDetails("tap2", testAgentID, testHost).Return(deviceDetails("tap2", "net1", true), nil)
	plugin.EXPECT().UpdateDeviceUp("tap2", testAgentID, testHost).Return(errors.New("timeout"))
	topologyResync, _ = ta.iterate(false, false)
	require.True(t, topologyResync)
	require.Equal(t, []string{"tap1"}, ta.swapUpdatedPorts().List())

	// a firewall refresh alone triggers processing
	ta.sgAgent.refreshNeeded = true
	topologyResync, _ = ta.iterate(false, false)
	require.False(t, topologyResync)
	require.False(t, ta.sgAgent.refreshNeeded)
}

func TestIterateFilterFailure(t *testing.T) {
	ta, plugin := newLoopTestAgent(t)
	ta.source.set("tap1")
	ta.sgAgent.setupErr = errors.New("firewall driver failed")
	plugin.EXPECT().TunnelSync(gomock.Any(), gomock.Any(), testHost).Return(nil).Times(2)

	topologyResync, _ := ta.iterate(true, true)
	require.True(t, topologyResync)
	// ports are not wired without their filters
	require.Zero(t, ta.bridge.count("CheckInPortAddLocalPort"))
}

func TestIterateRetriesFailedUnbind(t *testing.T) {
	ta, _ := newLoopTestAgent(t)
	available := ta.vlanPool.available()
	// tap1 is bound but no longer on the bridge
	require.NoError(t, ta.portBound(portWithMAC("tap1", 1, "fa:16:3e:00:00:01"), "net1", util.NetworkTypeLocal, nil, nil))

	ta.bridge.errs["CheckInPortDeletePort"] = errors.New("connection refused")
	topologyResync, _ := ta.iterate(false, false)
	require.True(t, topologyResync)
	require.Contains(t, ta.localVlanMap, "net1")

	delete(ta.bridge.errs, "CheckInPortDeletePort")
	topologyResync, _ = ta.iterate(true, false)
	require.False(t, topologyResync)
	require.NotContains(t, ta.localVlanMap, "net1")
	require.Empty(t, ta.bridge.checkIn)
	require.Equal(t, available, ta.vlanPool.available())
}

type panickingPortSource struct{}

func (panickingPortSource) TenantPorts() (map[string]*ports.Port, error) {
	panic("ovsdb cache corrupted")
}

func TestIterateRecoversPanic(t *testing.T) {
	ta, _ := newLoopTestAgent(t)
	ta.enableTunneling = false
	ta.portSource = panickingPortSource{}
	ta.PortUpdate("1")

	topologyResync, _ := ta.iterate(false, false)
	require.True(t, topologyResync)
	require.Equal(t, []string{"tap1"}, ta.swapUpdatedPorts().List())
}

func TestSleep(t *testing.T) {
	ta, _ := newLoopTestAgent(t)
	ta.config.PollingInterval = 50 * time.Millisecond
	require.NoError(t, ta.portBound(portWithMAC("tap1", 1, "fa:16:3e:00:00:01"), "net1", util.NetworkTypeLocal, nil, nil))
	vlan := ta.localVlanMap["net1"].Vlan

	require.NoError(t, ta.FdbAdd(fdbEntries("net1", util.NetworkTypeLocal, map[string][]request.PortInfo{
		"10.0.0.2": {{MAC: "fa:16:3e:00:00:02", IP: "10.10.0.2"}},
	})))
	require.True(t, ta.sleep(context.Background(), 0))
	require.Equal(t, "fa:16:3e:00:00:02", ta.arp.entries[vlan]["10.10.0.2"])

	// slippage
	require.True(t, ta.sleep(context.Background(), time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.False(t, ta.sleep(ctx, 0))
	require.False(t, ta.sleep(ctx, time.Second))
}

func TestRun(t *testing.T) {
	ta, plugin := newLoopTestAgent(t)
	ta.config.PollingInterval = 10 * time.Millisecond
	ta.config.ReportInterval = 0
	plugin.EXPECT().TunnelSync(gomock.Any(), gomock.Any(), testHost).Return(nil).Times(2)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	ta.Run(ctx)
	require.Positive(t, ta.iterNum)
}
