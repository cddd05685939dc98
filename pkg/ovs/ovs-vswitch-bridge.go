package ovs

import (
	"fmt"
	"net"
	"strings"

	"k8s.io/klog/v2"

	"github.com/kubeovn/ofagent/pkg/ovsdb/vswitch"
)

// ListBridge lists ovs bridges
func (c *VswitchClient) ListBridge(filter func(bridge *vswitch.Bridge) bool) ([]vswitch.Bridge, error) {
	ctx, cancel := c.context()
	defer cancel()

	var bridgeList []vswitch.Bridge
	if err := c.WhereCache(func(bridge *vswitch.Bridge) bool {
		if filter != nil {
			return filter(bridge)
		}
		return true
	}).List(ctx, &bridgeList); err != nil {
		klog.Error(err)
		return nil, fmt.Errorf("failed to list bridge: %w", err)
	}

	return bridgeList, nil
}

// GetBridge returns the bridge with the given name
func (c *VswitchClient) GetBridge(name string) (*vswitch.Bridge, error) {
	bridges, err := c.ListBridge(func(bridge *vswitch.Bridge) bool {
		return bridge.Name == name
	})
	if err != nil {
		return nil, err
	}
	if len(bridges) == 0 {
		return nil, fmt.Errorf("bridge %s not found", name)
	}
	return &bridges[0], nil
}

// BridgeExists checks whether the bridge is in the cache
func (c *VswitchClient) BridgeExists(name string) (bool, error) {
	bridges, err := c.ListBridge(func(bridge *vswitch.Bridge) bool {
		return bridge.Name == name
	})
	if err != nil {
		return false, err
	}
	return len(bridges) != 0, nil
}

// DatapathID returns the datapath id of the bridge, empty until ovs-vswitchd attaches it
func (c *VswitchClient) DatapathID(bridge string) (string, error) {
	br, err := c.GetBridge(bridge)
	if err != nil {
		return "", err
	}
	if br.DatapathID == nil {
		return "", nil
	}
	return strings.TrimSpace(*br.DatapathID), nil
}

// LocalPortMAC returns the mac address of the bridge local port
func (c *VswitchClient) LocalPortMAC(bridge string) (net.HardwareAddr, error) {
	ifaces, err := c.ListInterface(func(iface *vswitch.Interface) bool {
		return iface.Name == bridge && iface.Type == "internal"
	})
	if err != nil {
		return nil, err
	}
	if len(ifaces) == 0 || ifaces[0].MACInUse == nil {
		return nil, fmt.Errorf("mac address of bridge %s local port is not available", bridge)
	}
	mac, err := net.ParseMAC(*ifaces[0].MACInUse)
	if err != nil {
		return nil, fmt.Errorf("failed to parse mac address %q of bridge %s: %w", *ifaces[0].MACInUse, bridge, err)
	}
	return mac, nil
}
