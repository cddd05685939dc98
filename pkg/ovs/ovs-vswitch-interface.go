package ovs

import (
	"fmt"

	"k8s.io/klog/v2"

	"github.com/kubeovn/ofagent/pkg/ovsdb/vswitch"
	"github.com/kubeovn/ofagent/pkg/ports"
)

// ListInterface lists ovs interfaces
func (c *VswitchClient) ListInterface(filter func(iface *vswitch.Interface) bool) ([]vswitch.Interface, error) {
	ctx, cancel := c.context()
	defer cancel()

	var ifaceList []vswitch.Interface
	if err := c.WhereCache(func(iface *vswitch.Interface) bool {
		if filter != nil {
			return filter(iface)
		}
		return true
	}).List(ctx, &ifaceList); err != nil {
		klog.Error(err)
		return nil, fmt.Errorf("failed to list interface: %w", err)
	}

	return ifaceList, nil
}

func interfaceOfport(iface *vswitch.Interface) int32 {
	if iface.Ofport == nil || *iface.Ofport <= 0 {
		return -1
	}
	return int32(*iface.Ofport)
}

// TenantPorts returns the tenant ports attached to the bridge keyed by canonical name
func (c *VswitchClient) TenantPorts(bridge string) (map[string]*ports.Port, error) {
	names, err := c.BridgeInterfaceNames(bridge)
	if err != nil {
		return nil, err
	}
	ifaces, err := c.ListInterface(func(iface *vswitch.Interface) bool {
		return names.Has(iface.Name) && ports.IsTenantPort(iface.Name)
	})
	if err != nil {
		return nil, err
	}

	result := make(map[string]*ports.Port, len(ifaces))
	for i := range ifaces {
		port := ports.FromInterface(ifaces[i].Name, interfaceOfport(&ifaces[i]))
		result[port.CanonicalName()] = port
	}
	return result, nil
}
