package ovs

import (
	"fmt"

	"github.com/scylladb/go-set/strset"
	"k8s.io/klog/v2"

	"github.com/kubeovn/ofagent/pkg/ovsdb/vswitch"
)

// ListPort lists ovs ports
func (c *VswitchClient) ListPort(filter func(port *vswitch.Port) bool) ([]vswitch.Port, error) {
	ctx, cancel := c.context()
	defer cancel()

	var portList []vswitch.Port
	if err := c.WhereCache(func(port *vswitch.Port) bool {
		if filter != nil {
			return filter(port)
		}
		return true
	}).List(ctx, &portList); err != nil {
		klog.Error(err)
		return nil, fmt.Errorf("failed to list port: %w", err)
	}

	return portList, nil
}

// BridgeInterfaceNames returns names of the interfaces attached to the bridge
func (c *VswitchClient) BridgeInterfaceNames(bridge string) (*strset.Set, error) {
	br, err := c.GetBridge(bridge)
	if err != nil {
		return nil, err
	}
	uuids := strset.New(br.Ports...)
	ports, err := c.ListPort(func(port *vswitch.Port) bool {
		return uuids.Has(port.UUID)
	})
	if err != nil {
		return nil, err
	}
	ifaceUUIDs := strset.New()
	for _, port := range ports {
		ifaceUUIDs.Add(port.Interfaces...)
	}
	ifaces, err := c.ListInterface(func(iface *vswitch.Interface) bool {
		return ifaceUUIDs.Has(iface.UUID)
	})
	if err != nil {
		return nil, err
	}
	names := strset.NewWithSize(len(ifaces))
	for _, iface := range ifaces {
		names.Add(iface.Name)
	}
	return names, nil
}
