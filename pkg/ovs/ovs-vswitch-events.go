package ovs

import (
	"github.com/ovn-kubernetes/libovsdb/cache"
	"github.com/ovn-kubernetes/libovsdb/model"
	"k8s.io/klog/v2"

	"github.com/kubeovn/ofagent/pkg/monitor"
	"github.com/kubeovn/ofagent/pkg/ovsdb/vswitch"
	"github.com/kubeovn/ofagent/pkg/ports"
)

// PortEventHandler receives port status notifications
type PortEventHandler interface {
	OnSwitchEvent(reason monitor.PortStatusReason, port *ports.Port)
}

// WatchPortStatus forwards interface deletions to the handler, mirroring an
// OpenFlow port status mask that only carries deletions. Deletions on every
// bridge are forwarded: the row is gone from the cache by then, so its bridge
// is unknown. Interface names are unique across bridges and the agent only
// keeps events naming a port currently on the integration bridge.
func (c *VswitchClient) WatchPortStatus(handler PortEventHandler) {
	c.Cache().AddEventHandler(newPortEventHandler(handler))
}

func newPortEventHandler(handler PortEventHandler) *cache.EventHandlerFuncs {
	return &cache.EventHandlerFuncs{
		AddFunc: func(table string, _ model.Model) {
			if table == vswitch.InterfaceTable {
				ovsdbPortEvents.WithLabelValues(monitor.PortAdded.String()).Inc()
			}
		},
		UpdateFunc: func(table string, _, _ model.Model) {
			if table == vswitch.InterfaceTable {
				ovsdbPortEvents.WithLabelValues(monitor.PortModified.String()).Inc()
			}
		},
		DeleteFunc: func(table string, row model.Model) {
			if table != vswitch.InterfaceTable {
				return
			}
			iface, ok := row.(*vswitch.Interface)
			if !ok {
				klog.Warningf("unexpected row %T in table %s", row, table)
				return
			}
			ovsdbPortEvents.WithLabelValues(monitor.PortDeleted.String()).Inc()
			handler.OnSwitchEvent(monitor.PortDeleted, ports.FromInterface(iface.Name, interfaceOfport(iface)))
		},
	}
}
