package monitor

import (
	"sync"

	"k8s.io/klog/v2"

	"github.com/kubeovn/ofagent/pkg/ports"
)

type PortStatusReason int

const (
	PortAdded PortStatusReason = iota
	PortDeleted
	PortModified
)

func (r PortStatusReason) String() string {
	switch r {
	case PortAdded:
		return "add"
	case PortDeleted:
		return "del"
	case PortModified:
		return "modify"
	default:
		return "unknown"
	}
}

// PortStatusEvent is a port status notification received from the switch.
// Name is the canonical name of the port.
type PortStatusEvent struct {
	Reason PortStatusReason
	Port   *ports.Port
	Name   string
}

// Monitor buffers port deletion notifications between two polling cycles
type Monitor struct {
	mutex  sync.Mutex
	events []PortStatusEvent
}

func NewMonitor() *Monitor {
	return &Monitor{}
}

// OnSwitchEvent buffers deletions of tenant ports and drops anything else
func (m *Monitor) OnSwitchEvent(reason PortStatusReason, port *ports.Port) {
	if reason != PortDeleted {
		klog.Infof("received illegal port status reason %s for port %s", reason, port)
		return
	}
	if !port.IsTenantPort() {
		return
	}

	evt := PortStatusEvent{Reason: reason, Port: port, Name: port.CanonicalName()}
	klog.V(3).Infof("port status reason: %s name: %s port: %s", evt.Reason, evt.Name, evt.Port)

	m.mutex.Lock()
	m.events = append(m.events, evt)
	m.mutex.Unlock()
}

// Drain returns the buffered events and empties the buffer
func (m *Monitor) Drain() []PortStatusEvent {
	m.mutex.Lock()
	events := m.events
	m.events = nil
	m.mutex.Unlock()

	klog.V(3).Infof("drained %d port status events", len(events))
	return events
}
