package agent

import (
	"fmt"

	"github.com/scylladb/go-set/strset"
	"k8s.io/klog/v2"

	"github.com/kubeovn/ofagent/pkg/monitor"
	"github.com/kubeovn/ofagent/pkg/util"
)

// PortDelta is the result of a scan, every set is present and possibly empty
type PortDelta struct {
	Current *strset.Set
	Added   *strset.Set
	Removed *strset.Set
	Updated *strset.Set
}

func (d *PortDelta) HasChanges() bool {
	return !d.Added.IsEmpty() || !d.Removed.IsEmpty() || !d.Updated.IsEmpty()
}

func (d *PortDelta) String() string {
	return fmt.Sprintf("current: %v, added: %v, removed: %v, updated: %v",
		d.Current.List(), d.Added.List(), d.Removed.List(), d.Updated.List())
}

// scanPorts compares the tenant ports on the bridge with the registered ones
func (a *Agent) scanPorts(registered, updated *strset.Set) (*PortDelta, error) {
	live, err := a.portSource.TenantPorts()
	if err != nil {
		return nil, util.LogErrorf(err, "failed to list ports of bridge %s", a.config.IntegrationBridge)
	}
	current := strset.NewWithSize(len(live))
	for name := range live {
		current.Add(name)
	}
	a.setDeviceCount(current.Size())

	delta := &PortDelta{
		Current: current,
		Added:   strset.New(),
		Removed: strset.New(),
		Updated: strset.New(),
	}
	if updated != nil && !updated.IsEmpty() {
		// updated ports might have been removed in the meanwhile
		delta.Updated = strset.Intersection(updated, current)
	}
	if current.IsEqual(registered) {
		return delta, nil
	}
	delta.Added = strset.Difference(current, registered)
	delta.Removed = strset.Difference(registered, current)
	return delta, nil
}

// checkPortStatusList folds ports reported deleted but still present on the
// bridge into the updated set and returns them keyed by name. Such a port was
// replaced by a new one with the same name and possibly another ofport.
func checkPortStatusList(events []monitor.PortStatusEvent, delta *PortDelta) map[string]monitor.PortStatusEvent {
	checkPorts := make(map[string]monitor.PortStatusEvent)
	for _, evt := range events {
		if delta.Current.Has(evt.Name) {
			checkPorts[evt.Name] = evt
		}
	}
	if len(checkPorts) == 0 {
		return checkPorts
	}
	names := make([]string, 0, len(checkPorts))
	for name := range checkPorts {
		names = append(names, name)
	}
	klog.V(3).Infof("agent daemon loop check ports: %v", names)
	delta.Updated.Add(names...)
	return checkPorts
}
