package securitygroup

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/scylladb/go-set/strset"
	"k8s.io/klog/v2"

	"github.com/kubeovn/ofagent/pkg/request"
)

// PluginAPI fetches the security group rules of devices
type PluginAPI interface {
	SecurityGroupInfoForDevices(devices []string) (*request.SecurityGroupInfo, error)
}

// Agent keeps the firewall in line with the security groups. Notifications
// only record what has to be refreshed, the refresh itself happens in
// SetupPortFilters on the next cycle of the control loop.
type Agent struct {
	plugin   PluginAPI
	firewall Firewall

	mutex sync.Mutex
	// device -> security groups of the filtered devices
	filtered          map[string][]string
	devicesToRefilter *strset.Set
	refreshAll        bool
}

func NewAgent(plugin PluginAPI, firewall Firewall) *Agent {
	if firewall == nil {
		firewall = NoopFirewall{}
	}
	return &Agent{
		plugin:            plugin,
		firewall:          firewall,
		filtered:          make(map[string][]string),
		devicesToRefilter: strset.New(),
	}
}

// devicesInGroups returns the filtered devices member of any of the groups
func (a *Agent) devicesInGroups(securityGroups []string) []string {
	var devices []string
	for device, groups := range a.filtered {
		for _, sg := range groups {
			if slices.Contains(securityGroups, sg) {
				devices = append(devices, device)
				break
			}
		}
	}
	return devices
}

func (a *Agent) SecurityGroupsRuleUpdated(securityGroups []string) {
	klog.Infof("security group rule updated %v", securityGroups)
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.devicesToRefilter.Add(a.devicesInGroups(securityGroups)...)
}

func (a *Agent) SecurityGroupsMemberUpdated(securityGroups []string) {
	klog.Infof("security group member updated %v", securityGroups)
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.devicesToRefilter.Add(a.devicesInGroups(securityGroups)...)
}

// SecurityGroupsProviderUpdated refreshes the given devices, or every device
// when none is given
func (a *Agent) SecurityGroupsProviderUpdated(devices []string) {
	klog.Info("provider rule updated")
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if len(devices) == 0 {
		a.refreshAll = true
		return
	}
	a.devicesToRefilter.Add(devices...)
}

func (a *Agent) FirewallRefreshNeeded() bool {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.refreshAll || !a.devicesToRefilter.IsEmpty()
}

// SetupPortFilters prepares the filters of the added devices and refreshes
// the updated ones along with those pending a refresh
func (a *Agent) SetupPortFilters(added, updated *strset.Set) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	pending, refreshAll := a.devicesToRefilter, a.refreshAll
	a.devicesToRefilter, a.refreshAll = strset.New(), false

	if err := a.setupPortFilters(added, updated, pending, refreshAll); err != nil {
		// retried on the next cycle
		a.devicesToRefilter.Merge(pending)
		a.refreshAll = a.refreshAll || refreshAll
		return err
	}
	return nil
}

func (a *Agent) setupPortFilters(added, updated, pending *strset.Set, refreshAll bool) error {
	if !added.IsEmpty() {
		klog.Infof("preparing filters for devices %v", added.List())
		if err := a.prepareDevicesFilter(added.List()); err != nil {
			return err
		}
	}
	if refreshAll {
		return a.refreshFirewall(nil)
	}
	refilter := strset.Difference(strset.Union(updated, pending), added)
	if refilter.IsEmpty() {
		return nil
	}
	return a.refreshFirewall(refilter.List())
}

func (a *Agent) prepareDevicesFilter(devices []string) error {
	info, err := a.plugin.SecurityGroupInfoForDevices(devices)
	if err != nil {
		return fmt.Errorf("failed to get security group info of devices %v: %w", devices, err)
	}
	var errs []error
	for device, rules := range info.Devices {
		if err = a.firewall.PreparePortFilter(device, rules); err != nil {
			errs = append(errs, err)
			continue
		}
		a.filtered[device] = info.SecurityGroups[device]
	}
	return errors.Join(errs...)
}

// refreshFirewall updates the filters of the devices, every filtered device
// when devices is nil. Devices not filtered yet are ignored.
func (a *Agent) refreshFirewall(devices []string) error {
	if devices == nil {
		for device := range a.filtered {
			devices = append(devices, device)
		}
	} else {
		devices = slices.DeleteFunc(devices, func(device string) bool {
			_, ok := a.filtered[device]
			return !ok
		})
	}
	if len(devices) == 0 {
		return nil
	}
	slices.Sort(devices)
	klog.Infof("refresh firewall rules of %v", devices)

	info, err := a.plugin.SecurityGroupInfoForDevices(devices)
	if err != nil {
		return fmt.Errorf("failed to get security group info of devices %v: %w", devices, err)
	}
	var errs []error
	for device, rules := range info.Devices {
		if err = a.firewall.UpdatePortFilter(device, rules); err != nil {
			errs = append(errs, err)
			continue
		}
		a.filtered[device] = info.SecurityGroups[device]
	}
	return errors.Join(errs...)
}

func (a *Agent) RemoveDevicesFilter(devices *strset.Set) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	for _, device := range devices.List() {
		if _, ok := a.filtered[device]; !ok {
			continue
		}
		klog.Infof("remove device filter for %s", device)
		if err := a.firewall.RemovePortFilter(device); err != nil {
			klog.Errorf("failed to remove filter of device %s: %v", device, err)
		}
		delete(a.filtered, device)
		a.devicesToRefilter.Remove(device)
	}
}
