package ovs

import (
	"sync"

	"k8s.io/klog/v2"
)

type arpInstaller interface {
	InstallARPResponder(vlan int, ip, mac string) error
	DeleteARPResponder(vlan int, ip string) error
}

// ArpResponder keeps the ip to mac table of every local vlan and mirrors it
// into the ARP responder table of the bridge
type ArpResponder struct {
	bridge arpInstaller

	mutex sync.Mutex
	table map[int]map[string]string
}

func NewArpResponder(bridge arpInstaller) *ArpResponder {
	return &ArpResponder{bridge: bridge, table: make(map[int]map[string]string)}
}

// AddEntry adds or replaces the entry of ip on the vlan
func (a *ArpResponder) AddEntry(vlan int, ip, mac string) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	entries := a.table[vlan]
	if entries[ip] == mac {
		return nil
	}
	if err := a.bridge.InstallARPResponder(vlan, ip, mac); err != nil {
		klog.Errorf("failed to install arp responder for %s on vlan %d: %v", ip, vlan, err)
		return err
	}
	if entries == nil {
		entries = make(map[string]string)
		a.table[vlan] = entries
	}
	entries[ip] = mac
	klog.V(3).Infof("added arp entry %s -> %s on vlan %d", ip, mac, vlan)
	return nil
}

// RemoveEntry removes the entry of ip on the vlan, unknown entries are ignored
func (a *ArpResponder) RemoveEntry(vlan int, ip string) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	entries := a.table[vlan]
	if _, ok := entries[ip]; !ok {
		return nil
	}
	if err := a.bridge.DeleteARPResponder(vlan, ip); err != nil {
		klog.Errorf("failed to delete arp responder for %s on vlan %d: %v", ip, vlan, err)
		return err
	}
	delete(entries, ip)
	if len(entries) == 0 {
		delete(a.table, vlan)
	}
	klog.V(3).Infof("removed arp entry %s on vlan %d", ip, vlan)
	return nil
}

// ForgetVlan drops the entries of a reclaimed vlan, its flows are removed
// together with the vlan
func (a *ArpResponder) ForgetVlan(vlan int) {
	a.mutex.Lock()
	delete(a.table, vlan)
	a.mutex.Unlock()
}
