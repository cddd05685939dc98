package agent

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"k8s.io/klog/v2"

	"github.com/kubeovn/ofagent/pkg/ovs"
	"github.com/kubeovn/ofagent/pkg/request"
	"github.com/kubeovn/ofagent/pkg/util"
)

const (
	fdbOpAdd    = "add"
	fdbOpRemove = "remove"
	fdbOpUpdate = "update"
)

var ErrFdbQueueFull = errors.New("fdb queue is full")

type fdbEvent struct {
	op      string
	entries request.FdbEntries
	update  *request.FdbUpdate
}

func (a *Agent) enqueueFdb(evt fdbEvent) error {
	select {
	case a.fdbQueue <- evt:
		klog.V(5).Infof("fdb %s event queued", evt.op)
		return nil
	default:
		klog.Warningf("dropping fdb %s event: %v", evt.op, ErrFdbQueueFull)
		return ErrFdbQueueFull
	}
}

// FdbAdd queues fdb entries to add, they are applied by the control loop
func (a *Agent) FdbAdd(entries request.FdbEntries) error {
	return a.enqueueFdb(fdbEvent{op: fdbOpAdd, entries: entries})
}

// FdbRemove queues fdb entries to remove
func (a *Agent) FdbRemove(entries request.FdbEntries) error {
	return a.enqueueFdb(fdbEvent{op: fdbOpRemove, entries: entries})
}

// FdbUpdate queues an ip address change of remote ports
func (a *Agent) FdbUpdate(update *request.FdbUpdate) error {
	return a.enqueueFdb(fdbEvent{op: fdbOpUpdate, update: update})
}

// drainFdbQueue applies the pending fdb events without blocking
func (a *Agent) drainFdbQueue() {
	for {
		select {
		case evt := <-a.fdbQueue:
			a.handleFdbEvent(evt)
		default:
			return
		}
	}
}

func (a *Agent) handleFdbEvent(evt fdbEvent) {
	fdbEvents.WithLabelValues(evt.op).Inc()
	var err error
	switch evt.op {
	case fdbOpAdd:
		err = a.fdbAdd(evt.entries)
	case fdbOpRemove:
		err = a.fdbRemove(evt.entries)
	case fdbOpUpdate:
		err = a.fdbUpdate(evt.update)
	}
	if err != nil {
		klog.Errorf("failed to handle fdb %s event: %v", evt.op, err)
	}
}

type agentPorts struct {
	lvm   *LocalVlanMapping
	ports map[string][]request.PortInfo
}

// getAgentPorts returns the entries of networks known locally
func (a *Agent) getAgentPorts(entries request.FdbEntries) []agentPorts {
	var result []agentPorts
	for _, netUUID := range slices.Sorted(maps.Keys(entries)) {
		lvm, ok := a.localVlanMap[netUUID]
		if !ok {
			continue
		}
		result = append(result, agentPorts{lvm: lvm, ports: maps.Clone(entries[netUUID].Ports)})
	}
	return result
}

func (a *Agent) isTunnelType(networkType string) bool {
	return slices.Contains(a.config.TunnelTypes, networkType)
}

func (a *Agent) fdbAdd(entries request.FdbEntries) error {
	var errs []error
	for _, ap := range a.getAgentPorts(entries) {
		if !a.isTunnelType(ap.lvm.NetworkType) {
			errs = append(errs, a.fdbAddArp(ap.lvm, ap.ports))
			continue
		}
		if local, ok := ap.ports[a.config.LocalIP]; ok {
			delete(ap.ports, a.config.LocalIP)
			errs = append(errs, a.fdbAddArp(ap.lvm, map[string][]request.PortInfo{a.config.LocalIP: local}))
		}
		if len(ap.ports) != 0 {
			errs = append(errs, a.fdbAddTun(ap.lvm, ap.ports))
		}
	}
	return errors.Join(errs...)
}

func (a *Agent) fdbRemove(entries request.FdbEntries) error {
	var errs []error
	for _, ap := range a.getAgentPorts(entries) {
		if !a.isTunnelType(ap.lvm.NetworkType) {
			errs = append(errs, a.fdbRemoveArp(ap.lvm, ap.ports))
			continue
		}
		if local, ok := ap.ports[a.config.LocalIP]; ok {
			delete(ap.ports, a.config.LocalIP)
			errs = append(errs, a.fdbRemoveArp(ap.lvm, map[string][]request.PortInfo{a.config.LocalIP: local}))
		}
		if len(ap.ports) != 0 {
			errs = append(errs, a.fdbRemoveTun(ap.lvm, ap.ports))
		}
	}
	return errors.Join(errs...)
}

func (a *Agent) fdbAddArp(lvm *LocalVlanMapping, ports map[string][]request.PortInfo) error {
	var errs []error
	for _, portInfos := range ports {
		for _, pi := range portInfos {
			if pi.IsFlooding() {
				continue
			}
			errs = append(errs, a.arp.AddEntry(lvm.Vlan, pi.IP, pi.MAC))
		}
	}
	return errors.Join(errs...)
}

func (a *Agent) fdbRemoveArp(lvm *LocalVlanMapping, ports map[string][]request.PortInfo) error {
	var errs []error
	for _, portInfos := range ports {
		for _, pi := range portInfos {
			if pi.IsFlooding() {
				continue
			}
			errs = append(errs, a.arp.RemoveEntry(lvm.Vlan, pi.IP))
		}
	}
	return errors.Join(errs...)
}

// fdbAddTun sets up the tunnel port on demand and programs the entries of every peer
func (a *Agent) fdbAddTun(lvm *LocalVlanMapping, ports map[string][]request.PortInfo) error {
	var errs []error
	for _, remoteIP := range slices.Sorted(maps.Keys(ports)) {
		ofport, ok := a.tunOfports[lvm.NetworkType]
		if !ok {
			if ofport = a.setupTunnelPort(lvm.NetworkType); ofport == 0 {
				continue
			}
		}
		for _, pi := range ports[remoteIP] {
			errs = append(errs, a.addFdbFlow(pi, remoteIP, lvm, ofport))
		}
	}
	return errors.Join(errs...)
}

func (a *Agent) fdbRemoveTun(lvm *LocalVlanMapping, ports map[string][]request.PortInfo) error {
	var errs []error
	for _, remoteIP := range slices.Sorted(maps.Keys(ports)) {
		ofport, ok := a.tunOfports[lvm.NetworkType]
		if !ok {
			continue
		}
		for _, pi := range ports[remoteIP] {
			errs = append(errs, a.delFdbFlow(pi, remoteIP, lvm, ofport))
			if pi.IsFlooding() {
				a.cleanupTunnelPort(ofport, lvm.NetworkType)
			}
		}
	}
	return errors.Join(errs...)
}

func (a *Agent) checkTunnelOfport(lvm *LocalVlanMapping, ofport int32) error {
	if expected, ok := a.tunOfports[lvm.NetworkType]; !ok || expected != ofport {
		return fmt.Errorf("%w: %s tunnel ofport %d, got %d", ErrTunnelOfportMismatch, lvm.NetworkType, expected, ofport)
	}
	return nil
}

func (a *Agent) addFdbFlow(pi request.PortInfo, remoteIP string, lvm *LocalVlanMapping, ofport int32) error {
	if err := a.checkTunnelOfport(lvm, ofport); err != nil {
		return err
	}
	if pi.IsFlooding() {
		lvm.TunRemoteIPs.Add(remoteIP)
		table, _ := ovs.TunnelFloodTable(lvm.NetworkType)
		return a.bridge.InstallTunnelOutput(table, lvm.Vlan, lvm.segment(), ofport, sortedList(lvm.TunRemoteIPs), true, "")
	}
	if err := a.arp.AddEntry(lvm.Vlan, pi.IP, pi.MAC); err != nil {
		return err
	}
	return a.bridge.InstallTunnelOutput(ovs.TableTunnelOut, lvm.Vlan, lvm.segment(), ofport, []string{remoteIP}, false, pi.MAC)
}

func (a *Agent) delFdbFlow(pi request.PortInfo, remoteIP string, lvm *LocalVlanMapping, ofport int32) error {
	if err := a.checkTunnelOfport(lvm, ofport); err != nil {
		return err
	}
	if pi.IsFlooding() {
		if !lvm.TunRemoteIPs.Has(remoteIP) {
			// ignore unknown addresses
			return nil
		}
		lvm.TunRemoteIPs.Remove(remoteIP)
		table, _ := ovs.TunnelFloodTable(lvm.NetworkType)
		if !lvm.TunRemoteIPs.IsEmpty() {
			return a.bridge.InstallTunnelOutput(table, lvm.Vlan, lvm.segment(), ofport, sortedList(lvm.TunRemoteIPs), true, "")
		}
		return a.bridge.DeleteTunnelOutput(table, lvm.Vlan, "")
	}
	if err := a.arp.RemoveEntry(lvm.Vlan, pi.IP); err != nil {
		return err
	}
	return a.bridge.DeleteTunnelOutput(ovs.TableTunnelOut, lvm.Vlan, pi.MAC)
}

// fdbUpdate applies ip address changes of remote ports to the ARP responder
func (a *Agent) fdbUpdate(update *request.FdbUpdate) error {
	if update == nil {
		return nil
	}
	var errs []error
	for _, netUUID := range slices.Sorted(maps.Keys(update.ChgIP)) {
		lvm, ok := a.localVlanMap[netUUID]
		if !ok {
			continue
		}
		for agentIP, state := range update.ChgIP[netUUID] {
			if agentIP == a.config.LocalIP {
				continue
			}
			for _, pi := range state.After {
				errs = append(errs, a.setupEntryForArpReply(fdbOpAdd, lvm.Vlan, pi.MAC, pi.IP))
			}
			for _, pi := range state.Before {
				errs = append(errs, a.setupEntryForArpReply(fdbOpRemove, lvm.Vlan, pi.MAC, pi.IP))
			}
		}
	}
	return errors.Join(errs...)
}

func (a *Agent) setupEntryForArpReply(action string, vlan int, mac, ip string) error {
	switch action {
	case fdbOpAdd:
		return a.arp.AddEntry(vlan, ip, mac)
	case fdbOpRemove:
		return a.arp.RemoveEntry(vlan, ip)
	}
	return nil
}

func tunnelPortName(networkType string) string {
	return util.TunnelPortPrefix + networkType
}

// setupTunnelPort creates the tunnel port of the network type. It returns 0
// when the port can not be set up.
func (a *Agent) setupTunnelPort(networkType string) int32 {
	// the tunnel port is created with local_ip 0 so the local ip is part of
	// the classification rule instead
	ofport, err := a.bridge.AddTunnelPort(tunnelPortName(networkType), "flow", "0", networkType, a.config.VxlanUDPPort, a.config.DontFragment)
	if err != nil || ofport == util.InvalidOfport {
		klog.Errorf("failed to set-up %s tunnel port: %v", networkType, err)
		return 0
	}
	a.tunOfports[networkType] = ofport
	if err = a.bridge.CheckInPortAddTunnelPort(networkType, ofport, a.config.LocalIP); err != nil {
		klog.Errorf("failed to add classification rule of %s tunnel port %d: %v", networkType, ofport, err)
	}
	return ofport
}

// cleanupTunnelPort keeps the port, one tunnel port serves every peer of the type
func (a *Agent) cleanupTunnelPort(int32, string) {}
