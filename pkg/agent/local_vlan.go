package agent

import (
	"errors"
	"fmt"
	"slices"

	"github.com/scylladb/go-set/strset"
	"k8s.io/klog/v2"

	"github.com/kubeovn/ofagent/pkg/ports"
	"github.com/kubeovn/ofagent/pkg/util"
)

// isConfigurationError reports errors that leave a network allocated but
// unprogrammed, they are only logged
func isConfigurationError(err error) bool {
	return errors.Is(err, ErrTunnelingDisabled) || errors.Is(err, ErrNoPhysicalPort) || errors.Is(err, ErrUnknownNetworkType)
}

// provisionLocalVlan allocates a local vlan for the network and programs the
// bridge according to the network type. The mapping is kept when the bridge
// can not be programmed.
func (a *Agent) provisionLocalVlan(netUUID, networkType string, physicalNetwork *string, segmentationID *int) error {
	vlan, err := a.vlanPool.allocate()
	if err != nil {
		klog.Errorf("no local vlan available for net-id=%s", netUUID)
		return err
	}
	klog.Infof("assigning %d as local vlan for net-id=%s", vlan, netUUID)
	lvm := newLocalVlanMapping(vlan, networkType, physicalNetwork, segmentationID)
	a.localVlanMap[netUUID] = lvm
	localVlans.Set(float64(len(a.localVlanMap)))

	switch networkType {
	case util.NetworkTypeGre, util.NetworkTypeVxlan:
		if !a.enableTunneling {
			klog.Errorf("cannot provision %s network for net-id=%s - tunneling disabled", networkType, netUUID)
			return fmt.Errorf("cannot provision %s network for net-id=%s: %w", networkType, netUUID, ErrTunnelingDisabled)
		}
		return a.bridge.ProvisionTenantTunnel(networkType, vlan, lvm.segment())
	case util.NetworkTypeVlan, util.NetworkTypeFlat:
		ofport, ok := a.intOfports[lvm.physnet()]
		if !ok {
			klog.Errorf("cannot provision %s network for net-id=%s - no bridge for physical_network %s", networkType, netUUID, lvm.physnet())
			return fmt.Errorf("cannot provision %s network for net-id=%s: %w %q", networkType, netUUID, ErrNoPhysicalPort, lvm.physnet())
		}
		return a.bridge.ProvisionTenantPhysnet(networkType, vlan, lvm.segment(), ofport)
	case util.NetworkTypeLocal:
		// no flows needed for local networks
		return nil
	default:
		klog.Errorf("cannot provision unknown network type %s for net-id=%s", networkType, netUUID)
		return fmt.Errorf("cannot provision net-id=%s: %w %q", netUUID, ErrUnknownNetworkType, networkType)
	}
}

// reclaimLocalVlan removes the flows of the network and returns its local vlan.
// The mapping is kept when the bridge can not be de-programmed so that
// cleanupLocalVlans retries it.
func (a *Agent) reclaimLocalVlan(netUUID string) error {
	lvm, ok := a.localVlanMap[netUUID]
	if !ok {
		klog.V(3).Infof("network %s not used on agent", netUUID)
		return nil
	}
	klog.Infof("reclaiming vlan = %d from net-id = %s", lvm.Vlan, netUUID)

	var err error
	switch lvm.NetworkType {
	case util.NetworkTypeGre, util.NetworkTypeVxlan:
		if a.enableTunneling {
			err = a.bridge.ReclaimTenantTunnel(lvm.NetworkType, lvm.Vlan, lvm.segment())
		}
	case util.NetworkTypeVlan, util.NetworkTypeFlat:
		if ofport, ok := a.intOfports[lvm.physnet()]; ok {
			err = a.bridge.ReclaimTenantPhysnet(lvm.NetworkType, lvm.Vlan, lvm.segment(), ofport)
		}
	case util.NetworkTypeLocal:
		// no flows needed for local networks
	default:
		klog.Errorf("cannot reclaim unknown network type %s for net-id=%s", lvm.NetworkType, netUUID)
	}
	if err != nil {
		klog.Errorf("failed to reclaim vlan %d of net-id=%s: %v", lvm.Vlan, netUUID, err)
		return err
	}

	delete(a.localVlanMap, netUUID)
	localVlans.Set(float64(len(a.localVlanMap)))
	a.arp.ForgetVlan(lvm.Vlan)
	if err = a.vlanPool.release(lvm.Vlan); err != nil {
		klog.Error(err)
		return err
	}
	return nil
}

// cleanupLocalVlans unbinds the ports that are no longer on the bridge and
// finishes the reclaims and flood updates that failed earlier
func (a *Agent) cleanupLocalVlans(current *strset.Set) error {
	netUUIDs := make([]string, 0, len(a.localVlanMap))
	for netUUID := range a.localVlanMap {
		netUUIDs = append(netUUIDs, netUUID)
	}
	slices.Sort(netUUIDs)

	for _, netUUID := range netUUIDs {
		var stale []string
		for vifID := range a.localVlanMap[netUUID].VifPorts {
			if !current.Has(vifID) {
				stale = append(stale, vifID)
			}
		}
		slices.Sort(stale)
		for _, vifID := range stale {
			klog.Infof("unbinding port %s of net-id=%s which left the bridge", vifID, netUUID)
			if err := a.portUnbound(vifID, netUUID); err != nil {
				return err
			}
		}

		lvm, ok := a.localVlanMap[netUUID]
		switch {
		case !ok:
		case len(lvm.VifPorts) == 0:
			if err := a.reclaimLocalVlan(netUUID); err != nil {
				return err
			}
		case lvm.floodStale:
			if err := a.updateLocalFlood(lvm); err != nil {
				return err
			}
		}
	}
	return nil
}

// updateLocalFlood reinstalls the flood rule of the vlan from its current members
func (a *Agent) updateLocalFlood(lvm *LocalVlanMapping) error {
	// if any of vif mac is unknown, flood unicasts as well
	floodUnicast := false
	ofports := make([]int32, 0, len(lvm.VifPorts))
	for _, vp := range lvm.VifPorts {
		if !vp.HasMAC() {
			floodUnicast = true
		}
		ofports = append(ofports, vp.Ofport)
	}
	slices.Sort(ofports)
	err := a.bridge.LocalFloodUpdate(lvm.Vlan, ofports, floodUnicast)
	lvm.floodStale = err != nil
	return err
}

// portBound binds the port to the network and installs the flows delivering
// traffic to it
func (a *Agent) portBound(port *ports.Port, netUUID, networkType string, physicalNetwork *string, segmentationID *int) error {
	if _, ok := a.localVlanMap[netUUID]; !ok {
		if err := a.provisionLocalVlan(netUUID, networkType, physicalNetwork, segmentationID); err != nil && !isConfigurationError(err) {
			return err
		}
	}
	lvm := a.localVlanMap[netUUID]

	lvm.VifPorts[port.CanonicalName()] = port
	if err := a.bridge.CheckInPortAddLocalPort(lvm.Vlan, port.Ofport); err != nil {
		return err
	}
	if err := a.updateLocalFlood(lvm); err != nil {
		return err
	}
	if !port.HasMAC() {
		return nil
	}
	return a.bridge.LocalOutAddPort(lvm.Vlan, port.Ofport, *port.MAC)
}

// portUnbound unbinds the port and reclaims the network when it was the last one
func (a *Agent) portUnbound(vifID, netUUID string) error {
	if netUUID == "" {
		netUUID = a.getNetUUID(vifID)
	}
	lvm, ok := a.localVlanMap[netUUID]
	if !ok {
		klog.Infof("port_unbound() net_uuid %s not in local_vlan_map", netUUID)
		return nil
	}
	port, ok := lvm.VifPorts[vifID]
	if !ok {
		klog.Infof("port %s is not bound to net-id=%s", vifID, netUUID)
		return nil
	}

	// the port stays a member until its flows are removed
	if err := a.bridge.CheckInPortDeletePort(port.Ofport); err != nil {
		return err
	}
	if port.HasMAC() {
		if err := a.bridge.LocalOutDeletePort(lvm.Vlan, *port.MAC); err != nil {
			return err
		}
	}
	delete(lvm.VifPorts, vifID)

	if len(lvm.VifPorts) == 0 {
		return a.reclaimLocalVlan(netUUID)
	}
	return a.updateLocalFlood(lvm)
}

// portDead stops forwarding on the port without telling the control plane.
// netUUID is empty when the network is unknown.
func (a *Agent) portDead(port *ports.Port, netUUID string) error {
	if err := a.bridge.CheckInPortDeletePort(port.Ofport); err != nil {
		return err
	}
	if !port.HasMAC() || netUUID == "" {
		return nil
	}
	if lvm, ok := a.localVlanMap[netUUID]; ok {
		return a.bridge.LocalOutDeletePort(lvm.Vlan, *port.MAC)
	}
	return nil
}

// repairOfportChange removes the flows of a port whose ofport was reused
func (a *Agent) repairOfportChange(port *ports.Port, netUUID string) error {
	lvm, ok := a.localVlanMap[netUUID]
	if !ok {
		klog.Infof("_repair_ofport_change() net_uuid %s not in local_vlan_map", netUUID)
		return nil
	}
	if err := a.bridge.CheckInPortDeletePort(port.Ofport); err != nil {
		return err
	}
	if !port.HasMAC() {
		return nil
	}
	return a.bridge.LocalOutDeletePort(lvm.Vlan, *port.MAC)
}

// getNetUUID returns the network the vif is bound to, empty if none
func (a *Agent) getNetUUID(vifID string) string {
	for netUUID, lvm := range a.localVlanMap {
		if _, ok := lvm.VifPorts[vifID]; ok {
			return netUUID
		}
	}
	return ""
}

// setupPhysicalInterfaces attaches the physical interfaces to the bridge
func (a *Agent) setupPhysicalInterfaces() error {
	for physnet, iface := range a.config.InterfaceMappings {
		ofport, err := a.bridge.AddPhysicalPort(iface)
		if err != nil {
			return fmt.Errorf("failed to add interface %s of physical network %s: %w", iface, physnet, err)
		}
		klog.Infof("attached interface %s of physical network %s at ofport %d", iface, physnet, ofport)
		a.intOfports[physnet] = ofport
	}
	return nil
}
