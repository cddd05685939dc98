//go:generate go tool mockgen -destination=../../mocks/pkg/agent/interface.go -package=agent . PluginAPI

package agent

import (
	"github.com/scylladb/go-set/strset"

	"github.com/kubeovn/ofagent/pkg/monitor"
	"github.com/kubeovn/ofagent/pkg/ports"
	"github.com/kubeovn/ofagent/pkg/request"
)

// Bridge programs the integration bridge
type Bridge interface {
	SetupDefaultTables() error
	LocalPortMAC() (string, error)
	AddPhysicalPort(name string) (int32, error)
	AddTunnelPort(name, remoteIP, localIP, tunnelType string, vxlanUDPPort int, dontFragment bool) (int32, error)

	CheckInPortAddLocalPort(vlan int, ofport int32) error
	CheckInPortDeletePort(ofport int32) error
	CheckInPortAddTunnelPort(tunnelType string, ofport int32, localIP string) error

	LocalFloodUpdate(vlan int, ofports []int32, floodUnicast bool) error
	LocalOutAddPort(vlan int, ofport int32, mac string) error
	LocalOutDeletePort(vlan int, mac string) error

	InstallTunnelOutput(table, vlan, segmentationID int, ofport int32, remoteIPs []string, gotoNext bool, ethDst string) error
	DeleteTunnelOutput(table, vlan int, ethDst string) error

	ProvisionTenantTunnel(networkType string, vlan, segmentationID int) error
	ReclaimTenantTunnel(networkType string, vlan, segmentationID int) error
	ProvisionTenantPhysnet(networkType string, vlan, segmentationID int, physOfport int32) error
	ReclaimTenantPhysnet(networkType string, vlan, segmentationID int, physOfport int32) error
}

// ArpTable is the ARP responder table of the bridge
type ArpTable interface {
	AddEntry(vlan int, ip, mac string) error
	RemoveEntry(vlan int, ip string) error
	ForgetVlan(vlan int)
}

// PortSource lists the tenant ports attached to the bridge keyed by canonical name
type PortSource interface {
	TenantPorts() (map[string]*ports.Port, error)
}

// PortStatusSource buffers port status events between two cycles
type PortStatusSource interface {
	Drain() []monitor.PortStatusEvent
}

// PluginAPI is the control plane
type PluginAPI interface {
	GetDeviceDetails(device, agentID, host string) (*request.DeviceDetails, error)
	UpdateDeviceUp(device, agentID, host string) error
	UpdateDeviceDown(device, agentID, host string) error
	TunnelSync(tunnelIP, tunnelType, host string) error
	ReportState(state *request.AgentState) error
}

// SecurityGroupAgent applies security group filters on devices
type SecurityGroupAgent interface {
	SetupPortFilters(added, updated *strset.Set) error
	RemoveDevicesFilter(devices *strset.Set)
	FirewallRefreshNeeded() bool
	SecurityGroupsRuleUpdated(securityGroups []string)
	SecurityGroupsMemberUpdated(securityGroups []string)
	SecurityGroupsProviderUpdated(devices []string)
}
