package request

// PortInfo is a (mac, ip) pair of an FDB entry
type PortInfo struct {
	MAC string `json:"mac_address"`
	IP  string `json:"ip_address"`
}

// FloodingEntry stands for "flood to the peer" rather than a concrete port
var FloodingEntry = PortInfo{MAC: "00:00:00:00:00:00", IP: "0.0.0.0"}

func (p PortInfo) IsFlooding() bool {
	return p == FloodingEntry
}

// FdbNetwork holds the FDB entries of one network, keyed by peer agent ip
type FdbNetwork struct {
	NetworkType string                `json:"network_type"`
	SegmentID   *int                  `json:"segment_id,omitempty"`
	Ports       map[string][]PortInfo `json:"ports"`
}

// FdbEntries are keyed by network id
type FdbEntries map[string]FdbNetwork

// IPChange is the ip address change of ports reported by one agent
type IPChange struct {
	Before []PortInfo `json:"before,omitempty"`
	After  []PortInfo `json:"after,omitempty"`
}

// FdbUpdate is the payload of an fdb update notification
type FdbUpdate struct {
	// network id -> agent ip -> change
	ChgIP map[string]map[string]IPChange `json:"chg_ip,omitempty"`
}

// DeviceRequest identifies a device attached to this host
type DeviceRequest struct {
	Device  string `json:"device"`
	AgentID string `json:"agent_id"`
	Host    string `json:"host,omitempty"`
}

// DeviceDetails is the binding of a device as known by the control plane.
// PortID is nil when the device is not defined there.
type DeviceDetails struct {
	Device          string  `json:"device"`
	PortID          *string `json:"port_id,omitempty"`
	NetworkID       string  `json:"network_id,omitempty"`
	NetworkType     string  `json:"network_type,omitempty"`
	PhysicalNetwork *string `json:"physical_network,omitempty"`
	SegmentationID  *int    `json:"segmentation_id,omitempty"`
	AdminStateUp    bool    `json:"admin_state_up"`
	MACAddress      *string `json:"mac_address,omitempty"`
}

type TunnelSyncRequest struct {
	TunnelIP   string `json:"tunnel_ip"`
	TunnelType string `json:"tunnel_type"`
	Host       string `json:"host"`
}

type AgentConfigurations struct {
	BridgeMappings    map[string]string `json:"bridge_mappings"`
	InterfaceMappings map[string]string `json:"interface_mappings"`
	TunnelTypes       []string          `json:"tunnel_types"`
	TunnelingIP       string            `json:"tunneling_ip"`
	L2Population      bool              `json:"l2_population"`
	L2popNetworkTypes []string          `json:"l2pop_network_types"`
	Devices           int               `json:"devices"`
}

// AgentState is reported periodically to the control plane
type AgentState struct {
	Binary         string              `json:"binary"`
	Host           string              `json:"host"`
	Topic          string              `json:"topic"`
	AgentType      string              `json:"agent_type"`
	StartFlag      bool                `json:"start_flag,omitempty"`
	Configurations AgentConfigurations `json:"configurations"`
}

// SecurityGroupEvent notifies security group rule, member or provider changes
type SecurityGroupEvent struct {
	SecurityGroups []string `json:"security_groups,omitempty"`
	Devices        []string `json:"devices,omitempty"`
}

type SecurityGroupRule struct {
	Direction      string `json:"direction"`
	Ethertype      string `json:"ethertype"`
	Protocol       string `json:"protocol,omitempty"`
	PortRangeMin   *int   `json:"port_range_min,omitempty"`
	PortRangeMax   *int   `json:"port_range_max,omitempty"`
	RemoteIPPrefix string `json:"remote_ip_prefix,omitempty"`
}

// SecurityGroupInfo carries the rules to apply per device
type SecurityGroupInfo struct {
	Devices map[string][]SecurityGroupRule `json:"devices"`
	// device -> ids of the security groups it belongs to
	SecurityGroups map[string][]string `json:"security_groups,omitempty"`
}

type SecurityGroupInfoRequest struct {
	Devices []string `json:"devices"`
}

// Response is the body returned by the notification server
type Response struct {
	Err string `json:"error,omitempty"`
}
