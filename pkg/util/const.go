package util

const (
	HostnameEnv = "KUBE_NODE_NAME"

	NetworkTypeVlan  = "vlan"
	NetworkTypeFlat  = "flat"
	NetworkTypeLocal = "local"
	NetworkTypeGre   = "gre"
	NetworkTypeVxlan = "vxlan"

	// local vlan tags are allocated from [LocalVlanMin, LocalVlanMax)
	LocalVlanMin = 1
	LocalVlanMax = 4094

	DeviceNameMaxLen = 14

	// InvalidOfport is reported by ovsdb for interfaces that failed to attach
	InvalidOfport = -1

	OfaAgentCookie uint64 = 0x0fa0_0000_0000_0001

	AgentBinary      = "neutron-ofa-agent"
	AgentTypeOFA     = "OFA driver"
	L2AgentTopic     = "N/A"
	AgentIDPrefix    = "ovs"
	TunnelPortPrefix = "_ofa-tun-"

	DefaultIntegrationBridge = "br-int"
	DefaultVxlanUDPPort      = 4789
	DefaultOvsdbAddr         = "unix:/var/run/openvswitch/db.sock"
)

// TunnelNetworkTypes are the overlay network types the agent can program
var TunnelNetworkTypes = []string{NetworkTypeGre, NetworkTypeVxlan}

func IsTunnelNetworkType(networkType string) bool {
	for _, t := range TunnelNetworkTypes {
		if t == networkType {
			return true
		}
	}
	return false
}
