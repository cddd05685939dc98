package ovs

import "github.com/kubeovn/ofagent/pkg/util"

// OpenFlow tables of the integration bridge.
//
//	CHECK_IN_PORT -> TUNNEL_IN (tunnel ports)
//	              -> LOCAL_IN (local ports)
//	              -> LOCAL_OUT (physical ports)
//	LOCAL_IN -> ARP_PASSTHROUGH -> ARP_RESPONDER -> TUNNEL_OUT
//	TUNNEL_OUT -> TUNNEL_FLOOD -> PHYS_FLOOD -> LOCAL_OUT -> LOCAL_FLOOD
const (
	TableCheckInPort   = 0
	TableLocalIn       = 12
	TableARPPassthru   = 13
	TableARPResponder  = 14
	TableTunnelOut     = 15
	TablePhysFlood     = 20
	TableLocalOut      = 21
	TableLocalFlood    = 22
	TableDrop          = 23
	tableTunnelInGre   = 1
	tableTunnelInVxlan = 2
	tableFloodGre      = 16
	tableFloodVxlan    = 17
)

// TunnelInTable returns the table classifying packets received from a tunnel port
func TunnelInTable(tunnelType string) (int, bool) {
	switch tunnelType {
	case util.NetworkTypeGre:
		return tableTunnelInGre, true
	case util.NetworkTypeVxlan:
		return tableTunnelInVxlan, true
	}
	return 0, false
}

// TunnelFloodTable returns the table flooding packets to remote tunnel endpoints
func TunnelFloodTable(tunnelType string) (int, bool) {
	switch tunnelType {
	case util.NetworkTypeGre:
		return tableFloodGre, true
	case util.NetworkTypeVxlan:
		return tableFloodVxlan, true
	}
	return 0, false
}

// tunnelFloodTables lists the flood tables in pipeline order
var tunnelFloodTables = []int{tableFloodGre, tableFloodVxlan}

// nextTable returns the table following a tunnel output table
func nextTable(table int) int {
	if table == tableFloodVxlan {
		return TablePhysFlood
	}
	return table + 1
}
