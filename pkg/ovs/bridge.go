package ovs

import (
	"errors"
	"fmt"
	"net"
	"slices"

	"github.com/digitalocean/go-openvswitch/ovs"
	"k8s.io/klog/v2"

	"github.com/kubeovn/ofagent/pkg/ports"
	"github.com/kubeovn/ofagent/pkg/util"
)

const (
	priorityDefault = 0
	priorityEntry   = 1

	multicastMAC = "01:00:00:00:00:00/01:00:00:00:00:00"
	untaggedTCI  = "0x0000/0x1fff"
)

var ErrUnknownNetworkType = errors.New("unknown network type")

// flowProgrammer is the subset of ovs.OpenFlowService used to program the bridge
type flowProgrammer interface {
	AddFlow(bridge string, flow *ovs.Flow) error
	DelFlows(bridge string, flow *ovs.MatchFlow) error
}

// switchManager is the subset of ovs.VSwitchService used to manage the bridge
type switchManager interface {
	AddBridge(bridge string) error
	AddPort(bridge, port string) error
	SetFailMode(bridge string, mode ovs.FailMode) error
}

// Bridge programs the OpenFlow pipeline of the integration bridge
type Bridge struct {
	Name string

	flows    flowProgrammer
	switches switchManager
	vswitch  *VswitchClient

	bridgeExists     func(name string) (bool, error)
	setBridgeOptions func(bridge string, options ovs.BridgeOptions) error
	getOfport        func(name string) (int32, error)
	addTunnelPort    func(bridge, name, remoteIP, localIP, tunnelType string, vxlanUDPPort int, dontFragment bool) (int32, error)
}

// NewBridge returns a bridge programmed through ovs-ofctl and ovs-vsctl
func NewBridge(name string, client *ovs.Client, vswitch *VswitchClient) *Bridge {
	return &Bridge{
		Name:             name,
		flows:            client.OpenFlow,
		switches:         client.VSwitch,
		vswitch:          vswitch,
		bridgeExists:     vswitch.BridgeExists,
		setBridgeOptions: client.VSwitch.Set.Bridge,
		getOfport:        GetOfport,
		addTunnelPort:    AddTunnelPort,
	}
}

func flowString(flow *ovs.Flow) string {
	text, err := flow.MarshalText()
	if err != nil {
		return fmt.Sprintf("%+v", *flow)
	}
	return string(text)
}

func (b *Bridge) addFlow(flow *ovs.Flow) error {
	flow.Cookie = util.OfaAgentCookie
	klog.V(5).Infof("add flow on bridge %s: %s", b.Name, flowString(flow))
	if err := b.flows.AddFlow(b.Name, flow); err != nil {
		klog.Errorf("failed to add flow %s on bridge %s: %v", flowString(flow), b.Name, err)
		return err
	}
	return nil
}

func (b *Bridge) delFlows(match *ovs.MatchFlow) error {
	klog.V(5).Infof("delete flows on bridge %s: %+v", b.Name, match)
	if err := b.flows.DelFlows(b.Name, match); err != nil {
		klog.Errorf("failed to delete flows %+v on bridge %s: %v", match, b.Name, err)
		return err
	}
	return nil
}

func resubmit(table int) ovs.Action {
	return ovs.Resubmit(0, table)
}

func defaultFlow(table int, actions ...ovs.Action) *ovs.Flow {
	return &ovs.Flow{Table: table, Priority: priorityDefault, Actions: actions}
}

// Setup creates the bridge in secure fail mode speaking OpenFlow 1.3
func (b *Bridge) Setup() error {
	exists, err := b.bridgeExists(b.Name)
	if err != nil {
		klog.Errorf("failed to check bridge %s: %v", b.Name, err)
		return err
	}
	if !exists {
		klog.Infof("creating bridge %s", b.Name)
		if err = b.switches.AddBridge(b.Name); err != nil {
			klog.Errorf("failed to add bridge %s: %v", b.Name, err)
			return err
		}
	}
	if err := b.switches.SetFailMode(b.Name, ovs.FailModeSecure); err != nil {
		klog.Errorf("failed to set fail mode of bridge %s: %v", b.Name, err)
		return err
	}
	if err := b.setBridgeOptions(b.Name, ovs.BridgeOptions{Protocols: []string{ovs.ProtocolOpenFlow13}}); err != nil {
		klog.Errorf("failed to set protocols of bridge %s: %v", b.Name, err)
		return err
	}
	return nil
}

// SetupDefaultTables removes all flows and installs the default pipeline
func (b *Bridge) SetupDefaultTables() error {
	if err := b.delFlows(nil); err != nil {
		return err
	}

	flows := []*ovs.Flow{
		defaultFlow(TableCheckInPort, ovs.Drop()),
		defaultFlow(tableTunnelInGre, ovs.Drop()),
		defaultFlow(tableTunnelInVxlan, ovs.Drop()),
		{
			Table:    TableLocalIn,
			Priority: priorityEntry,
			Protocol: ovs.ProtocolARP,
			Matches:  []ovs.Match{ovs.FieldMatch("arp_op", "1")},
			Actions:  []ovs.Action{resubmit(TableARPPassthru)},
		},
		defaultFlow(TableLocalIn, resubmit(TableTunnelOut)),
		defaultFlow(TableARPPassthru, resubmit(TableARPResponder)),
		defaultFlow(TableARPResponder, resubmit(TableTunnelOut)),
		defaultFlow(TableTunnelOut, resubmit(tableFloodGre)),
		defaultFlow(tableFloodGre, resubmit(nextTable(tableFloodGre))),
		defaultFlow(tableFloodVxlan, resubmit(nextTable(tableFloodVxlan))),
		defaultFlow(TablePhysFlood, resubmit(TableLocalOut)),
		defaultFlow(TableLocalOut, resubmit(TableLocalFlood)),
		defaultFlow(TableLocalFlood, ovs.Drop()),
		defaultFlow(TableDrop, ovs.Drop()),
	}
	for _, flow := range flows {
		if err := b.addFlow(flow); err != nil {
			return err
		}
	}
	return nil
}

// LocalPortMAC returns the mac address of the bridge local port
func (b *Bridge) LocalPortMAC() (string, error) {
	if b.vswitch == nil {
		return "", errors.New("vswitch client is not available")
	}
	mac, err := b.vswitch.LocalPortMAC(b.Name)
	if err != nil {
		return "", err
	}
	return mac.String(), nil
}

// DatapathID returns the datapath id of the bridge, empty when not attached
func (b *Bridge) DatapathID() (string, error) {
	if b.vswitch == nil {
		return "", errors.New("vswitch client is not available")
	}
	return b.vswitch.DatapathID(b.Name)
}

// TenantPorts returns the tenant ports currently attached to the bridge
func (b *Bridge) TenantPorts() (map[string]*ports.Port, error) {
	if b.vswitch == nil {
		return nil, errors.New("vswitch client is not available")
	}
	return b.vswitch.TenantPorts(b.Name)
}

// AddPhysicalPort attaches an interface to the bridge and returns its ofport
func (b *Bridge) AddPhysicalPort(name string) (int32, error) {
	if err := b.switches.AddPort(b.Name, name); err != nil {
		klog.Errorf("failed to add port %s to bridge %s: %v", name, b.Name, err)
		return util.InvalidOfport, err
	}
	return b.getOfport(name)
}

// AddTunnelPort creates a flow based tunnel port and returns its ofport
func (b *Bridge) AddTunnelPort(name, remoteIP, localIP, tunnelType string, vxlanUDPPort int, dontFragment bool) (int32, error) {
	return b.addTunnelPort(b.Name, name, remoteIP, localIP, tunnelType, vxlanUDPPort, dontFragment)
}

// CheckInPortAddLocalPort tags packets received from a local port
func (b *Bridge) CheckInPortAddLocalPort(vlan int, ofport int32) error {
	return b.addFlow(&ovs.Flow{
		Table:    TableCheckInPort,
		Priority: priorityEntry,
		InPort:   int(ofport),
		Actions:  []ovs.Action{ovs.ModVLANVID(vlan), resubmit(TableLocalIn)},
	})
}

func (b *Bridge) CheckInPortDeletePort(ofport int32) error {
	return b.delFlows(&ovs.MatchFlow{Table: TableCheckInPort, InPort: int(ofport)})
}

// CheckInPortAddTunnelPort classifies packets received from the tunnel port
func (b *Bridge) CheckInPortAddTunnelPort(tunnelType string, ofport int32, localIP string) error {
	table, ok := TunnelInTable(tunnelType)
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownNetworkType, tunnelType)
	}
	return b.addFlow(&ovs.Flow{
		Table:    TableCheckInPort,
		Priority: priorityEntry,
		InPort:   int(ofport),
		Matches:  []ovs.Match{ovs.FieldMatch("tun_dst", localIP)},
		Actions:  []ovs.Action{resubmit(table)},
	})
}

// ProvisionTenantTunnel maps the tunnel id of the segment to the local vlan
func (b *Bridge) ProvisionTenantTunnel(networkType string, vlan, segmentationID int) error {
	table, ok := TunnelInTable(networkType)
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownNetworkType, networkType)
	}
	return b.addFlow(&ovs.Flow{
		Table:    table,
		Priority: priorityEntry,
		Matches:  []ovs.Match{ovs.TunnelID(uint64(segmentationID))},
		Actions:  []ovs.Action{ovs.ModVLANVID(vlan), resubmit(TableLocalOut)},
	})
}

func (b *Bridge) ReclaimTenantTunnel(networkType string, vlan, segmentationID int) error {
	table, ok := TunnelInTable(networkType)
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownNetworkType, networkType)
	}
	if err := b.delFlows(&ovs.MatchFlow{
		Table:   table,
		Matches: []ovs.Match{ovs.TunnelID(uint64(segmentationID))},
	}); err != nil {
		return err
	}
	return b.deleteVlanFlows(vlan)
}

func physnetCheckInMatch(networkType string, segmentationID int) ([]ovs.Match, error) {
	switch networkType {
	case util.NetworkTypeVlan:
		return []ovs.Match{ovs.DataLinkVLAN(segmentationID)}, nil
	case util.NetworkTypeFlat:
		return []ovs.Match{ovs.FieldMatch("vlan_tci", untaggedTCI)}, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownNetworkType, networkType)
}

// ProvisionTenantPhysnet connects the local vlan to a physical network
func (b *Bridge) ProvisionTenantPhysnet(networkType string, vlan, segmentationID int, physOfport int32) error {
	matches, err := physnetCheckInMatch(networkType, segmentationID)
	if err != nil {
		return err
	}
	if err = b.addFlow(&ovs.Flow{
		Table:    TableCheckInPort,
		Priority: priorityEntry,
		InPort:   int(physOfport),
		Matches:  matches,
		Actions:  []ovs.Action{ovs.ModVLANVID(vlan), resubmit(TableLocalOut)},
	}); err != nil {
		return err
	}

	var actions []ovs.Action
	if networkType == util.NetworkTypeVlan {
		actions = append(actions, ovs.ModVLANVID(segmentationID))
	} else {
		actions = append(actions, ovs.StripVLAN())
	}
	actions = append(actions, ovs.Output(int(physOfport)), ovs.ModVLANVID(vlan), resubmit(TableLocalOut))
	return b.addFlow(&ovs.Flow{
		Table:    TablePhysFlood,
		Priority: priorityEntry,
		Matches:  []ovs.Match{ovs.DataLinkVLAN(vlan)},
		Actions:  actions,
	})
}

func (b *Bridge) ReclaimTenantPhysnet(networkType string, vlan, segmentationID int, physOfport int32) error {
	matches, err := physnetCheckInMatch(networkType, segmentationID)
	if err != nil {
		return err
	}
	if err = b.delFlows(&ovs.MatchFlow{
		Table:   TableCheckInPort,
		InPort:  int(physOfport),
		Matches: matches,
	}); err != nil {
		return err
	}
	return b.deleteVlanFlows(vlan)
}

// deleteVlanFlows removes the flows of the local vlan from the output tables
func (b *Bridge) deleteVlanFlows(vlan int) error {
	tables := []int{TableARPResponder, TableTunnelOut}
	tables = append(tables, tunnelFloodTables...)
	tables = append(tables, TablePhysFlood, TableLocalOut, TableLocalFlood)
	for _, table := range tables {
		if err := b.delFlows(&ovs.MatchFlow{
			Table:   table,
			Matches: []ovs.Match{ovs.DataLinkVLAN(vlan)},
		}); err != nil {
			return err
		}
	}
	return nil
}

// LocalFloodUpdate replaces the flood rule of the local vlan. When
// floodUnicast is false only multicast and broadcast packets are flooded.
func (b *Bridge) LocalFloodUpdate(vlan int, ofports []int32, floodUnicast bool) error {
	if err := b.delFlows(&ovs.MatchFlow{
		Table:   TableLocalFlood,
		Matches: []ovs.Match{ovs.DataLinkVLAN(vlan)},
	}); err != nil {
		return err
	}
	if len(ofports) == 0 {
		return nil
	}

	matches := []ovs.Match{ovs.DataLinkVLAN(vlan)}
	if !floodUnicast {
		matches = append(matches, ovs.FieldMatch("dl_dst", multicastMAC))
	}
	sorted := slices.Clone(ofports)
	slices.Sort(sorted)
	actions := []ovs.Action{ovs.StripVLAN()}
	for _, ofport := range sorted {
		actions = append(actions, ovs.Output(int(ofport)))
	}
	return b.addFlow(&ovs.Flow{
		Table:    TableLocalFlood,
		Priority: priorityEntry,
		Matches:  matches,
		Actions:  actions,
	})
}

func (b *Bridge) LocalOutAddPort(vlan int, ofport int32, mac string) error {
	return b.addFlow(&ovs.Flow{
		Table:    TableLocalOut,
		Priority: priorityEntry,
		Matches:  []ovs.Match{ovs.DataLinkVLAN(vlan), ovs.DataLinkDestination(mac)},
		Actions:  []ovs.Action{ovs.StripVLAN(), ovs.Output(int(ofport))},
	})
}

func (b *Bridge) LocalOutDeletePort(vlan int, mac string) error {
	return b.delFlows(&ovs.MatchFlow{
		Table:   TableLocalOut,
		Matches: []ovs.Match{ovs.DataLinkVLAN(vlan), ovs.DataLinkDestination(mac)},
	})
}

// InstallTunnelOutput sends packets of the local vlan to the remote tunnel
// endpoints. An empty ethDst installs a flood rule for multicast and broadcast.
func (b *Bridge) InstallTunnelOutput(table, vlan, segmentationID int, ofport int32, remoteIPs []string, gotoNext bool, ethDst string) error {
	matches := []ovs.Match{ovs.DataLinkVLAN(vlan)}
	if ethDst != "" {
		matches = append(matches, ovs.DataLinkDestination(ethDst))
	} else {
		matches = append(matches, ovs.FieldMatch("dl_dst", multicastMAC))
	}

	ips := slices.Clone(remoteIPs)
	slices.Sort(ips)
	actions := []ovs.Action{ovs.StripVLAN(), ovs.SetTunnel(uint64(segmentationID))}
	for _, ip := range ips {
		actions = append(actions, ovs.SetField(ip, "tun_dst"), ovs.Output(int(ofport)))
	}
	if gotoNext {
		actions = append(actions, ovs.ModVLANVID(vlan), resubmit(nextTable(table)))
	}
	return b.addFlow(&ovs.Flow{
		Table:    table,
		Priority: priorityEntry,
		Matches:  matches,
		Actions:  actions,
	})
}

func (b *Bridge) DeleteTunnelOutput(table, vlan int, ethDst string) error {
	matches := []ovs.Match{ovs.DataLinkVLAN(vlan)}
	if ethDst != "" {
		matches = append(matches, ovs.DataLinkDestination(ethDst))
	}
	return b.delFlows(&ovs.MatchFlow{Table: table, Matches: matches})
}

// InstallARPResponder answers ARP requests for ip on the local vlan with mac
func (b *Bridge) InstallARPResponder(vlan int, ip, mac string) error {
	hwAddr, err := net.ParseMAC(mac)
	if err != nil {
		return fmt.Errorf("invalid mac address %q: %w", mac, err)
	}
	ipv4 := net.ParseIP(ip).To4()
	if ipv4 == nil {
		return fmt.Errorf("invalid ipv4 address %q", ip)
	}

	return b.addFlow(&ovs.Flow{
		Table:    TableARPResponder,
		Priority: priorityEntry,
		Protocol: ovs.ProtocolARP,
		Matches: []ovs.Match{
			ovs.DataLinkVLAN(vlan),
			ovs.FieldMatch("arp_op", "1"),
			ovs.ARPTargetProtocolAddress(ip),
		},
		Actions: []ovs.Action{
			ovs.Move("NXM_OF_ETH_SRC[]", "NXM_OF_ETH_DST[]"),
			ovs.ModDataLinkSource(hwAddr),
			ovs.Load("0x2", "NXM_OF_ARP_OP[]"),
			ovs.Move("NXM_NX_ARP_SHA[]", "NXM_NX_ARP_THA[]"),
			ovs.Move("NXM_OF_ARP_SPA[]", "NXM_OF_ARP_TPA[]"),
			ovs.Load(fmt.Sprintf("0x%x", []byte(hwAddr)), "NXM_NX_ARP_SHA[]"),
			ovs.Load(fmt.Sprintf("0x%x", []byte(ipv4)), "NXM_OF_ARP_SPA[]"),
			ovs.StripVLAN(),
			ovs.OutputField("in_port"),
		},
	})
}

func (b *Bridge) DeleteARPResponder(vlan int, ip string) error {
	return b.delFlows(&ovs.MatchFlow{
		Table:    TableARPResponder,
		Protocol: ovs.ProtocolARP,
		Matches:  []ovs.Match{ovs.DataLinkVLAN(vlan), ovs.ARPTargetProtocolAddress(ip)},
	})
}
