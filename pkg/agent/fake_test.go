package agent

import (
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/scylladb/go-set/strset"
	"github.com/stretchr/testify/require"

	"github.com/kubeovn/ofagent/pkg/monitor"
	"github.com/kubeovn/ofagent/pkg/ports"
	"github.com/kubeovn/ofagent/pkg/util"
)

type floodCall struct {
	table, vlan int
	remoteIPs   []string
}

// fakeBridge records the calls and keeps the programmed state in maps
type fakeBridge struct {
	calls []string
	errs  map[string]error

	checkIn      map[int32]int
	localFlood   map[int][]int32
	localOut     map[string]int32
	tunnelOut    map[string][]string
	floodInstall []floodCall
	floodDelete  []floodCall
	physPorts    map[string]int32
	nextOfport   int32
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{
		errs:       make(map[string]error),
		checkIn:    make(map[int32]int),
		localFlood: make(map[int][]int32),
		localOut:   make(map[string]int32),
		tunnelOut:  make(map[string][]string),
		physPorts:  make(map[string]int32),
		nextOfport: 100,
	}
}

func (b *fakeBridge) record(method string, args ...any) error {
	b.calls = append(b.calls, fmt.Sprintf("%s%v", method, args))
	return b.errs[method]
}

func (b *fakeBridge) count(method string) int {
	n := 0
	for _, call := range b.calls {
		if len(call) > len(method) && call[:len(method)] == method && call[len(method)] == '[' {
			n++
		}
	}
	return n
}

func outKey(vlan int, mac string) string {
	return fmt.Sprintf("%d/%s", vlan, mac)
}

func (b *fakeBridge) SetupDefaultTables() error {
	return b.record("SetupDefaultTables")
}

func (b *fakeBridge) LocalPortMAC() (string, error) {
	return "aa:bb:cc:dd:ee:ff", b.record("LocalPortMAC")
}

func (b *fakeBridge) AddPhysicalPort(name string) (int32, error) {
	if err := b.record("AddPhysicalPort", name); err != nil {
		return 0, err
	}
	b.nextOfport++
	b.physPorts[name] = b.nextOfport
	return b.nextOfport, nil
}

func (b *fakeBridge) AddTunnelPort(name, remoteIP, localIP, tunnelType string, _ int, _ bool) (int32, error) {
	if err := b.record("AddTunnelPort", name, remoteIP, localIP, tunnelType); err != nil {
		return util.InvalidOfport, err
	}
	b.nextOfport++
	return b.nextOfport, nil
}

func (b *fakeBridge) CheckInPortAddLocalPort(vlan int, ofport int32) error {
	if err := b.record("CheckInPortAddLocalPort", vlan, ofport); err != nil {
		return err
	}
	b.checkIn[ofport] = vlan
	return nil
}

func (b *fakeBridge) CheckInPortDeletePort(ofport int32) error {
	if err := b.record("CheckInPortDeletePort", ofport); err != nil {
		return err
	}
	delete(b.checkIn, ofport)
	return nil
}

func (b *fakeBridge) CheckInPortAddTunnelPort(tunnelType string, ofport int32, localIP string) error {
	return b.record("CheckInPortAddTunnelPort", tunnelType, ofport, localIP)
}

func (b *fakeBridge) LocalFloodUpdate(vlan int, ofports []int32, floodUnicast bool) error {
	if err := b.record("LocalFloodUpdate", vlan, ofports, floodUnicast); err != nil {
		return err
	}
	if len(ofports) == 0 {
		delete(b.localFlood, vlan)
		return nil
	}
	b.localFlood[vlan] = slices.Clone(ofports)
	return nil
}

func (b *fakeBridge) LocalOutAddPort(vlan int, ofport int32, mac string) error {
	if err := b.record("LocalOutAddPort", vlan, ofport, mac); err != nil {
		return err
	}
	b.localOut[outKey(vlan, mac)] = ofport
	return nil
}

func (b *fakeBridge) LocalOutDeletePort(vlan int, mac string) error {
	if err := b.record("LocalOutDeletePort", vlan, mac); err != nil {
		return err
	}
	delete(b.localOut, outKey(vlan, mac))
	return nil
}

func (b *fakeBridge) InstallTunnelOutput(table, vlan, segmentationID int, ofport int32, remoteIPs []string, gotoNext bool, ethDst string) error {
	if err := b.record("InstallTunnelOutput", table, vlan, segmentationID, ofport, remoteIPs, gotoNext, ethDst); err != nil {
		return err
	}
	if ethDst == "" {
		b.floodInstall = append(b.floodInstall, floodCall{table, vlan, slices.Clone(remoteIPs)})
		return nil
	}
	b.tunnelOut[outKey(vlan, ethDst)] = slices.Clone(remoteIPs)
	return nil
}

func (b *fakeBridge) DeleteTunnelOutput(table, vlan int, ethDst string) error {
	if err := b.record("DeleteTunnelOutput", table, vlan, ethDst); err != nil {
		return err
	}
	if ethDst == "" {
		b.floodDelete = append(b.floodDelete, floodCall{table: table, vlan: vlan})
		return nil
	}
	delete(b.tunnelOut, outKey(vlan, ethDst))
	return nil
}

func (b *fakeBridge) ProvisionTenantTunnel(networkType string, vlan, segmentationID int) error {
	return b.record("ProvisionTenantTunnel", networkType, vlan, segmentationID)
}

func (b *fakeBridge) ReclaimTenantTunnel(networkType string, vlan, segmentationID int) error {
	return b.record("ReclaimTenantTunnel", networkType, vlan, segmentationID)
}

func (b *fakeBridge) ProvisionTenantPhysnet(networkType string, vlan, segmentationID int, physOfport int32) error {
	return b.record("ProvisionTenantPhysnet", networkType, vlan, segmentationID, physOfport)
}

func (b *fakeBridge) ReclaimTenantPhysnet(networkType string, vlan, segmentationID int, physOfport int32) error {
	return b.record("ReclaimTenantPhysnet", networkType, vlan, segmentationID, physOfport)
}

type fakeArp struct {
	entries map[int]map[string]string
	err     error
}

func newFakeArp() *fakeArp {
	return &fakeArp{entries: make(map[int]map[string]string)}
}

func (f *fakeArp) AddEntry(vlan int, ip, mac string) error {
	if f.err != nil {
		return f.err
	}
	if f.entries[vlan] == nil {
		f.entries[vlan] = make(map[string]string)
	}
	f.entries[vlan][ip] = mac
	return nil
}

func (f *fakeArp) RemoveEntry(vlan int, ip string) error {
	if f.err != nil {
		return f.err
	}
	delete(f.entries[vlan], ip)
	if len(f.entries[vlan]) == 0 {
		delete(f.entries, vlan)
	}
	return nil
}

func (f *fakeArp) ForgetVlan(vlan int) {
	delete(f.entries, vlan)
}

type fakePortSource struct {
	ports map[string]*ports.Port
	err   error
}

func (s *fakePortSource) TenantPorts() (map[string]*ports.Port, error) {
	if s.err != nil {
		return nil, s.err
	}
	result := make(map[string]*ports.Port, len(s.ports))
	for name, port := range s.ports {
		p := *port
		result[name] = &p
	}
	return result, nil
}

func (s *fakePortSource) set(names ...string) {
	s.ports = make(map[string]*ports.Port, len(names))
	for i, name := range names {
		s.ports[name] = &ports.Port{Name: name, Ofport: int32(i + 1)}
	}
}

type fakeEvents struct {
	events []monitor.PortStatusEvent
}

func (e *fakeEvents) Drain() []monitor.PortStatusEvent {
	events := e.events
	e.events = nil
	return events
}

type fakeSecurityGroupAgent struct {
	added, updated, removed *strset.Set
	refreshNeeded           bool
	setupErr                error
	ruleUpdated             []string
	memberUpdated           []string
	providerUpdated         []string
}

func newFakeSecurityGroupAgent() *fakeSecurityGroupAgent {
	return &fakeSecurityGroupAgent{added: strset.New(), updated: strset.New(), removed: strset.New()}
}

func (s *fakeSecurityGroupAgent) SetupPortFilters(added, updated *strset.Set) error {
	if s.setupErr != nil {
		return s.setupErr
	}
	s.added.Merge(added)
	s.updated.Merge(updated)
	s.refreshNeeded = false
	return nil
}

func (s *fakeSecurityGroupAgent) RemoveDevicesFilter(devices *strset.Set) {
	s.removed.Merge(devices)
}

func (s *fakeSecurityGroupAgent) FirewallRefreshNeeded() bool {
	return s.refreshNeeded
}

func (s *fakeSecurityGroupAgent) SecurityGroupsRuleUpdated(securityGroups []string) {
	s.ruleUpdated = append(s.ruleUpdated, securityGroups...)
}

func (s *fakeSecurityGroupAgent) SecurityGroupsMemberUpdated(securityGroups []string) {
	s.memberUpdated = append(s.memberUpdated, securityGroups...)
}

func (s *fakeSecurityGroupAgent) SecurityGroupsProviderUpdated(devices []string) {
	s.providerUpdated = append(s.providerUpdated, devices...)
}

type testAgent struct {
	*Agent
	bridge  *fakeBridge
	arp     *fakeArp
	source  *fakePortSource
	events  *fakeEvents
	sgAgent *fakeSecurityGroupAgent
}

func newTestConfig() *Configuration {
	return &Configuration{
		IntegrationBridge: util.DefaultIntegrationBridge,
		LocalIP:           "10.0.0.1",
		TunnelTypes:       []string{util.NetworkTypeGre, util.NetworkTypeVxlan},
		InterfaceMappings: map[string]string{"physnet1": "eth1"},
		BridgeMappings:    map[string]string{},
		PollingInterval:   time.Second,
		VxlanUDPPort:      util.DefaultVxlanUDPPort,
		Host:              "host1",
		FdbQueueSize:      4,
	}
}

func newTestAgent(t *testing.T, config *Configuration, plugin PluginAPI) *testAgent {
	t.Helper()
	ta := &testAgent{
		bridge:  newFakeBridge(),
		arp:     newFakeArp(),
		source:  &fakePortSource{},
		events:  &fakeEvents{},
		sgAgent: newFakeSecurityGroupAgent(),
	}
	a, err := NewAgent(config, ta.bridge, ta.arp, ta.source, ta.events, plugin, ta.sgAgent)
	require.NoError(t, err)
	ta.Agent = a
	return ta
}

func strPtr(s string) *string {
	return &s
}

func intPtr(i int) *int {
	return &i
}

func portWithMAC(name string, ofport int32, mac string) *ports.Port {
	p := &ports.Port{Name: name, Ofport: ofport}
	p.SetMAC(mac)
	return p
}
