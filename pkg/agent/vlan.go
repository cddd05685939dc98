package agent

import (
	"fmt"

	"github.com/scylladb/go-set/iset"
	"github.com/scylladb/go-set/strset"

	"github.com/kubeovn/ofagent/pkg/ports"
	"github.com/kubeovn/ofagent/pkg/util"
)

// vlanPool holds the free local vlan tags
type vlanPool struct {
	free *iset.Set
}

func newVlanPool(first, last int) *vlanPool {
	p := &vlanPool{free: iset.NewWithSize(max(last-first, 0))}
	for vlan := first; vlan < last; vlan++ {
		p.free.Add(vlan)
	}
	return p
}

// allocate pops an arbitrary free tag
func (p *vlanPool) allocate() (int, error) {
	vlan, ok := p.free.Pop2()
	if !ok {
		return 0, ErrNoVlanAvailable
	}
	return vlan, nil
}

func (p *vlanPool) release(vlan int) error {
	if vlan < util.LocalVlanMin || vlan >= util.LocalVlanMax {
		return fmt.Errorf("local vlan %d out of range", vlan)
	}
	if p.free.Has(vlan) {
		return fmt.Errorf("local vlan %d is not allocated", vlan)
	}
	p.free.Add(vlan)
	return nil
}

func (p *vlanPool) available() int {
	return p.free.Size()
}

// LocalVlanMapping tracks the local vlan of a network and its ports
type LocalVlanMapping struct {
	Vlan            int
	NetworkType     string
	PhysicalNetwork *string
	SegmentationID  *int
	// keyed by canonical port name
	VifPorts map[string]*ports.Port
	// remote tunnel endpoints receiving flooded packets
	TunRemoteIPs *strset.Set
	// the flood rule does not reflect VifPorts
	floodStale bool
}

func newLocalVlanMapping(vlan int, networkType string, physicalNetwork *string, segmentationID *int) *LocalVlanMapping {
	return &LocalVlanMapping{
		Vlan:            vlan,
		NetworkType:     networkType,
		PhysicalNetwork: physicalNetwork,
		SegmentationID:  segmentationID,
		VifPorts:        make(map[string]*ports.Port),
		TunRemoteIPs:    strset.New(),
	}
}

func (lvm *LocalVlanMapping) segment() int {
	if lvm.SegmentationID == nil {
		return 0
	}
	return *lvm.SegmentationID
}

func (lvm *LocalVlanMapping) physnet() string {
	if lvm.PhysicalNetwork == nil {
		return ""
	}
	return *lvm.PhysicalNetwork
}

func (lvm *LocalVlanMapping) String() string {
	return fmt.Sprintf("lv-id = %d type = %s phys-net = %s phys-id = %d", lvm.Vlan, lvm.NetworkType, lvm.physnet(), lvm.segment())
}
