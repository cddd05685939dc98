package ports

import (
	"fmt"
	"strings"

	"github.com/kubeovn/ofagent/pkg/util"
)

// prefixes of switch ports plugged by nova, the l3 agent and the dhcp agent
var tenantPortPrefixes = []string{"tap", "qvo", "qr-", "qg-"}

const canonicalPrefix = "tap"

// Port is a snapshot of a port on the integration bridge
type Port struct {
	Ofport int32
	Name   string
	// MAC of the vif as known by the control plane, nil when not learned yet
	MAC *string
}

// FromInterface builds a port from an ovsdb interface row
func FromInterface(name string, ofport int32) *Port {
	return &Port{Name: name, Ofport: ofport}
}

func (p *Port) IsTenantPort() bool {
	return IsTenantPort(p.Name)
}

func (p *Port) CanonicalName() string {
	return CanonicalName(p.Name)
}

// HasMAC reports whether the vif mac has been learned
func (p *Port) HasMAC() bool {
	return p.MAC != nil && *p.MAC != ""
}

func (p *Port) SetMAC(mac string) {
	if mac == "" {
		p.MAC = nil
		return
	}
	p.MAC = &mac
}

func (p *Port) String() string {
	mac := "<unknown>"
	if p.HasMAC() {
		mac = *p.MAC
	}
	return fmt.Sprintf("Port<name=%s, ofport=%d, mac=%s>", p.Name, p.Ofport, mac)
}

func tenantPortPrefix(name string) string {
	for _, prefix := range tenantPortPrefixes {
		if strings.HasPrefix(name, prefix) {
			return prefix
		}
	}
	return ""
}

// IsTenantPort returns true if the port name follows the tenant device
// naming convention
func IsTenantPort(name string) bool {
	return len(name) == util.DeviceNameMaxLen && tenantPortPrefix(name) != ""
}

// CanonicalName rewrites the device prefix of a tenant port to "tap".
// Names of other ports are returned unchanged.
func CanonicalName(name string) string {
	prefix := tenantPortPrefix(name)
	if prefix == "" {
		return name
	}
	return canonicalPrefix + name[len(prefix):]
}

// CanonicalNameForID returns the canonical device name of a port id
func CanonicalNameForID(id string) string {
	name := canonicalPrefix + id
	if len(name) > util.DeviceNameMaxLen {
		return name[:util.DeviceNameMaxLen]
	}
	return name
}
