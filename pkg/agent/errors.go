package agent

import "errors"

var (
	ErrNoVlanAvailable      = errors.New("no local vlan available")
	ErrTunnelingDisabled    = errors.New("tunneling disabled")
	ErrNoPhysicalPort       = errors.New("no bridge for physical network")
	ErrUnknownNetworkType   = errors.New("unknown network type")
	ErrTunnelOfportMismatch = errors.New("ofport does not match the tunnel port of the network type")
)
