package vswitch

import "github.com/ovn-kubernetes/libovsdb/model"

const DatabaseName = "Open_vSwitch"

const (
	BridgeTable    = "Bridge"
	PortTable      = "Port"
	InterfaceTable = "Interface"
)

// Bridge defines an object in Bridge table
type Bridge struct {
	UUID        string            `ovsdb:"_uuid"`
	Name        string            `ovsdb:"name"`
	DatapathID  *string           `ovsdb:"datapath_id"`
	ExternalIDs map[string]string `ovsdb:"external_ids"`
	FailMode    *string           `ovsdb:"fail_mode"`
	Ports       []string          `ovsdb:"ports"`
	Protocols   []string          `ovsdb:"protocols"`
}

// Port defines an object in Port table
type Port struct {
	UUID        string            `ovsdb:"_uuid"`
	Name        string            `ovsdb:"name"`
	ExternalIDs map[string]string `ovsdb:"external_ids"`
	Interfaces  []string          `ovsdb:"interfaces"`
	Tag         *int              `ovsdb:"tag"`
}

// Interface defines an object in Interface table
type Interface struct {
	UUID        string            `ovsdb:"_uuid"`
	Name        string            `ovsdb:"name"`
	Type        string            `ovsdb:"type"`
	Error       *string           `ovsdb:"error"`
	ExternalIDs map[string]string `ovsdb:"external_ids"`
	MACInUse    *string           `ovsdb:"mac_in_use"`
	Ofport      *int              `ovsdb:"ofport"`
	Options     map[string]string `ovsdb:"options"`
}

// FullDatabaseModel returns the client model of the tables the agent monitors
func FullDatabaseModel() (model.ClientDBModel, error) {
	return model.NewClientDBModel(DatabaseName, map[string]model.Model{
		BridgeTable:    &Bridge{},
		PortTable:      &Port{},
		InterfaceTable: &Interface{},
	})
}
