package agent

import (
	"context"
	"maps"
	"slices"

	"k8s.io/klog/v2"

	"github.com/kubeovn/ofagent/pkg/request"
	"github.com/kubeovn/ofagent/pkg/util"
)

func (a *Agent) newAgentState() *request.AgentState {
	l2popNetworkTypes := append(slices.Clone(a.config.TunnelTypes), util.NetworkTypeVlan, util.NetworkTypeFlat, util.NetworkTypeLocal)
	return &request.AgentState{
		Binary:    util.AgentBinary,
		Host:      a.config.Host,
		Topic:     util.L2AgentTopic,
		AgentType: util.AgentTypeOFA,
		StartFlag: true,
		Configurations: request.AgentConfigurations{
			BridgeMappings:    maps.Clone(a.config.BridgeMappings),
			InterfaceMappings: maps.Clone(a.config.InterfaceMappings),
			TunnelTypes:       slices.Clone(a.config.TunnelTypes),
			TunnelingIP:       a.config.LocalIP,
			L2Population:      true,
			L2popNetworkTypes: l2popNetworkTypes,
		},
	}
}

// setDeviceCount records how many devices are likely used by a VM
func (a *Agent) setDeviceCount(count int) {
	a.stateMutex.Lock()
	a.deviceCount = count
	a.stateMutex.Unlock()
}

// reportState reports the agent state, the start flag is only sent until a
// report succeeds
func (a *Agent) reportState(_ context.Context) {
	a.stateMutex.Lock()
	a.agentState.Configurations.Devices = a.deviceCount
	state := *a.agentState
	a.stateMutex.Unlock()

	if err := a.plugin.ReportState(&state); err != nil {
		klog.Errorf("failed reporting state: %v", err)
		return
	}

	a.stateMutex.Lock()
	a.agentState.StartFlag = false
	a.stateMutex.Unlock()
}
