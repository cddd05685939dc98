package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/scylladb/go-set/strset"
	"k8s.io/klog/v2"

	"github.com/kubeovn/ofagent/pkg/request"
	"github.com/kubeovn/ofagent/pkg/util"
)

// Agent programs the integration bridge from the port bindings of the
// control plane
type Agent struct {
	config *Configuration

	bridge     Bridge
	arp        ArpTable
	portSource PortSource
	events     PortStatusSource
	plugin     PluginAPI
	sgAgent    SecurityGroupAgent

	agentID         string
	enableTunneling bool

	// owned by the daemon loop
	vlanPool     *vlanPool
	localVlanMap map[string]*LocalVlanMapping
	intOfports   map[string]int32
	tunOfports   map[string]int32
	registered   *strset.Set
	iterNum      uint64
	// unix nano of the end of the last iteration
	lastIteration atomic.Int64

	updatedMutex sync.Mutex
	updatedPorts *strset.Set

	fdbQueue chan fdbEvent

	stateMutex  sync.Mutex
	deviceCount int
	agentState  *request.AgentState
}

// NewAgent sets up the bridge and the physical interfaces
func NewAgent(config *Configuration, bridge Bridge, arp ArpTable, portSource PortSource, events PortStatusSource,
	plugin PluginAPI, sgAgent SecurityGroupAgent,
) (*Agent, error) {
	a := &Agent{
		config:          config,
		bridge:          bridge,
		arp:             arp,
		portSource:      portSource,
		events:          events,
		plugin:          plugin,
		sgAgent:         sgAgent,
		enableTunneling: config.EnableTunneling(),
		vlanPool:        newVlanPool(util.LocalVlanMin, util.LocalVlanMax),
		localVlanMap:    make(map[string]*LocalVlanMapping),
		intOfports:      make(map[string]int32),
		tunOfports:      make(map[string]int32),
		registered:      strset.New(),
		updatedPorts:    strset.New(),
		fdbQueue:        make(chan fdbEvent, config.FdbQueueSize),
	}

	mac, err := bridge.LocalPortMAC()
	if err != nil {
		return nil, fmt.Errorf("failed to get mac address of bridge %s: %w", config.IntegrationBridge, err)
	}
	a.agentID = util.AgentIDPrefix + strings.ReplaceAll(mac, ":", "")
	a.agentState = a.newAgentState()
	klog.Infof("agent id is %s", a.agentID)

	if err = bridge.SetupDefaultTables(); err != nil {
		return nil, fmt.Errorf("failed to setup integration bridge %s: %w", config.IntegrationBridge, err)
	}
	if err = a.setupPhysicalInterfaces(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Agent) AgentID() string {
	return a.agentID
}

// DatapathSource returns the datapath id of the bridge, empty when the
// bridge is not attached to a datapath yet
type DatapathSource interface {
	DatapathID() (string, error)
}

var datapathRetryInterval = time.Second

// AcquireDatapath waits for the datapath of the bridge
func AcquireDatapath(ctx context.Context, source DatapathSource, bridge string, retryTimes int) (string, error) {
	operation := func() (string, error) {
		dpid, err := source.DatapathID()
		if err != nil {
			return "", err
		}
		if dpid == "" {
			return "", fmt.Errorf("datapath of bridge %s is not available", bridge)
		}
		return dpid, nil
	}
	notify := func(err error, _ time.Duration) {
		klog.Infof("waiting for datapath of bridge %s: %v", bridge, err)
	}

	dpid, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(datapathRetryInterval)),
		backoff.WithMaxTries(uint(retryTimes)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	if err != nil {
		return "", fmt.Errorf("failed to acquire datapath of bridge %s after %d attempts: %w", bridge, retryTimes, err)
	}
	klog.Infof("bridge %s has datapath id %s", bridge, dpid)
	return dpid, nil
}
