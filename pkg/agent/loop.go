package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/scylladb/go-set/strset"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/klog/v2"

	"github.com/kubeovn/ofagent/pkg/monitor"
	"github.com/kubeovn/ofagent/pkg/ports"
	"github.com/kubeovn/ofagent/pkg/request"
	"github.com/kubeovn/ofagent/pkg/util"
)

// PortUpdate queues a port update notification for the next cycle
func (a *Agent) PortUpdate(deviceID string) {
	name := ports.CanonicalNameForID(deviceID)
	a.updatedMutex.Lock()
	a.updatedPorts.Add(name)
	a.updatedMutex.Unlock()
	klog.V(3).Infof("port %s queued for update", name)
}

// swapUpdatedPorts takes the queued updates, notifications arriving later
// are handled by the next cycle
func (a *Agent) swapUpdatedPorts() *strset.Set {
	a.updatedMutex.Lock()
	defer a.updatedMutex.Unlock()
	updated := a.updatedPorts
	a.updatedPorts = strset.New()
	return updated
}

// restoreUpdatedPorts puts back updates that were not processed
func (a *Agent) restoreUpdatedPorts(updated *strset.Set) {
	a.updatedMutex.Lock()
	a.updatedPorts.Merge(updated)
	a.updatedMutex.Unlock()
}

// Run runs the daemon loop until the context is done
func (a *Agent) Run(ctx context.Context) {
	if a.config.ReportInterval > 0 {
		go wait.UntilWithContext(ctx, a.reportState, a.config.ReportInterval)
	}

	klog.Info("starting agent daemon loop")
	topologyResync, tunnelResync := true, true
	for {
		start := time.Now()
		topologyResync, tunnelResync = a.iterate(topologyResync, tunnelResync)
		elapsed := time.Since(start)
		loopIterationLatency.Observe(elapsed.Seconds())
		a.iterNum++
		a.lastIteration.Store(time.Now().UnixNano())
		if !a.sleep(ctx, elapsed) {
			klog.Info("stopping agent daemon loop")
			return
		}
	}
}

// iterate runs one cycle of the daemon loop and returns the resync flags of
// the next one
func (a *Agent) iterate(topologyResync, tunnelResync bool) (bool, bool) {
	start := time.Now()
	klog.V(3).Infof("agent daemon loop - iteration:%d started", a.iterNum)
	if topologyResync {
		klog.Info("agent out of sync with plugin!")
		a.registered = strset.New()
		topologyResync = false
	}
	// notify the plugin of tunnel ip
	if a.enableTunneling && tunnelResync {
		klog.Info("agent tunnel out of sync with plugin!")
		if tunnelResync = a.tunnelSync(); tunnelResync {
			resyncTotal.WithLabelValues("tunnel").Inc()
		}
	}
	klog.V(3).Infof("agent daemon loop - iteration:%d - starting polling. elapsed:%v", a.iterNum, time.Since(start))

	updated := a.swapUpdatedPorts()
	resync, err := a.processPorts(updated, start)
	if err != nil {
		klog.Errorf("error while processing VIF ports: %v", err)
		a.restoreUpdatedPorts(updated)
		resync = true
	}
	if resync {
		resyncTotal.WithLabelValues("topology").Inc()
		topologyResync = true
	}
	klog.V(3).Infof("agent daemon loop - iteration:%d completed. elapsed:%v", a.iterNum, time.Since(start))
	return topologyResync, tunnelResync
}

// processPorts scans the bridge and wires the changed ports. A panic is
// turned into an error so the loop keeps running.
func (a *Agent) processPorts(updated *strset.Set, start time.Time) (resync bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recovered from panic: %v", r)
			utilruntime.HandleError(err)
		}
	}()

	delta, err := a.scanPorts(a.registered, updated)
	if err != nil {
		return false, err
	}
	a.registered = delta.Current
	// delta.Updated may be extended by the port status events
	checkPorts := checkPortStatusList(a.events.Drain(), delta)
	klog.V(3).Infof("agent daemon loop - iteration:%d - port information retrieved. elapsed:%v", a.iterNum, time.Since(start))

	// removed ports are unbound by treatDevicesRemoved
	if err = a.cleanupLocalVlans(strset.Union(delta.Current, delta.Removed)); err != nil {
		return false, fmt.Errorf("failed to clean up local vlans: %w", err)
	}

	if !delta.HasChanges() && !a.sgAgent.FirewallRefreshNeeded() {
		return false, nil
	}
	klog.V(3).Infof("starting to process devices in: %s", delta)
	if resync, err = a.processNetworkPorts(delta, checkPorts); err != nil {
		return false, err
	}
	portChanges.WithLabelValues("added").Add(float64(delta.Added.Size()))
	portChanges.WithLabelValues("updated").Add(float64(delta.Updated.Size()))
	portChanges.WithLabelValues("removed").Add(float64(delta.Removed.Size()))
	klog.V(3).Infof("agent daemon loop - iteration:%d - ports processed. elapsed:%v", a.iterNum, time.Since(start))
	return resync, nil
}

// sleep waits until the end of the polling interval and applies fdb events
// in the meantime. It returns false when the context is done.
func (a *Agent) sleep(ctx context.Context, elapsed time.Duration) bool {
	a.drainFdbQueue()
	if elapsed >= a.config.PollingInterval {
		klog.Warningf("loop iteration exceeded interval (%v vs. %v)!", a.config.PollingInterval, elapsed)
		return ctx.Err() == nil
	}

	timer := time.NewTimer(a.config.PollingInterval - elapsed)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return true
		case evt := <-a.fdbQueue:
			a.handleFdbEvent(evt)
		}
	}
}

func (a *Agent) processNetworkPorts(delta *PortDelta, checkPorts map[string]monitor.PortStatusEvent) (bool, error) {
	// ports are not wired when the filters fail to be set up
	if err := a.sgAgent.SetupPortFilters(delta.Added, delta.Updated); err != nil {
		return false, fmt.Errorf("failed to setup port filters: %w", err)
	}

	var resyncAdd, resyncRemoved bool
	var err error
	// a device might be both added and updated
	devices := strset.Union(delta.Added, delta.Updated)
	if !devices.IsEmpty() {
		start := time.Now()
		if resyncAdd, err = a.treatDevicesAddedOrUpdated(devices, checkPorts); err != nil {
			return false, err
		}
		klog.V(3).Infof("process_network_ports - iteration:%d - treat_devices_added_or_updated completed in %v", a.iterNum, time.Since(start))
	}
	if !delta.Removed.IsEmpty() {
		start := time.Now()
		if resyncRemoved, err = a.treatDevicesRemoved(delta.Removed); err != nil {
			return false, err
		}
		klog.V(3).Infof("process_network_ports - iteration:%d - treat_devices_removed completed in %v", a.iterNum, time.Since(start))
	}
	return resyncAdd || resyncRemoved, nil
}

func setPortMAC(port *ports.Port, details *request.DeviceDetails) {
	if details.MACAddress == nil {
		port.MAC = nil
		return
	}
	port.SetMAC(*details.MACAddress)
}

func (a *Agent) treatDevicesAddedOrUpdated(devices *strset.Set, checkPorts map[string]monitor.PortStatusEvent) (bool, error) {
	resync := false
	allPorts, err := a.portSource.TenantPorts()
	if err != nil {
		return false, util.LogErrorf(err, "failed to list ports of bridge %s", a.config.IntegrationBridge)
	}

	for _, device := range sortedList(devices) {
		klog.V(3).Infof("processing port %s", device)
		port, ok := allPorts[device]
		if !ok {
			// the port has disappeared and never went up
			klog.Infof("port %s was not found on the integration bridge and will therefore not be processed", device)
			continue
		}

		details, err := a.plugin.GetDeviceDetails(device, a.agentID, a.config.Host)
		if err != nil {
			klog.V(3).Infof("unable to get port details for %s: %v", device, err)
			resync = true
			continue
		}

		if evt, ok := checkPorts[device]; ok && evt.Port != nil && port.Ofport != evt.Port.Ofport {
			setPortMAC(evt.Port, details)
			klog.V(3).Infof("repair ofport changed old port %s new port %s", evt.Port, port)
			if err = a.repairOfportChange(evt.Port, details.NetworkID); err != nil {
				return resync, err
			}
		}

		if details.PortID == nil {
			klog.Warningf("device %s not defined on plugin", device)
			if port.Ofport != util.InvalidOfport {
				if err = a.portDead(port, ""); err != nil {
					return resync, err
				}
			}
			continue
		}

		klog.Infof("port %s updated. details: %+v", device, *details)
		setPortMAC(port, details)
		if err = a.treatVifPort(port, details); err != nil {
			if !errors.Is(err, ErrNoVlanAvailable) {
				return resync, err
			}
			// the port is not wired, its status is reported once a vlan is free
			klog.Errorf("failed to bind port %s: %v", device, err)
			resync = true
			continue
		}

		// update plugin about port status
		if details.AdminStateUp {
			klog.V(3).Infof("setting status for %s to UP", device)
			err = a.plugin.UpdateDeviceUp(device, a.agentID, a.config.Host)
		} else {
			klog.V(3).Infof("setting status for %s to DOWN", device)
			err = a.plugin.UpdateDeviceDown(device, a.agentID, a.config.Host)
		}
		if err != nil {
			return resync, fmt.Errorf("failed to update status of device %s: %w", device, err)
		}
		klog.Infof("configuration for device %s completed", device)
	}
	return resync, nil
}

func (a *Agent) treatVifPort(port *ports.Port, details *request.DeviceDetails) error {
	if port.Ofport <= 0 {
		klog.Warningf("VIF port: %s has no ofport configured, and might not be able to transmit", port.Name)
	}
	if details.AdminStateUp {
		return a.portBound(port, details.NetworkID, details.NetworkType, details.PhysicalNetwork, details.SegmentationID)
	}
	return a.portDead(port, details.NetworkID)
}

func (a *Agent) treatDevicesRemoved(devices *strset.Set) (bool, error) {
	resync := false
	a.sgAgent.RemoveDevicesFilter(devices)
	for _, device := range sortedList(devices) {
		klog.Infof("attachment %s removed", device)
		if err := a.plugin.UpdateDeviceDown(device, a.agentID, a.config.Host); err != nil {
			klog.V(3).Infof("port_removed failed for %s: %v", device, err)
			resync = true
			continue
		}
		if err := a.portUnbound(device, ""); err != nil {
			return resync, err
		}
	}
	return resync, nil
}

// tunnelSync reports the local ip to the control plane and returns whether
// it has to be retried
func (a *Agent) tunnelSync() bool {
	for _, tunnelType := range a.config.TunnelTypes {
		if err := a.plugin.TunnelSync(a.config.LocalIP, tunnelType, a.config.Host); err != nil {
			klog.V(3).Infof("unable to sync tunnel ip %s: %v", a.config.LocalIP, err)
			return true
		}
	}
	return false
}
