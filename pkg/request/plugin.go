package request

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/parnurzeal/gorequest"
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/klog/v2"
)

var pluginRequestLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "ofagent_plugin_request_latency_seconds",
		Help:    "Latency of requests sent to the control plane",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	},
	[]string{"method", "code"},
)

func init() {
	prometheus.MustRegister(pluginRequestLatency)
}

// PluginClient talks to the control plane server
type PluginClient struct {
	ServerAddress string
	Timeout       time.Duration
}

func NewPluginClient(serverAddress string, timeout time.Duration) *PluginClient {
	return &PluginClient{ServerAddress: serverAddress, Timeout: timeout}
}

func (c *PluginClient) url(path string) string {
	return "http://" + c.ServerAddress + "/api/v1" + path
}

func (c *PluginClient) post(method, path string, body, result any) error {
	start := time.Now()
	code := "0"
	defer func() {
		pluginRequestLatency.WithLabelValues(method, code).Observe(time.Since(start).Seconds())
	}()

	request := gorequest.New().Post(c.url(path)).Timeout(c.Timeout).Send(body)
	var (
		resp   gorequest.Response
		output string
		errs   []error
	)
	if result != nil {
		var raw []byte
		resp, raw, errs = request.EndStruct(result)
		output = string(raw)
	} else {
		resp, output, errs = request.End()
	}
	if resp != nil {
		code = strconv.Itoa(resp.StatusCode)
	}
	if resp != nil && (resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices) {
		return fmt.Errorf("%s failed with status %d: %s", method, resp.StatusCode, output)
	}
	if len(errs) != 0 {
		klog.V(3).Infof("%s request to %s failed: %v", method, c.ServerAddress, errs[0])
		return errs[0]
	}
	return nil
}

func (c *PluginClient) GetDeviceDetails(device, agentID, host string) (*DeviceDetails, error) {
	details := &DeviceDetails{}
	req := DeviceRequest{Device: device, AgentID: agentID, Host: host}
	if err := c.post("get_device_details", "/devices/details", req, details); err != nil {
		return nil, err
	}
	return details, nil
}

func (c *PluginClient) UpdateDeviceUp(device, agentID, host string) error {
	return c.post("update_device_up", "/devices/up", DeviceRequest{Device: device, AgentID: agentID, Host: host}, nil)
}

func (c *PluginClient) UpdateDeviceDown(device, agentID, host string) error {
	return c.post("update_device_down", "/devices/down", DeviceRequest{Device: device, AgentID: agentID, Host: host}, nil)
}

func (c *PluginClient) TunnelSync(tunnelIP, tunnelType, host string) error {
	return c.post("tunnel_sync", "/tunnels/sync", TunnelSyncRequest{TunnelIP: tunnelIP, TunnelType: tunnelType, Host: host}, nil)
}

func (c *PluginClient) ReportState(state *AgentState) error {
	return c.post("report_state", "/agents/state", state, nil)
}

func (c *PluginClient) SecurityGroupInfoForDevices(devices []string) (*SecurityGroupInfo, error) {
	info := &SecurityGroupInfo{}
	if err := c.post("security_group_info_for_devices", "/security-groups/devices", SecurityGroupInfoRequest{Devices: devices}, info); err != nil {
		return nil, err
	}
	return info, nil
}
