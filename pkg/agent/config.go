package agent

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"k8s.io/klog/v2"

	"github.com/kubeovn/ofagent/pkg/util"
)

// Configuration is the agent conf
type Configuration struct {
	IntegrationBridge         string
	LocalIP                   string
	TunnelTypes               []string
	InterfaceMappings         map[string]string
	BridgeMappings            map[string]string
	PollingInterval           time.Duration
	ReportInterval            time.Duration
	VxlanUDPPort              int
	DontFragment              bool
	GetDatapathRetryTimes     int
	Host                      string
	OvsDbAddr                 string
	OvsDbTimeout              int
	OvsVsctlConcurrency       int32
	ServerAddress             string
	RequestTimeout            time.Duration
	BindAddress               string
	FdbQueueSize              int
	EnablePprof               bool
	physicalInterfaceMappings []string
	bridgeMappings            []string
}

// ParseFlags parses cmd args then validates the configuration
func ParseFlags() (*Configuration, error) {
	var (
		argIntegrationBridge = pflag.String("integration-bridge", util.DefaultIntegrationBridge, "Integration bridge to use.")
		argLocalIP           = pflag.String("local-ip", "", "Local IP address of tunnel endpoints.")
		argTunnelTypes       = pflag.StringSlice("tunnel-types", nil, "Network types supported by the agent, gre and/or vxlan.")
		argInterfaceMappings = pflag.StringSlice("physical-interface-mappings", nil, "List of <physical_network>:<physical_interface>.")
		argBridgeMappings    = pflag.StringSlice("bridge-mappings", nil, "List of <physical_network>:<bridge>, reported to the control plane only.")
		argPollingInterval   = pflag.Duration("polling-interval", 2*time.Second, "The interval between two polling cycles of the local switch.")
		argReportInterval    = pflag.Duration("report-interval", 30*time.Second, "The interval between two state reports, 0 disables reporting.")
		argVxlanUDPPort      = pflag.Int("vxlan-udp-port", util.DefaultVxlanUDPPort, "The UDP port to use for VXLAN tunnels.")
		argDontFragment      = pflag.Bool("dont-fragment", true, "Set or un-set the don't fragment (DF) bit on outgoing IP packet carrying GRE/VXLAN tunnel.")
		argGetDatapathRetry  = pflag.Int("get-datapath-retry-times", 60, "Number of seconds to retry acquiring an Open vSwitch datapath.")
		argHost              = pflag.String("host", "", "Name of this host, default to $KUBE_NODE_NAME or the hostname.")
		argOvsDbAddr         = pflag.String("ovsdb-addr", util.DefaultOvsdbAddr, "Address of the local Open_vSwitch database.")
		argOvsDbTimeout      = pflag.Int("ovsdb-timeout", 30, "The seconds to wait for ovsdb connection and transactions.")
		argOvsVsctlConc      = pflag.Int32("ovs-vsctl-concurrency", 0, "Maximum number of concurrent ovs-vsctl commands, 0 means no limit.")
		argServerAddress     = pflag.String("server-addr", "", "Address of the control plane server.")
		argRequestTimeout    = pflag.Duration("request-timeout", 10*time.Second, "Timeout of requests sent to the control plane.")
		argBindAddress       = pflag.String("bind-address", "0.0.0.0:10667", "The address the notification and metrics server binds to.")
		argFdbQueueSize      = pflag.Int("fdb-queue-size", 1024, "Maximum number of pending fdb notifications.")
		argEnablePprof       = pflag.Bool("enable-pprof", false, "Enable pprof handlers on the metrics server.")
	)

	klogFlags := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(klogFlags)

	// Sync the glog and klog flags.
	pflag.CommandLine.VisitAll(func(f1 *pflag.Flag) {
		f2 := klogFlags.Lookup(f1.Name)
		if f2 != nil {
			value := f1.Value.String()
			if err := f2.Value.Set(value); err != nil {
				klog.Fatalf("failed to set flag, %v", err)
			}
		}
	})

	pflag.CommandLine.AddGoFlagSet(klogFlags)
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	pflag.Parse()

	host := *argHost
	if host == "" {
		klog.Info("host not specified in command line parameters, fall back to the environment variable")
		if host = os.Getenv(util.HostnameEnv); host == "" {
			klog.Info("host not specified in environment variables, fall back to the hostname")
			var err error
			if host, err = os.Hostname(); err != nil {
				return nil, fmt.Errorf("failed to get hostname: %w", err)
			}
		}
	}

	config := &Configuration{
		IntegrationBridge:         *argIntegrationBridge,
		LocalIP:                   *argLocalIP,
		TunnelTypes:               *argTunnelTypes,
		PollingInterval:           *argPollingInterval,
		ReportInterval:            *argReportInterval,
		VxlanUDPPort:              *argVxlanUDPPort,
		DontFragment:              *argDontFragment,
		GetDatapathRetryTimes:     *argGetDatapathRetry,
		Host:                      host,
		OvsDbAddr:                 *argOvsDbAddr,
		OvsDbTimeout:              *argOvsDbTimeout,
		OvsVsctlConcurrency:       *argOvsVsctlConc,
		ServerAddress:             *argServerAddress,
		RequestTimeout:            *argRequestTimeout,
		BindAddress:               *argBindAddress,
		FdbQueueSize:              *argFdbQueueSize,
		EnablePprof:               *argEnablePprof,
		physicalInterfaceMappings: *argInterfaceMappings,
		bridgeMappings:            *argBridgeMappings,
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	klog.Infof("agent config is %+v", config)
	return config, nil
}

// Validate parses the mappings and checks the tunneling options
func (config *Configuration) Validate() error {
	var err error
	if config.BridgeMappings, err = util.ParseMappings(config.bridgeMappings); err != nil {
		return fmt.Errorf("parsing bridge mappings failed: %w", err)
	}
	if config.InterfaceMappings, err = util.ParseMappings(config.physicalInterfaceMappings); err != nil {
		return fmt.Errorf("parsing physical interface mappings failed: %w", err)
	}

	for i, t := range config.TunnelTypes {
		config.TunnelTypes[i] = strings.TrimSpace(t)
	}
	config.TunnelTypes = slices.DeleteFunc(config.TunnelTypes, func(t string) bool { return t == "" })
	for _, t := range config.TunnelTypes {
		if !util.IsTunnelNetworkType(t) {
			return fmt.Errorf("invalid tunnel type specified: %s", t)
		}
	}
	if len(config.TunnelTypes) != 0 {
		if config.LocalIP == "" {
			return errors.New("tunneling cannot be enabled without a valid local ip")
		}
		if net.ParseIP(config.LocalIP) == nil {
			return fmt.Errorf("invalid local ip %q", config.LocalIP)
		}
		if !localIPAssigned(config.LocalIP) {
			klog.Warningf("local ip %s is not assigned to any interface of this host", config.LocalIP)
		}
	}

	if config.PollingInterval <= 0 {
		return fmt.Errorf("invalid polling interval %v", config.PollingInterval)
	}
	if config.VxlanUDPPort <= 0 || config.VxlanUDPPort > 65535 {
		return fmt.Errorf("invalid vxlan udp port %d", config.VxlanUDPPort)
	}
	if config.GetDatapathRetryTimes <= 0 {
		config.GetDatapathRetryTimes = 1
	}
	if config.FdbQueueSize <= 0 {
		config.FdbQueueSize = 1
	}
	return nil
}

// EnableTunneling reports whether any tunnel type is configured
func (config *Configuration) EnableTunneling() bool {
	return len(config.TunnelTypes) != 0
}
