package ofagent

import (
	"time"

	"github.com/digitalocean/go-openvswitch/ovs"
	"k8s.io/klog/v2"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/manager/signals"

	"github.com/kubeovn/ofagent/pkg/agent"
	"github.com/kubeovn/ofagent/pkg/monitor"
	ovsutil "github.com/kubeovn/ofagent/pkg/ovs"
	"github.com/kubeovn/ofagent/pkg/request"
	"github.com/kubeovn/ofagent/pkg/securitygroup"
	"github.com/kubeovn/ofagent/pkg/util"
	"github.com/kubeovn/ofagent/versions"
)

func CmdMain() {
	defer klog.Flush()

	klog.Info(versions.String())
	config, err := agent.ParseFlags()
	if err != nil {
		util.LogFatalAndExit(err, "failed to parse config")
	}

	ovsutil.UpdateOVSVsctlLimiter(config.OvsVsctlConcurrency)
	ctrl.SetLogger(klog.NewKlogr())
	ctx := signals.SetupSignalHandler()
	agent.InitMetrics()
	util.InitKlogMetrics(ctx)

	vswitchClient, err := ovsutil.NewVswitchClient(config.OvsDbAddr, config.OvsDbTimeout, config.OvsDbTimeout)
	if err != nil {
		util.LogFatalAndExit(err, "failed to create vswitch client")
	}

	client := ovs.New(ovs.Timeout(config.OvsDbTimeout), ovs.Protocols([]string{ovs.ProtocolOpenFlow13}))
	bridge := ovsutil.NewBridge(config.IntegrationBridge, client, vswitchClient)
	if err = bridge.Setup(); err != nil {
		util.LogFatalAndExit(err, "failed to setup integration bridge %s", config.IntegrationBridge)
	}
	if _, err = agent.AcquireDatapath(ctx, bridge, config.IntegrationBridge, config.GetDatapathRetryTimes); err != nil {
		util.LogFatalAndExit(err, "switch connection timeout")
	}

	portMonitor := monitor.NewMonitor()
	vswitchClient.WatchPortStatus(portMonitor)

	plugin := request.NewPluginClient(config.ServerAddress, config.RequestTimeout)
	sgAgent := securitygroup.NewAgent(plugin, securitygroup.NoopFirewall{})
	ofAgent, err := agent.NewAgent(config, bridge, ovsutil.NewArpResponder(bridge), bridge, portMonitor, plugin, sgAgent)
	if err != nil {
		util.LogFatalAndExit(err, "failed to create agent")
	}

	go agent.RunServer(ctx, config, ofAgent)

	start := time.Now()
	klog.Infof("agent %s initialized successfully, now running", ofAgent.AgentID())
	ofAgent.Run(ctx)
	klog.Infof("agent stopped after %v", time.Since(start))
}
