package ovs

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
	"k8s.io/klog/v2"

	"github.com/kubeovn/ofagent/pkg/util"
)

const OvsVsCtl = "ovs-vsctl"

var limiter *semaphore.Weighted

// UpdateOVSVsctlLimiter limits the number of concurrent ovs-vsctl commands, 0 means no limit
func UpdateOVSVsctlLimiter(c int32) {
	if c > 0 {
		limiter = semaphore.NewWeighted(int64(c))
		klog.V(4).Infof("update ovs-vsctl concurrency limit to %d", c)
	}
}

// Glory belongs to openvswitch/ovn-kubernetes
// https://github.com/openvswitch/ovn-kubernetes/blob/master/go-controller/pkg/util/ovs.go

func Exec(args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var (
		start        time.Time
		elapsed      float64
		output       []byte
		method, code string
		err          error
	)

	if l := limiter; l != nil {
		if err = l.Acquire(ctx, 1); err != nil {
			klog.V(4).Infof("command %s %s waiting for execution timeout by concurrency limit", OvsVsCtl, strings.Join(args, " "))
			return "", err
		}
		defer l.Release(1)
	}

	start = time.Now()
	args = append([]string{"--timeout=30"}, args...)
	output, err = exec.CommandContext(ctx, OvsVsCtl, args...).CombinedOutput()
	elapsed = float64((time.Since(start)) / time.Millisecond)
	klog.V(4).Infof("command %s %s in %vms", OvsVsCtl, strings.Join(args, " "), elapsed)

	for _, arg := range args {
		if !strings.HasPrefix(arg, "--") {
			method = arg
			break
		}
	}

	code = "0"
	defer func() {
		ovsClientRequestLatency.WithLabelValues("ovsdb", method, code).Observe(elapsed)
	}()

	if err != nil {
		code = "1"
		klog.Warningf("ovs-vsctl command error: %s %s in %vms", OvsVsCtl, strings.Join(args, " "), elapsed)
		return "", fmt.Errorf("failed to run '%s %s': %w\n  %q", OvsVsCtl, strings.Join(args, " "), err, output)
	} else if elapsed > 500 {
		klog.Warningf("ovs-vsctl command took too long: %s %s in %vms", OvsVsCtl, strings.Join(args, " "), elapsed)
	}
	return trimCommandOutput(output), nil
}

func trimCommandOutput(raw []byte) string {
	output := strings.TrimSpace(string(raw))
	return strings.Trim(output, "\"")
}

func Get(table, record, column, key string, ifExists bool) (string, error) {
	var columnVal string
	if key == "" {
		columnVal = column
	} else {
		columnVal = column + ":" + key
	}
	args := []string{"get", table, record, columnVal}
	if ifExists {
		args = append([]string{"--if-exists"}, args...)
	}
	return Exec(args...)
}

// parseOfport converts the ofport column value, an unset or failed interface
// yields util.InvalidOfport
func parseOfport(value string) int32 {
	value = strings.TrimSpace(value)
	if value == "" || value == "[]" {
		return util.InvalidOfport
	}
	ofport, err := strconv.ParseInt(value, 10, 32)
	if err != nil || ofport <= 0 {
		return util.InvalidOfport
	}
	return int32(ofport)
}

// GetOfport returns the ofport of an interface or util.InvalidOfport
func GetOfport(name string) (int32, error) {
	output, err := Get("Interface", name, "ofport", "", true)
	if err != nil {
		return util.InvalidOfport, fmt.Errorf("failed to get ofport of interface %s: %w", name, err)
	}
	return parseOfport(output), nil
}

// tunnelPortArgs builds the ovs-vsctl arguments creating a flow based tunnel port
func tunnelPortArgs(bridge, name, remoteIP, localIP, tunnelType string, vxlanUDPPort int, dontFragment bool) []string {
	args := []string{
		"--may-exist", "add-port", bridge, name,
		"--", "set", "Interface", name,
		"type=" + tunnelType,
		"options:remote_ip=" + remoteIP,
		"options:local_ip=" + localIP,
		"options:in_key=flow",
		"options:out_key=flow",
	}
	if tunnelType == util.NetworkTypeVxlan && vxlanUDPPort != 0 && vxlanUDPPort != util.DefaultVxlanUDPPort {
		args = append(args, "options:dst_port="+strconv.Itoa(vxlanUDPPort))
	}
	args = append(args, "options:df_default="+strconv.FormatBool(dontFragment))
	return args
}

// AddTunnelPort creates a tunnel port and returns its ofport
func AddTunnelPort(bridge, name, remoteIP, localIP, tunnelType string, vxlanUDPPort int, dontFragment bool) (int32, error) {
	if _, err := Exec(tunnelPortArgs(bridge, name, remoteIP, localIP, tunnelType, vxlanUDPPort, dontFragment)...); err != nil {
		klog.Errorf("failed to add %s tunnel port %s on bridge %s: %v", tunnelType, name, bridge, err)
		return util.InvalidOfport, err
	}
	return GetOfport(name)
}
