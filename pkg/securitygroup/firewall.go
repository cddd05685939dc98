package securitygroup

import (
	"k8s.io/klog/v2"

	"github.com/kubeovn/ofagent/pkg/request"
)

// Firewall applies the security group rules of a device
type Firewall interface {
	PreparePortFilter(device string, rules []request.SecurityGroupRule) error
	UpdatePortFilter(device string, rules []request.SecurityGroupRule) error
	RemovePortFilter(device string) error
}

// NoopFirewall accepts every filter without enforcing anything
type NoopFirewall struct{}

func (NoopFirewall) PreparePortFilter(device string, rules []request.SecurityGroupRule) error {
	klog.V(5).Infof("noop firewall: prepare filter of %s with %d rules", device, len(rules))
	return nil
}

func (NoopFirewall) UpdatePortFilter(device string, rules []request.SecurityGroupRule) error {
	klog.V(5).Infof("noop firewall: update filter of %s with %d rules", device, len(rules))
	return nil
}

func (NoopFirewall) RemovePortFilter(device string) error {
	klog.V(5).Infof("noop firewall: remove filter of %s", device)
	return nil
}
