package agent

import (
	"net"

	"github.com/vishvananda/netlink"
	"k8s.io/klog/v2"
)

func localIPAssigned(ip string) bool {
	addrs, err := netlink.AddrList(nil, netlink.FAMILY_ALL)
	if err != nil {
		klog.Warningf("failed to list addresses of this host: %v", err)
		return true
	}
	target := net.ParseIP(ip)
	for _, addr := range addrs {
		if addr.IP.Equal(target) {
			return true
		}
	}
	return false
}
