package main

import (
	"os"
	"strings"

	"k8s.io/klog/v2"

	"github.com/kubeovn/ofagent/cmd/ofagent"
)

const CmdOfAgent = "kube-ovn-ofagent"

func main() {
	cmds := strings.Split(os.Args[0], "/")
	cmd := cmds[len(cmds)-1]
	switch cmd {
	case CmdOfAgent:
		ofagent.CmdMain()
	default:
		klog.Fatalf("%s is an unknown command", cmd)
	}
}
