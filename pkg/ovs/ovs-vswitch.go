package ovs

import (
	"context"
	"fmt"
	"time"

	"github.com/ovn-kubernetes/libovsdb/client"
	"k8s.io/klog/v2"

	ovsclient "github.com/kubeovn/ofagent/pkg/ovsdb/client"
	"github.com/kubeovn/ofagent/pkg/ovsdb/vswitch"
)

// VswitchClient is a client for interacting with the vswitch database
type VswitchClient struct {
	client.Client
	Timeout time.Duration
}

// NewVswitchClient creates a new vswitch client
func NewVswitchClient(addr string, connTimeout, transactTimeout int) (*VswitchClient, error) {
	dbModel, err := vswitch.FullDatabaseModel()
	if err != nil {
		klog.Error(err)
		return nil, err
	}

	monitors := []client.MonitorOption{
		client.WithTable(&vswitch.Bridge{}),
		client.WithTable(&vswitch.Interface{}),
		client.WithTable(&vswitch.Port{}),
	}
	c, err := ovsclient.NewOvsDbClient(
		vswitch.DatabaseName,
		addr,
		dbModel,
		monitors,
		connTimeout,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create vswitch client: %w", err)
	}

	return &VswitchClient{
		Client:  c,
		Timeout: time.Duration(transactTimeout) * time.Second,
	}, nil
}

func (c *VswitchClient) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), c.Timeout)
}
