package client

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/stdr"
	"github.com/ovn-kubernetes/libovsdb/client"
	"github.com/ovn-kubernetes/libovsdb/model"
	"k8s.io/klog/v2"
)

// NewOvsDbClient connects to the ovsdb server(s) at addr and monitors the given tables
func NewOvsDbClient(db, addr string, dbModel model.ClientDBModel, monitors []client.MonitorOption, timeout int) (client.Client, error) {
	logger := stdr.NewWithOptions(log.New(os.Stderr, "", log.LstdFlags), stdr.Options{LogCaller: stdr.All}).
		WithName("libovsdb").
		WithValues("database", db)
	stdr.SetVerbosity(1)

	options := []client.Option{
		client.WithReconnect(time.Duration(timeout)*time.Second, &backoff.ZeroBackOff{}),
		client.WithLogger(&logger),
	}
	for ep := range strings.SplitSeq(addr, ",") {
		options = append(options, client.WithEndpoint(ep))
	}

	c, err := client.NewOVSDBClient(dbModel, options...)
	if err != nil {
		klog.Error(err)
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()
	if err = c.Connect(ctx); err != nil {
		klog.Errorf("failed to connect to ovsdb server %s: %v", addr, err)
		return nil, err
	}

	if len(monitors) != 0 {
		if _, err = c.Monitor(ctx, c.NewMonitor(monitors...)); err != nil {
			c.Close()
			klog.Errorf("failed to monitor database %s on ovsdb server %s: %v", db, addr, err)
			return nil, fmt.Errorf("failed to monitor database %s: %w", db, err)
		}
	}

	return c, nil
}
