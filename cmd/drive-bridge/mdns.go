package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/grandcat/zeroconf"
)

const mdnsServiceType = "_drive-bridge._tcp"

// mdnsRegister is a hook for tests.
var mdnsRegister = zeroconf.Register

// mdnsInstance returns the configured instance name or drive-bridge-<hostname>.
func mdnsInstance(cfg *appConfig) string {
	if cfg.mdnsName != "" {
		return cfg.mdnsName
	}
	host, _ := os.Hostname()
	return fmt.Sprintf("drive-bridge-%s", host)
}

// mdnsText lists the TXT records published with the service.
func mdnsText(cfg *appConfig) []string {
	return []string{
		"backend=" + cfg.backend,
		"version=" + version,
		"commit=" + commit,
		fmt.Sprintf("driver_base=0x%X", cfg.driverBase),
		fmt.Sprintf("motor_base=0x%X", cfg.motorBase),
		"api=/telemetry",
	}
}

// startMDNS advertises the HTTP API on port and returns a cleanup function.
// It is a no-op when disabled.
func startMDNS(ctx context.Context, cfg *appConfig, port int) (func(), error) {
	if !cfg.mdnsEnable {
		return func() {}, nil
	}
	svc, err := mdnsRegister(mdnsInstance(cfg), mdnsServiceType, "local.", port, mdnsText(cfg), nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		svc.Shutdown()
	}()
	return func() { close(done); time.Sleep(50 * time.Millisecond) }, nil
}
