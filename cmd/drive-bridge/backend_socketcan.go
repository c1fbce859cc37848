package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/kstaniek/go-drive-bridge/internal/can"
	"github.com/kstaniek/go-drive-bridge/internal/metrics"
	"github.com/kstaniek/go-drive-bridge/internal/socketcan"
	"github.com/kstaniek/go-drive-bridge/internal/transport"
)

// Hooks for tests (overridden in unit tests).
var (
	openSocketCANDevice = func(iface string) (socketcan.Dev, error) { return socketcan.Open(iface) }
	setCANLinkUp        = socketcan.SetLinkUp
)

// initSocketCANBackend opens the raw CAN socket and launches the RX loop.
func initSocketCANBackend(ctx context.Context, cfg *appConfig, h transport.FrameHandler, l *slog.Logger, g *errgroup.Group) (transport.FrameSink, func(), error) {
	if cfg.canLinkUp {
		if err := setCANLinkUp(cfg.canIf); err != nil {
			return nil, func() {}, fmt.Errorf("socketcan link up %s: %w", cfg.canIf, err)
		}
		l.Info("socketcan_link_up", "if", cfg.canIf)
	}
	dev, err := transport.Open(ctx, openPolicy(cfg, l, "socketcan"), func() (socketcan.Dev, error) {
		return openSocketCANDevice(cfg.canIf)
	})
	if err != nil {
		return nil, func() {}, fmt.Errorf("socketcan open %s: %w", cfg.canIf, err)
	}
	l.Info("socketcan_open", "if", cfg.canIf)
	tw := socketcan.NewTXWriter(ctx, dev, cfg.txQueue)
	g.Go(func() error {
		defer l.Info("socketcan_rx_end")
		backoff := rxBackoffMin
		for {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			var fr can.Frame
			if err := dev.ReadFrame(&fr); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if errors.Is(err, socketcan.ErrReadTimeout) {
					continue // idle bus
				}
				if errors.Is(err, socketcan.ErrErrorFrame) || errors.Is(err, can.ErrInvalidLength) {
					metrics.IncMalformed()
					l.Debug("socketcan_frame_rejected", "error", err)
					continue
				}
				metrics.IncError(metrics.ErrSocketCANRead)
				l.Warn("socketcan_read_error", "error", err, "backoff", backoff)
				sleepFn(backoff)
				backoff = nextBackoff(backoff)
				continue
			}
			metrics.IncRx(metrics.BackendSocketCAN)
			h.HandleFrame(fr)
			backoff = rxBackoffMin
		}
	})
	return tw, func() { _ = dev.Close(); tw.Close() }, nil
}
