package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kstaniek/go-drive-bridge/internal/transport"
)

// initBackend opens the configured backend, starts its RX loop in g and
// returns the frame sink plus a cleanup that closes the device and drains TX.
func initBackend(ctx context.Context, cfg *appConfig, h transport.FrameHandler, l *slog.Logger, g *errgroup.Group) (transport.FrameSink, func(), error) {
	switch cfg.backend {
	case "serial":
		return initSerialBackend(ctx, cfg, h, l, g)
	case "socketcan":
		return initSocketCANBackend(ctx, cfg, h, l, g)
	default:
		return nil, func() {}, fmt.Errorf("unknown backend %q (use serial|socketcan)", cfg.backend)
	}
}

func openPolicy(cfg *appConfig, l *slog.Logger, backend string) transport.OpenPolicy {
	return transport.OpenPolicy{
		Attempts: cfg.openAttempts,
		Delay:    cfg.openDelay,
		OnRetry: func(n uint, err error) {
			l.Warn("backend_open_retry", "backend", backend, "attempt", n+1, "error", err)
		},
	}
}

// nextBackoff doubles d up to rxBackoffMax.
func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > rxBackoffMax {
		d = rxBackoffMax
	}
	return d
}
