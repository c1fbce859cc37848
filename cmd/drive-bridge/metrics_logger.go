package main

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kstaniek/go-drive-bridge/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, g *errgroup.Group) {
	if interval <= 0 {
		return
	}
	g.Go(func() error {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				logSnapshot(l, metrics.Snap())
			case <-ctx.Done():
				return nil
			}
		}
	})
}

func logSnapshot(l *slog.Logger, snap metrics.Snapshot) {
	l.Info("metrics_snapshot",
		"rx", snap.Rx,
		"tx", snap.Tx,
		"decoded", snap.Decoded,
		"encoded", snap.Encoded,
		"decode_errors", snap.DecodeErrors,
		"unknown_ids", snap.UnknownIDs,
		"malformed", snap.Malformed,
		"errors", snap.Errors,
	)
}
