package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kstaniek/go-drive-bridge/internal/can"
	"github.com/kstaniek/go-drive-bridge/internal/metrics"
	"github.com/kstaniek/go-drive-bridge/internal/serial"
	"github.com/kstaniek/go-drive-bridge/internal/transport"
)

// sleepFn allows tests to intercept backoff sleeps.
var sleepFn = time.Sleep

// openSerialPort is a hook for tests (overridden in unit tests).
var openSerialPort = serial.Open

// initSerialBackend opens the UART gateway and launches the RX loop. A lost
// device ends the loop with an error, which cancels the run group.
func initSerialBackend(ctx context.Context, cfg *appConfig, h transport.FrameHandler, l *slog.Logger, g *errgroup.Group) (transport.FrameSink, func(), error) {
	sp, err := transport.Open(ctx, openPolicy(cfg, l, "serial"), func() (serial.Port, error) {
		return openSerialPort(cfg.serialDev, cfg.baud, cfg.serialReadTO)
	})
	if err != nil {
		return nil, func() {}, fmt.Errorf("open serial: %w", err)
	}
	l.Info("serial_open", "device", cfg.serialDev, "baud", cfg.baud)
	serCodec := serial.Codec{}
	w := serial.NewTXWriter(ctx, sp, serCodec, cfg.txQueue)
	g.Go(func() error {
		defer l.Info("serial_rx_end")
		buf := make([]byte, serialReadBufSize)
		acc := bytes.NewBuffer(nil)
		backoff := rxBackoffMin
		for {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			n, err := sp.Read(buf)
			if n > 0 {
				acc.Write(buf[:n])
				_ = serCodec.DecodeStream(acc, func(fr can.Frame) { h.HandleFrame(fr) })
				if acc.Len() == 0 && cap(acc.Bytes()) > largeBufferReclaimThreshold {
					acc = bytes.NewBuffer(nil)
				}
				backoff = rxBackoffMin
			}
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				var perr *os.PathError
				if errors.As(err, &perr) {
					return fmt.Errorf("serial device lost: %w", err)
				}
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
					continue // read timeout with no data
				}
				metrics.IncError(metrics.ErrSerialRead)
				l.Warn("serial_read_error", "error", err, "backoff", backoff)
				sleepFn(backoff)
				backoff = nextBackoff(backoff)
			}
		}
	})
	return w, func() { _ = sp.Close(); w.Close() }, nil
}
