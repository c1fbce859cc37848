// Package transport holds the bus-side collaborators of the command codec:
// the sender a bridge hands encoded frames to, the receiver callback that
// backends feed, and the plumbing shared by the serial and SocketCAN backends.
package transport

import (
	"context"
	"time"

	"github.com/avast/retry-go"

	"github.com/kstaniek/go-drive-bridge/internal/can"
)

// FrameSink is a CAN frame transmission target.
type FrameSink interface {
	SendFrame(can.Frame) error
}

// SinkFunc adapts a function to FrameSink.
type SinkFunc func(can.Frame) error

func (f SinkFunc) SendFrame(fr can.Frame) error { return f(fr) }

// FrameHandler consumes frames read from a backend.
type FrameHandler interface {
	HandleFrame(can.Frame)
}

// HandlerFunc adapts a function to FrameHandler.
type HandlerFunc func(can.Frame)

func (f HandlerFunc) HandleFrame(fr can.Frame) { f(fr) }

// OpenPolicy bounds device open retries.
type OpenPolicy struct {
	Attempts uint          // total tries, at least 1
	Delay    time.Duration // first backoff, doubled after each failure
	OnRetry  func(n uint, err error)
}

// Open calls open until it succeeds, the attempts are used up or ctx ends.
// Only the last error is returned.
func Open[T any](ctx context.Context, p OpenPolicy, open func() (T, error)) (T, error) {
	var dev T
	attempts := p.Attempts
	if attempts == 0 {
		attempts = 1
	}
	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(p.Delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	}
	if p.OnRetry != nil {
		opts = append(opts, retry.OnRetry(p.OnRetry))
	}
	err := retry.Do(func() error {
		d, err := open()
		if err != nil {
			return err
		}
		dev = d
		return nil
	}, opts...)
	return dev, err
}
