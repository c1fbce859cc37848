package socketcan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kstaniek/go-drive-bridge/internal/can"
	"github.com/kstaniek/go-drive-bridge/internal/logging"
	"github.com/kstaniek/go-drive-bridge/internal/metrics"
	"github.com/kstaniek/go-drive-bridge/internal/transport"
)

var (
	ErrTxOverflow = errors.New("socketcan tx overflow")
	// ErrErrorFrame is returned by ReadFrame for controller error frames.
	ErrErrorFrame = errors.New("socketcan error frame")
	// ErrReadTimeout is returned by ReadFrame when no frame arrived in time.
	ErrReadTimeout = errors.New("socketcan read timeout")
)

// readTimeout bounds a blocking read so the RX loop notices cancellation.
const readTimeout = 200 * time.Millisecond

// Dev is the minimal interface needed by the backend and TXWriter.
// Implemented by *Device in production and by fakes in tests.
type Dev interface {
	ReadFrame(*can.Frame) error
	WriteFrame(can.Frame) error
	Close() error
}

// TXWriter funnels all SocketCAN writes through a single goroutine,
// mirroring the serial TXWriter behavior.
type TXWriter struct{ base *transport.AsyncTx }

var _ transport.FrameSink = (*TXWriter)(nil)

// NewTXWriter creates a SocketCAN TXWriter with a queue of size buf.
func NewTXWriter(parent context.Context, dev Dev, buf int) *TXWriter {
	log := logging.Component("socketcan")
	hooks := transport.Hooks{
		OnError: func(fr can.Frame, err error) {
			metrics.IncError(metrics.ErrSocketCANWrite)
			log.Warn("socketcan_write_error", "error", err, "can_id", fmt.Sprintf("0x%X", fr.ID))
		},
		OnAfter: func(can.Frame) { metrics.IncTx(metrics.BackendSocketCAN) },
		OnDrop: func(can.Frame) error {
			metrics.IncError(metrics.ErrSocketCANOver)
			return ErrTxOverflow
		},
	}
	return &TXWriter{base: transport.NewAsyncTx(parent, buf, dev.WriteFrame, hooks)}
}

// SendFrame queues a frame for asynchronous device write (drops with ErrTxOverflow if the queue is full).
func (w *TXWriter) SendFrame(fr can.Frame) error { return w.base.SendFrame(fr) }

// Close stops the writer and waits for the worker goroutine to finish.
func (w *TXWriter) Close() { w.base.Close() }
