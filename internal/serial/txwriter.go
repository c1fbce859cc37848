package serial

import (
	"context"
	"errors"
	"fmt"

	"github.com/kstaniek/go-drive-bridge/internal/can"
	"github.com/kstaniek/go-drive-bridge/internal/logging"
	"github.com/kstaniek/go-drive-bridge/internal/metrics"
	"github.com/kstaniek/go-drive-bridge/internal/transport"
)

var ErrTxOverflow = errors.New("serial tx overflow")

// TXWriter funnels all serial writes through one goroutine.
type TXWriter struct{ base *transport.AsyncTx }

var _ transport.FrameSink = (*TXWriter)(nil)

// NewTXWriter creates a serial TXWriter with a queue of size buf.
func NewTXWriter(parent context.Context, sp Port, codec Codec, buf int) *TXWriter {
	write := func(fr can.Frame) error {
		if err := fr.Validate(); err != nil {
			return err
		}
		_, err := sp.Write(codec.Encode(fr))
		return err
	}
	log := logging.Component("serial")
	hooks := transport.Hooks{
		OnError: func(fr can.Frame, err error) {
			metrics.IncError(metrics.ErrSerialWrite)
			log.Error("serial_write_error", "error", err, "can_id", fmt.Sprintf("0x%X", fr.ID))
		},
		OnAfter: func(can.Frame) { metrics.IncTx(metrics.BackendSerial) },
		OnDrop: func(can.Frame) error {
			metrics.IncError(metrics.ErrSerialOverflow)
			return ErrTxOverflow
		},
	}
	return &TXWriter{base: transport.NewAsyncTx(parent, buf, write, hooks)}
}

// SendFrame queues a frame for asynchronous write (drops with ErrTxOverflow if the queue is full).
func (w *TXWriter) SendFrame(fr can.Frame) error { return w.base.SendFrame(fr) }

// Close stops the writer and waits for pending goroutine exit.
func (w *TXWriter) Close() { w.base.Close() }
