// Package bridge joins a CAN transport to the command layout codec: received
// frames are decoded into typed commands and the latest sample per kind is
// kept for the HTTP API, outgoing commands are encoded and queued on the sink.
package bridge

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/go-drive-bridge/internal/can"
	"github.com/kstaniek/go-drive-bridge/internal/layout"
	"github.com/kstaniek/go-drive-bridge/internal/logging"
	"github.com/kstaniek/go-drive-bridge/internal/metrics"
	"github.com/kstaniek/go-drive-bridge/internal/transport"
)

// ErrNoSink is returned by Send before a backend has been attached.
var ErrNoSink = errors.New("bridge: no transport attached")

// Sample is the most recent decoded command of one kind.
type Sample struct {
	Command layout.Command
	Frame   can.Frame
	At      time.Time
}

type Bridge struct {
	codec *layout.Codec
	log   *slog.Logger
	now   func() time.Time

	mu     sync.RWMutex
	sink   transport.FrameSink
	latest map[layout.Kind]Sample
}

var _ transport.FrameHandler = (*Bridge)(nil)

type Option func(*Bridge)

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option { return func(b *Bridge) { b.log = l } }

// WithClock overrides time.Now for sample timestamps.
func WithClock(now func() time.Time) Option { return func(b *Bridge) { b.now = now } }

// New returns a bridge over codec. A nil codec selects layout.Default.
func New(codec *layout.Codec, opts ...Option) *Bridge {
	if codec == nil {
		codec = layout.Default
	}
	b := &Bridge{
		codec:  codec,
		now:    time.Now,
		latest: make(map[layout.Kind]Sample),
	}
	for _, o := range opts {
		o(b)
	}
	if b.log == nil {
		b.log = logging.Component("bridge")
	}
	return b
}

func (b *Bridge) Codec() *layout.Codec { return b.codec }

// Attach sets the sink used by Send. Passing nil detaches it.
func (b *Bridge) Attach(s transport.FrameSink) {
	b.mu.Lock()
	b.sink = s
	b.mu.Unlock()
}

// HandleFrame decodes fr and records it as the latest sample of its kind.
// Frames outside the layout table are counted and dropped.
func (b *Bridge) HandleFrame(fr can.Frame) {
	cmd, err := b.codec.Decode(fr)
	if err != nil {
		metrics.IncDecodeError(layout.Reason(err))
		if errors.Is(err, layout.ErrUnknownIdentifier) {
			return // other traffic on the bus
		}
		b.log.Debug("frame_decode_error", "frame", fr.String(), "error", err)
		return
	}
	at := b.now()
	b.mu.Lock()
	b.latest[cmd.Kind()] = Sample{Command: cmd, Frame: fr, At: at}
	b.mu.Unlock()
	metrics.IncDecoded(cmd.Kind().String(), at)
}

// Send encodes cmd and queues the frame on the attached sink.
func (b *Bridge) Send(cmd layout.Command) (can.Frame, error) {
	fr := b.codec.Encode(cmd)
	b.mu.RLock()
	sink := b.sink
	b.mu.RUnlock()
	if sink == nil {
		return fr, ErrNoSink
	}
	if err := sink.SendFrame(fr); err != nil {
		return fr, fmt.Errorf("send %s: %w", cmd.Kind(), err)
	}
	metrics.IncEncoded(cmd.Kind().String())
	b.log.Debug("command_sent", "kind", cmd.Kind().String(), "frame", fr.String())
	return fr, nil
}

// Latest returns a copy of the most recent sample per kind.
func (b *Bridge) Latest() map[layout.Kind]Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[layout.Kind]Sample, len(b.latest))
	for k, s := range b.latest {
		out[k] = s
	}
	return out
}
