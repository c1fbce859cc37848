package metrics

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kstaniek/go-drive-bridge/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus collectors
var (
	FramesRx = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "can_rx_frames_total",
		Help: "Total CAN frames received from the bus backend.",
	}, []string{"backend"})
	FramesTx = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "can_tx_frames_total",
		Help: "Total CAN frames written to the bus backend.",
	}, []string{"backend"})
	CommandsDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commands_decoded_total",
		Help: "Frames decoded into typed commands, by command kind.",
	}, []string{"kind"})
	CommandsEncoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commands_encoded_total",
		Help: "Typed commands encoded into frames for transmission, by command kind.",
	}, []string{"kind"})
	DecodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decode_errors_total",
		Help: "Frames that did not decode into a command, by reason.",
	}, []string{"reason"})
	LastSeen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "command_last_seen_timestamp_seconds",
		Help: "Unix time of the most recent decoded command, by kind.",
	}, []string{"kind"})
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "malformed_frames_total",
		Help: "Total rejected malformed transport frames (bad envelope length, checksum, DLC).",
	})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrSerialWrite    = "serial_write"
	ErrSerialOverflow = "serial_tx_overflow"
	ErrSerialRead     = "serial_read"
	ErrSocketCANWrite = "socketcan_write"
	ErrSocketCANOver  = "socketcan_tx_overflow"
	ErrSocketCANRead  = "socketcan_read"
	ErrAPI            = "api"
)

// Backend label values.
const (
	BackendSerial    = "serial"
	BackendSocketCAN = "socketcan"
)

// StartHTTP binds addr and serves /metrics, /ready and whatever mount adds.
// The bound address is returned so ":0" can be used.
func StartHTTP(addr string, mount func(*http.ServeMux)) (*http.Server, net.Addr, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})
	if mount != nil {
		mount(mux)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("metrics listen %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logging.L().Info("http_listen", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logging.L().Error("http_error", "error", err)
		}
	}()
	return srv, ln.Addr(), nil
}

// Local mirrored counters for easy logging (avoid Prometheus scraping in-process)
var (
	localRx        uint64
	localTx        uint64
	localDecoded   uint64
	localEncoded   uint64
	localDecodeErr uint64
	localUnknownID uint64
	localMalformed uint64
	localErrors    uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	Rx           uint64
	Tx           uint64
	Decoded      uint64
	Encoded      uint64
	DecodeErrors uint64 // all reasons
	UnknownIDs   uint64 // subset of DecodeErrors
	Malformed    uint64
	Errors       uint64 // sum across error labels
}

func Snap() Snapshot {
	return Snapshot{
		Rx:           atomic.LoadUint64(&localRx),
		Tx:           atomic.LoadUint64(&localTx),
		Decoded:      atomic.LoadUint64(&localDecoded),
		Encoded:      atomic.LoadUint64(&localEncoded),
		DecodeErrors: atomic.LoadUint64(&localDecodeErr),
		UnknownIDs:   atomic.LoadUint64(&localUnknownID),
		Malformed:    atomic.LoadUint64(&localMalformed),
		Errors:       atomic.LoadUint64(&localErrors),
	}
}

// IncRx counts a frame received from backend.
func IncRx(backend string) {
	FramesRx.WithLabelValues(backend).Inc()
	atomic.AddUint64(&localRx, 1)
}

// IncTx counts a frame written to backend.
func IncTx(backend string) {
	FramesTx.WithLabelValues(backend).Inc()
	atomic.AddUint64(&localTx, 1)
}

// IncDecoded counts a decoded command and stamps its last-seen time.
func IncDecoded(kind string, at time.Time) {
	CommandsDecoded.WithLabelValues(kind).Inc()
	LastSeen.WithLabelValues(kind).Set(float64(at.UnixNano()) / 1e9)
	atomic.AddUint64(&localDecoded, 1)
}

func IncEncoded(kind string) {
	CommandsEncoded.WithLabelValues(kind).Inc()
	atomic.AddUint64(&localEncoded, 1)
}

// IncDecodeError counts a decode failure; reason comes from layout.Reason.
func IncDecodeError(reason string) {
	DecodeErrors.WithLabelValues(reason).Inc()
	atomic.AddUint64(&localDecodeErr, 1)
	if reason == "unknown_id" {
		atomic.AddUint64(&localUnknownID, 1)
	}
}

func IncMalformed() {
	MalformedFrames.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	// Pre-register common error label series so first error does not log a registration latency.
	for _, lbl := range []string{
		ErrSerialWrite, ErrSerialOverflow, ErrSerialRead,
		ErrSocketCANWrite, ErrSocketCANOver, ErrSocketCANRead, ErrAPI,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil { // if not set yet, treat as ready so metrics endpoint doesn't flap
		return true
	}
	return fn()
}
