package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/kstaniek/go-drive-bridge/internal/layout"
	"github.com/kstaniek/go-drive-bridge/internal/metrics"
	"github.com/kstaniek/go-drive-bridge/internal/serial"
	"github.com/kstaniek/go-drive-bridge/internal/socketcan"
	"github.com/kstaniek/go-drive-bridge/internal/transport"
)

const (
	contentTypeJSON    = "application/json"
	contentTypeMsgpack = "application/msgpack"
	maxCommandBody     = 4 << 10
)

// telemetryEntry carries fields twice: JSON gets fieldMap's rendering,
// msgpack gets the raw float32 values (NaN and Inf included).
type telemetryEntry struct {
	Kind   string             `json:"kind" msgpack:"kind"`
	ID     string             `json:"id" msgpack:"id"`
	Frame  string             `json:"frame" msgpack:"frame"`
	At     time.Time          `json:"at" msgpack:"at"`
	Fields map[string]any     `json:"fields" msgpack:"-"`
	Values map[string]float32 `json:"-" msgpack:"fields"`
}

type telemetryResponse struct {
	Samples []telemetryEntry `json:"samples" msgpack:"samples"`
}

type fieldEntry struct {
	Name   string `json:"name"`
	Offset int    `json:"offset"`
	Width  int    `json:"width"`
}

type layoutEntry struct {
	Kind     string       `json:"kind"`
	ID       string       `json:"id"`
	Base     string       `json:"base"`
	Len      uint8        `json:"len"`
	Fields   []fieldEntry `json:"fields"`
	Reserved []fieldEntry `json:"reserved,omitempty"`
}

type sentResponse struct {
	Kind  string `json:"kind"`
	Frame string `json:"frame"`
}

// Mount registers the API routes on mux.
func (b *Bridge) Mount(mux *http.ServeMux) {
	mux.HandleFunc("GET /telemetry", b.handleTelemetry)
	mux.HandleFunc("GET /layouts", b.handleLayouts)
	mux.HandleFunc("POST /commands/{kind}", b.handleCommand)
}

// Handler returns a mux serving only the API routes.
func (b *Bridge) Handler() http.Handler {
	mux := http.NewServeMux()
	b.Mount(mux)
	return mux
}

func (b *Bridge) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	latest := b.Latest()
	resp := telemetryResponse{Samples: make([]telemetryEntry, 0, len(latest))}
	for _, k := range layout.Kinds() {
		s, ok := latest[k]
		if !ok {
			continue
		}
		resp.Samples = append(resp.Samples, telemetryEntry{
			Kind:   k.String(),
			ID:     hexID(s.Frame.ID),
			Frame:  s.Frame.String(),
			At:     s.At.UTC(),
			Fields: fieldMap(s.Command),
			Values: rawValues(s.Command),
		})
	}
	if strings.Contains(r.Header.Get("Accept"), contentTypeMsgpack) {
		body, err := msgpack.Marshal(resp)
		if err != nil {
			b.fail(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", contentTypeMsgpack)
		_, _ = w.Write(body)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (b *Bridge) handleLayouts(w http.ResponseWriter, _ *http.Request) {
	table := b.codec.Describe()
	out := make([]layoutEntry, 0, len(table))
	for _, e := range table {
		le := layoutEntry{
			Kind: e.Kind.String(),
			ID:   hexID(e.ID),
			Base: e.Base.String(),
			Len:  e.Len,
		}
		for _, f := range e.Fields {
			le.Fields = append(le.Fields, fieldEntry{Name: f.Name, Offset: f.Offset, Width: f.Width})
		}
		for _, sp := range e.Reserved {
			le.Reserved = append(le.Reserved, fieldEntry{Name: "reserved", Offset: sp.Offset, Width: sp.Width})
		}
		out = append(out, le)
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Bridge) handleCommand(w http.ResponseWriter, r *http.Request) {
	k, err := layout.ParseKind(r.PathValue("kind"))
	if err != nil {
		b.fail(w, http.StatusNotFound, err)
		return
	}
	var fields map[string]float64
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCommandBody))
	if err := dec.Decode(&fields); err != nil {
		b.fail(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	if fields == nil { // body was JSON null
		b.fail(w, http.StatusBadRequest, errors.New("body must be a JSON object"))
		return
	}
	cmd, err := layout.Build(k, fields)
	if err != nil {
		b.fail(w, http.StatusBadRequest, err)
		return
	}
	fr, err := b.Send(cmd)
	if err != nil {
		b.fail(w, sendStatus(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, sentResponse{Kind: k.String(), Frame: fr.String()})
}

// sendStatus maps transport errors to a status; a full or closed queue is
// reported as temporarily unavailable.
func sendStatus(err error) int {
	switch {
	case errors.Is(err, serial.ErrTxOverflow),
		errors.Is(err, socketcan.ErrTxOverflow),
		errors.Is(err, transport.ErrAsyncTxClosed),
		errors.Is(err, ErrNoSink):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (b *Bridge) fail(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		metrics.IncError(metrics.ErrAPI)
		b.log.Warn("api_error", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// fieldMap renders command fields at float32 precision. Non-finite values
// become strings ("NaN", "+Inf", "-Inf"); JSON has no encoding for them.
func fieldMap(cmd layout.Command) map[string]any {
	vals := layout.Values(cmd)
	out := make(map[string]any, len(vals))
	for _, v := range vals {
		s := strconv.FormatFloat(float64(v.Value), 'g', -1, 32)
		if math.IsNaN(float64(v.Value)) || math.IsInf(float64(v.Value), 0) {
			out[v.Name] = s
			continue
		}
		f, _ := strconv.ParseFloat(s, 64)
		out[v.Name] = f
	}
	return out
}

func rawValues(cmd layout.Command) map[string]float32 {
	vals := layout.Values(cmd)
	out := make(map[string]float32, len(vals))
	for _, v := range vals {
		out[v.Name] = v.Value
	}
	return out
}

func hexID(id uint32) string { return fmt.Sprintf("0x%03X", id) }
