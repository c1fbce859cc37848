package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestSnapCounters(t *testing.T) {
	before := Snap()
	IncRx(BackendSerial)
	IncTx(BackendSocketCAN)
	IncDecoded("drive", time.Now())
	IncEncoded("drive")
	IncDecodeError("unknown_id")
	IncDecodeError("bad_length")
	IncMalformed()
	IncError(ErrAPI)
	after := Snap()
	if after.Rx != before.Rx+1 || after.Tx != before.Tx+1 {
		t.Fatalf("rx/tx not counted: %+v -> %+v", before, after)
	}
	if after.Decoded != before.Decoded+1 || after.Encoded != before.Encoded+1 {
		t.Fatalf("codec counters: %+v -> %+v", before, after)
	}
	if after.DecodeErrors != before.DecodeErrors+2 || after.UnknownIDs != before.UnknownIDs+1 {
		t.Fatalf("decode errors: %+v -> %+v", before, after)
	}
	if after.Malformed != before.Malformed+1 || after.Errors != before.Errors+1 {
		t.Fatalf("malformed/errors: %+v -> %+v", before, after)
	}
}

func TestStartHTTPReadyAndMount(t *testing.T) {
	srv, addr, err := StartHTTP("127.0.0.1:0", func(mux *http.ServeMux) {
		mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) { _, _ = io.WriteString(w, "pong") })
	})
	if err != nil {
		t.Fatalf("StartHTTP: %v", err)
	}
	defer func() { _ = srv.Shutdown(context.Background()) }()
	base := "http://" + addr.String()

	SetReadinessFunc(func() bool { return false })
	defer SetReadinessFunc(nil)
	resp, err := http.Get(base + "/ready")
	if err != nil {
		t.Fatalf("get /ready: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("/ready status %d", resp.StatusCode)
	}

	resp, err = http.Get(base + "/ping")
	if err != nil {
		t.Fatalf("get /ping: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "pong" {
		t.Fatalf("mount not served: %q", body)
	}

	IncDecoded("bus_state", time.Now())
	resp, err = http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("get /metrics: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `commands_decoded_total{kind="bus_state"}`) {
		t.Fatalf("decoded counter missing from exposition")
	}
}
