package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/arancormonk/dsd-neo/internal/trunk"
)

// stubSource serves a canned snapshot.
type stubSource struct {
	snap     *trunk.Snapshot
	lockouts []trunk.HistoryRow
}

func (s *stubSource) Snapshot() *trunk.Snapshot      { return s.snap }
func (s *stubSource) Lockouts() []trunk.HistoryRow   { return s.lockouts }

func newTestServer(t *testing.T, src SnapshotSource, opts ServerOptions) *httptest.Server {
	t.Helper()
	opts.Addr = "127.0.0.1:0"
	opts.Source = src
	opts.Log = zerolog.Nop()
	if opts.StartTime.IsZero() {
		opts.StartTime = time.Now()
	}
	srv := NewServer(opts)
	ts := httptest.NewServer(srv.http.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decoding %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestStatusEndpoint(t *testing.T) {
	src := &stubSource{snap: &trunk.Snapshot{
		State:    "tuned",
		Phase:    "following",
		CCFreqHz: 851012500,
		VCFreqHz: 852250000,
		TG:       1234,
		Counters: trunk.Counters{Tunes: 3, Releases: 2},
	}}
	ts := newTestServer(t, src, ServerOptions{Version: "test"})

	var snap trunk.Snapshot
	if code := getJSON(t, ts.URL+"/api/v1/status", &snap); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if snap.State != "tuned" || snap.TG != 1234 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestStatusEndpointNoSnapshot(t *testing.T) {
	ts := newTestServer(t, &stubSource{}, ServerOptions{})
	if code := getJSON(t, ts.URL+"/api/v1/status", nil); code != http.StatusServiceUnavailable {
		t.Fatalf("status code = %d, want 503", code)
	}
}

func TestHealthChecks(t *testing.T) {
	t.Run("all_ok", func(t *testing.T) {
		ts := newTestServer(t, &stubSource{snap: &trunk.Snapshot{}}, ServerOptions{
			MQTTConnected: func() bool { return true },
			DBHealth:      func(context.Context) error { return nil },
		})
		var resp struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks"`
		}
		getJSON(t, ts.URL+"/healthz", &resp)
		if resp.Status != "ok" || resp.Checks["mqtt"] != "ok" || resp.Checks["database"] != "ok" {
			t.Errorf("health = %+v", resp)
		}
	})

	t.Run("degraded", func(t *testing.T) {
		ts := newTestServer(t, &stubSource{snap: &trunk.Snapshot{}}, ServerOptions{
			MQTTConnected: func() bool { return false },
			DBHealth:      func(context.Context) error { return fmt.Errorf("down") },
		})
		var resp struct {
			Status string `json:"status"`
		}
		getJSON(t, ts.URL+"/healthz", &resp)
		if resp.Status != "degraded" {
			t.Errorf("status = %q, want degraded", resp.Status)
		}
	})
}

func TestLockoutsEndpoint(t *testing.T) {
	src := &stubSource{
		snap:     &trunk.Snapshot{},
		lockouts: []trunk.HistoryRow{{Mode: "DE", TG: 9999}},
	}
	ts := newTestServer(t, src, ServerOptions{})

	var rows []trunk.HistoryRow
	getJSON(t, ts.URL+"/api/v1/lockouts", &rows)
	if len(rows) != 1 || rows[0].TG != 9999 || rows[0].Mode != "DE" {
		t.Errorf("lockouts = %+v", rows)
	}
}

func TestPatchesEndpoint(t *testing.T) {
	src := &stubSource{snap: &trunk.Snapshot{
		PatchSummary: "P: 069",
		Patches:      []trunk.PatchSnapshot{{SGID: 69, Kind: "patch", Clear: true}},
	}}
	ts := newTestServer(t, src, ServerOptions{})

	var resp struct {
		Summary string                `json:"summary"`
		Patches []trunk.PatchSnapshot `json:"patches"`
	}
	getJSON(t, ts.URL+"/api/v1/patches", &resp)
	if resp.Summary != "P: 069" || len(resp.Patches) != 1 || resp.Patches[0].SGID != 69 {
		t.Errorf("patches = %+v", resp)
	}
}
