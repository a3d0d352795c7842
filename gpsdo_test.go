package main

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"example.com/gpsdo/core/config"
	"example.com/gpsdo/core/sync"
	"example.com/gpsdo/driver/tic"
)

type nopActuator struct{}

func (nopActuator) WriteDAC(int) {}

type nopStepper struct{}

func (nopStepper) Start() bool { return true }

func (nopStepper) InFlight() (sync.StepInFlight, bool) { return sync.StepInFlight{}, false }

func TestTICTopics(t *testing.T) {
	tests := []struct {
		gnss, dsc string
		wantA     string
		wantB     string
	}{
		{"A", "B", tic.TopicGNS, tic.TopicDSC},
		{"B", "A", tic.TopicDSC, tic.TopicGNS},
	}
	for _, tt := range tests {
		m := ticTopics(config.TIC{GNSSChannel: tt.gnss, DSCChannel: tt.dsc})
		if m["A"] != tt.wantA || m["B"] != tt.wantB {
			t.Errorf("ticTopics(%s, %s): got A=%s B=%s, want A=%s B=%s",
				tt.gnss, tt.dsc, m["A"], m["B"], tt.wantA, tt.wantB)
		}
		if len(m) != 2 {
			t.Errorf("ticTopics(%s, %s): got %d entries, want 2", tt.gnss, tt.dsc, len(m))
		}
	}
}

func TestStatusHandler(t *testing.T) {
	log = zap.NewNop()
	w := sync.NewPhaseWatch(log, sync.DefaultParams(), nopActuator{}, nopStepper{}, 13000)

	rec := httptest.NewRecorder()
	statusHandler(w).ServeHTTP(rec, httptest.NewRequest("GET", "/status", nil))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want %q", ct, "application/json")
	}
	var got struct {
		Mode string `json:"mode"`
		Code int    `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if got.Mode != "Startup" || got.Code != 13000 {
		t.Errorf("status: got %+v, want mode Startup, code 13000", got)
	}
}
