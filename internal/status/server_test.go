package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthz(t *testing.T) {
	s := New("127.0.0.1:0", Sources{})

	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d", rec.Code)
	}
}

func TestStatusReportsSources(t *testing.T) {
	s := New("127.0.0.1:0", Sources{
		EventID:      "ev-1",
		ChannelState: func() string { return "open" },
		PhotoCount:   func() int { return 42 },
		QueueDepth:   func() (int64, error) { return 3, nil },
	})

	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.EventID != "ev-1" || resp.ChannelState != "open" || resp.PhotoCount != 42 || resp.QueueDepth != 3 {
		t.Errorf("response = %+v", resp)
	}
	if resp.Time == "" {
		t.Error("time field missing")
	}
}

func TestStatusSkipsNilSources(t *testing.T) {
	s := New("127.0.0.1:0", Sources{EventID: "ev-1"})

	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d with nil sources", rec.Code)
	}

	var resp statusResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.PhotoCount != 0 || resp.QueueDepth != 0 || resp.ChannelState != "" {
		t.Errorf("nil sources leaked values: %+v", resp)
	}
}

func TestMetricsEndpointServes(t *testing.T) {
	s := New("127.0.0.1:0", Sources{})

	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("metrics status = %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Error("metrics body empty")
	}
}
