package metricsserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aerocore/aerocore/gc"
	"github.com/aerocore/aerocore/iccache"
)

type fakeGCSource struct{}

func (fakeGCSource) Stats() gc.Stats        { return gc.Stats{} }
func (fakeGCSource) CurrentPhase() gc.Phase { return gc.PhaseIdle }
func (fakeGCSource) HeapSize() int          { return 1024 }
func (fakeGCSource) UsedMemory() int        { return 0 }

type fakeICSource struct{}

func (fakeICSource) Stats() iccache.ManagerStats { return iccache.ManagerStats{} }

func TestHandleGCStats(t *testing.T) {
	s := New("127.0.0.1:0", fakeGCSource{}, fakeICSource{})
	req := httptest.NewRequest(http.MethodGet, "/gc/stats", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestHandleICStats(t *testing.T) {
	s := New("127.0.0.1:0", fakeGCSource{}, fakeICSource{})
	req := httptest.NewRequest(http.MethodGet, "/ic/stats", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
