package metrics_test

import (
	"net/http/httptest"
	"strings"
	"testing"

	"pkt.systems/hyperlockd/internal/metrics"
)

func TestNilCollectorMethodsAreNoops(t *testing.T) {
	var c *metrics.Collector
	c.SessionCreated()
	c.SessionExpired()
	c.HandleOpened()
	c.HandleClosed()
	c.LockGranted("EXCLUSIVE")
	c.LockConflict("BUSY")
	c.NotificationSent(3)
	c.ObserveExpirySweep(0.5)

	if c.Handler() == nil {
		t.Fatal("expected a non-nil handler even on a nil Collector")
	}
}

func TestCollectorExposesCountersOverHTTP(t *testing.T) {
	c := metrics.New()
	c.SessionCreated()
	c.SessionCreated()
	c.SessionExpired()
	c.LockGranted("EXCLUSIVE")
	c.LockConflict("BUSY")
	c.NotificationSent(2)
	c.ObserveExpirySweep(0.1)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"hyperlockd_sessions_created_total 2",
		"hyperlockd_sessions_expired_total 1",
		`hyperlockd_locks_grants_total{mode="EXCLUSIVE"} 1`,
		`hyperlockd_locks_conflicts_total{status="BUSY"} 1`,
		"hyperlockd_events_notifications_total 2",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected metrics output to contain %q, got:\n%s", want, body)
		}
	}
}
