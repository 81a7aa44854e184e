package coordinator

import (
	"testing"
	"time"
)

func TestExpiryHeapOrdersByDeadline(t *testing.T) {
	h := newExpiryHeap()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	h.Upsert(3, base.Add(30*time.Second))
	h.Upsert(1, base.Add(10*time.Second))
	h.Upsert(2, base.Add(20*time.Second))

	if h.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", h.Len())
	}

	id, ok := h.PopExpired(base.Add(15 * time.Second))
	if !ok || id != 1 {
		t.Fatalf("expected session 1 expired first, got id=%d ok=%v", id, ok)
	}
	if _, ok := h.PopExpired(base.Add(15 * time.Second)); ok {
		t.Fatal("session 2 should not be expired yet")
	}
	if h.Len() != 2 {
		t.Fatalf("expected 2 remaining entries, got %d", h.Len())
	}
}

func TestExpiryHeapUpsertReschedules(t *testing.T) {
	h := newExpiryHeap()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	h.Upsert(1, base.Add(10*time.Second))
	h.Upsert(1, base.Add(time.Hour))

	if _, ok := h.PopExpired(base.Add(20 * time.Second)); ok {
		t.Fatal("expected rescheduled deadline to push session 1 out")
	}
}

func TestExpiryHeapRemove(t *testing.T) {
	h := newExpiryHeap()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	h.Upsert(1, base.Add(time.Second))
	h.Upsert(2, base.Add(2*time.Second))
	h.Remove(1)

	if h.Len() != 1 {
		t.Fatalf("expected 1 entry after removal, got %d", h.Len())
	}
	id, ok := h.PopExpired(base.Add(5 * time.Second))
	if !ok || id != 2 {
		t.Fatalf("expected session 2 remaining, got id=%d ok=%v", id, ok)
	}
}
