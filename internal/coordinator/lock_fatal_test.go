package coordinator

import (
	"testing"
	"time"

	"pkt.systems/hyperlockd/internal/clock"
	"pkt.systems/hyperlockd/internal/nsstore"
)

// TestBumpGenerationInvokesFatalHookOnPersistFailure exercises Coordinator
// §7's requirement that a failed lock.generation write is treated as fatal:
// closing the node's backing fd out from under it forces
// WriteLockGeneration to fail, and the configured FatalHook must fire
// instead of the failure silently round-tripping to the caller unnoticed.
func TestBumpGenerationInvokesFatalHookOnPersistFailure(t *testing.T) {
	dir := t.TempDir()
	store, err := nsstore.Open(dir)
	if err != nil {
		t.Fatalf("nsstore.Open: %v", err)
	}
	defer store.Close()

	var fatalErr error
	svc := New(Config{
		Store: store,
		Clock: clock.NewManual(time.Now()),
		FatalHook: func(err error) {
			fatalErr = err
		},
	})
	defer svc.Shutdown()

	sessID := svc.CreateSession("client-1")
	res, err := svc.Open(sessID, "/f", FlagCreate|FlagWrite|FlagLock, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	handle, node, err := svc.resolveHandle(res.HandleID)
	if err != nil {
		t.Fatalf("resolveHandle: %v", err)
	}
	store.CloseFd(node.fd)

	if _, err := svc.lock(node, handle, ModeExclusive, false); err == nil {
		t.Fatal("expected lock() to fail once the backing fd is closed")
	}
	if fatalErr == nil {
		t.Fatal("expected FatalHook to be invoked on persist failure")
	}
}
