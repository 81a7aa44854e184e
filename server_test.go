package hyperlockd

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"pkt.systems/hyperlockd/internal/wire"
)

func waitFor(t *testing.T, timeout, interval time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if fn() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %s", timeout)
		}
		time.Sleep(interval)
	}
}

func dialListen(t *testing.T, srv *Server) net.Conn {
	t.Helper()
	var conn net.Conn
	var err error
	waitFor(t, 2*time.Second, 10*time.Millisecond, func() bool {
		srv.mu.Lock()
		ln := srv.ln
		srv.mu.Unlock()
		if ln == nil {
			return false
		}
		conn, err = net.Dial("tcp", ln.Addr().String())
		return err == nil
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	return conn
}

func TestServerStartServesWireProtocol(t *testing.T) {
	cfg := Config{BaseDir: t.TempDir(), Listen: "127.0.0.1:0"}
	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- srv.Start() }()

	conn := dialListen(t, srv)
	defer conn.Close()

	req := wire.Request{RequestID: 1, Op: wire.OpCreateSession, ClientAddr: "test"}
	w := bufio.NewWriter(conn)
	if err := wire.WriteFrame(w, wire.EncodeRequest(req)); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	r := bufio.NewReader(conn)
	payload, err := wire.ReadFrame(r)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	resp, err := wire.DecodeResponse(req.Op, payload)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if resp.ErrorCode != 0 {
		t.Fatalf("CreateSession failed: %+v", resp)
	}
	if resp.SessionID == 0 {
		t.Fatal("expected non-zero session id")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Start returned error after shutdown: %v", err)
	}
}

func TestServerShutdownIsIdempotent(t *testing.T) {
	cfg := Config{BaseDir: t.TempDir(), Listen: "127.0.0.1:0"}
	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	go srv.Start()
	dialListen(t, srv).Close()

	ctx := context.Background()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

func TestServerWatchExternalChangesStartsAndStops(t *testing.T) {
	cfg := Config{BaseDir: t.TempDir(), Listen: "127.0.0.1:0", WatchExternalChanges: true}
	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if srv.watcher == nil {
		t.Fatal("expected external change watcher to be created")
	}
	go srv.Start()
	dialListen(t, srv).Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
