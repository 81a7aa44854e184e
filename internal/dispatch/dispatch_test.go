package dispatch_test

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"pkt.systems/hyperlockd/internal/coordinator"
	"pkt.systems/hyperlockd/internal/dispatch"
	"pkt.systems/hyperlockd/internal/nsstore"
	"pkt.systems/hyperlockd/internal/wire"
)

func newTestServer(t *testing.T) *dispatch.Server {
	t.Helper()
	dir := t.TempDir()
	store, err := nsstore.Open(dir)
	if err != nil {
		t.Fatalf("nsstore.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	svc := coordinator.New(coordinator.Config{Store: store})
	t.Cleanup(svc.Shutdown)

	return dispatch.New(dispatch.Config{Service: svc})
}

// newPipedClient runs srv's Serve loop on a loopback TCP listener in the
// background and returns a connection dialed to it plus a cleanup func.
func newPipedClient(t *testing.T, srv *dispatch.Server) (net.Conn, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx, ln)

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		cancel()
		t.Fatalf("Dial: %v", err)
	}
	return conn, func() {
		conn.Close()
		cancel()
		ln.Close()
	}
}

func roundTrip(t *testing.T, conn net.Conn, req wire.Request) wire.Response {
	t.Helper()
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
	return resp
}

func TestDispatchCreateSessionAndMkdirAndOpen(t *testing.T) {
	srv := newTestServer(t)
	conn, closeAll := newPipedClient(t, srv)
	defer closeAll()

	sessResp := roundTrip(t, conn, wire.Request{RequestID: 1, Op: wire.OpCreateSession, ClientAddr: "test-client"})
	if sessResp.ErrorCode != 0 {
		t.Fatalf("CreateSession failed: %+v", sessResp)
	}
	sessionID := sessResp.SessionID

	mkdirResp := roundTrip(t, conn, wire.Request{RequestID: 2, Op: wire.OpMkdir, SessionID: sessionID, Path: "/widgets"})
	if mkdirResp.ErrorCode != 0 {
		t.Fatalf("Mkdir failed: %+v", mkdirResp)
	}

	openResp := roundTrip(t, conn, wire.Request{
		RequestID: 3,
		Op:        wire.OpOpen,
		SessionID: sessionID,
		Path:      "/widgets/a",
		Flags:     uint32(coordinator.FlagCreate | coordinator.FlagWrite),
	})
	if openResp.ErrorCode != 0 {
		t.Fatalf("Open failed: %+v", openResp)
	}
	if !openResp.Created {
		t.Fatal("expected Created=true for a fresh file")
	}

	existsResp := roundTrip(t, conn, wire.Request{RequestID: 4, Op: wire.OpExists, Path: "/widgets/a"})
	if !existsResp.Exists {
		t.Fatal("expected /widgets/a to exist")
	}
}

func TestDispatchHandshakeReturnsGeneration(t *testing.T) {
	srv := newTestServer(t)
	conn, closeAll := newPipedClient(t, srv)
	defer closeAll()

	resp := roundTrip(t, conn, wire.Request{RequestID: 1, Op: wire.OpHandshake})
	if resp.ErrorCode != 0 {
		t.Fatalf("Handshake failed: %+v", resp)
	}
	if resp.Generation != 1 {
		t.Fatalf("expected generation 1 on a fresh base directory, got %d", resp.Generation)
	}
}

func TestDispatchUnknownHandleReturnsInvalidHandle(t *testing.T) {
	srv := newTestServer(t)
	conn, closeAll := newPipedClient(t, srv)
	defer closeAll()

	resp := roundTrip(t, conn, wire.Request{RequestID: 1, Op: wire.OpClose, HandleID: 999})
	if resp.ErrorCode != uint16(coordinator.ErrInvalidHandle) {
		t.Fatalf("expected ErrInvalidHandle, got %+v", resp)
	}
}

func TestDispatchLockAndRelease(t *testing.T) {
	srv := newTestServer(t)
	conn, closeAll := newPipedClient(t, srv)
	defer closeAll()

	sessResp := roundTrip(t, conn, wire.Request{RequestID: 1, Op: wire.OpCreateSession, ClientAddr: "c"})
	sessionID := sessResp.SessionID

	openResp := roundTrip(t, conn, wire.Request{
		RequestID: 2,
		Op:        wire.OpOpen,
		SessionID: sessionID,
		Path:      "/f",
		Flags:     uint32(coordinator.FlagCreate | coordinator.FlagWrite | coordinator.FlagLock),
	})
	if openResp.ErrorCode != 0 {
		t.Fatalf("Open failed: %+v", openResp)
	}

	lockResp := roundTrip(t, conn, wire.Request{
		RequestID: 3,
		Op:        wire.OpLock,
		HandleID:  openResp.HandleID,
		LockMode:  uint8(coordinator.ModeExclusive),
	})
	if lockResp.ErrorCode != 0 || lockResp.LockStatus != uint8(coordinator.LockGranted) {
		t.Fatalf("expected lock granted, got %+v", lockResp)
	}

	relResp := roundTrip(t, conn, wire.Request{RequestID: 4, Op: wire.OpRelease, HandleID: openResp.HandleID})
	if relResp.ErrorCode != 0 {
		t.Fatalf("Release failed: %+v", relResp)
	}
}
