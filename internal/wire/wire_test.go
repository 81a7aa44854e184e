package wire_test

import (
	"bufio"
	"bytes"
	"testing"

	"pkt.systems/hyperlockd/internal/wire"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	payload := []byte("hello, coordinator")
	if err := wire.WriteFrame(w, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	r := bufio.NewReader(&buf)
	got, err := wire.ReadFrame(r)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("expected %q, got %q", payload, got)
	}
}

func TestRequestRoundTripOpen(t *testing.T) {
	req := wire.Request{
		RequestID: 42,
		Op:        wire.OpOpen,
		SessionID: 7,
		Path:      "/widgets/a",
		Flags:     3,
		EventMask: 5,
	}
	payload := wire.EncodeRequest(req)
	got, err := wire.DecodeRequest(payload)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if got.RequestID != req.RequestID || got.Op != req.Op || got.SessionID != req.SessionID ||
		got.Path != req.Path || got.Flags != req.Flags || got.EventMask != req.EventMask {
		t.Fatalf("round trip mismatch: want %+v, got %+v", req, got)
	}
}

func TestRequestRoundTripLock(t *testing.T) {
	req := wire.Request{
		RequestID:  1,
		Op:         wire.OpLock,
		SessionID:  2,
		HandleID:   99,
		LockMode:   2,
		TryAcquire: true,
	}
	payload := wire.EncodeRequest(req)
	got, err := wire.DecodeRequest(payload)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if got.RequestID != req.RequestID || got.Op != req.Op || got.SessionID != req.SessionID ||
		got.HandleID != req.HandleID || got.LockMode != req.LockMode || got.TryAcquire != req.TryAcquire {
		t.Fatalf("round trip mismatch: want %+v, got %+v", req, got)
	}
}

func TestRequestRoundTripAttrSet(t *testing.T) {
	req := wire.Request{
		RequestID: 5,
		Op:        wire.OpAttrSet,
		SessionID: 1,
		HandleID:  3,
		AttrName:  "owner",
		AttrValue: []byte("alice"),
	}
	payload := wire.EncodeRequest(req)
	got, err := wire.DecodeRequest(payload)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if got.AttrName != req.AttrName || !bytes.Equal(got.AttrValue, req.AttrValue) {
		t.Fatalf("round trip mismatch: want %+v, got %+v", req, got)
	}
}

func TestResponseRoundTripKeepAliveWithNotifications(t *testing.T) {
	resp := wire.Response{
		RequestID:         10,
		DeadlineUnixMilli: 1234567890,
		Notifications: []wire.NotificationWire{
			{
				EventID:  1,
				HandleID: 2,
				Kind:     4,
				Payload: wire.EventPayloadWire{
					ChildName:     "a",
					AttrName:      "",
					Mode:          1,
					LockGen:       7,
					GrantedHandle: 2,
				},
			},
		},
	}
	payload := wire.EncodeResponse(wire.OpKeepAlive, resp)
	got, err := wire.DecodeResponse(wire.OpKeepAlive, payload)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if got.DeadlineUnixMilli != resp.DeadlineUnixMilli {
		t.Fatalf("deadline mismatch: want %d, got %d", resp.DeadlineUnixMilli, got.DeadlineUnixMilli)
	}
	if len(got.Notifications) != 1 || got.Notifications[0] != resp.Notifications[0] {
		t.Fatalf("notification round trip mismatch: want %+v, got %+v", resp.Notifications, got.Notifications)
	}
}

func TestResponseRoundTripHandshake(t *testing.T) {
	resp := wire.Response{
		RequestID:  1,
		Generation: 3,
	}
	payload := wire.EncodeResponse(wire.OpHandshake, resp)
	got, err := wire.DecodeResponse(wire.OpHandshake, payload)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if got.Generation != resp.Generation {
		t.Fatalf("generation round trip mismatch: want %d, got %d", resp.Generation, got.Generation)
	}
}

func TestResponseRoundTripErrorSkipsPayload(t *testing.T) {
	resp := wire.Response{
		RequestID: 3,
		ErrorCode: 5,
		Detail:    "bad pathname",
	}
	payload := wire.EncodeResponse(wire.OpOpen, resp)
	got, err := wire.DecodeResponse(wire.OpOpen, payload)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if got.ErrorCode != resp.ErrorCode || got.Detail != resp.Detail {
		t.Fatalf("error round trip mismatch: want %+v, got %+v", resp, got)
	}
	if got.HandleID != 0 || got.Created {
		t.Fatalf("expected zero-value payload fields on error response, got %+v", got)
	}
}

func TestDecodeRequestShortPayload(t *testing.T) {
	if _, err := wire.DecodeRequest([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error decoding a truncated request")
	}
}

func TestOpcodeString(t *testing.T) {
	if wire.OpLock.String() != "LOCK" {
		t.Fatalf("expected LOCK, got %s", wire.OpLock.String())
	}
	if wire.Opcode(255).String() != "UNKNOWN_OP" {
		t.Fatalf("expected UNKNOWN_OP for an unrecognized opcode")
	}
}
