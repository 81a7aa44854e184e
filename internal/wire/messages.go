package wire

// Request is a fully decoded request frame: header plus opcode-specific
// fields. Not every field is meaningful for every Op.
type Request struct {
	RequestID uint64
	Op        Opcode
	SessionID uint64

	Path       string
	HandleID   uint64
	Flags      uint32
	EventMask  uint32
	AttrName   string
	AttrValue  []byte
	LockMode   uint8
	TryAcquire bool
	AckedEvent uint64
	ClientAddr string
}

// EncodeRequest serializes req into a frame payload.
func EncodeRequest(req Request) []byte {
	e := &encoder{}
	e.u64(req.RequestID)
	e.u16(uint16(req.Op))
	e.u64(req.SessionID)

	switch req.Op {
	case OpHandshake:
		e.u16(ProtocolVersion)
	case OpCreateSession:
		e.str(req.ClientAddr)
	case OpKeepAlive:
		e.u64(req.AckedEvent)
	case OpOpen:
		e.str(req.Path)
		e.u32(req.Flags)
		e.u32(req.EventMask)
	case OpClose:
		e.u64(req.HandleID)
	case OpMkdir, OpDelete, OpExists:
		e.str(req.Path)
	case OpAttrSet:
		e.u64(req.HandleID)
		e.str(req.AttrName)
		e.bytes(req.AttrValue)
	case OpAttrGet, OpAttrDel:
		e.u64(req.HandleID)
		e.str(req.AttrName)
	case OpLock:
		e.u64(req.HandleID)
		e.buf = append(e.buf, req.LockMode)
		var flag byte
		if req.TryAcquire {
			flag = 1
		}
		e.buf = append(e.buf, flag)
	case OpRelease:
		e.u64(req.HandleID)
	}
	return e.bytesOut()
}

// DecodeRequest parses a frame payload previously produced by EncodeRequest.
func DecodeRequest(payload []byte) (Request, error) {
	d := newDecoder(payload)
	var req Request
	var err error
	if req.RequestID, err = d.u64(); err != nil {
		return Request{}, err
	}
	op, err := d.u16()
	if err != nil {
		return Request{}, err
	}
	req.Op = Opcode(op)
	if req.SessionID, err = d.u64(); err != nil {
		return Request{}, err
	}

	switch req.Op {
	case OpHandshake:
		if _, err = d.u16(); err != nil {
			return Request{}, err
		}
	case OpCreateSession:
		if req.ClientAddr, err = d.str(); err != nil {
			return Request{}, err
		}
	case OpKeepAlive:
		if req.AckedEvent, err = d.u64(); err != nil {
			return Request{}, err
		}
	case OpOpen:
		if req.Path, err = d.str(); err != nil {
			return Request{}, err
		}
		if req.Flags, err = d.u32(); err != nil {
			return Request{}, err
		}
		if req.EventMask, err = d.u32(); err != nil {
			return Request{}, err
		}
	case OpClose:
		if req.HandleID, err = d.u64(); err != nil {
			return Request{}, err
		}
	case OpMkdir, OpDelete, OpExists:
		if req.Path, err = d.str(); err != nil {
			return Request{}, err
		}
	case OpAttrSet:
		if req.HandleID, err = d.u64(); err != nil {
			return Request{}, err
		}
		if req.AttrName, err = d.str(); err != nil {
			return Request{}, err
		}
		if req.AttrValue, err = d.bytes(); err != nil {
			return Request{}, err
		}
	case OpAttrGet, OpAttrDel:
		if req.HandleID, err = d.u64(); err != nil {
			return Request{}, err
		}
		if req.AttrName, err = d.str(); err != nil {
			return Request{}, err
		}
	case OpLock:
		if req.HandleID, err = d.u64(); err != nil {
			return Request{}, err
		}
		if d.remaining() < 2 {
			return Request{}, ErrShortPayload
		}
		req.LockMode = d.buf[d.off]
		req.TryAcquire = d.buf[d.off+1] != 0
		d.off += 2
	case OpRelease:
		if req.HandleID, err = d.u64(); err != nil {
			return Request{}, err
		}
	}
	return req, nil
}

// NotificationWire mirrors coordinator.Notification for wire transport.
type NotificationWire struct {
	EventID  uint64
	HandleID uint64
	Kind     uint8
	Payload  EventPayloadWire
}

// EventPayloadWire mirrors coordinator.EventPayload for wire transport.
type EventPayloadWire struct {
	ChildName     string
	AttrName      string
	Mode          uint8
	LockGen       uint64
	GrantedHandle uint64
}

// Response is a fully decoded response frame.
type Response struct {
	RequestID uint64
	ErrorCode uint16
	Detail    string

	Generation        uint32
	SessionID         uint64
	DeadlineUnixMilli int64
	Notifications     []NotificationWire

	HandleID uint64
	Created  bool
	Exists   bool
	AttrValue []byte

	LockStatus     uint8
	LockGeneration uint64
}

func encodeNotification(e *encoder, n NotificationWire) {
	e.u64(n.EventID)
	e.u64(n.HandleID)
	e.buf = append(e.buf, n.Kind)
	e.str(n.Payload.ChildName)
	e.str(n.Payload.AttrName)
	e.buf = append(e.buf, n.Payload.Mode)
	e.u64(n.Payload.LockGen)
	e.u64(n.Payload.GrantedHandle)
}

func decodeNotification(d *decoder) (NotificationWire, error) {
	var n NotificationWire
	var err error
	if n.EventID, err = d.u64(); err != nil {
		return n, err
	}
	if n.HandleID, err = d.u64(); err != nil {
		return n, err
	}
	if d.remaining() < 1 {
		return n, ErrShortPayload
	}
	n.Kind = d.buf[d.off]
	d.off++
	if n.Payload.ChildName, err = d.str(); err != nil {
		return n, err
	}
	if n.Payload.AttrName, err = d.str(); err != nil {
		return n, err
	}
	if d.remaining() < 1 {
		return n, ErrShortPayload
	}
	n.Payload.Mode = d.buf[d.off]
	d.off++
	if n.Payload.LockGen, err = d.u64(); err != nil {
		return n, err
	}
	if n.Payload.GrantedHandle, err = d.u64(); err != nil {
		return n, err
	}
	return n, nil
}

// EncodeResponse serializes resp for op into a frame payload.
func EncodeResponse(op Opcode, resp Response) []byte {
	e := &encoder{}
	e.u64(resp.RequestID)
	e.u16(resp.ErrorCode)
	e.str(resp.Detail)
	if resp.ErrorCode != 0 {
		return e.bytesOut()
	}

	switch op {
	case OpHandshake:
		e.u16(ProtocolVersion)
		e.u32(resp.Generation)
	case OpCreateSession:
		e.u64(resp.SessionID)
	case OpKeepAlive:
		e.i64(resp.DeadlineUnixMilli)
		e.u32(uint32(len(resp.Notifications)))
		for _, n := range resp.Notifications {
			encodeNotification(e, n)
		}
	case OpOpen:
		e.u64(resp.HandleID)
		var created byte
		if resp.Created {
			created = 1
		}
		e.buf = append(e.buf, created)
	case OpExists:
		var exists byte
		if resp.Exists {
			exists = 1
		}
		e.buf = append(e.buf, exists)
	case OpAttrGet:
		e.bytes(resp.AttrValue)
	case OpLock:
		e.buf = append(e.buf, resp.LockStatus)
		e.u64(resp.LockGeneration)
	}
	return e.bytesOut()
}

// DecodeResponse parses a frame payload previously produced by EncodeResponse
// for the given op.
func DecodeResponse(op Opcode, payload []byte) (Response, error) {
	d := newDecoder(payload)
	var resp Response
	var err error
	if resp.RequestID, err = d.u64(); err != nil {
		return Response{}, err
	}
	if resp.ErrorCode, err = d.u16(); err != nil {
		return Response{}, err
	}
	if resp.Detail, err = d.str(); err != nil {
		return Response{}, err
	}
	if resp.ErrorCode != 0 {
		return resp, nil
	}

	switch op {
	case OpHandshake:
		if _, err = d.u16(); err != nil {
			return Response{}, err
		}
		if resp.Generation, err = d.u32(); err != nil {
			return Response{}, err
		}
	case OpCreateSession:
		if resp.SessionID, err = d.u64(); err != nil {
			return Response{}, err
		}
	case OpKeepAlive:
		if resp.DeadlineUnixMilli, err = d.i64(); err != nil {
			return Response{}, err
		}
		count, err := d.u32()
		if err != nil {
			return Response{}, err
		}
		resp.Notifications = make([]NotificationWire, 0, count)
		for i := uint32(0); i < count; i++ {
			n, err := decodeNotification(d)
			if err != nil {
				return Response{}, err
			}
			resp.Notifications = append(resp.Notifications, n)
		}
	case OpOpen:
		if resp.HandleID, err = d.u64(); err != nil {
			return Response{}, err
		}
		if d.remaining() < 1 {
			return Response{}, ErrShortPayload
		}
		resp.Created = d.buf[d.off] != 0
		d.off++
	case OpExists:
		if d.remaining() < 1 {
			return Response{}, ErrShortPayload
		}
		resp.Exists = d.buf[d.off] != 0
		d.off++
	case OpAttrGet:
		if resp.AttrValue, err = d.bytes(); err != nil {
			return Response{}, err
		}
	case OpLock:
		if d.remaining() < 1 {
			return Response{}, ErrShortPayload
		}
		resp.LockStatus = d.buf[d.off]
		d.off++
		if resp.LockGeneration, err = d.u64(); err != nil {
			return Response{}, err
		}
	}
	return resp, nil
}
