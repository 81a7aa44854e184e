package dispatch

import (
	"context"

	"pkt.systems/hyperlockd/internal/coordinator"
	"pkt.systems/hyperlockd/internal/wire"
)

// invoke maps a decoded request onto the matching coordinator.Service call
// and builds the response payload. context is accepted for future
// deadline/cancellation propagation into the service; the current
// coordinator API is synchronous and non-blocking so it is unused today.
func (s *Server) invoke(_ context.Context, req wire.Request) wire.Response {
	switch req.Op {
	case wire.OpHandshake:
		return wire.Response{Generation: s.svc.Generation()}

	case wire.OpCreateSession:
		id := s.svc.CreateSession(req.ClientAddr)
		return wire.Response{SessionID: id}

	case wire.OpKeepAlive:
		result, err := s.svc.KeepAlive(req.SessionID, req.AckedEvent)
		if err != nil {
			return errorResponse(err)
		}
		notifications := make([]wire.NotificationWire, 0, len(result.Notifications))
		for _, n := range result.Notifications {
			notifications = append(notifications, toWireNotification(n))
		}
		return wire.Response{DeadlineUnixMilli: result.DeadlineUnixMilli, Notifications: notifications}

	case wire.OpOpen:
		result, err := s.svc.Open(req.SessionID, req.Path, coordinator.OpenFlag(req.Flags), coordinator.EventMask(req.EventMask))
		if err != nil {
			return errorResponse(err)
		}
		return wire.Response{HandleID: result.HandleID, Created: result.Created}

	case wire.OpClose:
		if err := s.svc.Close(req.HandleID); err != nil {
			return errorResponse(err)
		}
		return wire.Response{}

	case wire.OpMkdir:
		if err := s.svc.Mkdir(req.SessionID, req.Path); err != nil {
			return errorResponse(err)
		}
		return wire.Response{}

	case wire.OpDelete:
		if err := s.svc.Delete(req.SessionID, req.Path); err != nil {
			return errorResponse(err)
		}
		return wire.Response{}

	case wire.OpExists:
		return wire.Response{Exists: s.svc.Exists(req.Path)}

	case wire.OpAttrSet:
		if err := s.svc.AttrSet(req.HandleID, req.AttrName, req.AttrValue); err != nil {
			return errorResponse(err)
		}
		return wire.Response{}

	case wire.OpAttrGet:
		val, err := s.svc.AttrGet(req.HandleID, req.AttrName)
		if err != nil {
			return errorResponse(err)
		}
		return wire.Response{AttrValue: val}

	case wire.OpAttrDel:
		if err := s.svc.AttrDel(req.HandleID, req.AttrName); err != nil {
			return errorResponse(err)
		}
		return wire.Response{}

	case wire.OpLock:
		result, err := s.svc.Lock(req.HandleID, coordinator.LockMode(req.LockMode), req.TryAcquire)
		if err != nil {
			return errorResponse(err)
		}
		return wire.Response{LockStatus: uint8(result.Status), LockGeneration: result.Generation}

	case wire.OpRelease:
		if err := s.svc.Release(req.HandleID); err != nil {
			return errorResponse(err)
		}
		return wire.Response{}

	default:
		return wire.Response{ErrorCode: uint16(coordinator.ErrProtocolError), Detail: "unknown opcode"}
	}
}

func errorResponse(err error) wire.Response {
	code, detail := failureCode(err)
	return wire.Response{ErrorCode: code, Detail: detail}
}

func toWireNotification(n *coordinator.Notification) wire.NotificationWire {
	return wire.NotificationWire{
		EventID:  n.EventID,
		HandleID: n.HandleID,
		Kind:     uint8(n.Kind),
		Payload: wire.EventPayloadWire{
			ChildName:     n.Payload.ChildName,
			AttrName:      n.Payload.AttrName,
			Mode:          uint8(n.Payload.Mode),
			LockGen:       n.Payload.LockGen,
			GrantedHandle: n.Payload.GrantedHandle,
		},
	}
}
