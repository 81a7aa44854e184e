package coordinator

import "fmt"

// ErrorCode enumerates the Coordinator's error taxonomy (Coordinator §7).
// Values are stable and referenced directly by the wire protocol's response
// error field.
type ErrorCode uint16

const (
	ErrNone ErrorCode = iota
	ErrExpiredSession
	ErrInvalidHandle
	ErrFileExists
	ErrBadPathname
	ErrPermissionDenied
	ErrIOError
	ErrAttrNotFound
	ErrModeRestriction
	ErrProtocolError
	ErrLockConflict
	ErrDirectoryNotEmpty
)

func (c ErrorCode) String() string {
	switch c {
	case ErrNone:
		return "OK"
	case ErrExpiredSession:
		return "EXPIRED_SESSION"
	case ErrInvalidHandle:
		return "INVALID_HANDLE"
	case ErrFileExists:
		return "FILE_EXISTS"
	case ErrBadPathname:
		return "BAD_PATHNAME"
	case ErrPermissionDenied:
		return "PERMISSION_DENIED"
	case ErrIOError:
		return "IO_ERROR"
	case ErrAttrNotFound:
		return "ATTR_NOT_FOUND"
	case ErrModeRestriction:
		return "MODE_RESTRICTION"
	case ErrProtocolError:
		return "PROTOCOL_ERROR"
	case ErrLockConflict:
		return "LOCK_CONFLICT"
	case ErrDirectoryNotEmpty:
		return "DIRECTORY_NOT_EMPTY"
	default:
		return "UNKNOWN_ERROR"
	}
}

// Failure captures a transport-neutral Coordinator error, adapted from the
// teacher's core.Failure but keyed on a wire error code instead of an HTTP
// status.
type Failure struct {
	Code   ErrorCode
	Detail string
}

func (f Failure) Error() string {
	if f.Detail != "" {
		return fmt.Sprintf("%s: %s", f.Code, f.Detail)
	}
	return f.Code.String()
}

func fail(code ErrorCode, format string, args ...any) error {
	return Failure{Code: code, Detail: fmt.Sprintf(format, args...)}
}
