package nsstore

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// Code identifies a namespace-store failure kind, mirroring the Coordinator's
// error taxonomy (Coordinator §7). Kept as a distinct type from the wire
// protocol's error codes so this package has no dependency on internal/wire.
type Code int

const (
	// CodeIOError covers unclassified filesystem failures.
	CodeIOError Code = iota
	CodeFileExists
	CodeBadPathname
	CodePermissionDenied
	CodeAttrNotFound
	CodeDirectoryNotEmpty
)

// Error wraps a filesystem/xattr failure with its Coordinator error kind.
type Error struct {
	Code   Code
	Detail string
	cause  error
}

func (e *Error) Error() string { return e.Detail }
func (e *Error) Unwrap() error { return e.cause }

func wrapErrno(op, path string, err error) error {
	if err == nil {
		return nil
	}
	code := CodeIOError
	switch {
	case errors.Is(err, unix.ENOENT), errors.Is(err, os.ErrNotExist):
		code = CodeBadPathname
	case errors.Is(err, unix.EEXIST), errors.Is(err, os.ErrExist):
		code = CodeFileExists
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM), errors.Is(err, os.ErrPermission):
		code = CodePermissionDenied
	case errors.Is(err, unix.ENODATA):
		code = CodeAttrNotFound
	case errors.Is(err, unix.ENOTEMPTY):
		code = CodeDirectoryNotEmpty
	}
	return &Error{Code: code, Detail: op + " " + path + ": " + err.Error(), cause: err}
}
