package nsstore

import (
	"golang.org/x/sys/unix"
)

// EntryKind distinguishes the two backing-entry shapes a Node can have.
type EntryKind int

const (
	KindFile EntryKind = iota
	KindDir
)

// Stat reports whether path exists and, if so, its kind.
func (b *Backend) Stat(path string) (exists bool, kind EntryKind, err error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		if err == unix.ENOENT {
			return false, 0, nil
		}
		return false, 0, wrapErrno("stat", path, err)
	}
	if st.Mode&unix.S_IFMT == unix.S_IFDIR {
		return true, KindDir, nil
	}
	return true, KindFile, nil
}

// CreateFile creates and opens a new regular file at path. When excl is true
// the call fails with FILE_EXISTS if the file is already present.
func (b *Backend) CreateFile(path string, excl bool) (fd int, err error) {
	flags := unix.O_RDWR | unix.O_CREAT
	if excl {
		flags |= unix.O_EXCL
	}
	fd, err = unix.Open(path, flags, 0o644)
	if err != nil {
		return -1, wrapErrno("create", path, err)
	}
	return fd, nil
}

// CreateDir creates a directory at path, failing with FILE_EXISTS if it
// already exists.
func (b *Backend) CreateDir(path string) error {
	if err := unix.Mkdir(path, 0o755); err != nil {
		return wrapErrno("mkdir", path, err)
	}
	return nil
}

// OpenExisting opens path (file or directory) read-only, sufficient to host
// extended attribute operations.
func (b *Backend) OpenExisting(path string) (fd int, err error) {
	fd, err = unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return -1, wrapErrno("open", path, err)
	}
	return fd, nil
}

// Unlink removes path. Used both for ordinary delete and for immediately
// detaching TEMP nodes from the directory tree.
func (b *Backend) Unlink(path string) error {
	if err := unix.Unlink(path); err != nil {
		return wrapErrno("unlink", path, err)
	}
	return nil
}

// Rmdir removes an empty directory at path.
func (b *Backend) Rmdir(path string) error {
	if err := unix.Rmdir(path); err != nil {
		return wrapErrno("rmdir", path, err)
	}
	return nil
}

// CloseFd closes a backing file descriptor previously returned by CreateFile
// or OpenExisting.
func (b *Backend) CloseFd(fd int) error {
	if fd < 0 {
		return nil
	}
	return unix.Close(fd)
}

// Getxattr reads a user attribute from an open backing descriptor.
func (b *Backend) Getxattr(fd int, name string) ([]byte, error) {
	size, err := unix.Fgetxattr(fd, name, nil)
	if err != nil {
		return nil, wrapErrno("getxattr", name, err)
	}
	if size == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, size)
	n, err := unix.Fgetxattr(fd, name, buf)
	if err != nil {
		return nil, wrapErrno("getxattr", name, err)
	}
	return buf[:n], nil
}

// Setxattr writes a user attribute on an open backing descriptor.
func (b *Backend) Setxattr(fd int, name string, value []byte) error {
	if err := unix.Fsetxattr(fd, name, value, 0); err != nil {
		return wrapErrno("setxattr", name, err)
	}
	return nil
}

// Removexattr removes a user attribute from an open backing descriptor.
func (b *Backend) Removexattr(fd int, name string) error {
	if err := unix.Fremovexattr(fd, name); err != nil {
		return wrapErrno("removexattr", name, err)
	}
	return nil
}

// ReadLockGeneration reads the persisted lock.generation attribute, treating
// its absence as generation 0 (never granted).
func (b *Backend) ReadLockGeneration(fd int) (uint64, error) {
	buf, err := b.Getxattr(fd, LockGenerationAttr)
	if err != nil {
		if nerr, ok := err.(*Error); ok && nerr.Code == CodeAttrNotFound {
			return 0, nil
		}
		return 0, err
	}
	if len(buf) < 8 {
		return 0, nil
	}
	return decodeUint64(buf), nil
}

// WriteLockGeneration persists gen as the node's lock.generation attribute.
// Coordinator §7 treats failure here as fatal: callers should abort the
// process rather than let lock_generation monotonicity silently break.
func (b *Backend) WriteLockGeneration(fd int, gen uint64) error {
	return b.Setxattr(fd, LockGenerationAttr, encodeUint64(gen))
}
