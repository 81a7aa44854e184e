// Package nsstore implements the filesystem-backed persistence primitives for
// the Coordinator's hierarchical namespace: the base-directory advisory lock,
// per-node backing files/directories, and their extended attributes.
package nsstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/xid"
	"golang.org/x/sys/unix"
)

// GenerationAttr is the extended attribute name holding the base directory's
// restart generation counter.
const GenerationAttr = "generation"

// LockGenerationAttr is the extended attribute name holding a node's
// monotonic lock generation counter.
const LockGenerationAttr = "lock.generation"

var (
	// ErrAlreadyLocked indicates another process holds the base directory's
	// advisory lock.
	ErrAlreadyLocked = errors.New("nsstore: base directory already locked by another process")
)

// Backend owns the base directory and its advisory singleton lock. All node
// paths are resolved relative to it.
type Backend struct {
	baseDir    string
	baseFd     int
	generation uint32
	lockOwner  string

	mu sync.Mutex
}

// Open acquires the exclusive advisory lock on baseDir, bumps its
// `generation` extended attribute, and returns a ready Backend. Failure to
// acquire the lock or to persist the generation attribute is fatal to the
// caller by design (see Coordinator §7): the caller is expected to abort
// startup on error.
func Open(baseDir string) (*Backend, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("nsstore: resolve base dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("nsstore: create base dir: %w", err)
	}
	fd, err := unix.Open(abs, unix.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("nsstore: open base dir: %w", err)
	}
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		unix.Close(fd)
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrAlreadyLocked
		}
		return nil, fmt.Errorf("nsstore: lock base dir: %w", err)
	}

	b := &Backend{baseDir: abs, baseFd: fd, lockOwner: xid.New().String()}

	gen, err := b.readGeneration()
	switch {
	case err == nil:
		gen++
	case errors.Is(err, unix.ENODATA):
		gen = 1
	default:
		unix.Close(fd)
		return nil, fmt.Errorf("nsstore: read generation attribute: %w", err)
	}
	if err := b.writeGeneration(gen); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("nsstore: persist generation attribute: %w", err)
	}
	b.generation = gen
	return b, nil
}

// Close releases the base directory file descriptor, dropping the advisory
// lock.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.baseFd < 0 {
		return nil
	}
	err := unix.Close(b.baseFd)
	b.baseFd = -1
	return err
}

// Generation returns the base directory's restart generation, bumped once
// per successful startup.
func (b *Backend) Generation() uint32 { return b.generation }

// LockOwnerToken returns a short opaque token identifying the process
// currently holding the singleton lock, useful for operator diagnostics.
func (b *Backend) LockOwnerToken() string { return b.lockOwner }

// BaseDir returns the resolved absolute base directory path.
func (b *Backend) BaseDir() string { return b.baseDir }

func (b *Backend) readGeneration() (uint32, error) {
	buf := make([]byte, 4)
	n, err := unix.Fgetxattr(b.baseFd, GenerationAttr, buf)
	if err != nil {
		return 0, err
	}
	if n < 4 {
		return 0, fmt.Errorf("nsstore: short generation attribute (%d bytes)", n)
	}
	return decodeUint32(buf), nil
}

func (b *Backend) writeGeneration(gen uint32) error {
	buf := encodeUint32(gen)
	return unix.Fsetxattr(b.baseFd, GenerationAttr, buf, 0)
}

// PathFor joins an absolute node name (leading '/') onto the base directory.
func (b *Backend) PathFor(name string) string {
	return filepath.Join(b.baseDir, strings.TrimPrefix(name, "/"))
}

func encodeUint32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func decodeUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
	return buf
}

func decodeUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8 && i < len(b); i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
