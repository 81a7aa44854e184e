package coordinator

import (
	"container/list"
	"sync"
)

// pendingWaiter is one entry in a Node's FIFO lock-request queue
// (Coordinator §4.3).
type pendingWaiter struct {
	handleID uint64
	mode     LockMode
}

// Node represents a named path in the hierarchical namespace (Coordinator
// §3). Every field below the mutex is protected by it; callers must hold the
// per-node mutex before touching lock state, the pending queue, or the
// handle map, per the lock order documented in Coordinator §5.
type Node struct {
	Name      string
	Ephemeral bool

	mu sync.Mutex

	fd   int
	kind entryKind

	mode            LockMode
	exclusiveHolder uint64
	sharedHolders   map[uint64]struct{}
	pending         *list.List // *pendingWaiter
	lockGeneration  uint64

	handles map[uint64]*Handle
}

type entryKind int

const (
	entryFile entryKind = iota
	entryDir
)

func newNode(name string, fd int, kind entryKind, ephemeral bool, seedGeneration uint64) *Node {
	return &Node{
		Name:           name,
		Ephemeral:      ephemeral,
		fd:             fd,
		kind:           kind,
		sharedHolders:  make(map[uint64]struct{}),
		pending:        list.New(),
		lockGeneration: seedGeneration,
		handles:        make(map[uint64]*Handle),
	}
}

// refCount returns the number of open handles on the node. Callers must hold
// n.mu.
func (n *Node) refCount() int { return len(n.handles) }

// LockGeneration returns the node's current lock generation.
func (n *Node) LockGeneration() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lockGeneration
}

// Mode returns the node's current lock mode.
func (n *Node) Mode() LockMode {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.mode
}
