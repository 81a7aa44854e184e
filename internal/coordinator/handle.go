package coordinator

import "sync"

// Handle is a per-session reference to an open Node (Coordinator §3).
type Handle struct {
	ID        uint64
	SessionID uint64
	NodeName  string
	Flags     OpenFlag
	EventMask EventMask

	mu     sync.Mutex
	locked bool
	mode   LockMode
}

func (h *Handle) setLocked(locked bool, mode LockMode) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.locked = locked
	h.mode = mode
}

// Locked reports whether the handle currently holds a lock, and in what mode.
func (h *Handle) Locked() (bool, LockMode) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.locked, h.mode
}

// handleTable allocates and indexes Handles. Ids are monotonic and never
// reused within a process lifetime (Coordinator §4.4).
type handleTable struct {
	mu      sync.Mutex
	nextID  uint64
	byID    map[uint64]*Handle
}

func newHandleTable() *handleTable {
	return &handleTable{byID: make(map[uint64]*Handle)}
}

func (t *handleTable) insert(sessionID uint64, nodeName string, flags OpenFlag, mask EventMask) *Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	h := &Handle{ID: t.nextID, SessionID: sessionID, NodeName: nodeName, Flags: flags, EventMask: mask}
	t.byID[h.ID] = h
	return h
}

func (t *handleTable) get(id uint64) (*Handle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.byID[id]
	return h, ok
}

func (t *handleTable) remove(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byID, id)
}
