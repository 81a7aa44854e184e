package coordinator

import (
	"pkt.systems/hyperlockd/internal/nsstore"
)

func mapNsErr(err error) error {
	if err == nil {
		return nil
	}
	nerr, ok := err.(*nsstore.Error)
	if !ok {
		return fail(ErrIOError, "%v", err)
	}
	switch nerr.Code {
	case nsstore.CodeFileExists:
		return fail(ErrFileExists, "%s", nerr.Detail)
	case nsstore.CodeBadPathname:
		return fail(ErrBadPathname, "%s", nerr.Detail)
	case nsstore.CodePermissionDenied:
		return fail(ErrPermissionDenied, "%s", nerr.Detail)
	case nsstore.CodeAttrNotFound:
		return fail(ErrAttrNotFound, "%s", nerr.Detail)
	case nsstore.CodeDirectoryNotEmpty:
		return fail(ErrDirectoryNotEmpty, "%s", nerr.Detail)
	default:
		return fail(ErrIOError, "%s", nerr.Detail)
	}
}

// nodeSnapshot returns the currently tracked node for name, without touching
// disk. It acquires s.nsMu itself, so callers must not already hold it; it
// serves callers that just want a best-effort peek (e.g. event targeting).
func (s *Service) nodeSnapshot(name string) (*Node, bool) {
	s.nsMu.Lock()
	defer s.nsMu.Unlock()
	n, ok := s.nodes[name]
	return n, ok
}

// loadNode returns the in-memory Node for name, lazily instantiating it from
// disk on first touch if it exists there but has not yet been loaded. A
// node's in-memory lock_generation is seeded from
// max(persisted lock.generation xattr, base directory generation) the first
// time it is touched after a restart, rather than walking the whole tree at
// startup.
func (s *Service) loadNode(name string) (*Node, error) {
	s.nsMu.Lock()
	defer s.nsMu.Unlock()
	if n, ok := s.nodes[name]; ok {
		return n, nil
	}
	path := s.store.PathFor(name)
	exists, kind, err := s.store.Stat(path)
	if err != nil {
		return nil, mapNsErr(err)
	}
	if !exists {
		return nil, fail(ErrBadPathname, "node %s does not exist", name)
	}
	fd, err := s.store.OpenExisting(path)
	if err != nil {
		return nil, mapNsErr(err)
	}
	gen, err := s.store.ReadLockGeneration(fd)
	if err != nil {
		s.store.CloseFd(fd)
		return nil, mapNsErr(err)
	}
	seed := gen
	if base := uint64(s.store.Generation()); base > seed {
		seed = base
	}
	ekind := entryFile
	if kind == nsstore.KindDir {
		ekind = entryDir
	}
	n := newNode(name, fd, ekind, false, seed)
	s.nodes[name] = n
	return n, nil
}

// createNode creates a fresh backing entry for name and registers it. Caller
// must already know the node does not exist.
func (s *Service) createNode(name string, dir bool, temp bool) (*Node, error) {
	s.nsMu.Lock()
	defer s.nsMu.Unlock()
	if _, ok := s.nodes[name]; ok {
		return nil, fail(ErrFileExists, "%s already exists", name)
	}
	path := s.store.PathFor(name)
	var fd int
	var err error
	ekind := entryFile
	if dir {
		if err = s.store.CreateDir(path); err != nil {
			return nil, mapNsErr(err)
		}
		fd, err = s.store.OpenExisting(path)
		ekind = entryDir
	} else {
		fd, err = s.store.CreateFile(path, true)
	}
	if err != nil {
		return nil, mapNsErr(err)
	}
	ephemeral := false
	if temp {
		if err := s.store.Unlink(path); err != nil {
			s.store.CloseFd(fd)
			return nil, mapNsErr(err)
		}
		ephemeral = true
	}
	if err := s.store.WriteLockGeneration(fd, 1); err != nil {
		// Fatal per Coordinator §7: loss of lock_generation monotonicity
		// would corrupt client locks.
		s.store.CloseFd(fd)
		s.fatal(fail(ErrIOError, "persist initial lock.generation for %s: %v", name, err))
		return nil, fail(ErrIOError, "persist initial lock.generation for %s: %v", name, err)
	}
	n := newNode(name, fd, ekind, ephemeral, 1)
	s.nodes[name] = n
	return n, nil
}

// removeNode drops name from the in-memory table. Caller must hold no
// conflicting locks; used only from the handle-teardown cascade once a
// node's refcount has reached zero.
func (s *Service) removeNode(name string) {
	s.nsMu.Lock()
	defer s.nsMu.Unlock()
	delete(s.nodes, name)
}

// emitToNode fans an event out to every handle on node whose event mask
// selects kind, delegating delivery to the eventBus. Caller must hold
// node.mu (Coordinator §5: emitting acquires the session map lock while the
// per-node lock is held).
func (s *Service) emitToNode(node *Node, kind EventKind, payload EventPayload) *Event {
	var targets []*Handle
	for _, h := range node.handles {
		if h.EventMask.Includes(kind) {
			targets = append(targets, h)
		}
	}
	return s.bus.emit(node.Name, kind, payload, targets, s.lookupSession)
}

// emitToOne delivers kind to a single handle regardless of its event mask
// (used for LOCK_GRANTED, which Coordinator §4.5 says targets "a specific
// granted handle").
func (s *Service) emitToOne(node *Node, handle *Handle, kind EventKind, payload EventPayload) *Event {
	return s.bus.emit(node.Name, kind, payload, []*Handle{handle}, s.lookupSession)
}
