package coordinator

import "pkt.systems/hyperlockd/internal/nsstore"

// requireSession looks up sessionID and, per Coordinator §4.2 ("a session's
// lease is extended on any authenticated request from that session"),
// renews its lease before returning it.
func (s *Service) requireSession(sessionID uint64) (*Session, error) {
	sess, ok := s.Lookup(sessionID)
	if !ok || sess.Expired() {
		return nil, fail(ErrExpiredSession, "session %d not found or expired", sessionID)
	}
	if err := s.RenewLease(sessionID); err != nil {
		return nil, err
	}
	return sess, nil
}

func validPath(name string) bool {
	return nsstore.IsValidNodeName(name)
}

// notifyParent locks the parent node (if it is currently tracked) and emits
// kind with childName as payload. Missing/untracked parents are silently
// skipped: nobody has it open, so there is nothing to notify.
func (s *Service) notifyParent(childName string, kind EventKind) {
	parentName, base := nsstore.ParentOf(childName)
	if base == "" {
		return
	}
	parent, ok := s.nodeSnapshot(parentName)
	if !ok {
		return
	}
	parent.mu.Lock()
	s.emitToNode(parent, kind, EventPayload{ChildName: base})
	parent.mu.Unlock()
}

// Mkdir creates a directory node at path (Coordinator §4.1).
func (s *Service) Mkdir(sessionID uint64, path string) error {
	if _, err := s.requireSession(sessionID); err != nil {
		return err
	}
	if !validPath(path) {
		return fail(ErrBadPathname, "invalid path %q", path)
	}
	path = nsstore.Normalize(path)
	if _, ok := s.nodeSnapshot(path); ok {
		return fail(ErrFileExists, "%s already exists", path)
	}
	if _, err := s.createNode(path, true, false); err != nil {
		return err
	}
	s.notifyParent(path, EventChildNodeAdded)
	return nil
}

// Delete removes the node at path (Coordinator §4.1).
func (s *Service) Delete(sessionID uint64, path string) error {
	if _, err := s.requireSession(sessionID); err != nil {
		return err
	}
	if !validPath(path) {
		return fail(ErrBadPathname, "invalid path %q", path)
	}
	path = nsstore.Normalize(path)
	node, err := s.loadNode(path)
	if err != nil {
		return err
	}
	node.mu.Lock()
	kind := node.kind
	fd := node.fd
	node.mu.Unlock()

	fsPath := s.store.PathFor(path)
	if kind == entryDir {
		if err := s.store.Rmdir(fsPath); err != nil {
			return mapNsErr(err)
		}
	} else {
		if err := s.store.Unlink(fsPath); err != nil {
			return mapNsErr(err)
		}
	}
	s.store.CloseFd(fd)
	s.removeNode(path)
	s.notifyParent(path, EventChildNodeRemoved)
	return nil
}

// Exists reports whether path currently resolves to a node.
func (s *Service) Exists(path string) bool {
	if !validPath(path) {
		return false
	}
	path = nsstore.Normalize(path)
	if _, ok := s.nodeSnapshot(path); ok {
		return true
	}
	exists, _, err := s.store.Stat(s.store.PathFor(path))
	return err == nil && exists
}

// OpenResult is the outcome of an Open call.
type OpenResult struct {
	HandleID uint64
	Created  bool
}

// Open opens (optionally creating) the node at path and returns a fresh
// handle bound to it (Coordinator §4.1).
func (s *Service) Open(sessionID uint64, path string, flags OpenFlag, mask EventMask) (OpenResult, error) {
	sess, err := s.requireSession(sessionID)
	if err != nil {
		return OpenResult{}, err
	}
	if !validPath(path) {
		return OpenResult{}, fail(ErrBadPathname, "invalid path %q", path)
	}
	path = nsstore.Normalize(path)

	node, created, err := s.resolveForOpen(path, flags)
	if err != nil {
		return OpenResult{}, err
	}

	node.mu.Lock()
	handle := s.handles.insert(sessionID, path, flags, mask)
	node.handles[handle.ID] = handle
	node.mu.Unlock()
	sess.addHandle(handle.ID)
	s.metrics.HandleOpened()

	if created {
		s.notifyParent(path, EventChildNodeAdded)
	}
	return OpenResult{HandleID: handle.ID, Created: created}, nil
}

// resolveForOpen implements the existence/creation branch of Coordinator
// §4.1's open() semantics.
func (s *Service) resolveForOpen(path string, flags OpenFlag) (*Node, bool, error) {
	s.nsMu.Lock()
	existing, ok := s.nodes[path]
	s.nsMu.Unlock()

	if !ok {
		onDisk, _, statErr := s.store.Stat(s.store.PathFor(path))
		if statErr == nil && onDisk {
			n, err := s.loadNode(path)
			if err != nil {
				return nil, false, err
			}
			existing, ok = n, true
		}
	}

	if ok {
		if flags&FlagCreate != 0 && flags&FlagExcl != 0 {
			return nil, false, fail(ErrFileExists, "%s already exists", path)
		}
		if existing.Ephemeral && flags&FlagTemp == 0 {
			return nil, false, fail(ErrFileExists, "%s is a temp node", path)
		}
		return existing, false, nil
	}

	if flags&FlagCreate == 0 {
		return nil, false, fail(ErrBadPathname, "%s does not exist", path)
	}
	n, err := s.createNode(path, false, flags&FlagTemp != 0)
	if err != nil {
		// A concurrent Open(CREATE) may have won the race to create path
		// between our existence check and createNode's own nsMu-guarded
		// insert. Without EXCL that is not a failure: fall through to the
		// existing node the way the winner's caller would see it.
		if flags&FlagExcl == 0 {
			if failure, ok := err.(Failure); ok && failure.Code == ErrFileExists {
				s.nsMu.Lock()
				existing, loaded := s.nodes[path]
				s.nsMu.Unlock()
				if loaded {
					if existing.Ephemeral && flags&FlagTemp == 0 {
						return nil, false, fail(ErrFileExists, "%s is a temp node", path)
					}
					return existing, false, nil
				}
			}
		}
		return nil, false, err
	}
	return n, true, nil
}

// Close tears a handle down, cascading through lock release, node-map
// removal, and session detachment as one code path (Coordinator §4.4),
// shared between explicit CLOSE requests and expiry-driven teardown.
func (s *Service) Close(handleID uint64) error {
	handle, ok := s.handles.get(handleID)
	if !ok {
		return fail(ErrInvalidHandle, "handle %d not found", handleID)
	}

	node, ok := s.nodeSnapshot(handle.NodeName)
	if ok {
		// Step 1: release any lock held by the handle (cascades through §4.3).
		if locked, _ := handle.Locked(); locked {
			_ = s.release(node, handle)
		}

		node.mu.Lock()
		delete(node.handles, handleID)
		refs := node.refCount()
		fd := node.fd
		ephemeral := node.Ephemeral
		node.mu.Unlock()

		if refs == 0 {
			s.store.CloseFd(fd)
			if ephemeral {
				s.removeNode(node.Name)
				s.notifyParent(node.Name, EventChildNodeRemoved)
			}
		}
	}

	if sess, ok := s.Lookup(handle.SessionID); ok {
		sess.removeHandle(handleID)
	}
	s.handles.remove(handleID)
	s.metrics.HandleClosed()
	return nil
}

// resolveHandle looks up a handle and its node, renewing the owning
// session's lease per Coordinator §4.2 (used by every handle-scoped
// operation: AttrSet/AttrGet/AttrDel/Lock/Release). Close bypasses this
// path deliberately, since expiry-driven teardown closes handles on
// sessions already marked expired.
func (s *Service) resolveHandle(handleID uint64) (*Handle, *Node, error) {
	handle, ok := s.handles.get(handleID)
	if !ok {
		return nil, nil, fail(ErrInvalidHandle, "handle %d not found", handleID)
	}
	if err := s.RenewLease(handle.SessionID); err != nil {
		return nil, nil, err
	}
	node, ok := s.nodeSnapshot(handle.NodeName)
	if !ok {
		return nil, nil, fail(ErrInvalidHandle, "node for handle %d not tracked", handleID)
	}
	return handle, node, nil
}

// AttrSet writes a user attribute on handle's node and emits ATTR_SET.
func (s *Service) AttrSet(handleID uint64, name string, value []byte) error {
	handle, node, err := s.resolveHandle(handleID)
	if err != nil {
		return err
	}
	if handle.Flags&FlagWrite == 0 {
		return fail(ErrModeRestriction, "handle %d not opened for write", handleID)
	}
	node.mu.Lock()
	defer node.mu.Unlock()
	if err := s.store.Setxattr(node.fd, nsstore.UserAttrName(name), value); err != nil {
		return mapNsErr(err)
	}
	s.emitToNode(node, EventAttrSet, EventPayload{AttrName: name})
	return nil
}

// AttrGet reads a user attribute from handle's node.
func (s *Service) AttrGet(handleID uint64, name string) ([]byte, error) {
	handle, node, err := s.resolveHandle(handleID)
	if err != nil {
		return nil, err
	}
	if handle.Flags&FlagRead == 0 {
		return nil, fail(ErrModeRestriction, "handle %d not opened for read", handleID)
	}
	node.mu.Lock()
	defer node.mu.Unlock()
	val, err := s.store.Getxattr(node.fd, nsstore.UserAttrName(name))
	if err != nil {
		return nil, mapNsErr(err)
	}
	return val, nil
}

// AttrDel removes a user attribute from handle's node and emits ATTR_DEL.
func (s *Service) AttrDel(handleID uint64, name string) error {
	handle, node, err := s.resolveHandle(handleID)
	if err != nil {
		return err
	}
	if handle.Flags&FlagWrite == 0 {
		return fail(ErrModeRestriction, "handle %d not opened for write", handleID)
	}
	node.mu.Lock()
	defer node.mu.Unlock()
	if err := s.store.Removexattr(node.fd, nsstore.UserAttrName(name)); err != nil {
		return mapNsErr(err)
	}
	s.emitToNode(node, EventAttrDel, EventPayload{AttrName: name})
	return nil
}
