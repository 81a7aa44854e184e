package coordinator

// LockResult is the outcome of a Lock call (Coordinator §4.3).
type LockResult struct {
	Status     LockStatus
	Generation uint64
}

// Lock attempts to acquire mode on the node behind handleID, following the
// FIFO pending-queue and generation-bump rules of Coordinator §4.3. A handle
// must have been opened with both FlagLock and FlagWrite to lock anything.
func (s *Service) Lock(handleID uint64, mode LockMode, tryAcquire bool) (LockResult, error) {
	handle, node, err := s.resolveHandle(handleID)
	if err != nil {
		return LockResult{}, err
	}
	if handle.Flags&(FlagLock|FlagWrite) != FlagLock|FlagWrite {
		return LockResult{}, fail(ErrModeRestriction, "handle %d not opened with LOCK|WRITE", handleID)
	}
	return s.lock(node, handle, mode, tryAcquire)
}

// Release drops any lock held by handleID and drains the node's pending
// queue if the release frees it (Coordinator §4.3).
func (s *Service) Release(handleID uint64) error {
	handle, node, err := s.resolveHandle(handleID)
	if err != nil {
		return err
	}
	return s.release(node, handle)
}

func (s *Service) lock(node *Node, handle *Handle, mode LockMode, tryAcquire bool) (LockResult, error) {
	node.mu.Lock()

	compatible := lockCompatible(node.mode, mode) && node.pending.Len() == 0
	if compatible {
		gen, err := s.grantImmediate(node, handle, mode)
		node.mu.Unlock()
		if err != nil {
			return LockResult{}, err
		}
		s.metrics.LockGranted(mode.String())
		return LockResult{Status: LockGranted, Generation: gen}, nil
	}

	if tryAcquire {
		node.mu.Unlock()
		s.metrics.LockConflict(LockBusy.String())
		return LockResult{Status: LockBusy}, nil
	}

	node.pending.PushBack(&pendingWaiter{handleID: handle.ID, mode: mode})
	node.mu.Unlock()
	s.metrics.LockConflict(LockPending.String())
	return LockResult{Status: LockPending}, nil
}

// lockCompatible reports whether requesting mode is compatible with a node
// currently held at current, ignoring the pending queue (Coordinator §4.3):
// exclusive conflicts with anything but none, shared conflicts only with
// exclusive.
func lockCompatible(current, requested LockMode) bool {
	if current == ModeNone {
		return true
	}
	if requested == ModeExclusive {
		return false
	}
	return current == ModeShared
}

// grantImmediate records handle as a fresh holder of mode on node, bumps and
// persists the lock generation, and broadcasts LOCK_ACQUIRED unless handle is
// simply joining an already-shared set. Caller must hold node.mu.
func (s *Service) grantImmediate(node *Node, handle *Handle, mode LockMode) (uint64, error) {
	joiningShared := mode == ModeShared && len(node.sharedHolders) > 0
	if err := s.bumpGeneration(node); err != nil {
		return 0, err
	}
	s.installHolder(node, handle, mode)
	if !joiningShared {
		s.emitToNode(node, EventLockAcquired, EventPayload{Mode: mode, LockGen: node.lockGeneration})
	}
	return node.lockGeneration, nil
}

// grantFromQueue is grantImmediate's counterpart for a waiter drained off the
// pending queue: it always notifies the specific handle via LOCK_GRANTED
// instead of (or in addition to) the broadcast LOCK_ACQUIRED.
func (s *Service) grantFromQueue(node *Node, handle *Handle, mode LockMode) error {
	joiningShared := mode == ModeShared && len(node.sharedHolders) > 0
	if err := s.bumpGeneration(node); err != nil {
		return err
	}
	s.installHolder(node, handle, mode)
	if !joiningShared {
		s.emitToNode(node, EventLockAcquired, EventPayload{Mode: mode, LockGen: node.lockGeneration})
	}
	s.emitToOne(node, handle, EventLockGranted, EventPayload{Mode: mode, LockGen: node.lockGeneration, GrantedHandle: handle.ID})
	s.metrics.LockGranted(mode.String())
	return nil
}

func (s *Service) bumpGeneration(node *Node) error {
	node.lockGeneration++
	if err := s.store.WriteLockGeneration(node.fd, node.lockGeneration); err != nil {
		node.lockGeneration--
		// Fatal per Coordinator §7: silently losing generation monotonicity
		// would let a stale lock holder believe it still holds the node.
		s.fatal(fail(ErrIOError, "persist lock.generation for %s: %v", node.Name, err))
		return fail(ErrIOError, "persist lock.generation for %s: %v", node.Name, err)
	}
	return nil
}

func (s *Service) installHolder(node *Node, handle *Handle, mode LockMode) {
	node.mode = mode
	switch mode {
	case ModeExclusive:
		node.exclusiveHolder = handle.ID
	case ModeShared:
		node.sharedHolders[handle.ID] = struct{}{}
	}
	handle.setLocked(true, mode)
}

func (s *Service) release(node *Node, handle *Handle) error {
	locked, mode := handle.Locked()
	if !locked {
		return removePending(node, handle.ID)
	}

	node.mu.Lock()
	switch mode {
	case ModeExclusive:
		if node.exclusiveHolder == handle.ID {
			node.exclusiveHolder = 0
		}
	case ModeShared:
		delete(node.sharedHolders, handle.ID)
	}
	handle.setLocked(false, ModeNone)

	free := node.exclusiveHolder == 0 && len(node.sharedHolders) == 0
	if free {
		node.mode = ModeNone
	}

	var err error
	if free {
		s.emitToNode(node, EventLockReleased, EventPayload{Mode: mode, LockGen: node.lockGeneration})
		err = s.drainPending(node)
	}
	node.mu.Unlock()
	return err
}

// removePending drops handleID from node's pending queue if present, for the
// case where a handle is torn down (session expiry, explicit close) before
// its queued lock request was ever granted.
func removePending(node *Node, handleID uint64) error {
	node.mu.Lock()
	defer node.mu.Unlock()
	for e := node.pending.Front(); e != nil; e = e.Next() {
		if e.Value.(*pendingWaiter).handleID == handleID {
			node.pending.Remove(e)
			break
		}
	}
	return nil
}

// drainPending grants as many leading FIFO waiters as the released node's
// state allows: a single exclusive waiter at the head, or a run of shared
// waiters. Caller must hold node.mu and s.handles must still know every
// queued handle id.
func (s *Service) drainPending(node *Node) error {
	for node.pending.Len() > 0 {
		front := node.pending.Front()
		waiter := front.Value.(*pendingWaiter)
		handle, ok := s.handles.get(waiter.handleID)
		if !ok {
			node.pending.Remove(front)
			continue
		}

		if waiter.mode == ModeExclusive {
			if node.mode != ModeNone {
				return nil
			}
			node.pending.Remove(front)
			if err := s.grantFromQueue(node, handle, ModeExclusive); err != nil {
				return err
			}
			return nil
		}

		// Shared waiter: grantable as long as no exclusive holder exists.
		if node.mode == ModeExclusive {
			return nil
		}
		node.pending.Remove(front)
		if err := s.grantFromQueue(node, handle, ModeShared); err != nil {
			return err
		}
	}
	return nil
}
