package coordinator

// CreateSession registers a new session for clientAddr and returns its id
// (Coordinator §4.2). Ids are monotonically increasing 64-bit values, never
// reused within a process lifetime.
func (s *Service) CreateSession(clientAddr string) uint64 {
	id := s.nextSessID.Add(1)
	deadline := s.clock.Now().Add(s.leaseInterval)
	sess := newSession(id, clientAddr, deadline)

	s.sessMu.Lock()
	s.sessions[id] = sess
	s.expiry.Upsert(id, deadline)
	s.sessMu.Unlock()
	s.metrics.SessionCreated()
	return id
}

// RenewLease resets session's deadline to now plus the configured lease
// interval.
// Renewing an unknown or already-expired session fails with EXPIRED_SESSION.
func (s *Service) RenewLease(sessionID uint64) error {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return fail(ErrExpiredSession, "session %d not found", sessionID)
	}
	sess.mu.Lock()
	if sess.expired {
		sess.mu.Unlock()
		return fail(ErrExpiredSession, "session %d expired", sessionID)
	}
	sess.deadline = s.clock.Now().Add(s.leaseInterval)
	deadline := sess.deadline
	sess.mu.Unlock()
	s.expiry.Upsert(sessionID, deadline)
	return nil
}

// Lookup returns the session for id, if it exists.
func (s *Service) Lookup(sessionID uint64) (*Session, bool) {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	sess, ok := s.sessions[sessionID]
	return sess, ok
}

// expireNext pops and returns the earliest-deadline session if it has
// expired as of now, atomically removing it from both the session map and
// the expiry structure and marking it expired so in-flight responses can
// short-circuit (Coordinator §4.2/§5).
func (s *Service) expireNext() (*Session, bool) {
	s.sessMu.Lock()
	id, ok := s.expiry.PopExpired(s.clock.Now())
	if !ok {
		s.sessMu.Unlock()
		return nil, false
	}
	sess := s.sessions[id]
	delete(s.sessions, id)
	s.sessMu.Unlock()

	if sess != nil {
		sess.mu.Lock()
		sess.expired = true
		sess.mu.Unlock()
	}
	return sess, sess != nil
}

// teardownExpiredSession force-closes every handle owned by an expired
// session (Coordinator §4.2), sharing the Close code path used by explicit
// client CLOSE requests.
func (s *Service) teardownExpiredSession(sess *Session) {
	for _, hid := range sess.handleIDs() {
		_ = s.Close(hid)
	}
}

// KeepAliveResult is the reply to a KEEPALIVE request (Coordinator §4.2 /
// §6): the current lease deadline plus every notification the client has not
// yet acknowledged.
type KeepAliveResult struct {
	DeadlineUnixMilli int64
	Notifications     []*Notification
}

// KeepAlive renews sessionID's lease, advances its acknowledgement cursor to
// ackedEvent, and returns the deadline plus every unacked notification for
// best-effort retransmit (Coordinator §4.2).
func (s *Service) KeepAlive(sessionID uint64, ackedEvent uint64) (KeepAliveResult, error) {
	sess, ok := s.Lookup(sessionID)
	if !ok || sess.Expired() {
		return KeepAliveResult{}, fail(ErrExpiredSession, "session %d not found or expired", sessionID)
	}
	if err := s.RenewLease(sessionID); err != nil {
		return KeepAliveResult{}, err
	}
	if ackedEvent > 0 {
		sess.Ack(ackedEvent, s.bus)
	}
	pending := sess.PendingSince(ackedEvent)
	return KeepAliveResult{
		DeadlineUnixMilli: sess.Deadline().UnixMilli(),
		Notifications:     pending,
	}, nil
}
