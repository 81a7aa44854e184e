// Package coordinator implements the Coordinator's in-memory orchestration:
// the session registry, lock manager, handle table, and event-delivery
// pipeline described in Coordinator §3-§5. Filesystem/xattr persistence is
// delegated to internal/nsstore.
package coordinator

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"pkt.systems/hyperlockd/internal/clock"
	"pkt.systems/hyperlockd/internal/loggingutil"
	"pkt.systems/hyperlockd/internal/metrics"
	"pkt.systems/hyperlockd/internal/nsstore"
	"pkt.systems/hyperlockd/internal/svcfields"
	"pkt.systems/pslog"
)

// Config configures a Service.
type Config struct {
	Store             *nsstore.Backend
	Logger            pslog.Logger
	Clock             clock.Clock
	Metrics           *metrics.Collector
	LeaseInterval     time.Duration
	KeepAliveInterval time.Duration

	// FatalHook is invoked in place of the process-aborting behavior
	// Coordinator §7 requires when a node's lock generation counter cannot
	// be persisted. It defaults to logging the error and calling os.Exit(1).
	// Tests substitute a hook that records the call instead of exiting.
	FatalHook func(err error)
}

const (
	// DefaultLeaseInterval mirrors Hyperspace.Lease.Interval's default.
	DefaultLeaseInterval = 60 * time.Second
	// DefaultKeepAliveInterval mirrors Hyperspace.KeepAlive.Interval's default.
	DefaultKeepAliveInterval = 20 * time.Second
)

// Service is the Coordinator's single point of orchestration. It enforces
// the four-level lock order documented in Coordinator §5:
//  1. nsMu (namespace store mutex: node-name -> *Node map)
//  2. Node.mu (per-node mutex)
//  3. sessMu (session map mutex)
//  4. handles' internal mutex (handle table)
//
// A goroutine may hold at most one per-node mutex at a time, and locks are
// acquired only in the order above.
type Service struct {
	store  *nsstore.Backend
	logger pslog.Logger
	clock  clock.Clock

	leaseInterval     time.Duration
	keepAliveInterval time.Duration

	nsMu  sync.Mutex
	nodes map[string]*Node

	sessMu     sync.Mutex
	sessions   map[uint64]*Session
	expiry     *expiryHeap
	nextSessID atomic.Uint64

	handles *handleTable
	bus     *eventBus
	metrics *metrics.Collector

	fatal func(err error)

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New constructs a Service bound to store.
func New(cfg Config) *Service {
	logger := loggingutil.EnsureLogger(cfg.Logger)
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	lease := cfg.LeaseInterval
	if lease <= 0 {
		lease = DefaultLeaseInterval
	}
	keepAlive := cfg.KeepAliveInterval
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAliveInterval
	}
	subLogger := svcfields.WithSubsystem(logger, "coordinator")
	fatal := cfg.FatalHook
	if fatal == nil {
		fatal = func(err error) {
			svcfields.WithSubsystem(subLogger, "coordinator.fatal").Error(
				"aborting: lock generation counter could not be persisted", "error", err)
			os.Exit(1)
		}
	}
	s := &Service{
		store:             cfg.Store,
		logger:            subLogger,
		clock:             clk,
		leaseInterval:     lease,
		keepAliveInterval: keepAlive,
		nodes:             make(map[string]*Node),
		sessions:          make(map[uint64]*Session),
		expiry:            newExpiryHeap(),
		handles:           newHandleTable(),
		bus:               newEventBus(cfg.Metrics),
		metrics:           cfg.Metrics,
		fatal:             fatal,
		stopCh:            make(chan struct{}),
	}
	// Seed session ids from the restart generation so ids issued by an
	// earlier process never resolve to a session of this one.
	if cfg.Store != nil {
		s.nextSessID.Store(uint64(cfg.Store.Generation()) << 32)
	}
	return s
}

// RunExpirySweeper starts the periodic expiry loop (Coordinator §4.2): every
// tick no longer than keepAliveInterval, every session whose deadline has
// passed is expired and its handles torn down. It returns immediately; the
// sweeper stops when ctx is done or Shutdown is called.
func (s *Service) RunExpirySweeper(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log := svcfields.WithSubsystem(s.logger, "coordinator.expiry")
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-s.clock.After(s.keepAliveInterval):
			}
			sweepStart := s.clock.Now()
			for {
				sess, ok := s.expireNext()
				if !ok {
					break
				}
				log.Info("session expired", "session_id", sess.ID)
				s.metrics.SessionExpired()
				s.teardownExpiredSession(sess)
			}
			s.metrics.ObserveExpirySweep(s.clock.Now().Sub(sweepStart).Seconds())
		}
	}()
}

// Shutdown stops background goroutines.
func (s *Service) Shutdown() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Generation returns the namespace store's restart generation (Coordinator
// §4.1), exposed to clients over the handshake so they can detect a
// Coordinator restart and reject stale session tokens.
func (s *Service) Generation() uint32 {
	return s.store.Generation()
}

func (s *Service) lookupSession(id uint64) (*Session, bool) {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}
