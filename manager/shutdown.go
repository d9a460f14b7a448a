package manager

import (
	"context"
	"sync"
	"time"

	"github.com/go-i2p/logger"
	"github.com/go-i2p/ntcp2/ntcp2"
	"github.com/samber/oops"
	"github.com/sirupsen/logrus"
)

// ShutdownManager coordinates a cooperative shutdown across a manager's
// listeners and sessions: stop accepting, let in-flight sessions drain for
// up to shutdownTimeout, then force-close whatever remains. Every blocked
// Read/Write on a force-closed session surfaces the NTCP2 SocketError
// code. Only sessions in the manager's table are closed: a handshake still
// in flight is not yet in the table, does not observe the shutdown context,
// and ends on its own handshake timeout.
type ShutdownManager struct {
	ctx    context.Context
	cancel context.CancelFunc

	mgr *SessionManager

	mu        sync.RWMutex
	listeners map[*Listener]struct{}

	shutdownTimeout time.Duration
	logger          *logger.Logger
	done            chan struct{}
	once            sync.Once
}

// NewShutdownManager creates a ShutdownManager for mgr. If timeout is 0, a
// default of 30 seconds is used.
func NewShutdownManager(mgr *SessionManager, timeout time.Duration) *ShutdownManager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ShutdownManager{
		ctx:             ctx,
		cancel:          cancel,
		mgr:             mgr,
		listeners:       make(map[*Listener]struct{}),
		shutdownTimeout: timeout,
		logger:          logger.GetGoI2PLogger(),
		done:            make(chan struct{}),
	}
}

// RegisterListener adds a listener to be closed at the start of shutdown.
func (sm *ShutdownManager) RegisterListener(l *Listener) {
	if l == nil {
		return
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.listeners[l] = struct{}{}
}

// UnregisterListener removes a listener that was already closed normally.
func (sm *ShutdownManager) UnregisterListener(l *Listener) {
	if l == nil {
		return
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.listeners, l)
}

// Context returns the shutdown context; long-running operations can select
// on it to observe that shutdown has started.
func (sm *ShutdownManager) Context() context.Context {
	return sm.ctx
}

// Shutdown closes all registered listeners first (so no new sessions can
// start), waits up to shutdownTimeout for the manager's session table to
// drain to empty, then force-closes whatever sessions remain.
func (sm *ShutdownManager) Shutdown() error {
	var shutdownErr error

	sm.once.Do(func() {
		defer close(sm.done)

		sm.logger.WithFields(logrus.Fields{
			"timeout":  sm.shutdownTimeout.String(),
			"sessions": sm.mgr.Count(),
		}).Info("initiating ntcp2 manager shutdown")

		sm.cancel()
		sm.mgr.Stop()

		if err := sm.closeListeners(); err != nil {
			shutdownErr = err
		}
		if err := sm.drainOrForceClose(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}

		sm.logger.Info("ntcp2 manager shutdown complete")
	})

	return shutdownErr
}

func (sm *ShutdownManager) closeListeners() error {
	sm.mu.RLock()
	listeners := make([]*Listener, 0, len(sm.listeners))
	for l := range sm.listeners {
		listeners = append(listeners, l)
	}
	sm.mu.RUnlock()

	var firstErr error
	for _, l := range listeners {
		if err := l.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (sm *ShutdownManager) drainOrForceClose() error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	timeout := time.NewTimer(sm.shutdownTimeout)
	defer timeout.Stop()

	for {
		select {
		case <-timeout.C:
			return sm.forceCloseAll()
		case <-ticker.C:
			if sm.mgr.Count() == 0 {
				return nil
			}
		}
	}
}

func (sm *ShutdownManager) forceCloseAll() error {
	sm.mgr.mu.Lock()
	sessions := make([]*ntcp2.Session, 0, len(sm.mgr.sessions))
	for _, s := range sm.mgr.sessions {
		sessions = append(sessions, s)
	}
	sm.mgr.sessions = make(map[[32]byte]*ntcp2.Session)
	sm.mgr.mu.Unlock()

	var firstErr error
	for _, s := range sessions {
		if err := s.Close(); err != nil {
			sm.logger.WithError(err).Warn("error force closing session during shutdown")
			if firstErr == nil {
				firstErr = oops.Code("SHUTDOWN_FORCE_CLOSE").In("manager").Wrapf(err, "error force closing session")
			}
		}
	}
	return firstErr
}

// Wait blocks until Shutdown has completed.
func (sm *ShutdownManager) Wait() {
	<-sm.done
}
