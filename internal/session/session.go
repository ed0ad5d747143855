// Package session holds the single source of truth for "who is logged in":
// an in-memory state reconciled against the backend and mirrored into the
// durable store, with subscribers notified on every change.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/weiki/usercenter-cli/internal/errs"
	"github.com/weiki/usercenter-cli/internal/model"
	"github.com/weiki/usercenter-cli/internal/store"
)

// DefaultReconcileInterval is how often a verified session is silently
// re-checked against the backend to catch bans and forced logouts.
const DefaultReconcileInterval = 5 * time.Minute

// API is the slice of the typed client the session store depends on.
type API interface {
	CurrentUser(ctx context.Context) (*model.User, error)
	InvalidateCurrentUser()
	InvalidateUserLists()
}

// State of the session store.
type State int

const (
	StateAnonymous  State = iota // no user, no token
	StateOptimistic              // durable mirror loaded, not yet verified
	StateVerified                // confirmed by a live fetch
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateOptimistic:
		return "optimistic"
	case StateVerified:
		return "verified"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Snapshot is what subscribers receive.
type Snapshot struct {
	User    *model.User
	Loading bool
	State   State
}

// Store coordinates the current user, the loading flag, and the durable
// mirror. Writes go through Restore/Refresh/Clear/ForceUpdate only.
type Store struct {
	api     API
	persist store.Store
	log     *zap.Logger

	mu      sync.RWMutex
	user    *model.User
	loading bool
	state   State
	subs    map[int]func(Snapshot)
	nextSub int

	cron *cron.Cron
}

// New builds a session store in the anonymous state.
func New(api API, persist store.Store, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		api:     api,
		persist: persist,
		log:     log,
		state:   StateAnonymous,
		subs:    make(map[int]func(Snapshot)),
	}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Current returns the current user, if any.
func (s *Store) Current() (*model.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil, false
	}
	cpy := *s.user
	return &cpy, true
}

// Loading reports whether a foreground refresh is in flight.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Subscribe registers fn for state changes and returns its cancel func.
// fn runs synchronously on the goroutine that changed the state.
func (s *Store) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Restore pre-seeds the session from the durable mirror without touching the
// network, so a restart shows the last known user immediately. It reports
// whether an optimistic session was loaded.
func (s *Store) Restore() bool {
	if _, ok := s.persist.Token(); !ok {
		s.setAnonymous()
		return false
	}
	snap, ok := s.persist.User()
	if !ok || snap.Validate() != nil {
		return false
	}
	s.mu.Lock()
	s.user = snap
	s.state = StateOptimistic
	s.mu.Unlock()
	s.notify()
	s.log.Debug("session restored from mirror", zap.Int64("userId", snap.ID))
	return true
}

// Refresh reconciles the session with the backend. A silent refresh never
// toggles the loading flag and swallows transient failures; a foreground one
// blocks consumers via loading until it settles.
//
// Failure semantics: transient fetch failures leave the prior state in place.
// Only the explicit not-authenticated signal forces the session to anonymous.
func (s *Store) Refresh(ctx context.Context, silent bool) (*model.User, error) {
	if _, ok := s.persist.Token(); !ok {
		s.setAnonymous()
		return nil, nil
	}

	if !silent {
		s.setLoading(true)
		defer s.setLoading(false)
	}

	s.api.InvalidateCurrentUser()
	u, err := s.api.CurrentUser(ctx)
	if err == nil {
		err = u.Validate()
	}
	if err != nil {
		if errs.IsNotAuthenticated(err) {
			s.log.Info("session no longer valid, dropping local state")
			// the rest client already cleared the mirror; make sure anyway
			_ = s.persist.Clear()
			s.setAnonymous()
			return nil, err
		}
		if silent {
			s.log.Warn("silent session refresh failed", zap.Error(err))
			return nil, nil
		}
		return nil, err
	}

	if err := s.persist.SaveUser(u); err != nil {
		s.log.Warn("persist session mirror", zap.Error(err))
	}
	_ = s.persist.ClearLoginFlag()

	s.mu.Lock()
	s.user = u
	s.state = StateVerified
	s.mu.Unlock()
	s.notify()

	cpy := *u
	return &cpy, nil
}

// Clear forces the session to anonymous: durable mirror wiped, cached reads
// for the current user and the listings dropped so nothing leaks into the
// next user's session.
func (s *Store) Clear() error {
	s.api.InvalidateCurrentUser()
	s.api.InvalidateUserLists()
	err := s.persist.Clear()
	s.setAnonymous()
	return err
}

// ForceUpdate re-notifies all subscribers with the current state. Used after
// operations that changed state through a path the store did not observe.
func (s *Store) ForceUpdate() { s.notify() }

// StartReconciler begins the periodic silent refresh that detects
// server-side invalidation (ban, forced logout) without user action.
func (s *Store) StartReconciler(interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return fmt.Errorf("reconciler already running")
	}
	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		_, _ = s.Refresh(ctx, true)
	})
	if err != nil {
		return err
	}
	c.Start()
	s.cron = c
	return nil
}

// StopReconciler stops the periodic refresh, waiting for a running one.
func (s *Store) StopReconciler() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

func (s *Store) setAnonymous() {
	s.mu.Lock()
	s.user = nil
	s.state = StateAnonymous
	s.mu.Unlock()
	s.notify()
}

func (s *Store) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
	s.notify()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{Loading: s.loading, State: s.state}
	if s.user != nil {
		cpy := *s.user
		snap.User = &cpy
	}
	return snap
}

func (s *Store) notify() {
	s.mu.RLock()
	snap := s.snapshotLocked()
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(snap)
	}
}
