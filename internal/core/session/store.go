package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ClareAI/astra-receptionist-service/internal/domain"
	"github.com/ClareAI/astra-receptionist-service/pkg/logger"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jinzhu/copier"
	"go.uber.org/zap"
)

// entry guards one live call. Its mutex linearizes every read-modify-write on
// that call; different calls never contend on it.
type entry struct {
	mu      sync.Mutex
	session *domain.CallSession
	done    bool
}

const (
	defaultEndedSize = 10000
	defaultEndedTTL  = 6 * time.Hour
)

// Store holds the sessions of all live calls
type Store struct {
	mu    sync.RWMutex // guards calls and ended
	calls map[string]*entry
	// ended remembers recently completed ids so a late start cannot revive them
	ended     *expirable.LRU[string, time.Time]
	endedSize int
	endedTTL  time.Duration
	strict    bool
	now       func() time.Time
}

type Option func(*Store)

// WithStrictCreate makes Create fail with ErrAlreadyActive for a live call id
func WithStrictCreate() Option {
	return func(s *Store) { s.strict = true }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithEndedRetention sets how many completed call ids are remembered and for
// how long
func WithEndedRetention(size int, ttl time.Duration) Option {
	return func(s *Store) {
		if size > 0 {
			s.endedSize = size
		}
		if ttl > 0 {
			s.endedTTL = ttl
		}
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		calls:     make(map[string]*entry),
		endedSize: defaultEndedSize,
		endedTTL:  defaultEndedTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ended = expirable.NewLRU[string, time.Time](s.endedSize, nil, s.endedTTL)
	return s
}

// Create starts a session for callID. Creating an id that is already live
// returns the existing session untouched unless the store is strict. A call
// that has already been completed is never restarted: Create returns
// ErrNotActive for it.
func (s *Store) Create(callID, callerAddress string) (*domain.CallSession, error) {
	if callID == "" {
		return nil, fmt.Errorf("call id is required")
	}

	s.mu.Lock()
	if s.ended.Contains(callID) {
		s.mu.Unlock()
		return nil, fmt.Errorf("call %s: %w", callID, domain.ErrNotActive)
	}
	if e, ok := s.calls[callID]; ok {
		s.mu.Unlock()
		if s.strict {
			return nil, fmt.Errorf("call %s: %w", callID, domain.ErrAlreadyActive)
		}
		e.mu.Lock()
		defer e.mu.Unlock()
		return copySession(e.session), nil
	}
	e := &entry{session: domain.NewCallSession(callID, callerAddress, s.now())}
	s.calls[callID] = e
	s.mu.Unlock()

	logger.ForCall(callID).Info("call session created", zap.String("caller", callerAddress))
	return copySession(e.session), nil
}

// Get returns a deep copy of the live session
func (s *Store) Get(callID string) (*domain.CallSession, error) {
	e := s.lookup(callID)
	if e == nil {
		return nil, fmt.Errorf("call %s: %w", callID, domain.ErrNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return nil, fmt.Errorf("call %s: %w", callID, domain.ErrNotFound)
	}
	return copySession(e.session), nil
}

// AppendTranscript records a caller utterance
func (s *Store) AppendTranscript(callID, utterance string) error {
	return s.mutate(callID, func(cs *domain.CallSession) error {
		cs.TranscriptHistory = append(cs.TranscriptHistory, utterance)
		return nil
	})
}

// MergeContext folds partial into the call's Context
func (s *Store) MergeContext(callID string, partial domain.Context) error {
	return s.mutate(callID, func(cs *domain.CallSession) error {
		cs.Context = cs.Context.Merge(partial)
		return nil
	})
}

// AppendExchange records one caller/agent exchange
func (s *Store) AppendExchange(callID string, exchange domain.Exchange) error {
	return s.mutate(callID, func(cs *domain.CallSession) error {
		if exchange.At.IsZero() {
			exchange.At = s.now()
		}
		cs.ConversationHistory = append(cs.ConversationHistory, exchange)
		return nil
	})
}

// SetStatus moves a live call to a non-terminal status. Use Complete to end a call.
func (s *Store) SetStatus(callID string, status domain.CallStatus) error {
	if status.IsTerminal() {
		return fmt.Errorf("status %s is terminal, use Complete", status)
	}
	return s.mutate(callID, func(cs *domain.CallSession) error {
		if !cs.Status.CanTransition(status) {
			return fmt.Errorf("invalid status transition %s -> %s", cs.Status, status)
		}
		cs.Status = status
		return nil
	})
}

// Update runs fn on a working copy of the session under the call's lock. The
// copy replaces the stored session only when fn returns nil, so a failed or
// abandoned turn leaves no partial state behind.
func (s *Store) Update(callID string, fn func(*domain.CallSession) error) error {
	e := s.lookup(callID)
	if e == nil {
		return fmt.Errorf("call %s: %w", callID, domain.ErrNotActive)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done || e.session.Status.IsTerminal() {
		return fmt.Errorf("call %s: %w", callID, domain.ErrNotActive)
	}

	working := copySession(e.session)
	if err := fn(working); err != nil {
		return err
	}
	if working.Status.IsTerminal() {
		return fmt.Errorf("status %s is terminal, use Complete", working.Status)
	}
	working.CallID = e.session.CallID
	working.LastActivity = s.now()
	e.session = working
	return nil
}

// Complete marks the call terminal, moves it from the live index to the
// ended set and returns the final snapshot. Completing a call that is not live returns
// ErrNotActive, so finalization runs at most once per call.
func (s *Store) Complete(callID string, status domain.CallStatus) (*domain.CallSession, error) {
	if !status.IsTerminal() {
		return nil, fmt.Errorf("status %s is not terminal", status)
	}
	e := s.lookup(callID)
	if e == nil {
		return nil, fmt.Errorf("call %s: %w", callID, domain.ErrNotActive)
	}

	e.mu.Lock()
	if e.done {
		e.mu.Unlock()
		return nil, fmt.Errorf("call %s: %w", callID, domain.ErrNotActive)
	}
	e.done = true
	e.session.Status = status
	e.session.LastActivity = s.now()
	final := copySession(e.session)
	e.mu.Unlock()

	s.mu.Lock()
	s.ended.Add(callID, final.LastActivity)
	if current, ok := s.calls[callID]; ok && current == e {
		delete(s.calls, callID)
	}
	s.mu.Unlock()

	logger.ForCall(callID).Info("call session completed",
		zap.String("status", string(status)),
		zap.Int("turns", final.TurnCount()))
	return final, nil
}

// List returns copies of all live sessions ordered by start time
func (s *Store) List() []*domain.CallSession {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.calls))
	for _, e := range s.calls {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]*domain.CallSession, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.done {
			out = append(out, copySession(e.session))
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].CallID < out[j].CallID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Ended reports whether callID was completed recently enough to be remembered
func (s *Store) Ended(callID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ended.Contains(callID)
}

// Len returns the number of live calls
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.calls)
}

// Stale returns the ids of live calls with no activity for longer than idle
func (s *Store) Stale(idle time.Duration) []string {
	cutoff := s.now().Add(-idle)

	s.mu.RLock()
	entries := make(map[string]*entry, len(s.calls))
	for id, e := range s.calls {
		entries[id] = e
	}
	s.mu.RUnlock()

	var stale []string
	for id, e := range entries {
		e.mu.Lock()
		if !e.done && e.session.LastActivity.Before(cutoff) {
			stale = append(stale, id)
		}
		e.mu.Unlock()
	}
	sort.Strings(stale)
	return stale
}

func (s *Store) lookup(callID string) *entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[callID]
}

func (s *Store) mutate(callID string, fn func(*domain.CallSession) error) error {
	e := s.lookup(callID)
	if e == nil {
		return fmt.Errorf("call %s: %w", callID, domain.ErrNotActive)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done || e.session.Status.IsTerminal() {
		return fmt.Errorf("call %s: %w", callID, domain.ErrNotActive)
	}
	if err := fn(e.session); err != nil {
		return err
	}
	e.session.LastActivity = s.now()
	return nil
}

func copySession(original *domain.CallSession) *domain.CallSession {
	var cp domain.CallSession
	if err := copier.CopyWithOption(&cp, original, copier.Option{DeepCopy: true}); err != nil {
		logger.Base().Warn("Failed to copy call session", zap.String("call_id", original.CallID), zap.Error(err))
		cp = *original
		cp.TranscriptHistory = append([]string{}, original.TranscriptHistory...)
		cp.ConversationHistory = append([]domain.Exchange{}, original.ConversationHistory...)
	}
	// Context tells nil slices from empty ones
	cp.Context = original.Context.Clone()
	return &cp
}
