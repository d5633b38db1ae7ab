// Package session provides the keyed, TTL-aware store for all per-session
// mutable state: conversation memory, AI context, pending operations, the
// processing flag and the rolling command window.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/shoplens-ai/catalog-assistant/internal/model"
)

const (
	// HistoryWindow caps stored conversation messages per session.
	HistoryWindow = 40
	// SessionTimeout invalidates the whole conversation state on read.
	SessionTimeout = 2 * time.Hour
	// PendingTTL expires unresolved clarifications and confirmations.
	PendingTTL = 5 * time.Minute
	// RateWindow is the rolling window for per-session command limiting.
	RateWindow = time.Minute
	// RateLimit is the command cap inside one rolling window.
	RateLimit = 10
	// MaxRecentProducts caps the AI context product list.
	MaxRecentProducts = 5
)

type state struct {
	conv          model.ConversationState
	aiCtx         model.AIContext
	clarification *model.Clarification
	confirmation  *model.Confirmation
	processing    bool
	commandTimes  []time.Time
	lastSeen      time.Time
}

// Store owns session-scoped state. Each session's state is only ever touched
// by that session's command, but sessions share the map, so access is
// mutex-guarded.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*state
	now      func() time.Time
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*state),
		now:      time.Now,
	}
}

func (s *Store) get(id string) *state {
	st, ok := s.sessions[id]
	if !ok {
		st = &state{}
		s.sessions[id] = st
	}
	st.lastSeen = s.now()
	return st
}

// History returns the conversation window for a session. An expired state is
// invalidated as a whole, never pruned selectively.
func (s *Store) History(id string) []model.ConversationMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.get(id)
	if s.expired(st) {
		st.conv = model.ConversationState{}
		st.aiCtx = model.AIContext{}
		return nil
	}
	out := make([]model.ConversationMessage, len(st.conv.Messages))
	copy(out, st.conv.Messages)
	return out
}

// AppendHistory records one role-tagged message, keeping the window bounded.
func (s *Store) AppendHistory(id string, role model.Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.get(id)
	if s.expired(st) {
		st.conv = model.ConversationState{}
	}
	st.conv.Messages = append(st.conv.Messages, model.ConversationMessage{
		Role:      role,
		Content:   content,
		CreatedAt: s.now(),
	})
	if len(st.conv.Messages) > HistoryWindow {
		st.conv.Messages = st.conv.Messages[len(st.conv.Messages)-HistoryWindow:]
	}
	st.conv.MessageCount++
	st.conv.LastActivity = s.now()
}

// Context returns a copy of the session's AI context.
func (s *Store) Context(id string) model.AIContext {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.get(id)
	if s.expired(st) {
		st.conv = model.ConversationState{}
		st.aiCtx = model.AIContext{}
	}
	ctx := st.aiCtx
	ctx.RecentProducts = append([]model.ProductRef(nil), st.aiCtx.RecentProducts...)
	return ctx
}

// NoteProductContext records the product touched by a successful mutation.
func (s *Store) NoteProductContext(id, productID, productName, action string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.get(id).aiCtx.Note(productID, productName, action, MaxRecentProducts)
}

// SetClarification stores a pending clarification, replacing any prior one.
func (s *Store) SetClarification(id string, c *model.Clarification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.CreatedAt = s.now()
	st := s.get(id)
	st.clarification = c
	st.confirmation = nil
}

// TakeClarification consumes the pending clarification. Stale entries are
// auto-cancelled and reported as expired.
func (s *Store) TakeClarification(id string) (c *model.Clarification, expired bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.get(id)
	c = st.clarification
	st.clarification = nil
	if c == nil {
		return nil, false
	}
	if s.now().Sub(c.CreatedAt) > PendingTTL {
		return nil, true
	}
	return c, false
}

// SetConfirmation stores a pending confirmation, replacing any prior one.
func (s *Store) SetConfirmation(id string, c *model.Confirmation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.CreatedAt = s.now()
	st := s.get(id)
	st.confirmation = c
	st.clarification = nil
}

// TakeConfirmation consumes the pending confirmation. Stale entries are
// auto-cancelled and reported as expired.
func (s *Store) TakeConfirmation(id string) (c *model.Confirmation, expired bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.get(id)
	c = st.confirmation
	st.confirmation = nil
	if c == nil {
		return nil, false
	}
	if s.now().Sub(c.CreatedAt) > PendingTTL {
		return nil, true
	}
	return c, false
}

// BeginProcessing sets the per-session processing flag. It returns false when
// a command is already in flight; the caller rejects instead of queueing.
func (s *Store) BeginProcessing(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.get(id)
	if st.processing {
		return false
	}
	st.processing = true
	return true
}

// EndProcessing clears the processing flag unconditionally. Callers defer it
// so the flag cannot leak into a stuck state on failure.
func (s *Store) EndProcessing(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.get(id).processing = false
}

// AllowCommand admits at most RateLimit commands per rolling RateWindow.
// Timestamps outside the window are pruned lazily on each check.
func (s *Store) AllowCommand(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.get(id)
	cutoff := s.now().Add(-RateWindow)
	kept := st.commandTimes[:0]
	for _, t := range st.commandTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	st.commandTimes = kept

	if len(st.commandTimes) >= RateLimit {
		return false
	}
	st.commandTimes = append(st.commandTimes, s.now())
	return true
}

// Clear removes all state for a session.
func (s *Store) Clear(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
}

// Sweep drops sessions idle past the session timeout.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-SessionTimeout)
	removed := 0
	for id, st := range s.sessions {
		if st.lastSeen.Before(cutoff) && !st.processing {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// StartGC sweeps idle sessions until the context is cancelled.
func (s *Store) StartGC(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *Store) expired(st *state) bool {
	return !st.conv.LastActivity.IsZero() && s.now().Sub(st.conv.LastActivity) > SessionTimeout
}
