// Package presence implements the check-in / presence state machine.
package presence

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lumameet/presenced/internal/domain"
)

// Update is delivered to store subscribers. Exactly one field is set.
type Update struct {
	Snapshot *domain.Snapshot `json:"snapshot,omitempty"`
	Notice   *domain.Notice   `json:"notice,omitempty"`
}

const maxRecentNotices = 50

// Store holds the presence state: the current venue (or none), the roster of
// other attendees, and the lifecycle phase. Every mutation is a full-record
// replace under the lock, so readers never observe a partial update. The
// checked-in flag is derived: it is true exactly when a venue is set.
type Store struct {
	mu      sync.RWMutex
	venue   *domain.Venue
	roster  []domain.Attendee
	phase   domain.Phase
	notices []domain.Notice
	subs    map[string]chan Update
}

// NewStore creates an empty presence store.
func NewStore() *Store {
	return &Store{
		phase: domain.PhaseIdle,
		subs:  make(map[string]chan Update),
	}
}

// Snapshot returns a copy of the current presence state.
func (s *Store) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() domain.Snapshot {
	snap := domain.Snapshot{
		Phase:     s.phase,
		CheckedIn: s.venue != nil,
		Roster:    make([]domain.Attendee, len(s.roster)),
	}
	copy(snap.Roster, s.roster)
	if s.venue != nil {
		v := *s.venue
		snap.Venue = &v
	}
	return snap
}

// SetSession atomically replaces the venue and roster and marks the session
// confirmed.
func (s *Store) SetSession(venue domain.Venue, roster []domain.Attendee) {
	s.mu.Lock()
	v := venue
	s.venue = &v
	s.roster = append([]domain.Attendee(nil), roster...)
	s.phase = domain.PhaseConfirmed
	s.broadcastLocked()
	s.mu.Unlock()
}

// SetRestoring loads a persisted venue optimistically while the roster is
// confirmed against the server.
func (s *Store) SetRestoring(venue domain.Venue) {
	s.mu.Lock()
	v := venue
	s.venue = &v
	s.roster = nil
	s.phase = domain.PhaseRestoring
	s.broadcastLocked()
	s.mu.Unlock()
}

// Clear resets the store to the empty, not-checked-in state.
func (s *Store) Clear() {
	s.mu.Lock()
	s.venue = nil
	s.roster = nil
	s.phase = domain.PhaseIdle
	s.broadcastLocked()
	s.mu.Unlock()
}

// AddAttendee appends an attendee to the roster. An attendee whose id is
// already listed is ignored, not appended.
func (s *Store) AddAttendee(a domain.Attendee) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.venue == nil {
		return
	}
	for _, existing := range s.roster {
		if existing.ID == a.ID {
			return
		}
	}
	s.roster = append(s.roster, a)
	s.broadcastLocked()
}

// RemoveAttendee removes the attendee with the given id. Unknown ids are a
// no-op.
func (s *Store) RemoveAttendee(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.roster {
		if existing.ID == id {
			s.roster = append(s.roster[:i], s.roster[i+1:]...)
			s.broadcastLocked()
			return
		}
	}
}

// Notify queues a user-facing notice and fans it out to subscribers.
func (s *Store) Notify(kind domain.NoticeKind, message string) domain.Notice {
	notice := domain.Notice{
		ID:        uuid.NewString(),
		Kind:      kind,
		Message:   message,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.notices = append(s.notices, notice)
	if len(s.notices) > maxRecentNotices {
		s.notices = s.notices[len(s.notices)-maxRecentNotices:]
	}
	for id, ch := range s.subs {
		n := notice
		sendUpdate(id, ch, Update{Notice: &n})
	}
	s.mu.Unlock()

	return notice
}

// DrainNotices returns queued notices and clears the queue.
func (s *Store) DrainNotices() []domain.Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	notices := s.notices
	s.notices = nil
	return notices
}

// Subscribe registers an update channel under the given id, replacing any
// previous subscription with that id. The current snapshot is queued
// immediately so new subscribers do not wait for the next change.
func (s *Store) Subscribe(id string) <-chan Update {
	ch := make(chan Update, 16)

	s.mu.Lock()
	if old, ok := s.subs[id]; ok {
		close(old)
	}
	s.subs[id] = ch
	snap := s.snapshotLocked()
	s.mu.Unlock()

	ch <- Update{Snapshot: &snap}
	return ch
}

// Unsubscribe removes and closes the subscription with the given id.
func (s *Store) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

func (s *Store) broadcastLocked() {
	if len(s.subs) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for id, ch := range s.subs {
		sn := snap
		sendUpdate(id, ch, Update{Snapshot: &sn})
	}
}

// sendUpdate delivers without blocking; a subscriber that stops reading loses
// updates rather than stalling the state machine.
func sendUpdate(id string, ch chan Update, u Update) {
	select {
	case ch <- u:
	default:
		slog.Debug("Dropping update for slow subscriber", "subscriber", id)
	}
}
