package flow

import (
	"log/slog"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/Jeeves/internal/models"
)

// Session is one user's in-progress scheduling dialogue.
type Session struct {
	UserID    string
	ChannelID string
	Step      Step
	Answers   map[models.DataKey]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s Session) clone() Session {
	s.Answers = maps.Clone(s.Answers)
	if s.Answers == nil {
		s.Answers = make(map[models.DataKey]string)
	}
	return s
}

// SessionStore keeps at most one scheduling session per user for the lifetime of the
// process. Sessions are handed out as copies; callers Save their changes back.
type SessionStore struct {
	mu        sync.RWMutex
	sessions  map[string]Session
	userLocks map[string]*userLock
}

// userLock is a per-user mutex, kept in the store only while someone holds or waits on it.
type userLock struct {
	mu   sync.Mutex
	refs int
}

// NewSessionStore creates an empty store.
func NewSessionStore() *SessionStore {
	slog.Debug("Creating SessionStore")
	return &SessionStore{
		sessions:  make(map[string]Session),
		userLocks: make(map[string]*userLock),
	}
}

// Get returns the user's session, if any.
func (s *SessionStore) Get(userID string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return Session{}, false
	}
	return sess.clone(), true
}

// Create starts a session at the first step, replacing any existing one.
func (s *SessionStore) Create(userID, channelID string) Session {
	now := time.Now()
	sess := Session{
		UserID:    userID,
		ChannelID: channelID,
		Step:      FirstStep,
		Answers:   make(map[models.DataKey]string),
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.sessions[userID] = sess
	s.mu.Unlock()

	slog.Debug("SessionStore Create", "userID", userID, "channelID", channelID)
	return sess.clone()
}

// Save stores the given session under its user.
func (s *SessionStore) Save(sess Session) {
	sess = sess.clone()
	sess.UpdatedAt = time.Now()

	s.mu.Lock()
	s.sessions[sess.UserID] = sess
	s.mu.Unlock()

	slog.Debug("SessionStore Save", "userID", sess.UserID, "step", sess.Step)
}

// Delete removes the user's session. Deleting a missing session is a no-op.
func (s *SessionStore) Delete(userID string) {
	s.mu.Lock()
	_, existed := s.sessions[userID]
	delete(s.sessions, userID)
	s.mu.Unlock()

	if existed {
		slog.Debug("SessionStore Delete", "userID", userID)
	}
}

// Count returns the number of active sessions.
func (s *SessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// List returns copies of all active sessions ordered by user ID.
func (s *SessionStore) List() []Session {
	s.mu.RLock()
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Lock serializes handling for one user and returns the matching unlock.
// Locks for different users never contend.
func (s *SessionStore) Lock(userID string) (unlock func()) {
	s.mu.Lock()
	l, ok := s.userLocks[userID]
	if !ok {
		l = &userLock{}
		s.userLocks[userID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.userLocks, userID)
		}
		s.mu.Unlock()
	}
}

func (s *SessionStore) lockCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.userLocks)
}
