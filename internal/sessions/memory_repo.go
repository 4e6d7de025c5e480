package sessions

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo keeps sessions in memory only, nothing survives a restart.
type MemoryRepo struct {
	mu       sync.RWMutex
	sessions map[string]Session

	now   func() time.Time
	newID func() string
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		sessions: make(map[string]Session),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

func (r *MemoryRepo) Create(_ context.Context, newSession NewSession) (*Session, error) {
	if err := newSession.Validate(); err != nil {
		return nil, err
	}

	session := Session{
		ID:           r.newID(),
		ExerciseName: newSession.ExerciseName,
		Reps:         newSession.Reps,
		Timestamp:    r.now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[session.ID]; ok {
		return nil, fmt.Errorf("session id collision: %s", session.ID)
	}
	r.sessions[session.ID] = session

	return &session, nil
}

func (r *MemoryRepo) Get(_ context.Context, id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &session, nil
}

func (r *MemoryRepo) List(_ context.Context) ([]Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	sortNewestFirst(all)
	return all, nil
}

func (r *MemoryRepo) ListByDay(_ context.Context, day time.Time) ([]Session, error) {
	start, end := DayBounds(day)

	r.mu.RLock()
	defer r.mu.RUnlock()

	daySessions := make([]Session, 0)
	for _, s := range r.sessions {
		if s.Timestamp.Before(start) || s.Timestamp.After(end) {
			continue
		}
		daySessions = append(daySessions, s)
	}
	sortNewestFirst(daySessions)
	return daySessions, nil
}

func sortNewestFirst(sessions []Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].Timestamp.After(sessions[j].Timestamp)
	})
}
