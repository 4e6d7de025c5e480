package sessions

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepClock returns start, then start+step, start+2*step, ...
func stepClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := next
		next = next.Add(step)
		return now
	}
}

func TestMemoryRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	// 23:00, then every 30 minutes, crossing midnight after two sessions
	repo.now = stepClock(time.Date(2026, 10, 14, 23, 0, 0, 0, time.UTC), 30*time.Minute)

	created := make([]*Session, 0, 4)
	for i, name := range []string{"squats", "push-ups", "bicep curls", "squats"} {
		s, err := repo.Create(ctx, NewSession{ExerciseName: name, Reps: i + 1})
		require.NoError(t, err)
		require.NotEmpty(t, s.ID)
		created = append(created, s)
	}

	got, err := repo.Get(ctx, created[2].ID)
	require.NoError(t, err)
	assert.Equal(t, *created[2], *got)

	_, err = repo.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i := range all {
		// newest first
		assert.Equal(t, created[3-i].ID, all[i].ID)
	}

	day14, err := repo.ListByDay(ctx, time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, day14, 2)
	assert.Equal(t, created[1].ID, day14[0].ID)
	assert.Equal(t, created[0].ID, day14[1].ID)

	day15, err := repo.ListByDay(ctx, time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, day15, 2)

	none, err := repo.ListByDay(ctx, time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestMemoryRepo_CreateInvalid(t *testing.T) {
	repo := NewMemoryRepo()
	_, err := repo.Create(context.Background(), NewSession{ExerciseName: "squats", Reps: -3})
	assert.ErrorIs(t, err, ErrInvalidSession)

	all, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestMemoryRepo_IDCollision(t *testing.T) {
	repo := NewMemoryRepo()
	repo.newID = func() string { return "same" }

	_, err := repo.Create(context.Background(), NewSession{ExerciseName: "squats", Reps: 1})
	require.NoError(t, err)
	_, err = repo.Create(context.Background(), NewSession{ExerciseName: "squats", Reps: 2})
	assert.ErrorContains(t, err, "collision")
}

func TestMemoryRepo_Concurrent(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Create(ctx, NewSession{ExerciseName: fmt.Sprintf("ex-%d", i), Reps: i})
			assert.NoError(t, err)
			_, err = repo.List(ctx)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 20)
}
