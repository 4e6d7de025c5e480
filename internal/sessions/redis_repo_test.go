package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisRepo(t *testing.T, now time.Time, id string) (*RedisRepo, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	t.Cleanup(func() {
		assert.NoError(t, db.Close())
	})

	repo := NewRedisRepo(db)
	repo.now = func() time.Time { return now }
	repo.newID = func() string { return id }
	return repo, mock
}

func sessionJSON(t *testing.T, s Session) []byte {
	t.Helper()
	raw, err := json.Marshal(s)
	require.NoError(t, err)
	return raw
}

func TestRedisRepo_Create(t *testing.T) {
	now := time.Date(2026, 10, 15, 18, 5, 0, 0, time.UTC)
	repo, mock := newTestRedisRepo(t, now, "id-1")

	want := Session{ID: "id-1", ExerciseName: "push-ups", Reps: 16, Timestamp: now}
	mock.ExpectTxPipeline()
	mock.ExpectSet("repcounter::session::id-1", sessionJSON(t, want), 0).SetVal("OK")
	mock.ExpectZAdd("repcounter::sessions", &redis.Z{
		Score:  float64(now.UnixNano()),
		Member: "id-1",
	}).SetVal(1)
	mock.ExpectTxPipelineExec()

	got, err := repo.Create(context.Background(), NewSession{ExerciseName: "push-ups", Reps: 16})
	require.NoError(t, err)
	assert.Equal(t, want, *got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisRepo_Create_Errors(t *testing.T) {
	now := time.Date(2026, 10, 15, 18, 5, 0, 0, time.UTC)
	repo, mock := newTestRedisRepo(t, now, "id-1")

	// invalid input never reaches redis
	_, err := repo.Create(context.Background(), NewSession{ExerciseName: "", Reps: 1})
	assert.ErrorIs(t, err, ErrInvalidSession)

	want := Session{ID: "id-1", ExerciseName: "squats", Reps: 4, Timestamp: now}
	mock.ExpectTxPipeline()
	mock.ExpectSet("repcounter::session::id-1", sessionJSON(t, want), 0).SetErr(errors.New("READONLY"))
	_, err = repo.Create(context.Background(), NewSession{ExerciseName: "squats", Reps: 4})
	assert.ErrorContains(t, err, "store session: READONLY")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisRepo_Create_IndexFailsInsideTx(t *testing.T) {
	now := time.Date(2026, 10, 15, 18, 5, 0, 0, time.UTC)
	repo, mock := newTestRedisRepo(t, now, "id-2")

	want := Session{ID: "id-2", ExerciseName: "lunges", Reps: 9, Timestamp: now}
	// both writes are queued in the same MULTI, no separate round trip for the index
	mock.ExpectTxPipeline()
	mock.ExpectSet("repcounter::session::id-2", sessionJSON(t, want), 0).SetVal("OK")
	mock.ExpectZAdd("repcounter::sessions", &redis.Z{
		Score:  float64(now.UnixNano()),
		Member: "id-2",
	}).SetErr(errors.New("OOM command not allowed"))

	got, err := repo.Create(context.Background(), NewSession{ExerciseName: "lunges", Reps: 9})
	assert.Nil(t, got)
	assert.ErrorContains(t, err, "store session: OOM command not allowed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisRepo_Get(t *testing.T) {
	repo, mock := newTestRedisRepo(t, time.Now(), "")
	stored := Session{ID: "id-7", ExerciseName: "squats", Reps: 7, Timestamp: time.Date(2026, 10, 15, 7, 0, 0, 0, time.UTC)}

	mock.ExpectGet("repcounter::session::id-7").SetVal(string(sessionJSON(t, stored)))
	got, err := repo.Get(context.Background(), "id-7")
	require.NoError(t, err)
	assert.Equal(t, stored.ID, got.ID)
	assert.Equal(t, stored.Reps, got.Reps)
	assert.True(t, stored.Timestamp.Equal(got.Timestamp))

	mock.ExpectGet("repcounter::session::missing").RedisNil()
	_, err = repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisRepo_ListByDay(t *testing.T) {
	repo, mock := newTestRedisRepo(t, time.Now(), "")
	day := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	start, end := DayBounds(day)

	later := Session{ID: "b", ExerciseName: "bicep curls", Reps: 10, Timestamp: day.Add(time.Hour)}
	earlier := Session{ID: "a", ExerciseName: "squats", Reps: 5, Timestamp: day}

	mock.ExpectZRevRangeByScore("repcounter::sessions", &redis.ZRangeBy{
		Min: strconv.FormatInt(start.UnixNano(), 10),
		Max: strconv.FormatInt(end.UnixNano(), 10),
	}).SetVal([]string{"b", "gone", "a"})
	mock.ExpectMGet("repcounter::session::b", "repcounter::session::gone", "repcounter::session::a").
		SetVal([]interface{}{string(sessionJSON(t, later)), nil, string(sessionJSON(t, earlier))})

	got, err := repo.ListByDay(context.Background(), day)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisRepo_List(t *testing.T) {
	repo, mock := newTestRedisRepo(t, time.Now(), "")

	mock.ExpectZRevRangeByScore("repcounter::sessions", &redis.ZRangeBy{
		Min: "-inf",
		Max: "+inf",
	}).SetVal([]string{})

	got, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	mock.ExpectZRevRangeByScore("repcounter::sessions", &redis.ZRangeBy{
		Min: "-inf",
		Max: "+inf",
	}).SetErr(errors.New("connection reset"))
	_, err = repo.List(context.Background())
	assert.ErrorContains(t, err, "connection reset")

	assert.NoError(t, mock.ExpectationsWereMet())
}
