package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/2beens/repcounter/internal/telemetry/tracing"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	redisSessionKeyPrefix = "repcounter::session::"
	redisSessionsIndexKey = "repcounter::sessions"
)

// RedisRepo stores each session as a JSON value, plus a sorted set of session
// ids scored by the session unix nano timestamp, used for listing.
type RedisRepo struct {
	rdb *redis.Client

	now   func() time.Time
	newID func() string
}

func NewRedisRepo(rdb *redis.Client) *RedisRepo {
	return &RedisRepo{
		rdb:   rdb,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

func (r *RedisRepo) Create(ctx context.Context, newSession NewSession) (_ *Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.redis.sessions.create")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if err := newSession.Validate(); err != nil {
		return nil, err
	}

	session := &Session{
		ID:           r.newID(),
		ExerciseName: newSession.ExerciseName,
		Reps:         newSession.Reps,
		Timestamp:    r.now(),
	}
	span.SetAttributes(attribute.String("session_id", session.ID))

	sessionJson, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}

	// MULTI/EXEC: a session is never stored without its index entry, or the other way round
	if _, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisSessionKeyPrefix+session.ID, sessionJson, 0)
		pipe.ZAdd(ctx, redisSessionsIndexKey, &redis.Z{
			Score:  float64(session.Timestamp.UnixNano()),
			Member: session.ID,
		})
		return nil
	}); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	return session, nil
}

func (r *RedisRepo) Get(ctx context.Context, id string) (_ *Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.redis.sessions.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	raw, err := r.rdb.Get(ctx, redisSessionKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &session, nil
}

func (r *RedisRepo) List(ctx context.Context) (_ []Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.redis.sessions.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	return r.listByScore(ctx, "-inf", "+inf")
}

func (r *RedisRepo) ListByDay(ctx context.Context, day time.Time) (_ []Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.redis.sessions.listByDay")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	start, end := DayBounds(day)
	span.SetAttributes(attribute.String("day", start.Format(time.DateOnly)))

	return r.listByScore(
		ctx,
		strconv.FormatInt(start.UnixNano(), 10),
		strconv.FormatInt(end.UnixNano(), 10),
	)
}

// listByScore returns sessions in the given score range, newest first.
func (r *RedisRepo) listByScore(ctx context.Context, min, max string) ([]Session, error) {
	ids, err := r.rdb.ZRevRangeByScore(ctx, redisSessionsIndexKey, &redis.ZRangeBy{
		Min: min,
		Max: max,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("range sessions index: %w", err)
	}

	sessions := make([]Session, 0, len(ids))
	if len(ids) == 0 {
		return sessions, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisSessionKeyPrefix + id
	}

	values, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("get sessions: %w", err)
	}

	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// indexed but the value is gone
			log.Warnf("redis sessions: missing value for indexed session [%s]", ids[i])
			continue
		}
		var session Session
		if err := json.Unmarshal([]byte(raw), &session); err != nil {
			log.Errorf("redis sessions: unmarshal session [%s]: %s", ids[i], err)
			continue
		}
		sessions = append(sessions, session)
	}

	return sessions, nil
}
