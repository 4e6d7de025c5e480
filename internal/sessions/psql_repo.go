package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/2beens/repcounter/internal/telemetry/tracing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

const createSessionsTableSQL = `CREATE TABLE IF NOT EXISTS sessions (
	id            VARCHAR PRIMARY KEY,
	exercise_name TEXT NOT NULL,
	reps          INTEGER NOT NULL,
	timestamp     TIMESTAMPTZ NOT NULL DEFAULT now()
);`

type PsqlRepo struct {
	db *pgxpool.Pool
}

func NewPsqlRepo(db *pgxpool.Pool) *PsqlRepo {
	return &PsqlRepo{
		db: db,
	}
}

// Migrate creates the sessions table if it does not exist.
func (r *PsqlRepo) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, createSessionsTableSQL); err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}
	return nil
}

func (r *PsqlRepo) Create(ctx context.Context, newSession NewSession) (_ *Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.psql.sessions.create")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if err := newSession.Validate(); err != nil {
		return nil, err
	}

	session := &Session{
		ID:           uuid.NewString(),
		ExerciseName: newSession.ExerciseName,
		Reps:         newSession.Reps,
	}
	span.SetAttributes(attribute.String("session_id", session.ID))

	if err := r.db.QueryRow(
		ctx,
		`INSERT INTO sessions (id, exercise_name, reps) VALUES ($1, $2, $3) RETURNING timestamp;`,
		session.ID, session.ExerciseName, session.Reps,
	).Scan(&session.Timestamp); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	return session, nil
}

func (r *PsqlRepo) Get(ctx context.Context, id string) (_ *Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.psql.sessions.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var session Session
	if err := r.db.QueryRow(
		ctx,
		`SELECT id, exercise_name, reps, timestamp FROM sessions WHERE id = $1;`,
		id,
	).Scan(&session.ID, &session.ExerciseName, &session.Reps, &session.Timestamp); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	return &session, nil
}

func (r *PsqlRepo) List(ctx context.Context) (_ []Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.psql.sessions.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := r.db.Query(
		ctx,
		`SELECT id, exercise_name, reps, timestamp FROM sessions ORDER BY timestamp DESC;`,
	)
	if err != nil {
		return nil, err
	}

	return scanSessions(rows)
}

func (r *PsqlRepo) ListByDay(ctx context.Context, day time.Time) (_ []Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.psql.sessions.listByDay")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	start, end := DayBounds(day)
	span.SetAttributes(attribute.String("day", start.Format(time.DateOnly)))

	rows, err := r.db.Query(
		ctx,
		`SELECT id, exercise_name, reps, timestamp FROM sessions
			WHERE timestamp >= $1 AND timestamp <= $2
			ORDER BY timestamp DESC;`,
		start, end,
	)
	if err != nil {
		return nil, err
	}

	return scanSessions(rows)
}

func scanSessions(rows pgx.Rows) ([]Session, error) {
	defer rows.Close()

	sessions := make([]Session, 0)
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.ExerciseName, &s.Reps, &s.Timestamp); err != nil {
			return nil, fmt.Errorf("rows scan: %w", err)
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}
