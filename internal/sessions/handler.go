package sessions

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/2beens/repcounter/internal/middleware"
	"github.com/2beens/repcounter/internal/telemetry/metrics"
	"github.com/2beens/repcounter/internal/telemetry/tracing"
	"github.com/2beens/repcounter/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

type Handler struct {
	repo    Repo
	metrics *metrics.Manager
	now     func() time.Time
}

func NewHandler(repo Repo, metricsManager *metrics.Manager) *Handler {
	return &Handler{
		repo:    repo,
		metrics: metricsManager,
		now:     time.Now,
	}
}

func (handler *Handler) SetupRoutes(
	mainRouter *mux.Router,
	rateLimiter middleware.RequestRateLimiter,
	createAllowedPerMin int,
) {
	sessionsRouter := mainRouter.PathPrefix("/api/sessions").Subrouter()
	sessionsRouter.HandleFunc("", handler.HandleList).Methods("GET", "OPTIONS").Name("list-sessions")
	sessionsRouter.HandleFunc("/today", handler.HandleToday).Methods("GET", "OPTIONS").Name("today-sessions")
	sessionsRouter.HandleFunc("/today/report", handler.HandleTodayReport).Methods("GET", "OPTIONS").Name("today-report")
	sessionsRouter.HandleFunc("/day/{date}", handler.HandleDay).Methods("GET", "OPTIONS").Name("day-sessions")
	sessionsRouter.HandleFunc("/{id}", handler.HandleGet).Methods("GET", "OPTIONS").Name("get-session")

	createRoute := http.Handler(http.HandlerFunc(handler.HandleCreate))
	if rateLimiter != nil && createAllowedPerMin > 0 {
		createRoute = middleware.RateLimit(rateLimiter, "create-session", createAllowedPerMin, handler.metrics)(createRoute)
	}
	sessionsRouter.Handle("", createRoute).Methods("POST", "OPTIONS").Name("new-session")
}

func (handler *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.new")
	defer span.End()

	var newSession NewSession
	if err := json.NewDecoder(r.Body).Decode(&newSession); err != nil {
		log.Tracef("new session, unmarshal json params: %s", err)
		pkg.WriteJSONMessage(w, "invalid session body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := newSession.Validate(); err != nil {
		pkg.WriteJSONMessage(w, err.Error(), http.StatusBadRequest)
		return
	}

	session, err := handler.repo.Create(ctx, newSession)
	if err != nil {
		if errors.Is(err, ErrInvalidSession) {
			pkg.WriteJSONMessage(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Errorf("failed to add new session [%s], [%d]: %s", newSession.ExerciseName, newSession.Reps, err)
		pkg.WriteJSONMessage(w, "failed to add new session", http.StatusInternalServerError)
		return
	}

	span.SetAttributes(
		attribute.String("session_id", session.ID),
		attribute.String("exercise", session.ExerciseName),
		attribute.Int("reps", session.Reps),
	)
	if handler.metrics != nil {
		handler.metrics.CounterSessions.WithLabelValues(session.ExerciseName).Inc()
	}

	log.Debugf("new session added: [%s] %d reps: %s", session.ExerciseName, session.Reps, session.ID)
	pkg.WriteJSON(w, session, http.StatusCreated)
}

func (handler *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.get")
	defer span.End()

	id := mux.Vars(r)["id"]
	if id == "" {
		pkg.WriteJSONMessage(w, "session id empty", http.StatusBadRequest)
		return
	}

	session, err := handler.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			pkg.WriteJSONMessage(w, "session not found", http.StatusNotFound)
			return
		}
		log.Errorf("failed to get session %s: %s", id, err)
		pkg.WriteJSONMessage(w, "failed to get session", http.StatusInternalServerError)
		return
	}

	pkg.WriteJSON(w, session, http.StatusOK)
}

func (handler *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.list")
	defer span.End()

	sessions, err := handler.repo.List(ctx)
	if err != nil {
		log.Errorf("list sessions error: %s", err)
		pkg.WriteJSONMessage(w, "failed to get sessions", http.StatusInternalServerError)
		return
	}

	pkg.WriteJSON(w, sessions, http.StatusOK)
}

func (handler *Handler) HandleToday(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.today")
	defer span.End()

	sessions, err := handler.repo.ListByDay(ctx, handler.now())
	if err != nil {
		log.Errorf("list today sessions error: %s", err)
		pkg.WriteJSONMessage(w, "failed to get sessions", http.StatusInternalServerError)
		return
	}

	pkg.WriteJSON(w, sessions, http.StatusOK)
}

func (handler *Handler) HandleDay(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.day")
	defer span.End()

	dateStr := mux.Vars(r)["date"]
	day, err := time.ParseInLocation(time.DateOnly, dateStr, handler.now().Location())
	if err != nil {
		pkg.WriteJSONMessage(w, "invalid date, use YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("day", dateStr))

	sessions, err := handler.repo.ListByDay(ctx, day)
	if err != nil {
		log.Errorf("list sessions for day %s error: %s", dateStr, err)
		pkg.WriteJSONMessage(w, "failed to get sessions", http.StatusInternalServerError)
		return
	}

	pkg.WriteJSON(w, sessions, http.StatusOK)
}

func (handler *Handler) HandleTodayReport(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.todayReport")
	defer span.End()

	today := handler.now()
	sessions, err := handler.repo.ListByDay(ctx, today)
	if err != nil {
		log.Errorf("daily report error: %s", err)
		pkg.WriteJSONMessage(w, "failed to get daily report", http.StatusInternalServerError)
		return
	}

	pkg.WriteJSON(w, NewDailyReport(today, sessions), http.StatusOK)
}
