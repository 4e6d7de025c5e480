package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/2beens/repcounter/internal/telemetry/tracing"
	"github.com/2beens/repcounter/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultPushBuffer  = 32
	defaultPushTimeout = 2 * time.Second
)

type StartResponse struct {
	RunID string `json:"runId"`
}

type RepsResponse struct {
	RunID  string `json:"runId"`
	Reps   int    `json:"reps"`
	Frames int    `json:"frames"`
	Active bool   `json:"active"`
}

type StopResponse struct {
	*Summary
	Message string `json:"message,omitempty"`
}

// Handler exposes the tracker over HTTP, for clients running the pose model themselves
// and posting the estimated keypoints frame by frame.
type Handler struct {
	tracker     *Tracker
	pushBuffer  int
	pushTimeout time.Duration
}

func NewHandler(tracker *Tracker) *Handler {
	return &Handler{
		tracker:     tracker,
		pushBuffer:  defaultPushBuffer,
		pushTimeout: defaultPushTimeout,
	}
}

func (handler *Handler) SetupRoutes(mainRouter *mux.Router) {
	trackingRouter := mainRouter.PathPrefix("/api/tracking").Subrouter()
	trackingRouter.HandleFunc("/start", handler.HandleStart).Methods("POST", "OPTIONS").Name("tracking-start")
	trackingRouter.HandleFunc("/frames", handler.HandleFrame).Methods("POST", "OPTIONS").Name("tracking-frame")
	trackingRouter.HandleFunc("/reps", handler.HandleReps).Methods("GET", "OPTIONS").Name("tracking-reps")
	trackingRouter.HandleFunc("/stop", handler.HandleStop).Methods("POST", "OPTIONS").Name("tracking-stop")
}

func (handler *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.tracking.start")
	defer span.End()

	run, err := handler.tracker.Start(ctx, NewPushSource(handler.pushBuffer, nil))
	if err != nil {
		if errors.Is(err, ErrRunInProgress) {
			pkg.WriteJSONMessage(w, err.Error(), http.StatusConflict)
			return
		}
		log.Errorf("start tracking run: %s", err)
		pkg.WriteJSONMessage(w, "failed to start tracking", http.StatusInternalServerError)
		return
	}

	span.SetAttributes(attribute.String("run_id", run.ID))
	pkg.WriteJSON(w, StartResponse{RunID: run.ID}, http.StatusCreated)
}

func (handler *Handler) HandleFrame(w http.ResponseWriter, r *http.Request) {
	var sample PoseSample
	if err := json.NewDecoder(r.Body).Decode(&sample); err != nil {
		log.Tracef("tracking frame, unmarshal json: %s", err)
		pkg.WriteJSONMessage(w, "invalid pose sample", http.StatusBadRequest)
		return
	}

	run := handler.tracker.Active()
	if run == nil {
		pkg.WriteJSONMessage(w, ErrNoActiveRun.Error(), http.StatusConflict)
		return
	}

	source, ok := run.Source().(*PushSource)
	if !ok {
		pkg.WriteJSONMessage(w, "active run does not accept frames over http", http.StatusConflict)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), handler.pushTimeout)
	defer cancel()

	if err := source.Push(ctx, sample); err != nil {
		switch {
		case errors.Is(err, ErrSourceClosed):
			pkg.WriteJSONMessage(w, ErrNoActiveRun.Error(), http.StatusConflict)
		case errors.Is(err, context.DeadlineExceeded):
			pkg.WriteJSONMessage(w, "frame not accepted in time", http.StatusServiceUnavailable)
		default:
			log.Warnf("tracking frame push: %s", err)
			pkg.WriteJSONMessage(w, "frame not accepted", http.StatusServiceUnavailable)
		}
		return
	}

	pkg.WriteJSON(w, RepsResponse{
		RunID:  run.ID,
		Reps:   run.RepCount(),
		Frames: run.FramesProcessed(),
		Active: true,
	}, http.StatusAccepted)
}

func (handler *Handler) HandleReps(w http.ResponseWriter, _ *http.Request) {
	run := handler.tracker.Active()
	if run == nil {
		pkg.WriteJSON(w, RepsResponse{}, http.StatusOK)
		return
	}

	pkg.WriteJSON(w, RepsResponse{
		RunID:  run.ID,
		Reps:   run.RepCount(),
		Frames: run.FramesProcessed(),
		Active: true,
	}, http.StatusOK)
}

func (handler *Handler) HandleStop(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.tracking.stop")
	defer span.End()

	summary, err := handler.tracker.StopActive(ctx)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoActiveRun):
			pkg.WriteJSONMessage(w, err.Error(), http.StatusConflict)
		case errors.Is(err, ErrSaveFailed):
			log.Errorf("stop tracking run: %s", err)
			pkg.WriteJSON(w, StopResponse{
				Summary: summary,
				Message: "Failed to save session. Please try again.",
			}, http.StatusBadGateway)
		default:
			log.Errorf("stop tracking run: %s", err)
			pkg.WriteJSONMessage(w, "failed to stop tracking", http.StatusInternalServerError)
		}
		return
	}

	pkg.WriteJSON(w, StopResponse{Summary: summary}, http.StatusOK)
}
