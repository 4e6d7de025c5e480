package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/2beens/repcounter/internal/sessions"
	"github.com/2beens/repcounter/internal/telemetry/metrics"
	"github.com/2beens/repcounter/internal/telemetry/tracing"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"
)

//go:generate mockgen -source=$GOFILE -destination=tracker_mocks_test.go -package=tracking_test

var (
	ErrRunInProgress = errors.New("tracking run already in progress")
	ErrNoActiveRun   = errors.New("no active tracking run")
	ErrSaveFailed    = errors.New("failed to save session")
)

// SessionCreator persists finished tracking runs.
type SessionCreator interface {
	Create(ctx context.Context, newSession sessions.NewSession) (*sessions.Session, error)
}

// Summary describes a stopped tracking run.
type Summary struct {
	RunID     string            `json:"runId"`
	Reps      int               `json:"reps"`
	Exercise  Exercise          `json:"exerciseName"`
	History   []MovementEvent   `json:"history"`
	StartedAt time.Time         `json:"startedAt"`
	StoppedAt time.Time         `json:"stoppedAt"`
	Saved     bool              `json:"saved"`
	Session   *sessions.Session `json:"session,omitempty"`
}

// Tracker allows a single active tracking run at a time.
type Tracker struct {
	mu      sync.Mutex
	active  *Run
	creator SessionCreator
	cfg     SmootherConfig
	metrics *metrics.Manager
}

func NewTracker(creator SessionCreator, cfg SmootherConfig, metricsManager *metrics.Manager) *Tracker {
	return &Tracker{
		creator: creator,
		cfg:     cfg.withDefaults(),
		metrics: metricsManager,
	}
}

// Start begins a new run consuming frames from source. The source is closed on
// every path: right away when acquiring its frames fails, otherwise when the run stops.
func (t *Tracker) Start(ctx context.Context, source FrameSource) (*Run, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active != nil {
		return nil, ErrRunInProgress
	}

	// the run outlives the request that started it
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	frames, err := source.Frames(runCtx)
	if err != nil {
		cancel()
		return nil, multierr.Combine(
			fmt.Errorf("acquire frames: %w", err),
			source.Close(),
		)
	}

	run := &Run{
		ID:         uuid.NewString(),
		StartedAt:  time.Now(),
		tracker:    t,
		source:     source,
		smoother:   NewSmoother(t.cfg),
		classifier: NewClassifier(),
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	t.active = run

	if t.metrics != nil {
		t.metrics.CounterTrackingRuns.Inc()
		t.metrics.GaugeActiveRuns.Set(1)
	}

	go run.loop(runCtx, frames)

	log.Debugf("tracking run [%s] started", run.ID)
	return run, nil
}

// Active returns the run in progress, or nil.
func (t *Tracker) Active() *Run {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// StopActive stops the run in progress.
func (t *Tracker) StopActive(ctx context.Context) (*Summary, error) {
	run := t.Active()
	if run == nil {
		return nil, ErrNoActiveRun
	}
	return run.Stop(ctx)
}

// Shutdown stops the active run, if any.
func (t *Tracker) Shutdown(ctx context.Context) error {
	if _, err := t.StopActive(ctx); err != nil && !errors.Is(err, ErrNoActiveRun) {
		return err
	}
	return nil
}

func (t *Tracker) release(run *Run) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == run {
		t.active = nil
	}
	if t.metrics != nil {
		t.metrics.GaugeActiveRuns.Set(0)
	}
}

// Run owns all per-run state. Frames are processed serially by a single goroutine.
type Run struct {
	ID        string
	StartedAt time.Time

	tracker    *Tracker
	source     FrameSource
	smoother   *Smoother
	classifier *Classifier
	reps       atomic.Int64
	frames     atomic.Int64

	cancel context.CancelFunc
	done   chan struct{}

	stopOnce sync.Once
	summary  *Summary
	stopErr  error
}

// RepCount is safe to call at any time during the run.
func (r *Run) RepCount() int {
	return int(r.reps.Load())
}

// FramesProcessed returns the number of frames delivered so far, usable or not.
func (r *Run) FramesProcessed() int {
	return int(r.frames.Load())
}

// Done is closed when frame delivery has ended, either because the source
// was exhausted or because the run was stopped.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Source returns the frame source owned by the run.
func (r *Run) Source() FrameSource {
	return r.source
}

func (r *Run) loop(ctx context.Context, frames <-chan PoseSample) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			r.drain(frames)
			return
		case sample, ok := <-frames:
			if !ok {
				log.Debugf("tracking run [%s]: frame source exhausted", r.ID)
				return
			}
			r.process(sample)
		}
	}
}

// drain processes the frames already buffered when the run is stopped.
func (r *Run) drain(frames <-chan PoseSample) {
	for {
		select {
		case sample, ok := <-frames:
			if !ok {
				return
			}
			r.process(sample)
		default:
			return
		}
	}
}

func (r *Run) process(sample PoseSample) {
	r.frames.Add(1)
	m := r.tracker.metrics

	centerY, usable := sample.CenterY()
	if !usable {
		if m != nil {
			m.CounterFrames.WithLabelValues("skipped").Inc()
		}
		return
	}
	if m != nil {
		m.CounterFrames.WithLabelValues("usable").Inc()
	}

	change, changed := r.smoother.FeedCenter(centerY)
	if !changed {
		return
	}
	if m != nil {
		m.CounterDirectionChanges.WithLabelValues(change.To.String()).Inc()
	}

	if r.classifier.OnDirectionChange(change) {
		r.reps.Store(int64(r.classifier.Reps()))
		if m != nil {
			m.CounterReps.Inc()
		}
		log.Tracef("tracking run [%s]: rep %d", r.ID, r.classifier.Reps())
	}
}

// Stop halts frame delivery, releases the frame source, classifies the run and,
// when at least one rep was counted, submits the session exactly once.
// Subsequent calls return the same result.
func (r *Run) Stop(ctx context.Context) (*Summary, error) {
	r.stopOnce.Do(func() {
		r.summary, r.stopErr = r.stop(ctx)
	})
	return r.summary, r.stopErr
}

func (r *Run) stop(ctx context.Context) (_ *Summary, err error) {
	// a caller going away mid-stop must not lose the save
	ctx = context.WithoutCancel(ctx)
	ctx, span := tracing.GlobalTracer.Start(ctx, "tracking.run.stop")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	// intake first: frames accepted until now are still processed by the loop drain
	if closeErr := r.source.Close(); closeErr != nil {
		log.Warnf("tracking run [%s]: release frame source: %s", r.ID, closeErr)
	}
	r.cancel()
	<-r.done
	r.tracker.release(r)

	// the frame loop has exited, the classifier is ours now
	summary := &Summary{
		RunID:     r.ID,
		Reps:      r.classifier.Reps(),
		Exercise:  r.classifier.Classify(),
		History:   r.classifier.History(),
		StartedAt: r.StartedAt,
		StoppedAt: time.Now(),
	}

	span.SetAttributes(
		attribute.String("run_id", r.ID),
		attribute.Int("reps", summary.Reps),
		attribute.String("exercise", summary.Exercise.String()),
	)

	m := r.tracker.metrics
	if m != nil {
		m.HistRunReps.Observe(float64(summary.Reps))
	}

	log.Debugf("tracking run [%s] stopped: %d reps, [%s]", r.ID, summary.Reps, summary.Exercise)

	if summary.Reps == 0 {
		return summary, nil
	}

	session, err := r.tracker.creator.Create(ctx, sessions.NewSession{
		ExerciseName: summary.Exercise.String(),
		Reps:         summary.Reps,
	})
	if err != nil {
		if m != nil {
			m.CounterSessionSaveFailures.Inc()
		}
		return summary, fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}

	summary.Saved = true
	summary.Session = session
	return summary, nil
}
