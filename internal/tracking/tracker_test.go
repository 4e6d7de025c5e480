package tracking_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/2beens/repcounter/internal/sessions"
	"github.com/2beens/repcounter/internal/telemetry/metrics"
	"github.com/2beens/repcounter/internal/tracking"

	"github.com/golang/mock/gomock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feed pushes frames into the run and waits until the run has processed all of them.
func feed(t *testing.T, run *tracking.Run, frames []tracking.PoseSample) {
	t.Helper()
	src, ok := run.Source().(*tracking.PushSource)
	require.True(t, ok)

	want := run.FramesProcessed() + len(frames)
	for _, f := range frames {
		require.NoError(t, src.Push(context.Background(), f))
	}
	require.Eventually(t, func() bool {
		return run.FramesProcessed() == want
	}, 2*time.Second, 5*time.Millisecond)
}

type fakeSource struct {
	framesErr error
	frames    chan tracking.PoseSample
	closed    atomic.Int32
}

func (s *fakeSource) Frames(_ context.Context) (<-chan tracking.PoseSample, error) {
	if s.framesErr != nil {
		return nil, s.framesErr
	}
	return s.frames, nil
}

func (s *fakeSource) Close() error {
	s.closed.Add(1)
	return nil
}

func TestTracker_FourSquatsSaved(t *testing.T) {
	ctrl := gomock.NewController(t)
	creator := NewMockSessionCreator(ctrl)
	metricsManager := metrics.NewTestManager()
	tracker := tracking.NewTracker(creator, tracking.DefaultSmootherConfig(), metricsManager)

	run, err := tracker.Start(context.Background(), tracking.NewPushSource(8, nil))
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Same(t, run, tracker.Active())

	frames := squatFrames(4)
	feed(t, run, frames[:45])
	// live count, two full cycles in
	assert.Equal(t, 2, run.RepCount())
	feed(t, run, frames[45:])
	assert.Equal(t, 4, run.RepCount())

	saved := &sessions.Session{ID: "s-1", ExerciseName: "squats", Reps: 4, Timestamp: time.Now()}
	creator.EXPECT().
		Create(gomock.Any(), sessions.NewSession{ExerciseName: "squats", Reps: 4}).
		Return(saved, nil).
		Times(1)

	summary, err := run.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, run.ID, summary.RunID)
	assert.Equal(t, 4, summary.Reps)
	assert.Equal(t, tracking.ExerciseSquats, summary.Exercise)
	assert.True(t, summary.Saved)
	assert.Same(t, saved, summary.Session)
	assert.Len(t, summary.History, 8)
	assert.False(t, summary.StoppedAt.Before(summary.StartedAt))

	// idempotent, no second submission
	again, err := run.Stop(context.Background())
	require.NoError(t, err)
	assert.Same(t, summary, again)

	assert.Nil(t, tracker.Active())
	<-run.Done()

	assert.Equal(t, float64(4), testutil.ToFloat64(metricsManager.CounterReps))
	assert.Equal(t, float64(len(frames)), testutil.ToFloat64(metricsManager.CounterFrames.WithLabelValues("usable")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metricsManager.CounterTrackingRuns))
	assert.Equal(t, float64(0), testutil.ToFloat64(metricsManager.GaugeActiveRuns))
}

func TestTracker_NoRepsNoSubmission(t *testing.T) {
	ctrl := gomock.NewController(t)
	// no Create expected
	creator := NewMockSessionCreator(ctrl)
	metricsManager := metrics.NewTestManager()
	tracker := tracking.NewTracker(creator, tracking.DefaultSmootherConfig(), metricsManager)

	run, err := tracker.Start(context.Background(), tracking.NewPushSource(8, nil))
	require.NoError(t, err)

	incomplete := poseAt(100)
	incomplete.Keypoints = incomplete.Keypoints[:2]
	feed(t, run, append(squatFrames(0), incomplete, incomplete))

	summary, err := run.Stop(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Reps)
	assert.Equal(t, tracking.ExerciseSquats, summary.Exercise)
	assert.False(t, summary.Saved)
	assert.Nil(t, summary.Session)

	assert.Equal(t, float64(2), testutil.ToFloat64(metricsManager.CounterFrames.WithLabelValues("skipped")))
}

func TestTracker_SaveFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	creator := NewMockSessionCreator(ctrl)
	metricsManager := metrics.NewTestManager()
	tracker := tracking.NewTracker(creator, tracking.DefaultSmootherConfig(), metricsManager)

	run, err := tracker.Start(context.Background(), tracking.NewPushSource(8, nil))
	require.NoError(t, err)
	feed(t, run, squatFrames(3))

	storeErr := errors.New("connection refused")
	creator.EXPECT().
		Create(gomock.Any(), sessions.NewSession{ExerciseName: "squats", Reps: 3}).
		Return(nil, storeErr).
		Times(1)

	summary, err := run.Stop(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, tracking.ErrSaveFailed)
	assert.ErrorIs(t, err, storeErr)

	// counting state survives the failed save
	require.NotNil(t, summary)
	assert.Equal(t, 3, summary.Reps)
	assert.False(t, summary.Saved)
	assert.Equal(t, 3, run.RepCount())

	_, err = run.Stop(context.Background())
	assert.ErrorIs(t, err, tracking.ErrSaveFailed)
	assert.Equal(t, float64(1), testutil.ToFloat64(metricsManager.CounterSessionSaveFailures))
}

func TestTracker_SingleActiveRun(t *testing.T) {
	ctrl := gomock.NewController(t)
	creator := NewMockSessionCreator(ctrl)
	tracker := tracking.NewTracker(creator, tracking.DefaultSmootherConfig(), nil)

	first, err := tracker.Start(context.Background(), tracking.NewPushSource(8, nil))
	require.NoError(t, err)

	_, err = tracker.Start(context.Background(), tracking.NewPushSource(8, nil))
	assert.ErrorIs(t, err, tracking.ErrRunInProgress)
	assert.Same(t, first, tracker.Active())

	feed(t, first, squatFrames(1))
	creator.EXPECT().Create(gomock.Any(), gomock.Any()).Return(&sessions.Session{ID: "s-1"}, nil)
	_, err = tracker.StopActive(context.Background())
	require.NoError(t, err)

	_, err = tracker.StopActive(context.Background())
	assert.ErrorIs(t, err, tracking.ErrNoActiveRun)

	// a new run starts from scratch
	second, err := tracker.Start(context.Background(), tracking.NewPushSource(8, nil))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Zero(t, second.RepCount())
	feed(t, second, repeatPose(100, 3))

	summary, err := second.Stop(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Reps)
	assert.Empty(t, summary.History)
}

func TestTracker_StartCanceledRequestContext(t *testing.T) {
	tracker := tracking.NewTracker(NewMockSessionCreator(gomock.NewController(t)), tracking.DefaultSmootherConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	run, err := tracker.Start(ctx, tracking.NewPushSource(8, nil))
	require.NoError(t, err)
	cancel()

	// the run is not tied to the request that started it
	feed(t, run, repeatPose(100, 3))
	select {
	case <-run.Done():
		t.Fatal("run stopped with the request context")
	default:
	}

	_, err = run.Stop(context.Background())
	require.NoError(t, err)
}

func TestTracker_FramesErrorClosesSource(t *testing.T) {
	tracker := tracking.NewTracker(NewMockSessionCreator(gomock.NewController(t)), tracking.DefaultSmootherConfig(), nil)

	src := &fakeSource{framesErr: errors.New("camera permission denied")}
	run, err := tracker.Start(context.Background(), src)
	require.Error(t, err)
	assert.Nil(t, run)
	assert.ErrorContains(t, err, "camera permission denied")
	assert.Equal(t, int32(1), src.closed.Load())
	assert.Nil(t, tracker.Active())
}

func TestTracker_SourceReleasedOnEveryStop(t *testing.T) {
	tracker := tracking.NewTracker(NewMockSessionCreator(gomock.NewController(t)), tracking.DefaultSmootherConfig(), nil)

	// stopped before any frame arrived
	src := &fakeSource{frames: make(chan tracking.PoseSample)}
	run, err := tracker.Start(context.Background(), src)
	require.NoError(t, err)
	_, err = run.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.closed.Load())

	// source exhausted on its own
	src = &fakeSource{frames: make(chan tracking.PoseSample)}
	run, err = tracker.Start(context.Background(), src)
	require.NoError(t, err)
	close(src.frames)
	<-run.Done()
	_, err = run.Stop(context.Background())
	require.NoError(t, err)
	_, err = run.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.closed.Load())
}

func TestTracker_ConcurrentStopSubmitsOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	creator := NewMockSessionCreator(ctrl)
	tracker := tracking.NewTracker(creator, tracking.DefaultSmootherConfig(), nil)

	run, err := tracker.Start(context.Background(), tracking.NewPushSource(8, nil))
	require.NoError(t, err)
	feed(t, run, squatFrames(2))

	creator.EXPECT().
		Create(gomock.Any(), sessions.NewSession{ExerciseName: "squats", Reps: 2}).
		Return(&sessions.Session{ID: "s-1"}, nil).
		Times(1)

	var wg sync.WaitGroup
	summaries := make([]*tracking.Summary, 5)
	for i := range summaries {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			summaries[i], _ = run.Stop(context.Background())
		}(i)
	}
	wg.Wait()

	for _, s := range summaries {
		assert.Same(t, summaries[0], s)
	}
}

func TestTracker_Shutdown(t *testing.T) {
	tracker := tracking.NewTracker(NewMockSessionCreator(gomock.NewController(t)), tracking.DefaultSmootherConfig(), nil)
	require.NoError(t, tracker.Shutdown(context.Background()))

	run, err := tracker.Start(context.Background(), tracking.NewPushSource(8, nil))
	require.NoError(t, err)
	require.NoError(t, tracker.Shutdown(context.Background()))
	assert.Nil(t, tracker.Active())
	<-run.Done()
}

func TestRun_StopWithCanceledContextStillSaves(t *testing.T) {
	ctrl := gomock.NewController(t)
	creator := NewMockSessionCreator(ctrl)
	tracker := tracking.NewTracker(creator, tracking.DefaultSmootherConfig(), nil)

	run, err := tracker.Start(context.Background(), tracking.NewPushSource(8, nil))
	require.NoError(t, err)
	feed(t, run, squatFrames(3))

	creator.EXPECT().
		Create(gomock.Any(), sessions.NewSession{ExerciseName: "squats", Reps: 3}).
		DoAndReturn(func(ctx context.Context, newSession sessions.NewSession) (*sessions.Session, error) {
			require.NoError(t, ctx.Err())
			return &sessions.Session{ID: "s-3", ExerciseName: newSession.ExerciseName, Reps: newSession.Reps}, nil
		}).
		Times(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := run.Stop(ctx)
	require.NoError(t, err)
	assert.True(t, summary.Saved)
	assert.Equal(t, "s-3", summary.Session.ID)
}

func TestRun_StopRightAfterPushKeepsAcceptedFrames(t *testing.T) {
	for i := 0; i < 50; i++ {
		repo := sessions.NewMemoryRepo()
		tracker := tracking.NewTracker(repo, tracking.DefaultSmootherConfig(), nil)

		src := tracking.NewPushSource(64, nil)
		run, err := tracker.Start(context.Background(), src)
		require.NoError(t, err)

		frames := squatFrames(2)
		for _, f := range frames {
			require.NoError(t, src.Push(context.Background(), f))
		}

		// no waiting for the frame loop
		summary, err := run.Stop(context.Background())
		require.NoError(t, err)
		require.Equal(t, len(frames), run.FramesProcessed())
		require.Equal(t, 2, summary.Reps)
		require.True(t, summary.Saved)

		stored, err := repo.List(context.Background())
		require.NoError(t, err)
		require.Len(t, stored, 1)
		require.Equal(t, 2, stored[0].Reps)

		assert.ErrorIs(t, src.Push(context.Background(), poseAt(100)), tracking.ErrSourceClosed)
	}
}
