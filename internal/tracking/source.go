package tracking

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	log "github.com/sirupsen/logrus"
)

var ErrSourceClosed = errors.New("frame source closed")

// FrameSource delivers pose estimates for a single tracking run. It owns the camera
// and the pose estimation model; Close releases both and must be safe to call
// even if Frames was never called.
type FrameSource interface {
	Frames(ctx context.Context) (<-chan PoseSample, error)
	Close() error
}

// PushSource is a FrameSource fed from the outside, e.g. by the HTTP frames endpoint
// when the model runs in the browser.
type PushSource struct {
	frames    chan PoseSample
	closed    chan struct{}
	closeOnce sync.Once
	release   func() error

	mu       sync.Mutex
	isClosed bool
	// pushes past the closed check, Close waits for them
	inflight sync.WaitGroup
}

// NewPushSource creates a push source with the given buffer. release, if not nil,
// is called once on Close.
func NewPushSource(buffer int, release func() error) *PushSource {
	if buffer < 0 {
		buffer = 0
	}
	return &PushSource{
		frames:  make(chan PoseSample, buffer),
		closed:  make(chan struct{}),
		release: release,
	}
}

func (s *PushSource) Frames(_ context.Context) (<-chan PoseSample, error) {
	select {
	case <-s.closed:
		return nil, ErrSourceClosed
	default:
		return s.frames, nil
	}
}

// Push blocks until the sample is accepted, the source is closed or ctx is done.
// A sample Push accepted is in the buffer by the time Close returns.
func (s *PushSource) Push(ctx context.Context, sample PoseSample) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return ErrSourceClosed
	}
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	select {
	case s.frames <- sample:
		return nil
	case <-s.closed:
		return ErrSourceClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the intake and releases the source. It never closes the frames channel,
// so concurrent Push calls cannot panic, and buffered samples stay readable.
func (s *PushSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.isClosed = true
		close(s.closed)
		s.mu.Unlock()

		// blocked pushes see closed and return right away
		s.inflight.Wait()

		if s.release != nil {
			err = s.release()
		}
	})
	return err
}

// ReaderSource replays pose samples encoded as JSON lines. The frames channel is
// closed once the input is exhausted.
type ReaderSource struct {
	rc        io.ReadCloser
	stop      chan struct{}
	closeOnce sync.Once
	closeErr  error
	wg        sync.WaitGroup
	started   bool
	mu        sync.Mutex
}

func NewReaderSource(rc io.ReadCloser) *ReaderSource {
	return &ReaderSource{
		rc:   rc,
		stop: make(chan struct{}),
	}
}

func (s *ReaderSource) Frames(ctx context.Context) (<-chan PoseSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil, errors.New("reader source already started")
	}
	s.started = true

	frames := make(chan PoseSample)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(frames)

		scanner := bufio.NewScanner(s.rc)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		line := 0
		for scanner.Scan() {
			line++
			raw := scanner.Bytes()
			if len(raw) == 0 {
				continue
			}

			var sample PoseSample
			if err := json.Unmarshal(raw, &sample); err != nil {
				log.Warnf("pose replay, skipping line %d: %s", line, err)
				continue
			}

			select {
			case frames <- sample:
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			}
		}
		if err := scanner.Err(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			log.Debugf("pose replay, stopped reading after line %d: %s", line, err)
		}
	}()

	return frames, nil
}

func (s *ReaderSource) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.closeErr = s.rc.Close()
		s.wg.Wait()
	})
	return s.closeErr
}
