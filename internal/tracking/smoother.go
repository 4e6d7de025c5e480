package tracking

import "math"

const (
	DefaultHistorySize       = 10
	DefaultWindowSize        = 5
	DefaultMovementThreshold = 30.0
)

// Direction of the smoothed vertical movement.
type Direction string

const (
	DirectionNone Direction = ""
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

func (d Direction) String() string {
	if d == DirectionNone {
		return "none"
	}
	return string(d)
}

// DirectionChange is emitted when the smoothed signal reverses by more than the movement threshold.
type DirectionChange struct {
	From Direction
	To   Direction
}

type SmootherConfig struct {
	// HistorySize is the capacity of the position history.
	HistorySize int `toml:"history_size"`
	// WindowSize is the number of most recent positions averaged per frame,
	// and also the number of samples needed before any direction logic runs.
	WindowSize int `toml:"window_size"`
	// MovementThreshold is in the same pixel units as keypoint coordinates.
	MovementThreshold float64 `toml:"movement_threshold"`
}

func DefaultSmootherConfig() SmootherConfig {
	return SmootherConfig{
		HistorySize:       DefaultHistorySize,
		WindowSize:        DefaultWindowSize,
		MovementThreshold: DefaultMovementThreshold,
	}
}

func (c SmootherConfig) withDefaults() SmootherConfig {
	d := DefaultSmootherConfig()
	if c.HistorySize > 0 {
		d.HistorySize = c.HistorySize
	}
	if c.WindowSize > 0 {
		d.WindowSize = c.WindowSize
	}
	if c.MovementThreshold > 0 {
		d.MovementThreshold = c.MovementThreshold
	}
	if d.WindowSize > d.HistorySize {
		d.WindowSize = d.HistorySize
	}
	return d
}

// Smoother keeps a rolling window of the body vertical center and detects
// direction reversals against a movement threshold.
// Not safe for concurrent use; a Run feeds it from a single goroutine.
type Smoother struct {
	cfg       SmootherConfig
	positions *Ring[float64]

	// lastExtrema is nil until the first full window has been averaged
	lastExtrema *float64
	direction   Direction
}

func NewSmoother(cfg SmootherConfig) *Smoother {
	cfg = cfg.withDefaults()
	return &Smoother{
		cfg:       cfg,
		positions: NewRing[float64](cfg.HistorySize),
	}
}

// Feed processes one pose sample and reports a direction change, if one happened.
// Samples missing any of the required keypoints are ignored without touching state.
func (s *Smoother) Feed(sample PoseSample) (DirectionChange, bool) {
	centerY, ok := sample.CenterY()
	if !ok {
		return DirectionChange{}, false
	}
	return s.FeedCenter(centerY)
}

// FeedCenter is Feed for an already computed body center.
func (s *Smoother) FeedCenter(centerY float64) (DirectionChange, bool) {
	s.positions.Push(centerY)
	if s.positions.Len() < s.cfg.WindowSize {
		return DirectionChange{}, false
	}

	avgRecent := mean(s.positions.Last(s.cfg.WindowSize))

	if s.lastExtrema == nil {
		s.lastExtrema = &avgRecent
		s.direction = DirectionNone
		return DirectionChange{}, false
	}

	diff := avgRecent - *s.lastExtrema
	if math.Abs(diff) <= s.cfg.MovementThreshold {
		return DirectionChange{}, false
	}

	newDirection := DirectionUp
	if diff > 0 {
		newDirection = DirectionDown
	}

	// re-based on every qualifying frame, also when the direction did not change
	s.lastExtrema = &avgRecent

	if newDirection == s.direction {
		return DirectionChange{}, false
	}

	change := DirectionChange{
		From: s.direction,
		To:   newDirection,
	}
	s.direction = newDirection
	return change, true
}

func (s *Smoother) Direction() Direction {
	return s.direction
}

// LastExtrema returns the last settled position, ok is false while unset.
func (s *Smoother) LastExtrema() (_ float64, ok bool) {
	if s.lastExtrema == nil {
		return 0, false
	}
	return *s.lastExtrema, true
}

// Samples returns how many usable samples are currently retained.
func (s *Smoother) Samples() int {
	return s.positions.Len()
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
