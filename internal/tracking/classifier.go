package tracking

const (
	DefaultMovementHistorySize = 20

	minRepsToClassify   = 3
	jumpingJacksMinAlts = 10
	pushUpsMinReps      = 15
	bicepCurlsMinReps   = 8
)

type Exercise string

const (
	ExerciseSquats       Exercise = "squats"
	ExerciseBicepCurls   Exercise = "bicep curls"
	ExercisePushUps      Exercise = "push-ups"
	ExerciseJumpingJacks Exercise = "jumping jacks"
	ExerciseLunges       Exercise = "lunges"
)

func (e Exercise) String() string {
	return string(e)
}

// IsKnown reports whether e is one of the labels the tracker knows about.
func (e Exercise) IsKnown() bool {
	switch e {
	case ExerciseSquats,
		ExerciseBicepCurls,
		ExercisePushUps,
		ExerciseJumpingJacks,
		ExerciseLunges:
		return true
	default:
		return false
	}
}

type MovementType string

const (
	MovementRep  MovementType = "rep"
	MovementDown MovementType = "down"
)

// MovementEvent is one entry of the movement history, RepCount being the
// rep counter value right after the event was recorded.
type MovementEvent struct {
	Type     MovementType `json:"type"`
	RepCount int          `json:"repCount"`
}

// Classifier turns direction changes into reps and keeps the bounded movement history
// used to guess the exercise. Not safe for concurrent use.
type Classifier struct {
	reps    int
	history *Ring[MovementEvent]
}

func NewClassifier() *Classifier {
	return &Classifier{
		history: NewRing[MovementEvent](DefaultMovementHistorySize),
	}
}

// OnDirectionChange returns true when the change completed a rep.
func (c *Classifier) OnDirectionChange(change DirectionChange) bool {
	if change.From == DirectionDown && change.To == DirectionUp {
		c.reps++
		c.history.Push(MovementEvent{Type: MovementRep, RepCount: c.reps})
		return true
	}
	if change.To == DirectionDown {
		c.history.Push(MovementEvent{Type: MovementDown, RepCount: c.reps})
	}
	return false
}

func (c *Classifier) Reps() int {
	return c.reps
}

func (c *Classifier) History() []MovementEvent {
	return c.history.Values()
}

func (c *Classifier) Classify() Exercise {
	return Classify(c.reps, c.history.Values())
}

// Classify guesses the exercise from the final rep count and the movement history.
// Rules are checked in order, the first match wins.
func Classify(reps int, history []MovementEvent) Exercise {
	if reps < minRepsToClassify {
		return ExerciseSquats
	}

	switch {
	case Alternations(history) > jumpingJacksMinAlts:
		return ExerciseJumpingJacks
	case reps > pushUpsMinReps:
		return ExercisePushUps
	case reps > bicepCurlsMinReps:
		return ExerciseBicepCurls
	default:
		return ExerciseSquats
	}
}

// Alternations counts adjacent history entries of a different type.
func Alternations(history []MovementEvent) int {
	alternations := 0
	for i := 1; i < len(history); i++ {
		if history[i-1].Type != history[i].Type {
			alternations++
		}
	}
	return alternations
}
