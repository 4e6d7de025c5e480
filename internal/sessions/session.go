package sessions

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidSession  = errors.New("invalid session")
)

// Session is a persisted, finished workout.
type Session struct {
	ID           string    `json:"id"`
	ExerciseName string    `json:"exerciseName"`
	Reps         int       `json:"reps"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewSession is the create request, id and timestamp are assigned by the store.
type NewSession struct {
	ExerciseName string `json:"exerciseName"`
	Reps         int    `json:"reps"`
}

func (n NewSession) Validate() error {
	if strings.TrimSpace(n.ExerciseName) == "" {
		return fmt.Errorf("%w: exercise name empty", ErrInvalidSession)
	}
	if n.Reps < 0 {
		return fmt.Errorf("%w: reps must not be negative", ErrInvalidSession)
	}
	return nil
}

// DailyReport is the summary of all sessions done on a single day.
type DailyReport struct {
	Date      string    `json:"date"`
	TotalReps int       `json:"totalReps"`
	Sessions  []Session `json:"sessions"`
}

func NewDailyReport(day time.Time, daySessions []Session) DailyReport {
	report := DailyReport{
		Date:     day.Format(time.DateOnly),
		Sessions: daySessions,
	}
	if report.Sessions == nil {
		report.Sessions = []Session{}
	}
	for _, s := range daySessions {
		report.TotalReps += s.Reps
	}
	return report
}

// DayBounds returns the first and the last instant of the day t falls into, in t's location.
func DayBounds(t time.Time) (start, end time.Time) {
	start = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	end = start.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return start, end
}
