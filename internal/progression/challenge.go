package progression

import (
	"fmt"
	"strconv"
	"time"
)

const (
	dailyWindow  = 24 * time.Hour
	weeklyWindow = 7 * 24 * time.Hour
)

// WindowLength returns how long a fresh instance of a recurring type stays open.
func WindowLength(t ChallengeType) (time.Duration, error) {
	switch t {
	case ChallengeDaily:
		return dailyWindow, nil
	case ChallengeWeekly:
		return weeklyWindow, nil
	default:
		return 0, fmt.Errorf("%w: challenge type %q does not recur", ErrValidation, t)
	}
}

// NewInstance stamps a template with the window starting at now.
func NewInstance(def ChallengeDefinition, now time.Time) (ChallengeInstance, error) {
	length, err := WindowLength(def.Type)
	if err != nil {
		return ChallengeInstance{}, err
	}
	def.Requirements = append([]string(nil), def.Requirements...)
	def.ActiveWindow = Window{Start: now, End: now.Add(length)}
	return ChallengeInstance{ChallengeDefinition: def}, nil
}

// IsExpired reports whether the instance window has closed at now.
func IsExpired(c ChallengeInstance, now time.Time) bool {
	return !now.Before(c.ActiveWindow.End)
}

// CompletionKey is the identity of one completion: template id plus window start.
func CompletionKey(templateID string, windowStart time.Time) string {
	return templateID + "@" + strconv.FormatInt(windowStart.Unix(), 10)
}

// InstanceStatus derives the lifecycle state of an instance for one user.
func InstanceStatus(c ChallengeInstance, p UserProgress, now time.Time) ChallengeStatus {
	switch {
	case p.HasCompleted(c.CompletionKey()):
		return StatusCompleted
	case now.Before(c.ActiveWindow.Start):
		return StatusNotStarted
	case IsExpired(c, now):
		return StatusExpired
	default:
		return StatusActive
	}
}
