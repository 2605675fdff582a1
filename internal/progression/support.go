package progression

import (
	"time"

	"github.com/google/uuid"
)

type systemClock struct{}

// NewSystemClock returns a Clock backed by time.Now in UTC.
func NewSystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

type uuidGenerator struct{}

// NewUUIDGenerator returns an IDGenerator that produces v7 UUIDs where available, falling back to v4.
func NewUUIDGenerator() IDGenerator {
	return uuidGenerator{}
}

func (uuidGenerator) NewID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

type noopRecorder struct{}

func (noopRecorder) ExperienceAwarded(int) {}
func (noopRecorder) LevelUp(int) {}
func (noopRecorder) BadgeUnlocked(BadgeCategory) {}
func (noopRecorder) ChallengeCompleted(ChallengeType) {}
func (noopRecorder) ChallengesReset(ChallengeType, int) {}
func (noopRecorder) StoreFailure(string) {}
