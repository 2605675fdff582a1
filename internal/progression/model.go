package progression

import (
	"context"
	"time"
)

// BadgeCategory groups badges for display.
type BadgeCategory string

const (
	BadgeCategoryAchievement   BadgeCategory = "achievement"
	BadgeCategorySkill         BadgeCategory = "skill"
	BadgeCategoryParticipation BadgeCategory = "participation"
	BadgeCategoryChallenge     BadgeCategory = "challenge"
)

// ChallengeType identifies how a challenge window recurs.
type ChallengeType string

const (
	ChallengeDaily   ChallengeType = "daily"
	ChallengeWeekly  ChallengeType = "weekly"
	ChallengeSpecial ChallengeType = "special"
)

// Difficulty is a presentation hint for challenges.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// BadgeDefinition is a static catalog entry.
type BadgeDefinition struct {
	ID          string        `json:"id" firestore:"id"`
	Name        string        `json:"name" firestore:"name"`
	Description string        `json:"description" firestore:"description"`
	ImageRef    string        `json:"image_ref" firestore:"image_ref"`
	Category    BadgeCategory `json:"category" firestore:"category"`

	// UnlockAtLevel, when positive, unlocks the badge automatically once the level is reached.
	UnlockAtLevel int `json:"unlock_at_level,omitempty" firestore:"unlock_at_level,omitempty"`
}

// UnlockedBadge is a badge owned by a user. UnlockedAt never changes once written.
type UnlockedBadge struct {
	BadgeDefinition
	UnlockedAt time.Time `json:"unlocked_at" firestore:"unlocked_at"`
}

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time `json:"start" firestore:"start"`
	End   time.Time `json:"end" firestore:"end"`
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// IsZero reports whether the window is unset.
func (w Window) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// ChallengeDefinition is a challenge template from the catalog.
type ChallengeDefinition struct {
	ID               string           `json:"id" firestore:"id"`
	Title            string           `json:"title" firestore:"title"`
	Description      string           `json:"description" firestore:"description"`
	Type             ChallengeType    `json:"type" firestore:"type"`
	Difficulty       Difficulty       `json:"difficulty" firestore:"difficulty"`
	ExperienceReward int              `json:"experience_reward" firestore:"experience_reward"`
	Requirements     []string         `json:"requirements" firestore:"requirements"`
	ActiveWindow     Window           `json:"active_window" firestore:"active_window"`
	BadgeReward      *BadgeDefinition `json:"badge_reward,omitempty" firestore:"badge_reward,omitempty"`
}

// ChallengeInstance is a template stamped with the window it is active in.
type ChallengeInstance struct {
	ChallengeDefinition
}

// CompletionKey scopes a completion to one window of a template, so a daily
// template can be completed again in the next window.
func (c ChallengeInstance) CompletionKey() string {
	return CompletionKey(c.ID, c.ActiveWindow.Start)
}

// ActiveChallengeSet holds the instances that are currently on offer.
type ActiveChallengeSet struct {
	Challenges []ChallengeInstance `json:"challenges"`
}

// Find returns the instance for a template id.
func (s ActiveChallengeSet) Find(templateID string) (ChallengeInstance, bool) {
	for _, c := range s.Challenges {
		if c.ID == templateID {
			return c, true
		}
	}
	return ChallengeInstance{}, false
}

// OfType returns the instances of a single challenge type, preserving order.
func (s ActiveChallengeSet) OfType(t ChallengeType) []ChallengeInstance {
	var out []ChallengeInstance
	for _, c := range s.Challenges {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}

// UserProgress is the per-user progression document.
type UserProgress struct {
	UserID              string                   `json:"user_id"`
	Level               int                      `json:"level"`
	Experience          int                      `json:"experience"`
	UnlockedBadges      map[string]UnlockedBadge `json:"unlocked_badges"`
	CompletedChallenges map[string]time.Time     `json:"completed_challenges"`
	CreatedAt           time.Time                `json:"created_at"`
	UpdatedAt           time.Time                `json:"updated_at"`
}

// NewUserProgress returns the starting state for a new account.
func NewUserProgress(userID string, now time.Time) UserProgress {
	return UserProgress{
		UserID:              userID,
		Level:               1,
		Experience:          0,
		UnlockedBadges:      map[string]UnlockedBadge{},
		CompletedChallenges: map[string]time.Time{},
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// HasBadge reports whether the badge is unlocked.
func (p UserProgress) HasBadge(badgeID string) bool {
	_, ok := p.UnlockedBadges[badgeID]
	return ok
}

// HasCompleted reports whether a completion key has been recorded.
func (p UserProgress) HasCompleted(key string) bool {
	_, ok := p.CompletedChallenges[key]
	return ok
}

// Clone returns a deep copy so snapshots never share maps.
func (p UserProgress) Clone() UserProgress {
	out := p
	out.UnlockedBadges = make(map[string]UnlockedBadge, len(p.UnlockedBadges))
	for k, v := range p.UnlockedBadges {
		out.UnlockedBadges[k] = v
	}
	out.CompletedChallenges = make(map[string]time.Time, len(p.CompletedChallenges))
	for k, v := range p.CompletedChallenges {
		out.CompletedChallenges[k] = v
	}
	return out
}

// ProgressUpdate is a partial write against a profile. Nil counters are left untouched;
// badges and completions are additive.
type ProgressUpdate struct {
	Level               *int
	Experience          *int
	UnlockedBadges      []UnlockedBadge
	CompletedChallenges map[string]time.Time
	Events              []Event
	UpdatedAt           time.Time
}

// EventKind labels an entry in the progression history.
type EventKind string

const (
	EventExperienceAdded    EventKind = "experience_added"
	EventLevelUp            EventKind = "level_up"
	EventBadgeUnlocked      EventKind = "badge_unlocked"
	EventChallengeCompleted EventKind = "challenge_completed"
)

// Event is an immutable history record written with the state change it describes.
type Event struct {
	ID          string    `json:"id" firestore:"id"`
	UserID      string    `json:"user_id" firestore:"user_id"`
	Kind        EventKind `json:"kind" firestore:"kind"`
	Amount      int       `json:"amount,omitempty" firestore:"amount,omitempty"`
	Level       int       `json:"level,omitempty" firestore:"level,omitempty"`
	BadgeID     string    `json:"badge_id,omitempty" firestore:"badge_id,omitempty"`
	ChallengeID string    `json:"challenge_id,omitempty" firestore:"challenge_id,omitempty"`
	OccurredAt  time.Time `json:"occurred_at" firestore:"occurred_at"`
}

// ProfileStore persists one progression document per user.
type ProfileStore interface {
	Read(ctx context.Context, userID string) (UserProgress, error)
	Create(ctx context.Context, progress UserProgress) error
	Merge(ctx context.Context, userID string, update ProgressUpdate) error
	ListEvents(ctx context.Context, userID string, limit int) ([]Event, error)
}

// ChallengeBoard persists the active challenge set.
type ChallengeBoard interface {
	Load(ctx context.Context) (ActiveChallengeSet, error)
	Replace(ctx context.Context, t ChallengeType, instances []ChallengeInstance) error
}

// CatalogProvider serves the static badge and challenge definitions.
type CatalogProvider interface {
	Badge(id string) (BadgeDefinition, error)
	Badges() []BadgeDefinition
	ChallengeTemplate(id string) (ChallengeDefinition, error)
	Challenges() []ChallengeDefinition
	ListActiveChallenges(t ChallengeType, now time.Time) []ChallengeDefinition
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces identifiers for history events.
type IDGenerator interface {
	NewID() string
}

// Recorder receives progression telemetry. Implementations must be safe for concurrent use.
type Recorder interface {
	ExperienceAwarded(amount int)
	LevelUp(levels int)
	BadgeUnlocked(category BadgeCategory)
	ChallengeCompleted(t ChallengeType)
	ChallengesReset(t ChallengeType, count int)
	StoreFailure(operation string)
}

// LevelProgress summarises how far a user is through their current level.
type LevelProgress struct {
	Level                int `json:"level"`
	Experience           int `json:"experience"`
	LevelStartExperience int `json:"level_start_experience"`
	NextLevelExperience  int `json:"next_level_experience"`
	ExperienceToNext     int `json:"experience_to_next"`
	ProgressPercent      int `json:"progress_percent"`
}

// ChallengeStatus is the derived state of an instance for one user.
type ChallengeStatus string

const (
	StatusNotStarted ChallengeStatus = "not_started"
	StatusActive     ChallengeStatus = "active"
	StatusCompleted  ChallengeStatus = "completed"
	StatusExpired    ChallengeStatus = "expired"
)

// ChallengeView pairs an instance with the user's status for it.
type ChallengeView struct {
	Challenge ChallengeInstance `json:"challenge"`
	Status    ChallengeStatus   `json:"status"`
}

// ProgressView is returned by read endpoints.
type ProgressView struct {
	UserProgress
	LevelProgress LevelProgress   `json:"level_progress"`
	Challenges    []ChallengeView `json:"challenges"`
}
