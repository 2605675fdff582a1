package progression

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sequenceIDs struct {
	mu sync.Mutex
	n  int
}

func (s *sequenceIDs) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("evt-%03d", s.n)
}

// fakeStore delegates to the memory store unless a hook is set.
type fakeStore struct {
	ProfileStore
	readFn  func(context.Context, string) (UserProgress, error)
	mergeFn func(context.Context, string, ProgressUpdate) error
	merges  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{ProfileStore: NewMemoryStore()}
}

func (f *fakeStore) Read(ctx context.Context, userID string) (UserProgress, error) {
	if f.readFn != nil {
		return f.readFn(ctx, userID)
	}
	return f.ProfileStore.Read(ctx, userID)
}

func (f *fakeStore) Merge(ctx context.Context, userID string, update ProgressUpdate) error {
	f.merges++
	if f.mergeFn != nil {
		return f.mergeFn(ctx, userID, update)
	}
	return f.ProfileStore.Merge(ctx, userID, update)
}

type fakeBoard struct {
	ChallengeBoard
	replaceFn func(context.Context, ChallengeType, []ChallengeInstance) error
}

func (f *fakeBoard) Replace(ctx context.Context, t ChallengeType, instances []ChallengeInstance) error {
	if f.replaceFn != nil {
		return f.replaceFn(ctx, t, instances)
	}
	return f.ChallengeBoard.Replace(ctx, t, instances)
}

type fakeCatalog struct {
	badges     []BadgeDefinition
	challenges []ChallengeDefinition
}

func (c *fakeCatalog) Badge(id string) (BadgeDefinition, error) {
	for _, b := range c.badges {
		if b.ID == id {
			return b, nil
		}
	}
	return BadgeDefinition{}, fmt.Errorf("badge %q: %w", id, ErrNotFound)
}

func (c *fakeCatalog) Badges() []BadgeDefinition {
	return append([]BadgeDefinition(nil), c.badges...)
}

func (c *fakeCatalog) ChallengeTemplate(id string) (ChallengeDefinition, error) {
	for _, ch := range c.challenges {
		if ch.ID == id {
			return ch, nil
		}
	}
	return ChallengeDefinition{}, fmt.Errorf("challenge %q: %w", id, ErrNotFound)
}

func (c *fakeCatalog) Challenges() []ChallengeDefinition {
	return append([]ChallengeDefinition(nil), c.challenges...)
}

func (c *fakeCatalog) ListActiveChallenges(t ChallengeType, now time.Time) []ChallengeDefinition {
	var out []ChallengeDefinition
	for _, ch := range c.challenges {
		if ch.Type != t {
			continue
		}
		if !ch.ActiveWindow.IsZero() && !ch.ActiveWindow.Contains(now) {
			continue
		}
		out = append(out, ch)
	}
	return out
}

type countingRecorder struct {
	noopRecorder
	mu         sync.Mutex
	experience int
	levels     int
	badges     int
	completed  int
	failures   []string
}

func (r *countingRecorder) ExperienceAwarded(n int) {
	r.mu.Lock()
	r.experience += n
	r.mu.Unlock()
}

func (r *countingRecorder) LevelUp(n int) {
	r.mu.Lock()
	r.levels += n
	r.mu.Unlock()
}

func (r *countingRecorder) BadgeUnlocked(BadgeCategory) {
	r.mu.Lock()
	r.badges++
	r.mu.Unlock()
}

func (r *countingRecorder) ChallengeCompleted(ChallengeType) {
	r.mu.Lock()
	r.completed++
	r.mu.Unlock()
}

func (r *countingRecorder) StoreFailure(op string) {
	r.mu.Lock()
	r.failures = append(r.failures, op)
	r.mu.Unlock()
}

var (
	errWriteFailed = errors.New("deadline exceeded talking to firestore")

	testStart = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	badgeChampion = BadgeDefinition{ID: "weekly-warrior", Name: "Weekly Warrior", Category: BadgeCategoryChallenge}
	badgeExplorer = BadgeDefinition{ID: "html-explorer", Name: "HTML Explorer", Category: BadgeCategorySkill}
	badgeRising   = BadgeDefinition{ID: "rising-coder", Name: "Rising Coder", Category: BadgeCategoryAchievement, UnlockAtLevel: 5}
)

func testCatalog() *fakeCatalog {
	return &fakeCatalog{
		badges: []BadgeDefinition{badgeChampion, badgeExplorer, badgeRising},
		challenges: []ChallengeDefinition{
			{ID: "daily-1", Title: "Lesson of the day", Type: ChallengeDaily, Difficulty: DifficultyEasy, ExperienceReward: 50},
			{ID: "daily-2", Title: "Tag practice", Type: ChallengeDaily, Difficulty: DifficultyEasy, ExperienceReward: 30},
			{ID: "weekly-1", Title: "Five in a row", Type: ChallengeWeekly, Difficulty: DifficultyMedium, ExperienceReward: 200, BadgeReward: &badgeChampion},
			{
				ID: "special-1", Title: "Flexbox Festival", Type: ChallengeSpecial, Difficulty: DifficultyHard, ExperienceReward: 500,
				ActiveWindow: Window{Start: testStart.Add(-time.Hour), End: testStart.Add(48 * time.Hour)},
			},
		},
	}
}

type harness struct {
	engine   *Engine
	store    *fakeStore
	board    *fakeBoard
	clock    *fixedClock
	recorder *countingRecorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    newFakeStore(),
		board:    &fakeBoard{ChallengeBoard: NewMemoryBoard()},
		clock:    &fixedClock{now: testStart},
		recorder: &countingRecorder{},
	}
	engine, err := NewEngine(h.store, h.board, testCatalog(),
		WithClock(h.clock),
		WithIDGenerator(&sequenceIDs{}),
		WithRecorder(h.recorder),
	)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	h.engine = engine
	return h
}

func (h *harness) createUser(t *testing.T, userID string) {
	t.Helper()
	if _, _, err := h.engine.CreateProfile(context.Background(), userID); err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}
}
