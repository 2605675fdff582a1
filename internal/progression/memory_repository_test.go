package progression

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStore_MergeKeepsFirstUnlock(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Create(ctx, NewUserProgress("learner", testStart)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Create(ctx, NewUserProgress("learner", testStart)); !errors.Is(err, ErrProfileExists) {
		t.Fatalf("expected ErrProfileExists, got %v", err)
	}

	first := UnlockedBadge{BadgeDefinition: badgeExplorer, UnlockedAt: testStart}
	later := UnlockedBadge{BadgeDefinition: badgeExplorer, UnlockedAt: testStart.Add(time.Hour)}
	if err := store.Merge(ctx, "learner", ProgressUpdate{UnlockedBadges: []UnlockedBadge{first}}); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if err := store.Merge(ctx, "learner", ProgressUpdate{UnlockedBadges: []UnlockedBadge{later}}); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	got, err := store.Read(ctx, "learner")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !got.UnlockedBadges[badgeExplorer.ID].UnlockedAt.Equal(testStart) {
		t.Fatalf("unlock time overwritten: %v", got.UnlockedBadges[badgeExplorer.ID].UnlockedAt)
	}
}

func TestMemoryStore_MergeMissingProfile(t *testing.T) {
	level := 2
	err := NewMemoryStore().Merge(context.Background(), "ghost", ProgressUpdate{Level: &level})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_ListEventsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Create(ctx, NewUserProgress("learner", testStart)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := range 3 {
		ev := Event{ID: string(rune('a' + i)), Kind: EventExperienceAdded, OccurredAt: testStart.Add(time.Duration(i) * time.Minute)}
		if err := store.Merge(ctx, "learner", ProgressUpdate{Events: []Event{ev}}); err != nil {
			t.Fatalf("Merge: %v", err)
		}
	}

	events, err := store.ListEvents(ctx, "learner", 2)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 2 || events[0].ID != "c" || events[1].ID != "b" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestMemoryBoard_ReplaceIsPerType(t *testing.T) {
	ctx := context.Background()
	board := NewMemoryBoard()

	daily, _ := NewInstance(ChallengeDefinition{ID: "daily-1", Type: ChallengeDaily}, testStart)
	weekly, _ := NewInstance(ChallengeDefinition{ID: "weekly-1", Type: ChallengeWeekly}, testStart)
	if err := board.Replace(ctx, ChallengeWeekly, []ChallengeInstance{weekly}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if err := board.Replace(ctx, ChallengeDaily, []ChallengeInstance{daily}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if err := board.Replace(ctx, ChallengeDaily, nil); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	set, err := board.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(set.Challenges) != 1 || set.Challenges[0].ID != "weekly-1" {
		t.Fatalf("unexpected board: %+v", set.Challenges)
	}
}
