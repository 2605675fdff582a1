package progression

import (
	"errors"
	"testing"
	"time"
)

func TestNewInstance_Windows(t *testing.T) {
	daily, err := NewInstance(ChallengeDefinition{ID: "daily-1", Type: ChallengeDaily}, testStart)
	if err != nil {
		t.Fatalf("NewInstance daily: %v", err)
	}
	if !daily.ActiveWindow.End.Equal(testStart.Add(24 * time.Hour)) {
		t.Fatalf("unexpected daily window: %+v", daily.ActiveWindow)
	}

	weekly, err := NewInstance(ChallengeDefinition{ID: "weekly-1", Type: ChallengeWeekly}, testStart)
	if err != nil {
		t.Fatalf("NewInstance weekly: %v", err)
	}
	if !weekly.ActiveWindow.End.Equal(testStart.Add(7 * 24 * time.Hour)) {
		t.Fatalf("unexpected weekly window: %+v", weekly.ActiveWindow)
	}

	if _, err := NewInstance(ChallengeDefinition{ID: "special-1", Type: ChallengeSpecial}, testStart); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for special, got %v", err)
	}
}

func TestIsExpired(t *testing.T) {
	c := ChallengeInstance{ChallengeDefinition: ChallengeDefinition{
		ID:           "daily-1",
		ActiveWindow: Window{Start: testStart, End: testStart.Add(24 * time.Hour)},
	}}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{name: "at start", now: testStart, want: false},
		{name: "just before end", now: testStart.Add(24*time.Hour - time.Nanosecond), want: false},
		{name: "at end", now: testStart.Add(24 * time.Hour), want: true},
		{name: "after end", now: testStart.Add(48 * time.Hour), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsExpired(c, tt.now); got != tt.want {
				t.Fatalf("IsExpired = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompletionKey_ScopedByWindow(t *testing.T) {
	first := CompletionKey("daily-1", testStart)
	second := CompletionKey("daily-1", testStart.Add(24*time.Hour))
	if first == second {
		t.Fatalf("expected distinct keys per window, got %q", first)
	}
	if CompletionKey("daily-1", testStart) != first {
		t.Fatalf("expected stable key")
	}
}

func TestInstanceStatus(t *testing.T) {
	c := ChallengeInstance{ChallengeDefinition: ChallengeDefinition{
		ID:           "weekly-1",
		ActiveWindow: Window{Start: testStart, End: testStart.Add(7 * 24 * time.Hour)},
	}}
	p := NewUserProgress("learner", testStart)

	if got := InstanceStatus(c, p, testStart.Add(-time.Minute)); got != StatusNotStarted {
		t.Fatalf("expected not started, got %s", got)
	}
	if got := InstanceStatus(c, p, testStart.Add(time.Hour)); got != StatusActive {
		t.Fatalf("expected active, got %s", got)
	}
	if got := InstanceStatus(c, p, testStart.Add(8*24*time.Hour)); got != StatusExpired {
		t.Fatalf("expected expired, got %s", got)
	}

	p.CompletedChallenges[c.CompletionKey()] = testStart.Add(time.Hour)
	if got := InstanceStatus(c, p, testStart.Add(8*24*time.Hour)); got != StatusCompleted {
		t.Fatalf("expected completed, got %s", got)
	}
}
