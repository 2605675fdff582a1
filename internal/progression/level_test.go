package progression

import "testing"

func TestLevelFor(t *testing.T) {
	tests := []struct {
		experience int
		want       int
	}{
		{experience: 0, want: 1},
		{experience: 99, want: 1},
		{experience: 100, want: 2},
		{experience: 199, want: 2},
		{experience: 250, want: 3},
		{experience: 1000, want: 11},
		{experience: MaxExperience, want: MaxExperience/100 + 1},
		{experience: -5, want: 1},
	}
	for _, tt := range tests {
		if got := LevelFor(tt.experience); got != tt.want {
			t.Errorf("LevelFor(%d) = %d, want %d", tt.experience, got, tt.want)
		}
	}
}

func TestAdvanceLevel_NeverLowers(t *testing.T) {
	if got := AdvanceLevel(7, 120); got != 7 {
		t.Fatalf("expected level to stay at 7, got %d", got)
	}
	if got := AdvanceLevel(7, 700); got != 8 {
		t.Fatalf("expected level 8 at its threshold, got %d", got)
	}
	if got := AdvanceLevel(0, 0); got != 1 {
		t.Fatalf("expected minimum level 1, got %d", got)
	}
}

func TestComputeLevelProgress(t *testing.T) {
	got := ComputeLevelProgress(UserProgress{Level: 3, Experience: 250})
	want := LevelProgress{
		Level:                3,
		Experience:           250,
		LevelStartExperience: 200,
		NextLevelExperience:  300,
		ExperienceToNext:     50,
		ProgressPercent:      50,
	}
	if got != want {
		t.Fatalf("ComputeLevelProgress = %+v, want %+v", got, want)
	}
}
