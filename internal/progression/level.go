package progression

const (
	// experiencePerLevel scales the threshold function.
	experiencePerLevel = 100

	// MaxExperienceAward caps a single experience grant.
	MaxExperienceAward = 100_000
	// MaxExperience caps a user's lifetime experience total.
	MaxExperience = 1_000_000_000
)

// ExperienceThreshold is the experience total at which level advances to level+1.
func ExperienceThreshold(level int) int {
	return level * experiencePerLevel
}

// AdvanceLevel returns the level reached by walking level forward for as long as
// experience crosses the next threshold. It never lowers the level it is given.
func AdvanceLevel(level, experience int) int {
	if level < 1 {
		level = 1
	}
	if experience < 0 {
		return level
	}
	return max(level, experience/experiencePerLevel+1)
}

// LevelFor returns the level a fresh account reaches with the given experience.
func LevelFor(experience int) int {
	return AdvanceLevel(1, experience)
}

// ComputeLevelProgress describes the position inside the current level.
func ComputeLevelProgress(p UserProgress) LevelProgress {
	start := ExperienceThreshold(p.Level - 1)
	next := ExperienceThreshold(p.Level)
	span := next - start

	percent := 0
	if span > 0 {
		percent = ((p.Experience - start) * 100) / span
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	toNext := next - p.Experience
	if toNext < 0 {
		toNext = 0
	}

	return LevelProgress{
		Level:                p.Level,
		Experience:           p.Experience,
		LevelStartExperience: start,
		NextLevelExperience:  next,
		ExperienceToNext:     toNext,
		ProgressPercent:      percent,
	}
}
