package progression

import (
	"context"
	"sort"
	"sync"
)

type memoryStore struct {
	mu       sync.RWMutex
	profiles map[string]UserProgress
	events   map[string][]Event
}

// NewMemoryStore returns an in-memory ProfileStore intended for local development and tests.
func NewMemoryStore() ProfileStore {
	return &memoryStore{
		profiles: make(map[string]UserProgress),
		events:   make(map[string][]Event),
	}
}

func (s *memoryStore) Read(_ context.Context, userID string) (UserProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return UserProgress{}, ErrNotFound
	}
	return p.Clone(), nil
}

func (s *memoryStore) Create(_ context.Context, progress UserProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.profiles[progress.UserID]; exists {
		return ErrProfileExists
	}
	s.profiles[progress.UserID] = progress.Clone()
	return nil
}

func (s *memoryStore) Merge(_ context.Context, userID string, update ProgressUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return ErrNotFound
	}
	p = p.Clone()

	if update.Level != nil {
		p.Level = *update.Level
	}
	if update.Experience != nil {
		p.Experience = *update.Experience
	}
	for _, b := range update.UnlockedBadges {
		if _, owned := p.UnlockedBadges[b.ID]; owned {
			continue
		}
		p.UnlockedBadges[b.ID] = b
	}
	for key, at := range update.CompletedChallenges {
		if _, done := p.CompletedChallenges[key]; done {
			continue
		}
		p.CompletedChallenges[key] = at
	}
	if !update.UpdatedAt.IsZero() {
		p.UpdatedAt = update.UpdatedAt
	}

	s.profiles[userID] = p
	s.events[userID] = append(s.events[userID], update.Events...)
	return nil
}

func (s *memoryStore) ListEvents(_ context.Context, userID string, limit int) ([]Event, error) {
	s.mu.RLock()
	events := append([]Event(nil), s.events[userID]...)
	s.mu.RUnlock()

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].OccurredAt.After(events[j].OccurredAt)
	})
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

type memoryBoard struct {
	mu     sync.RWMutex
	byType map[ChallengeType][]ChallengeInstance
}

// NewMemoryBoard returns an in-memory ChallengeBoard.
func NewMemoryBoard() ChallengeBoard {
	return &memoryBoard{byType: make(map[ChallengeType][]ChallengeInstance)}
}

func (b *memoryBoard) Load(_ context.Context) (ActiveChallengeSet, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var set ActiveChallengeSet
	for _, t := range []ChallengeType{ChallengeDaily, ChallengeWeekly} {
		set.Challenges = append(set.Challenges, b.byType[t]...)
	}
	return set, nil
}

func (b *memoryBoard) Replace(_ context.Context, t ChallengeType, instances []ChallengeInstance) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.byType[t] = append([]ChallengeInstance(nil), instances...)
	return nil
}
