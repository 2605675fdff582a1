package progression

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Operation names used in logs and store-failure telemetry.
const (
	opCreateProfile     = "create_profile"
	opAddExperience     = "add_experience"
	opUnlockBadge       = "unlock_badge"
	opCompleteChallenge = "complete_challenge"
	opResetChallenges   = "reset_challenges"
)

// Engine owns level, experience, badges and challenge completion for every user it serves.
//
// Each mutation reads the current document, computes the next state on a copy, persists
// it with a single merge write and only then replaces the cached snapshot. A failed write
// leaves the snapshot exactly as it was. Reads take the same per-user lock, so a slow
// read can never cache a copy older than a write that committed after it.
type Engine struct {
	store   ProfileStore
	board   ChallengeBoard
	catalog CatalogProvider
	clock   Clock
	ids     IDGenerator
	metrics Recorder
	logger  *slog.Logger

	mu        sync.Mutex
	snapshots map[string]UserProgress
	userLocks map[string]*sync.Mutex

	boardMu sync.Mutex
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(clock Clock) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithIDGenerator overrides how event ids are produced.
func WithIDGenerator(ids IDGenerator) Option {
	return func(e *Engine) {
		if ids != nil {
			e.ids = ids
		}
	}
}

// WithRecorder attaches a telemetry sink.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.metrics = r
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine wires an engine to its collaborators.
func NewEngine(store ProfileStore, board ChallengeBoard, catalog CatalogProvider, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("profile store is required")
	}
	if board == nil {
		return nil, errors.New("challenge board is required")
	}
	if catalog == nil {
		return nil, errors.New("catalog provider is required")
	}

	e := &Engine{
		store:     store,
		board:     board,
		catalog:   catalog,
		clock:     NewSystemClock(),
		ids:       NewUUIDGenerator(),
		metrics:   noopRecorder{},
		logger:    slog.New(slog.DiscardHandler),
		snapshots: make(map[string]UserProgress),
		userLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// CreateProfile creates the starting document for a user. When the profile already
// exists the stored document is returned and created is false.
func (e *Engine) CreateProfile(ctx context.Context, userID string) (progress UserProgress, created bool, err error) {
	if err := validateUserID(userID); err != nil {
		return UserProgress{}, false, err
	}

	unlock := e.lockUser(userID)
	defer unlock()

	fresh := NewUserProgress(userID, e.clock.Now())
	if err := e.store.Create(ctx, fresh); err != nil {
		if errors.Is(err, ErrProfileExists) {
			existing, readErr := e.refresh(ctx, userID)
			return existing, false, readErr
		}
		e.storeFailed(ctx, opCreateProfile, userID, err)
		return UserProgress{}, false, asStoreError(err)
	}

	e.remember(fresh)
	return fresh.Clone(), true, nil
}

// Progress reloads the user's document from the store and caches it. When the store
// cannot be reached the last confirmed snapshot is served instead, if there is one.
func (e *Engine) Progress(ctx context.Context, userID string) (UserProgress, error) {
	if err := validateUserID(userID); err != nil {
		return UserProgress{}, err
	}

	unlock := e.lockUser(userID)
	defer unlock()

	p, err := e.refresh(ctx, userID)
	if err != nil && errors.Is(err, ErrStoreUnavailable) {
		if cached, ok := e.Snapshot(userID); ok {
			e.logger.WarnContext(ctx, "serving cached progress",
				slog.String("userId", userID),
				slog.Any("error", err),
			)
			return cached, nil
		}
	}
	return p, err
}

// Snapshot returns the last confirmed state held in memory for the user.
func (e *Engine) Snapshot(userID string) (UserProgress, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.snapshots[userID]
	if !ok {
		return UserProgress{}, false
	}
	return p.Clone(), true
}

// View combines the user's progress with the status of every challenge on offer.
func (e *Engine) View(ctx context.Context, userID string) (*ProgressView, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}

	var (
		progress UserProgress
		set      ActiveChallengeSet
		now      = e.clock.Now()
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := e.Progress(gctx, userID)
		if err != nil {
			return err
		}
		progress = p
		return nil
	})
	g.Go(func() error {
		s, err := e.ActiveChallenges(gctx, now)
		if err != nil {
			return err
		}
		set = s
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	views := make([]ChallengeView, 0, len(set.Challenges))
	for _, c := range set.Challenges {
		views = append(views, ChallengeView{Challenge: c, Status: InstanceStatus(c, progress, now)})
	}

	return &ProgressView{
		UserProgress:  progress,
		LevelProgress: ComputeLevelProgress(progress),
		Challenges:    views,
	}, nil
}

// ActiveChallenges returns the recurring instances on the board plus every special
// challenge whose catalog window contains now.
func (e *Engine) ActiveChallenges(ctx context.Context, now time.Time) (ActiveChallengeSet, error) {
	set, err := e.board.Load(ctx)
	if err != nil {
		return ActiveChallengeSet{}, asStoreError(err)
	}
	for _, def := range e.catalog.ListActiveChallenges(ChallengeSpecial, now) {
		set.Challenges = append(set.Challenges, ChallengeInstance{ChallengeDefinition: def})
	}
	return set, nil
}

// ActiveChallengesFor returns the instances the user can still complete at now.
// Completed and expired instances are left out.
func (e *Engine) ActiveChallengesFor(ctx context.Context, userID string, now time.Time) (ActiveChallengeSet, error) {
	progress, err := e.Progress(ctx, userID)
	if err != nil {
		return ActiveChallengeSet{}, err
	}
	set, err := e.ActiveChallenges(ctx, now)
	if err != nil {
		return ActiveChallengeSet{}, err
	}

	out := ActiveChallengeSet{Challenges: make([]ChallengeInstance, 0, len(set.Challenges))}
	for _, c := range set.Challenges {
		if InstanceStatus(c, progress, now) == StatusActive {
			out.Challenges = append(out.Challenges, c)
		}
	}
	return out, nil
}

// Events returns the newest history entries for the user.
func (e *Engine) Events(ctx context.Context, userID string, limit int) ([]Event, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	events, err := e.store.ListEvents(ctx, userID, limit)
	if err != nil {
		return nil, asStoreError(err)
	}
	return events, nil
}

// AddExperience credits amount experience and advances the level past every threshold crossed.
func (e *Engine) AddExperience(ctx context.Context, userID string, amount int) (UserProgress, error) {
	if err := validateUserID(userID); err != nil {
		return UserProgress{}, err
	}
	if amount <= 0 || amount > MaxExperienceAward {
		return UserProgress{}, fmt.Errorf("%w: experience amount must be between 1 and %d, got %d", ErrValidation, MaxExperienceAward, amount)
	}

	return e.mutate(ctx, userID, opAddExperience, func(_ context.Context, tx *transition) error {
		return e.applyExperience(tx, amount)
	})
}

// UnlockBadge grants a catalog badge. Unlocking an owned badge is a no-op.
func (e *Engine) UnlockBadge(ctx context.Context, userID, badgeID string) (UserProgress, error) {
	if err := validateUserID(userID); err != nil {
		return UserProgress{}, err
	}
	def, err := e.catalog.Badge(badgeID)
	if err != nil {
		return UserProgress{}, fmt.Errorf("%w: badge %q: %w", ErrValidation, badgeID, err)
	}

	return e.mutate(ctx, userID, opUnlockBadge, func(_ context.Context, tx *transition) error {
		e.applyBadge(tx, def)
		return nil
	})
}

// CompleteChallenge records completion of the active instance of challengeID and
// awards its experience and badge in the same write.
func (e *Engine) CompleteChallenge(ctx context.Context, userID, challengeID string) (UserProgress, error) {
	if err := validateUserID(userID); err != nil {
		return UserProgress{}, err
	}
	if _, err := e.catalog.ChallengeTemplate(challengeID); err != nil {
		return UserProgress{}, fmt.Errorf("%w: challenge %q: %w", ErrValidation, challengeID, err)
	}

	var completed ChallengeType
	progress, err := e.mutate(ctx, userID, opCompleteChallenge, func(ctx context.Context, tx *transition) error {
		set, err := e.ActiveChallenges(ctx, tx.now)
		if err != nil {
			return err
		}
		instance, ok := set.Find(challengeID)
		if !ok || IsExpired(instance, tx.now) || tx.now.Before(instance.ActiveWindow.Start) {
			return fmt.Errorf("%w: %s", ErrChallengeNotActive, challengeID)
		}
		key := instance.CompletionKey()
		if tx.next.HasCompleted(key) {
			return fmt.Errorf("%w: %s", ErrChallengeAlreadyCompleted, challengeID)
		}

		tx.next.CompletedChallenges[key] = tx.now
		tx.update.CompletedChallenges[key] = tx.now
		tx.event(Event{Kind: EventChallengeCompleted, ChallengeID: key, Amount: instance.ExperienceReward})
		tx.changed = true

		if instance.ExperienceReward > 0 {
			if err := e.applyExperience(tx, instance.ExperienceReward); err != nil {
				return err
			}
		}
		if instance.BadgeReward != nil {
			def := *instance.BadgeReward
			if known, err := e.catalog.Badge(def.ID); err == nil {
				def = known
			}
			e.applyBadge(tx, def)
		}
		completed = instance.Type
		return nil
	})
	if err != nil {
		return UserProgress{}, err
	}

	e.metrics.ChallengeCompleted(completed)
	return progress, nil
}

// ResetChallenges replaces every board instance of a recurring type with fresh
// instances from the catalog, stamped with a window starting at now.
func (e *Engine) ResetChallenges(ctx context.Context, t ChallengeType, now time.Time) (ActiveChallengeSet, error) {
	if _, err := WindowLength(t); err != nil {
		return ActiveChallengeSet{}, err
	}

	e.boardMu.Lock()
	defer e.boardMu.Unlock()

	defs := e.catalog.ListActiveChallenges(t, now)
	instances := make([]ChallengeInstance, 0, len(defs))
	for _, def := range defs {
		instance, err := NewInstance(def, now)
		if err != nil {
			return ActiveChallengeSet{}, err
		}
		instances = append(instances, instance)
	}

	if err := e.board.Replace(ctx, t, instances); err != nil {
		e.storeFailed(ctx, opResetChallenges, "", err)
		return ActiveChallengeSet{}, asStoreError(err)
	}

	e.metrics.ChallengesReset(t, len(instances))
	e.logger.InfoContext(ctx, "challenges reset",
		slog.String("type", string(t)),
		slog.Int("count", len(instances)),
		slog.Time("windowStart", now),
	)
	return e.ActiveChallenges(ctx, now)
}

// transition accumulates the next state and the partial write that produces it.
type transition struct {
	now     time.Time
	prev    UserProgress
	next    UserProgress
	update  ProgressUpdate
	changed bool
	ids     IDGenerator
}

func (tx *transition) event(ev Event) {
	ev.ID = tx.ids.NewID()
	ev.UserID = tx.next.UserID
	ev.OccurredAt = tx.now
	tx.update.Events = append(tx.update.Events, ev)
}

func (e *Engine) applyExperience(tx *transition, amount int) error {
	if amount > MaxExperience-tx.next.Experience {
		return fmt.Errorf("%w: experience total would exceed %d", ErrValidation, MaxExperience)
	}
	tx.next.Experience += amount
	previousLevel := tx.next.Level
	tx.next.Level = AdvanceLevel(tx.next.Level, tx.next.Experience)

	experience, level := tx.next.Experience, tx.next.Level
	tx.update.Experience = &experience
	tx.update.Level = &level
	tx.changed = true

	tx.event(Event{Kind: EventExperienceAdded, Amount: amount, Level: level})
	if level > previousLevel {
		tx.event(Event{Kind: EventLevelUp, Level: level, Amount: level - previousLevel})
		for _, def := range e.catalog.Badges() {
			if def.UnlockAtLevel > 0 && def.UnlockAtLevel <= level {
				e.applyBadge(tx, def)
			}
		}
	}
	return nil
}

func (e *Engine) applyBadge(tx *transition, def BadgeDefinition) {
	if tx.next.HasBadge(def.ID) {
		return
	}
	badge := UnlockedBadge{BadgeDefinition: def, UnlockedAt: tx.now}
	tx.next.UnlockedBadges[def.ID] = badge
	tx.update.UnlockedBadges = append(tx.update.UnlockedBadges, badge)
	tx.event(Event{Kind: EventBadgeUnlocked, BadgeID: def.ID})
	tx.changed = true
}

// mutate runs one read-compute-persist-swap cycle for a user.
func (e *Engine) mutate(ctx context.Context, userID, op string, apply func(context.Context, *transition) error) (UserProgress, error) {
	unlock := e.lockUser(userID)
	defer unlock()

	current, err := e.refresh(ctx, userID)
	if err != nil {
		return UserProgress{}, err
	}

	now := e.clock.Now()
	tx := &transition{
		now:  now,
		prev: current,
		next: current.Clone(),
		update: ProgressUpdate{
			CompletedChallenges: map[string]time.Time{},
			UpdatedAt:           now,
		},
		ids: e.ids,
	}
	if err := apply(ctx, tx); err != nil {
		return UserProgress{}, err
	}
	if !tx.changed {
		return current, nil
	}

	if err := e.store.Merge(ctx, userID, tx.update); err != nil {
		e.storeFailed(ctx, op, userID, err)
		return UserProgress{}, asStoreError(err)
	}

	tx.next.UpdatedAt = now
	e.remember(tx.next)
	e.observe(ctx, op, tx)
	return tx.next.Clone(), nil
}

func (e *Engine) observe(ctx context.Context, op string, tx *transition) {
	if gained := tx.next.Experience - tx.prev.Experience; gained > 0 {
		e.metrics.ExperienceAwarded(gained)
	}
	if levels := tx.next.Level - tx.prev.Level; levels > 0 {
		e.metrics.LevelUp(levels)
		e.logger.InfoContext(ctx, "level up",
			slog.String("userId", tx.next.UserID),
			slog.Int("from", tx.prev.Level),
			slog.Int("to", tx.next.Level),
		)
	}
	for _, b := range tx.update.UnlockedBadges {
		e.metrics.BadgeUnlocked(b.Category)
	}
	e.logger.DebugContext(ctx, "progress saved",
		slog.String("operation", op),
		slog.String("userId", tx.next.UserID),
		slog.Int("experience", tx.next.Experience),
	)
}

func (e *Engine) refresh(ctx context.Context, userID string) (UserProgress, error) {
	p, err := e.store.Read(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return UserProgress{}, err
		}
		return UserProgress{}, asStoreError(err)
	}
	normalize(&p, userID)
	e.remember(p)
	return p.Clone(), nil
}

func (e *Engine) remember(p UserProgress) {
	e.mu.Lock()
	e.snapshots[p.UserID] = p.Clone()
	e.mu.Unlock()
}

func (e *Engine) lockUser(userID string) func() {
	e.mu.Lock()
	l, ok := e.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		e.userLocks[userID] = l
	}
	e.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (e *Engine) storeFailed(ctx context.Context, op, userID string, err error) {
	e.metrics.StoreFailure(op)
	e.logger.ErrorContext(ctx, "progress write failed",
		slog.String("operation", op),
		slog.String("userId", userID),
		slog.Any("error", err),
	)
}

// normalize repairs documents written before the level rule was enforced. The level is
// only ever moved forward.
func normalize(p *UserProgress, userID string) {
	p.UserID = userID
	if p.Experience < 0 {
		p.Experience = 0
	}
	p.Level = AdvanceLevel(p.Level, p.Experience)
	if p.UnlockedBadges == nil {
		p.UnlockedBadges = map[string]UnlockedBadge{}
	}
	if p.CompletedChallenges == nil {
		p.CompletedChallenges = map[string]time.Time{}
	}
}

func validateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: missing user id", ErrValidation)
	}
	return nil
}

func asStoreError(err error) error {
	if err == nil || errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrProfileExists) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
