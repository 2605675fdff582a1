package progression

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	profilesCollection = "profiles"
	eventsCollection   = "progression_events"
	boardCollection    = "challenge_windows"
)

// profileDocument is the persisted shape of profiles/{uid}.
type profileDocument struct {
	UserID              string                   `firestore:"user_id"`
	Level               int                      `firestore:"level"`
	Experience          int                      `firestore:"experience"`
	UnlockedBadges      map[string]UnlockedBadge `firestore:"unlocked_badges"`
	CompletedChallenges map[string]time.Time     `firestore:"completed_challenges"`
	CreatedAt           time.Time                `firestore:"created_at"`
	UpdatedAt           time.Time                `firestore:"updated_at"`
}

func (d profileDocument) progress() UserProgress {
	return UserProgress{
		UserID:              d.UserID,
		Level:               d.Level,
		Experience:          d.Experience,
		UnlockedBadges:      d.UnlockedBadges,
		CompletedChallenges: d.CompletedChallenges,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
	}
}

type firestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore creates a ProfileStore backed by the profiles collection.
func NewFirestoreStore(client *firestore.Client) ProfileStore {
	return &firestoreStore{client: client}
}

func (r *firestoreStore) profileRef(userID string) *firestore.DocumentRef {
	return r.client.Collection(profilesCollection).Doc(userID)
}

func (r *firestoreStore) Read(ctx context.Context, userID string) (UserProgress, error) {
	snap, err := r.profileRef(userID).Get(ctx)
	if err != nil {
		return UserProgress{}, mapFirestoreError(err)
	}

	var doc profileDocument
	if err := snap.DataTo(&doc); err != nil {
		return UserProgress{}, fmt.Errorf("unmarshal profile: %w", err)
	}
	doc.UserID = userID
	return doc.progress(), nil
}

func (r *firestoreStore) Create(ctx context.Context, progress UserProgress) error {
	_, err := r.profileRef(progress.UserID).Create(ctx, profileDocument{
		UserID:              progress.UserID,
		Level:               progress.Level,
		Experience:          progress.Experience,
		UnlockedBadges:      progress.UnlockedBadges,
		CompletedChallenges: progress.CompletedChallenges,
		CreatedAt:           progress.CreatedAt,
		UpdatedAt:           progress.UpdatedAt,
	})
	if status.Code(err) == codes.AlreadyExists {
		return ErrProfileExists
	}
	if err != nil {
		return mapFirestoreError(err)
	}
	return nil
}

// Merge applies the update in a transaction. Badges and completions already present in
// the stored document are skipped so their timestamps are never rewritten, and history
// events are created alongside the profile write.
func (r *firestoreStore) Merge(ctx context.Context, userID string, update ProgressUpdate) error {
	ref := r.profileRef(userID)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var current profileDocument
		if err := snap.DataTo(&current); err != nil {
			return fmt.Errorf("unmarshal profile: %w", err)
		}

		data := map[string]interface{}{
			"updated_at": update.UpdatedAt,
		}
		if update.Level != nil {
			data["level"] = *update.Level
		}
		if update.Experience != nil {
			data["experience"] = *update.Experience
		}

		badges := map[string]interface{}{}
		for _, b := range update.UnlockedBadges {
			if _, owned := current.UnlockedBadges[b.ID]; owned {
				continue
			}
			badges[b.ID] = b
		}
		if len(badges) > 0 {
			data["unlocked_badges"] = badges
		}

		completions := map[string]interface{}{}
		for key, at := range update.CompletedChallenges {
			if _, done := current.CompletedChallenges[key]; done {
				continue
			}
			completions[key] = at
		}
		if len(completions) > 0 {
			data["completed_challenges"] = completions
		}

		if err := tx.Set(ref, data, firestore.MergeAll); err != nil {
			return err
		}

		for _, ev := range update.Events {
			if err := tx.Create(ref.Collection(eventsCollection).Doc(ev.ID), ev); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return mapFirestoreError(err)
	}
	return nil
}

func (r *firestoreStore) ListEvents(ctx context.Context, userID string, limit int) ([]Event, error) {
	iter := r.profileRef(userID).Collection(eventsCollection).
		OrderBy("occurred_at", firestore.Desc).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	var events []Event
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, mapFirestoreError(err)
		}
		ev, err := decodeEvent(doc.Ref.ID, doc)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// dataDecoder is satisfied by *firestore.DocumentSnapshot.
type dataDecoder interface {
	DataTo(p interface{}) error
}

func decodeEvent(id string, doc dataDecoder) (Event, error) {
	var ev Event
	if err := doc.DataTo(&ev); err != nil {
		return Event{}, fmt.Errorf("unmarshal progression event %s: %w", id, err)
	}
	if ev.ID == "" {
		ev.ID = id
	}
	return ev, nil
}

// boardDocument is the persisted shape of challenge_windows/{type}.
type boardDocument struct {
	Type       ChallengeType       `firestore:"type"`
	Challenges []ChallengeInstance `firestore:"challenges"`
	ResetAt    time.Time           `firestore:"reset_at"`
}

type firestoreBoard struct {
	client *firestore.Client
	clock  Clock
}

// NewFirestoreBoard creates a ChallengeBoard with one document per recurring type.
func NewFirestoreBoard(client *firestore.Client) ChallengeBoard {
	return &firestoreBoard{client: client, clock: NewSystemClock()}
}

func (b *firestoreBoard) Load(ctx context.Context) (ActiveChallengeSet, error) {
	refs := []*firestore.DocumentRef{
		b.client.Collection(boardCollection).Doc(string(ChallengeDaily)),
		b.client.Collection(boardCollection).Doc(string(ChallengeWeekly)),
	}
	snaps, err := b.client.GetAll(ctx, refs)
	if err != nil {
		return ActiveChallengeSet{}, mapFirestoreError(err)
	}

	var set ActiveChallengeSet
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		var doc boardDocument
		if err := snap.DataTo(&doc); err != nil {
			return ActiveChallengeSet{}, fmt.Errorf("unmarshal challenge board: %w", err)
		}
		set.Challenges = append(set.Challenges, doc.Challenges...)
	}
	return set, nil
}

func (b *firestoreBoard) Replace(ctx context.Context, t ChallengeType, instances []ChallengeInstance) error {
	_, err := b.client.Collection(boardCollection).Doc(string(t)).Set(ctx, boardDocument{
		Type:       t,
		Challenges: instances,
		ResetAt:    b.clock.Now(),
	})
	if err != nil {
		return mapFirestoreError(err)
	}
	return nil
}

func mapFirestoreError(err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrProfileExists) {
		return err
	}
	switch status.Code(err) {
	case codes.NotFound:
		return ErrNotFound
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.ResourceExhausted, codes.Internal:
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	default:
		return err
	}
}
