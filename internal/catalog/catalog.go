// Package catalog holds the badge and challenge definitions offered to learners.
//
// Definitions are data: they are loaded from a YAML document (embedded, on disk, or in a
// Cloud Storage bucket) and validated once at start-up. A Catalog is read-only afterwards
// and safe for concurrent use.
package catalog

import (
	"fmt"
	"time"

	"github.com/focusnest/progression-service/internal/progression"
)

// Catalog implements progression.CatalogProvider.
type Catalog struct {
	badges     []progression.BadgeDefinition
	badgeIdx   map[string]int
	challenges []progression.ChallengeDefinition
	challIdx   map[string]int
}

var _ progression.CatalogProvider = (*Catalog)(nil)

// New indexes the definitions. IDs must be unique within their kind.
func New(badges []progression.BadgeDefinition, challenges []progression.ChallengeDefinition) (*Catalog, error) {
	c := &Catalog{
		badges:     make([]progression.BadgeDefinition, 0, len(badges)),
		badgeIdx:   make(map[string]int, len(badges)),
		challenges: make([]progression.ChallengeDefinition, 0, len(challenges)),
		challIdx:   make(map[string]int, len(challenges)),
	}

	for _, b := range badges {
		if b.ID == "" {
			return nil, fmt.Errorf("badge without id")
		}
		if _, dup := c.badgeIdx[b.ID]; dup {
			return nil, fmt.Errorf("duplicate badge id %q", b.ID)
		}
		c.badgeIdx[b.ID] = len(c.badges)
		c.badges = append(c.badges, b)
	}

	for _, ch := range challenges {
		if ch.ID == "" {
			return nil, fmt.Errorf("challenge without id")
		}
		if _, dup := c.challIdx[ch.ID]; dup {
			return nil, fmt.Errorf("duplicate challenge id %q", ch.ID)
		}
		if ch.ExperienceReward <= 0 || ch.ExperienceReward > progression.MaxExperienceAward {
			return nil, fmt.Errorf("challenge %q: experience reward must be between 1 and %d", ch.ID, progression.MaxExperienceAward)
		}
		if ch.Type == progression.ChallengeSpecial && !ch.ActiveWindow.End.After(ch.ActiveWindow.Start) {
			return nil, fmt.Errorf("challenge %q: special challenges need a non-empty window", ch.ID)
		}
		if ch.BadgeReward != nil {
			if _, ok := c.badgeIdx[ch.BadgeReward.ID]; !ok {
				return nil, fmt.Errorf("challenge %q: unknown badge reward %q", ch.ID, ch.BadgeReward.ID)
			}
		}
		c.challIdx[ch.ID] = len(c.challenges)
		c.challenges = append(c.challenges, ch)
	}

	return c, nil
}

// Badge returns a badge definition by id.
func (c *Catalog) Badge(id string) (progression.BadgeDefinition, error) {
	i, ok := c.badgeIdx[id]
	if !ok {
		return progression.BadgeDefinition{}, fmt.Errorf("badge %q: %w", id, progression.ErrNotFound)
	}
	return c.badges[i], nil
}

// Badges returns every badge in catalog order.
func (c *Catalog) Badges() []progression.BadgeDefinition {
	out := make([]progression.BadgeDefinition, len(c.badges))
	copy(out, c.badges)
	return out
}

// ChallengeTemplate returns a challenge definition by id.
func (c *Catalog) ChallengeTemplate(id string) (progression.ChallengeDefinition, error) {
	i, ok := c.challIdx[id]
	if !ok {
		return progression.ChallengeDefinition{}, fmt.Errorf("challenge %q: %w", id, progression.ErrNotFound)
	}
	return cloneChallenge(c.challenges[i]), nil
}

// Challenges returns every challenge template in catalog order.
func (c *Catalog) Challenges() []progression.ChallengeDefinition {
	out := make([]progression.ChallengeDefinition, 0, len(c.challenges))
	for _, ch := range c.challenges {
		out = append(out, cloneChallenge(ch))
	}
	return out
}

// ListActiveChallenges returns templates of type t available at now, in catalog order.
// Templates without a window are always available.
func (c *Catalog) ListActiveChallenges(t progression.ChallengeType, now time.Time) []progression.ChallengeDefinition {
	var out []progression.ChallengeDefinition
	for _, ch := range c.challenges {
		if ch.Type != t {
			continue
		}
		if !ch.ActiveWindow.IsZero() && !ch.ActiveWindow.Contains(now) {
			continue
		}
		out = append(out, cloneChallenge(ch))
	}
	return out
}

func cloneChallenge(ch progression.ChallengeDefinition) progression.ChallengeDefinition {
	ch.Requirements = append([]string(nil), ch.Requirements...)
	if ch.BadgeReward != nil {
		b := *ch.BadgeReward
		ch.BadgeReward = &b
	}
	return ch
}
