package catalog

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/focusnest/progression-service/internal/progression"
)

//go:embed default.yaml
var defaultDocument []byte

// Source selects where the catalog document is read from.
type Source string

const (
	SourceEmbedded Source = "embedded"
	SourceFile     Source = "file"
	SourceGCS      Source = "gcs"
)

// Options configures Load.
type Options struct {
	Source Source
	Path   string
	Bucket string
	Object string
}

var validate = validator.New()

type document struct {
	Version    int              `koanf:"version" validate:"gte=1"`
	Badges     []badgeEntry     `koanf:"badges" validate:"dive"`
	Challenges []challengeEntry `koanf:"challenges" validate:"dive"`
}

type badgeEntry struct {
	ID            string `koanf:"id" validate:"required"`
	Name          string `koanf:"name" validate:"required"`
	Description   string `koanf:"description"`
	Image         string `koanf:"image"`
	Category      string `koanf:"category" validate:"required,oneof=achievement skill participation challenge"`
	UnlockAtLevel int    `koanf:"unlock_at_level" validate:"gte=0"`
}

type challengeEntry struct {
	ID               string   `koanf:"id" validate:"required"`
	Title            string   `koanf:"title" validate:"required"`
	Description      string   `koanf:"description"`
	Type             string   `koanf:"type" validate:"required,oneof=daily weekly special"`
	Difficulty       string   `koanf:"difficulty" validate:"required,oneof=easy medium hard"`
	ExperienceReward int      `koanf:"experience_reward" validate:"gt=0"`
	Requirements     []string `koanf:"requirements"`
	StartsAt         string   `koanf:"starts_at" validate:"required_if=Type special"`
	EndsAt           string   `koanf:"ends_at" validate:"required_if=Type special"`
	BadgeReward      string   `koanf:"badge_reward"`
}

// Load reads and validates the catalog from the configured source.
func Load(ctx context.Context, opts Options) (*Catalog, error) {
	switch opts.Source {
	case "", SourceEmbedded:
		return Parse(Bytes(defaultDocument))
	case SourceFile:
		if opts.Path == "" {
			return nil, errors.New("catalog path is required for file source")
		}
		return Parse(file.Provider(opts.Path))
	case SourceGCS:
		provider, err := NewGCSProvider(ctx, opts.Bucket, opts.Object)
		if err != nil {
			return nil, err
		}
		defer provider.Close()
		return Parse(provider)
	default:
		return nil, fmt.Errorf("unsupported catalog source: %s", opts.Source)
	}
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Parse(Bytes(defaultDocument))
}

// Parse decodes a YAML catalog document from any koanf provider.
func Parse(p koanf.Provider) (*Catalog, error) {
	k := koanf.New(".")
	if err := k.Load(p, yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	var doc document
	conf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.DecodeHookFuncType(timestampToString),
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.TextUnmarshallerHookFunc(),
			),
			Result:           &doc,
			WeaklyTypedInput: true,
		},
	}
	if err := k.UnmarshalWithConf("", &doc, conf); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := validate.Struct(doc); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}

	badges := make([]progression.BadgeDefinition, 0, len(doc.Badges))
	byID := make(map[string]progression.BadgeDefinition, len(doc.Badges))
	for _, b := range doc.Badges {
		def := progression.BadgeDefinition{
			ID:            strings.TrimSpace(b.ID),
			Name:          b.Name,
			Description:   b.Description,
			ImageRef:      b.Image,
			Category:      progression.BadgeCategory(b.Category),
			UnlockAtLevel: b.UnlockAtLevel,
		}
		badges = append(badges, def)
		byID[def.ID] = def
	}

	challenges := make([]progression.ChallengeDefinition, 0, len(doc.Challenges))
	for _, c := range doc.Challenges {
		def := progression.ChallengeDefinition{
			ID:               strings.TrimSpace(c.ID),
			Title:            c.Title,
			Description:      c.Description,
			Type:             progression.ChallengeType(c.Type),
			Difficulty:       progression.Difficulty(c.Difficulty),
			ExperienceReward: c.ExperienceReward,
			Requirements:     c.Requirements,
		}

		window, err := parseWindow(c.StartsAt, c.EndsAt)
		if err != nil {
			return nil, fmt.Errorf("challenge %q: %w", c.ID, err)
		}
		def.ActiveWindow = window

		if c.BadgeReward != "" {
			badge, ok := byID[c.BadgeReward]
			if !ok {
				return nil, fmt.Errorf("challenge %q: unknown badge reward %q", c.ID, c.BadgeReward)
			}
			def.BadgeReward = &badge
		}
		challenges = append(challenges, def)
	}

	return New(badges, challenges)
}

// timestampToString lets starts_at and ends_at be written as bare YAML timestamps as
// well as quoted RFC 3339 strings.
func timestampToString(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if ts, ok := data.(time.Time); ok && to.Kind() == reflect.String {
		return ts.UTC().Format(time.RFC3339), nil
	}
	return data, nil
}

func parseWindow(startsAt, endsAt string) (progression.Window, error) {
	if startsAt == "" && endsAt == "" {
		return progression.Window{}, nil
	}
	start, err := time.Parse(time.RFC3339, startsAt)
	if err != nil {
		return progression.Window{}, fmt.Errorf("starts_at: %w", err)
	}
	end, err := time.Parse(time.RFC3339, endsAt)
	if err != nil {
		return progression.Window{}, fmt.Errorf("ends_at: %w", err)
	}
	if !end.After(start) {
		return progression.Window{}, errors.New("ends_at must be after starts_at")
	}
	return progression.Window{Start: start.UTC(), End: end.UTC()}, nil
}

type bytesProvider []byte

// Bytes wraps an in-memory document as a koanf provider.
func Bytes(b []byte) koanf.Provider {
	return bytesProvider(b)
}

func (b bytesProvider) ReadBytes() ([]byte, error) {
	return b, nil
}

func (b bytesProvider) Read() (map[string]interface{}, error) {
	return nil, errors.New("catalog bytes provider does not support Read()")
}
