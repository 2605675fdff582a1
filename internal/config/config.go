package config

import (
	"fmt"
	"strings"

	"github.com/focusnest/progression-service/internal/catalog"
	sharedauth "github.com/focusnest/progression-service/shared/auth"
	"github.com/focusnest/progression-service/shared/envconfig"
)

// Config encapsulates the runtime configuration for the progression service.
type Config struct {
	Port         string `validate:"required,numeric"`
	GCPProjectID string
	DataStore    DataStore `validate:"oneof=memory firestore"`
	Auth         AuthConfig
	Firestore    FirestoreConfig
	Catalog      CatalogConfig
	Metrics      MetricsConfig
	Ops          OpsConfig
}

// DataStore enumerates supported persistence backends.
type DataStore string

const (
	// DataStoreMemory keeps profiles and the challenge board in-memory.
	DataStoreMemory DataStore = "memory"
	// DataStoreFirestore stores profiles and the board in Google Cloud Firestore.
	DataStoreFirestore DataStore = "firestore"
)

// AuthConfig stores authentication middleware setup.
type AuthConfig struct {
	Mode     sharedauth.Mode `validate:"oneof=clerk noop"`
	JWKSURL  string          `validate:"required_if=Mode clerk"`
	Audience string
	Issuer   string
}

// FirestoreConfig tailors Firestore client behavior.
type FirestoreConfig struct {
	Database     string `validate:"required"`
	EmulatorHost string
}

// CatalogConfig selects where badge and challenge definitions are read from.
type CatalogConfig struct {
	Source catalog.Source `validate:"oneof=embedded file gcs"`
	Path   string         `validate:"required_if=Source file"`
	Bucket string         `validate:"required_if=Source gcs"`
	Object string         `validate:"required_if=Source gcs"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool
	Namespace string `validate:"required_if=Enabled true"`
	Subsystem string
}

// OpsConfig holds credentials for operator-only routes.
type OpsConfig struct {
	// ResetToken must be sent as X-Ops-Token to reset the challenge board. Empty disables resets.
	ResetToken string
}

// Options converts the config into catalog loader options.
func (c CatalogConfig) Options() catalog.Options {
	return catalog.Options{Source: c.Source, Path: c.Path, Bucket: c.Bucket, Object: c.Object}
}

// Load reads environment variables into Config with validation.
func Load() (Config, error) {
	cfg := Config{
		Port:         envconfig.Get("PORT", "8080"),
		GCPProjectID: envconfig.Get("GCP_PROJECT_ID", ""),
		DataStore:    DataStore(strings.ToLower(envconfig.Get("DATASTORE", string(DataStoreMemory)))),
		Auth: AuthConfig{
			Mode:     sharedauth.Mode(strings.ToLower(envconfig.Get("AUTH_MODE", string(sharedauth.ModeNoop)))),
			JWKSURL:  envconfig.Get("CLERK_JWKS_URL", ""),
			Audience: envconfig.Get("CLERK_AUDIENCE", ""),
			Issuer:   envconfig.Get("CLERK_ISSUER", ""),
		},
		Firestore: FirestoreConfig{
			Database:     envconfig.Get("FIRESTORE_DATABASE", "(default)"),
			EmulatorHost: envconfig.Get("FIRESTORE_EMULATOR_HOST", ""),
		},
		Catalog: CatalogConfig{
			Source: catalog.Source(strings.ToLower(envconfig.Get("CATALOG_SOURCE", string(catalog.SourceEmbedded)))),
			Path:   envconfig.Get("CATALOG_PATH", ""),
			Bucket: envconfig.Get("CATALOG_BUCKET", ""),
			Object: envconfig.Get("CATALOG_OBJECT", "catalog.yaml"),
		},
		Metrics: MetricsConfig{
			Enabled:   envconfig.GetBool("METRICS_ENABLED", true),
			Namespace: envconfig.Get("METRICS_NAMESPACE", "tutor"),
			Subsystem: envconfig.Get("METRICS_SUBSYSTEM", "progression"),
		},
		Ops: OpsConfig{
			ResetToken: envconfig.Get("CHALLENGE_RESET_TOKEN", ""),
		},
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validate(cfg Config) error {
	if err := envconfig.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.DataStore == DataStoreFirestore && strings.TrimSpace(cfg.GCPProjectID) == "" {
		return fmt.Errorf("GCP_PROJECT_ID is required when DATASTORE=firestore")
	}

	return nil
}
