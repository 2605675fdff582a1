package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/api/option"

	"github.com/focusnest/progression-service/internal/catalog"
	"github.com/focusnest/progression-service/internal/config"
	"github.com/focusnest/progression-service/internal/httpapi"
	"github.com/focusnest/progression-service/internal/metrics"
	"github.com/focusnest/progression-service/internal/progression"
	sharedauth "github.com/focusnest/progression-service/shared/auth"
	"github.com/focusnest/progression-service/shared/logging"
	sharedserver "github.com/focusnest/progression-service/shared/server"
)

const serviceName = "progression-service"

func main() {
	ctx := context.Background()
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Errorf("config error: %w", err))
	}

	logger := logging.NewLogger(serviceName)

	defs, err := catalog.Load(ctx, cfg.Catalog.Options())
	if err != nil {
		panic(fmt.Errorf("catalog error: %w", err))
	}

	store, board, cleanup, err := newRepositories(ctx, cfg)
	if err != nil {
		panic(fmt.Errorf("repository init error: %w", err))
	}
	defer cleanup()

	recorder := metrics.NewManager(
		metrics.WithMetricsEnabled(cfg.Metrics.Enabled),
		metrics.WithNamespace(cfg.Metrics.Namespace),
		metrics.WithSubsystem(cfg.Metrics.Subsystem),
	)
	recorder.Registry().MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	engine, err := progression.NewEngine(store, board, defs,
		progression.WithClock(progression.NewSystemClock()),
		progression.WithIDGenerator(progression.NewUUIDGenerator()),
		progression.WithRecorder(recorder),
		progression.WithLogger(logger),
	)
	if err != nil {
		panic(fmt.Errorf("progression engine init error: %w", err))
	}

	if err := seedBoard(ctx, engine, logger); err != nil {
		panic(fmt.Errorf("challenge board init error: %w", err))
	}

	verifier, err := sharedauth.NewVerifier(sharedauth.Config{
		Mode:     cfg.Auth.Mode,
		JWKSURL:  cfg.Auth.JWKSURL,
		Audience: cfg.Auth.Audience,
		Issuer:   cfg.Auth.Issuer,
	})
	if err != nil {
		panic(fmt.Errorf("auth verifier error: %w", err))
	}

	router := sharedserver.NewRouter(serviceName, func(r chi.Router) {
		if cfg.Metrics.Enabled {
			r.Handle("/metrics", recorder.Handler())
		}

		r.Group(func(r chi.Router) {
			r.Use(sharedauth.Middleware(verifier))
			httpapi.RegisterRoutes(r, engine, defs, cfg.Ops.ResetToken, logger)
		})
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	if err := sharedserver.Run(ctx, srv, logger); err != nil && !errors.Is(err, http.ErrServerClosed) {
		panic(err)
	}
}

func newRepositories(ctx context.Context, cfg config.Config) (progression.ProfileStore, progression.ChallengeBoard, func(), error) {
	switch cfg.DataStore {
	case config.DataStoreFirestore:
		if cfg.Firestore.EmulatorHost != "" {
			if err := os.Setenv("FIRESTORE_EMULATOR_HOST", cfg.Firestore.EmulatorHost); err != nil {
				return nil, nil, nil, fmt.Errorf("set FIRESTORE_EMULATOR_HOST: %w", err)
			}
		}

		client, err := firestore.NewClientWithDatabase(ctx, cfg.GCPProjectID, cfg.Firestore.Database,
			option.WithUserAgent(serviceName+"/"+sharedserver.Version))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("firestore client: %w", err)
		}

		cleanup := func() {
			_ = client.Close()
		}
		return progression.NewFirestoreStore(client), progression.NewFirestoreBoard(client), cleanup, nil
	default:
		return progression.NewMemoryStore(), progression.NewMemoryBoard(), func() {}, nil
	}
}

// seedBoard opens a window for every recurring type that has no live instance, so a
// fresh deployment serves challenges before the first scheduled reset.
func seedBoard(ctx context.Context, engine *progression.Engine, logger *slog.Logger) error {
	now := time.Now().UTC()
	set, err := engine.ActiveChallenges(ctx, now)
	if err != nil {
		return err
	}

	for _, t := range []progression.ChallengeType{progression.ChallengeDaily, progression.ChallengeWeekly} {
		live := false
		for _, c := range set.OfType(t) {
			if !progression.IsExpired(c, now) {
				live = true
				break
			}
		}
		if live {
			continue
		}
		if _, err := engine.ResetChallenges(ctx, t, now); err != nil {
			return err
		}
		logger.Info("opened challenge window", slog.String("type", string(t)))
	}
	return nil
}
