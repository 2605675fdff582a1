package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/focusnest/progression-service/internal/progression"
	sharedauth "github.com/focusnest/progression-service/shared/auth"
	sharederrors "github.com/focusnest/progression-service/shared/errors"
	"github.com/focusnest/progression-service/shared/logging"
)

const (
	serviceTimeout  = 8 * time.Second
	maxBodyBytes    = 16 * 1024
	storeUnavailMsg = "couldn't save your progress, try again"

	// headerOpsToken authenticates schedulers allowed to reset the challenge board.
	headerOpsToken = "X-Ops-Token"
)

// Engine is the subset of the progression engine the HTTP layer depends on.
type Engine interface {
	CreateProfile(ctx context.Context, userID string) (progression.UserProgress, bool, error)
	View(ctx context.Context, userID string) (*progression.ProgressView, error)
	Events(ctx context.Context, userID string, limit int) ([]progression.Event, error)
	AddExperience(ctx context.Context, userID string, amount int) (progression.UserProgress, error)
	UnlockBadge(ctx context.Context, userID, badgeID string) (progression.UserProgress, error)
	ActiveChallengesFor(ctx context.Context, userID string, now time.Time) (progression.ActiveChallengeSet, error)
	CompleteChallenge(ctx context.Context, userID, challengeID string) (progression.UserProgress, error)
	ResetChallenges(ctx context.Context, t progression.ChallengeType, now time.Time) (progression.ActiveChallengeSet, error)
}

// Catalog lists the static definitions served to clients.
type Catalog interface {
	Badges() []progression.BadgeDefinition
	Challenges() []progression.ChallengeDefinition
}

type handler struct {
	engine  Engine
	catalog Catalog
	logger  *slog.Logger
	now     func() time.Time
}

// RegisterRoutes registers the progression, badge and challenge routes. Board resets
// are only accepted with a matching X-Ops-Token; an empty resetToken disables them.
func RegisterRoutes(r chi.Router, engine Engine, catalog Catalog, resetToken string, logger *slog.Logger) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h := &handler{engine: engine, catalog: catalog, logger: logger, now: func() time.Time { return time.Now().UTC() }}

	r.Route("/v1/progression/me", func(r chi.Router) {
		r.Use(middleware.Recoverer)

		r.Post("/", h.createProfile)
		r.Get("/", h.getProgress)
		r.Post("/experience", h.addExperience)
		r.Post("/badges/{id}", h.unlockBadge)
		r.Get("/events", h.listEvents)
	})

	r.Get("/v1/badges", h.listBadges)

	r.Route("/v1/challenges", func(r chi.Router) {
		r.Use(middleware.Recoverer)

		r.Get("/", h.listChallenges)
		r.Get("/active", h.activeChallenges)
		r.Post("/{id}/complete", h.completeChallenge)
		r.With(requireOpsToken(resetToken)).Post("/reset/{type}", h.resetChallenges)
	})
}

func (h *handler) createProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	progress, created, err := h.engine.CreateProfile(ctx, userID)
	if err != nil {
		h.fail(w, r, "failed to create profile", err, userID)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, progress)
}

func (h *handler) getProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	view, err := h.engine.View(ctx, userID)
	if err != nil {
		h.fail(w, r, "failed to load progress", err, userID)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *handler) addExperience(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var body struct {
		Amount int `json:"amount"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Amount <= 0 {
		writeError(w, r, http.StatusBadRequest, "amount must be positive")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	progress, err := h.engine.AddExperience(ctx, userID, body.Amount)
	if err != nil {
		h.fail(w, r, "failed to add experience", err, userID)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (h *handler) unlockBadge(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	badgeID := chi.URLParam(r, "id")
	if strings.TrimSpace(badgeID) == "" {
		writeError(w, r, http.StatusBadRequest, "missing badge id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	progress, err := h.engine.UnlockBadge(ctx, userID, badgeID)
	if err != nil {
		h.fail(w, r, "failed to unlock badge", err, userID)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (h *handler) listEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = v
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	events, err := h.engine.Events(ctx, userID, limit)
	if err != nil {
		h.fail(w, r, "failed to list events", err, userID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *handler) listBadges(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"badges": h.catalog.Badges()})
}

func (h *handler) listChallenges(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"challenges": h.catalog.Challenges()})
}

func (h *handler) activeChallenges(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	set, err := h.engine.ActiveChallengesFor(ctx, userID, h.now())
	if err != nil {
		h.fail(w, r, "failed to load active challenges", err, userID)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (h *handler) completeChallenge(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	challengeID := chi.URLParam(r, "id")
	if strings.TrimSpace(challengeID) == "" {
		writeError(w, r, http.StatusBadRequest, "missing challenge id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	progress, err := h.engine.CompleteChallenge(ctx, userID, challengeID)
	if err != nil {
		h.fail(w, r, "failed to complete challenge", err, userID)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (h *handler) resetChallenges(w http.ResponseWriter, r *http.Request) {
	caller := headerUserID(r)
	t := progression.ChallengeType(strings.ToLower(chi.URLParam(r, "type")))

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	set, err := h.engine.ResetChallenges(ctx, t, h.now())
	if err != nil {
		h.fail(w, r, "failed to reset challenges", err, caller)
		return
	}
	logging.FromRequest(r.Context(), h.logger).Info("challenge board reset",
		slog.String("type", string(t)),
		slog.String("caller", caller),
	)
	writeJSON(w, http.StatusOK, set)
}

// fail maps engine errors onto the shared error envelope.
func (h *handler) fail(w http.ResponseWriter, r *http.Request, message string, err error, userID string) {
	switch {
	case errors.Is(err, progression.ErrValidation):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, progression.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "progress not found")
	case errors.Is(err, progression.ErrChallengeNotActive),
		errors.Is(err, progression.ErrChallengeAlreadyCompleted):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, progression.ErrStoreUnavailable):
		logRequestError(r.Context(), h.logger, message, err, userID)
		writeError(w, r, http.StatusServiceUnavailable, storeUnavailMsg)
	default:
		logRequestError(r.Context(), h.logger, message, err, userID)
		writeError(w, r, http.StatusInternalServerError, message)
	}
}

func requireOpsToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				writeError(w, r, http.StatusForbidden, "challenge resets are disabled")
				return
			}
			got := r.Header.Get(headerOpsToken)
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeError(w, r, http.StatusForbidden, "operator token required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := headerUserID(r)
	if userID == "" {
		writeError(w, r, http.StatusUnauthorized, "missing user ID")
		return "", false
	}
	return userID, true
}

func headerUserID(r *http.Request) string {
	if user, ok := sharedauth.UserFromContext(r.Context()); ok && user.UserID != "" {
		return user.UserID
	}
	return strings.TrimSpace(r.Header.Get("X-User-ID"))
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, sharederrors.ErrorResponse{
		Code:      codeFor(status),
		Message:   message,
		RequestID: middleware.GetReqID(r.Context()),
	})
}

func codeFor(status int) string {
	for _, code := range []string{
		sharederrors.CodeBadRequest,
		sharederrors.CodeUnauthorized,
		sharederrors.CodeForbidden,
		sharederrors.CodeNotFound,
		sharederrors.CodeConflict,
		sharederrors.CodeServiceUnavailable,
	} {
		if sharederrors.ToStatusCode(code) == status {
			return code
		}
	}
	return sharederrors.CodeInternal
}

func logRequestError(ctx context.Context, logger *slog.Logger, message string, err error, userID string) {
	if logger == nil || err == nil {
		return
	}
	logging.FromRequest(ctx, logger).ErrorContext(ctx, message,
		slog.String("userId", userID),
		slog.Any("error", err),
	)
}
