package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/cinesense/journey-engine/internal/core"
	"github.com/cinesense/journey-engine/internal/logging"
	"github.com/cinesense/journey-engine/internal/store"
)

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type APIHandler struct {
	journeys *core.JourneyService
	sessions *core.SessionService
	recalc   *core.Recalculator
	db       Pinger
}

func NewAPIHandler(journeys *core.JourneyService, sessions *core.SessionService, recalc *core.Recalculator, db Pinger) *APIHandler {
	return &APIHandler{journeys: journeys, sessions: sessions, recalc: recalc, db: db}
}

func (h *APIHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Health check failed")
		respondError(w, r, http.StatusServiceUnavailable, "UNHEALTHY", "database unavailable", nil)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *APIHandler) ListSentiments(w http.ResponseWriter, r *http.Request) {
	sentiments, err := h.sessions.ListSentiments(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, sentiments)
}

func (h *APIHandler) ListIntentions(w http.ResponseWriter, r *http.Request) {
	sentimentID, ok := idParam(w, r, "sentimentID")
	if !ok {
		return
	}
	intentions, err := h.sessions.ListIntentions(r.Context(), sentimentID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, intentions)
}

func (h *APIHandler) GetDefaultJourney(w http.ResponseWriter, r *http.Request) {
	sentimentID, ok := idParam(w, r, "sentimentID")
	if !ok {
		return
	}
	journey, err := h.journeys.GetDefaultJourney(r.Context(), sentimentID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, journey)
}

func (h *APIHandler) GetPersonalizedJourney(w http.ResponseWriter, r *http.Request) {
	sentimentID, ok := idParam(w, r, "sentimentID")
	if !ok {
		return
	}
	intentionID, ok := idParam(w, r, "intentionID")
	if !ok {
		return
	}
	journey, err := h.journeys.GetPersonalizedJourney(r.Context(), sentimentID, intentionID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, journey)
}

type StartSessionRequest struct {
	SentimentID   int64           `json:"mainSentimentId" validate:"required,gt=0"`
	IntentionType string          `json:"intentionType" validate:"required,oneof=PROCESS TRANSFORM MAINTAIN EXPLORE"`
	UserID        *string         `json:"userId" validate:"omitempty,min=1,max=128"`
	Context       json.RawMessage `json:"contextData"`
}

func (h *APIHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	userID := req.UserID
	if userID == nil {
		if id, ok := userIDFromContext(r.Context()); ok {
			userID = &id
		}
	}

	res, err := h.sessions.StartSession(r.Context(), core.StartSessionInput{
		SentimentID:   req.SentimentID,
		IntentionType: store.IntentionType(req.IntentionType),
		UserID:        userID,
		Context:       req.Context,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, res)
}

type FeedbackRequest struct {
	MovieID  string  `json:"movieId" validate:"required,max=64"`
	Viewed   *bool   `json:"wasViewed" validate:"required"`
	Accepted *bool   `json:"wasAccepted" validate:"required"`
	Feedback *string `json:"feedback" validate:"omitempty,max=2000"`
}

func (h *APIHandler) RecordFeedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	err := h.sessions.RecordFeedback(r.Context(), chi.URLParam(r, "sessionID"), req.MovieID, store.FeedbackUpdate{
		Viewed:   *req.Viewed,
		Accepted: *req.Accepted,
		Feedback: req.Feedback,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]string{"message": "feedback recorded"})
}

func (h *APIHandler) CompleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.CompleteSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]string{"message": "session completed"})
}

func (h *APIHandler) History(w http.ResponseWriter, r *http.Request) {
	history, err := h.sessions.History(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, history)
}

func (h *APIHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	a, err := h.sessions.Analytics(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, a)
}

type RecalculateRequest struct {
	MovieID  string   `json:"movieId" validate:"omitempty,max=64"`
	LeafID   int64    `json:"leafId" validate:"gte=0"`
	MinScore *float64 `json:"minScore" validate:"omitempty,gte=0,lte=10"`
	DryRun   bool     `json:"dryRun"`
}

func (h *APIHandler) Recalculate(w http.ResponseWriter, r *http.Request) {
	var req RecalculateRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	report, err := h.recalc.Recalculate(r.Context(), core.RecalcRequest{
		MovieID:  req.MovieID,
		LeafID:   req.LeafID,
		MinScore: req.MinScore,
		DryRun:   req.DryRun,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, report)
}

func idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", name+" must be a positive integer", nil)
		return 0, false
	}
	return id, true
}
