package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bitpredict/internal/auth"
	"bitpredict/internal/guess"
	"bitpredict/internal/price"
)

type GuessHandler struct {
	Engine   *guess.Engine
	Prices   price.Source
	Verifier auth.Verifier
	Logger   *zap.Logger
}

func (h *GuessHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/price", h.currentPrice)

	group := r.Group("/api/v1")
	group.Use(auth.RequireUser(h.Verifier, h.Logger))
	group.POST("/guess", h.placeGuess)
	group.GET("/status", h.status)
	group.GET("/history", h.history)
}

type placeGuessRequest struct {
	Direction string `json:"direction" example:"up"`
}

type pendingGuessView struct {
	Direction      string    `json:"direction" example:"up"`
	ReferenceValue string    `json:"reference_value_at_placement" example:"64000.12"`
	PlacedAt       time.Time `json:"placed_at"`
	SettlesAt      time.Time `json:"settles_at"`
}

type statusView struct {
	Score        int64             `json:"score"`
	PendingGuess *pendingGuessView `json:"pending_guess"`
}

type quoteView struct {
	Value      string    `json:"value" example:"64000.12"`
	ObservedAt time.Time `json:"observed_at"`
	Source     string    `json:"source"`
}

type settlementView struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	Direction      string    `json:"direction"`
	ReferenceValue string    `json:"reference_value_at_placement"`
	SettledValue   *string   `json:"settled_value"`
	Outcome        string    `json:"outcome"`
	ScoreDelta     int64     `json:"score_delta"`
	ScoreAfter     int64     `json:"score_after"`
	PlacedAt       time.Time `json:"placed_at"`
	SettledAt      time.Time `json:"settled_at"`
}

// @Summary Place a guess
// @Description Records an up/down guess against the current BTC/USD value. One pending guess per user.
// @Tags guess
// @Security BearerAuth
// @Accept json
// @Param body body placeGuessRequest true "direction: up|down"
// @Success 200 {object} apiResponse{data=pendingGuessView}
// @Failure 400 {object} apiResponse
// @Failure 401 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Failure 409 {object} apiResponse
// @Failure 503 {object} apiResponse
// @Router /api/v1/guess [post]
func (h *GuessHandler) placeGuess(c *gin.Context) {
	userID, ok := h.enrolledUser(c)
	if !ok {
		return
	}
	var req placeGuessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	dir, err := guess.ParseDirection(req.Direction)
	if err != nil {
		h.fail(c, err)
		return
	}
	p, err := h.Engine.PlaceGuess(c.Request.Context(), userID, dir)
	if err != nil {
		h.fail(c, err)
		return
	}
	Ok(c, pendingGuessView{
		Direction:      p.Direction.Wire(),
		ReferenceValue: p.ReferenceValue.String(),
		PlacedAt:       p.PlacedAt,
		SettlesAt:      p.SettlesAt,
	}, nil)
}

// @Summary Current score and pending guess
// @Description Expires a guess left unsettled past its delay before answering.
// @Tags guess
// @Security BearerAuth
// @Success 200 {object} apiResponse{data=statusView}
// @Failure 401 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/v1/status [get]
func (h *GuessHandler) status(c *gin.Context) {
	userID, ok := h.enrolledUser(c)
	if !ok {
		return
	}
	s, err := h.Engine.Status(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := statusView{Score: s.Score}
	if s.Pending != nil {
		out.PendingGuess = &pendingGuessView{
			Direction:      s.Pending.Direction.Wire(),
			ReferenceValue: s.Pending.ReferenceValue.String(),
			PlacedAt:       s.Pending.PlacedAt,
			SettlesAt:      s.Pending.SettlesAt,
		}
	}
	Ok(c, out, nil)
}

// @Summary Settlement history
// @Tags guess
// @Security BearerAuth
// @Param limit query int false "max rows (default 50)"
// @Success 200 {object} apiResponse{data=[]settlementView}
// @Failure 401 {object} apiResponse
// @Router /api/v1/history [get]
func (h *GuessHandler) history(c *gin.Context) {
	userID, ok := h.enrolledUser(c)
	if !ok {
		return
	}
	limit := 50
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	rows, err := h.Engine.History(c.Request.Context(), userID, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]settlementView, 0, len(rows))
	for _, row := range rows {
		item := settlementView{
			ID:             row.ID,
			Kind:           row.Kind,
			Direction:      strings.ToLower(row.Direction),
			ReferenceValue: row.ReferenceValue.String(),
			Outcome:        row.Outcome,
			ScoreDelta:     row.ScoreDelta,
			ScoreAfter:     row.ScoreAfter,
			PlacedAt:       row.PlacedAt.UTC(),
			SettledAt:      row.SettledAt.UTC(),
		}
		if row.SettledValue != nil {
			v := row.SettledValue.String()
			item.SettledValue = &v
		}
		out = append(out, item)
	}
	Ok(c, out, map[string]any{"limit": limit})
}

// @Summary Current BTC/USD value
// @Tags price
// @Success 200 {object} apiResponse{data=quoteView}
// @Failure 503 {object} apiResponse
// @Router /api/v1/price [get]
func (h *GuessHandler) currentPrice(c *gin.Context) {
	if h.Prices == nil {
		Error(c, http.StatusServiceUnavailable, "price source unavailable", nil)
		return
	}
	q, err := h.Prices.Current(c.Request.Context())
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("price fetch failed", zap.Error(err))
		}
		Error(c, http.StatusServiceUnavailable, "reference value unavailable", nil)
		return
	}
	Ok(c, quoteView{Value: q.Value.String(), ObservedAt: q.ObservedAt.UTC(), Source: q.Source}, nil)
}

// enrolledUser provisions the authenticated user's row on first contact.
func (h *GuessHandler) enrolledUser(c *gin.Context) (string, bool) {
	if h.Engine == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return "", false
	}
	userID, ok := auth.UserID(c)
	if !ok {
		Error(c, http.StatusUnauthorized, "unauthenticated", nil)
		return "", false
	}
	if err := h.Engine.Enroll(c.Request.Context(), userID); err != nil {
		h.fail(c, err)
		return "", false
	}
	return userID, true
}

func (h *GuessHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, guess.ErrInvalidDirection):
		Error(c, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, guess.ErrUserNotFound):
		Error(c, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, guess.ErrGuessInFlight):
		Error(c, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, guess.ErrReferenceUnavailable):
		Error(c, http.StatusServiceUnavailable, guess.ErrReferenceUnavailable.Error(), nil)
	default:
		if h.Logger != nil {
			h.Logger.Error("guess request failed", zap.String("path", c.FullPath()), zap.Error(err))
		}
		Error(c, http.StatusInternalServerError, "internal error", nil)
	}
}
