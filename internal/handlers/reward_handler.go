package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"reward-ledger/internal/auth"
	"reward-ledger/internal/services"
)

// RewardHandler exposes reward application
type RewardHandler struct {
	rewards *services.RewardService
	admin   *services.AdminService
	clock   services.Clock
}

func NewRewardHandler(rewards *services.RewardService, admin *services.AdminService, clock services.Clock) *RewardHandler {
	if clock == nil {
		clock = services.SystemClock{}
	}
	return &RewardHandler{rewards: rewards, admin: admin, clock: clock}
}

// ApplyReward grants a reward on behalf of an event source. Only ledger operators may call it.
// POST /api/admin/rewards
func (h *RewardHandler) ApplyReward(c *gin.Context) {
	adminID, _ := auth.GetUserID(c)
	if err := h.admin.RequireOperator(c.Request.Context(), adminID); err != nil {
		respondError(c, err)
		return
	}

	var req struct {
		UserID         string                 `json:"user_id" binding:"required"`
		EventType      string                 `json:"event_type" binding:"required"`
		IdempotencyKey string                 `json:"idempotency_key" binding:"required"`
		Metadata       map[string]interface{} `json:"metadata"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.apply(c, req.UserID, req.EventType, req.Metadata, req.IdempotencyKey)
}

// DailyCheckin grants the caller's daily check-in, once per UTC day
// POST /api/rewards/checkin
func (h *RewardHandler) DailyCheckin(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	day := h.clock.Now().UTC().Format("2006-01-02")
	key := fmt.Sprintf("daily_checkin:%s:%s", userID, day)

	h.apply(c, userID, "daily_checkin", map[string]interface{}{"source": "api"}, key)
}

func (h *RewardHandler) apply(c *gin.Context, userID, eventType string, metadata map[string]interface{}, key string) {
	entry, err := h.rewards.ApplyReward(c.Request.Context(), userID, eventType, metadata, key)
	if errors.Is(err, services.ErrPreviouslyFailed) && entry != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": entry.ErrorMessage,
			"data":  entry,
		})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    entry,
	})
}

// GetSchedule returns the reward amounts of the current tier
// GET /api/rewards/schedule
func (h *RewardHandler) GetSchedule(c *gin.Context) {
	schedule, err := h.rewards.CurrentSchedule(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	paused, err := h.rewards.IsPaused(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    schedule,
		"paused":  paused,
	})
}
