package handler

import (
	"net/http"
	"strconv"

	"cryptopulse/internal/middleware"
	"cryptopulse/internal/recurrence"
	"cryptopulse/internal/service"

	"github.com/gin-gonic/gin"
)

type RuleHandler struct {
	rules *service.RuleService
}

func NewRuleHandler(rules *service.RuleService) *RuleHandler {
	return &RuleHandler{rules: rules}
}

type createRuleRequest struct {
	CoinID        uint    `json:"coin_id" binding:"required"`
	FrequencyType string  `json:"frequency_type" binding:"required"`
	IntervalHours *int    `json:"interval_hours"`
	PreferredTime *string `json:"preferred_time"`
	PreferredDay  *string `json:"preferred_day"`
}

type updateRuleRequest struct {
	FrequencyType *string `json:"frequency_type"`
	IntervalHours *int    `json:"interval_hours"`
	PreferredTime *string `json:"preferred_time"`
	PreferredDay  *string `json:"preferred_day"`
}

func (r updateRuleRequest) patch() service.RulePatch {
	return service.RulePatch{
		FrequencyType: r.FrequencyType,
		IntervalHours: r.IntervalHours,
		PreferredTime: r.PreferredTime,
		PreferredDay:  r.PreferredDay,
	}
}

func (h *RuleHandler) Create(c *gin.Context) {
	var req createRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "coin_id and frequency_type are required")
		return
	}
	rule, err := h.rules.CreateRule(c.Request.Context(), service.CreateRuleInput{
		UserID: middleware.GetUserID(c),
		CoinID: req.CoinID,
		Spec: recurrence.Spec{
			FrequencyType: req.FrequencyType,
			IntervalHours: req.IntervalHours,
			PreferredTime: req.PreferredTime,
			PreferredDay:  req.PreferredDay,
		},
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func (h *RuleHandler) List(c *gin.Context) {
	list, err := h.rules.ListRules(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": list})
}

// Check reports whether the user has an active rule for the coin.
func (h *RuleHandler) Check(c *gin.Context) {
	coinID, ok := coinParam(c)
	if !ok {
		return
	}
	rule, found, err := h.rules.FindByUserCoin(c.Request.Context(), middleware.GetUserID(c), coinID)
	if err != nil {
		writeError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusOK, gin.H{"has_notification": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"has_notification": true, "rule": rule})
}

func (h *RuleHandler) Update(c *gin.Context) {
	var req updateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	rule, err := h.rules.UpdateRule(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), req.patch())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *RuleHandler) UpdateByCoin(c *gin.Context) {
	coinID, ok := coinParam(c)
	if !ok {
		return
	}
	var req updateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	rule, err := h.rules.UpdateRuleByCoin(c.Request.Context(), middleware.GetUserID(c), coinID, req.patch())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *RuleHandler) Toggle(c *gin.Context) {
	rule, err := h.rules.ToggleActive(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *RuleHandler) Delete(c *gin.Context) {
	if err := h.rules.DeleteRule(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *RuleHandler) DeleteByCoin(c *gin.Context) {
	coinID, ok := coinParam(c)
	if !ok {
		return
	}
	if err := h.rules.DeleteRuleByCoin(c.Request.Context(), middleware.GetUserID(c), coinID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func coinParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("coin_id"), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "coin_id must be a positive integer")
		return 0, false
	}
	return uint(id), true
}
