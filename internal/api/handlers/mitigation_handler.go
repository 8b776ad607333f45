package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/vigil-sec/vigil/internal/api/middleware"
	"github.com/vigil-sec/vigil/internal/models"
	"github.com/vigil-sec/vigil/internal/store"
	"github.com/vigil-sec/vigil/internal/telemetry"
)

const defaultListLimit = 100

// MitigationHandler exposes the operator API: active enforcements,
// calibrated case history, and the raw request log.
type MitigationHandler struct {
	db    *gorm.DB
	store store.Store
	sink  *telemetry.Sink
}

func NewMitigationHandler(db *gorm.DB, st store.Store, sink *telemetry.Sink) *MitigationHandler {
	return &MitigationHandler{db: db, store: st, sink: sink}
}

type activeMitigation struct {
	Key     string                     `json:"key"`
	Action  models.Action              `json:"action"`
	Details *models.EnforcementDetails `json:"details,omitempty"`
}

// ListMitigations returns every live enforcement entry with its audit
// details where available.
func (h *MitigationHandler) ListMitigations(c *gin.Context) {
	active, err := h.store.Active(c.Request.Context())
	if err != nil {
		middleware.GetRequestLogger(c).WithField("error", err.Error()).Error("failed to list active mitigations")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "state store unavailable"})
		return
	}

	out := make([]activeMitigation, 0, len(active))
	for key, action := range active {
		entry := activeMitigation{Key: key, Action: action}
		if et, entity, ok := store.SplitKey(key); ok {
			if details, err := h.store.Details(c.Request.Context(), et, entity); err == nil {
				entry.Details = details
			}
		}
		out = append(out, entry)
	}

	c.JSON(http.StatusOK, gin.H{"mitigations": out, "count": len(out)})
}

// DeleteMitigation lifts an enforcement entry early.
func (h *MitigationHandler) DeleteMitigation(c *gin.Context) {
	et := models.EntityType(c.Param("entity_type"))
	if et != models.EntityIP && et != models.EntityUser {
		c.JSON(http.StatusBadRequest, gin.H{"error": "entity_type must be ip or user"})
		return
	}
	entity := c.Param("entity")

	if err := h.store.Delete(c.Request.Context(), et, entity); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "state store unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// ListCases returns calibrated cases, newest first. Optional filters:
// ?outcome=pending and ?entity=10.0.0.5.
func (h *MitigationHandler) ListCases(c *gin.Context) {
	q := h.db.Order("created_at DESC").Limit(queryLimit(c))
	if outcome := c.Query("outcome"); outcome != "" {
		q = q.Where("outcome = ?", outcome)
	}
	if entity := c.Query("entity"); entity != "" {
		q = q.Where("entity = ?", entity)
	}

	var cases []models.CalibratedCase
	if err := q.Find(&cases).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load cases"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cases": cases, "count": len(cases)})
}

type outcomeRequest struct {
	Outcome       string `json:"outcome"`
	Effectiveness *int   `json:"effectiveness"`
}

func validOutcome(o string) bool {
	switch o {
	case models.OutcomeResolved, models.OutcomeEscalated, models.OutcomeFalsePositive, models.OutcomePending:
		return true
	}
	return false
}

// UpdateOutcome lets an operator back-fill what actually happened.
// Only outcome and effectiveness are mutable; the proposal fields stay
// as the pipeline wrote them.
func (h *MitigationHandler) UpdateOutcome(c *gin.Context) {
	var req outcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if !validOutcome(req.Outcome) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "outcome must be pending, resolved, escalated or false_positive"})
		return
	}
	if req.Effectiveness != nil && (*req.Effectiveness < 0 || *req.Effectiveness > 100) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "effectiveness must be between 0 and 100"})
		return
	}

	var record models.CalibratedCase
	if err := h.db.First(&record, "uuid = ?", c.Param("uuid")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "case not found"})
		return
	}

	updates := map[string]interface{}{"outcome": req.Outcome}
	if req.Effectiveness != nil {
		updates["effectiveness"] = *req.Effectiveness
	}
	if err := h.db.Model(&record).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update case"})
		return
	}

	c.JSON(http.StatusOK, record)
}

// ListRequests returns recently captured request records.
func (h *MitigationHandler) ListRequests(c *gin.Context) {
	records, err := h.sink.Recent(queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load requests"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": records, "count": len(records)})
}

func queryLimit(c *gin.Context) int {
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			return n
		}
	}
	return defaultListLimit
}
