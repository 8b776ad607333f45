package agents

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/vigil-sec/vigil/internal/history"
	"github.com/vigil-sec/vigil/internal/logger"
	"github.com/vigil-sec/vigil/internal/models"
	"github.com/vigil-sec/vigil/internal/telemetry"
)

// Sweeper closes the feedback loop: once a calibrated case has aged
// past the review window it compares the entity's traffic before and
// after enforcement and back-fills outcome and effectiveness. Resolved
// cases are appended to the history store so future calibrations see
// scored precedents.
type Sweeper struct {
	db      *gorm.DB
	sink    *telemetry.Sink
	history history.Store
	window  time.Duration
}

func NewSweeper(db *gorm.DB, sink *telemetry.Sink, hist history.Store, window time.Duration) *Sweeper {
	return &Sweeper{db: db, sink: sink, history: hist, window: window}
}

// Sweep resolves every pending case older than the review window.
func (s *Sweeper) Sweep(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.window)

	var cases []models.CalibratedCase
	if err := s.db.Where("outcome = ? AND created_at < ?", models.OutcomePending, cutoff).Find(&cases).Error; err != nil {
		return fmt.Errorf("loading pending cases: %w", err)
	}

	for i := range cases {
		if err := s.resolve(ctx, &cases[i]); err != nil {
			logger.WithFields(map[string]interface{}{
				"case":  cases[i].UUID,
				"error": err.Error(),
			}).Warn("failed to resolve case outcome")
		}
	}

	if len(cases) > 0 {
		logger.WithFields(map[string]interface{}{"cases": len(cases)}).Info("outcome sweep complete")
	}
	return nil
}

func (s *Sweeper) resolve(ctx context.Context, c *models.CalibratedCase) error {
	enforced := c.CreatedAt
	before, err := s.sink.CountBetween(c.EntityType, c.Entity, enforced.Add(-s.window), enforced)
	if err != nil {
		return err
	}
	after, err := s.sink.CountBetween(c.EntityType, c.Entity, enforced, enforced.Add(s.window))
	if err != nil {
		return err
	}

	effectiveness := trafficReduction(before, after)
	outcome := models.OutcomeResolved
	if effectiveness < 50 {
		outcome = models.OutcomeEscalated
	}

	if err := s.db.Model(c).Updates(map[string]interface{}{
		"outcome":       outcome,
		"effectiveness": effectiveness,
	}).Error; err != nil {
		return err
	}

	now := time.Now().UTC()
	histCase := history.Case{
		ID:   history.NewCaseID(c.Entity, now),
		Text: c.Reason,
		Meta: history.CaseMeta{
			EntityType:    c.EntityType,
			Entity:        c.Entity,
			Severity:      c.Severity,
			Mitigation:    c.Mitigation,
			Reason:        c.Reason,
			SourceAgent:   c.SourceAgent,
			Decision:      c.Decision,
			Confidence:    c.Confidence,
			Outcome:       outcome,
			Effectiveness: &effectiveness,
			Timestamp:     now.Format(time.RFC3339),
		},
	}
	if err := s.history.Add(ctx, histCase); err != nil {
		return fmt.Errorf("appending resolved case to history: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"case":          c.UUID,
		"entity":        c.Entity,
		"before":        before,
		"after":         after,
		"effectiveness": effectiveness,
		"outcome":       outcome,
	}).Info("case outcome resolved")
	return nil
}

// trafficReduction scores a mitigation by how much it cut the entity's
// traffic, 0 to 100. No traffic either side counts as fully effective.
func trafficReduction(before, after int64) int {
	if before == 0 {
		if after == 0 {
			return 100
		}
		return 0
	}
	reduction := float64(before-after) / float64(before) * 100
	if reduction < 0 {
		return 0
	}
	if reduction > 100 {
		return 100
	}
	return int(reduction)
}
