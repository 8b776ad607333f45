package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vigil-sec/vigil/internal/history"
	"github.com/vigil-sec/vigil/internal/logger"
	"github.com/vigil-sec/vigil/internal/metrics"
	"github.com/vigil-sec/vigil/internal/models"
	"github.com/vigil-sec/vigil/internal/store"
)

const similarCasesK = 5

// Alerter delivers operational alerts. Implemented by notify.Notifier.
type Alerter interface {
	Alert(title, message string)
}

// Calibration is a policy's verdict on one proposal.
type Calibration struct {
	Decision         string
	Severity         models.Severity
	Mitigation       models.Action
	Reasoning        string
	Confidence       string
	CasesAnalyzed    int
	AvgEffectiveness float64
}

// DecisionPolicy turns a proposal and its similar past cases into a
// calibration. Policies must fail soft: an error makes the caller keep
// the original proposal with low confidence.
type DecisionPolicy interface {
	Decide(ctx context.Context, proposal models.MitigationProposal, similar []history.Case) (Calibration, error)
}

// Calibrator is the last stage of the pipeline: it adjusts proposals
// against historical effectiveness, records the decision, and writes
// the enforcement entry the interceptor acts on.
type Calibrator struct {
	history  history.Store
	store    store.Store
	db       *gorm.DB
	notifier Alerter
	policy   DecisionPolicy
	ttl      time.Duration
}

func NewCalibrator(hist history.Store, st store.Store, db *gorm.DB, notifier Alerter, policy DecisionPolicy, ttl time.Duration) *Calibrator {
	return &Calibrator{history: hist, store: st, db: db, notifier: notifier, policy: policy, ttl: ttl}
}

// Process calibrates, persists and enforces each proposal. Processing
// is idempotent per entity: enforcement entries are overwritten, case
// history only ever appends.
func (c *Calibrator) Process(ctx context.Context, proposals []models.MitigationProposal, source string) {
	for _, proposal := range proposals {
		if proposal.SourceAgent == "" {
			proposal.SourceAgent = source
		}
		c.processOne(ctx, proposal)
	}
}

func (c *Calibrator) processOne(ctx context.Context, proposal models.MitigationProposal) {
	entry := logger.WithFields(map[string]interface{}{
		"entity_type": proposal.EntityType,
		"entity":      proposal.Entity,
		"proposed":    proposal.Mitigation,
		"source":      proposal.SourceAgent,
	})

	similar := c.querySimilar(ctx, proposal)

	cal, err := c.policy.Decide(ctx, proposal, similar)
	if err != nil {
		entry.WithFields(map[string]interface{}{"error": err.Error()}).
			Warn("calibration policy failed, keeping original mitigation")
		cal = Calibration{
			Decision:   models.DecisionKeepOriginal,
			Severity:   proposal.Severity,
			Mitigation: proposal.Mitigation,
			Reasoning:  "policy error, keeping original mitigation",
			Confidence: "low",
		}
	}
	metrics.IncCalibration(cal.Decision)

	entry.WithFields(map[string]interface{}{
		"decision":   cal.Decision,
		"calibrated": cal.Mitigation,
		"confidence": cal.Confidence,
	}).Info("mitigation calibrated")

	record := models.CalibratedCase{
		UUID:             uuid.New().String(),
		EntityType:       string(proposal.EntityType),
		Entity:           proposal.Entity,
		Severity:         string(cal.Severity),
		Mitigation:       string(cal.Mitigation),
		Reason:           proposal.Reason,
		SourceAgent:      proposal.SourceAgent,
		Decision:         cal.Decision,
		Reasoning:        cal.Reasoning,
		Confidence:       cal.Confidence,
		CasesAnalyzed:    cal.CasesAnalyzed,
		AvgEffectiveness: cal.AvgEffectiveness,
		Outcome:          models.OutcomePending,
	}
	c.persist(ctx, &record)
	c.enforce(ctx, proposal, cal)
}

func (c *Calibrator) querySimilar(ctx context.Context, proposal models.MitigationProposal) []history.Case {
	query := fmt.Sprintf("%s %s", proposal.Reason, proposal.Entity)
	similar, err := c.history.Query(ctx, query, similarCasesK)
	if err != nil {
		logger.WithFields(map[string]interface{}{"error": err.Error()}).
			Warn("history query failed, calibrating without context")
		return nil
	}
	return similar
}

// persist appends the case to both stores: the history store feeds
// future calibrations, the relational mirror feeds the admin API.
func (c *Calibrator) persist(ctx context.Context, record *models.CalibratedCase) {
	now := time.Now().UTC()
	histCase := history.Case{
		ID:   history.NewCaseID(record.Entity, now),
		Text: record.Reason,
		Meta: history.CaseMeta{
			EntityType:  record.EntityType,
			Entity:      record.Entity,
			Severity:    record.Severity,
			Mitigation:  record.Mitigation,
			Reason:      record.Reason,
			SourceAgent: record.SourceAgent,
			Decision:    record.Decision,
			Confidence:  record.Confidence,
			Outcome:     models.OutcomePending,
			Timestamp:   now.Format(time.RFC3339),
		},
	}
	if err := c.history.Add(ctx, histCase); err != nil {
		metrics.IncPersistenceFailure()
		logger.WithFields(map[string]interface{}{"error": err.Error()}).Error("failed to persist case to history store")
		c.notifier.Alert("Case persistence failure",
			fmt.Sprintf("History store write failed for %s %s: %v", record.EntityType, record.Entity, err))
	}

	if err := c.db.Create(record).Error; err != nil {
		metrics.IncPersistenceFailure()
		logger.WithFields(map[string]interface{}{"error": err.Error()}).Error("failed to persist calibrated case")
	}
}

func (c *Calibrator) enforce(ctx context.Context, proposal models.MitigationProposal, cal Calibration) {
	details := models.EnforcementDetails{
		Mitigation:  cal.Mitigation,
		Severity:    cal.Severity,
		Reason:      proposal.Reason,
		Timestamp:   time.Now().UTC(),
		SourceAgent: proposal.SourceAgent,
	}
	if err := c.store.Set(ctx, proposal.EntityType, proposal.Entity, cal.Mitigation, details, c.ttl); err != nil {
		metrics.IncPersistenceFailure()
		logger.WithFields(map[string]interface{}{
			"entity": proposal.Entity,
			"error":  err.Error(),
		}).Error("enforcement write failed, mitigation will not be applied")
		c.notifier.Alert("Enforcement write failure",
			fmt.Sprintf("Mitigation %s for %s %s could not be written: %v",
				cal.Mitigation, proposal.EntityType, proposal.Entity, err))
		return
	}
	metrics.IncEnforcementWrite()
}
