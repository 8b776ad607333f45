package agents

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/vigil-sec/vigil/internal/history"
	"github.com/vigil-sec/vigil/internal/models"
	"github.com/vigil-sec/vigil/internal/store"
)

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []string
}

func (a *recordingAlerter) Alert(title, _ string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, title)
}

type erroringPolicy struct{}

func (erroringPolicy) Decide(context.Context, models.MitigationProposal, []history.Case) (Calibration, error) {
	return Calibration{}, errors.New("policy exploded")
}

type erroringStore struct {
	store.Store
}

func (erroringStore) Set(context.Context, models.EntityType, string, models.Action, models.EnforcementDetails, time.Duration) error {
	return errors.New("state store write refused")
}

func setupCalibrationTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.CalibratedCase{}))
	return db
}

func TestCalibrator_ProcessEnforcesAndPersists(t *testing.T) {
	db := setupCalibrationTestDB(t)
	hist := history.NewMemoryStore()
	st := store.NewLocalStore()
	alerter := &recordingAlerter{}

	c := NewCalibrator(hist, st, db, alerter, EffectivenessPolicy{}, time.Hour)
	ctx := context.Background()

	c.Process(ctx, []models.MitigationProposal{{
		EntityType: models.EntityIP,
		Entity:     "10.0.0.5",
		Severity:   models.SeverityHigh,
		Mitigation: models.ActionTempBlock,
		Reason:     "100 failed logins in 2 minutes",
	}}, "auth")

	// Enforcement entry is live with its audit details.
	action, ok, err := st.Get(ctx, models.EntityIP, "10.0.0.5")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.ActionTempBlock, action)

	details, err := st.Details(ctx, models.EntityIP, "10.0.0.5")
	require.NoError(t, err)
	require.NotNil(t, details)
	assert.Equal(t, "100 failed logins in 2 minutes", details.Reason)
	assert.Equal(t, "auth", details.SourceAgent)

	// Relational mirror for the admin API.
	var cases []models.CalibratedCase
	require.NoError(t, db.Find(&cases).Error)
	require.Len(t, cases, 1)
	assert.NotEmpty(t, cases[0].UUID)
	assert.Equal(t, models.DecisionKeepOriginal, cases[0].Decision)
	assert.Equal(t, models.OutcomePending, cases[0].Outcome)
	assert.Equal(t, "temp_block", cases[0].Mitigation)

	// Case history for future calibrations.
	stats, err := hist.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Count)

	assert.Empty(t, alerter.alerts)
}

func TestCalibrator_AmplifiesWithIneffectiveHistory(t *testing.T) {
	db := setupCalibrationTestDB(t)
	hist := history.NewMemoryStore()
	st := store.NewLocalStore()
	ctx := context.Background()

	low := 20
	require.NoError(t, hist.Add(ctx, history.Case{
		ID:   "case_old",
		Text: "100 failed logins in 2 minutes from 10.0.0.5",
		Meta: history.CaseMeta{Mitigation: "captcha", Outcome: models.OutcomeEscalated, Effectiveness: &low},
	}))

	c := NewCalibrator(hist, st, db, &recordingAlerter{}, EffectivenessPolicy{}, time.Hour)
	c.Process(ctx, []models.MitigationProposal{{
		EntityType: models.EntityIP,
		Entity:     "10.0.0.5",
		Severity:   models.SeverityMedium,
		Mitigation: models.ActionCaptcha,
		Reason:     "100 failed logins in 2 minutes",
	}}, "auth")

	action, ok, err := st.Get(ctx, models.EntityIP, "10.0.0.5")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.ActionTempBlock, action, "ineffective history must amplify the proposal")

	var cases []models.CalibratedCase
	require.NoError(t, db.Find(&cases).Error)
	require.Len(t, cases, 1)
	assert.Equal(t, models.DecisionAmplify, cases[0].Decision)
	assert.Equal(t, 1, cases[0].CasesAnalyzed)
}

func TestCalibrator_PolicyErrorKeepsOriginal(t *testing.T) {
	db := setupCalibrationTestDB(t)
	st := store.NewLocalStore()
	ctx := context.Background()

	c := NewCalibrator(history.NewMemoryStore(), st, db, &recordingAlerter{}, erroringPolicy{}, time.Hour)
	c.Process(ctx, []models.MitigationProposal{{
		EntityType: models.EntityUser,
		Entity:     "mallory",
		Severity:   models.SeverityHigh,
		Mitigation: models.ActionTempBlock,
		Reason:     "credential stuffing",
	}}, "auth")

	action, ok, err := st.Get(ctx, models.EntityUser, "mallory")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.ActionTempBlock, action, "policy failure must not lose the original mitigation")

	var kept models.CalibratedCase
	require.NoError(t, db.First(&kept).Error)
	assert.Equal(t, models.DecisionKeepOriginal, kept.Decision)
	assert.Equal(t, "low", kept.Confidence)
}

func TestCalibrator_EnforcementFailureAlerts(t *testing.T) {
	db := setupCalibrationTestDB(t)
	alerter := &recordingAlerter{}

	c := NewCalibrator(history.NewMemoryStore(), erroringStore{}, db, alerter, EffectivenessPolicy{}, time.Hour)
	c.Process(context.Background(), []models.MitigationProposal{{
		EntityType: models.EntityIP,
		Entity:     "6.6.6.6",
		Severity:   models.SeverityCritical,
		Mitigation: models.ActionBan,
		Reason:     "ddos",
	}}, "general")

	require.Len(t, alerter.alerts, 1)
	assert.Equal(t, "Enforcement write failure", alerter.alerts[0])
}

func TestCalibrator_ReprocessingOverwritesEnforcement(t *testing.T) {
	db := setupCalibrationTestDB(t)
	st := store.NewLocalStore()
	ctx := context.Background()

	c := NewCalibrator(history.NewMemoryStore(), st, db, &recordingAlerter{}, EffectivenessPolicy{}, time.Hour)
	proposal := models.MitigationProposal{
		EntityType: models.EntityIP,
		Entity:     "10.0.0.5",
		Severity:   models.SeverityLow,
		Mitigation: models.ActionDelay,
		Reason:     "rate abuse",
	}
	c.Process(ctx, []models.MitigationProposal{proposal}, "general")

	proposal.Mitigation = models.ActionBan
	proposal.Severity = models.SeverityCritical
	c.Process(ctx, []models.MitigationProposal{proposal}, "general")

	action, ok, err := st.Get(ctx, models.EntityIP, "10.0.0.5")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.ActionBan, action, "newer enforcement overwrites the older one")

	var count int64
	require.NoError(t, db.Model(&models.CalibratedCase{}).Count(&count).Error)
	assert.EqualValues(t, 2, count, "case history appends, never overwrites")
}
