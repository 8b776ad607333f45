package models

import (
	"time"
)

// EntityType identifies what a mitigation is keyed on.
type EntityType string

const (
	EntityIP   EntityType = "ip"
	EntityUser EntityType = "user"
)

// Action is the concrete enforcement behavior attached to a severity.
type Action string

const (
	ActionDelay     Action = "delay"
	ActionCaptcha   Action = "captcha"
	ActionTempBlock Action = "temp_block"
	ActionBan       Action = "ban"
)

// Severity grades a proposed mitigation. One-to-one with Action by
// convention (low=delay .. critical=ban) but independently settable.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Level is the numeric enforcement strength read on the request path.
// none(0) < delay(1) < captcha(2) < temp_block(3) < ban(4).
type Level int

const (
	LevelNone      Level = 0
	LevelDelay     Level = 1
	LevelCaptcha   Level = 2
	LevelTempBlock Level = 3
	LevelBan       Level = 4
)

// Calibration decisions.
const (
	DecisionAmplify      = "AMPLIFY"
	DecisionDowngrade    = "DOWNGRADE"
	DecisionKeepOriginal = "KEEP_ORIGINAL"
)

// Case outcomes, back-filled after enforcement.
const (
	OutcomePending       = "pending"
	OutcomeResolved      = "resolved"
	OutcomeEscalated     = "escalated"
	OutcomeFalsePositive = "false_positive"
)

var actionLevels = map[Action]Level{
	ActionDelay:     LevelDelay,
	ActionCaptcha:   LevelCaptcha,
	ActionTempBlock: LevelTempBlock,
	ActionBan:       LevelBan,
}

var severityActions = map[Severity]Action{
	SeverityLow:      ActionDelay,
	SeverityMedium:   ActionCaptcha,
	SeverityHigh:     ActionTempBlock,
	SeverityCritical: ActionBan,
}

var actionSeverities = map[Action]Severity{
	ActionDelay:     SeverityLow,
	ActionCaptcha:   SeverityMedium,
	ActionTempBlock: SeverityHigh,
	ActionBan:       SeverityCritical,
}

// Level returns the numeric enforcement level for an action, or LevelNone
// for unknown values.
func (a Action) Level() Level {
	return actionLevels[a]
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	_, ok := actionLevels[a]
	return ok
}

// Action returns the conventional action for a severity grade.
func (s Severity) Action() Action {
	if a, ok := severityActions[s]; ok {
		return a
	}
	return ActionCaptcha
}

// Severity returns the conventional severity grade for an action.
func (a Action) Severity() Severity {
	if s, ok := actionSeverities[a]; ok {
		return s
	}
	return SeverityMedium
}

// Valid reports whether s is a known severity grade.
func (s Severity) Valid() bool {
	_, ok := severityActions[s]
	return ok
}

var actionOrder = []Action{ActionDelay, ActionCaptcha, ActionTempBlock, ActionBan}

// Amplify returns the next more severe action; ban stays ban.
func (a Action) Amplify() Action {
	for i, cur := range actionOrder {
		if cur == a && i+1 < len(actionOrder) {
			return actionOrder[i+1]
		}
	}
	if !a.Valid() {
		return ActionCaptcha
	}
	return ActionBan
}

// Downgrade returns the next less severe action; delay stays delay.
func (a Action) Downgrade() Action {
	for i, cur := range actionOrder {
		if cur == a && i > 0 {
			return actionOrder[i-1]
		}
	}
	return ActionDelay
}

// ParseLevel converts a state-store value to a Level. Accepts action names
// ("temp_block") and legacy severity numerals ("1".."4"); anything else is
// LevelNone so a corrupt entry can never lock out traffic harder than ban.
func ParseLevel(value string) Level {
	if lvl, ok := actionLevels[Action(value)]; ok {
		return lvl
	}
	switch value {
	case "1":
		return LevelDelay
	case "2":
		return LevelCaptcha
	case "3":
		return LevelTempBlock
	case "4":
		return LevelBan
	}
	return LevelNone
}

// MaxLevel returns the more severe of two levels.
func MaxLevel(a, b Level) Level {
	if a > b {
		return a
	}
	return b
}

// MitigationProposal is a specialist's recommendation for one entity.
// Read-only input to the calibration engine.
type MitigationProposal struct {
	EntityType  EntityType `json:"entity_type"`
	Entity      string     `json:"entity"`
	Severity    Severity   `json:"severity"`
	Mitigation  Action     `json:"mitigation"`
	Reason      string     `json:"reason"`
	SourceAgent string     `json:"source_agent"`
}

// CalibratedCase is the append-only unit of mitigation history. The
// proposal fields are never mutated after creation; only Outcome and
// Effectiveness may be back-filled once real-world results are known.
type CalibratedCase struct {
	ID   uint   `json:"id" gorm:"primaryKey"`
	UUID string `json:"uuid" gorm:"uniqueIndex"`

	EntityType  string `json:"entity_type"`
	Entity      string `json:"entity" gorm:"index"`
	Severity    string `json:"severity"`
	Mitigation  string `json:"mitigation"`
	Reason      string `json:"reason" gorm:"type:text"`
	SourceAgent string `json:"source_agent"`

	Decision         string  `json:"decision"` // AMPLIFY, DOWNGRADE, KEEP_ORIGINAL
	Reasoning        string  `json:"reasoning" gorm:"type:text"`
	Confidence       string  `json:"confidence"` // low, medium, high
	CasesAnalyzed    int     `json:"cases_analyzed"`
	AvgEffectiveness float64 `json:"avg_effectiveness"`

	Outcome       string `json:"outcome" gorm:"default:'pending';index"`
	Effectiveness *int   `json:"effectiveness"` // 0-100, nil until back-filled

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EnforcementDetails is the audit payload stored beside an enforcement
// entry under the ":details" sibling key.
type EnforcementDetails struct {
	Mitigation  Action    `json:"mitigation"`
	Severity    Severity  `json:"severity"`
	Reason      string    `json:"reason"`
	Timestamp   time.Time `json:"timestamp"`
	SourceAgent string    `json:"source_agent"`
}
