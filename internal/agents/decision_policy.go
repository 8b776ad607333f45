package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vigil-sec/vigil/internal/history"
	"github.com/vigil-sec/vigil/internal/llm"
	"github.com/vigil-sec/vigil/internal/models"
)

const (
	amplifyBelow   = 50.0
	downgradeAbove = 80.0
)

// EffectivenessPolicy is the default calibration policy: a pure
// threshold rule over the average effectiveness of similar past cases.
// It needs no LLM round trip and its decisions are reproducible.
type EffectivenessPolicy struct{}

func (EffectivenessPolicy) Decide(_ context.Context, proposal models.MitigationProposal, similar []history.Case) (Calibration, error) {
	scored := scoredCases(similar)
	if len(scored) == 0 {
		return Calibration{
			Decision:   models.DecisionKeepOriginal,
			Severity:   proposal.Severity,
			Mitigation: proposal.Mitigation,
			Reasoning:  "no historical data for similar cases, keeping original mitigation",
			Confidence: "low",
		}, nil
	}

	total := 0
	for _, c := range scored {
		total += *c.Meta.Effectiveness
	}
	avg := float64(total) / float64(len(scored))

	confidence := "medium"
	if len(scored) >= 3 {
		confidence = "high"
	}

	cal := Calibration{
		Severity:         proposal.Severity,
		Mitigation:       proposal.Mitigation,
		Confidence:       confidence,
		CasesAnalyzed:    len(scored),
		AvgEffectiveness: avg,
	}

	switch {
	case avg < amplifyBelow:
		cal.Decision = models.DecisionAmplify
		cal.Mitigation = proposal.Mitigation.Amplify()
		cal.Severity = cal.Mitigation.Severity()
		cal.Reasoning = fmt.Sprintf("similar mitigations averaged %.1f%% effectiveness across %d cases, increasing severity", avg, len(scored))
	case avg > downgradeAbove:
		cal.Decision = models.DecisionDowngrade
		cal.Mitigation = proposal.Mitigation.Downgrade()
		cal.Severity = cal.Mitigation.Severity()
		cal.Reasoning = fmt.Sprintf("similar mitigations averaged %.1f%% effectiveness across %d cases, reducing friction", avg, len(scored))
	default:
		cal.Decision = models.DecisionKeepOriginal
		cal.Reasoning = fmt.Sprintf("similar mitigations averaged %.1f%% effectiveness across %d cases, keeping original", avg, len(scored))
	}
	return cal, nil
}

func scoredCases(similar []history.Case) []history.Case {
	out := make([]history.Case, 0, len(similar))
	for _, c := range similar {
		if c.Meta.Effectiveness != nil {
			out = append(out, c)
		}
	}
	return out
}

// LLMPolicy delegates the calibration decision to a model, feeding it
// the proposal and a digest of similar past cases. Selected with
// VIGIL_CALIBRATION_POLICY=llm.
type LLMPolicy struct {
	llm llm.Client
}

func NewLLMPolicy(client llm.Client) *LLMPolicy {
	return &LLMPolicy{llm: client}
}

type llmDecision struct {
	Decision             string `json:"decision"`
	CalibratedSeverity   string `json:"calibrated_severity"`
	CalibratedMitigation string `json:"calibrated_mitigation"`
	Reasoning            string `json:"reasoning"`
	Confidence           string `json:"confidence"`
}

func (p *LLMPolicy) Decide(ctx context.Context, proposal models.MitigationProposal, similar []history.Case) (Calibration, error) {
	scored := scoredCases(similar)
	avg := 0.0
	for _, c := range scored {
		avg += float64(*c.Meta.Effectiveness)
	}
	if len(scored) > 0 {
		avg /= float64(len(scored))
	}

	userPrompt := fmt.Sprintf(`CURRENT MITIGATION TO CALIBRATE:
Entity Type: %s
Entity: %s
Original Severity: %s
Original Mitigation: %s
Threat Reason: %s
Source Agent: %s

HISTORICAL DATA:
%s

Based on this historical effectiveness data, decide whether to AMPLIFY, DOWNGRADE, or KEEP_ORIGINAL for this mitigation.
Return your decision in the specified JSON format.`,
		proposal.EntityType, proposal.Entity, proposal.Severity, proposal.Mitigation,
		proposal.Reason, proposal.SourceAgent, historicalContext(scored, avg))

	out, err := p.llm.Complete(ctx, llm.Request{System: calibrationPrompt, User: userPrompt, JSONMode: true})
	if err != nil {
		return Calibration{}, fmt.Errorf("calibration completion: %w", err)
	}

	var decision llmDecision
	if err := json.Unmarshal([]byte(llm.CleanOutput(out)), &decision); err != nil {
		return Calibration{}, fmt.Errorf("parsing calibration decision: %w", err)
	}

	cal := Calibration{
		Decision:         decision.Decision,
		Severity:         models.Severity(decision.CalibratedSeverity),
		Mitigation:       models.Action(decision.CalibratedMitigation),
		Reasoning:        decision.Reasoning,
		Confidence:       decision.Confidence,
		CasesAnalyzed:    len(scored),
		AvgEffectiveness: avg,
	}
	switch cal.Decision {
	case models.DecisionAmplify, models.DecisionDowngrade, models.DecisionKeepOriginal:
	default:
		cal.Decision = models.DecisionKeepOriginal
	}
	if !cal.Mitigation.Valid() {
		cal.Mitigation = proposal.Mitigation
	}
	if !cal.Severity.Valid() {
		cal.Severity = cal.Mitigation.Severity()
	}
	if cal.Confidence == "" {
		cal.Confidence = "medium"
	}
	return cal, nil
}

func historicalContext(scored []history.Case, avg float64) string {
	if len(scored) == 0 {
		return "No historical data available for similar cases."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Historical analysis of %d similar cases:\n", len(scored))
	fmt.Fprintf(&b, "- Average effectiveness: %.1f%%\n\nPast mitigation details:\n", avg)
	for i, c := range scored {
		if i == similarCasesK {
			break
		}
		fmt.Fprintf(&b, "%d. Mitigation: %s (Severity: %s)\n   Result: %s\n   Effectiveness: %d%%\n   Reason: %s\n\n",
			i+1, c.Meta.Mitigation, c.Meta.Severity, c.Meta.Outcome, *c.Meta.Effectiveness, truncateForLog(c.Meta.Reason))
	}
	return b.String()
}
