package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vigil-sec/vigil/internal/llm"
	"github.com/vigil-sec/vigil/internal/logger"
	"github.com/vigil-sec/vigil/internal/models"
)

// HistoryFetcher resolves a specialist's free-text history request into
// telemetry lines. telemetry.QueryTool satisfies it.
type HistoryFetcher interface {
	Fetch(query string) ([]string, error)
}

// Specialist analyzes one category of traffic for threats. The three
// categories differ only in their system prompt; the analysis protocol
// is shared.
type Specialist struct {
	name   string
	prompt string
	llm    llm.Client
	tool   HistoryFetcher
}

func NewSpecialist(name, prompt string, client llm.Client, tool HistoryFetcher) *Specialist {
	return &Specialist{name: name, prompt: prompt, llm: client, tool: tool}
}

// NewAuthSpecialist analyzes login, registration and account traffic.
func NewAuthSpecialist(client llm.Client, tool HistoryFetcher) *Specialist {
	return NewSpecialist("auth", authSpecialistPrompt, client, tool)
}

// NewSearchSpecialist analyzes query and data-retrieval traffic.
func NewSearchSpecialist(client llm.Client, tool HistoryFetcher) *Specialist {
	return NewSpecialist("search", searchSpecialistPrompt, client, tool)
}

// NewGeneralSpecialist analyzes everything the other two do not cover.
func NewGeneralSpecialist(client llm.Client, tool HistoryFetcher) *Specialist {
	return NewSpecialist("general", generalSpecialistPrompt, client, tool)
}

func (s *Specialist) Name() string { return s.name }

type toolCall struct {
	Tool  string `json:"tool"`
	Query string `json:"query"`
}

// Analyze runs the two-pass analysis protocol: the first pass may
// request history exactly once, the second must produce mitigations.
// A tool failure is not fatal; analysis continues on the original logs.
func (s *Specialist) Analyze(ctx context.Context, lines []string) ([]models.MitigationProposal, error) {
	if len(lines) == 0 {
		return nil, nil
	}

	userPrompt := fmt.Sprintf("Analyze these API request logs for security threats:\n\n%s", strings.Join(lines, "\n"))
	out, err := s.llm.Complete(ctx, llm.Request{System: s.prompt, User: userPrompt})
	if err != nil {
		return nil, fmt.Errorf("%s specialist analysis: %w", s.name, err)
	}
	out = llm.CleanOutput(out)

	if call := parseToolCall(out); call != nil {
		extended := lines
		if s.tool != nil && call.Query != "" {
			fetched, err := s.tool.Fetch(call.Query)
			if err != nil {
				logger.WithFields(map[string]interface{}{
					"agent": s.name,
					"error": err.Error(),
				}).Warn("history fetch failed, analyzing original logs only")
			} else {
				logger.WithFields(map[string]interface{}{
					"agent":   s.name,
					"query":   call.Query,
					"fetched": len(fetched),
				}).Debug("extended analysis batch with history")
				extended = append(append([]string{}, lines...), fetched...)
			}
		}

		second := fmt.Sprintf("Now analyze the complete dataset including the additional history. Do not call any tools; return the final JSON only.\n\n%s", strings.Join(extended, "\n"))
		out, err = s.llm.Complete(ctx, llm.Request{System: s.prompt, User: second})
		if err != nil {
			return nil, fmt.Errorf("%s specialist second pass: %w", s.name, err)
		}
		out = llm.CleanOutput(out)
	}

	proposals, err := parseProposals(out, s.name)
	if err != nil {
		return nil, fmt.Errorf("%s specialist output: %w", s.name, err)
	}
	return proposals, nil
}

func parseToolCall(out string) *toolCall {
	var call toolCall
	if err := json.Unmarshal([]byte(out), &call); err != nil {
		return nil
	}
	if call.Tool != "fetch_history" {
		return nil
	}
	return &call
}

type rawProposal struct {
	EntityType string `json:"entity_type"`
	Entity     string `json:"entity"`
	Severity   string `json:"severity"`
	Mitigation string `json:"mitigation"`
	Reason     string `json:"reason"`
}

// parseProposals accepts the shapes models actually produce: a bare
// array, or an object wrapping it under "mitigations".
func parseProposals(out, source string) ([]models.MitigationProposal, error) {
	var raw []rawProposal
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		var wrapped struct {
			Mitigations []rawProposal `json:"mitigations"`
		}
		if err := json.Unmarshal([]byte(out), &wrapped); err != nil {
			return nil, fmt.Errorf("unparseable response: %s", truncateForLog(out))
		}
		raw = wrapped.Mitigations
	}

	proposals := make([]models.MitigationProposal, 0, len(raw))
	for _, r := range raw {
		if r.Entity == "" {
			continue
		}

		et := models.EntityType(r.EntityType)
		if et != models.EntityIP && et != models.EntityUser {
			et = models.EntityIP
		}
		severity := models.Severity(r.Severity)
		if !severity.Valid() {
			severity = models.SeverityLow
		}
		action := models.Action(r.Mitigation)
		if !action.Valid() {
			action = severity.Action()
		}

		proposals = append(proposals, models.MitigationProposal{
			EntityType:  et,
			Entity:      r.Entity,
			Severity:    severity,
			Mitigation:  action,
			Reason:      r.Reason,
			SourceAgent: source,
		})
	}
	return proposals, nil
}

func truncateForLog(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
