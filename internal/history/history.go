package history

import (
	"context"
	"time"
)

// CaseMeta is the structured metadata stored alongside a case document.
type CaseMeta struct {
	EntityType    string `json:"entity_type"`
	Entity        string `json:"entity"`
	Severity      string `json:"severity"`
	Mitigation    string `json:"mitigation"`
	Reason        string `json:"reason"`
	SourceAgent   string `json:"source_agent"`
	Decision      string `json:"decision"`
	Confidence    string `json:"confidence"`
	Outcome       string `json:"outcome"`
	Effectiveness *int   `json:"effectiveness,omitempty"`
	Timestamp     string `json:"timestamp"`
}

// Case is one stored incident with its similarity score when returned
// from a query. Higher Score means more similar.
type Case struct {
	ID    string   `json:"id"`
	Text  string   `json:"text"`
	Score float64  `json:"score"`
	Meta  CaseMeta `json:"meta"`
}

// Stats summarizes the case collection.
type Stats struct {
	Count int `json:"count"`
}

// Store holds past mitigation cases and retrieves the most similar ones
// for a free-text query.
type Store interface {
	Add(ctx context.Context, c Case) error
	Query(ctx context.Context, query string, k int) ([]Case, error)
	All(ctx context.Context) ([]Case, error)
	Stats(ctx context.Context) (Stats, error)
}

// NewCaseID builds a stable-format case ID from entity and time.
func NewCaseID(entity string, at time.Time) string {
	return "case_" + entity + "_" + at.UTC().Format("20060102T150405.000000000")
}
