package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/vigil-sec/vigil/internal/llm"
	"github.com/vigil-sec/vigil/internal/logger"
	"github.com/vigil-sec/vigil/internal/metrics"
	"github.com/vigil-sec/vigil/internal/models"
	"github.com/vigil-sec/vigil/internal/telemetry"
)

// Processor receives calibration work. Implemented by Calibrator.
type Processor interface {
	Process(ctx context.Context, proposals []models.MitigationProposal, source string)
}

// Orchestrator classifies telemetry batches and routes each category to
// its specialist. It is the entry point of the analysis pipeline and is
// invoked by the telemetry batcher on batch flush.
type Orchestrator struct {
	llm         llm.Client
	specialists map[string]*Specialist
	calibrator  Processor
}

func NewOrchestrator(client llm.Client, calibrator Processor, specialists ...*Specialist) *Orchestrator {
	byName := make(map[string]*Specialist, len(specialists))
	for _, s := range specialists {
		byName[s.Name()] = s
	}
	return &Orchestrator{llm: client, specialists: byName, calibrator: calibrator}
}

// HandleBatch classifies a batch and dispatches each category to its
// specialist concurrently. Classification failures drop the batch; the
// next batch starts clean.
func (o *Orchestrator) HandleBatch(ctx context.Context, batch []models.RequestRecord) {
	if len(batch) == 0 {
		return
	}

	lines := telemetry.Dedup(batch)
	logger.WithFields(map[string]interface{}{
		"records": len(batch),
		"lines":   len(lines),
	}).Info("classifying telemetry batch")

	buckets, err := o.classify(ctx, lines)
	if err != nil {
		metrics.IncClassifierFailure()
		logger.WithFields(map[string]interface{}{"error": err.Error()}).Error("classification failed, dropping batch")
		return
	}

	var wg sync.WaitGroup
	for category, categoryLines := range buckets {
		spec, ok := o.specialists[category]
		if !ok || len(categoryLines) == 0 {
			continue
		}
		wg.Add(1)
		go func(spec *Specialist, categoryLines []string) {
			defer wg.Done()
			proposals, err := spec.Analyze(ctx, categoryLines)
			if err != nil {
				logger.WithFields(map[string]interface{}{
					"agent": spec.Name(),
					"error": err.Error(),
				}).Error("specialist analysis failed")
				return
			}
			if len(proposals) == 0 {
				return
			}
			o.calibrator.Process(ctx, proposals, spec.Name())
		}(spec, categoryLines)
	}
	wg.Wait()
}

func (o *Orchestrator) classify(ctx context.Context, lines []string) (map[string][]string, error) {
	userPrompt := fmt.Sprintf("Here are the incoming API request logs in CSV format:\n%s", strings.Join(lines, "\n"))
	out, err := o.llm.Complete(ctx, llm.Request{System: classifierPrompt, User: userPrompt, JSONMode: true})
	if err != nil {
		return nil, err
	}

	var buckets map[string][]string
	if err := json.Unmarshal([]byte(llm.CleanOutput(out)), &buckets); err != nil {
		return nil, fmt.Errorf("parsing classifier output: %w", err)
	}
	return buckets, nil
}
