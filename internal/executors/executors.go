// Package executors holds the provider-call stand-ins the queue service
// dispatches to. Each executor simulates the latency and usage reporting of
// the real collaborator (model API, transcoder, mail gateway) without
// reaching across the network.
package executors

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/platefull/jobqueue/internal/queue"
	"github.com/platefull/jobqueue/internal/queue/domain"
)

// NewExecutors returns the per-type executors for individually executed types.
func NewExecutors(logger *slog.Logger) map[domain.JobType]queue.Executor {
	return map[domain.JobType]queue.Executor{
		domain.JobTypeAIGeneration:    &aiGenerationExecutor{logger: logger},
		domain.JobTypeVideoGeneration: &videoGenerationExecutor{logger: logger},
		domain.JobTypeCleanup:         &cleanupExecutor{logger: logger},
	}
}

// NewBatchExecutors returns the batch executors for batchable types.
func NewBatchExecutors(logger *slog.Logger) map[domain.JobType]queue.BatchExecutor {
	return map[domain.JobType]queue.BatchExecutor{
		domain.JobTypeEmail:     &emailBatchExecutor{logger: logger},
		domain.JobTypeAnalytics: &analyticsBatchExecutor{logger: logger},
	}
}

// simulate blocks for d or until ctx is canceled.
func simulate(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type aiGenerationExecutor struct {
	logger *slog.Logger
}

func (e *aiGenerationExecutor) Execute(ctx context.Context, job *domain.Job) (*domain.ExecResult, error) {
	var req struct {
		Prompt string `json:"prompt"`
	}
	if len(job.Payload) > 0 {
		if err := json.Unmarshal(job.Payload, &req); err != nil {
			return nil, domain.NewPermanentError(fmt.Errorf("invalid ai_generation payload: %w", err))
		}
	}

	if err := simulate(ctx, 400*time.Millisecond); err != nil {
		return nil, err
	}

	e.logger.Debug("AI generation finished",
		slog.String("job_id", job.ID),
		slog.Int("prompt_len", len(req.Prompt)),
	)

	return &domain.ExecResult{
		Output: map[string]any{"recipe_text": "generated recipe for: " + req.Prompt},
		Usage: map[string]any{
			"prompt_tokens":     len(req.Prompt) / 4,
			"completion_tokens": 256,
		},
	}, nil
}

type videoGenerationExecutor struct {
	logger *slog.Logger
}

func (e *videoGenerationExecutor) Execute(ctx context.Context, job *domain.Job) (*domain.ExecResult, error) {
	if err := simulate(ctx, 1200*time.Millisecond); err != nil {
		return nil, err
	}

	e.logger.Debug("Video render finished", slog.String("job_id", job.ID))

	return &domain.ExecResult{
		Output: map[string]any{"video_url": fmt.Sprintf("https://cdn.platefull.dev/videos/%s.mp4", job.ID)},
		Usage:  map[string]any{"render_seconds": 1.2},
	}, nil
}

type cleanupExecutor struct {
	logger *slog.Logger
}

func (e *cleanupExecutor) Execute(ctx context.Context, job *domain.Job) (*domain.ExecResult, error) {
	if err := simulate(ctx, 100*time.Millisecond); err != nil {
		return nil, err
	}

	e.logger.Debug("Cleanup pass finished", slog.String("job_id", job.ID))

	return &domain.ExecResult{
		Output: map[string]any{"removed": 0},
	}, nil
}

// emailBatchExecutor groups member jobs by template so one gateway call
// covers every recipient of the same template.
type emailBatchExecutor struct {
	logger *slog.Logger
}

func (e *emailBatchExecutor) ExecuteBatch(ctx context.Context, jobs []*domain.Job) ([]domain.BatchItemResult, error) {
	type emailPayload struct {
		Template string `json:"template"`
		To       string `json:"to"`
	}

	groups := make(map[string][]*domain.Job)
	results := make([]domain.BatchItemResult, 0, len(jobs))

	for _, job := range jobs {
		var p emailPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			results = append(results, domain.BatchItemResult{
				JobID: job.ID,
				Err:   domain.NewPermanentError(fmt.Errorf("invalid email payload: %w", err)),
			})
			continue
		}
		groups[p.Template] = append(groups[p.Template], job)
	}

	for template, members := range groups {
		if err := simulate(ctx, 200*time.Millisecond); err != nil {
			for _, job := range members {
				results = append(results, domain.BatchItemResult{JobID: job.ID, Err: err})
			}
			continue
		}

		e.logger.Debug("Email template group sent",
			slog.String("template", template),
			slog.Int("recipients", len(members)),
		)

		for _, job := range members {
			results = append(results, domain.BatchItemResult{
				JobID:  job.ID,
				Result: &domain.ExecResult{Output: map[string]any{"template": template}},
			})
		}
	}

	return results, nil
}

// analyticsBatchExecutor folds member events into one aggregation write.
type analyticsBatchExecutor struct {
	logger *slog.Logger
}

func (e *analyticsBatchExecutor) ExecuteBatch(ctx context.Context, jobs []*domain.Job) ([]domain.BatchItemResult, error) {
	if err := simulate(ctx, 300*time.Millisecond); err != nil {
		return nil, err
	}

	e.logger.Debug("Analytics aggregation flushed", slog.Int("events", len(jobs)))

	results := make([]domain.BatchItemResult, len(jobs))
	for i, job := range jobs {
		results[i] = domain.BatchItemResult{
			JobID:  job.ID,
			Result: &domain.ExecResult{Output: map[string]any{"aggregated": true}},
		}
	}
	return results, nil
}
