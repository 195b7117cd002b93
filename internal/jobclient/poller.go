package jobclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rcwells1879/veilpix-sub000/internal/domain"
)

// Job is one asynchronously executed provider task. Implementations
// keep the terminal result payload internally; the client only drives
// the state machine.
type Job interface {
	Submit(ctx context.Context) (string, error)
	Poll(ctx context.Context, taskID string) (domain.TaskState, error)
}

// Config sets the per-provider polling behavior. Nothing here is
// hard-coded per call site; values come from provider configuration.
type Config struct {
	Provider      string
	Interval      time.Duration
	MaxAttempts   int
	ProgressEvery int
}

// Client submits a task and polls it to a terminal state on a fixed
// interval. Exceeding the attempt budget without reaching a terminal
// state yields domain.ErrTimeout, which is distinct from a
// provider-reported failure.
type Client struct {
	cfg    Config
	logger zerolog.Logger
}

// NewClient builds a poller for one provider configuration.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 60
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = 10
	}
	return &Client{cfg: cfg, logger: logger}
}

// Run drives the job to completion or failure. The returned task is
// owned by this request only and is never persisted.
func (c *Client) Run(ctx context.Context, job Job) (*domain.ProviderTask, error) {
	taskID, err := job.Submit(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: submit: %v", domain.ErrProviderFailure, err)
	}

	task := &domain.ProviderTask{
		Provider:  c.cfg.Provider,
		ID:        taskID,
		State:     domain.TaskSubmitted,
		CreatedAt: time.Now(),
	}
	c.logger.Debug().Str("provider", c.cfg.Provider).Str("task_id", taskID).Msg("task submitted")

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return task, ctx.Err()
		case <-time.After(c.cfg.Interval):
		}

		state, err := job.Poll(ctx, taskID)
		task.LastPolled = time.Now()
		if err != nil {
			task.State = state
			// A response the job could not interpret is contract
			// drift, not a provider-reported failure; keep the tag.
			if errors.Is(err, domain.ErrNormalization) {
				return task, err
			}
			return task, fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
		}
		task.State = state

		if state == domain.TaskSuccess {
			c.logger.Debug().
				Str("provider", c.cfg.Provider).
				Str("task_id", taskID).
				Int("attempts", attempt).
				Msg("task succeeded")
			return task, nil
		}
		if state == domain.TaskFailed {
			return task, fmt.Errorf("%w: task reported failure", domain.ErrProviderFailure)
		}

		// Coarse progress logging bounds log volume on long jobs.
		if attempt%c.cfg.ProgressEvery == 0 {
			c.logger.Info().
				Str("provider", c.cfg.Provider).
				Str("task_id", taskID).
				Str("state", string(state)).
				Int("attempt", attempt).
				Int("budget", c.cfg.MaxAttempts).
				Msg("task still running")
		}
	}

	return task, fmt.Errorf("%w: %s task %s not terminal after %d attempts",
		domain.ErrTimeout, c.cfg.Provider, taskID, c.cfg.MaxAttempts)
}
