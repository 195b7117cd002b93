package jobclient

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rcwells1879/veilpix-sub000/internal/domain"
)

type scriptedJob struct {
	submitErr error
	states    []domain.TaskState
	errs      []error
	polls     int
}

func (j *scriptedJob) Submit(ctx context.Context) (string, error) {
	if j.submitErr != nil {
		return "", j.submitErr
	}
	return "task-1", nil
}

func (j *scriptedJob) Poll(ctx context.Context, taskID string) (domain.TaskState, error) {
	i := j.polls
	j.polls++
	if i >= len(j.states) {
		i = len(j.states) - 1
	}
	var err error
	if i < len(j.errs) {
		err = j.errs[i]
	}
	return j.states[i], err
}

func newTestClient(attempts int) *Client {
	return NewClient(Config{
		Provider:    "test",
		Interval:    time.Millisecond,
		MaxAttempts: attempts,
	}, zerolog.Nop())
}

func TestRunReachesSuccess(t *testing.T) {
	job := &scriptedJob{states: []domain.TaskState{
		domain.TaskWaiting,
		domain.TaskQueuing,
		domain.TaskGenerating,
		domain.TaskSuccess,
	}}
	task, err := newTestClient(10).Run(context.Background(), job)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if task.State != domain.TaskSuccess {
		t.Fatalf("state = %q, want success", task.State)
	}
	if job.polls != 4 {
		t.Fatalf("polls = %d, want 4", job.polls)
	}
}

func TestRunSubmitFailure(t *testing.T) {
	job := &scriptedJob{submitErr: errors.New("401 unauthorized")}
	_, err := newTestClient(10).Run(context.Background(), job)
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("err = %v, want provider failure", err)
	}
	if job.polls != 0 {
		t.Fatalf("a failed submit must not be polled, got %d polls", job.polls)
	}
}

func TestRunTaskReportedFailure(t *testing.T) {
	job := &scriptedJob{states: []domain.TaskState{domain.TaskGenerating, domain.TaskFailed}}
	_, err := newTestClient(10).Run(context.Background(), job)
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("err = %v, want provider failure", err)
	}
	if errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("a reported failure must not look like a timeout")
	}
}

func TestRunBudgetExhaustedIsTimeout(t *testing.T) {
	job := &scriptedJob{states: []domain.TaskState{domain.TaskGenerating}}
	task, err := newTestClient(3).Run(context.Background(), job)
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("err = %v, want timeout", err)
	}
	if errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("a timeout must stay distinct from a provider failure")
	}
	if job.polls != 3 {
		t.Fatalf("polls = %d, want the full budget of 3", job.polls)
	}
	if task == nil || task.State != domain.TaskGenerating {
		t.Fatalf("task should carry its last observed state, got %+v", task)
	}
}

func TestRunNormalizationErrorPassesThrough(t *testing.T) {
	job := &scriptedJob{
		states: []domain.TaskState{domain.TaskFailed},
		errs:   []error{fmt.Errorf("%w: unknown task status %q", domain.ErrNormalization, "EXPLODED")},
	}
	_, err := newTestClient(10).Run(context.Background(), job)
	if !errors.Is(err, domain.ErrNormalization) {
		t.Fatalf("err = %v, want normalization error preserved", err)
	}
	if errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("contract drift must not be reported as a provider failure")
	}
}

func TestRunRespectsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	job := &scriptedJob{states: []domain.TaskState{domain.TaskGenerating}}
	_, err := newTestClient(10).Run(ctx, job)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context cancellation", err)
	}
}
