package imagegen

import (
	"context"
	"fmt"
	"strings"

	"github.com/rcwells1879/veilpix-sub000/internal/domain"
	"github.com/rcwells1879/veilpix-sub000/internal/jobclient"
	"github.com/rcwells1879/veilpix-sub000/internal/providers/qwen"
)

type qwenClient interface {
	CreateTask(ctx context.Context, req qwen.EditRequest) (string, error)
	GetTask(ctx context.Context, taskID string) (*qwen.TaskStatus, error)
}

// QwenProvider is the fast asynchronous provider. It edits exactly one
// source image (combine is unsupported), takes its input as a fetchable
// URL, and returns an image URL needing conversion.
type QwenProvider struct {
	client qwenClient
	jobs   *jobclient.Client
	cost   int
}

// NewQwenProvider wires the adapter over a qwen client and poller.
func NewQwenProvider(client qwenClient, jobs *jobclient.Client, cost int) *QwenProvider {
	return &QwenProvider{client: client, jobs: jobs, cost: cost}
}

func (p *QwenProvider) Name() string      { return "qwen" }
func (p *QwenProvider) CreditCost() int   { return p.cost }
func (p *QwenProvider) NeedsUpload() bool { return true }

// MaxCombineImages is below 2: qwen-image-edit takes a single source.
func (p *QwenProvider) MaxCombineImages() int { return 1 }

// Generate fulfils the Provider interface.
func (p *QwenProvider) Generate(ctx context.Context, intent domain.GenerationIntent) (domain.GenerationResult, error) {
	req, err := p.buildRequest(intent)
	if err != nil {
		return domain.GenerationResult{}, err
	}
	job := &qwenJob{client: p.client, req: req}
	if _, err := p.jobs.Run(ctx, job); err != nil {
		return domain.GenerationResult{}, err
	}
	return p.normalizeResponse(job.final)
}

func (p *QwenProvider) buildRequest(intent domain.GenerationIntent) (qwen.EditRequest, error) {
	switch intent.Kind {
	case domain.KindEdit:
		return p.buildEditRequest(intent)
	case domain.KindFilter:
		return p.buildFilterRequest(intent)
	case domain.KindAdjust:
		return p.buildAdjustRequest(intent)
	case domain.KindCombine:
		return qwen.EditRequest{}, fmt.Errorf("%w: qwen does not support combine", domain.ErrInvalidIntent)
	}
	return qwen.EditRequest{}, fmt.Errorf("%w: unsupported kind %q", domain.ErrInvalidIntent, intent.Kind)
}

func (p *QwenProvider) buildEditRequest(intent domain.GenerationIntent) (qwen.EditRequest, error) {
	return p.singleSourceRequest(intent)
}

func (p *QwenProvider) buildFilterRequest(intent domain.GenerationIntent) (qwen.EditRequest, error) {
	return p.singleSourceRequest(intent)
}

func (p *QwenProvider) buildAdjustRequest(intent domain.GenerationIntent) (qwen.EditRequest, error) {
	req, err := p.singleSourceRequest(intent)
	if err != nil {
		return req, err
	}
	// Global property changes drift less with a light negative prompt.
	req.NegativePrompt = "new objects, removed objects, changed composition"
	return req, nil
}

func (p *QwenProvider) singleSourceRequest(intent domain.GenerationIntent) (qwen.EditRequest, error) {
	if len(intent.Sources) != 1 {
		return qwen.EditRequest{}, fmt.Errorf("%w: exactly one source image required", domain.ErrInvalidIntent)
	}
	url := strings.TrimSpace(intent.Sources[0].URL)
	if url == "" {
		return qwen.EditRequest{}, fmt.Errorf("%w: source image url required", domain.ErrInvalidIntent)
	}
	return qwen.EditRequest{
		ImageURL:    url,
		Instruction: BuildInstruction(intent),
	}, nil
}

func (p *QwenProvider) normalizeResponse(status *qwen.TaskStatus) (domain.GenerationResult, error) {
	if status == nil {
		return domain.GenerationResult{}, fmt.Errorf("%w: empty task status", domain.ErrNormalization)
	}
	url := strings.TrimSpace(status.URL)
	if url == "" {
		return domain.GenerationResult{}, fmt.Errorf("%w: missing image url in succeeded task", domain.ErrNormalization)
	}
	return domain.URLResult(url), nil
}

// qwenJob drives one DashScope task through the generic poller.
type qwenJob struct {
	client qwenClient
	req    qwen.EditRequest
	final  *qwen.TaskStatus
}

func (j *qwenJob) Submit(ctx context.Context) (string, error) {
	return j.client.CreateTask(ctx, j.req)
}

func (j *qwenJob) Poll(ctx context.Context, taskID string) (domain.TaskState, error) {
	status, err := j.client.GetTask(ctx, taskID)
	if err != nil {
		return domain.TaskGenerating, err
	}
	switch strings.ToUpper(strings.TrimSpace(status.Status)) {
	case "PENDING":
		return domain.TaskWaiting, nil
	case "PRE-PROCESSING", "POST-PROCESSING":
		return domain.TaskQueuing, nil
	case "RUNNING":
		return domain.TaskGenerating, nil
	case "SUCCEEDED":
		j.final = status
		return domain.TaskSuccess, nil
	case "FAILED", "CANCELED":
		if status.Message != "" {
			return domain.TaskFailed, fmt.Errorf("%s (%s)", status.Message, status.Code)
		}
		return domain.TaskFailed, fmt.Errorf("task failed")
	}
	return domain.TaskFailed, fmt.Errorf("%w: unknown task status %q", domain.ErrNormalization, status.Status)
}

var _ Provider = (*QwenProvider)(nil)
var _ jobclient.Job = (*qwenJob)(nil)
