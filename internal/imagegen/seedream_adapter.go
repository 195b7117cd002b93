package imagegen

import (
	"context"
	"fmt"
	"strings"

	"github.com/rcwells1879/veilpix-sub000/internal/domain"
	"github.com/rcwells1879/veilpix-sub000/internal/jobclient"
	"github.com/rcwells1879/veilpix-sub000/internal/providers/seedream"
)

type seedreamClient interface {
	CreateTask(ctx context.Context, req seedream.TaskRequest) (string, error)
	GetTask(ctx context.Context, taskID string) (*seedream.TaskStatus, error)
}

// SeedreamProvider is the higher-cost asynchronous provider. Sources
// must be fetchable URLs, execution goes through the job client, and
// the success payload is an image URL that still needs conversion.
type SeedreamProvider struct {
	client seedreamClient
	jobs   *jobclient.Client
	cost   int
}

// NewSeedreamProvider wires the adapter over a seedream client and poller.
func NewSeedreamProvider(client seedreamClient, jobs *jobclient.Client, cost int) *SeedreamProvider {
	return &SeedreamProvider{client: client, jobs: jobs, cost: cost}
}

func (p *SeedreamProvider) Name() string          { return "seedream" }
func (p *SeedreamProvider) CreditCost() int       { return p.cost }
func (p *SeedreamProvider) NeedsUpload() bool     { return true }
func (p *SeedreamProvider) MaxCombineImages() int { return 5 }

// Generate fulfils the Provider interface.
func (p *SeedreamProvider) Generate(ctx context.Context, intent domain.GenerationIntent) (domain.GenerationResult, error) {
	req, err := p.buildRequest(intent)
	if err != nil {
		return domain.GenerationResult{}, err
	}
	job := &seedreamJob{client: p.client, req: req}
	if _, err := p.jobs.Run(ctx, job); err != nil {
		return domain.GenerationResult{}, err
	}
	return p.normalizeResponse(job.final)
}

func (p *SeedreamProvider) buildRequest(intent domain.GenerationIntent) (seedream.TaskRequest, error) {
	switch intent.Kind {
	case domain.KindEdit:
		return p.buildEditRequest(intent)
	case domain.KindFilter:
		return p.buildFilterRequest(intent)
	case domain.KindAdjust:
		return p.buildAdjustRequest(intent)
	case domain.KindCombine:
		return p.buildCombineRequest(intent)
	}
	return seedream.TaskRequest{}, fmt.Errorf("%w: unsupported kind %q", domain.ErrInvalidIntent, intent.Kind)
}

func (p *SeedreamProvider) buildEditRequest(intent domain.GenerationIntent) (seedream.TaskRequest, error) {
	return p.singleSourceRequest(intent)
}

func (p *SeedreamProvider) buildFilterRequest(intent domain.GenerationIntent) (seedream.TaskRequest, error) {
	return p.singleSourceRequest(intent)
}

func (p *SeedreamProvider) buildAdjustRequest(intent domain.GenerationIntent) (seedream.TaskRequest, error) {
	return p.singleSourceRequest(intent)
}

func (p *SeedreamProvider) buildCombineRequest(intent domain.GenerationIntent) (seedream.TaskRequest, error) {
	if len(intent.Sources) < 2 || len(intent.Sources) > p.MaxCombineImages() {
		return seedream.TaskRequest{}, fmt.Errorf("%w: combine needs 2-%d images", domain.ErrInvalidIntent, p.MaxCombineImages())
	}
	return p.assemble(intent, intent.Sources)
}

func (p *SeedreamProvider) singleSourceRequest(intent domain.GenerationIntent) (seedream.TaskRequest, error) {
	if len(intent.Sources) != 1 {
		return seedream.TaskRequest{}, fmt.Errorf("%w: exactly one source image required", domain.ErrInvalidIntent)
	}
	return p.assemble(intent, intent.Sources)
}

func (p *SeedreamProvider) assemble(intent domain.GenerationIntent, sources []domain.SourceImage) (seedream.TaskRequest, error) {
	content := make([]seedream.ContentItem, 0, len(sources)+1)
	content = append(content, seedream.ContentItem{Type: "text", Text: BuildInstruction(intent)})
	for _, src := range sources {
		if strings.TrimSpace(src.URL) == "" {
			return seedream.TaskRequest{}, fmt.Errorf("%w: source image url required", domain.ErrInvalidIntent)
		}
		content = append(content, seedream.ContentItem{Type: "image_url", ImageURL: &seedream.ImageURL{URL: src.URL}})
	}
	return seedream.TaskRequest{
		Content: content,
		Size:    seedreamSize(intent.AspectRatio, intent.Resolution),
	}, nil
}

func (p *SeedreamProvider) normalizeResponse(status *seedream.TaskStatus) (domain.GenerationResult, error) {
	if status == nil {
		return domain.GenerationResult{}, fmt.Errorf("%w: empty task status", domain.ErrNormalization)
	}
	url := strings.TrimSpace(status.Content.ImageURL)
	if url == "" {
		return domain.GenerationResult{}, fmt.Errorf("%w: missing image url in succeeded task", domain.ErrNormalization)
	}
	return domain.URLResult(url), nil
}

// seedreamJob drives one task through the generic poller, keeping the
// final status payload for normalization.
type seedreamJob struct {
	client seedreamClient
	req    seedream.TaskRequest
	final  *seedream.TaskStatus
}

func (j *seedreamJob) Submit(ctx context.Context) (string, error) {
	return j.client.CreateTask(ctx, j.req)
}

func (j *seedreamJob) Poll(ctx context.Context, taskID string) (domain.TaskState, error) {
	status, err := j.client.GetTask(ctx, taskID)
	if err != nil {
		return domain.TaskGenerating, err
	}
	switch strings.ToLower(strings.TrimSpace(status.Status)) {
	case "waiting":
		return domain.TaskWaiting, nil
	case "queuing", "queued":
		return domain.TaskQueuing, nil
	case "generating", "running":
		return domain.TaskGenerating, nil
	case "success", "succeeded":
		j.final = status
		return domain.TaskSuccess, nil
	case "fail", "failed":
		if status.Error.Message != "" {
			return domain.TaskFailed, fmt.Errorf("%s (%s)", status.Error.Message, status.Error.Code)
		}
		return domain.TaskFailed, fmt.Errorf("task failed")
	}
	return domain.TaskFailed, fmt.Errorf("%w: unknown task status %q", domain.ErrNormalization, status.Status)
}

// seedreamSize maps an aspect ratio plus resolution tier onto
// Seedream's pixel-dimension vocabulary.
func seedreamSize(aspect, tier string) string {
	base := 2048
	switch strings.ToLower(strings.TrimSpace(tier)) {
	case "low", "1k":
		base = 1024
	case "ultra", "4k":
		base = 4096
	}
	w, h := base, base
	switch strings.TrimSpace(aspect) {
	case "16:9":
		h = base * 9 / 16
	case "9:16":
		w = base * 9 / 16
	case "4:3":
		h = base * 3 / 4
	case "3:4":
		w = base * 3 / 4
	}
	return fmt.Sprintf("%dx%d", w, h)
}

var _ Provider = (*SeedreamProvider)(nil)
var _ jobclient.Job = (*seedreamJob)(nil)
