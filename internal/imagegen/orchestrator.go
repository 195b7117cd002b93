package imagegen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rcwells1879/veilpix-sub000/internal/domain"
	"github.com/rcwells1879/veilpix-sub000/internal/usage"
)

// maxResultBytes bounds the URL-to-bytes conversion read.
const maxResultBytes = 64 << 20

// AssetStore is the temporary-upload surface the orchestrator needs.
type AssetStore interface {
	UploadBatch(ctx context.Context, sources []domain.SourceImage, owner string) ([]domain.TemporaryAsset, error)
	Delete(ctx context.Context, key string) error
}

// Outcome is a successful generation: an inline-bytes result plus the
// caller's remaining balance or quota (-1 when unknown).
type Outcome struct {
	Result    domain.GenerationResult
	Remaining int
	Duration  time.Duration
}

// Orchestrator sequences one generation request: gate, upload, provider
// execution, normalization, conversion, cleanup, ledger commit. Cleanup
// of uploaded assets runs on every exit path; usage state is mutated
// only on success.
type Orchestrator struct {
	providers  map[string]Provider
	gate       *usage.Gate
	ledger     *usage.Ledger
	assets     AssetStore
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewOrchestrator wires the pipeline over its collaborators.
func NewOrchestrator(gate *usage.Gate, ledger *usage.Ledger, assets AssetStore, logger zerolog.Logger, providers ...Provider) *Orchestrator {
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Orchestrator{
		providers:  byName,
		gate:       gate,
		ledger:     ledger,
		assets:     assets,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
}

// Provider returns the adapter registered under name.
func (o *Orchestrator) Provider(name string) (Provider, bool) {
	p, ok := o.providers[name]
	return p, ok
}

// requestContext threads per-request state between pipeline steps. It
// replaces ad hoc side-channel fields on the inbound request: every
// step receives and returns explicit values.
type requestContext struct {
	caller   domain.Caller
	provider Provider
	intent   domain.GenerationIntent
	uploaded []domain.TemporaryAsset
	started  time.Time
}

// Generate runs the full pipeline for one request.
func (o *Orchestrator) Generate(ctx context.Context, caller domain.Caller, providerName string, intent domain.GenerationIntent) (*Outcome, error) {
	provider, ok := o.providers[providerName]
	if !ok {
		return nil, &domain.StageError{Stage: domain.StageBuild,
			Err: fmt.Errorf("%w: unsupported provider %q", domain.ErrInvalidIntent, providerName)}
	}
	if err := intent.Validate(provider.MaxCombineImages()); err != nil {
		return nil, &domain.StageError{Stage: domain.StageBuild, Err: err}
	}

	// Pre-flight gate: reject early, no side effects of any kind.
	if _, err := o.gate.Check(ctx, caller, provider.CreditCost()); err != nil {
		return nil, &domain.StageError{Stage: domain.StageGate, Err: err}
	}

	rc := &requestContext{caller: caller, provider: provider, intent: intent, started: time.Now()}

	// Cleanup is guaranteed on every exit path, including panics and
	// caller disconnects, and must not depend on the request context
	// still being alive.
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		for _, asset := range rc.uploaded {
			if err := o.assets.Delete(cleanupCtx, asset.Key); err != nil {
				o.logger.Warn().Err(err).
					Str("stage", domain.StageCleanup).
					Str("key", asset.Key).
					Msg("temporary asset delete failed, sweep will reclaim it")
			}
		}
	}()

	if provider.NeedsUpload() {
		if err := o.uploadSources(ctx, rc); err != nil {
			return nil, o.fail(ctx, rc, domain.StageUpload, err)
		}
	}

	result, err := provider.Generate(ctx, rc.intent)
	if err != nil {
		if stage := stageFor(err); stage != domain.StageBuild {
			return nil, o.fail(ctx, rc, stage, err)
		}
		// Malformed intents are caught before any provider spend and
		// handled locally as client errors.
		return nil, &domain.StageError{Stage: domain.StageBuild, Err: err}
	}

	if result.NeedsConversion {
		result, err = o.convert(ctx, result)
		if err != nil {
			return nil, o.fail(ctx, rc, domain.StageConvert, err)
		}
	}

	latency := time.Since(rc.started)
	remaining, err := o.ledger.Commit(ctx, caller, provider.Name(), intent.Kind, provider.CreditCost(), latency)
	if err != nil {
		// The caller still gets the image; the accounting gap is
		// logged loudly, never swallowed.
		o.logger.Error().Err(err).
			Str("stage", domain.StageLedger).
			Str("provider", provider.Name()).
			Str("user_id", caller.UserID).
			Msg("ledger commit failed after successful generation")
	}

	o.logger.Info().
		Str("provider", provider.Name()).
		Str("kind", string(intent.Kind)).
		Dur("latency", latency).
		Msg("generation succeeded")
	return &Outcome{Result: result, Remaining: remaining, Duration: latency}, nil
}

// uploadSources uploads every source image and rewrites the intent's
// sources as URL references. A single failed upload fails the batch,
// and anything that did upload is recorded for cleanup.
func (o *Orchestrator) uploadSources(ctx context.Context, rc *requestContext) error {
	owner := rc.caller.UserID
	if owner == "" {
		owner = rc.caller.SessionID
	}
	assets, err := o.assets.UploadBatch(ctx, rc.intent.Sources, owner)
	rc.uploaded = assets
	if err != nil {
		if !errors.Is(err, domain.ErrUploadFailed) {
			err = fmt.Errorf("%w: %v", domain.ErrUploadFailed, err)
		}
		return err
	}

	sources := make([]domain.SourceImage, len(rc.intent.Sources))
	for i, src := range rc.intent.Sources {
		sources[i] = domain.SourceImage{URL: assets[i].URL, MIME: src.MIME, Name: src.Name}
	}
	rewritten := rc.intent
	rewritten.Sources = sources
	rc.intent = rewritten
	return nil
}

// convert fetches a URL-based result and inlines its bytes.
func (o *Orchestrator) convert(ctx context.Context, result domain.GenerationResult) (domain.GenerationResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, result.URL, nil)
	if err != nil {
		return domain.GenerationResult{}, fmt.Errorf("%w: %v", domain.ErrConversion, err)
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return domain.GenerationResult{}, fmt.Errorf("%w: fetch result: %v", domain.ErrConversion, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.GenerationResult{}, fmt.Errorf("%w: fetch result: http %d", domain.ErrConversion, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResultBytes))
	if err != nil {
		return domain.GenerationResult{}, fmt.Errorf("%w: read result: %v", domain.ErrConversion, err)
	}
	mimeType := "image/png"
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if parsed, _, err := mime.ParseMediaType(ct); err == nil && strings.HasPrefix(parsed, "image/") {
			mimeType = parsed
		}
	}
	return domain.InlineResult(data, mimeType), nil
}

// fail records the failure (stage-tagged, no ledger mutation) and
// returns the stage-wrapped error.
func (o *Orchestrator) fail(ctx context.Context, rc *requestContext, stage string, err error) error {
	latency := time.Since(rc.started)
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	o.ledger.RecordFailure(recordCtx, rc.caller, rc.provider.Name(), rc.intent.Kind, stage, latency)
	o.logger.Error().Err(err).
		Str("stage", stage).
		Str("provider", rc.provider.Name()).
		Str("kind", string(rc.intent.Kind)).
		Dur("latency", latency).
		Msg("generation failed")
	return &domain.StageError{Stage: stage, Err: err}
}

// stageFor classifies a provider-layer error into its pipeline stage.
func stageFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidIntent):
		return domain.StageBuild
	case errors.Is(err, domain.ErrNormalization):
		return domain.StageNormalize
	default:
		return domain.StageExecute
	}
}
