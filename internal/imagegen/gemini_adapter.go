package imagegen

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/rcwells1879/veilpix-sub000/internal/domain"
	"github.com/rcwells1879/veilpix-sub000/internal/providers/gemini"
)

type geminiClient interface {
	Generate(ctx context.Context, req gemini.Request) (*gemini.Response, error)
}

// GeminiProvider is the synchronous default provider. Sources travel as
// inline base64 parts, so no temporary upload is needed, and the result
// comes back inline as well.
type GeminiProvider struct {
	client geminiClient
	cost   int
}

// NewGeminiProvider wires the adapter over a gemini client.
func NewGeminiProvider(client geminiClient, cost int) *GeminiProvider {
	return &GeminiProvider{client: client, cost: cost}
}

func (p *GeminiProvider) Name() string          { return "gemini" }
func (p *GeminiProvider) CreditCost() int       { return p.cost }
func (p *GeminiProvider) NeedsUpload() bool     { return false }
func (p *GeminiProvider) MaxCombineImages() int { return 8 }

// Generate fulfils the Provider interface.
func (p *GeminiProvider) Generate(ctx context.Context, intent domain.GenerationIntent) (domain.GenerationResult, error) {
	req, err := p.buildRequest(intent)
	if err != nil {
		return domain.GenerationResult{}, err
	}
	resp, err := p.client.Generate(ctx, req)
	if err != nil {
		return domain.GenerationResult{}, fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
	}
	return p.normalizeResponse(resp)
}

func (p *GeminiProvider) buildRequest(intent domain.GenerationIntent) (gemini.Request, error) {
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
	return gemini.Request{}, fmt.Errorf("%w: unsupported kind %q", domain.ErrInvalidIntent, intent.Kind)
}

func (p *GeminiProvider) buildEditRequest(intent domain.GenerationIntent) (gemini.Request, error) {
	return p.singleSourceRequest(intent)
}

func (p *GeminiProvider) buildFilterRequest(intent domain.GenerationIntent) (gemini.Request, error) {
	return p.singleSourceRequest(intent)
}

func (p *GeminiProvider) buildAdjustRequest(intent domain.GenerationIntent) (gemini.Request, error) {
	return p.singleSourceRequest(intent)
}

func (p *GeminiProvider) buildCombineRequest(intent domain.GenerationIntent) (gemini.Request, error) {
	if len(intent.Sources) < 2 || len(intent.Sources) > p.MaxCombineImages() {
		return gemini.Request{}, fmt.Errorf("%w: combine needs 2-%d images", domain.ErrInvalidIntent, p.MaxCombineImages())
	}
	return p.assemble(intent, intent.Sources)
}

func (p *GeminiProvider) singleSourceRequest(intent domain.GenerationIntent) (gemini.Request, error) {
	if len(intent.Sources) != 1 {
		return gemini.Request{}, fmt.Errorf("%w: exactly one source image required", domain.ErrInvalidIntent)
	}
	return p.assemble(intent, intent.Sources)
}

func (p *GeminiProvider) assemble(intent domain.GenerationIntent, sources []domain.SourceImage) (gemini.Request, error) {
	parts := make([]gemini.Part, 0, len(sources)+1)
	for _, src := range sources {
		if len(src.Data) == 0 {
			return gemini.Request{}, fmt.Errorf("%w: source image bytes required", domain.ErrInvalidIntent)
		}
		parts = append(parts, gemini.Part{InlineData: &gemini.InlineData{
			MIMEType: src.MIME,
			Data:     base64.StdEncoding.EncodeToString(src.Data),
		}})
	}
	parts = append(parts, gemini.Part{Text: BuildInstruction(intent)})

	cfg := &gemini.GenerationConfig{ResponseModalities: []string{"IMAGE"}}
	imageCfg := gemini.ImageConfig{
		AspectRatio: strings.TrimSpace(intent.AspectRatio),
		ImageSize:   imageSizeForTier(intent.Resolution),
	}
	if imageCfg.AspectRatio != "" || imageCfg.ImageSize != "" {
		cfg.ImageConfig = &imageCfg
	}
	return gemini.Request{
		Contents:         []gemini.Content{{Parts: parts}},
		GenerationConfig: cfg,
	}, nil
}

func (p *GeminiProvider) normalizeResponse(resp *gemini.Response) (domain.GenerationResult, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return domain.GenerationResult{}, fmt.Errorf("%w: no candidates", domain.ErrNormalization)
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.InlineData == nil || part.InlineData.Data == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
		if err != nil {
			return domain.GenerationResult{}, fmt.Errorf("%w: decode inline data: %v", domain.ErrNormalization, err)
		}
		mime := part.InlineData.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		return domain.InlineResult(data, mime), nil
	}
	return domain.GenerationResult{}, fmt.Errorf("%w: no image part in candidate", domain.ErrNormalization)
}

// imageSizeForTier maps the request's resolution tier onto Gemini's
// imageSize enum.
func imageSizeForTier(tier string) string {
	switch strings.ToLower(strings.TrimSpace(tier)) {
	case "", "standard":
		return ""
	case "high", "2k":
		return "2K"
	case "ultra", "4k":
		return "4K"
	case "low", "1k":
		return "1K"
	default:
		return ""
	}
}

var _ Provider = (*GeminiProvider)(nil)
