package domain

import "strings"

// Kind enumerates the supported generation operations.
type Kind string

const (
	KindEdit    Kind = "edit"
	KindFilter  Kind = "filter"
	KindAdjust  Kind = "adjust"
	KindCombine Kind = "combine"
)

// ParseKind sanitizes free-form input into a supported kind.
func ParseKind(s string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindEdit:
		return KindEdit, true
	case KindFilter:
		return KindFilter, true
	case KindAdjust:
		return KindAdjust, true
	case KindCombine:
		return KindCombine, true
	}
	return "", false
}

// SourceImage is one input image, either raw bytes straight from the
// request or a fetchable URL once uploaded to the temporary asset store.
type SourceImage struct {
	Data []byte
	MIME string
	Name string
	URL  string
}

// GenerationIntent is the normalized, provider-agnostic request. It is
// constructed once per incoming request and never mutated afterwards.
type GenerationIntent struct {
	Kind        Kind
	Sources     []SourceImage
	Instruction string
	FocalX      *float64
	FocalY      *float64
	AspectRatio string
	Resolution  string
	RequestID   string
}

// Validate enforces the per-kind structural requirements before any
// network call is made.
func (in GenerationIntent) Validate(maxImages int) error {
	if strings.TrimSpace(in.Instruction) == "" {
		return ErrInvalidIntent
	}
	switch in.Kind {
	case KindEdit, KindFilter, KindAdjust:
		if len(in.Sources) != 1 {
			return ErrInvalidIntent
		}
	case KindCombine:
		if len(in.Sources) < 2 || len(in.Sources) > maxImages {
			return ErrInvalidIntent
		}
	default:
		return ErrInvalidIntent
	}
	return nil
}

// GenerationResult is the normalized provider output. Exactly one of
// Data or URL is populated; NeedsConversion reports which.
type GenerationResult struct {
	Data            []byte
	MIME            string
	URL             string
	NeedsConversion bool
}

// InlineResult builds a result carrying image bytes directly.
func InlineResult(data []byte, mime string) GenerationResult {
	return GenerationResult{Data: data, MIME: mime}
}

// URLResult builds a result that still needs a fetch-and-encode step.
func URLResult(url string) GenerationResult {
	return GenerationResult{URL: url, NeedsConversion: true}
}
