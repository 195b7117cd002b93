package imagegen

import (
	"context"

	"github.com/rcwells1879/veilpix-sub000/internal/domain"
)

// Provider adapts one image-generation backend to the normalized
// intent/result contract. All provider vocabulary differences (request
// shapes, state names, size enums, image-count ceilings) are absorbed
// behind this interface; the orchestrator never branches on provider
// identity beyond picking an implementation.
type Provider interface {
	// Name is the stable provider identifier used in requests and logs.
	Name() string
	// CreditCost is the number of credits one generation consumes.
	CreditCost() int
	// NeedsUpload reports whether source images must be uploaded to a
	// fetchable URL before calling the provider.
	NeedsUpload() bool
	// MaxCombineImages is the provider's source-image ceiling for
	// combine requests. A ceiling below 2 means combine is unsupported.
	MaxCombineImages() int
	// Generate builds the provider request for the intent's kind,
	// executes it (directly or through a submit/poll job), and
	// normalizes the response.
	Generate(ctx context.Context, intent domain.GenerationIntent) (domain.GenerationResult, error)
}
