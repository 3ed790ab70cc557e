// Package primary defines the primary ports (driving adapters) for the application.
// These are the interfaces through which the outside world drives the application.
package primary

import (
	"context"

	"github.com/example/stagetrack/internal/core/fields"
	"github.com/example/stagetrack/internal/core/stage"
	"github.com/example/stagetrack/internal/models"
)

// StageTrackingService defines the primary port for stage tracking runs.
type StageTrackingService interface {
	// Run processes every open opportunity once. It aborts on the first fatal error.
	Run(ctx context.Context, req RunRequest) (*RunSummary, error)

	// ResolveFields locates the three tracking custom fields.
	ResolveFields(ctx context.Context) (*fields.IDs, error)

	// ListStages returns the stage catalog, sorted by pipeline and order.
	ListStages(ctx context.Context) ([]models.PipelineStage, error)
}

// RunRequest contains parameters for a tracking run.
type RunRequest struct {
	DryRun bool // compute decisions without saving
}

// OpportunityResult records what happened to one opportunity.
type OpportunityResult struct {
	OpportunityID  int64
	Name           string
	Outcome        stage.Outcome
	StageOrder     int  // live stage order (zero when skipped)
	LastKnownStage *int // value after processing
	DaysInStage    int
	Saved          bool
}

// RunSummary describes a completed run.
type RunSummary struct {
	Fields  fields.IDs
	Found   int
	Saved   int
	DryRun  bool
	Counts  map[stage.Outcome]int
	Results []OpportunityResult
}
