package app

import (
	"context"
	"time"

	"github.com/example/stagetrack/internal/apperr"
	"github.com/example/stagetrack/internal/core/fields"
	"github.com/example/stagetrack/internal/core/stage"
	"github.com/example/stagetrack/internal/ctxutil"
	"github.com/example/stagetrack/internal/logger"
	"github.com/example/stagetrack/internal/models"
	"github.com/example/stagetrack/internal/ports/primary"
	"github.com/example/stagetrack/internal/ports/secondary"
)

// StageTrackingServiceImpl implements the StageTrackingService interface.
type StageTrackingServiceImpl struct {
	opportunities secondary.OpportunityStore
	fieldSource   secondary.FieldCatalogSource
	stageSource   secondary.PipelineStageSource
	log           *logger.Logger
	now           func() time.Time
}

// NewStageTrackingService creates a new StageTrackingService with injected dependencies.
// now defaults to time.Now when nil.
func NewStageTrackingService(
	opportunities secondary.OpportunityStore,
	fieldSource secondary.FieldCatalogSource,
	stageSource secondary.PipelineStageSource,
	log *logger.Logger,
	now func() time.Time,
) *StageTrackingServiceImpl {
	if now == nil {
		now = time.Now
	}
	return &StageTrackingServiceImpl{
		opportunities: opportunities,
		fieldSource:   fieldSource,
		stageSource:   stageSource,
		log:           log,
		now:           now,
	}
}

// Run resolves the tracking fields, loads the stage catalog, then tracks every
// open opportunity in turn. The first fatal error is logged and aborts the run;
// the returned summary covers the opportunities processed before it.
func (s *StageTrackingServiceImpl) Run(ctx context.Context, req primary.RunRequest) (*primary.RunSummary, error) {
	summary := &primary.RunSummary{
		DryRun: req.DryRun,
		Counts: make(map[stage.Outcome]int),
	}
	log := s.runLogger(ctx)

	ids, err := s.ResolveFields(ctx)
	if err != nil {
		return summary, err
	}
	summary.Fields = *ids

	catalog, err := s.loadCatalog(ctx)
	if err != nil {
		return summary, err
	}

	opps, err := s.opportunities.FetchOpenOpportunities(ctx)
	if err != nil {
		log.Errorw("failed to fetch open opportunities", "error", err)
		return summary, err
	}
	summary.Found = len(opps)
	log.Infow("opportunities found", "count", len(opps))

	for _, opp := range opps {
		result, err := s.track(ctx, log, opp, *ids, catalog, req.DryRun)
		if err != nil {
			return summary, err
		}
		summary.Results = append(summary.Results, result)
		summary.Counts[result.Outcome]++
		if result.Saved {
			summary.Saved++
		}
	}

	return summary, nil
}

// ResolveFields fetches the custom field definitions and resolves the three
// tracking fields. Missing or ambiguous fields are a configuration error.
func (s *StageTrackingServiceImpl) ResolveFields(ctx context.Context) (*fields.IDs, error) {
	log := s.runLogger(ctx)

	defs, err := s.fieldSource.FetchCustomFieldDefinitions(ctx)
	if err != nil {
		log.Errorw("failed to fetch custom field definitions", "error", err)
		return nil, err
	}

	resolved := fields.Resolve(defs)
	if !resolved.OK() {
		log.Errorw("custom field setup is invalid", "error", resolved.Error())
		return nil, apperr.Configuration("resolve fields", "%v", resolved.Error())
	}

	log.Debugw("resolved tracking fields",
		"last_known_stage", resolved.IDs.LastKnownStage,
		"last_time_stage_changed", resolved.IDs.LastStageChange,
		"days_in_current_stage", resolved.IDs.DaysInStage,
	)
	return &resolved.IDs, nil
}

// ListStages returns every pipeline stage sorted by pipeline and order.
func (s *StageTrackingServiceImpl) ListStages(ctx context.Context) ([]models.PipelineStage, error) {
	catalog, err := s.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.Stages(), nil
}

// Helper methods

// runLogger tags entries with the run ID carried by ctx, if any.
func (s *StageTrackingServiceImpl) runLogger(ctx context.Context) *logger.Logger {
	if runID := ctxutil.RunIDFromContext(ctx); runID != "" {
		return s.log.With("run_id", runID)
	}
	return s.log
}

func (s *StageTrackingServiceImpl) loadCatalog(ctx context.Context) (*stage.Catalog, error) {
	stages, err := s.stageSource.FetchPipelineStages(ctx)
	if err != nil {
		s.runLogger(ctx).Errorw("failed to fetch pipeline stages", "error", err)
		return nil, err
	}
	return stage.NewCatalog(stages), nil
}

func (s *StageTrackingServiceImpl) track(ctx context.Context, log *logger.Logger, opp *models.Opportunity, ids fields.IDs, catalog *stage.Catalog, dryRun bool) (primary.OpportunityResult, error) {
	result := primary.OpportunityResult{
		OpportunityID: opp.ID,
		Name:          opp.Name,
	}

	if opp.StageID == nil {
		result.Outcome = stage.OutcomeSkipped
		log.Debugw("opportunity has no stage, skipping", "opportunity_id", opp.ID)
		return result, nil
	}

	order, ok := catalog.Order(*opp.StageID)
	if !ok {
		err := apperr.DataConsistency("track opportunity", "opportunity %d references unknown stage %d", opp.ID, *opp.StageID)
		log.Errorw("unknown stage referenced", "opportunity_id", opp.ID, "stage_id", *opp.StageID, "error", err)
		return result, err
	}
	result.StageOrder = order

	today := stage.Today(s.now())

	prev, err := stage.ReadState(opp, ids, today)
	if err != nil {
		appErr := apperr.Wrap(apperr.KindDataConsistency, "track opportunity", err, "unreadable tracking field")
		log.Errorw("stored tracking value is invalid", "opportunity_id", opp.ID, "error", err)
		return result, appErr
	}

	decision := stage.Track(prev, order, today)
	stage.WriteState(opp, ids, decision)

	result.Outcome = decision.Outcome
	result.LastKnownStage = decision.State.LastKnownStage
	result.DaysInStage = decision.State.DaysInStage

	if dryRun {
		log.Infow("dry run, opportunity not saved",
			"opportunity_id", opp.ID,
			"outcome", decision.Outcome,
			"last_known_stage", derefStage(decision.State.LastKnownStage),
		)
		return result, nil
	}

	if err := s.opportunities.Save(ctx, opp); err != nil {
		log.Errorw("failed to save opportunity", "opportunity_id", opp.ID, "error", err)
		return result, err
	}
	result.Saved = true

	log.Infow("opportunity last_known_stage updated",
		"opportunity_id", opp.ID,
		"last_known_stage", derefStage(decision.State.LastKnownStage),
		"outcome", decision.Outcome,
	)
	return result, nil
}

func derefStage(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

// Ensure StageTrackingServiceImpl implements the interface
var _ primary.StageTrackingService = (*StageTrackingServiceImpl)(nil)
