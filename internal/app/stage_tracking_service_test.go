package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/example/stagetrack/internal/apperr"
	"github.com/example/stagetrack/internal/core/fields"
	"github.com/example/stagetrack/internal/core/stage"
	"github.com/example/stagetrack/internal/ctxutil"
	"github.com/example/stagetrack/internal/logger"
	"github.com/example/stagetrack/internal/models"
	"github.com/example/stagetrack/internal/ports/primary"
)

// ============================================================================
// Mock Implementations
// ============================================================================

// mockCRM implements the three CRM secondary ports for testing.
type mockCRM struct {
	defs          []models.CustomFieldDefinition
	stages        []models.PipelineStage
	opportunities []*models.Opportunity

	fieldsErr error
	stagesErr error
	fetchErr  error
	saveErr   error

	fetchCalls  int
	stagesCalls int
	saved       []*models.Opportunity
}

func (m *mockCRM) FetchCustomFieldDefinitions(ctx context.Context) ([]models.CustomFieldDefinition, error) {
	if m.fieldsErr != nil {
		return nil, m.fieldsErr
	}
	return m.defs, nil
}

func (m *mockCRM) FetchPipelineStages(ctx context.Context) ([]models.PipelineStage, error) {
	m.stagesCalls++
	if m.stagesErr != nil {
		return nil, m.stagesErr
	}
	return m.stages, nil
}

func (m *mockCRM) FetchOpenOpportunities(ctx context.Context) ([]*models.Opportunity, error) {
	m.fetchCalls++
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return m.opportunities, nil
}

func (m *mockCRM) Save(ctx context.Context, opp *models.Opportunity) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, opp)
	return nil
}

// ============================================================================
// Test Helpers
// ============================================================================

const (
	fieldLastStage = "OPPORTUNITY_FIELD_10"
	fieldChanged   = "OPPORTUNITY_FIELD_11"
	fieldDays      = "OPPORTUNITY_FIELD_12"
)

var testNow = time.Date(2016, time.March, 21, 14, 30, 0, 0, time.UTC)

func trackingDefinitions() []models.CustomFieldDefinition {
	return []models.CustomFieldDefinition{
		{FieldID: fieldLastStage, FieldFor: models.FieldForOpportunity, FieldName: "Last known stage"},
		{FieldID: fieldChanged, FieldFor: models.FieldForOpportunity, FieldName: "Last time stage changed"},
		{FieldID: fieldDays, FieldFor: models.FieldForOpportunity, FieldName: "Days in current stage"},
		{FieldID: "CONTACT_FIELD_1", FieldFor: "CONTACT", FieldName: "Last known stage"},
	}
}

func trackingStages() []models.PipelineStage {
	return []models.PipelineStage{
		{StageID: 824432, PipelineID: 259547, StageName: "stage1", StageOrder: 1},
		{StageID: 824433, PipelineID: 259547, StageName: "stage2", StageOrder: 2},
		{StageID: 824434, PipelineID: 259547, StageName: "stage3", StageOrder: 3},
	}
}

func stageID(v int64) *int64 {
	return &v
}

func newOpportunity(id int64, stage *int64, values ...models.CustomFieldValue) *models.Opportunity {
	return &models.Opportunity{
		ID:           id,
		Name:         "op",
		StageID:      stage,
		State:        models.OpportunityStateOpen,
		CustomFields: values,
	}
}

func value(id, raw string) models.CustomFieldValue {
	return models.CustomFieldValue{FieldID: id, Value: json.RawMessage(raw)}
}

func newTestStageTrackingService(crm *mockCRM) (*StageTrackingServiceImpl, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	service := NewStageTrackingService(crm, crm, crm, logger.NewWithCore(core), func() time.Time { return testNow })
	return service, logs
}

func fieldValue(t *testing.T, opp *models.Opportunity, id string) string {
	t.Helper()
	f := opp.Field(id)
	if f == nil {
		t.Fatalf("opportunity %d has no field %s", opp.ID, id)
	}
	return string(f.Value)
}

// ============================================================================
// Tests
// ============================================================================

func TestStageTrackingService_Run(t *testing.T) {
	tests := []struct {
		name        string
		opp         *models.Opportunity
		wantOutcome stage.Outcome
		wantStage   string
		wantChanged string
		wantDays    string
	}{
		{
			name:        "untracked opportunity gets stage and today",
			opp:         newOpportunity(1, stageID(824432)),
			wantOutcome: stage.OutcomeInitialized,
			wantStage:   "1",
			wantChanged: `"2016-03-21 00:00:00"`,
			wantDays:    "0",
		},
		{
			name: "same stage counts days since change",
			opp: newOpportunity(2, stageID(824432),
				value(fieldLastStage, "1"),
				value(fieldChanged, `"2016-03-16 00:00:00"`),
				value(fieldDays, "0"),
			),
			wantOutcome: stage.OutcomeUnchanged,
			wantStage:   "1",
			wantChanged: `"2016-03-16 00:00:00"`,
			wantDays:    "5",
		},
		{
			name: "advanced stage resets counter",
			opp: newOpportunity(3, stageID(824433),
				value(fieldLastStage, "1"),
				value(fieldChanged, `"2016-03-16 00:00:00"`),
				value(fieldDays, "5"),
			),
			wantOutcome: stage.OutcomeAdvanced,
			wantStage:   "2",
			wantChanged: `"2016-03-21 00:00:00"`,
			wantDays:    "0",
		},
		{
			name: "regressed stage leaves fields untouched",
			opp: newOpportunity(4, stageID(824432),
				value(fieldLastStage, "3"),
				value(fieldChanged, `"2016-03-01 00:00:00"`),
				value(fieldDays, "7"),
			),
			wantOutcome: stage.OutcomeRegressed,
			wantStage:   "3",
			wantChanged: `"2016-03-01 00:00:00"`,
			wantDays:    "7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crm := &mockCRM{
				defs:          trackingDefinitions(),
				stages:        trackingStages(),
				opportunities: []*models.Opportunity{tt.opp},
			}
			service, logs := newTestStageTrackingService(crm)

			summary, err := service.Run(context.Background(), primary.RunRequest{})
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			if len(crm.saved) != 1 {
				t.Fatalf("expected 1 save, got %d", len(crm.saved))
			}
			saved := crm.saved[0]
			if got := fieldValue(t, saved, fieldLastStage); got != tt.wantStage {
				t.Errorf("last known stage = %s, want %s", got, tt.wantStage)
			}
			if got := fieldValue(t, saved, fieldChanged); got != tt.wantChanged {
				t.Errorf("last time stage changed = %s, want %s", got, tt.wantChanged)
			}
			if got := fieldValue(t, saved, fieldDays); got != tt.wantDays {
				t.Errorf("days in current stage = %s, want %s", got, tt.wantDays)
			}

			if summary.Found != 1 || summary.Saved != 1 {
				t.Errorf("summary Found/Saved = %d/%d, want 1/1", summary.Found, summary.Saved)
			}
			if summary.Counts[tt.wantOutcome] != 1 {
				t.Errorf("summary Counts[%s] = %d, want 1", tt.wantOutcome, summary.Counts[tt.wantOutcome])
			}
			if summary.Results[0].Outcome != tt.wantOutcome {
				t.Errorf("result Outcome = %s, want %s", summary.Results[0].Outcome, tt.wantOutcome)
			}

			if n := logs.FilterMessage("opportunity last_known_stage updated").Len(); n != 1 {
				t.Errorf("expected 1 update log entry, got %d", n)
			}
		})
	}
}

func TestStageTrackingService_Run_LogsFoundCount(t *testing.T) {
	crm := &mockCRM{
		defs:   trackingDefinitions(),
		stages: trackingStages(),
		opportunities: []*models.Opportunity{
			newOpportunity(1, stageID(824432)),
			newOpportunity(2, stageID(824433)),
		},
	}
	service, logs := newTestStageTrackingService(crm)

	if _, err := service.Run(context.Background(), primary.RunRequest{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	found := logs.FilterMessage("opportunities found").All()
	if len(found) != 1 {
		t.Fatalf("expected 1 found log entry, got %d", len(found))
	}
	if got := found[0].ContextMap()["count"]; got != int64(2) {
		t.Errorf("found count = %v, want 2", got)
	}
}

func TestStageTrackingService_Run_SkipsOpportunityWithoutStage(t *testing.T) {
	untouched := newOpportunity(1, nil)
	crm := &mockCRM{
		defs:          trackingDefinitions(),
		stages:        trackingStages(),
		opportunities: []*models.Opportunity{untouched, newOpportunity(2, stageID(824432))},
	}
	service, _ := newTestStageTrackingService(crm)

	summary, err := service.Run(context.Background(), primary.RunRequest{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(crm.saved) != 1 || crm.saved[0].ID != 2 {
		t.Fatalf("expected only opportunity 2 to be saved, got %d saves", len(crm.saved))
	}
	if len(untouched.CustomFields) != 0 {
		t.Errorf("skipped opportunity should not gain custom fields, got %d", len(untouched.CustomFields))
	}
	if summary.Counts[stage.OutcomeSkipped] != 1 {
		t.Errorf("summary Counts[skipped] = %d, want 1", summary.Counts[stage.OutcomeSkipped])
	}
}

func TestStageTrackingService_Run_FieldProblemsAbortBeforeFetch(t *testing.T) {
	tests := []struct {
		name string
		defs []models.CustomFieldDefinition
	}{
		{
			name: "missing field",
			defs: trackingDefinitions()[:2],
		},
		{
			name: "duplicate field",
			defs: append(trackingDefinitions(), models.CustomFieldDefinition{
				FieldID: "OPPORTUNITY_FIELD_99", FieldFor: models.FieldForOpportunity, FieldName: "Days in current stage (old)",
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crm := &mockCRM{
				defs:          tt.defs,
				stages:        trackingStages(),
				opportunities: []*models.Opportunity{newOpportunity(1, stageID(824432))},
			}
			service, logs := newTestStageTrackingService(crm)

			_, err := service.Run(context.Background(), primary.RunRequest{})
			if !apperr.IsKind(err, apperr.KindConfiguration) {
				t.Fatalf("Run() error = %v, want configuration error", err)
			}
			if crm.fetchCalls != 0 {
				t.Errorf("expected no opportunity fetch, got %d", crm.fetchCalls)
			}
			if len(crm.saved) != 0 {
				t.Errorf("expected no saves, got %d", len(crm.saved))
			}
			if logs.FilterLevelExact(zap.ErrorLevel).Len() == 0 {
				t.Error("expected an error log entry")
			}
		})
	}
}

func TestStageTrackingService_Run_UnknownStageAborts(t *testing.T) {
	crm := &mockCRM{
		defs:   trackingDefinitions(),
		stages: trackingStages(),
		opportunities: []*models.Opportunity{
			newOpportunity(1, stageID(824432)),
			newOpportunity(2, stageID(999999)),
			newOpportunity(3, stageID(824433)),
		},
	}
	service, logs := newTestStageTrackingService(crm)

	summary, err := service.Run(context.Background(), primary.RunRequest{})
	if !apperr.IsKind(err, apperr.KindDataConsistency) {
		t.Fatalf("Run() error = %v, want data consistency error", err)
	}
	if len(crm.saved) != 1 || crm.saved[0].ID != 1 {
		t.Errorf("expected only opportunity 1 saved before abort, got %d saves", len(crm.saved))
	}
	if len(summary.Results) != 1 {
		t.Errorf("summary Results = %d, want 1", len(summary.Results))
	}
	if logs.FilterMessage("unknown stage referenced").Len() != 1 {
		t.Error("expected an unknown stage log entry")
	}
}

func TestStageTrackingService_Run_InvalidStoredValueAborts(t *testing.T) {
	tests := []struct {
		name  string
		field string
		raw   string
	}{
		{"stage is not a number", fieldLastStage, `"first"`},
		{"stage outside int range", fieldLastStage, "1e30"},
		{"days outside int range", fieldDays, "-1e30"},
		{"change date unreadable", fieldChanged, `"yesterday"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crm := &mockCRM{
				defs:   trackingDefinitions(),
				stages: trackingStages(),
				opportunities: []*models.Opportunity{
					newOpportunity(1, stageID(824432), value(tt.field, tt.raw)),
				},
			}
			service, _ := newTestStageTrackingService(crm)

			_, err := service.Run(context.Background(), primary.RunRequest{})
			if !apperr.IsKind(err, apperr.KindDataConsistency) {
				t.Fatalf("Run() error = %v, want data consistency error", err)
			}
			if len(crm.saved) != 0 {
				t.Errorf("expected no saves, got %d", len(crm.saved))
			}
		})
	}
}

func TestStageTrackingService_Run_SaveErrorAborts(t *testing.T) {
	saveErr := apperr.Upstream("PUT /opportunities/1", 500, "Insightly api PUT error: http status 500")
	crm := &mockCRM{
		defs:   trackingDefinitions(),
		stages: trackingStages(),
		opportunities: []*models.Opportunity{
			newOpportunity(1, stageID(824432)),
			newOpportunity(2, stageID(824432)),
		},
		saveErr: saveErr,
	}
	service, logs := newTestStageTrackingService(crm)

	summary, err := service.Run(context.Background(), primary.RunRequest{})
	if !errors.Is(err, saveErr) {
		t.Fatalf("Run() error = %v, want %v", err, saveErr)
	}
	if len(summary.Results) != 0 {
		t.Errorf("summary Results = %d, want 0", len(summary.Results))
	}
	if logs.FilterMessage("failed to save opportunity").Len() != 1 {
		t.Error("expected a save failure log entry")
	}
}

func TestStageTrackingService_Run_FetchErrorAborts(t *testing.T) {
	fetchErr := errors.New("connection refused")
	crm := &mockCRM{
		defs:     trackingDefinitions(),
		stages:   trackingStages(),
		fetchErr: fetchErr,
	}
	service, _ := newTestStageTrackingService(crm)

	_, err := service.Run(context.Background(), primary.RunRequest{})
	if !errors.Is(err, fetchErr) {
		t.Fatalf("Run() error = %v, want %v", err, fetchErr)
	}
}

func TestStageTrackingService_Run_DryRun(t *testing.T) {
	opp := newOpportunity(1, stageID(824433),
		value(fieldLastStage, "1"),
		value(fieldChanged, `"2016-03-16 00:00:00"`),
		value(fieldDays, "5"),
	)
	crm := &mockCRM{
		defs:          trackingDefinitions(),
		stages:        trackingStages(),
		opportunities: []*models.Opportunity{opp},
	}
	service, _ := newTestStageTrackingService(crm)

	summary, err := service.Run(context.Background(), primary.RunRequest{DryRun: true})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(crm.saved) != 0 {
		t.Errorf("dry run saved %d opportunities", len(crm.saved))
	}
	if !summary.DryRun || summary.Saved != 0 {
		t.Errorf("summary DryRun/Saved = %v/%d, want true/0", summary.DryRun, summary.Saved)
	}
	result := summary.Results[0]
	if result.Outcome != stage.OutcomeAdvanced || result.LastKnownStage == nil || *result.LastKnownStage != 2 {
		t.Errorf("result = %+v, want advanced to stage 2", result)
	}
}

func TestStageTrackingService_Run_SameDayIsStable(t *testing.T) {
	opp := newOpportunity(1, stageID(824432))
	crm := &mockCRM{
		defs:          trackingDefinitions(),
		stages:        trackingStages(),
		opportunities: []*models.Opportunity{opp},
	}
	service, _ := newTestStageTrackingService(crm)

	if _, err := service.Run(context.Background(), primary.RunRequest{}); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	first, err := json.Marshal(opp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	summary, err := service.Run(context.Background(), primary.RunRequest{})
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	second, err := json.Marshal(opp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if string(first) != string(second) {
		t.Errorf("second run changed the record:\n%s\n%s", first, second)
	}
	if summary.Counts[stage.OutcomeUnchanged] != 1 {
		t.Errorf("second run Counts[unchanged] = %d, want 1", summary.Counts[stage.OutcomeUnchanged])
	}
}

func TestStageTrackingService_ResolveFields(t *testing.T) {
	crm := &mockCRM{defs: trackingDefinitions()}
	service, _ := newTestStageTrackingService(crm)

	ids, err := service.ResolveFields(context.Background())
	if err != nil {
		t.Fatalf("ResolveFields() error = %v", err)
	}
	want := fields.IDs{LastKnownStage: fieldLastStage, LastStageChange: fieldChanged, DaysInStage: fieldDays}
	if *ids != want {
		t.Errorf("ResolveFields() = %+v, want %+v", *ids, want)
	}
}

func TestStageTrackingService_ListStages(t *testing.T) {
	crm := &mockCRM{stages: []models.PipelineStage{
		{StageID: 3, PipelineID: 1, StageOrder: 3},
		{StageID: 1, PipelineID: 1, StageOrder: 1},
	}}
	service, _ := newTestStageTrackingService(crm)

	stages, err := service.ListStages(context.Background())
	if err != nil {
		t.Fatalf("ListStages() error = %v", err)
	}
	if len(stages) != 2 || stages[0].StageID != 1 {
		t.Errorf("ListStages() = %+v, want sorted by order", stages)
	}

	crm.stagesErr = errors.New("boom")
	if _, err := service.ListStages(context.Background()); err == nil {
		t.Error("ListStages() expected error")
	}
}

func TestStageTrackingService_Run_TagsLogsWithRunID(t *testing.T) {
	crm := &mockCRM{
		defs:          trackingDefinitions(),
		stages:        trackingStages(),
		opportunities: []*models.Opportunity{newOpportunity(1, stageID(824432))},
	}
	service, logs := newTestStageTrackingService(crm)

	ctx := ctxutil.WithRunID(context.Background(), "run-42")
	if _, err := service.Run(ctx, primary.RunRequest{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for _, entry := range logs.All() {
		if got := entry.ContextMap()["run_id"]; got != "run-42" {
			t.Errorf("log %q run_id = %v, want run-42", entry.Message, got)
		}
	}
}
