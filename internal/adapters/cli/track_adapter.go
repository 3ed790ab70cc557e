// Package cli provides thin CLI adapters that translate between CLI concerns
// and application services. Adapters handle output formatting but delegate
// business logic to services.
package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"

	"github.com/example/stagetrack/internal/core/stage"
	"github.com/example/stagetrack/internal/ports/primary"
)

// outcomeOrder fixes the order outcomes are listed in the summary.
var outcomeOrder = []stage.Outcome{
	stage.OutcomeInitialized,
	stage.OutcomeUnchanged,
	stage.OutcomeAdvanced,
	stage.OutcomeRegressed,
	stage.OutcomeSkipped,
}

// TrackAdapter is a thin adapter that translates CLI operations to StageTrackingService calls.
type TrackAdapter struct {
	service primary.StageTrackingService
	out     io.Writer
}

// NewTrackAdapter creates a new TrackAdapter with the given service.
func NewTrackAdapter(service primary.StageTrackingService, out io.Writer) *TrackAdapter {
	return &TrackAdapter{
		service: service,
		out:     out,
	}
}

// Run performs a tracking run and prints what happened to each opportunity.
// A partial summary is still printed when the run aborts.
func (a *TrackAdapter) Run(ctx context.Context, dryRun bool) error {
	summary, err := a.service.Run(ctx, primary.RunRequest{DryRun: dryRun})
	if summary != nil {
		a.printSummary(summary)
	}
	if err != nil {
		return fmt.Errorf("tracking run failed: %w", err)
	}
	return nil
}

// Fields prints the resolved tracking field ids.
func (a *TrackAdapter) Fields(ctx context.Context) error {
	ids, err := a.service.ResolveFields(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve fields: %w", err)
	}

	fmt.Fprintf(a.out, "\n%-26s %s\n", "FIELD", "ID")
	fmt.Fprintln(a.out, "────────────────────────────────────────────────────────────────")
	fmt.Fprintf(a.out, "%-26s %s\n", "last_known_stage", ids.LastKnownStage)
	fmt.Fprintf(a.out, "%-26s %s\n", "last_time_stage_changed", ids.LastStageChange)
	fmt.Fprintf(a.out, "%-26s %s\n", "days_in_current_stage", ids.DaysInStage)
	fmt.Fprintln(a.out)

	return nil
}

// Stages prints the pipeline stage catalog.
func (a *TrackAdapter) Stages(ctx context.Context) error {
	stages, err := a.service.ListStages(ctx)
	if err != nil {
		return fmt.Errorf("failed to list stages: %w", err)
	}

	if len(stages) == 0 {
		fmt.Fprintln(a.out, "No pipeline stages found")
		return nil
	}

	fmt.Fprintf(a.out, "\n%-12s %-12s %-6s %s\n", "PIPELINE", "STAGE", "ORDER", "NAME")
	fmt.Fprintln(a.out, "────────────────────────────────────────────────────────────────")
	for _, s := range stages {
		fmt.Fprintf(a.out, "%-12d %-12d %-6d %s\n", s.PipelineID, s.StageID, s.StageOrder, s.StageName)
	}
	fmt.Fprintln(a.out)

	return nil
}

func (a *TrackAdapter) printSummary(summary *primary.RunSummary) {
	if summary.DryRun {
		fmt.Fprintln(a.out, color.New(color.FgYellow).Sprint("Dry run: no opportunity was saved"))
	}

	if len(summary.Results) > 0 {
		fmt.Fprintf(a.out, "\n%-10s %-12s %-6s %-6s %-5s %s\n", "ID", "OUTCOME", "ORDER", "KNOWN", "DAYS", "NAME")
		fmt.Fprintln(a.out, "────────────────────────────────────────────────────────────────")
		for _, r := range summary.Results {
			fmt.Fprintf(a.out, "%-10d %s %-6s %-6s %-5d %s\n",
				r.OpportunityID,
				outcomeLabel(r.Outcome),
				orderText(r.Outcome, r.StageOrder),
				knownText(r.LastKnownStage),
				r.DaysInStage,
				r.Name,
			)
		}
	}

	fmt.Fprintf(a.out, "\n%d opportunities found, %d saved\n", summary.Found, summary.Saved)
	for _, outcome := range outcomeOrder {
		if n := summary.Counts[outcome]; n > 0 {
			fmt.Fprintf(a.out, "  %s %d\n", outcomeLabel(outcome), n)
		}
	}
}

func outcomeLabel(o stage.Outcome) string {
	c := color.New(color.Reset)
	switch o {
	case stage.OutcomeInitialized:
		c = color.New(color.FgCyan)
	case stage.OutcomeAdvanced:
		c = color.New(color.FgGreen)
	case stage.OutcomeRegressed:
		c = color.New(color.FgRed)
	case stage.OutcomeSkipped:
		c = color.New(color.FgHiBlack)
	}
	return c.Sprintf("%-12s", o)
}

func orderText(o stage.Outcome, order int) string {
	if o == stage.OutcomeSkipped {
		return "-"
	}
	return strconv.Itoa(order)
}

func knownText(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}
