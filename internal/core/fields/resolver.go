// Package fields contains the pure logic that locates the tracking custom fields.
// This is part of the Functional Core - no I/O, only pure functions.
package fields

import (
	"fmt"
	"strings"

	"github.com/example/stagetrack/internal/models"
)

// Name phrases matched (case-insensitive substring) against custom field names.
const (
	PhraseLastKnownStage  = "last known stage"
	PhraseLastStageChange = "last time stage changed"
	PhraseDaysInStage     = "days in current stage"
)

// IDs are the resolved custom field identifiers used as lookup keys for a run.
type IDs struct {
	LastKnownStage  string
	LastStageChange string
	DaysInStage     string
}

// Problem describes one tracking field that could not be resolved.
type Problem struct {
	Field   string   // logical name, e.g. "last_known_stage"
	Matches []string // ids of matching definitions (empty when none matched)
}

func (p Problem) String() string {
	if len(p.Matches) == 0 {
		return fmt.Sprintf("no %s custom field found", p.Field)
	}
	return fmt.Sprintf("more than one %s custom field: %s", p.Field, strings.Join(p.Matches, ", "))
}

// ResolveResult is the outcome of resolving all three tracking fields.
type ResolveResult struct {
	IDs      IDs
	Problems []Problem
}

// OK reports whether every field resolved to exactly one definition.
func (r ResolveResult) OK() bool {
	return len(r.Problems) == 0
}

// Error returns the problems as an error, or nil when resolution succeeded.
func (r ResolveResult) Error() error {
	if r.OK() {
		return nil
	}
	msgs := make([]string, 0, len(r.Problems))
	for _, p := range r.Problems {
		msgs = append(msgs, p.String())
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}

// MatchByName returns the opportunity field definitions whose name contains phrase.
func MatchByName(defs []models.CustomFieldDefinition, phrase string) []models.CustomFieldDefinition {
	needle := strings.ToLower(phrase)
	var matches []models.CustomFieldDefinition
	for _, d := range defs {
		if d.FieldFor == models.FieldForOpportunity && strings.Contains(strings.ToLower(d.FieldName), needle) {
			matches = append(matches, d)
		}
	}
	return matches
}

// Resolve finds exactly one definition for each tracking field.
// Every missing or ambiguous field is reported, not just the first.
func Resolve(defs []models.CustomFieldDefinition) ResolveResult {
	var result ResolveResult

	targets := []struct {
		field  string
		phrase string
		dst    *string
	}{
		{"last_known_stage", PhraseLastKnownStage, &result.IDs.LastKnownStage},
		{"last_time_stage_changed", PhraseLastStageChange, &result.IDs.LastStageChange},
		{"days_in_current_stage", PhraseDaysInStage, &result.IDs.DaysInStage},
	}

	for _, target := range targets {
		matches := MatchByName(defs, target.phrase)
		if len(matches) == 1 {
			*target.dst = matches[0].FieldID
			continue
		}
		ids := make([]string, 0, len(matches))
		for _, m := range matches {
			ids = append(ids, m.FieldID)
		}
		result.Problems = append(result.Problems, Problem{Field: target.field, Matches: ids})
	}

	if !result.OK() {
		result.IDs = IDs{}
	}
	return result
}
