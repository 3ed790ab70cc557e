package stage

import "time"

// Outcome names the branch a tracking decision took.
type Outcome string

const (
	// OutcomeInitialized: first observation, stage and change date recorded.
	OutcomeInitialized Outcome = "initialized"
	// OutcomeUnchanged: same stage as recorded, days recomputed.
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeAdvanced: stage order increased, counter reset.
	OutcomeAdvanced Outcome = "advanced"
	// OutcomeRegressed: stage order decreased, nothing updated.
	OutcomeRegressed Outcome = "regressed"
	// OutcomeSkipped: opportunity has no stage; never tracked nor saved.
	OutcomeSkipped Outcome = "skipped"
)

// State is the tracking tuple stored in an opportunity's custom fields.
type State struct {
	LastKnownStage *int      // nil until the opportunity is first tracked
	LastChange     time.Time // midnight of the day the stage was first observed
	DaysInStage    int
}

// Changes flags which parts of the state differ from the previous observation.
type Changes struct {
	LastKnownStage bool
	LastChange     bool
	DaysInStage    bool
}

// Any reports whether anything changed.
func (c Changes) Any() bool {
	return c.LastKnownStage || c.LastChange || c.DaysInStage
}

// Result is the outcome of one tracking decision.
type Result struct {
	Outcome Outcome
	State   State
	Changes Changes
}

// Track decides the new state for an opportunity currently at stage order
// current. today must already be truncated to midnight (see Today).
//
// Branches are evaluated in order: untracked, same stage, advanced, regressed.
// The untracked branch leaves DaysInStage as it was read.
func Track(prev State, current int, today time.Time) Result {
	next := prev

	var outcome Outcome
	switch {
	case prev.LastKnownStage == nil:
		outcome = OutcomeInitialized
		next.LastKnownStage = intPtr(current)
		next.LastChange = today
	case current == *prev.LastKnownStage:
		outcome = OutcomeUnchanged
		next.DaysInStage = DaysBetween(prev.LastChange, today)
	case current > *prev.LastKnownStage:
		outcome = OutcomeAdvanced
		next.DaysInStage = 0
		next.LastChange = today
		next.LastKnownStage = intPtr(current)
	default:
		outcome = OutcomeRegressed
	}

	return Result{
		Outcome: outcome,
		State:   next,
		Changes: diff(prev, next),
	}
}

// Today truncates now to midnight in now's location.
func Today(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}

// DaysBetween returns the whole calendar days from from to to.
// Time of day and DST shifts are ignored.
func DaysBetween(from, to time.Time) int {
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	start := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	end := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int((end.Unix() - start.Unix()) / secondsPerDay)
}

const secondsPerDay = 24 * 60 * 60

func diff(prev, next State) Changes {
	return Changes{
		LastKnownStage: !sameStage(prev.LastKnownStage, next.LastKnownStage),
		LastChange:     !prev.LastChange.Equal(next.LastChange),
		DaysInStage:    prev.DaysInStage != next.DaysInStage,
	}
}

func sameStage(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func intPtr(v int) *int {
	return &v
}
