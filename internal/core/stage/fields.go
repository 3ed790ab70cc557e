package stage

import (
	"fmt"
	"time"

	"github.com/example/stagetrack/internal/core/fields"
	"github.com/example/stagetrack/internal/models"
)

// ReadState ensures the three tracking slots exist on opp and decodes them.
// Missing slots (or slots without a value) get the defaults: no last known
// stage, today as the change date, and zero days.
func ReadState(opp *models.Opportunity, ids fields.IDs, today time.Time) (State, error) {
	opp.EnsureField(ids.LastKnownStage, nil)
	opp.EnsureField(ids.LastStageChange, EncodeDate(today))
	opp.EnsureField(ids.DaysInStage, EncodeInt(0))

	var state State

	if f := opp.Field(ids.LastKnownStage); f.HasValue() {
		order, err := DecodeInt(f.Value)
		if err != nil {
			return State{}, fmt.Errorf("last known stage: %w", err)
		}
		state.LastKnownStage = &order
	}

	changed, err := DecodeDate(opp.Field(ids.LastStageChange).Value, today.Location())
	if err != nil {
		return State{}, fmt.Errorf("last time stage changed: %w", err)
	}
	state.LastChange = changed

	days, err := DecodeInt(opp.Field(ids.DaysInStage).Value)
	if err != nil {
		return State{}, fmt.Errorf("days in current stage: %w", err)
	}
	state.DaysInStage = days

	return state, nil
}

// WriteState encodes the changed parts of res back into opp's slots.
// Unchanged slots keep their stored bytes.
func WriteState(opp *models.Opportunity, ids fields.IDs, res Result) {
	if res.Changes.LastKnownStage && res.State.LastKnownStage != nil {
		opp.EnsureField(ids.LastKnownStage, nil).Value = EncodeInt(*res.State.LastKnownStage)
	}
	if res.Changes.LastChange {
		opp.EnsureField(ids.LastStageChange, nil).Value = EncodeDate(res.State.LastChange)
	}
	if res.Changes.DaysInStage {
		opp.EnsureField(ids.DaysInStage, nil).Value = EncodeInt(res.State.DaysInStage)
	}
}
