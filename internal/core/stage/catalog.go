// Package stage contains the pure business logic for stage tracking.
// This is part of the Functional Core - no I/O, only pure functions.
package stage

import (
	"sort"

	"github.com/example/stagetrack/internal/models"
)

// Catalog maps stage ids to stage orders.
// All pipelines share one flat lookup; orders from different pipelines are
// compared as if they belonged to the same one.
type Catalog struct {
	orders map[int64]int
	stages []models.PipelineStage
}

// NewCatalog builds the lookup. A stage id listed twice keeps its last order.
func NewCatalog(stages []models.PipelineStage) *Catalog {
	c := &Catalog{
		orders: make(map[int64]int, len(stages)),
		stages: make([]models.PipelineStage, len(stages)),
	}
	copy(c.stages, stages)
	for _, s := range stages {
		c.orders[s.StageID] = s.StageOrder
	}
	return c
}

// Order returns the stage order for stageID and whether the stage is known.
func (c *Catalog) Order(stageID int64) (int, bool) {
	order, ok := c.orders[stageID]
	return order, ok
}

// Len returns the number of distinct stage ids.
func (c *Catalog) Len() int {
	return len(c.orders)
}

// Stages returns the stages sorted by pipeline, then order.
func (c *Catalog) Stages() []models.PipelineStage {
	out := make([]models.PipelineStage, len(c.stages))
	copy(out, c.stages)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PipelineID != out[j].PipelineID {
			return out[i].PipelineID < out[j].PipelineID
		}
		return out[i].StageOrder < out[j].StageOrder
	})
	return out
}
