// Package secondary defines the secondary ports (driven adapters) for the application.
// These are the interfaces through which the application drives the remote CRM.
package secondary

import (
	"context"

	"github.com/example/stagetrack/internal/models"
)

// OpportunityStore defines the secondary port for reading and saving opportunities.
type OpportunityStore interface {
	// FetchOpenOpportunities returns every opportunity in the OPEN state.
	// Implementations page internally until the server-reported total is reached.
	FetchOpenOpportunities(ctx context.Context) ([]*models.Opportunity, error)

	// Save persists the whole opportunity, custom fields included.
	Save(ctx context.Context, opp *models.Opportunity) error
}

// FieldCatalogSource defines the secondary port for custom field definitions.
type FieldCatalogSource interface {
	// FetchCustomFieldDefinitions returns all custom field definitions.
	FetchCustomFieldDefinitions(ctx context.Context) ([]models.CustomFieldDefinition, error)
}

// PipelineStageSource defines the secondary port for pipeline stages.
type PipelineStageSource interface {
	// FetchPipelineStages returns the stages of every pipeline.
	FetchPipelineStages(ctx context.Context) ([]models.PipelineStage, error)
}

// CRM bundles the three ports. The Insightly adapter implements all of them.
type CRM interface {
	OpportunityStore
	FieldCatalogSource
	PipelineStageSource
}
