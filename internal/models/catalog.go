package models

// FieldForOpportunity marks custom field definitions that apply to opportunities.
const FieldForOpportunity = "OPPORTUNITY"

// CustomFieldDefinition describes a user-defined custom field.
type CustomFieldDefinition struct {
	FieldID   string `json:"CUSTOM_FIELD_ID"`
	FieldFor  string `json:"FIELD_FOR"`
	FieldName string `json:"FIELD_NAME"`
	FieldType string `json:"FIELD_TYPE,omitempty"`
}

// PipelineStage is a position within a sales pipeline.
// StageOrder ascends as the opportunity progresses.
type PipelineStage struct {
	StageID    int64  `json:"STAGE_ID"`
	PipelineID int64  `json:"PIPELINE_ID"`
	StageName  string `json:"STAGE_NAME,omitempty"`
	StageOrder int    `json:"STAGE_ORDER"`
}
