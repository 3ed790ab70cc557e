// Package models contains domain types for the CRM records the tracker reads and writes.
// JSON tags follow the Insightly v2.2 wire names.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// OpportunityStateOpen is the only state the tracker fetches.
const OpportunityStateOpen = "OPEN"

const (
	keyOpportunityID   = "OPPORTUNITY_ID"
	keyOpportunityName = "OPPORTUNITY_NAME"
	keyStageID         = "STAGE_ID"
	keyState           = "OPPORTUNITY_STATE"
	keyCustomFields    = "CUSTOMFIELDS"
)

// Opportunity is a sales-pipeline record.
// Attributes not modeled here are kept verbatim so that a save writes back the
// whole record unchanged apart from its custom fields.
type Opportunity struct {
	ID           int64
	Name         string
	StageID      *int64 // nil when the opportunity is not in any stage
	State        string
	CustomFields []CustomFieldValue

	extra map[string]json.RawMessage
}

// CustomFieldValue is one custom field slot on an opportunity.
// Value is nil when the field carries no value yet.
type CustomFieldValue struct {
	FieldID string          `json:"CUSTOM_FIELD_ID"`
	Value   json.RawMessage `json:"FIELD_VALUE,omitempty"`
}

// HasValue reports whether the slot holds a value. null and "" count as empty.
func (v *CustomFieldValue) HasValue() bool {
	trimmed := bytes.TrimSpace(v.Value)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) && !bytes.Equal(trimmed, []byte(`""`))
}

// Field returns the first custom field slot with the given id, or nil.
func (o *Opportunity) Field(fieldID string) *CustomFieldValue {
	for i := range o.CustomFields {
		if o.CustomFields[i].FieldID == fieldID {
			return &o.CustomFields[i]
		}
	}
	return nil
}

// EnsureField returns the slot for fieldID, appending one when it is missing.
// A missing slot, or one without a value, receives def (when def is non-nil).
func (o *Opportunity) EnsureField(fieldID string, def json.RawMessage) *CustomFieldValue {
	field := o.Field(fieldID)
	if field == nil {
		o.CustomFields = append(o.CustomFields, CustomFieldValue{FieldID: fieldID})
		field = &o.CustomFields[len(o.CustomFields)-1]
	}
	if !field.HasValue() && def != nil {
		field.Value = def
	}
	return field
}

// UnmarshalJSON decodes the modeled attributes and keeps the rest.
func (o *Opportunity) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var decoded Opportunity
	decode := func(key string, dst any) error {
		v, ok := raw[key]
		if !ok {
			return nil
		}
		delete(raw, key)
		if err := json.Unmarshal(v, dst); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		return nil
	}

	if err := decode(keyOpportunityID, &decoded.ID); err != nil {
		return err
	}
	if err := decode(keyOpportunityName, &decoded.Name); err != nil {
		return err
	}
	if err := decode(keyStageID, &decoded.StageID); err != nil {
		return err
	}
	if err := decode(keyState, &decoded.State); err != nil {
		return err
	}
	if err := decode(keyCustomFields, &decoded.CustomFields); err != nil {
		return err
	}

	decoded.extra = raw
	*o = decoded
	return nil
}

// MarshalJSON encodes the full record, including attributes that were not modeled.
func (o Opportunity) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(o.extra)+5)
	for k, v := range o.extra {
		out[k] = v
	}

	customFields := o.CustomFields
	if customFields == nil {
		customFields = []CustomFieldValue{}
	}

	out[keyOpportunityID] = o.ID
	out[keyOpportunityName] = o.Name
	out[keyStageID] = o.StageID
	out[keyState] = o.State
	out[keyCustomFields] = customFields

	return json.Marshal(out)
}
