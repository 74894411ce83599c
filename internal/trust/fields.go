package trust

import (
	"fmt"
	"strings"
	"time"
)

// FieldType classifies a custom trust field.
type FieldType string

const (
	FieldNumeric        FieldType = "numeric"
	FieldBoolean        FieldType = "boolean"
	FieldCategorical    FieldType = "categorical"
	FieldTimeSeries     FieldType = "timeseries"
	FieldCompoundMetric FieldType = "compound"
)

// SourceType identifies where a field's raw value comes from.
type SourceType string

const (
	SourceOnChain        SourceType = "onchain"
	SourceOffChain       SourceType = "offchain"
	SourceUserInput      SourceType = "userinput"
	SourceCoreTrust      SourceType = "coretrust"
	SourceCrossReference SourceType = "crossreference"
)

// CoreTrustRef is the reserved CrossReference target that resolves to the
// address's core trust score.
const CoreTrustRef = "core_trust"

// DataSource is a tagged union describing how to fetch a field's raw value.
// Only the fields relevant to Type are set.
type DataSource struct {
	Type        SourceType `json:"type"`
	Contract    string     `json:"contract,omitempty"`     // OnChain
	Method      string     `json:"method,omitempty"`       // OnChain
	APIEndpoint string     `json:"api_endpoint,omitempty"` // OffChain
	RefField    string     `json:"ref_field,omitempty"`    // CrossReference
}

// FieldSpec describes one application-defined trust input.
type FieldSpec struct {
	FieldType        FieldType  `json:"field_type"`
	Weight           float64    `json:"weight"`
	DataSource       DataSource `json:"data_source"`
	ValidationMethod string     `json:"validation_method,omitempty"`
	DecayRate        float64    `json:"decay_rate,omitempty"`
	MinValue         float64    `json:"min_value"`
	MaxValue         float64    `json:"max_value"`
	DefaultValue     float64    `json:"default_value"`
}

// AggregationMethod selects how core and custom scores combine.
type AggregationMethod string

const (
	AggWeightedAverage AggregationMethod = "weighted_average"
	AggWeightedSum     AggregationMethod = "weighted_sum"
	AggMinimum         AggregationMethod = "minimum"
	AggMaximum         AggregationMethod = "maximum"
	AggCustom          AggregationMethod = "custom"
)

// AggregationRules tells the aggregator how to combine core and custom scores.
type AggregationRules struct {
	Method       AggregationMethod `json:"method"`
	CoreWeight   float64           `json:"core_weight"`
	CustomWeight float64           `json:"custom_weight"`
}

// ValidationRules are app-level constraints enforced at registration and
// verification time.
type ValidationRules struct {
	RequiredFields []string `json:"required_fields,omitempty"`
	MinCoreScore   float64  `json:"min_core_score,omitempty"`
	MaxDecayRate   float64  `json:"max_decay_rate,omitempty"`
}

// MetricsConfig is the full custom-metrics schema registered by one
// application developer.
type MetricsConfig struct {
	AppID            string               `json:"app_id"`
	DeveloperID      string               `json:"developer_id"`
	Fields           map[string]FieldSpec `json:"fields"`
	AggregationRules AggregationRules     `json:"aggregation_rules"`
	ValidationRules  ValidationRules      `json:"validation_rules"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

var validFieldTypes = map[FieldType]bool{
	FieldNumeric:        true,
	FieldBoolean:        true,
	FieldCategorical:    true,
	FieldTimeSeries:     true,
	FieldCompoundMetric: true,
}

var validSourceTypes = map[SourceType]bool{
	SourceOnChain:        true,
	SourceOffChain:       true,
	SourceUserInput:      true,
	SourceCoreTrust:      true,
	SourceCrossReference: true,
}

var validAggMethods = map[AggregationMethod]bool{
	AggWeightedAverage: true,
	AggWeightedSum:     true,
	AggMinimum:         true,
	AggMaximum:         true,
	AggCustom:          true,
}

// Validate checks the config against the registration schema. It returns a
// *ValidationError describing the first problem found; nothing is mutated.
func (c *MetricsConfig) Validate() error {
	if strings.TrimSpace(c.AppID) == "" {
		return &ValidationError{Field: "app_id", Reason: "required"}
	}
	if strings.TrimSpace(c.DeveloperID) == "" {
		return &ValidationError{Field: "developer_id", Reason: "required"}
	}
	if len(c.Fields) == 0 {
		return &ValidationError{Field: "fields", Reason: "at least one field is required"}
	}
	if !validAggMethods[c.AggregationRules.Method] {
		return &ValidationError{
			Field:  "aggregation_rules.method",
			Reason: fmt.Sprintf("unknown method %q", c.AggregationRules.Method),
		}
	}
	if c.AggregationRules.CoreWeight < 0 || c.AggregationRules.CoreWeight > 1 {
		return &ValidationError{Field: "aggregation_rules.core_weight", Reason: "must be in [0,1]"}
	}
	if c.AggregationRules.CustomWeight < 0 || c.AggregationRules.CustomWeight > 1 {
		return &ValidationError{Field: "aggregation_rules.custom_weight", Reason: "must be in [0,1]"}
	}
	if c.ValidationRules.MinCoreScore < 0 || c.ValidationRules.MinCoreScore > 1 {
		return &ValidationError{Field: "validation_rules.min_core_score", Reason: "must be in [0,1]"}
	}
	if c.ValidationRules.MaxDecayRate < 0 || c.ValidationRules.MaxDecayRate > 1 {
		return &ValidationError{Field: "validation_rules.max_decay_rate", Reason: "must be in [0,1]"}
	}

	for name, spec := range c.Fields {
		if err := spec.validate(name, c.ValidationRules.MaxDecayRate); err != nil {
			return err
		}
	}

	for _, required := range c.ValidationRules.RequiredFields {
		if _, ok := c.Fields[required]; !ok {
			return &ValidationError{
				Field:  "validation_rules.required_fields",
				Reason: fmt.Sprintf("required field %q is not defined", required),
			}
		}
	}
	return nil
}

func (s FieldSpec) validate(name string, maxDecayRate float64) error {
	prefix := "fields." + name

	if !validFieldTypes[s.FieldType] {
		return &ValidationError{Field: prefix + ".field_type", Reason: fmt.Sprintf("unknown type %q", s.FieldType)}
	}
	if s.Weight < 0 || s.Weight > 1 {
		return &ValidationError{Field: prefix + ".weight", Reason: "must be in [0,1]"}
	}
	if s.DecayRate < 0 || s.DecayRate > 1 {
		return &ValidationError{Field: prefix + ".decay_rate", Reason: "must be in [0,1]"}
	}
	if maxDecayRate > 0 && s.DecayRate > maxDecayRate {
		return &ValidationError{
			Field:  prefix + ".decay_rate",
			Reason: fmt.Sprintf("exceeds max_decay_rate %g", maxDecayRate),
		}
	}
	if s.MinValue != 0 || s.MaxValue != 0 {
		if s.MinValue >= s.MaxValue {
			return &ValidationError{Field: prefix + ".min_value", Reason: "min_value must be less than max_value"}
		}
		if s.DefaultValue < s.MinValue || s.DefaultValue > s.MaxValue {
			return &ValidationError{Field: prefix + ".default_value", Reason: "must be within [min_value, max_value]"}
		}
	}

	switch s.DataSource.Type {
	case SourceOffChain:
		if strings.TrimSpace(s.DataSource.APIEndpoint) == "" {
			return &ValidationError{Field: prefix + ".data_source.api_endpoint", Reason: "required for offchain source"}
		}
	case SourceOnChain:
		if strings.TrimSpace(s.DataSource.Contract) == "" {
			return &ValidationError{Field: prefix + ".data_source.contract", Reason: "required for onchain source"}
		}
	case SourceCrossReference:
		if strings.TrimSpace(s.DataSource.RefField) == "" {
			return &ValidationError{Field: prefix + ".data_source.ref_field", Reason: "required for crossreference source"}
		}
	case SourceUserInput, SourceCoreTrust:
		// No extra configuration.
	default:
		if !validSourceTypes[s.DataSource.Type] {
			return &ValidationError{
				Field:  prefix + ".data_source.type",
				Reason: fmt.Sprintf("unknown source type %q", s.DataSource.Type),
			}
		}
	}
	return nil
}
