package trust

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *MetricsConfig {
	return &MetricsConfig{
		AppID:       "lending-app",
		DeveloperID: "dev-7",
		Fields: map[string]FieldSpec{
			"repayment_rate": {
				FieldType:  FieldNumeric,
				Weight:     0.6,
				DataSource: DataSource{Type: SourceUserInput},
				MinValue:   0,
				MaxValue:   1,
			},
			"collateral_ratio": {
				FieldType:  FieldNumeric,
				Weight:     0.4,
				DataSource: DataSource{Type: SourceOffChain, APIEndpoint: "https://oracle.example/collateral"},
				DecayRate:  0.01,
				MinValue:   0,
				MaxValue:   10,
			},
		},
		AggregationRules: AggregationRules{
			Method:       AggWeightedAverage,
			CoreWeight:   0.7,
			CustomWeight: 0.3,
		},
		ValidationRules: ValidationRules{
			RequiredFields: []string{"repayment_rate"},
			MinCoreScore:   0.2,
			MaxDecayRate:   0.05,
		},
		CreatedAt: time.Now().UTC(),
	}
}

func TestMetricsConfigValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestMetricsConfigValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*MetricsConfig)
		field  string
	}{
		{"blank app id", func(c *MetricsConfig) { c.AppID = "  " }, "app_id"},
		{"blank developer", func(c *MetricsConfig) { c.DeveloperID = "" }, "developer_id"},
		{"no fields", func(c *MetricsConfig) { c.Fields = nil }, "fields"},
		{"unknown method", func(c *MetricsConfig) { c.AggregationRules.Method = "median" }, "aggregation_rules.method"},
		{"core weight out of range", func(c *MetricsConfig) { c.AggregationRules.CoreWeight = 1.5 }, "aggregation_rules.core_weight"},
		{"negative custom weight", func(c *MetricsConfig) { c.AggregationRules.CustomWeight = -0.1 }, "aggregation_rules.custom_weight"},
		{"min core score out of range", func(c *MetricsConfig) { c.ValidationRules.MinCoreScore = 2 }, "validation_rules.min_core_score"},
		{"required field undefined", func(c *MetricsConfig) {
			c.ValidationRules.RequiredFields = []string{"ghost"}
		}, "validation_rules.required_fields"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
		})
	}
}

func TestFieldSpecValidate(t *testing.T) {
	base := func() FieldSpec {
		return FieldSpec{
			FieldType:  FieldNumeric,
			Weight:     0.5,
			DataSource: DataSource{Type: SourceUserInput},
			MinValue:   0,
			MaxValue:   1,
		}
	}

	t.Run("decay above app ceiling", func(t *testing.T) {
		s := base()
		s.DecayRate = 0.2
		err := s.validate("activity", 0.05)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_decay_rate")
	})

	t.Run("inverted range", func(t *testing.T) {
		s := base()
		s.MinValue, s.MaxValue = 5, 1
		assert.Error(t, s.validate("activity", 0))
	})

	t.Run("default outside range", func(t *testing.T) {
		s := base()
		s.DefaultValue = 3
		assert.Error(t, s.validate("activity", 0))
	})

	t.Run("both bounds zero skips range checks", func(t *testing.T) {
		s := base()
		s.MinValue, s.MaxValue, s.DefaultValue = 0, 0, 99
		assert.NoError(t, s.validate("activity", 0))
	})

	t.Run("offchain requires endpoint", func(t *testing.T) {
		s := base()
		s.DataSource = DataSource{Type: SourceOffChain}
		assert.Error(t, s.validate("price", 0))
	})

	t.Run("onchain requires contract", func(t *testing.T) {
		s := base()
		s.DataSource = DataSource{Type: SourceOnChain, Method: "balanceOf"}
		assert.Error(t, s.validate("stake", 0))
	})

	t.Run("crossreference requires target", func(t *testing.T) {
		s := base()
		s.DataSource = DataSource{Type: SourceCrossReference}
		assert.Error(t, s.validate("mirror", 0))
	})

	t.Run("unknown source type", func(t *testing.T) {
		s := base()
		s.DataSource = DataSource{Type: "oracle"}
		assert.Error(t, s.validate("feed", 0))
	})
}

func TestPolicyAndValidationPredicates(t *testing.T) {
	assert.True(t, IsValidation(&ValidationError{Field: "x", Reason: "bad"}))
	assert.False(t, IsValidation(ErrNotFound))
	assert.True(t, IsPolicy(&PolicyError{Code: PolicySelfDelegation, Reason: "no"}))
	assert.False(t, IsPolicy(&ValidationError{Field: "x", Reason: "bad"}))
}
