package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Len(t, cfg.Tiers, 3)
	assert.Equal(t, 0.10, cfg.Classifier.ScoreThreshold)
	assert.Equal(t, 0.50, cfg.Gates.ConfidenceFloor)
	assert.Equal(t, 256, cfg.Strategies.MaxGridSize)
	assert.True(t, cfg.VolTarget.Enabled)
}

func TestLoad_EnvOverride(t *testing.T) {
	os.Setenv("GATES_CONFIDENCE_FLOOR", "0.65")
	defer os.Unsetenv("GATES_CONFIDENCE_FLOOR")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.65, cfg.Gates.ConfidenceFloor)
}

func TestValidate_WeightsMustSumToOne(t *testing.T) {
	cfg := &Config{
		Tiers: []TierConfig{{Name: "MT"}},
		Classifier: ClassifierConfig{
			Weights: ClassifierWeights{Hurst: 0.5, VR: 0.5, ADF: 0.5},
		},
		Gates: GatesConfig{ConfidenceFloor: 0.5},
		VolTarget: VolTargetConfig{
			MinWeight: 0,
			MaxWeight: 1,
		},
		Backtest: BacktestConfig{TrainWindow: 1, ValidationWindow: 1},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config_invalid")
}

func TestValidate_RequiresAtLeastOneTier(t *testing.T) {
	cfg := &Config{
		Classifier: ClassifierConfig{Weights: ClassifierWeights{Hurst: 0.4, VR: 0.4, ADF: 0.2}},
		Gates:      GatesConfig{ConfidenceFloor: 0.5},
		VolTarget:  VolTargetConfig{MinWeight: 0, MaxWeight: 1},
		Backtest:   BacktestConfig{TrainWindow: 1, ValidationWindow: 1},
	}
	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidate_MinWeightMustNotExceedMax(t *testing.T) {
	cfg := &Config{
		Tiers:      []TierConfig{{Name: "MT"}},
		Classifier: ClassifierConfig{Weights: ClassifierWeights{Hurst: 0.4, VR: 0.4, ADF: 0.2}},
		Gates:      GatesConfig{ConfidenceFloor: 0.5},
		VolTarget:  VolTargetConfig{MinWeight: 0.9, MaxWeight: 0.1},
		Backtest:   BacktestConfig{TrainWindow: 1, ValidationWindow: 1},
	}
	err := cfg.Validate()
	require.Error(t, err)
}
