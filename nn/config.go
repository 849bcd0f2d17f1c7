package nn

import (
	"encoding/json"
	"fmt"
	"os"
)

// Defaults applied by DefaultStackConfig and by Normalize to zero fields.
const (
	DefaultNumLayers = 12
	DefaultEpsilon   = 1e-5
)

// StackConfig is the construction-time description of a DualAxisStack.
// It round-trips through JSON. NumLayers and GateReduction have no implicit
// defaults in Go code: start from DefaultStackConfig. JSON fields that are
// absent take the defaults (see ParseStackConfig); explicit zeros are rejected.
type StackConfig struct {
	FeatureWidth       int            `json:"feature_width"`
	HiddenWidth        int            `json:"hidden_width"`
	RecurrenceKind     RecurrenceKind `json:"recurrence_kind"`
	Bidirectional      *bool          `json:"bidirectional,omitempty"`
	NumLayers          int            `json:"num_layers"`
	GateReduction      int            `json:"gate_reduction"`
	Epsilon            float64        `json:"epsilon,omitempty"`
	Seed               int64          `json:"seed,omitempty"`
	ParallelDirections bool           `json:"parallel_directions,omitempty"`
}

// DefaultStackConfig returns a bidirectional LSTM stack of DefaultNumLayers
// layers with gate reduction DefaultGateReduction.
func DefaultStackConfig(featureWidth, hiddenWidth int) StackConfig {
	bidirectional := true
	return StackConfig{
		FeatureWidth:   featureWidth,
		HiddenWidth:    hiddenWidth,
		RecurrenceKind: GatedLSTM,
		Bidirectional:  &bidirectional,
		NumLayers:      DefaultNumLayers,
		GateReduction:  DefaultGateReduction,
		Epsilon:        DefaultEpsilon,
	}
}

// IsBidirectional reports the effective direction setting (default true).
func (c StackConfig) IsBidirectional() bool {
	return c.Bidirectional == nil || *c.Bidirectional
}

// Normalize fills Epsilon and Bidirectional when left unset. Sizes are
// never filled in, so a zero NumLayers or GateReduction still fails Validate.
func (c StackConfig) Normalize() StackConfig {
	if c.Epsilon == 0 {
		c.Epsilon = DefaultEpsilon
	}
	if c.Bidirectional == nil {
		bidirectional := true
		c.Bidirectional = &bidirectional
	}
	return c
}

// Validate reports the first configuration problem as an ErrConfiguration.
func (c StackConfig) Validate() error {
	if c.FeatureWidth <= 0 {
		return configErrorf("feature_width must be positive, got %d", c.FeatureWidth)
	}
	if c.HiddenWidth <= 0 {
		return configErrorf("hidden_width must be positive, got %d", c.HiddenWidth)
	}
	if c.NumLayers <= 0 {
		return configErrorf("num_layers must be positive, got %d", c.NumLayers)
	}
	if c.GateReduction <= 0 {
		return configErrorf("gate_reduction must be positive, got %d", c.GateReduction)
	}
	if c.FeatureWidth%c.GateReduction != 0 {
		return configErrorf("feature_width %d not divisible by gate_reduction %d", c.FeatureWidth, c.GateReduction)
	}
	if c.RecurrenceKind.gates() == 0 {
		return configErrorf("unknown recurrence kind %d", int(c.RecurrenceKind))
	}
	if c.Epsilon < 0 {
		return configErrorf("epsilon must not be negative, got %g", c.Epsilon)
	}
	return nil
}

// blockConfig is the per-block view of the stack configuration.
func (c StackConfig) blockConfig() BlockConfig {
	return BlockConfig{
		FeatureWidth:  c.FeatureWidth,
		HiddenWidth:   c.HiddenWidth,
		Kind:          c.RecurrenceKind,
		Bidirectional: c.IsBidirectional(),
		Epsilon:       c.Epsilon,
		Parallel:      c.ParallelDirections,
	}
}

// ParseStackConfig decodes a JSON config over the defaults, so only fields
// missing from data keep their default values.
func ParseStackConfig(data []byte) (StackConfig, error) {
	c := StackConfig{
		NumLayers:     DefaultNumLayers,
		GateReduction: DefaultGateReduction,
		Epsilon:       DefaultEpsilon,
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return StackConfig{}, fmt.Errorf("failed to parse stack config: %w", err)
	}
	c = c.Normalize()
	if err := c.Validate(); err != nil {
		return StackConfig{}, err
	}
	return c, nil
}

// LoadStackConfig reads a JSON config file.
func LoadStackConfig(path string) (StackConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return StackConfig{}, fmt.Errorf("failed to read stack config: %w", err)
	}
	return ParseStackConfig(data)
}

// Save writes the config as indented JSON.
func (c StackConfig) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal stack config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
