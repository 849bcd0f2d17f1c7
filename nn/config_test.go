package nn

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestParseStackConfigDefaults(t *testing.T) {
	cfg, err := ParseStackConfig([]byte(`{"feature_width": 32, "hidden_width": 8, "recurrence_kind": "gru"}`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.NumLayers != DefaultNumLayers || cfg.GateReduction != DefaultGateReduction || cfg.Epsilon != DefaultEpsilon {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.RecurrenceKind != GRU || !cfg.IsBidirectional() {
		t.Errorf("kind=%v bidirectional=%v", cfg.RecurrenceKind, cfg.IsBidirectional())
	}

	cfg, err = ParseStackConfig([]byte(`{"feature_width": 32, "hidden_width": 8, "bidirectional": false}`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.IsBidirectional() || cfg.RecurrenceKind != GatedLSTM {
		t.Errorf("expected unidirectional lstm, got %+v", cfg)
	}
}

func TestParseStackConfigErrors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		isConfig bool
	}{
		{"unknown kind", `{"feature_width": 16, "hidden_width": 8, "recurrence_kind": "transformer"}`, true},
		{"indivisible", `{"feature_width": 24, "hidden_width": 8}`, true},
		{"missing width", `{"hidden_width": 8}`, true},
		{"negative epsilon", `{"feature_width": 16, "hidden_width": 8, "epsilon": -1}`, true},
		{"not json", `feature_width=16`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseStackConfig([]byte(tt.input))
			if err == nil {
				t.Fatal("expected error")
			}
			if errors.Is(err, ErrConfiguration) != tt.isConfig {
				t.Errorf("errors.Is(err, ErrConfiguration) = %v: %v", !tt.isConfig, err)
			}
		})
	}
}

func TestStackConfigSaveLoad(t *testing.T) {
	cfg := DefaultStackConfig(32, 12)
	cfg.RecurrenceKind = PlainRNN
	cfg.Seed = 42
	cfg.ParallelDirections = true

	path := filepath.Join(t.TempDir(), "stack.json")
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatal(err)
	}
	if fields["recurrence_kind"] != "rnn" {
		t.Errorf("recurrence_kind stored as %v", fields["recurrence_kind"])
	}

	loaded, err := LoadStackConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.FeatureWidth != 32 || loaded.HiddenWidth != 12 || loaded.RecurrenceKind != PlainRNN ||
		loaded.Seed != 42 || !loaded.ParallelDirections || !loaded.IsBidirectional() {
		t.Errorf("round trip mismatch: %+v", loaded)
	}

	if _, err := LoadStackConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestExplicitZeroSizesRejected(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"zero layers", `{"feature_width": 16, "hidden_width": 8, "num_layers": 0}`},
		{"zero reduction", `{"feature_width": 16, "hidden_width": 8, "gate_reduction": 0}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if cfg, err := ParseStackConfig([]byte(tt.input)); !errors.Is(err, ErrConfiguration) {
				t.Errorf("expected ErrConfiguration, got %v (config %+v)", err, cfg)
			}
		})
	}

	// Normalize leaves sizes alone, so a literal without them stays invalid.
	cfg := StackConfig{FeatureWidth: 16, HiddenWidth: 8}.Normalize()
	if cfg.NumLayers != 0 || cfg.GateReduction != 0 {
		t.Errorf("Normalize filled sizes: %+v", cfg)
	}
	if err := cfg.Validate(); !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestBlueprintJSON(t *testing.T) {
	cfg := smallStackConfig()
	cfg.NumLayers = 2
	stack, _ := NewDualAxisStack(cfg)
	data, err := json.Marshal(stack.Blueprint())
	if err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		RecurrenceKind string `json:"recurrence_kind"`
		TotalParams    int    `json:"total_parameters"`
		Stages         []struct {
			Orientation string `json:"orientation"`
			InputAxes   string `json:"input_axes"`
		} `json:"stages"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.RecurrenceKind != "lstm" || decoded.TotalParams != stack.ParameterCount() || len(decoded.Stages) != 4 {
		t.Fatalf("unexpected blueprint %s", data)
	}
	if decoded.Stages[0].Orientation != "time" || decoded.Stages[1].Orientation != "band" ||
		decoded.Stages[1].InputAxes != "B,T,K,N" {
		t.Errorf("unexpected stages %+v", decoded.Stages)
	}
}
