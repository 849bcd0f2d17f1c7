package nn

// StackBlueprint is a JSON-friendly summary of a stack's structure.
type StackBlueprint struct {
	FeatureWidth   int              `json:"feature_width"`
	HiddenWidth    int              `json:"hidden_width"`
	RecurrenceKind string           `json:"recurrence_kind"`
	Directions     int              `json:"directions"`
	NumLayers      int              `json:"num_layers"`
	TotalParams    int              `json:"total_parameters"`
	Stages         []StageTelemetry `json:"stages"`
}

// StageTelemetry describes one block/gate pair of the plan.
type StageTelemetry struct {
	BlockDescriptor
	BlockParams int `json:"block_parameters"`
	GateParams  int `json:"gate_parameters"`

	// Axis order of the tensor entering and leaving the pair.
	InputAxes  string `json:"input_axes"`
	OutputAxes string `json:"output_axes"`
}

// Blueprint extracts telemetry for s.
func (s *DualAxisStack) Blueprint() StackBlueprint {
	bp := StackBlueprint{
		FeatureWidth:   s.Config.FeatureWidth,
		HiddenWidth:    s.Config.HiddenWidth,
		RecurrenceKind: s.Config.RecurrenceKind.String(),
		NumLayers:      s.Config.NumLayers,
		Stages:         make([]StageTelemetry, 0, len(s.plan)),
	}
	if len(s.Blocks) > 0 {
		bp.Directions = s.Blocks[0].RNN.Directions()
	}

	total := 0
	for _, desc := range s.plan {
		st := StageTelemetry{
			BlockDescriptor: desc,
			BlockParams:     s.Blocks[desc.BlockIndex].ParameterCount(),
			GateParams:      s.Gates[desc.GateIndex].ParameterCount(),
			InputAxes:       "B,K,T,N",
			OutputAxes:      "B,T,K,N",
		}
		if desc.Orientation == OrientationBand {
			st.InputAxes, st.OutputAxes = st.OutputAxes, st.InputAxes
		}
		total += st.BlockParams + st.GateParams
		bp.Stages = append(bp.Stages, st)
	}
	bp.TotalParams = total
	return bp
}
