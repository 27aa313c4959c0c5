package vision

import (
	"encoding/json"
	"fmt"
	"os"
)

// Tensor layouts and pixel scalings a model export can declare. Keras
// EfficientNet exports are NHWC with raw 0-255 pixels (the network holds its
// own normalization); torch-style exports are NCHW, usually unit-scaled.
const (
	LayoutNHWC = "nhwc"
	LayoutNCHW = "nchw"

	ScaleRaw  = "raw"
	ScaleUnit = "unit"
)

// Metadata describes one ONNX feature extractor: the sidecar JSON written
// next to the model file when it is exported.
type Metadata struct {
	ModelName   string  `json:"model_name"`
	InputName   string  `json:"input_name"`
	OutputName  string  `json:"output_name"`
	InputShape  []int64 `json:"input_shape"`
	OutputShape []int64 `json:"output_shape"`
	ImageSize   int     `json:"image_size"`
	Layout      string  `json:"layout"`
	Scale       string  `json:"scale"`
}

func LoadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model metadata: %w", err)
	}

	var md Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("parse model metadata: %w", err)
	}
	md.applyDefaults()
	if err := md.validate(); err != nil {
		return nil, fmt.Errorf("invalid model metadata: %w", err)
	}
	return &md, nil
}

func (m *Metadata) applyDefaults() {
	if m.Layout == "" {
		m.Layout = LayoutNHWC
	}
	if m.Scale == "" {
		m.Scale = ScaleRaw
	}
}

func (m *Metadata) validate() error {
	if m.InputName == "" || m.OutputName == "" {
		return fmt.Errorf("input_name and output_name are required")
	}
	if len(m.InputShape) != 4 {
		return fmt.Errorf("input_shape must have 4 dims, got %d", len(m.InputShape))
	}
	if len(m.OutputShape) < 2 {
		return fmt.Errorf("output_shape must have at least 2 dims, got %d", len(m.OutputShape))
	}
	if m.InputShape[0] != 1 || m.OutputShape[0] != 1 {
		return fmt.Errorf("only batch size 1 is supported")
	}
	for _, d := range m.InputShape[1:] {
		if d <= 0 {
			return fmt.Errorf("input_shape dims must be positive, got %v", m.InputShape)
		}
	}
	for _, d := range m.OutputShape[1:] {
		if d <= 0 {
			return fmt.Errorf("output_shape dims must be positive, got %v", m.OutputShape)
		}
	}
	if m.ImageSize <= 0 {
		return fmt.Errorf("image_size must be positive, got %d", m.ImageSize)
	}

	var channels, height, width int64
	switch m.Layout {
	case LayoutNHWC:
		height, width, channels = m.InputShape[1], m.InputShape[2], m.InputShape[3]
	case LayoutNCHW:
		channels, height, width = m.InputShape[1], m.InputShape[2], m.InputShape[3]
	default:
		return fmt.Errorf("unknown layout %q", m.Layout)
	}
	if channels != 3 {
		return fmt.Errorf("input must have 3 channels, got %d", channels)
	}
	if height != int64(m.ImageSize) || width != int64(m.ImageSize) {
		return fmt.Errorf("input_shape spatial dims %dx%d disagree with image_size %d", height, width, m.ImageSize)
	}

	if m.Scale != ScaleRaw && m.Scale != ScaleUnit {
		return fmt.Errorf("unknown pixel scale %q", m.Scale)
	}
	return nil
}

// TensorSize is the number of float32 values in one input tensor.
func (m *Metadata) TensorSize() int {
	size := 1
	for _, d := range m.InputShape[1:] {
		size *= int(d)
	}
	return size
}

// FeatureSize is the number of float32 values in one flattened output, e.g.
// 7*7*1280 = 62720 for EfficientNetB0 feature maps.
func (m *Metadata) FeatureSize() int {
	size := 1
	for _, d := range m.OutputShape[1:] {
		size *= int(d)
	}
	return size
}
