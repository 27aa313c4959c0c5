package vision

import (
	"fmt"
	"runtime"

	ort "github.com/yalue/onnxruntime_go"
)

// Extractor runs one ONNX session with preallocated input and output tensors.
// It is not safe for concurrent use; the pool hands each one to a single
// caller at a time.
type Extractor struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func newExtractor(modelPath string, md *Metadata) (*Extractor, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	defer options.Destroy()

	options.SetIntraOpNumThreads(runtime.NumCPU())
	options.SetInterOpNumThreads(runtime.NumCPU())

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(md.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(md.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{md.InputName}, []string{md.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		options)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &Extractor{
		session: session,
		input:   inputTensor,
		output:  outputTensor,
	}, nil
}

// extract copies the tensor into the session input, runs the model, and
// returns a copy of the flattened feature map.
func (e *Extractor) extract(tensor []float32) ([]float32, error) {
	input := e.input.GetData()
	if len(tensor) != len(input) {
		return nil, fmt.Errorf("input tensor has %d values, want %d", len(tensor), len(input))
	}
	copy(input, tensor)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("run model: %w", err)
	}

	output := e.output.GetData()
	features := make([]float32, len(output))
	copy(features, output)
	return features, nil
}

func (e *Extractor) destroy() {
	e.session.Destroy()
	e.input.Destroy()
	e.output.Destroy()
}
