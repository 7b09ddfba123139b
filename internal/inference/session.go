package inference

import (
	"context"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/SyedDaiam9101/cropdoc/internal/model"
)

// Contract is what a model file must accept and produce.
type Contract struct {
	Input      string
	Output     string
	InputDims  []int64
	NumClasses int64
	Kind       model.OutputKind
}

// Model is a loaded ONNX session. It is read-only between LoadModel and Close, and Infer
// may be called from many goroutines at once: every call allocates its own tensors.
type Model struct {
	mu       sync.RWMutex
	session  *ort.DynamicAdvancedSession
	path     string
	contract Contract
}

// LoadModel opens modelPath and checks its declared input and output against c.
// The ONNX environment must already be initialized.
func LoadModel(modelPath string, c Contract) (*Model, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrModelLoad, err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read model %s: %v", model.ErrModelLoad, modelPath, err)
	}
	if err := checkDims(inputs, c.Input, c.InputDims); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", model.ErrModelLoad, modelPath, err)
	}
	if err := checkDims(outputs, c.Output, []int64{1, c.NumClasses}); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", model.ErrModelLoad, modelPath, err)
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{c.Input},
		[]string{c.Output},
		nil, // Use default session options
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create ONNX session: %v", model.ErrModelLoad, err)
	}

	return &Model{session: session, path: modelPath, contract: c}, nil
}

// checkDims finds the named tensor and verifies its shape. Dynamic dimensions (<= 0) in the
// model match anything.
func checkDims(infos []ort.InputOutputInfo, name string, want []int64) error {
	for _, info := range infos {
		if info.Name != name {
			continue
		}
		got := info.Dimensions
		if len(got) != len(want) {
			return fmt.Errorf("tensor %q has rank %d, expected %d", name, len(got), len(want))
		}
		for i := range want {
			if got[i] > 0 && got[i] != want[i] {
				return fmt.Errorf("tensor %q has shape %v, expected %v", name, got, want)
			}
		}
		return nil
	}
	return fmt.Errorf("tensor %q not found in model", name)
}

// InferTensor runs the model over a float tensor shaped like the contract input.
func (m *Model) InferTensor(ctx context.Context, data []float32) (model.RawOutput, error) {
	if int64(len(data)) != numElements(m.contract.InputDims) {
		return model.RawOutput{}, fmt.Errorf("%w: %w: got %d values, model expects %v",
			model.ErrInference, model.ErrShape, len(data), m.contract.InputDims)
	}
	input, err := ort.NewTensor(ort.NewShape(m.contract.InputDims...), data)
	if err != nil {
		return model.RawOutput{}, fmt.Errorf("%w: failed to create input tensor: %v", model.ErrInference, err)
	}
	defer input.Destroy()
	return m.run(ctx, input)
}

// InferTokens runs the model over an int64 token sequence.
func (m *Model) InferTokens(ctx context.Context, tokens []int64) (model.RawOutput, error) {
	if int64(len(tokens)) != numElements(m.contract.InputDims) {
		return model.RawOutput{}, fmt.Errorf("%w: %w: got %d tokens, model expects %v",
			model.ErrInference, model.ErrShape, len(tokens), m.contract.InputDims)
	}
	input, err := ort.NewTensor(ort.NewShape(m.contract.InputDims...), tokens)
	if err != nil {
		return model.RawOutput{}, fmt.Errorf("%w: failed to create input tensor: %v", model.ErrInference, err)
	}
	defer input.Destroy()
	return m.run(ctx, input)
}

func (m *Model) run(ctx context.Context, input ort.ArbitraryTensor) (model.RawOutput, error) {
	// ONNX Runtime cannot be interrupted mid-run; honour cancellation before starting.
	if err := ctx.Err(); err != nil {
		return model.RawOutput{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.session == nil {
		return model.RawOutput{}, fmt.Errorf("%w: inference session is nil", model.ErrInference)
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, m.contract.NumClasses))
	if err != nil {
		return model.RawOutput{}, fmt.Errorf("%w: failed to create output tensor: %v", model.ErrInference, err)
	}
	defer output.Destroy()

	if err := m.session.Run(
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
	); err != nil {
		return model.RawOutput{}, fmt.Errorf("%w: inference failed for %s: %v", model.ErrInference, m.path, err)
	}

	// The tensor's backing memory is released by Destroy.
	values := make([]float32, m.contract.NumClasses)
	copy(values, output.GetData())
	return model.RawOutput{Values: values, Kind: m.contract.Kind}, nil
}

// Close releases the ONNX session. In-flight calls finish first.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil
	}
	err := m.session.Destroy()
	m.session = nil
	if err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return nil
}

func numElements(dims []int64) int64 {
	n := int64(1)
	for _, d := range dims {
		n *= d
	}
	return n
}
