package inference

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SyedDaiam9101/cropdoc/internal/model"
)

// MockInference is a mock implementation of InferenceEngine for testing.
// It returns fixed outputs without requiring the ONNX shared library, and is safe for
// concurrent use.
type MockInference struct {
	// ImageOutput is returned by InferImage
	ImageOutput model.RawOutput
	// TextOutput is returned by InferText
	TextOutput model.RawOutput
	// ImageShape, when set, is enforced on InferImage inputs
	ImageShape model.Shape
	// Delay is slept (honouring ctx) before each call returns
	Delay time.Duration

	mu      sync.Mutex
	err     error
	release chan struct{}

	imageCalls atomic.Int64
	textCalls  atomic.Int64
	closed     atomic.Bool
}

// NewMock creates a mock with logits favouring class 0 of numClasses for both modalities.
func NewMock(numClasses int) *MockInference {
	values := make([]float32, numClasses)
	if numClasses > 0 {
		values[0] = 4
	}
	return NewMockWithOutputs(values, values, model.OutputLogits)
}

// NewMockWithOutputs creates a mock returning the given per-class values.
func NewMockWithOutputs(image, text []float32, kind model.OutputKind) *MockInference {
	return &MockInference{
		ImageOutput: model.RawOutput{Values: image, Kind: kind},
		TextOutput:  model.RawOutput{Values: text, Kind: kind},
	}
}

// InferImage counts the call and returns ImageOutput.
func (m *MockInference) InferImage(ctx context.Context, t *model.Tensor) (model.RawOutput, error) {
	m.imageCalls.Add(1)
	if m.ImageShape != (model.Shape{}) {
		if err := t.Validate(m.ImageShape); err != nil {
			return model.RawOutput{}, fmt.Errorf("%w: %w", model.ErrInference, err)
		}
	}
	if err := m.wait(ctx); err != nil {
		return model.RawOutput{}, err
	}
	return copyOutput(m.ImageOutput), nil
}

// InferText counts the call and returns TextOutput.
func (m *MockInference) InferText(ctx context.Context, tokens model.TokenSequence) (model.RawOutput, error) {
	m.textCalls.Add(1)
	if err := m.wait(ctx); err != nil {
		return model.RawOutput{}, err
	}
	return copyOutput(m.TextOutput), nil
}

func (m *MockInference) wait(ctx context.Context) error {
	m.mu.Lock()
	err, release := m.err, m.release
	m.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.Delay > 0 {
		t := time.NewTimer(m.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Block makes subsequent calls wait until Unblock is called or their ctx ends.
func (m *MockInference) Block() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.release == nil {
		m.release = make(chan struct{})
	}
}

// Unblock releases every call waiting since Block.
func (m *MockInference) Unblock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.release != nil {
		close(m.release)
		m.release = nil
	}
}

// SetError configures the mock to fail subsequent calls with an ErrInference-wrapped msg.
func (m *MockInference) SetError(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = fmt.Errorf("%w: %s", model.ErrInference, msg)
}

// ClearError clears any configured error
func (m *MockInference) ClearError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = nil
}

// CallCount returns the number of model invocations across both modalities.
func (m *MockInference) CallCount() int64 {
	return m.imageCalls.Load() + m.textCalls.Load()
}

// ImageCalls returns the number of InferImage invocations.
func (m *MockInference) ImageCalls() int64 {
	return m.imageCalls.Load()
}

// TextCalls returns the number of InferText invocations.
func (m *MockInference) TextCalls() int64 {
	return m.textCalls.Load()
}

// Closed reports whether Close was called.
func (m *MockInference) Closed() bool {
	return m.closed.Load()
}

// Close marks the mock closed.
func (m *MockInference) Close() error {
	m.closed.Store(true)
	return nil
}

func copyOutput(o model.RawOutput) model.RawOutput {
	return model.RawOutput{Values: append([]float32(nil), o.Values...), Kind: o.Kind}
}

// Ensure MockInference implements InferenceEngine at compile time
var _ InferenceEngine = (*MockInference)(nil)
