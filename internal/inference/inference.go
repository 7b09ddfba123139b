package inference

import (
	"context"
	"errors"
	"fmt"

	"github.com/SyedDaiam9101/cropdoc/internal/model"
)

// Options selects the model files for an Inference engine. Either model path may be empty
// to disable that modality, but not both.
type Options struct {
	LibraryPath string
	ImageModel  string
	TextModel   string
	Manifest    *model.Manifest
}

// Inference runs the image and symptom ONNX models.
// It implements the InferenceEngine interface.
type Inference struct {
	image    *Model
	text     *Model
	manifest *model.Manifest
}

// New initializes the ONNX environment and loads the configured models.
func New(opts Options) (*Inference, error) {
	if opts.Manifest == nil {
		return nil, fmt.Errorf("%w: manifest is required", model.ErrModelLoad)
	}
	if opts.ImageModel == "" && opts.TextModel == "" {
		return nil, fmt.Errorf("%w: no model paths configured", model.ErrModelLoad)
	}

	if err := acquireEnvironment(opts.LibraryPath); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrModelLoad, err)
	}

	m := opts.Manifest
	inf := &Inference{manifest: m}
	numClasses := int64(m.NumClasses())

	if opts.ImageModel != "" {
		img, err := LoadModel(opts.ImageModel, Contract{
			Input:      m.Image.Input,
			Output:     m.Image.Output,
			InputDims:  m.Image.Dims(),
			NumClasses: numClasses,
			Kind:       m.OutputKind,
		})
		if err != nil {
			inf.Close()
			return nil, err
		}
		inf.image = img
	}

	if opts.TextModel != "" {
		txt, err := LoadModel(opts.TextModel, Contract{
			Input:      m.Text.Input,
			Output:     m.Text.Output,
			InputDims:  []int64{1, int64(m.Text.MaxLength)},
			NumClasses: numClasses,
			Kind:       m.OutputKind,
		})
		if err != nil {
			inf.Close()
			return nil, err
		}
		inf.text = txt
	}

	return inf, nil
}

// InferImage validates the tensor against the manifest and runs the image model.
func (inf *Inference) InferImage(ctx context.Context, t *model.Tensor) (model.RawOutput, error) {
	if inf.image == nil {
		return model.RawOutput{}, fmt.Errorf("%w: no image model loaded", model.ErrInference)
	}
	if err := t.Validate(inf.manifest.Image.Shape); err != nil {
		return model.RawOutput{}, fmt.Errorf("%w: %w", model.ErrInference, err)
	}
	return inf.image.InferTensor(ctx, t.Data)
}

// InferText runs the symptom model.
func (inf *Inference) InferText(ctx context.Context, tokens model.TokenSequence) (model.RawOutput, error) {
	if inf.text == nil {
		return model.RawOutput{}, fmt.Errorf("%w: no symptom model loaded", model.ErrInference)
	}
	return inf.text.InferTokens(ctx, tokens)
}

// Close releases both sessions and this engine's hold on the ONNX environment.
func (inf *Inference) Close() error {
	var errs []error
	if inf.image != nil {
		errs = append(errs, inf.image.Close())
	}
	if inf.text != nil {
		errs = append(errs, inf.text.Close())
	}
	errs = append(errs, releaseEnvironment())
	return errors.Join(errs...)
}

// Ensure Inference implements InferenceEngine at compile time
var _ InferenceEngine = (*Inference)(nil)
