// Package fusion turns raw per-class model outputs into a single classification decision.
//
// Each modality's output is converted to a probability distribution. With both modalities
// present the distributions are averaged with configurable weights; image evidence is
// weighted higher by default because most diseases show visible symptoms. The winning class
// must clear a confidence threshold, otherwise the decision is the distinguished
// "uncertain" label.
package fusion

import (
	"fmt"
	"math"

	"github.com/SyedDaiam9101/cropdoc/internal/model"
)

// tieEpsilon is the tolerance under which two probabilities count as equal.
const tieEpsilon = 1e-9

// Config holds the fusion policy.
type Config struct {
	ImageWeight float64 `mapstructure:"image_weight"`
	TextWeight  float64 `mapstructure:"text_weight"`
	Threshold   float64 `mapstructure:"threshold"`
}

// DefaultConfig returns weights 0.6/0.4 and a 0.4 confidence threshold.
func DefaultConfig() Config {
	return Config{ImageWeight: 0.6, TextWeight: 0.4, Threshold: 0.4}
}

// Validate checks weights and threshold.
func (c Config) Validate() error {
	if c.ImageWeight < 0 || c.TextWeight < 0 || c.ImageWeight+c.TextWeight <= 0 {
		return fmt.Errorf("invalid fusion weights: image=%v text=%v", c.ImageWeight, c.TextWeight)
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("invalid fusion threshold: %v", c.Threshold)
	}
	return nil
}

// Engine applies the fusion policy over a fixed label set. It holds no mutable state.
type Engine struct {
	imageWeight float64
	textWeight  float64
	threshold   float64
	labels      []model.Label
	version     string
}

// New creates an Engine for the manifest's label set. Weights are normalized to sum to 1.
func New(cfg Config, manifest *model.Manifest) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if manifest == nil || len(manifest.Labels) == 0 {
		return nil, fmt.Errorf("fusion requires a non-empty label set")
	}
	total := cfg.ImageWeight + cfg.TextWeight
	return &Engine{
		imageWeight: cfg.ImageWeight / total,
		textWeight:  cfg.TextWeight / total,
		threshold:   cfg.Threshold,
		labels:      manifest.Labels,
		version:     manifest.Version,
	}, nil
}

// Decide combines whichever outputs are present into a Result for fingerprint.
func (e *Engine) Decide(fingerprint string, image, text *model.RawOutput) (*model.Result, error) {
	var imageProbs, textProbs []float64
	var err error

	if image != nil {
		if imageProbs, err = e.probabilities(image); err != nil {
			return nil, fmt.Errorf("image output: %w", err)
		}
	}
	if text != nil {
		if textProbs, err = e.probabilities(text); err != nil {
			return nil, fmt.Errorf("symptom output: %w", err)
		}
	}

	var probs []float64
	var modality model.Modality
	switch {
	case imageProbs != nil && textProbs != nil:
		modality = model.ModalityFused
		probs = make([]float64, len(imageProbs))
		for i := range probs {
			probs[i] = e.imageWeight*imageProbs[i] + e.textWeight*textProbs[i]
		}
	case imageProbs != nil:
		modality = model.ModalityImage
		probs = imageProbs
	case textProbs != nil:
		modality = model.ModalityText
		probs = textProbs
	default:
		return nil, model.ErrInsufficientInput
	}

	preferred := -1
	if imageProbs != nil {
		preferred = argmax(imageProbs)
	}
	class := pick(probs, preferred)
	confidence := probs[class]

	result := &model.Result{
		ClassIndex:      class,
		Label:           e.labels[class].Name,
		Description:     e.labels[class].Description,
		Confidence:      confidence,
		Modality:        modality,
		Fingerprint:     fingerprint,
		LabelSetVersion: e.version,
		Probabilities:   probs,
	}
	if confidence < e.threshold {
		result.ClassIndex = -1
		result.Label = model.UncertainLabel
		result.Description = ""
	}
	return result, nil
}

// probabilities converts a raw output to a distribution over the label set.
func (e *Engine) probabilities(out *model.RawOutput) ([]float64, error) {
	if len(out.Values) != len(e.labels) {
		return nil, fmt.Errorf("%w: model produced %d classes, label set %s has %d",
			model.ErrInference, len(out.Values), e.version, len(e.labels))
	}
	for i, v := range out.Values {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, fmt.Errorf("%w: non-finite output at class %d", model.ErrInference, i)
		}
	}

	switch out.Kind {
	case model.OutputProbabilities:
		return normalize(out.Values)
	case model.OutputLogits, "":
		return Softmax(out.Values), nil
	default:
		return nil, fmt.Errorf("%w: unknown output kind %q", model.ErrInference, out.Kind)
	}
}

// Softmax returns the numerically stable softmax of logits.
func Softmax(logits []float32) []float64 {
	probs := make([]float64, len(logits))
	if len(logits) == 0 {
		return probs
	}
	max := float64(logits[0])
	for _, v := range logits[1:] {
		if float64(v) > max {
			max = float64(v)
		}
	}
	var sum float64
	for i, v := range logits {
		probs[i] = math.Exp(float64(v) - max)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

func normalize(values []float32) ([]float64, error) {
	probs := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		if v < 0 {
			return nil, fmt.Errorf("%w: negative probability at class %d", model.ErrInference, i)
		}
		probs[i] = float64(v)
		sum += probs[i]
	}
	if sum <= 0 {
		return nil, fmt.Errorf("%w: probabilities sum to zero", model.ErrInference)
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs, nil
}

// argmax returns the lowest index holding the maximum value.
func argmax(probs []float64) int {
	best := 0
	for i, p := range probs {
		if p > probs[best]+tieEpsilon {
			best = i
		}
	}
	return best
}

// pick returns the argmax of probs. Ties go to preferred when it is among the tied classes,
// otherwise to the lowest index.
func pick(probs []float64, preferred int) int {
	best := argmax(probs)
	if preferred >= 0 && preferred != best && math.Abs(probs[preferred]-probs[best]) <= tieEpsilon {
		return preferred
	}
	return best
}
