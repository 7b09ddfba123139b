package inference

import (
	"context"

	"github.com/SyedDaiam9101/cropdoc/internal/model"
)

// InferenceEngine runs the image and symptom models.
// This abstraction allows for easy mocking in tests and swapping implementations.
type InferenceEngine interface {
	// InferImage runs the image model over a normalized tensor and returns one value per class.
	InferImage(ctx context.Context, t *model.Tensor) (model.RawOutput, error)

	// InferText runs the symptom model over a token sequence and returns one value per class.
	InferText(ctx context.Context, tokens model.TokenSequence) (model.RawOutput, error)

	// Close releases any resources held by the inference engine.
	Close() error
}
