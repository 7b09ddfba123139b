package handler

import (
	"context"
	"log"
	"time"

	"github.com/SyedDaiam9101/cropdoc/internal/api"
	"github.com/SyedDaiam9101/cropdoc/internal/metrics"
	"github.com/SyedDaiam9101/cropdoc/internal/middleware"
	"github.com/SyedDaiam9101/cropdoc/internal/model"
)

// Classifier is the diagnosis pipeline the transports delegate to.
type Classifier interface {
	ClassifyImage(ctx context.Context, img model.ImageInput) (*model.Result, error)
	ClassifySymptoms(ctx context.Context, text string) (*model.Result, error)
	ClassifyCombined(ctx context.Context, img model.ImageInput, text string) (*model.Result, error)
}

// Handler implements the DiagnosisServer interface.
type Handler struct {
	api.UnimplementedDiagnosisServer
	classifier Classifier
}

// New creates a new Handler backed by the given classifier.
func New(classifier Classifier) *Handler {
	return &Handler{classifier: classifier}
}

// ClassifyImage handles a photo-only request
func (h *Handler) ClassifyImage(ctx context.Context, req *api.ClassifyImageRequest) (*api.ClassifyResponse, error) {
	if req == nil {
		return nil, invalidArgumentError("request cannot be nil")
	}
	if len(req.Image) == 0 {
		return nil, invalidArgumentError("image cannot be empty")
	}
	return h.run(ctx, "ClassifyImage", func(ctx context.Context) (*model.Result, error) {
		return h.classifier.ClassifyImage(ctx, model.ImageInput{Data: req.Image, Encoding: req.Encoding})
	})
}

// ClassifySymptoms handles a symptom-only request. Empty text is valid input.
func (h *Handler) ClassifySymptoms(ctx context.Context, req *api.ClassifySymptomsRequest) (*api.ClassifyResponse, error) {
	if req == nil {
		return nil, invalidArgumentError("request cannot be nil")
	}
	return h.run(ctx, "ClassifySymptoms", func(ctx context.Context) (*model.Result, error) {
		return h.classifier.ClassifySymptoms(ctx, req.Text)
	})
}

// ClassifyCombined handles a photo plus symptom request
func (h *Handler) ClassifyCombined(ctx context.Context, req *api.ClassifyCombinedRequest) (*api.ClassifyResponse, error) {
	if req == nil {
		return nil, invalidArgumentError("request cannot be nil")
	}
	if len(req.Image) == 0 {
		return nil, invalidArgumentError("image cannot be empty")
	}
	return h.run(ctx, "ClassifyCombined", func(ctx context.Context) (*model.Result, error) {
		return h.classifier.ClassifyCombined(ctx, model.ImageInput{Data: req.Image, Encoding: req.Encoding}, req.Text)
	})
}

func (h *Handler) run(ctx context.Context, op string, classify func(context.Context) (*model.Result, error)) (*api.ClassifyResponse, error) {
	requestID := middleware.RequestIDOrUnknown(ctx)

	if h.classifier == nil {
		return nil, failedPreconditionError("classifier not initialized")
	}

	start := time.Now()
	res, err := classify(ctx)
	if err != nil {
		metrics.RecordFailure(errorKind(err))
		log.Printf("[%s] %s error: %v", requestID, op, err)
		return nil, grpcError(err)
	}

	log.Printf("[%s] %s: label=%s, confidence=%.3f, modality=%s, total_ms=%.2f",
		requestID, op, res.Label, res.Confidence, res.Modality, float64(time.Since(start).Microseconds())/1000.0)
	return toResponse(res), nil
}

func toResponse(res *model.Result) *api.ClassifyResponse {
	return &api.ClassifyResponse{
		Label:           res.Label,
		ClassIndex:      int32(res.ClassIndex),
		Description:     res.Description,
		Confidence:      res.Confidence,
		Modality:        string(res.Modality),
		Fingerprint:     res.Fingerprint,
		LabelSetVersion: res.LabelSetVersion,
		Uncertain:       res.Uncertain(),
		Probabilities:   append([]float64(nil), res.Probabilities...),
	}
}
