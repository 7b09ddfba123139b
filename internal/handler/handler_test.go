package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/SyedDaiam9101/cropdoc/internal/api"
	"github.com/SyedDaiam9101/cropdoc/internal/classifier"
	"github.com/SyedDaiam9101/cropdoc/internal/coordinator"
	"github.com/SyedDaiam9101/cropdoc/internal/fusion"
	"github.com/SyedDaiam9101/cropdoc/internal/inference"
	"github.com/SyedDaiam9101/cropdoc/internal/middleware"
	"github.com/SyedDaiam9101/cropdoc/internal/model"
)

func newTestClassifier(t *testing.T, mock *inference.MockInference, cfg coordinator.Config) *classifier.Classifier {
	t.Helper()
	m := model.DefaultManifest()
	m.Version = "test-v1"
	m.Image.Shape = model.Shape{Height: 4, Width: 4, Channels: 3}
	m.Text.MaxLength = 8
	m.Vocabulary = []string{"yellow", "spots"}
	m.Labels = []model.Label{
		{Name: "healthy", Description: "No disease detected"},
		{Name: "early_blight", Description: "Concentric brown lesions"},
	}

	coord, err := coordinator.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create coordinator: %v", err)
	}
	c, err := classifier.New(&m, mock, fusion.DefaultConfig(), coord)
	if err != nil {
		t.Fatalf("Failed to create classifier: %v", err)
	}
	return c
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 6, 6))
	for y := 0; y < 6; y++ {
		for x := 0; x < 6; x++ {
			img.Set(x, y, color.RGBA{R: 30, G: 140, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode PNG: %v", err)
	}
	return buf.Bytes()
}

func TestClassifyWithNilClassifier(t *testing.T) {
	h := New(nil)

	_, err := h.ClassifySymptoms(context.Background(), &api.ClassifySymptomsRequest{Text: "yellow"})
	if err == nil {
		t.Fatal("Expected error when classifier is nil, got nil")
	}

	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("Expected gRPC status error, got: %v", err)
	}

	if st.Code() != codes.FailedPrecondition {
		t.Errorf("Expected FailedPrecondition, got: %v", st.Code())
	}
}

func TestClassifyWithNilRequest(t *testing.T) {
	mock := inference.NewMock(2)
	h := New(newTestClassifier(t, mock, coordinator.DefaultConfig()))

	_, err := h.ClassifyImage(context.Background(), nil)
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("ClassifyImage: expected InvalidArgument, got: %v", err)
	}
	_, err = h.ClassifySymptoms(context.Background(), nil)
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("ClassifySymptoms: expected InvalidArgument, got: %v", err)
	}
	_, err = h.ClassifyCombined(context.Background(), &api.ClassifyCombinedRequest{Text: "spots"})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("ClassifyCombined: expected InvalidArgument, got: %v", err)
	}
}

func TestClassifyImageWithMockInference(t *testing.T) {
	mock := inference.NewMock(2)
	h := New(newTestClassifier(t, mock, coordinator.DefaultConfig()))

	resp, err := h.ClassifyImage(context.Background(), &api.ClassifyImageRequest{Image: testPNG(t), Encoding: "png"})
	if err != nil {
		t.Fatalf("ClassifyImage failed: %v", err)
	}

	if resp.Label != "healthy" {
		t.Errorf("Expected label healthy, got %s", resp.Label)
	}
	if resp.Description != "No disease detected" {
		t.Errorf("Expected label description, got %q", resp.Description)
	}
	if resp.Modality != string(model.ModalityImage) {
		t.Errorf("Expected modality image, got %s", resp.Modality)
	}
	if resp.Uncertain {
		t.Error("Expected a confident decision")
	}
	if resp.LabelSetVersion != "test-v1" {
		t.Errorf("Expected label set version test-v1, got %s", resp.LabelSetVersion)
	}
	if len(resp.Probabilities) != 2 {
		t.Errorf("Expected 2 probabilities, got %d", len(resp.Probabilities))
	}

	if mock.CallCount() != 1 {
		t.Errorf("Expected mock.CallCount()=1, got %d", mock.CallCount())
	}

	// Identical request is served from the cache
	if _, err := h.ClassifyImage(context.Background(), &api.ClassifyImageRequest{Image: testPNG(t)}); err != nil {
		t.Fatalf("ClassifyImage failed: %v", err)
	}
	if mock.CallCount() != 1 {
		t.Errorf("Expected cached result, mock.CallCount()=%d", mock.CallCount())
	}
}

func TestClassifyImageWithCorruptBytes(t *testing.T) {
	mock := inference.NewMock(2)
	h := New(newTestClassifier(t, mock, coordinator.DefaultConfig()))

	_, err := h.ClassifyImage(context.Background(), &api.ClassifyImageRequest{Image: []byte("not an image")})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("Expected InvalidArgument, got: %v", err)
	}
	if mock.CallCount() != 0 {
		t.Errorf("Expected no model call, got %d", mock.CallCount())
	}
}

func TestClassifySymptomsWithEmptyText(t *testing.T) {
	mock := inference.NewMock(2)
	h := New(newTestClassifier(t, mock, coordinator.DefaultConfig()))

	resp, err := h.ClassifySymptoms(context.Background(), &api.ClassifySymptomsRequest{})
	if err != nil {
		t.Fatalf("ClassifySymptoms failed: %v", err)
	}
	if resp.Modality != string(model.ModalityText) {
		t.Errorf("Expected modality text, got %s", resp.Modality)
	}
	if mock.TextCalls() != 1 {
		t.Errorf("Expected one text call, got %d", mock.TextCalls())
	}
}

func TestClassifyCombinedWithMockInference(t *testing.T) {
	mock := inference.NewMockWithOutputs([]float32{0.7, 0.3}, []float32{0.4, 0.6}, model.OutputLogits)
	h := New(newTestClassifier(t, mock, coordinator.DefaultConfig()))

	resp, err := h.ClassifyCombined(context.Background(), &api.ClassifyCombinedRequest{
		Image: testPNG(t),
		Text:  "yellow spots",
	})
	if err != nil {
		t.Fatalf("ClassifyCombined failed: %v", err)
	}
	if resp.Modality != string(model.ModalityFused) {
		t.Errorf("Expected modality fused, got %s", resp.Modality)
	}
	if mock.ImageCalls() != 1 || mock.TextCalls() != 1 {
		t.Errorf("Expected one call per model, got image=%d text=%d", mock.ImageCalls(), mock.TextCalls())
	}
}

func TestClassifyWithRequestID(t *testing.T) {
	mock := inference.NewMock(2)
	h := New(newTestClassifier(t, mock, coordinator.DefaultConfig()))

	// Simulate request with request ID in context
	testRequestID := "test-request-id-123"
	md := metadata.Pairs(middleware.RequestIDHeader, testRequestID)
	ctx := metadata.NewIncomingContext(context.Background(), md)

	// Process through request ID interceptor
	interceptor := middleware.UnaryRequestIDInterceptor()
	var capturedCtx context.Context

	wrappedHandler := func(ctx context.Context, req interface{}) (interface{}, error) {
		capturedCtx = ctx
		return h.ClassifySymptoms(ctx, req.(*api.ClassifySymptomsRequest))
	}

	_, err := interceptor(ctx, &api.ClassifySymptomsRequest{Text: "spots"}, nil, wrappedHandler)
	if err != nil {
		t.Fatalf("Handler failed: %v", err)
	}

	extractedID := middleware.GetRequestID(capturedCtx)
	if extractedID != testRequestID {
		t.Errorf("Expected request ID %s, got %s", testRequestID, extractedID)
	}
}

func TestClassifyWithInferenceError(t *testing.T) {
	mock := inference.NewMock(2)
	mock.SetError("model execution failed")
	h := New(newTestClassifier(t, mock, coordinator.DefaultConfig()))

	_, err := h.ClassifySymptoms(context.Background(), &api.ClassifySymptomsRequest{Text: "yellow"})
	if err == nil {
		t.Fatal("Expected error from inference, got nil")
	}

	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("Expected gRPC status error, got: %v", err)
	}

	// Should be mapped to Internal error
	if st.Code() != codes.Internal {
		t.Errorf("Expected Internal error code, got: %v", st.Code())
	}
	if !strings.Contains(st.Message(), "model execution failed") {
		t.Errorf("Expected error message to carry the cause, got: %s", st.Message())
	}
}

func TestClassifyWithTimeout(t *testing.T) {
	mock := inference.NewMock(2)
	mock.Block()
	defer mock.Unblock()

	cfg := coordinator.DefaultConfig()
	cfg.RequestTimeout = 20 * time.Millisecond
	h := New(newTestClassifier(t, mock, cfg))

	_, err := h.ClassifySymptoms(context.Background(), &api.ClassifySymptomsRequest{Text: "yellow"})
	if status.Code(err) != codes.DeadlineExceeded {
		t.Errorf("Expected DeadlineExceeded, got: %v", err)
	}
}

func TestGRPCErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{fmt.Errorf("%w: bad bytes", model.ErrDecode), codes.InvalidArgument},
		{fmt.Errorf("%w: 3x3", model.ErrShape), codes.InvalidArgument},
		{model.ErrInsufficientInput, codes.InvalidArgument},
		{model.ErrTimeout, codes.DeadlineExceeded},
		{model.ErrBusy, codes.Unavailable},
		{fmt.Errorf("%w: missing weights", model.ErrModelLoad), codes.FailedPrecondition},
		{fmt.Errorf("%w: %w", model.ErrInference, model.ErrShape), codes.InvalidArgument},
		{model.ErrInference, codes.Internal},
		{context.Canceled, codes.Canceled},
		{errors.New("boom"), codes.Internal},
		{status.Error(codes.NotFound, "passthrough"), codes.NotFound},
	}

	for _, tt := range tests {
		if got := status.Code(grpcError(tt.err)); got != tt.want {
			t.Errorf("grpcError(%v) = %v, expected %v", tt.err, got, tt.want)
		}
	}

	if grpcError(nil) != nil {
		t.Error("Expected nil for nil error")
	}
}
