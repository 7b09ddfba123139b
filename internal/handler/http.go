package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/SyedDaiam9101/cropdoc/internal/metrics"
	"github.com/SyedDaiam9101/cropdoc/internal/middleware"
	"github.com/SyedDaiam9101/cropdoc/internal/model"
)

// MaxUploadBytes bounds the multipart body of an upload.
const MaxUploadBytes = 10 << 20

// HTTPHandler serves POST /v1/classify with a multipart form holding an "image" file and/or a
// "symptoms" field. An optional "encoding" field declares the image format.
type HTTPHandler struct {
	classifier Classifier
}

// NewHTTP creates an HTTPHandler backed by the given classifier.
func NewHTTP(classifier Classifier) *HTTPHandler {
	return &HTTPHandler{classifier: classifier}
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// ServeHTTP implements http.Handler.
func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.RequestIDOrUnknown(ctx)

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed", RequestID: requestID})
		return
	}
	if h.classifier == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "classifier not initialized", RequestID: requestID})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to parse multipart form", RequestID: requestID})
		return
	}

	img, err := readImage(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), RequestID: requestID})
		return
	}
	symptoms, hasSymptoms := r.MultipartForm.Value["symptoms"]
	text := ""
	if hasSymptoms && len(symptoms) > 0 {
		text = symptoms[0]
	}

	var res *model.Result
	switch {
	case img != nil && hasSymptoms:
		res, err = h.classifier.ClassifyCombined(ctx, *img, text)
	case img != nil:
		res, err = h.classifier.ClassifyImage(ctx, *img)
	case hasSymptoms:
		res, err = h.classifier.ClassifySymptoms(ctx, text)
	default:
		err = fmt.Errorf("%w: provide an 'image' file and/or a 'symptoms' field", model.ErrInsufficientInput)
	}
	if err != nil {
		metrics.RecordFailure(errorKind(err))
		log.Printf("[%s] HTTP classify error: %v", requestID, err)
		writeJSON(w, httpStatus(err), errorResponse{Error: err.Error(), RequestID: requestID})
		return
	}

	log.Printf("[%s] HTTP classify: label=%s, confidence=%.3f, modality=%s",
		requestID, res.Label, res.Confidence, res.Modality)
	writeJSON(w, http.StatusOK, toResponse(res))
}

// readImage returns nil when the form carries no image file.
func readImage(r *http.Request) (*model.ImageInput, error) {
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}
	encoding := r.FormValue("encoding")
	if encoding == "" {
		encoding = header.Header.Get("Content-Type")
	}
	return &model.ImageInput{Data: data, Encoding: encoding}, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}
