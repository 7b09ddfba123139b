package model

import "errors"

// Error taxonomy shared by every stage of the pipeline. Stages wrap these with
// fmt.Errorf("%w: ...") so callers can match with errors.Is.
var (
	// ErrDecode is returned for corrupt or unsupported image bytes.
	ErrDecode = errors.New("decode error")
	// ErrShape is returned when an image or tensor violates the model input contract.
	ErrShape = errors.New("shape error")
	// ErrModelLoad is returned when model weights are missing, corrupt or incompatible.
	ErrModelLoad = errors.New("model load error")
	// ErrInference is returned when the runtime fails or produces an unusable output.
	ErrInference = errors.New("inference error")
	// ErrInsufficientInput is returned when neither an image nor symptom text is given.
	ErrInsufficientInput = errors.New("insufficient input")
	// ErrTimeout is returned to every caller attached to a request that exceeded its ceiling.
	ErrTimeout = errors.New("inference timeout")
	// ErrBusy is returned when a model reload is refused because requests are in flight, or
	// when a request prepared for a model bundle reaches it after the bundle was replaced.
	ErrBusy = errors.New("busy")
)
