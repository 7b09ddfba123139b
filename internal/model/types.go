package model

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"
)

// Modality identifies which input produced a decision.
type Modality string

const (
	ModalityImage Modality = "image"
	ModalityText  Modality = "text"
	ModalityFused Modality = "fused"
)

// UncertainLabel is reported when the winning confidence is below the decision threshold.
const UncertainLabel = "uncertain"

// ImageInput is a captured photo. Encoding is the declared format ("jpeg", "png", "gif")
// or empty to let the decoder sniff it.
type ImageInput struct {
	Data     []byte
	Encoding string
}

// Shape is the image input contract of the model, in NHWC order without the batch axis.
type Shape struct {
	Height   int `yaml:"height"`
	Width    int `yaml:"width"`
	Channels int `yaml:"channels"`
}

// Size returns the number of elements a tensor of this shape holds.
func (s Shape) Size() int {
	return s.Height * s.Width * s.Channels
}

// Dims returns the shape with a leading batch axis of 1.
func (s Shape) Dims() []int64 {
	return []int64{1, int64(s.Height), int64(s.Width), int64(s.Channels)}
}

func (s Shape) String() string {
	return fmt.Sprintf("(%d,%d,%d)", s.Height, s.Width, s.Channels)
}

// Tensor is a normalized image: Height*Width*Channels float32 values in [0,1], row-major HWC.
type Tensor struct {
	Shape Shape
	Data  []float32
}

// Validate rejects tensors that do not match the expected contract.
func (t *Tensor) Validate(want Shape) error {
	if t == nil {
		return fmt.Errorf("%w: nil tensor", ErrShape)
	}
	if t.Shape != want {
		return fmt.Errorf("%w: tensor shape %s, model expects %s", ErrShape, t.Shape, want)
	}
	if len(t.Data) != want.Size() {
		return fmt.Errorf("%w: tensor has %d values, expected %d", ErrShape, len(t.Data), want.Size())
	}
	return nil
}

// TokenSequence is a fixed-length sequence of vocabulary ids.
type TokenSequence []int64

// OutputKind says how a model's raw output is to be read.
type OutputKind string

const (
	OutputLogits        OutputKind = "logits"
	OutputProbabilities OutputKind = "probabilities"
)

// RawOutput is one model's uninterpreted per-class output.
type RawOutput struct {
	Values []float32
	Kind   OutputKind
}

// Request is one logical prediction request. Two requests with the same fingerprint
// produce the same result and share a single computation.
type Request struct {
	Fingerprint string
	Modality    Modality
	Image       *Tensor
	Tokens      TokenSequence
	CreatedAt   time.Time
}

// NewRequest builds a request and derives its fingerprint from the normalized payloads and
// the label-set version, so results never leak across model versions.
func NewRequest(labelSetVersion string, image *Tensor, tokens TokenSequence) (Request, error) {
	var modality Modality
	switch {
	case image != nil && tokens != nil:
		modality = ModalityFused
	case image != nil:
		modality = ModalityImage
	case tokens != nil:
		modality = ModalityText
	default:
		return Request{}, ErrInsufficientInput
	}

	h := sha256.New()
	h.Write([]byte(modality))
	h.Write([]byte{0})
	h.Write([]byte(labelSetVersion))
	h.Write([]byte{0})

	var buf [8]byte
	if image != nil {
		binary.LittleEndian.PutUint32(buf[:4], uint32(image.Shape.Height))
		h.Write(buf[:4])
		binary.LittleEndian.PutUint32(buf[:4], uint32(image.Shape.Width))
		h.Write(buf[:4])
		binary.LittleEndian.PutUint32(buf[:4], uint32(image.Shape.Channels))
		h.Write(buf[:4])
		for _, v := range image.Data {
			binary.LittleEndian.PutUint32(buf[:4], math.Float32bits(v))
			h.Write(buf[:4])
		}
	}
	for _, id := range tokens {
		binary.LittleEndian.PutUint64(buf[:], uint64(id))
		h.Write(buf[:])
	}

	return Request{
		Fingerprint: hex.EncodeToString(h.Sum(nil)),
		Modality:    modality,
		Image:       image,
		Tokens:      tokens,
		CreatedAt:   time.Now(),
	}, nil
}

// Result is a classification decision. Results are shared between callers and must not be
// modified after creation.
type Result struct {
	Label           string    `json:"label"`
	ClassIndex      int       `json:"class_index"`
	Description     string    `json:"description,omitempty"`
	Confidence      float64   `json:"confidence"`
	Modality        Modality  `json:"modality"`
	Fingerprint     string    `json:"fingerprint"`
	LabelSetVersion string    `json:"label_set_version"`
	Probabilities   []float64 `json:"probabilities"`
}

// Uncertain reports whether the decision fell below the confidence threshold.
func (r *Result) Uncertain() bool {
	return r.Label == UncertainLabel
}
