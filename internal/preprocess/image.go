// Package preprocess turns raw user input into model-ready tensors: photos into normalized
// image tensors and symptom descriptions into fixed-length token sequences.
package preprocess

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/nfnt/resize"

	"github.com/SyedDaiam9101/cropdoc/internal/model"
)

// MaxSourcePixels bounds the declared size of an image accepted for decoding.
const MaxSourcePixels = 40_000_000

// Normalizer converts encoded images into tensors matching a fixed input shape.
type Normalizer struct {
	shape model.Shape
}

// NewNormalizer creates a Normalizer producing tensors of the given shape.
func NewNormalizer(shape model.Shape) *Normalizer {
	return &Normalizer{shape: shape}
}

// Normalize decodes in, resizes it bilinearly to the configured size and scales every
// channel to [0,1]. The result is laid out row-major as HWC.
func (n *Normalizer) Normalize(in model.ImageInput) (*model.Tensor, error) {
	if len(in.Data) == 0 {
		return nil, fmt.Errorf("%w: empty image", model.ErrDecode)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(in.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDecode, err)
	}
	if declared := canonicalFormat(in.Encoding); declared != "" && declared != format {
		return nil, fmt.Errorf("%w: declared %s but bytes are %s", model.ErrDecode, in.Encoding, format)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: source image is %dx%d", model.ErrShape, cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxSourcePixels {
		return nil, fmt.Errorf("%w: source image is %dx%d, limit is %d pixels",
			model.ErrShape, cfg.Width, cfg.Height, MaxSourcePixels)
	}

	img, _, err := image.Decode(bytes.NewReader(in.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDecode, err)
	}

	return n.NormalizeImage(img)
}

// NormalizeImage resizes and scales an already decoded image.
func (n *Normalizer) NormalizeImage(img image.Image) (*model.Tensor, error) {
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, fmt.Errorf("%w: source image is %dx%d", model.ErrShape, bounds.Dx(), bounds.Dy())
	}

	h, w, c := n.shape.Height, n.shape.Width, n.shape.Channels
	if h <= 0 || w <= 0 || (c != 1 && c != 3) {
		return nil, fmt.Errorf("%w: unsupported target shape %s", model.ErrShape, n.shape)
	}

	resized := resize.Resize(uint(w), uint(h), img, resize.Bilinear)
	rb := resized.Bounds()
	if rb.Dx() != w || rb.Dy() != h {
		return nil, fmt.Errorf("%w: resize produced %dx%d, expected %dx%d", model.ErrShape, rb.Dx(), rb.Dy(), w, h)
	}

	data := make([]float32, w*h*c)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			px := resized.At(rb.Min.X+x, rb.Min.Y+y)
			idx := (y*w + x) * c
			if c == 1 {
				g := color.Gray16Model.Convert(px).(color.Gray16)
				data[idx] = float32(g.Y) / 65535.0
				continue
			}
			r, g, b, _ := px.RGBA()
			data[idx] = float32(r) / 65535.0
			data[idx+1] = float32(g) / 65535.0
			data[idx+2] = float32(b) / 65535.0
		}
	}

	return &model.Tensor{Shape: n.shape, Data: data}, nil
}

// canonicalFormat maps declared encodings ("jpg", "image/jpeg", ...) onto the names the
// image package registers.
func canonicalFormat(encoding string) string {
	e := strings.ToLower(strings.TrimSpace(encoding))
	e = strings.TrimPrefix(e, "image/")
	switch e {
	case "jpg", "jpeg":
		return "jpeg"
	case "png", "gif":
		return e
	case "", "application/octet-stream", "octet-stream":
		return ""
	default:
		return e
	}
}
