package preprocess

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SyedDaiam9101/cropdoc/internal/model"
)

func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

func TestNormalizeShapeIsAlwaysTarget(t *testing.T) {
	shape := model.Shape{Height: 16, Width: 12, Channels: 3}
	n := NewNormalizer(shape)

	sizes := [][2]int{{1, 1}, {3, 7}, {12, 16}, {40, 25}, {200, 3}}
	for _, sz := range sizes {
		data := encodePNG(t, solidImage(sz[0], sz[1], color.RGBA{R: 10, G: 200, B: 30, A: 255}))
		tensor, err := n.Normalize(model.ImageInput{Data: data, Encoding: "png"})
		require.NoError(t, err, "size %v", sz)
		assert.Equal(t, shape, tensor.Shape)
		assert.Len(t, tensor.Data, shape.Size())
		assert.NoError(t, tensor.Validate(shape))
	}
}

func TestNormalizeScalesToUnitRange(t *testing.T) {
	n := NewNormalizer(model.Shape{Height: 4, Width: 4, Channels: 3})
	data := encodePNG(t, solidImage(9, 9, color.RGBA{R: 255, G: 0, B: 51, A: 255}))

	tensor, err := n.Normalize(model.ImageInput{Data: data})
	require.NoError(t, err)

	for i, v := range tensor.Data {
		require.GreaterOrEqual(t, v, float32(0), "value %d", i)
		require.LessOrEqual(t, v, float32(1), "value %d", i)
	}
	// HWC layout: the first pixel is R, G, B.
	assert.InDelta(t, 1.0, tensor.Data[0], 0.01)
	assert.InDelta(t, 0.0, tensor.Data[1], 0.01)
	assert.InDelta(t, 0.2, tensor.Data[2], 0.01)
}

func TestNormalizeGrayscale(t *testing.T) {
	shape := model.Shape{Height: 5, Width: 5, Channels: 1}
	n := NewNormalizer(shape)
	data := encodeJPEG(t, solidImage(20, 10, color.RGBA{R: 255, G: 255, B: 255, A: 255}))

	tensor, err := n.Normalize(model.ImageInput{Data: data, Encoding: "image/jpeg"})
	require.NoError(t, err)
	assert.Len(t, tensor.Data, 25)
	assert.InDelta(t, 1.0, tensor.Data[12], 0.02)
}

func TestNormalizeRejectsCorruptBytes(t *testing.T) {
	n := NewNormalizer(model.Shape{Height: 4, Width: 4, Channels: 3})

	_, err := n.Normalize(model.ImageInput{Data: []byte("definitely not an image"), Encoding: "jpeg"})
	assert.ErrorIs(t, err, model.ErrDecode)

	_, err = n.Normalize(model.ImageInput{})
	assert.ErrorIs(t, err, model.ErrDecode)

	truncated := encodePNG(t, solidImage(8, 8, color.White))
	_, err = n.Normalize(model.ImageInput{Data: truncated[:len(truncated)/2]})
	assert.ErrorIs(t, err, model.ErrDecode)
}

func TestNormalizeRejectsMismatchedEncoding(t *testing.T) {
	n := NewNormalizer(model.Shape{Height: 4, Width: 4, Channels: 3})
	data := encodePNG(t, solidImage(8, 8, color.White))

	_, err := n.Normalize(model.ImageInput{Data: data, Encoding: "jpg"})
	assert.ErrorIs(t, err, model.ErrDecode)

	_, err = n.Normalize(model.ImageInput{Data: data, Encoding: "webp"})
	assert.ErrorIs(t, err, model.ErrDecode)
}

func TestNormalizeImageZeroSize(t *testing.T) {
	n := NewNormalizer(model.Shape{Height: 4, Width: 4, Channels: 3})

	_, err := n.NormalizeImage(image.NewRGBA(image.Rect(0, 0, 0, 5)))
	assert.ErrorIs(t, err, model.ErrShape)

	_, err = n.NormalizeImage(image.NewRGBA(image.Rect(0, 0, 5, 0)))
	assert.ErrorIs(t, err, model.ErrShape)
}

func TestNormalizeIsDeterministic(t *testing.T) {
	n := NewNormalizer(model.Shape{Height: 8, Width: 8, Channels: 3})
	img := image.NewRGBA(image.Rect(0, 0, 13, 17))
	for y := 0; y < 17; y++ {
		for x := 0; x < 13; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 19), G: uint8(y * 13), B: uint8(x * y), A: 255})
		}
	}
	data := encodePNG(t, img)

	a, err := n.Normalize(model.ImageInput{Data: data})
	require.NoError(t, err)
	b, err := n.Normalize(model.ImageInput{Data: data})
	require.NoError(t, err)
	assert.Equal(t, a.Data, b.Data)
}

// pngHeader returns a PNG signature and IHDR chunk declaring a w x h grayscale image.
// Size checks must reject it from the header alone.
func pngHeader(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 0 // grayscale

	binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestNormalizeRejectsOversizedSource(t *testing.T) {
	n := NewNormalizer(model.Shape{Height: 8, Width: 8, Channels: 3})

	data := pngHeader(12000, 12000)
	require.Less(t, len(data), 64)

	_, err := n.Normalize(model.ImageInput{Data: data, Encoding: "png"})
	assert.ErrorIs(t, err, model.ErrShape)

	_, err = n.Normalize(model.ImageInput{Data: pngHeader(MaxSourcePixels/1000+1, 1000)})
	assert.ErrorIs(t, err, model.ErrShape)
}

func TestNormalizeAcceptsSourceWithinBudget(t *testing.T) {
	n := NewNormalizer(model.Shape{Height: 8, Width: 8, Channels: 1})

	tensor, err := n.Normalize(model.ImageInput{Data: encodePNG(t, solidImage(640, 480, color.White))})
	require.NoError(t, err)
	assert.Len(t, tensor.Data, 64)
}
