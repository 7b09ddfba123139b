package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SyedDaiam9101/cropdoc/internal/model"
)

func testManifest(n int) *model.Manifest {
	m := model.DefaultManifest()
	m.Version = "test-v1"
	names := []string{"healthy", "early_blight", "leaf_rust", "powdery_mildew"}
	for i := 0; i < n; i++ {
		m.Labels = append(m.Labels, model.Label{Name: names[i], Description: names[i] + " description"})
	}
	return &m
}

func probs(values ...float32) *model.RawOutput {
	return &model.RawOutput{Values: values, Kind: model.OutputProbabilities}
}

func newEngine(t *testing.T, cfg Config, n int) *Engine {
	t.Helper()
	e, err := New(cfg, testManifest(n))
	require.NoError(t, err)
	return e
}

func TestDecideWeightedFusion(t *testing.T) {
	e := newEngine(t, DefaultConfig(), 2)

	res, err := e.Decide("fp", probs(0.7, 0.3), probs(0.4, 0.6))
	require.NoError(t, err)

	assert.InDelta(t, 0.58, res.Probabilities[0], 1e-6)
	assert.InDelta(t, 0.42, res.Probabilities[1], 1e-6)
	assert.Equal(t, 0, res.ClassIndex)
	assert.Equal(t, "healthy", res.Label)
	assert.InDelta(t, 0.58, res.Confidence, 1e-6)
	assert.Equal(t, model.ModalityFused, res.Modality)
	assert.Equal(t, "fp", res.Fingerprint)
	assert.Equal(t, "test-v1", res.LabelSetVersion)
}

func TestDecideSingleModality(t *testing.T) {
	e := newEngine(t, DefaultConfig(), 3)

	res, err := e.Decide("a", nil, probs(0.1, 0.2, 0.7))
	require.NoError(t, err)
	assert.Equal(t, model.ModalityText, res.Modality)
	assert.Equal(t, 2, res.ClassIndex)
	assert.Equal(t, "leaf_rust", res.Label)
	assert.InDelta(t, 0.7, res.Confidence, 1e-6)

	res, err = e.Decide("b", probs(0.1, 0.8, 0.1), nil)
	require.NoError(t, err)
	assert.Equal(t, model.ModalityImage, res.Modality)
	assert.Equal(t, "early_blight", res.Label)
	assert.Equal(t, "early_blight description", res.Description)
}

func TestDecideSoftmaxOverLogits(t *testing.T) {
	e := newEngine(t, DefaultConfig(), 2)

	logits := &model.RawOutput{Values: []float32{2, 0}, Kind: model.OutputLogits}
	res, err := e.Decide("fp", logits, nil)
	require.NoError(t, err)
	// e^2 / (e^2 + 1)
	assert.InDelta(t, 0.880797, res.Confidence, 1e-5)
	assert.InDelta(t, 1.0, res.Probabilities[0]+res.Probabilities[1], 1e-9)
}

func TestDecideBelowThresholdIsUncertain(t *testing.T) {
	e := newEngine(t, DefaultConfig(), 3)

	res, err := e.Decide("fp", probs(0.35, 0.33, 0.32), nil)
	require.NoError(t, err)
	assert.True(t, res.Uncertain())
	assert.Equal(t, model.UncertainLabel, res.Label)
	assert.Equal(t, -1, res.ClassIndex)
	assert.InDelta(t, 0.35, res.Confidence, 1e-6)
	assert.Empty(t, res.Description)
}

func TestDecideAtThresholdIsNotUncertain(t *testing.T) {
	e := newEngine(t, Config{ImageWeight: 1, TextWeight: 1, Threshold: 0.5}, 2)

	res, err := e.Decide("fp", probs(0.5, 0.5), nil)
	require.NoError(t, err)
	assert.False(t, res.Uncertain())
}

func TestDecideTieBreakPrefersImageClass(t *testing.T) {
	e := newEngine(t, Config{ImageWeight: 0.5, TextWeight: 0.5, Threshold: 0}, 2)

	// Image favours class 1, text favours class 0 equally: fused is [0.5, 0.5].
	res, err := e.Decide("fp", probs(0.4, 0.6), probs(0.6, 0.4))
	require.NoError(t, err)
	assert.InDelta(t, res.Probabilities[0], res.Probabilities[1], 1e-9)
	assert.Equal(t, 1, res.ClassIndex)
}

func TestDecideTieBreakLowestIndexWithoutImage(t *testing.T) {
	e := newEngine(t, Config{ImageWeight: 1, TextWeight: 1, Threshold: 0}, 4)

	res, err := e.Decide("fp", nil, probs(0.1, 0.4, 0.1, 0.4))
	require.NoError(t, err)
	assert.Equal(t, 1, res.ClassIndex)
}

func TestDecideTieBreakImageClassNotTied(t *testing.T) {
	e := newEngine(t, Config{ImageWeight: 0.5, TextWeight: 0.5, Threshold: 0}, 3)

	// fused = [0.35, 0.35, 0.30]; image argmax is class 2, which is not tied for the top.
	res, err := e.Decide("fp", probs(0.3, 0.3, 0.4), probs(0.4, 0.4, 0.2))
	require.NoError(t, err)
	assert.Equal(t, 0, res.ClassIndex)
}

func TestDecideWeightsAreNormalized(t *testing.T) {
	e := newEngine(t, Config{ImageWeight: 3, TextWeight: 2, Threshold: 0.4}, 2)

	res, err := e.Decide("fp", probs(0.7, 0.3), probs(0.4, 0.6))
	require.NoError(t, err)
	assert.InDelta(t, 0.58, res.Confidence, 1e-6)
}

func TestDecideInsufficientInput(t *testing.T) {
	e := newEngine(t, DefaultConfig(), 2)
	_, err := e.Decide("fp", nil, nil)
	assert.ErrorIs(t, err, model.ErrInsufficientInput)
}

func TestDecideRejectsWrongClassCount(t *testing.T) {
	e := newEngine(t, DefaultConfig(), 3)
	_, err := e.Decide("fp", probs(0.5, 0.5), nil)
	assert.ErrorIs(t, err, model.ErrInference)
}

func TestDecideRejectsInvalidProbabilities(t *testing.T) {
	e := newEngine(t, DefaultConfig(), 2)

	_, err := e.Decide("fp", probs(-0.1, 1.1), nil)
	assert.ErrorIs(t, err, model.ErrInference)

	_, err = e.Decide("fp", probs(0, 0), nil)
	assert.ErrorIs(t, err, model.ErrInference)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{ImageWeight: 0, TextWeight: 0, Threshold: 0.4}.Validate())
	assert.Error(t, Config{ImageWeight: -1, TextWeight: 2, Threshold: 0.4}.Validate())
	assert.Error(t, Config{ImageWeight: 1, TextWeight: 1, Threshold: 1.5}.Validate())
}

func TestSoftmaxStable(t *testing.T) {
	p := Softmax([]float32{1000, 1000})
	assert.InDelta(t, 0.5, p[0], 1e-9)
	assert.InDelta(t, 0.5, p[1], 1e-9)
	assert.Empty(t, Softmax(nil))
}
