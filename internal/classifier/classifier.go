// Package classifier is the entry point of the diagnosis pipeline. It preprocesses image and
// symptom input, submits the request to the coordinator and, on a cache miss, runs the models
// and the fusion engine.
package classifier

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/SyedDaiam9101/cropdoc/internal/coordinator"
	"github.com/SyedDaiam9101/cropdoc/internal/fusion"
	"github.com/SyedDaiam9101/cropdoc/internal/inference"
	"github.com/SyedDaiam9101/cropdoc/internal/metrics"
	"github.com/SyedDaiam9101/cropdoc/internal/model"
	"github.com/SyedDaiam9101/cropdoc/internal/preprocess"
)

const tracerName = "github.com/SyedDaiam9101/cropdoc/internal/classifier"

// pipeline is everything derived from one model bundle. It is replaced as a whole on reload.
type pipeline struct {
	manifest   *model.Manifest
	normalizer *preprocess.Normalizer
	encoder    *preprocess.Encoder
	engine     inference.InferenceEngine
	fusion     *fusion.Engine
}

// Classifier serves image, symptom and combined classification requests.
type Classifier struct {
	current   atomic.Pointer[pipeline]
	fusionCfg fusion.Config
	coord     *coordinator.Coordinator
	tracer    trace.Tracer
}

// New wires a classifier around a loaded engine. The classifier takes ownership of engine.
func New(manifest *model.Manifest, engine inference.InferenceEngine, fusionCfg fusion.Config, coord *coordinator.Coordinator) (*Classifier, error) {
	if coord == nil {
		return nil, fmt.Errorf("classifier requires a coordinator")
	}
	p, err := newPipeline(manifest, engine, fusionCfg)
	if err != nil {
		return nil, err
	}
	c := &Classifier{
		fusionCfg: fusionCfg,
		coord:     coord,
		tracer:    otel.Tracer(tracerName),
	}
	c.current.Store(p)
	return c, nil
}

func newPipeline(manifest *model.Manifest, engine inference.InferenceEngine, fusionCfg fusion.Config) (*pipeline, error) {
	if manifest == nil {
		return nil, fmt.Errorf("%w: manifest is required", model.ErrModelLoad)
	}
	if engine == nil {
		return nil, fmt.Errorf("%w: inference engine not initialized", model.ErrModelLoad)
	}
	fe, err := fusion.New(fusionCfg, manifest)
	if err != nil {
		return nil, err
	}
	return &pipeline{
		manifest:   manifest,
		normalizer: preprocess.NewNormalizer(manifest.Image.Shape),
		encoder:    preprocess.NewEncoder(manifest.Vocabulary, manifest.Text.MaxLength),
		engine:     engine,
		fusion:     fe,
	}, nil
}

// Manifest returns the manifest of the model bundle currently in use.
func (c *Classifier) Manifest() *model.Manifest {
	return c.current.Load().manifest
}

// ClassifyImage diagnoses from a photo alone.
func (c *Classifier) ClassifyImage(ctx context.Context, img model.ImageInput) (*model.Result, error) {
	p := c.current.Load()
	tensor, err := c.normalize(ctx, p, img)
	if err != nil {
		return nil, err
	}
	return c.classify(ctx, p, tensor, nil)
}

// ClassifySymptoms diagnoses from a symptom description alone. Any text, including an
// empty string, is accepted.
func (c *Classifier) ClassifySymptoms(ctx context.Context, text string) (*model.Result, error) {
	p := c.current.Load()
	return c.classify(ctx, p, nil, p.encoder.Encode(text))
}

// ClassifyCombined diagnoses from a photo and a symptom description together.
func (c *Classifier) ClassifyCombined(ctx context.Context, img model.ImageInput, text string) (*model.Result, error) {
	p := c.current.Load()
	tensor, err := c.normalize(ctx, p, img)
	if err != nil {
		return nil, err
	}
	return c.classify(ctx, p, tensor, p.encoder.Encode(text))
}

func (c *Classifier) normalize(ctx context.Context, p *pipeline, img model.ImageInput) (*model.Tensor, error) {
	_, span := c.tracer.Start(ctx, "preprocess.Normalize",
		trace.WithAttributes(attribute.Int("image.bytes", len(img.Data))))
	defer span.End()

	tensor, err := p.normalizer.Normalize(img)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}
	return tensor, nil
}

func (c *Classifier) classify(ctx context.Context, p *pipeline, tensor *model.Tensor, tokens model.TokenSequence) (*model.Result, error) {
	req, err := model.NewRequest(p.manifest.Version, tensor, tokens)
	if err != nil {
		return nil, err
	}

	ctx, span := c.tracer.Start(ctx, "classifier.Submit", trace.WithAttributes(
		attribute.String("modality", string(req.Modality)),
		attribute.String("fingerprint", req.Fingerprint),
	))
	defer span.End()

	res, err := c.coord.Submit(ctx, req, func(ctx context.Context, req model.Request) (*model.Result, error) {
		return c.compute(ctx, p, req)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("label", res.Label),
		attribute.Float64("confidence", res.Confidence),
	)
	return res, nil
}

// compute runs on a coordinator miss with the pipeline req was prepared by. A request held
// behind a reload finds that pipeline replaced and fails with ErrBusy; the caller retries
// against the new bundle. Once compute runs, the coordinator keeps the pipeline in place.
func (c *Classifier) compute(ctx context.Context, p *pipeline, req model.Request) (*model.Result, error) {
	if c.current.Load() != p {
		return nil, fmt.Errorf("%w: model bundle %s was replaced, retry", model.ErrBusy, p.manifest.Version)
	}

	var imageOut, textOut *model.RawOutput
	g, gctx := errgroup.WithContext(ctx)
	if req.Image != nil {
		g.Go(func() error {
			out, err := c.infer(gctx, model.ModalityImage, func(ctx context.Context) (model.RawOutput, error) {
				return p.engine.InferImage(ctx, req.Image)
			})
			imageOut = out
			return err
		})
	}
	if req.Tokens != nil {
		g.Go(func() error {
			out, err := c.infer(gctx, model.ModalityText, func(ctx context.Context) (model.RawOutput, error) {
				return p.engine.InferText(ctx, req.Tokens)
			})
			textOut = out
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res, err := p.fusion.Decide(req.Fingerprint, imageOut, textOut)
	if err != nil {
		return nil, err
	}
	metrics.RecordDecision(res.Label, string(res.Modality))
	return res, nil
}

func (c *Classifier) infer(ctx context.Context, modality model.Modality, run func(context.Context) (model.RawOutput, error)) (*model.RawOutput, error) {
	ctx, span := c.tracer.Start(ctx, "model.Infer", trace.WithAttributes(attribute.String("modality", string(modality))))
	defer span.End()

	start := time.Now()
	out, err := run(ctx)
	metrics.RecordModelLatency(string(modality), time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}
	return &out, nil
}

// Reload swaps in a new model bundle. The coordinator's reload policy decides whether this
// waits for running computations or fails with ErrBusy. On success the old engine is closed
// and cached results are dropped; on failure the new engine is closed and nothing changes.
func (c *Classifier) Reload(ctx context.Context, manifest *model.Manifest, engine inference.InferenceEngine) error {
	next, err := newPipeline(manifest, engine, c.fusionCfg)
	if err != nil {
		if engine != nil {
			engine.Close()
		}
		return err
	}

	var old *pipeline
	err = c.coord.Reload(ctx, func() error {
		old = c.current.Swap(next)
		return nil
	})
	if err != nil {
		engine.Close()
		return err
	}

	if cerr := old.engine.Close(); cerr != nil {
		log.Printf("Warning: failed to close previous inference engine: %v", cerr)
	}
	log.Printf("Reloaded model bundle: version %s -> %s", old.manifest.Version, manifest.Version)
	return nil
}

// Close releases the current inference engine.
func (c *Classifier) Close() error {
	return c.current.Load().engine.Close()
}
