// Command diagnose classifies one leaf photo and/or symptom description offline, using the
// same model bundle and configuration as the server, and prints the result as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/SyedDaiam9101/cropdoc/internal/classifier"
	"github.com/SyedDaiam9101/cropdoc/internal/config"
	"github.com/SyedDaiam9101/cropdoc/internal/coordinator"
	"github.com/SyedDaiam9101/cropdoc/internal/inference"
	"github.com/SyedDaiam9101/cropdoc/internal/model"
)

func main() {
	imagePath := flag.String("image", "", "Path to a leaf photo (JPEG, PNG or GIF)")
	symptoms := flag.String("symptoms", "", "Free-text symptom description")
	configFile := flag.String("config", "", "Path to config file (optional)")
	manifestPath := flag.String("manifest", "", "Path to the model bundle manifest (YAML)")
	imageModel := flag.String("image-model", "", "Path to the leaf image ONNX model")
	textModel := flag.String("text-model", "", "Path to the symptom text ONNX model")
	useMock := flag.Bool("mock", false, "Use mock inference engine")
	flag.Parse()

	log.SetFlags(0)
	log.SetPrefix("diagnose: ")

	symptomsSet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "symptoms" {
			symptomsSet = true
		}
	})
	if *imagePath == "" && !symptomsSet {
		fmt.Fprintln(os.Stderr, "usage: diagnose [-image leaf.jpg] [-symptoms \"yellow spots\"] [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	v := config.New()
	if err := config.ReadFile(v, *configFile); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *manifestPath != "" {
		v.Set("manifest", *manifestPath)
	}
	if *imageModel != "" {
		v.Set("image_model", *imageModel)
	}
	if *textModel != "" {
		v.Set("text_model", *textModel)
	}
	cfg, err := config.Decode(v)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	manifest, err := model.LoadManifest(cfg.Manifest)
	if err != nil {
		log.Fatalf("%v", err)
	}

	var engine inference.InferenceEngine
	if *useMock || cfg.UseMockInference {
		engine = inference.NewMock(manifest.NumClasses())
	} else {
		engine, err = inference.New(inference.Options{
			LibraryPath: cfg.ORTLibrary,
			ImageModel:  cfg.ImageModel,
			TextModel:   cfg.TextModel,
			Manifest:    manifest,
		})
		if err != nil {
			log.Fatalf("%v", err)
		}
	}

	coord, err := coordinator.New(cfg.Coordinator())
	if err != nil {
		engine.Close()
		log.Fatalf("%v", err)
	}
	clf, err := classifier.New(manifest, engine, cfg.Fusion, coord)
	if err != nil {
		engine.Close()
		log.Fatalf("%v", err)
	}
	defer clf.Close()

	res, err := classify(context.Background(), clf, *imagePath, *symptoms, symptomsSet)
	if err != nil {
		clf.Close()
		log.Fatalf("%v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		log.Fatalf("failed to write result: %v", err)
	}
}

func classify(ctx context.Context, clf *classifier.Classifier, imagePath, symptoms string, withSymptoms bool) (*model.Result, error) {
	if imagePath == "" {
		return clf.ClassifySymptoms(ctx, symptoms)
	}

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	img := model.ImageInput{Data: data}
	if withSymptoms {
		return clf.ClassifyCombined(ctx, img, symptoms)
	}
	return clf.ClassifyImage(ctx, img)
}
