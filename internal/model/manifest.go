package model

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Label is one entry of the closed label set.
type Label struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// IOSpec names a model's input and output tensors.
type IOSpec struct {
	Input  string `yaml:"input"`
	Output string `yaml:"output"`
}

// ImageSpec is the image model contract.
type ImageSpec struct {
	Shape  `yaml:",inline"`
	IOSpec `yaml:",inline"`
}

// TextSpec is the symptom model contract.
type TextSpec struct {
	MaxLength int `yaml:"max_length"`
	IOSpec    `yaml:",inline"`
}

// Manifest describes a versioned model bundle: the label set, the symptom vocabulary and
// the tensor contracts of both models.
type Manifest struct {
	Version    string     `yaml:"version"`
	OutputKind OutputKind `yaml:"output_kind"`
	Image      ImageSpec  `yaml:"image"`
	Text       TextSpec   `yaml:"text"`
	Labels     []Label    `yaml:"labels"`
	Vocabulary []string   `yaml:"vocabulary"`
}

// DefaultManifest returns the contract used by the mobile app's bundled models:
// 224x224 RGB images and 50-token symptom sequences.
func DefaultManifest() Manifest {
	return Manifest{
		Version:    "unversioned",
		OutputKind: OutputLogits,
		Image: ImageSpec{
			Shape:  Shape{Height: 224, Width: 224, Channels: 3},
			IOSpec: IOSpec{Input: "input", Output: "output"},
		},
		Text: TextSpec{
			MaxLength: 50,
			IOSpec:    IOSpec{Input: "tokens", Output: "output"},
		},
	}
}

// LoadManifest reads a YAML manifest, filling unset fields from DefaultManifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read manifest: %v", ErrModelLoad, err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes and validates manifest YAML.
func ParseManifest(data []byte) (*Manifest, error) {
	m := DefaultManifest()
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: failed to parse manifest: %v", ErrModelLoad, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the manifest is usable.
func (m *Manifest) Validate() error {
	if m.Version == "" {
		return fmt.Errorf("%w: manifest version is empty", ErrModelLoad)
	}
	if len(m.Labels) < 2 {
		return fmt.Errorf("%w: manifest needs at least 2 labels, got %d", ErrModelLoad, len(m.Labels))
	}
	seen := make(map[string]struct{}, len(m.Labels))
	for i, l := range m.Labels {
		if l.Name == "" {
			return fmt.Errorf("%w: label %d has no name", ErrModelLoad, i)
		}
		if l.Name == UncertainLabel {
			return fmt.Errorf("%w: label name %q is reserved", ErrModelLoad, UncertainLabel)
		}
		if _, ok := seen[l.Name]; ok {
			return fmt.Errorf("%w: duplicate label %q", ErrModelLoad, l.Name)
		}
		seen[l.Name] = struct{}{}
	}
	if m.Image.Height <= 0 || m.Image.Width <= 0 {
		return fmt.Errorf("%w: invalid image size %dx%d", ErrModelLoad, m.Image.Height, m.Image.Width)
	}
	if m.Image.Channels != 1 && m.Image.Channels != 3 {
		return fmt.Errorf("%w: image channels must be 1 or 3, got %d", ErrModelLoad, m.Image.Channels)
	}
	if m.Text.MaxLength <= 0 {
		return fmt.Errorf("%w: invalid max_length %d", ErrModelLoad, m.Text.MaxLength)
	}
	switch m.OutputKind {
	case OutputLogits, OutputProbabilities:
	default:
		return fmt.Errorf("%w: unknown output_kind %q", ErrModelLoad, m.OutputKind)
	}
	return nil
}

// NumClasses returns the size of the label set.
func (m *Manifest) NumClasses() int {
	return len(m.Labels)
}
