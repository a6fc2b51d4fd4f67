package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ModelKind is the capability a model is selected for.
type ModelKind string

const (
	ModelChat   ModelKind = "chat"
	ModelImage  ModelKind = "image"
	ModelSpeech ModelKind = "speech"
	ModelVideo  ModelKind = "video"
)

// Model is one entry of the model picker.
type Model struct {
	Name  string    `yaml:"name" json:"name"`
	Value string    `yaml:"value" json:"value"`
	Kind  ModelKind `yaml:"kind" json:"kind"`
}

// Catalog is the list of models offered to users.
type Catalog struct {
	Models []Model `yaml:"models" json:"models"`
}

// ErrEmptyCatalog is returned when a catalog file lists no models.
var ErrEmptyCatalog = errors.New("config: model catalog is empty")

// DefaultCatalog returns the built-in model list.
func DefaultCatalog() *Catalog {
	return &Catalog{Models: []Model{
		{Name: "Gemini 2.5 Pro", Value: "gemini-2.5-pro", Kind: ModelChat},
		{Name: "Gemini 2.5 Flash", Value: "gemini-2.5-flash", Kind: ModelChat},
		{Name: "Veo 3", Value: "veo-3.0-generate-preview", Kind: ModelVideo},
		{Name: "Imagen 4 (Google Vertex AI)", Value: "imagen-4", Kind: ModelImage},
		{Name: "Gemini 2.5 Flash Image Preview", Value: "gemini-2.5-flash-image-preview", Kind: ModelImage},
		{Name: "Gemini 2.5 Flash Preview TTS", Value: "gemini-2.5-flash-preview-tts", Kind: ModelSpeech},
		{Name: "Gemini 2.5 Pro Preview TTS", Value: "gemini-2.5-pro-preview-tts", Kind: ModelSpeech},
	}}
}

// LoadCatalog returns the catalog from MODELS_FILE, or the built-in one when
// no file is configured.
func (c *Config) LoadCatalog() (*Catalog, error) {
	if c.ModelsFile == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(c.ModelsFile)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", c.ModelsFile, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog unmarshals a YAML model catalog. Entries without a kind are
// chat models.
func ParseCatalog(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("config: parse model catalog: %w", err)
	}
	if len(cat.Models) == 0 {
		return nil, ErrEmptyCatalog
	}
	for i := range cat.Models {
		m := &cat.Models[i]
		if m.Value == "" {
			return nil, fmt.Errorf("config: model catalog entry %d has no value", i)
		}
		if m.Name == "" {
			m.Name = m.Value
		}
		if m.Kind == "" {
			m.Kind = ModelChat
		}
		switch m.Kind {
		case ModelChat, ModelImage, ModelSpeech, ModelVideo:
		default:
			return nil, fmt.Errorf("config: model %q has unknown kind %q", m.Value, m.Kind)
		}
	}
	return &cat, nil
}

// ByKind returns the models of kind k in catalog order.
func (c *Catalog) ByKind(k ModelKind) []Model {
	var out []Model
	for _, m := range c.Models {
		if m.Kind == k {
			out = append(out, m)
		}
	}
	return out
}

// Has reports whether value is a model of kind k.
func (c *Catalog) Has(k ModelKind, value string) bool {
	for _, m := range c.Models {
		if m.Kind == k && m.Value == value {
			return true
		}
	}
	return false
}
