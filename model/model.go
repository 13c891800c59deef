// Package model - Model-Interface und Initialisierung
//
// Dieses Paket definiert das Model-Interface und stellt Funktionen
// zur Initialisierung und Verwaltung von Modellen bereit.
//
// Hauptkomponenten:
// - Model: Interface fuer alle Modell-Architekturen
// - Base: Basis-Implementierung fuer gemeinsame Funktionalitaet
// - New: Erstellt neue Model-Instanzen aus Konfiguration und Gewichten
// - Register: Registriert Modell-Konstruktoren
// - Forward: Fuehrt Vorwaerts-Pass durch
package model

import (
	"errors"
	"fmt"

	"github.com/ollama/gpt2/fs"
	"github.com/ollama/gpt2/kvcache"
	"github.com/ollama/gpt2/ml"
)

// Fehler-Definitionen
var (
	ErrUnsupportedModel = errors.New("model not supported")
	ErrMissingWeight    = errors.New("missing weight")
	ErrUnmappedWeight   = errors.New("unmapped weight")
)

// Model definiert das Interface fuer spezifische Modell-Architekturen
type Model interface {
	// Forward verarbeitet inputIDs [B, L] hinter dem Inhalt von cache und
	// gibt Logits [B, L, vocab] zurueck. Nur bei Erfolg wird cache
	// fortgeschrieben.
	Forward(ctx ml.Context, inputIDs ml.Tensor, cache *kvcache.State, opts Options) (ml.Tensor, error)

	Config() Config
}

// Validator ist ein optionales Interface fuer Post-Load-Validierung
type Validator interface {
	Validate() error
}

// Options sind Einstellungen pro Aufruf. Nullwerte uebernehmen die
// Vorgaben aus Config.
type Options struct {
	NumHeads int
}

// Config enthaelt die Hyperparameter eines geladenen Modells
type Config struct {
	Architecture    string `json:"architecture"`
	NumLayers       int    `json:"num_layers"`
	NumHeads        int    `json:"num_heads"`
	EmbeddingLength int    `json:"embedding_length"`
	ContextLength   int    `json:"context_length"`
	VocabSize       int    `json:"vocab_size"`
}

// Base implementiert gemeinsame Felder und Methoden fuer alle Modelle
type Base struct {
	config Config
}

// NewBase erzeugt die Basis mit der gegebenen Konfiguration
func NewBase(c Config) Base {
	return Base{config: c}
}

// Config gibt die Modell-Konfiguration zurueck
func (m *Base) Config() Config {
	return m.config
}

// models speichert registrierte Modell-Konstruktoren
var models = make(map[string]func(fs.Config) (Model, error))

// Register registriert einen Modell-Konstruktor fuer eine Architektur
func Register(name string, f func(fs.Config) (Model, error)) {
	if _, ok := models[name]; ok {
		panic("model: model already registered")
	}

	models[name] = f
}

// New erzeugt das Modell zur Architektur aus c und befuellt es mit weights
func New(c fs.Config, weights map[string]ml.Tensor) (Model, error) {
	f, ok := models[c.Architecture()]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, c.Architecture())
	}

	m, err := f(c)
	if err != nil {
		return nil, err
	}

	if err := Populate(m, weights); err != nil {
		return nil, err
	}

	if validator, ok := m.(Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Forward fuehrt einen Vorwaerts-Pass durch das Modell aus
func Forward(ctx ml.Context, m Model, inputIDs ml.Tensor, cache *kvcache.State, opts Options) (ml.Tensor, error) {
	if len(inputIDs.Shape()) != 2 {
		return nil, fmt.Errorf("input ids must have shape [batch, length], got %v", inputIDs.Shape())
	}

	if inputIDs.Dim(0) < 1 || inputIDs.Dim(1) < 1 {
		return nil, errors.New("batch size and length cannot be less than 1")
	}

	if cache.NumLayers() != m.Config().NumLayers {
		return nil, fmt.Errorf("cache has %d layers, model has %d", cache.NumLayers(), m.Config().NumLayers)
	}

	t, err := m.Forward(ctx, inputIDs, cache, opts)
	if err != nil {
		return nil, err
	}

	ctx.Forward(t)

	return t, nil
}
