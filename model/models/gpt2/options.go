// Modul: options.go
// Beschreibung: Konfigurationsoptionen fuer das GPT-2 Modell
// Hauptstrukturen:
//   - Options: Hyperparameter eines Vorwaerts-Passes
//   - headDim: Breite eines Attention-Heads

package gpt2

import (
	"errors"
	"fmt"

	"github.com/ollama/gpt2/model"
)

var (
	ErrInvalidConfig = errors.New("invalid model config")
	ErrContextLength = errors.New("context length exceeded")
)

// Options enthaelt die Hyperparameter des GPT-2 Modells
type Options struct {
	hiddenSize,
	numHeads,
	contextLength int

	eps float32
}

// with gibt eine Kopie mit den Einstellungen des Aufrufs zurueck
func (o Options) with(opts model.Options) Options {
	if opts.NumHeads != 0 {
		o.numHeads = opts.NumHeads
	}
	return o
}

// headDim prueft, dass die Heads die Modellbreite exakt teilen
func (o Options) headDim() (int, error) {
	if o.numHeads <= 0 || o.hiddenSize%o.numHeads != 0 {
		return 0, fmt.Errorf("%w: %d heads do not divide embedding length %d", ErrInvalidConfig, o.numHeads, o.hiddenSize)
	}

	return o.hiddenSize / o.numHeads, nil
}
