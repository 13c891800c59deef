// convert_types.go - Basis-Typen fuer die Modell-Konvertierung
// Haupttypen: ModelParameters, KV
package convert

import (
	"cmp"
	"strings"
)

// ModelParameters - Konfiguration aus config.json
type ModelParameters struct {
	Architectures []string `json:"architectures"`
	ModelType     string   `json:"model_type"`

	NumHeads         uint32  `json:"n_head"`
	NumLayers        uint32  `json:"n_layer"`
	EmbeddingLength  uint32  `json:"n_embd"`
	ContextLength    uint32  `json:"n_positions"`
	VocabSize        uint32  `json:"vocab_size"`
	LayerNormEpsilon float32 `json:"layer_norm_epsilon"`
}

// defaultParameters sind die Werte von GPT-2 small
var defaultParameters = ModelParameters{
	ModelType:        "gpt2",
	NumHeads:         12,
	NumLayers:        12,
	EmbeddingLength:  768,
	ContextLength:    1024,
	VocabSize:        50257,
	LayerNormEpsilon: 1e-5,
}

// KV - Key-Value Map der Hyperparameter, Schluessel ohne Architektur-Praefix
// werden unter "<architektur>." gesucht
type KV map[string]any

// Architecture - Gibt die Modell-Architektur zurueck
func (kv KV) Architecture() string {
	return kv.String("general.architecture", "unknown")
}

// valueTypes - Erlaubte Einzelwert-Typen fuer KV
type valueTypes interface {
	uint32 | string | float32
}

// keyValue - Generische Funktion zum Abrufen von Werten aus KV
func keyValue[T valueTypes](kv KV, key string, defaultValue ...T) (T, bool) {
	if !strings.HasPrefix(key, "general.") {
		key = kv.Architecture() + "." + key
	}

	if val, ok := kv[key].(T); ok {
		return val, true
	}
	return defaultValue[0], false
}

// KV - Erstellt die KV-Map aus den Parametern; fehlende Werte kommen aus
// defaultParameters
func (p ModelParameters) KV() KV {
	arch := cmp.Or(p.ModelType, defaultParameters.ModelType)
	return KV{
		"general.architecture":                arch,
		arch + ".block_count":                 cmp.Or(p.NumLayers, defaultParameters.NumLayers),
		arch + ".attention.head_count":        cmp.Or(p.NumHeads, defaultParameters.NumHeads),
		arch + ".embedding_length":            cmp.Or(p.EmbeddingLength, defaultParameters.EmbeddingLength),
		arch + ".context_length":              cmp.Or(p.ContextLength, defaultParameters.ContextLength),
		arch + ".vocab_size":                  cmp.Or(p.VocabSize, defaultParameters.VocabSize),
		arch + ".attention.layer_norm_epsilon": cmp.Or(p.LayerNormEpsilon, defaultParameters.LayerNormEpsilon),
	}
}
