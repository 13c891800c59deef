// Modul: attention.go
// Beschreibung: Kausale Multi-Head Self-Attention mit KV-Cache
// Hauptstrukturen:
//   - SelfAttention: Q/K/V/O Projektionen eines Layers
//   - Forward: Attention ueber Cache plus neue Positionen

package gpt2

import (
	"math"

	"github.com/ollama/gpt2/kvcache"
	"github.com/ollama/gpt2/ml"
	"github.com/ollama/gpt2/ml/nn"
)

// SelfAttention haelt die getrennten Projektionen; die fusionierte
// Projektion des Archivs wird beim Laden aufgeteilt
type SelfAttention struct {
	Query  *nn.Linear `weight:"qProj"`
	Key    *nn.Linear `weight:"kProj"`
	Value  *nn.Linear `weight:"vProj"`
	Output *nn.Linear `weight:"oProj"`
}

// Forward berechnet die Attention fuer hiddenStates [B, L, D]. mask ist
// nil fuer L == 1. Zurueck kommen die Ausgabe und der um L Positionen
// verlaengerte Cache-Eintrag; cache selbst bleibt unveraendert.
func (sa *SelfAttention) Forward(ctx ml.Context, hiddenStates, mask ml.Tensor, cache kvcache.Entry, opts *Options) (ml.Tensor, kvcache.Entry) {
	batchSize, seqLength := hiddenStates.Dim(0), hiddenStates.Dim(1)

	headDim, err := opts.headDim()
	if err != nil {
		panic(&ml.OpError{Op: "attention", Shapes: [][]int{hiddenStates.Shape()}, Err: err})
	}

	query := sa.Query.Forward(ctx, hiddenStates)
	query = query.Reshape(ctx, batchSize, seqLength, opts.numHeads, headDim)

	key := sa.Key.Forward(ctx, hiddenStates)
	key = key.Reshape(ctx, batchSize, seqLength, opts.numHeads, headDim)

	value := sa.Value.Forward(ctx, hiddenStates)
	value = value.Reshape(ctx, batchSize, seqLength, opts.numHeads, headDim)

	cache = cache.Extend(ctx, key, value)

	attention := nn.Attention(ctx, query, cache.Keys, cache.Values, mask, 1/math.Sqrt(float64(headDim)))
	attention = attention.Reshape(ctx, batchSize, seqLength, opts.hiddenSize)
	return sa.Output.Forward(ctx, attention), cache
}
