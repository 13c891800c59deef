// Modul: model.go
// Beschreibung: GPT-2 Modell-Definition und Initialisierung
// Hauptstrukturen:
//   - Model: Embeddings, Layer, finale Normalisierung und Ausgabe
//   - Layer: Pre-Norm Residual-Block aus Attention und MLP
//   - New: Erstellt ein neues GPT-2 Modell aus der Konfiguration
//   - Forward: Prefill oder Decode-Schritt ueber den KV-Cache

package gpt2

import (
	"fmt"
	"log/slog"

	"github.com/ollama/gpt2/fs"
	"github.com/ollama/gpt2/kvcache"
	"github.com/ollama/gpt2/logutil"
	"github.com/ollama/gpt2/ml"
	"github.com/ollama/gpt2/ml/nn"
	"github.com/ollama/gpt2/model"
)

// Layer ist ein Transformer-Block:
//
//	x'  = x  + Attention(LayerNorm(x, ln1))
//	x'' = x' + MLP(LayerNorm(x', ln2))
type Layer struct {
	AttentionNorm *nn.LayerNorm  `weight:"ln1"`
	SelfAttention *SelfAttention `weight:"attn"`
	MLPNorm       *nn.LayerNorm  `weight:"ln2"`
	MLP           *MLP           `weight:"mlp"`
}

func (l *Layer) Forward(ctx ml.Context, hiddenStates, mask ml.Tensor, cache kvcache.Entry, opts *Options) (ml.Tensor, kvcache.Entry) {
	residual := hiddenStates

	hiddenStates = l.AttentionNorm.Forward(ctx, hiddenStates, opts.eps)
	hiddenStates, cache = l.SelfAttention.Forward(ctx, hiddenStates, mask, cache, opts)
	hiddenStates = hiddenStates.Add(ctx, residual)
	residual = hiddenStates

	hiddenStates = l.MLPNorm.Forward(ctx, hiddenStates, opts.eps)
	hiddenStates = l.MLP.Forward(ctx, hiddenStates)
	return hiddenStates.Add(ctx, residual), cache
}

// Model repraesentiert das vollstaendige GPT-2 Modell. LMHead teilt sich
// das Gewicht mit TokenEmbedding.
type Model struct {
	model.Base

	TokenEmbedding    *nn.Embedding `weight:"wte"`
	PositionEmbedding *nn.Embedding `weight:"wpe"`
	Layers            []Layer       `weight:"h"`
	FinalNorm         *nn.LayerNorm `weight:"lnF"`
	LMHead            *nn.Linear    `weight:"lmHead"`

	*Options
}

// New erstellt ein neues GPT-2 Modell aus der gegebenen Konfiguration
func New(c fs.Config) (model.Model, error) {
	m := Model{
		Layers: make([]Layer, c.Uint("block_count")),
		Options: &Options{
			hiddenSize:    int(c.Uint("embedding_length")),
			numHeads:      int(c.Uint("attention.head_count")),
			contextLength: int(c.Uint("context_length")),
			eps:           c.Float("attention.layer_norm_epsilon", nn.DefaultEps),
		},
	}

	return &m, nil
}

// Validate gleicht die Konfiguration mit den geladenen Gewichten ab
func (m *Model) Validate() error {
	vocabSize, hiddenSize := m.TokenEmbedding.Weight.Dim(0), m.TokenEmbedding.Weight.Dim(1)
	if hiddenSize != m.hiddenSize {
		return fmt.Errorf("%w: wte has embedding length %d, config says %d", ErrInvalidConfig, hiddenSize, m.hiddenSize)
	}

	if m.PositionEmbedding.Weight.Dim(1) != hiddenSize {
		return fmt.Errorf("%w: wpe has embedding length %d, want %d", ErrInvalidConfig, m.PositionEmbedding.Weight.Dim(1), hiddenSize)
	}

	if contextLength := m.PositionEmbedding.Weight.Dim(0); contextLength != m.contextLength {
		slog.Warn("context length differs from config, using wpe", "config", m.contextLength, "wpe", contextLength)
		m.contextLength = contextLength
	}

	if _, err := m.headDim(); err != nil {
		return err
	}

	m.Base = model.NewBase(model.Config{
		Architecture:    "gpt2",
		NumLayers:       len(m.Layers),
		NumHeads:        m.numHeads,
		EmbeddingLength: hiddenSize,
		ContextLength:   m.contextLength,
		VocabSize:       vocabSize,
	})

	return nil
}

// Forward verarbeitet inputIDs [B, L] hinter den cache.CachedLength()
// gecachten Positionen. Mit leerem Cache ist das der Prefill, danach
// typischerweise ein Decode-Schritt mit L == 1. Fuer L > 1 begrenzt eine
// additive Kausalmaske jede Position auf sich und ihre Vorgaenger, auch
// hinter einem gefuellten Cache.
//
// Der Cache wird erst nach dem letzten Layer fortgeschrieben; bei einem
// Fehler bleibt er unveraendert.
func (m *Model) Forward(ctx ml.Context, inputIDs ml.Tensor, cache *kvcache.State, opts model.Options) (_ ml.Tensor, err error) {
	defer ml.Recover(&err)

	o := m.Options.with(opts)
	if _, err := o.headDim(); err != nil {
		return nil, err
	}

	seqLength := inputIDs.Dim(1)
	cachedLength := cache.CachedLength()
	if cachedLength+seqLength > o.contextLength {
		return nil, fmt.Errorf("%w: %d cached + %d new positions, limit %d", ErrContextLength, cachedLength, seqLength, o.contextLength)
	}

	positions := ctx.Input().Arange(float32(cachedLength), float32(cachedLength+seqLength), 1, ml.DTypeI32)

	hiddenStates := m.TokenEmbedding.Forward(ctx, inputIDs)
	hiddenStates = hiddenStates.Add(ctx, m.PositionEmbedding.Forward(ctx, positions))

	mask := kvcache.CausalMask(ctx, cachedLength, seqLength)

	entries := make([]kvcache.Entry, len(m.Layers))
	for i := range m.Layers {
		hiddenStates, entries[i] = m.Layers[i].Forward(ctx.Layer(i), hiddenStates, mask, cache.Entry(i), &o)
	}

	hiddenStates = m.FinalNorm.Forward(ctx, hiddenStates, o.eps)
	logits := m.LMHead.Forward(ctx, hiddenStates)

	cache.Commit(entries, seqLength)
	logutil.Trace("forward", "cached", cache.CachedLength(), "new", seqLength, "logits", logits.Shape())

	return logits, nil
}

func init() {
	model.Register("gpt2", New)
}
