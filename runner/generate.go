// Package runner - Autoregressive Generierung ueber den KV-Cache
//
// Dieses Modul enthaelt:
// - GenerationConfig: Heads und Anzahl neuer Tokens
// - Generate: Prefill, dann greedy Decode-Schritte
// - Step/Result: Fortschritt pro Schritt und Zeitmessung
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ollama/gpt2/kvcache"
	"github.com/ollama/gpt2/logutil"
	"github.com/ollama/gpt2/ml"
	"github.com/ollama/gpt2/model"
	"github.com/ollama/gpt2/sample"
)

var ErrInvalidInput = errors.New("invalid input")

// GenerationConfig steuert eine Generierung. NumHeads 0 uebernimmt den
// Wert des Modells.
type GenerationConfig struct {
	NumHeads     int
	MaxNewTokens int
}

// Step beschreibt einen abgeschlossenen Decode-Schritt
type Step struct {
	// Index zaehlt die erzeugten Tokens ab 0
	Index int
	// Tokens enthaelt den neuen Token jeder Batch-Zeile
	Tokens       []int32
	CachedLength int
	Elapsed      time.Duration
}

// Result ist das Ergebnis einer Generierung
type Result struct {
	// OutputIDs [B, L0+MaxNewTokens]: Eingabe gefolgt von den neuen Tokens
	OutputIDs ml.Tensor

	PromptTokens       int
	PromptEvalDuration time.Duration
	GeneratedTokens    int
	EvalDuration       time.Duration
}

// Generate fuehrt einen Prefill ueber inputIDs [B, L0] aus und waehlt danach
// MaxNewTokens mal greedy den naechsten Token jeder Zeile. Nach jedem
// Schritt wird fn (falls gesetzt) aufgerufen; ein Fehler von fn oder ein
// abgebrochener ctx beendet die Generierung. Der Cache gehoert allein
// diesem Aufruf.
func Generate(ctx context.Context, mctx ml.Context, m model.Model, inputIDs ml.Tensor, cfg GenerationConfig, fn func(Step) error) (_ *Result, err error) {
	defer ml.Recover(&err)

	if cfg.MaxNewTokens < 0 {
		return nil, fmt.Errorf("%w: max new tokens must not be negative, got %d", ErrInvalidInput, cfg.MaxNewTokens)
	}

	if cfg.NumHeads < 0 {
		return nil, fmt.Errorf("%w: num heads must not be negative, got %d", ErrInvalidInput, cfg.NumHeads)
	}

	opts := model.Options{NumHeads: cfg.NumHeads}
	cache := kvcache.NewState(m.Config().NumLayers)

	start := time.Now()
	logits, err := model.Forward(mctx, m, inputIDs, cache, opts)
	if err != nil {
		return nil, err
	}

	res := Result{
		PromptTokens:       inputIDs.Dim(0) * inputIDs.Dim(1),
		PromptEvalDuration: time.Since(start),
	}
	slog.Debug("prefill", "batch", inputIDs.Dim(0), "length", inputIDs.Dim(1), "duration", res.PromptEvalDuration)

	output := inputIDs
	batchSize := inputIDs.Dim(0)
	for i := range cfg.MaxNewTokens {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()

		n := logits.Dim(1)
		last := logits.Slice(mctx, 1, n-1, n, 1).Reshape(mctx, batchSize, logits.Dim(2))
		tokens := sample.Greedy(mctx, last)

		next := mctx.Input().FromInts(tokens, batchSize, 1)
		output = output.Concat(mctx, next, 1)

		// nach dem letzten Token ist kein weiterer Pass noetig
		if i < cfg.MaxNewTokens-1 {
			logits, err = model.Forward(mctx, m, next, cache, opts)
			if err != nil {
				return nil, err
			}
		}

		elapsed := time.Since(start)
		res.EvalDuration += elapsed
		res.GeneratedTokens += batchSize
		logutil.Trace("decode step", "index", i, "tokens", tokens, "cached", cache.CachedLength(), "duration", elapsed, "logits", ml.DumpValue(mctx, last, ml.DumpWithEdgeItems(2)))

		if fn != nil {
			if err := fn(Step{Index: i, Tokens: tokens, CachedLength: cache.CachedLength(), Elapsed: elapsed}); err != nil {
				return nil, err
			}
		}
	}

	res.OutputIDs = output
	return &res, nil
}

// TopK fuehrt einen Prefill ueber inputIDs [B, L] aus und gibt je Zeile die
// k wahrscheinlichsten naechsten Tokens zurueck
func TopK(mctx ml.Context, m model.Model, inputIDs ml.Tensor, numHeads, k int) (_ [][]sample.TokenProb, err error) {
	defer ml.Recover(&err)

	if k < 1 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidInput, k)
	}

	cache := kvcache.NewState(m.Config().NumLayers)
	logits, err := model.Forward(mctx, m, inputIDs, cache, model.Options{NumHeads: numHeads})
	if err != nil {
		return nil, err
	}

	n := logits.Dim(1)
	last := logits.Slice(mctx, 1, n-1, n, 1).Reshape(mctx, logits.Dim(0), logits.Dim(2))
	return sample.TopK(mctx, last, k), nil
}
