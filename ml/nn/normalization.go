// normalization.go - Layer-Normalisierung
package nn

import "github.com/ollama/gpt2/ml"

// DefaultEps ist das Epsilon der Layer-Normalisierung, wenn keines konfiguriert ist
const DefaultEps = 1e-5

// LayerNorm normalisiert ueber die letzte Achse. Fehlt Weight oder Bias,
// ist der jeweilige Term die Identitaet.
type LayerNorm struct {
	Weight ml.Tensor `weight:"weight,optional"`
	Bias   ml.Tensor `weight:"bias,optional"`
}

// Forward rechnet unabhaengig vom Eingabetyp in F32 (Mittelwert und
// Populationsvarianz) und gibt das Ergebnis im Eingabetyp zurueck.
func (m *LayerNorm) Forward(ctx ml.Context, t ml.Tensor, eps float32) ml.Tensor {
	dtype := t.DType()
	t = t.Cast(ctx, ml.DTypeF32)

	mean := t.Mean(ctx)
	variance := t.Variance(ctx)

	t = t.Sub(ctx, mean)
	t = t.Div(ctx, variance.Add(ctx, ctx.FromFloats([]float32{eps}, 1)).Sqrt(ctx))

	if m != nil && m.Weight != nil {
		t = t.Mul(ctx, m.Weight)
	}
	if m != nil && m.Bias != nil {
		t = t.Add(ctx, m.Bias)
	}

	return t.Cast(ctx, dtype)
}
