// linear.go - Lineare Projektion
package nn

import "github.com/ollama/gpt2/ml"

// Linear projiziert die letzte Achse: x · Weightᵀ + Bias.
// Weight hat immer die Orientierung [out, in].
type Linear struct {
	Weight ml.Tensor `weight:"weight"`
	Bias   ml.Tensor `weight:"bias,optional"`
}

func (m *Linear) Forward(ctx ml.Context, t ml.Tensor) ml.Tensor {
	t = m.Weight.Mulmat(ctx, t)
	if m.Bias != nil {
		t = t.Add(ctx, m.Bias)
	}

	return t
}
