// embedding.go - Embedding-Lookup
package nn

import "github.com/ollama/gpt2/ml"

// Embedding bildet ganzzahlige IDs auf Zeilen von Weight [vocab, dim] ab
type Embedding struct {
	Weight ml.Tensor `weight:"weight"`
}

// Forward sammelt die Zeilen zu den IDs in t. Nicht-ganzzahlige IDs
// fuehren zu ml.ErrInvalidInputDtype.
func (m *Embedding) Forward(ctx ml.Context, t ml.Tensor) ml.Tensor {
	if !t.DType().IsInteger() {
		panic(ml.InvalidInputDtype("embedding", m.Weight, t))
	}

	return m.Weight.Rows(ctx, t)
}
