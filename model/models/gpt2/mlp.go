// Modul: mlp.go
// Beschreibung: Feed-Forward Block des GPT-2 Modells

package gpt2

import (
	"github.com/ollama/gpt2/ml"
	"github.com/ollama/gpt2/ml/nn"
)

type MLP struct {
	Up   *nn.Linear `weight:"cFc"`
	Down *nn.Linear `weight:"cProj"`
}

func (mlp *MLP) Forward(ctx ml.Context, hiddenStates ml.Tensor) ml.Tensor {
	hiddenStates = mlp.Up.Forward(ctx, hiddenStates).GELU(ctx)
	return mlp.Down.Forward(ctx, hiddenStates)
}
