package sample

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/ollama/gpt2/ml"
	_ "github.com/ollama/gpt2/ml/backend"
)

func setup(t *testing.T) ml.Context {
	t.Helper()
	b, err := ml.NewBackend(ml.BackendParams{})
	require.NoError(t, err)
	return b.NewContext()
}

func TestGreedy(t *testing.T) {
	ctx := setup(t)

	cases := []struct {
		name   string
		logits []float32
		shape  []int
		want   []int32
	}{
		{"eine zeile", []float32{0.1, 2, -1, 0.5}, []int{1, 4}, []int32{1}},
		{"zwei zeilen", []float32{0.1, 2, -1, 0.5, 3, 0, 0, 0}, []int{2, 4}, []int32{1, 0}},
		{"gleichstand", []float32{1, 5, 5, 5}, []int{1, 4}, []int32{1}},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got := Greedy(ctx, ctx.FromFloats(tt.logits, tt.shape...))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTopK(t *testing.T) {
	ctx := setup(t)

	// ln(1), ln(2), ln(3), ln(4) -> Wahrscheinlichkeiten 0.1 .. 0.4
	logits := ctx.FromFloats([]float32{0, 0.6931472, 1.0986123, 1.3862944}, 1, 4)

	got := TopK(ctx, logits, 2)
	want := [][]TokenProb{{{Token: 3, Probability: 0.4}, {Token: 2, Probability: 0.3}}}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-5)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	all := TopK(ctx, logits, 10)
	require.Len(t, all[0], 4, "k wird auf das Vokabular begrenzt")
	require.Equal(t, int32(0), all[0][3].Token)
}
