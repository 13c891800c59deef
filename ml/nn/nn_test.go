package nn

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
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

var approx = cmpopts.EquateApprox(0, 1e-5)

func catch(fn func()) (err error) {
	defer ml.Recover(&err)
	fn()
	return nil
}

func TestLinear(t *testing.T) {
	ctx := setup(t)

	// [out=2, in=3]
	weight := ctx.FromFloats([]float32{1, 2, 3, 0, -1, 0}, 2, 3)
	x := ctx.FromFloats([]float32{1, 1, 1, 2, 0, 1}, 1, 2, 3)

	cases := []struct {
		name   string
		linear Linear
		want   []float32
	}{
		{"ohne Bias", Linear{Weight: weight}, []float32{6, -1, 5, 0}},
		{"mit Bias", Linear{Weight: weight, Bias: ctx.FromFloats([]float32{0.5, 1}, 2)}, []float32{6.5, 0, 5.5, 1}},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.linear.Forward(ctx, x)
			assert.Equal(t, []int{1, 2, 2}, got.Shape())
			if diff := cmp.Diff(tt.want, got.Floats(), approx); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}

	err := catch(func() { (&Linear{Weight: weight}).Forward(ctx, ctx.FromFloats(make([]float32, 4), 1, 4)) })
	require.ErrorIs(t, err, ml.ErrShapeMismatch)
}

func TestEmbedding(t *testing.T) {
	ctx := setup(t)

	e := Embedding{Weight: ctx.FromFloats([]float32{0, 1, 10, 11, 20, 21}, 3, 2)}

	got := e.Forward(ctx, ctx.FromInts([]int32{2, 1, 2}, 1, 3))
	assert.Equal(t, []int{1, 3, 2}, got.Shape())
	assert.Equal(t, []float32{20, 21, 10, 11, 20, 21}, got.Floats())

	err := catch(func() { e.Forward(ctx, ctx.FromFloats([]float32{1}, 1, 1)) })
	require.ErrorIs(t, err, ml.ErrInvalidInputDtype)
	assert.Contains(t, err.Error(), "embedding")
}

func TestLayerNorm(t *testing.T) {
	ctx := setup(t)

	x := ctx.FromFloats([]float32{1, 2, 3, 4}, 1, 1, 4)
	// Mittelwert 2.5, Varianz 1.25
	std := float32(math.Sqrt(1.25 + 1e-5))
	normalized := []float32{-1.5 / std, -0.5 / std, 0.5 / std, 1.5 / std}

	t.Run("identitaet", func(t *testing.T) {
		var norm *LayerNorm
		got := norm.Forward(ctx, x, DefaultEps)
		if diff := cmp.Diff(normalized, got.Floats(), approx); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("scale und bias", func(t *testing.T) {
		norm := LayerNorm{
			Weight: ctx.FromFloats([]float32{2, 2, 2, 2}, 4),
			Bias:   ctx.FromFloats([]float32{1, 1, 1, 1}, 4),
		}

		want := make([]float32, 4)
		for i, v := range normalized {
			want[i] = 2*v + 1
		}

		got := norm.Forward(ctx, x, DefaultEps)
		if diff := cmp.Diff(want, got.Floats(), approx); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("eingabetyp bleibt erhalten", func(t *testing.T) {
		got := (&LayerNorm{}).Forward(ctx, x.Cast(ctx, ml.DTypeF16), DefaultEps)
		assert.Equal(t, ml.DTypeF16, got.DType())
		if diff := cmp.Diff(normalized, got.Floats(), cmpopts.EquateApprox(0, 1e-3)); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestAttention(t *testing.T) {
	ctx := setup(t)

	const b, l, h, d = 2, 4, 3, 2
	n := b * l * h * d
	query := ctx.Arange(0, float32(n), 1, ml.DTypeF32).Scale(ctx, 0.01).Reshape(ctx, b, l, h, d)
	key := ctx.Arange(0, float32(n), 1, ml.DTypeF32).Scale(ctx, -0.02).Reshape(ctx, b, l, h, d)
	value := ctx.Arange(0, float32(n), 1, ml.DTypeF32).Scale(ctx, 0.03).Reshape(ctx, b, l, h, d)

	inf := float32(math.Inf(-1))
	mask := make([]float32, l*l)
	for i := range l {
		for j := i + 1; j < l; j++ {
			mask[i*l+j] = inf
		}
	}

	for _, m := range []ml.Tensor{nil, ctx.FromFloats(mask, l, l)} {
		fused := Attention(ctx, query, key, value, m, 1/math.Sqrt(d))
		composed := attention(ctx, query, key, value, m, 1/math.Sqrt(d))

		assert.Equal(t, []int{b, l, h, d}, fused.Shape())
		if diff := cmp.Diff(composed.Floats(), fused.Floats(), approx); diff != "" {
			t.Errorf("mask=%v: fused != composed (-composed +fused):\n%s", m != nil, diff)
		}
	}
}
