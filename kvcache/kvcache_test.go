package kvcache

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
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

func TestCausalMask(t *testing.T) {
	ctx := setup(t)
	inf := float32(math.Inf(-1))

	cases := []struct {
		name   string
		cached int
		n      int
		shape  []int
		want   []float32
	}{
		{
			name:  "prefill",
			n:     3,
			shape: []int{3, 3},
			want: []float32{
				0, inf, inf,
				0, 0, inf,
				0, 0, 0,
			},
		},
		{
			name:   "prefill hinter cache",
			cached: 2,
			n:      2,
			shape:  []int{2, 4},
			want: []float32{
				0, 0, 0, inf,
				0, 0, 0, 0,
			},
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			mask := CausalMask(ctx, tt.cached, tt.n)
			assert.Equal(t, tt.shape, mask.Shape())
			if diff := cmp.Diff(tt.want, mask.Floats()); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if mask := CausalMask(ctx, 5, 1); mask != nil {
		t.Errorf("decode mask = %v, want nil", mask.Shape())
	}
}

func TestEntryExtend(t *testing.T) {
	ctx := setup(t)

	var e Entry
	assert.True(t, e.Empty())
	assert.Equal(t, 0, e.Len())

	k1 := ctx.FromFloats([]float32{1, 2, 3, 4}, 1, 2, 1, 2)
	v1 := ctx.FromFloats([]float32{5, 6, 7, 8}, 1, 2, 1, 2)
	e1 := e.Extend(ctx, k1, v1)
	assert.Equal(t, 2, e1.Len())
	assert.True(t, e.Empty(), "Extend darf den alten Eintrag nicht veraendern")

	k2 := ctx.FromFloats([]float32{9, 10}, 1, 1, 1, 2)
	v2 := ctx.FromFloats([]float32{11, 12}, 1, 1, 1, 2)
	e2 := e1.Extend(ctx, k2, v2)
	assert.Equal(t, 3, e2.Len())
	assert.Equal(t, 2, e1.Len())
	assert.Equal(t, []float32{1, 2, 3, 4, 9, 10}, e2.Keys.Floats())
	assert.Equal(t, []float32{5, 6, 7, 8, 11, 12}, e2.Values.Floats())
}

func TestStateCommit(t *testing.T) {
	ctx := setup(t)

	s := NewState(2)
	assert.Equal(t, 2, s.NumLayers())
	assert.Equal(t, 0, s.CachedLength())

	kv := func(n int) (ml.Tensor, ml.Tensor) {
		return ctx.Zeros(ml.DTypeF32, 1, n, 1, 2), ctx.Zeros(ml.DTypeF32, 1, n, 1, 2)
	}

	next := make([]Entry, 2)
	for i := range next {
		k, v := kv(3)
		next[i] = s.Entry(i).Extend(ctx, k, v)
	}
	s.Commit(next, 3)
	assert.Equal(t, 3, s.CachedLength())

	for i := range next {
		k, v := kv(1)
		next[i] = s.Entry(i).Extend(ctx, k, v)
	}
	s.Commit(next, 1)
	assert.Equal(t, 4, s.CachedLength())
	assert.Equal(t, 4, s.Entry(1).Len())

	assert.Panics(t, func() { s.Commit(next[:1], 1) })
	assert.Panics(t, func() { s.Commit(next, 1) }, "Laenge passt nicht zur gecachten Laenge")
	assert.Equal(t, 4, s.CachedLength())
}
