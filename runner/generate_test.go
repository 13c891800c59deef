package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/gpt2/convert"
	"github.com/ollama/gpt2/convert/converttest"
	"github.com/ollama/gpt2/kvcache"
	"github.com/ollama/gpt2/ml"
	_ "github.com/ollama/gpt2/ml/backend"
	"github.com/ollama/gpt2/model"
	_ "github.com/ollama/gpt2/model/models"
	"github.com/ollama/gpt2/model/models/gpt2"
	"github.com/ollama/gpt2/sample"
)

func setup(t *testing.T) (ml.Context, model.Model) {
	t.Helper()
	b, err := ml.NewBackend(ml.BackendParams{})
	require.NoError(t, err)
	ctx := b.NewContext()

	p := converttest.Small
	weights, err := convert.Remap(ctx, converttest.Archive(5, p))
	require.NoError(t, err)

	kv := convert.ModelParameters{
		NumHeads:        2,
		NumLayers:       uint32(p.NumLayers),
		EmbeddingLength: uint32(p.EmbeddingLength),
		ContextLength:   uint32(p.ContextLength),
	}.KV()

	m, err := model.New(kv, weights)
	require.NoError(t, err)
	return ctx, m
}

var prompt = []int32{2, 5, 1, 7, 10, 4}

func TestGenerate(t *testing.T) {
	ctx, m := setup(t)

	cases := []struct {
		name         string
		maxNewTokens int
	}{
		{"ohne neue tokens", 0},
		{"ein token", 1},
		{"fuenf tokens", 5},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			var steps []Step
			res, err := Generate(t.Context(), ctx, m, ctx.FromInts(prompt, 1, len(prompt)), GenerationConfig{MaxNewTokens: tt.maxNewTokens}, func(s Step) error {
				steps = append(steps, s)
				return nil
			})
			require.NoError(t, err)

			got := res.OutputIDs.Ints()
			assert.Equal(t, []int{1, len(prompt) + tt.maxNewTokens}, res.OutputIDs.Shape())
			if diff := cmp.Diff(prompt, got[:len(prompt)]); diff != "" {
				t.Errorf("eingabe veraendert (-want +got):\n%s", diff)
			}

			require.Len(t, steps, tt.maxNewTokens)
			for i, s := range steps {
				assert.Equal(t, i, s.Index)
				assert.Equal(t, []int32{got[len(prompt)+i]}, s.Tokens)
			}

			assert.Equal(t, len(prompt), res.PromptTokens)
			assert.Equal(t, tt.maxNewTokens, res.GeneratedTokens)
		})
	}
}

// Jeder erzeugte Token muss dem Argmax eines vollstaendigen Prefills ueber
// die bis dahin erzeugte Sequenz entsprechen.
func TestGenerateMatchesPrefill(t *testing.T) {
	ctx, m := setup(t)

	res, err := Generate(t.Context(), ctx, m, ctx.FromInts(prompt, 1, len(prompt)), GenerationConfig{MaxNewTokens: 6}, nil)
	require.NoError(t, err)
	got := res.OutputIDs.Ints()

	for i := len(prompt); i < len(got); i++ {
		logits, err := model.Forward(ctx, m, ctx.FromInts(got[:i], 1, i), kvcache.NewState(m.Config().NumLayers), model.Options{})
		require.NoError(t, err)

		last := logits.Slice(ctx, 1, i-1, i, 1).Reshape(ctx, 1, logits.Dim(2))
		assert.Equal(t, sample.Greedy(ctx, last)[0], got[i], "position %d", i)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	ctx, m := setup(t)
	input := ctx.FromInts(append(append([]int32{}, prompt...), 3, 3, 8, 0, 9, 1), 2, len(prompt))

	a, err := Generate(t.Context(), ctx, m, input, GenerationConfig{MaxNewTokens: 4}, nil)
	require.NoError(t, err)

	b, err := Generate(t.Context(), ctx, m, input, GenerationConfig{MaxNewTokens: 4}, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{2, len(prompt) + 4}, a.OutputIDs.Shape())
	if diff := cmp.Diff(a.OutputIDs.Ints(), b.OutputIDs.Ints()); diff != "" {
		t.Errorf("mismatch (-first +second):\n%s", diff)
	}
}

func TestGenerateErrors(t *testing.T) {
	ctx, m := setup(t)
	errStop := errors.New("stop")

	cases := []struct {
		name  string
		input []int32
		cfg   GenerationConfig
		fn    func(context.CancelFunc) func(Step) error
		err   error
	}{
		{
			name: "heads teilen breite nicht",
			cfg:  GenerationConfig{NumHeads: 3, MaxNewTokens: 2},
			err:  gpt2.ErrInvalidConfig,
		},
		{
			name: "negative tokens",
			cfg:  GenerationConfig{MaxNewTokens: -1},
			err:  ErrInvalidInput,
		},
		{
			name:  "kontext zu lang",
			input: []int32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 1, 2, 3, 4},
			cfg:   GenerationConfig{MaxNewTokens: 5},
			err:   gpt2.ErrContextLength,
		},
		{
			name: "abbruch",
			cfg:  GenerationConfig{MaxNewTokens: 5},
			fn: func(cancel context.CancelFunc) func(Step) error {
				return func(s Step) error {
					if s.Index == 1 {
						cancel()
					}
					return nil
				}
			},
			err: context.Canceled,
		},
		{
			name: "callback fehler",
			cfg:  GenerationConfig{MaxNewTokens: 5},
			fn: func(context.CancelFunc) func(Step) error {
				return func(Step) error { return errStop }
			},
			err: errStop,
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			c, cancel := context.WithCancel(t.Context())
			defer cancel()

			var fn func(Step) error
			if tt.fn != nil {
				fn = tt.fn(cancel)
			}

			input := tt.input
			if input == nil {
				input = prompt
			}

			_, err := Generate(c, ctx, m, ctx.FromInts(input, 1, len(input)), tt.cfg, fn)
			require.ErrorIs(t, err, tt.err)
		})
	}
}

func TestTopK(t *testing.T) {
	ctx, m := setup(t)
	input := ctx.FromInts(prompt, 1, len(prompt))

	top, err := TopK(ctx, m, input, 0, 3)
	require.NoError(t, err)
	require.Len(t, top, 1)
	require.Len(t, top[0], 3)

	for i := 1; i < len(top[0]); i++ {
		assert.GreaterOrEqual(t, top[0][i-1].Probability, top[0][i].Probability)
	}

	res, err := Generate(t.Context(), ctx, m, input, GenerationConfig{MaxNewTokens: 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, res.OutputIDs.Ints()[len(prompt)], top[0][0].Token, "greedy waehlt den wahrscheinlichsten Token")

	_, err = TopK(ctx, m, input, 0, 0)
	require.ErrorIs(t, err, ErrInvalidInput)
}
