package convert

import (
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/gpt2/convert/converttest"
	"github.com/ollama/gpt2/fs"
	"github.com/ollama/gpt2/fs/safetensors"
	"github.com/ollama/gpt2/ml"
	_ "github.com/ollama/gpt2/ml/backend"
	"github.com/ollama/gpt2/ml/nn"
	"github.com/ollama/gpt2/model"
)

func setup(t *testing.T) ml.Context {
	t.Helper()
	b, err := ml.NewBackend(ml.BackendParams{})
	require.NoError(t, err)
	return b.NewContext()
}

func TestStructuredName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"wte.weight", "wte.weight"},
		{"transformer.wpe.weight", "wpe.weight"},
		{"h.0.ln_1.weight", "h.0.ln1.weight"},
		{"h.11.ln_2.bias", "h.11.ln2.bias"},
		{"h.3.attn.c_attn.weight", "h.3.attn.cAttn.weight"},
		{"h.3.attn.c_proj.bias", "h.3.attn.oProj.bias"},
		{"h.3.mlp.c_fc.weight", "h.3.mlp.cFc.weight"},
		{"h.3.mlp.c_proj.weight", "h.3.mlp.cProj.weight"},
		{"transformer.ln_f.bias", "lnF.bias"},
	}

	for _, tt := range cases {
		t.Run(tt.in, func(t *testing.T) {
			if got := structuredName(tt.in); got != tt.want {
				t.Errorf("structuredName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRemap(t *testing.T) {
	ctx := setup(t)
	p := converttest.Small
	a := converttest.Archive(1, p)

	weights, err := Remap(ctx, a)
	require.NoError(t, err)

	t.Run("masken uebersprungen", func(t *testing.T) {
		for name := range weights {
			assert.NotContains(t, name, "masked")
			assert.NotEqual(t, "h.0.attn.bias", name)
		}
	})

	t.Run("weight tying", func(t *testing.T) {
		assert.Same(t, weights["wte.weight"], weights["lmHead.weight"])
		if diff := cmp.Diff(weights["wte.weight"].Floats(), weights["lmHead.weight"].Floats()); diff != "" {
			t.Errorf("lmHead weicht von wte ab (-wte +lmHead):\n%s", diff)
		}
	})

	t.Run("formen", func(t *testing.T) {
		d := p.EmbeddingLength
		shapes := map[string][]int{
			"h.0.attn.qProj.weight": {d, d},
			"h.0.attn.kProj.weight": {d, d},
			"h.0.attn.vProj.weight": {d, d},
			"h.0.attn.qProj.bias":   {d},
			"h.0.attn.oProj.weight": {d, d},
			"h.1.mlp.cFc.weight":    {4 * d, d},
			"h.1.mlp.cProj.weight":  {d, 4 * d},
			"lnF.weight":            {d},
		}

		for name, shape := range shapes {
			require.Contains(t, weights, name)
			assert.Equal(t, shape, weights[name].Shape(), name)
		}
	})

	t.Run("conv1d transponiert", func(t *testing.T) {
		src, ok := a.Get("h.1.mlp.c_fc.weight")
		require.True(t, ok)

		in, out := src.Shape[0], src.Shape[1]
		want := floats(src.Data)
		got := weights["h.1.mlp.cFc.weight"].Floats()
		for i := range out {
			for j := range in {
				if got[i*in+j] != want[j*out+i] {
					t.Fatalf("cFc[%d, %d] = %v, want %v", i, j, got[i*in+j], want[j*out+i])
				}
			}
		}
	})
}

// Die getrennten Projektionen muessen dasselbe liefern wie die fusionierte
// Projektion x · W + b, in drei Teile der Breite D geschnitten.
func TestSplitFusedEquivalence(t *testing.T) {
	ctx := setup(t)
	p := converttest.Small
	d := p.EmbeddingLength
	a := converttest.Archive(7, p)

	weights, err := Remap(ctx, a)
	require.NoError(t, err)

	x := make([]float32, d)
	for i := range x {
		x[i] = float32(i+1) / float32(d)
	}

	w, _ := a.Get("h.0.attn.c_attn.weight")
	b, _ := a.Get("h.0.attn.c_attn.bias")
	fw, fb := floats(w.Data), floats(b.Data)

	fused := make([]float32, 3*d)
	for j := range 3 * d {
		sum := fb[j]
		for i := range d {
			sum += x[i] * fw[i*3*d+j]
		}
		fused[j] = sum
	}

	input := ctx.FromFloats(x, 1, 1, d)
	for i, proj := range []string{"qProj", "kProj", "vProj"} {
		linear := nn.Linear{
			Weight: weights["h.0.attn."+proj+".weight"],
			Bias:   weights["h.0.attn."+proj+".bias"],
		}

		got := linear.Forward(ctx, input).Floats()
		if diff := cmp.Diff(fused[i*d:(i+1)*d], got, cmpopts.EquateApprox(0, 1e-5)); diff != "" {
			t.Errorf("%s mismatch (-fused +split):\n%s", proj, diff)
		}
	}
}

func TestRemapErrors(t *testing.T) {
	ctx := setup(t)

	cases := []struct {
		name   string
		modify func(a *fs.Archive) *fs.Archive
		err    error
	}{
		{
			name: "f16 gewicht",
			modify: func(a *fs.Archive) *fs.Archive {
				a.Set(&fs.TensorData{Name: "ln_f.bias", DType: "F16", Shape: []int{8}, Data: make([]byte, 16)})
				return a
			},
			err: ErrUnsupportedDtype,
		},
		{
			name: "ohne wte",
			modify: func(a *fs.Archive) *fs.Archive {
				b := fs.NewArchive()
				for _, td := range a.Tensors() {
					if td.Name != "wte.weight" {
						b.Set(td)
					}
				}
				return b
			},
			err: model.ErrMissingWeight,
		},
		{
			name: "unbekannter name",
			modify: func(a *fs.Archive) *fs.Archive {
				a.Set(&fs.TensorData{Name: "h.0.attn.rotary.weight", DType: "F32", Shape: []int{1}, Data: make([]byte, 4)})
				return a
			},
			err: model.ErrUnmappedWeight,
		},
		{
			name: "fusion nicht teilbar",
			modify: func(a *fs.Archive) *fs.Archive {
				a.Set(&fs.TensorData{Name: "h.0.attn.c_attn.bias", DType: "F32", Shape: []int{4}, Data: make([]byte, 16)})
				return a
			},
			err: ml.ErrShapeMismatch,
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Remap(ctx, tt.modify(converttest.Archive(1, converttest.Small)))
			require.ErrorIs(t, err, tt.err)
		})
	}
}

func TestRemapIgnoresStoredHead(t *testing.T) {
	ctx := setup(t)
	a := converttest.Archive(1, converttest.Small)
	a.Set(&fs.TensorData{Name: "lm_head.weight", DType: "F16", Shape: []int{1}, Data: make([]byte, 2)})

	weights, err := Remap(ctx, a)
	require.NoError(t, err)
	assert.Same(t, weights["wte.weight"], weights["lmHead.weight"])
}

func TestLoadModelParameters(t *testing.T) {
	cases := []struct {
		name  string
		fsys  fstest.MapFS
		heads uint32
		eps   float32
		err   error
	}{
		{"ohne config", fstest.MapFS{}, 12, 1e-5, nil},
		{
			name:  "gpt2-medium",
			fsys:  fstest.MapFS{"config.json": {Data: []byte(`{"architectures":["GPT2LMHeadModel"],"model_type":"gpt2","n_head":16,"n_layer":24,"n_embd":1024,"layer_norm_epsilon":1e-6}`)}},
			heads: 16,
			eps:   1e-6,
		},
		{
			name: "andere architektur",
			fsys: fstest.MapFS{"config.json": {Data: []byte(`{"architectures":["LlamaForCausalLM"]}`)}},
			err:  model.ErrUnsupportedModel,
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			kv, err := LoadModelParameters(tt.fsys)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "gpt2", kv.Architecture())
			assert.Equal(t, tt.heads, kv.Uint("attention.head_count"))
			assert.Equal(t, tt.eps, kv.Float("attention.layer_norm_epsilon"))
			assert.Equal(t, uint32(1024), kv.Uint("context_length"))
		})
	}
}

func TestConvertFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.safetensors")
	out := filepath.Join(dir, "out.safetensors")

	a := fs.NewArchive()
	// 1.0 und 2.0 als F16
	a.Set(&fs.TensorData{Name: "ln_f.weight", DType: "F16", Shape: []int{2}, Data: []byte{0, 0x3c, 0, 0x40}})
	require.NoError(t, safetensors.WriteFile(in, a))

	require.NoError(t, ConvertFile(in, out))

	b, err := LoadArchive(out)
	require.NoError(t, err)

	td, ok := b.Get("ln_f.weight")
	require.True(t, ok)
	assert.Equal(t, "F32", td.DType)
	if diff := cmp.Diff([]float32{1, 2}, floats(td.Data)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	_, err = LoadArchive(filepath.Join(dir, "model.gguf"))
	require.Error(t, err)
}
