package torch

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/gpt2/fs"
)

func TestGather(t *testing.T) {
	data := []float32{0, 1, 2, 3, 4, 5, 6}

	cases := []struct {
		name   string
		tensor *pytorch.Tensor
		want   []float32
	}{
		{
			name:   "zusammenhaengend",
			tensor: &pytorch.Tensor{Size: []int{2, 3}, Stride: []int{3, 1}},
			want:   []float32{0, 1, 2, 3, 4, 5},
		},
		{
			name:   "mit offset",
			tensor: &pytorch.Tensor{StorageOffset: 1, Size: []int{3}, Stride: []int{1}},
			want:   []float32{1, 2, 3},
		},
		{
			name:   "transponiert",
			tensor: &pytorch.Tensor{Size: []int{3, 2}, Stride: []int{1, 3}},
			want:   []float32{0, 3, 1, 4, 2, 5},
		},
		{
			name:   "skalar",
			tensor: &pytorch.Tensor{StorageOffset: 6, Size: []int{}, Stride: []int{}},
			want:   []float32{6},
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got, err := gather(data, tt.tensor)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}

	_, err := gather(data, &pytorch.Tensor{StorageOffset: 5, Size: []int{3}, Stride: []int{1}})
	require.ErrorIs(t, err, fs.ErrCorrupt)
}

func TestFromDict(t *testing.T) {
	dict := types.NewDict()
	dict.Set("wte.weight", &pytorch.Tensor{
		Source: &pytorch.FloatStorage{Data: []float32{1, 2, 3, 4}},
		Size:   []int{2, 2},
		Stride: []int{2, 1},
	})
	dict.Set("lnF.bias", &pytorch.Tensor{
		Source: &pytorch.HalfStorage{Data: []float32{1, 2}},
		Size:   []int{2},
		Stride: []int{1},
	})
	dict.Set("_version", 1)

	a, err := fromDict(dict)
	require.NoError(t, err)
	require.Equal(t, 2, a.Len())

	lnf, ok := a.Get("lnF.bias")
	require.True(t, ok)
	assert.Equal(t, "F16", lnf.DType)
	assert.Equal(t, []byte{0, 0x3c, 0, 0x40}, lnf.Data)

	require.NoError(t, a.Upcast())
	wte, _ := a.Get("wte.weight")
	assert.Equal(t, "F32", wte.DType)
	assert.Len(t, wte.Data, 16)
}

func TestUnsupportedStorage(t *testing.T) {
	dict := types.NewDict()
	dict.Set("ids", &pytorch.Tensor{
		Source: &pytorch.LongStorage{Data: []int64{1}},
		Size:   []int{1},
		Stride: []int{1},
	})

	_, err := fromDict(dict)
	require.ErrorIs(t, err, ErrUnsupportedStorage)
}
