// Package torch - Lesen von PyTorch-Checkpoints (pytorch_model.bin)
//
// Dieses Modul enthaelt:
// - ReadFile: laedt ein state_dict ueber gopickle
// - Umwandlung der Storages in fs.TensorData (F32, F16, BF16)
//
// Nicht zusammenhaengende Tensoren werden ueber ihre Strides eingesammelt.
package torch

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/d4l3k/go-bfloat16"
	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"
	"github.com/x448/float16"

	"github.com/ollama/gpt2/fs"
)

var ErrUnsupportedStorage = errors.New("unsupported torch storage")

// ReadFile laedt ein PyTorch state_dict als Archiv
func ReadFile(path string) (*fs.Archive, error) {
	pt, err := pytorch.Load(path)
	if err != nil {
		return nil, err
	}

	dict, ok := pt.(*types.Dict)
	if !ok {
		return nil, fmt.Errorf("%s: expected state dict, got %T", path, pt)
	}

	a, err := fromDict(dict)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	slog.Debug("torch", "path", path, "tensors", a.Len())
	return a, nil
}

func fromDict(dict *types.Dict) (*fs.Archive, error) {
	a := fs.NewArchive()
	for _, k := range dict.Keys() {
		name, ok := k.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected key %v (%T)", k, k)
		}

		t, ok := dict.MustGet(k).(*pytorch.Tensor)
		if !ok {
			// z.B. _metadata oder Versionseintraege
			slog.Debug("torch: skipping non-tensor entry", "name", name)
			continue
		}

		td, err := tensorData(name, t)
		if err != nil {
			return nil, err
		}

		a.Set(td)
	}

	return a, nil
}

func tensorData(name string, t *pytorch.Tensor) (*fs.TensorData, error) {
	td := &fs.TensorData{Name: name, Shape: append([]int{}, t.Size...)}

	switch s := t.Source.(type) {
	case *pytorch.FloatStorage:
		vs, err := gather(s.Data, t)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		td.DType = "F32"
		td.Data = make([]byte, 4*len(vs))
		for i, v := range vs {
			binary.LittleEndian.PutUint32(td.Data[4*i:], math.Float32bits(v))
		}
	case *pytorch.HalfStorage:
		vs, err := gather(s.Data, t)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		td.DType = "F16"
		td.Data = make([]byte, 2*len(vs))
		for i, v := range vs {
			binary.LittleEndian.PutUint16(td.Data[2*i:], float16.Fromfloat32(v).Bits())
		}
	case *pytorch.BFloat16Storage:
		vs, err := gather(s.Data, t)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		td.DType = "BF16"
		td.Data = bfloat16.EncodeFloat32(vs)
	default:
		return nil, fmt.Errorf("%w: %s has %T", ErrUnsupportedStorage, name, t.Source)
	}

	return td, td.Validate()
}

// gather kopiert die Elemente von t aus der Storage in Zeilenreihenfolge
func gather[T any](data []T, t *pytorch.Tensor) ([]T, error) {
	n := 1
	for _, d := range t.Size {
		n *= d
	}

	if len(t.Stride) != len(t.Size) {
		return nil, fmt.Errorf("%w: stride %v does not match size %v", fs.ErrCorrupt, t.Stride, t.Size)
	}

	out := make([]T, n)
	index := make([]int, len(t.Size))
	for i := range out {
		off := t.StorageOffset
		for d, j := range index {
			off += j * t.Stride[d]
		}

		if off < 0 || off >= len(data) {
			return nil, fmt.Errorf("%w: offset %d outside storage of %d", fs.ErrCorrupt, off, len(data))
		}
		out[i] = data[off]

		for d := len(index) - 1; d >= 0; d-- {
			index[d]++
			if index[d] < t.Size[d] {
				break
			}
			index[d] = 0
		}
	}

	return out, nil
}
