// tensor.go - Tensor-Struktur und Basis-Methoden
// Enthält: Tensor struct, Shape, Bytes, Floats, Ints, DType, Cast, Duplicate

package cpu

import (
	"encoding/binary"
	"log/slog"
	"math"
	"slices"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"

	"github.com/ollama/gpt2/ml"
)

// Tensor ist ein zusammenhängend gespeicherter Tensor in numpy-Reihenfolge.
// Gleitkommatypen liegen als float32 vor (F16/BF16 auf ihre Genauigkeit
// gerundet), Ganzzahltypen als int32.
type Tensor struct {
	b     *Backend
	dtype ml.DType
	shape []int

	f32 []float32
	i32 []int32
}

func newFloats(b *Backend, dtype ml.DType, data []float32, shape []int) *Tensor {
	return &Tensor{b: b, dtype: dtype, shape: slices.Clone(shape), f32: data}
}

func newInts(b *Backend, dtype ml.DType, data []int32, shape []int) *Tensor {
	return &Tensor{b: b, dtype: dtype, shape: slices.Clone(shape), i32: data}
}

// LogValue gibt den Tensor als slog-Wert zurück
func (t *Tensor) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("type", t.dtype.String()),
		slog.Any("shape", t.shape),
	)
}

// Dim gibt die Größe einer Dimension zurück; negative Werte zählen von hinten
func (t *Tensor) Dim(n int) int {
	if n < 0 {
		n += len(t.shape)
	}
	return t.shape[n]
}

// Shape gibt die Form des Tensors zurück
func (t *Tensor) Shape() []int {
	return slices.Clone(t.shape)
}

func (t *Tensor) DType() ml.DType {
	return t.dtype
}

func (t *Tensor) size() int {
	n := 1
	for _, d := range t.shape {
		n *= d
	}
	return n
}

// Bytes gibt die Tensor-Daten little-endian im eigenen Typ zurück
func (t *Tensor) Bytes() []byte {
	switch t.dtype {
	case ml.DTypeF16:
		data := make([]byte, 2*len(t.f32))
		for i, f := range t.f32 {
			binary.LittleEndian.PutUint16(data[2*i:], float16.Fromfloat32(f).Bits())
		}
		return data
	case ml.DTypeBF16:
		return bfloat16.EncodeFloat32(t.f32)
	case ml.DTypeI32:
		data := make([]byte, 4*len(t.i32))
		for i, v := range t.i32 {
			binary.LittleEndian.PutUint32(data[4*i:], uint32(v))
		}
		return data
	case ml.DTypeI64:
		data := make([]byte, 8*len(t.i32))
		for i, v := range t.i32 {
			binary.LittleEndian.PutUint64(data[8*i:], uint64(int64(v)))
		}
		return data
	default:
		data := make([]byte, 4*len(t.f32))
		for i, f := range t.f32 {
			binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(f))
		}
		return data
	}
}

// Floats gibt eine Kopie der Daten als float32 zurück
func (t *Tensor) Floats() []float32 {
	if t.dtype.IsInteger() {
		f32s := make([]float32, len(t.i32))
		for i, v := range t.i32 {
			f32s[i] = float32(v)
		}
		return f32s
	}
	return slices.Clone(t.f32)
}

// Ints gibt eine Kopie der Daten als int32 zurück
func (t *Tensor) Ints() []int32 {
	if !t.dtype.IsInteger() {
		i32s := make([]int32, len(t.f32))
		for i, f := range t.f32 {
			i32s[i] = int32(f)
		}
		return i32s
	}
	return slices.Clone(t.i32)
}

// Cast wandelt den Tensor in einen anderen Elementtyp um
func (t *Tensor) Cast(ctx ml.Context, dtype ml.DType) ml.Tensor {
	if dtype == t.dtype {
		return t
	}

	switch dtype {
	case ml.DTypeF32:
		return newFloats(t.b, dtype, t.Floats(), t.shape)
	case ml.DTypeF16:
		f32s := t.Floats()
		for i, f := range f32s {
			f32s[i] = float16.Fromfloat32(f).Float32()
		}
		return newFloats(t.b, dtype, f32s, t.shape)
	case ml.DTypeBF16:
		return newFloats(t.b, dtype, bfloat16.DecodeFloat32(bfloat16.EncodeFloat32(t.Floats())), t.shape)
	case ml.DTypeI32, ml.DTypeI64:
		return newInts(t.b, dtype, t.Ints(), t.shape)
	default:
		panic(&ml.OpError{Op: "cast", Shapes: [][]int{t.shape}, DTypes: []ml.DType{t.dtype, dtype}, Err: ml.ErrInvalidInputDtype})
	}
}

// Duplicate erzeugt eine unabhängige Kopie
func (t *Tensor) Duplicate(ctx ml.Context) ml.Tensor {
	return &Tensor{b: t.b, dtype: t.dtype, shape: slices.Clone(t.shape), f32: slices.Clone(t.f32), i32: slices.Clone(t.i32)}
}

// Contiguous gibt t zurück; CPU-Tensoren sind immer zusammenhängend
func (t *Tensor) Contiguous(ctx ml.Context) ml.Tensor {
	return t
}

// floats prüft, dass t ein Gleitkommatensor ist
func (t *Tensor) floats(op string) []float32 {
	if t.dtype.IsInteger() {
		panic(ml.InvalidInputDtype(op, t))
	}
	return t.f32
}

func cast(op string, ts ...ml.Tensor) []*Tensor {
	out := make([]*Tensor, len(ts))
	for i, t := range ts {
		ct, ok := t.(*Tensor)
		if !ok {
			panic(&ml.OpError{Op: op + ": foreign tensor", Err: ml.ErrInvalidInputDtype})
		}
		out[i] = ct
	}
	return out
}
