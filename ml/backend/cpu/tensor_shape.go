// tensor_shape.go - Form-Operationen
// Enthält: Reshape, Permute, Concat, Rows, Slice, Chunk

package cpu

import (
	"fmt"
	"slices"

	"github.com/ollama/gpt2/ml"
)

// Reshape gibt eine neue Sicht mit gleicher Elementanzahl zurück; eine
// Dimension darf -1 sein und wird dann abgeleitet
func (t *Tensor) Reshape(ctx ml.Context, shape ...int) ml.Tensor {
	shape = slices.Clone(shape)
	infer, known := -1, 1
	for i, d := range shape {
		switch {
		case d == -1 && infer < 0:
			infer = i
		case d < 0:
			panic(&ml.OpError{Op: fmt.Sprintf("reshape%v", shape), Shapes: [][]int{t.shape}, Err: ml.ErrShapeMismatch})
		default:
			known *= d
		}
	}

	size := t.size()
	if infer >= 0 && known > 0 {
		shape[infer] = size / known
	}

	if shapeSize(shape) != size {
		panic(&ml.OpError{Op: fmt.Sprintf("reshape%v", shape), Shapes: [][]int{t.shape}, Err: ml.ErrShapeMismatch})
	}

	return &Tensor{b: t.b, dtype: t.dtype, shape: shape, f32: t.f32, i32: t.i32}
}

// Permute ordnet die Achsen um: Ausgabeachse i ist Eingabeachse order[i]
func (t *Tensor) Permute(ctx ml.Context, order ...int) ml.Tensor {
	if len(order) != len(t.shape) {
		panic(&ml.OpError{Op: fmt.Sprintf("permute%v", order), Shapes: [][]int{t.shape}, Err: ml.ErrShapeMismatch})
	}

	seen := make([]bool, len(order))
	shape := make([]int, len(order))
	in := strides(t.shape)
	st := make([]int, len(order))
	for i, o := range order {
		if o < 0 || o >= len(order) || seen[o] {
			panic(&ml.OpError{Op: fmt.Sprintf("permute%v", order), Shapes: [][]int{t.shape}, Err: ml.ErrShapeMismatch})
		}
		seen[o] = true
		shape[i] = t.shape[o]
		st[i] = in[o]
	}

	if t.dtype.IsInteger() {
		return newInts(t.b, t.dtype, gather(t.i32, shape, st), shape)
	}
	return newFloats(t.b, t.dtype, gather(t.f32, shape, st), shape)
}

// gather kopiert src in Ausgabereihenfolge, wobei st die Quell-Strides je Ausgabeachse sind
func gather[E any](src []E, shape, st []int) []E {
	out := make([]E, shapeSize(shape))
	idx := make([]int, len(shape))
	var j int
	for i := range out {
		out[i] = src[j]
		for d := len(shape) - 1; d >= 0; d-- {
			idx[d]++
			j += st[d]
			if idx[d] < shape[d] {
				break
			}
			j -= st[d] * shape[d]
			idx[d] = 0
		}
	}
	return out
}

// Concat verbindet t und t2 entlang dim; alle anderen Achsen müssen übereinstimmen
func (t *Tensor) Concat(ctx ml.Context, other ml.Tensor, dim int) ml.Tensor {
	t2 := cast("concat", other)[0]
	if dim < 0 {
		dim += len(t.shape)
	}

	if len(t.shape) != len(t2.shape) || dim < 0 || dim >= len(t.shape) || t.dtype.IsInteger() != t2.dtype.IsInteger() {
		panic(ml.ShapeMismatch(fmt.Sprintf("concat(dim=%d)", dim), t, t2))
	}
	for i := range t.shape {
		if i != dim && t.shape[i] != t2.shape[i] {
			panic(ml.ShapeMismatch(fmt.Sprintf("concat(dim=%d)", dim), t, t2))
		}
	}

	shape := t.Shape()
	shape[dim] += t2.shape[dim]

	inner := shapeSize(t.shape[dim+1:])
	outer := shapeSize(t.shape[:dim])
	if t.dtype.IsInteger() {
		return newInts(t.b, t.dtype, concat(t.i32, t2.i32, outer, t.shape[dim]*inner, t2.shape[dim]*inner), shape)
	}
	return newFloats(t.b, t.dtype, concat(t.f32, t2.f32, outer, t.shape[dim]*inner, t2.shape[dim]*inner), shape)
}

func concat[E any](a, b []E, outer, na, nb int) []E {
	out := make([]E, 0, outer*(na+nb))
	for i := range outer {
		out = append(out, a[i*na:(i+1)*na]...)
		out = append(out, b[i*nb:(i+1)*nb]...)
	}
	return out
}

// Rows sammelt Zeilen von t [V, D] anhand der Ganzzahl-Indizes in t2
func (t *Tensor) Rows(ctx ml.Context, other ml.Tensor) ml.Tensor {
	ids := cast("rows", other)[0]
	if !ids.dtype.IsInteger() {
		panic(ml.InvalidInputDtype("rows", t, ids))
	}
	if len(t.shape) != 2 {
		panic(ml.ShapeMismatch("rows", t, ids))
	}

	v, d := t.shape[0], t.shape[1]
	src := t.floats("rows")
	out := make([]float32, 0, len(ids.i32)*d)
	for _, id := range ids.i32 {
		if id < 0 || int(id) >= v {
			panic(ml.ShapeMismatch(fmt.Sprintf("rows(id=%d)", id), t, ids))
		}
		out = append(out, src[int(id)*d:(int(id)+1)*d]...)
	}

	return newFloats(t.b, t.dtype, out, append(ids.Shape(), d))
}

// Slice schneidet [low, high) mit Schrittweite step entlang dim aus
func (t *Tensor) Slice(ctx ml.Context, dim, low, high, step int) ml.Tensor {
	if dim < 0 {
		dim += len(t.shape)
	}

	if dim < 0 || dim >= len(t.shape) || low < 0 || high > t.shape[dim] || low > high || step < 1 {
		panic(&ml.OpError{Op: fmt.Sprintf("slice(dim=%d, %d:%d:%d)", dim, low, high, step), Shapes: [][]int{t.shape}, Err: ml.ErrShapeMismatch})
	}

	shape := t.Shape()
	shape[dim] = (high - low + step - 1) / step

	st := strides(t.shape)
	sliced := slices.Clone(st)
	sliced[dim] *= step
	offset := low * st[dim]

	if t.dtype.IsInteger() {
		return newInts(t.b, t.dtype, gather(t.i32[offset:], shape, sliced), shape)
	}
	return newFloats(t.b, t.dtype, gather(t.f32[offset:], shape, sliced), shape)
}

// Chunk teilt t entlang dim in Stücke der Größe size; das letzte darf kleiner sein
func (t *Tensor) Chunk(ctx ml.Context, dim int, size int) []ml.Tensor {
	if dim < 0 {
		dim += len(t.shape)
	}
	if size < 1 || dim < 0 || dim >= len(t.shape) {
		panic(&ml.OpError{Op: fmt.Sprintf("chunk(dim=%d, size=%d)", dim, size), Shapes: [][]int{t.shape}, Err: ml.ErrShapeMismatch})
	}

	var chunks []ml.Tensor
	for low := 0; low < t.shape[dim]; low += size {
		chunks = append(chunks, t.Slice(ctx, dim, low, min(low+size, t.shape[dim]), 1))
	}
	return chunks
}
