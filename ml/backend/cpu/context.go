// context.go - Rechenkontext und Tensor-Konstruktoren
// Enthält: Context struct, Empty, Zeros, FromBytes, FromFloats, FromInts, Arange

package cpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"

	"github.com/ollama/gpt2/ml"
)

// Context ist ein eager ausgeführter Rechenkontext
type Context struct {
	b *Backend
}

func (c *Context) Forward(...ml.Tensor) ml.Context { return c }

func (c *Context) Compute(...ml.Tensor) {}

func (c *Context) Close() {}

func (c *Context) Input() ml.Context { return c }

func (c *Context) Layer(int) ml.Context { return c }

// Empty erzeugt einen mit Nullen initialisierten Tensor
func (c *Context) Empty(dtype ml.DType, shape ...int) ml.Tensor {
	return c.Zeros(dtype, shape...)
}

// Zeros erzeugt einen mit Nullen gefüllten Tensor
func (c *Context) Zeros(dtype ml.DType, shape ...int) ml.Tensor {
	n := checkShape("zeros", shape)
	if dtype.IsInteger() {
		return newInts(c.b, dtype, make([]int32, n), shape)
	}
	return newFloats(c.b, dtype, make([]float32, n), shape)
}

// FromFloats erzeugt einen F32-Tensor aus s; len(s) muss zur Form passen
func (c *Context) FromFloats(s []float32, shape ...int) ml.Tensor {
	if n := checkShape("fromfloats", shape); n != len(s) {
		panic(&ml.OpError{Op: fmt.Sprintf("fromfloats(len=%d)", len(s)), Shapes: [][]int{shape}, Err: ml.ErrShapeMismatch})
	}
	return newFloats(c.b, ml.DTypeF32, s, shape)
}

// FromInts erzeugt einen I32-Tensor aus s; len(s) muss zur Form passen
func (c *Context) FromInts(s []int32, shape ...int) ml.Tensor {
	if n := checkShape("fromints", shape); n != len(s) {
		panic(&ml.OpError{Op: fmt.Sprintf("fromints(len=%d)", len(s)), Shapes: [][]int{shape}, Err: ml.ErrShapeMismatch})
	}
	return newInts(c.b, ml.DTypeI32, s, shape)
}

// FromBytes dekodiert little-endian Rohdaten des angegebenen Typs
func (c *Context) FromBytes(dtype ml.DType, s []byte, shape ...int) ml.Tensor {
	n := checkShape("frombytes", shape)
	if dtype.Size() == 0 || len(s) != n*dtype.Size() {
		panic(&ml.OpError{
			Op:     fmt.Sprintf("frombytes(len=%d)", len(s)),
			Shapes: [][]int{shape},
			DTypes: []ml.DType{dtype},
			Err:    ml.ErrShapeMismatch,
		})
	}

	switch dtype {
	case ml.DTypeF32:
		f32s := make([]float32, n)
		for i := range f32s {
			f32s[i] = math.Float32frombits(binary.LittleEndian.Uint32(s[4*i:]))
		}
		return newFloats(c.b, dtype, f32s, shape)
	case ml.DTypeF16:
		f32s := make([]float32, n)
		for i := range f32s {
			f32s[i] = float16.Frombits(binary.LittleEndian.Uint16(s[2*i:])).Float32()
		}
		return newFloats(c.b, dtype, f32s, shape)
	case ml.DTypeBF16:
		return newFloats(c.b, dtype, bfloat16.DecodeFloat32(s), shape)
	case ml.DTypeI32:
		i32s := make([]int32, n)
		for i := range i32s {
			i32s[i] = int32(binary.LittleEndian.Uint32(s[4*i:]))
		}
		return newInts(c.b, dtype, i32s, shape)
	default:
		i32s := make([]int32, n)
		for i := range i32s {
			i32s[i] = int32(int64(binary.LittleEndian.Uint64(s[8*i:])))
		}
		return newInts(c.b, dtype, i32s, shape)
	}
}

// Arange erzeugt einen 1D-Tensor mit Werten in [start, stop) im Abstand step
func (c *Context) Arange(start, stop, step float32, dtype ml.DType) ml.Tensor {
	if step == 0 || (stop-start)/step < 0 {
		panic(&ml.OpError{Op: fmt.Sprintf("arange(%v, %v, %v)", start, stop, step), Err: ml.ErrShapeMismatch})
	}

	n := int(math.Ceil(float64((stop - start) / step)))
	if dtype.IsInteger() {
		i32s := make([]int32, n)
		for i := range i32s {
			i32s[i] = int32(start + float32(i)*step)
		}
		return newInts(c.b, dtype, i32s, []int{n})
	}

	f32s := make([]float32, n)
	for i := range f32s {
		f32s[i] = start + float32(i)*step
	}
	return newFloats(c.b, dtype, f32s, []int{n})
}

func checkShape(op string, shape []int) int {
	n := 1
	for _, d := range shape {
		if d < 0 {
			panic(&ml.OpError{Op: op, Shapes: [][]int{shape}, Err: ml.ErrShapeMismatch})
		}
		n *= d
	}
	return n
}
