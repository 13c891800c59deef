// tensor_arithmetic.go - Elementweise Operationen und Reduktionen
// Enthält: Add, Sub, Mul, Div, Scale, Sqr, Sqrt, Tanh, Mean, Variance

package cpu

import (
	"github.com/chewxy/math32"

	"github.com/ollama/gpt2/ml"
)

func (t *Tensor) Add(ctx ml.Context, t2 ml.Tensor) ml.Tensor {
	return t.binary("add", t2, func(a, b float32) float32 { return a + b })
}

func (t *Tensor) Sub(ctx ml.Context, t2 ml.Tensor) ml.Tensor {
	return t.binary("sub", t2, func(a, b float32) float32 { return a - b })
}

func (t *Tensor) Mul(ctx ml.Context, t2 ml.Tensor) ml.Tensor {
	return t.binary("mul", t2, func(a, b float32) float32 { return a * b })
}

func (t *Tensor) Div(ctx ml.Context, t2 ml.Tensor) ml.Tensor {
	return t.binary("div", t2, func(a, b float32) float32 { return a / b })
}

// binary wendet fn elementweise mit numpy-Broadcasting an
func (t *Tensor) binary(op string, other ml.Tensor, fn func(a, b float32) float32) ml.Tensor {
	t2 := cast(op, other)[0]
	a, b := t.floats(op), t2.floats(op)

	shape, ok := broadcastShape(t.shape, t2.shape)
	if !ok {
		panic(ml.ShapeMismatch(op, t, t2))
	}

	out := make([]float32, shapeSize(shape))
	switch {
	case len(a) == len(out) && len(b) == len(out):
		for i := range out {
			out[i] = fn(a[i], b[i])
		}
	case len(a) == len(out) && len(b) == 1:
		for i := range out {
			out[i] = fn(a[i], b[0])
		}
	default:
		sa := broadcastStrides(t.shape, shape)
		sb := broadcastStrides(t2.shape, shape)
		idx := make([]int, len(shape))
		var ia, ib int
		for i := range out {
			out[i] = fn(a[ia], b[ib])
			for d := len(shape) - 1; d >= 0; d-- {
				idx[d]++
				ia += sa[d]
				ib += sb[d]
				if idx[d] < shape[d] {
					break
				}
				ia -= sa[d] * shape[d]
				ib -= sb[d] * shape[d]
				idx[d] = 0
			}
		}
	}

	return newFloats(t.b, t.dtype, out, shape)
}

func (t *Tensor) unary(op string, fn func(float32) float32) ml.Tensor {
	a := t.floats(op)
	out := make([]float32, len(a))
	for i, v := range a {
		out[i] = fn(v)
	}
	return newFloats(t.b, t.dtype, out, t.shape)
}

func (t *Tensor) Scale(ctx ml.Context, s float64) ml.Tensor {
	f := float32(s)
	return t.unary("scale", func(v float32) float32 { return v * f })
}

func (t *Tensor) Sqr(ctx ml.Context) ml.Tensor {
	return t.unary("sqr", func(v float32) float32 { return v * v })
}

func (t *Tensor) Sqrt(ctx ml.Context) ml.Tensor {
	return t.unary("sqrt", math32.Sqrt)
}

func (t *Tensor) Tanh(ctx ml.Context) ml.Tensor {
	return t.unary("tanh", math32.Tanh)
}

// Mean mittelt über die letzte Achse, die mit Größe 1 erhalten bleibt
func (t *Tensor) Mean(ctx ml.Context) ml.Tensor {
	return t.reduce("mean", func(row []float32) float32 {
		mean, _ := moments(row)
		return float32(mean)
	})
}

// Variance berechnet die Populationsvarianz über die letzte Achse
func (t *Tensor) Variance(ctx ml.Context) ml.Tensor {
	return t.reduce("variance", func(row []float32) float32 {
		_, variance := moments(row)
		return float32(variance)
	})
}

func (t *Tensor) reduce(op string, fn func([]float32) float32) ml.Tensor {
	a := t.floats(op)
	if len(t.shape) == 0 || t.shape[len(t.shape)-1] == 0 {
		panic(ml.ShapeMismatch(op, t))
	}

	n := t.shape[len(t.shape)-1]
	out := make([]float32, len(a)/n)
	for i := range out {
		out[i] = fn(a[i*n : (i+1)*n])
	}

	shape := append(t.Shape()[:len(t.shape)-1], 1)
	return newFloats(t.b, t.dtype, out, shape)
}

// moments summiert in float64, damit Mittelwert und Varianz stabil bleiben
func moments(row []float32) (mean, variance float64) {
	for _, v := range row {
		mean += float64(v)
	}
	mean /= float64(len(row))

	for _, v := range row {
		d := float64(v) - mean
		variance += d * d
	}
	variance /= float64(len(row))
	return mean, variance
}
