// tensor_nn.go - Neuronale-Netz-Operationen
// Enthält: Softmax, GELU, TopK, Argmax, ScaledDotProductAttention

package cpu

import (
	"fmt"
	"math"
	"slices"

	"github.com/chewxy/math32"
	"github.com/emirpasic/gods/v2/trees/binaryheap"

	"github.com/ollama/gpt2/ml"
)

// Softmax normalisiert über die letzte Achse
func (t *Tensor) Softmax(ctx ml.Context) ml.Tensor {
	a := t.floats("softmax")
	if len(t.shape) == 0 {
		panic(ml.ShapeMismatch("softmax", t))
	}

	n := t.shape[len(t.shape)-1]
	out := make([]float32, len(a))
	if n == 0 {
		return newFloats(t.b, t.dtype, out, t.shape)
	}

	for r := 0; r < len(a); r += n {
		softmax(a[r:r+n], out[r:r+n])
	}
	return newFloats(t.b, t.dtype, out, t.shape)
}

func softmax(row, out []float32) {
	maxv := math32.Inf(-1)
	for _, v := range row {
		maxv = max(maxv, v)
	}

	// vollständig maskierte Zeile
	if math32.IsInf(maxv, -1) {
		clear(out)
		return
	}

	var sum float32
	for i, v := range row {
		out[i] = math32.Exp(v - maxv)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
}

// GELU verwendet die tanh-Näherung
func (t *Tensor) GELU(ctx ml.Context) ml.Tensor {
	return t.unary("gelu", gelu)
}

var sqrt2OverPi = float32(math.Sqrt(2 / math.Pi))

func gelu(x float32) float32 {
	return 0.5 * x * (1 + math32.Tanh(sqrt2OverPi*(x+0.044715*x*x*x)))
}

type candidate struct {
	value float32
	index int32
}

// worse ordnet Kandidaten so, dass der schlechteste oben im Heap liegt;
// bei Gleichstand verliert der höhere Index
func worse(a, b candidate) int {
	switch {
	case a.value < b.value:
		return -1
	case a.value > b.value:
		return 1
	case a.index > b.index:
		return -1
	case a.index < b.index:
		return 1
	default:
		return 0
	}
}

// TopK gibt die Indizes der k größten Werte der letzten Achse absteigend zurück
func (t *Tensor) TopK(ctx ml.Context, k int) ml.Tensor {
	a := t.floats("topk")
	if len(t.shape) == 0 || k < 1 || k > t.shape[len(t.shape)-1] {
		panic(ml.ShapeMismatch(fmt.Sprintf("topk(k=%d)", k), t))
	}

	n := t.shape[len(t.shape)-1]
	rows := len(a) / n
	out := make([]int32, rows*k)
	t.b.parallel(rows, func(r int) {
		h := binaryheap.NewWith[candidate](worse)
		for i, v := range a[r*n : (r+1)*n] {
			c := candidate{value: v, index: int32(i)}
			if h.Size() < k {
				h.Push(c)
			} else if top, _ := h.Peek(); worse(top, c) < 0 {
				h.Pop()
				h.Push(c)
			}
		}

		for i := k - 1; i >= 0; i-- {
			c, _ := h.Pop()
			out[r*k+i] = c.index
		}
	})

	shape := t.Shape()
	shape[len(shape)-1] = k
	return newInts(t.b, ml.DTypeI32, out, shape)
}

// Argmax gibt den Index des größten Werts der letzten Achse zurück
func (t *Tensor) Argmax(ctx ml.Context) ml.Tensor {
	a := t.floats("argmax")
	if len(t.shape) == 0 || t.shape[len(t.shape)-1] == 0 {
		panic(ml.ShapeMismatch("argmax", t))
	}

	n := t.shape[len(t.shape)-1]
	out := make([]int32, len(a)/n)
	for r := range out {
		row := a[r*n : (r+1)*n]
		best := 0
		for i, v := range row {
			if v > row[best] {
				best = i
			}
		}
		out[r] = int32(best)
	}

	return newInts(t.b, ml.DTypeI32, out, t.shape[:len(t.shape)-1])
}

// ScaledDotProductAttention berechnet Attention für query [B, L, H, K] gegen
// key und value [B, T, H, K]. mask ist additiv und hat die Form [L, T]
// (führende Achsen der Größe 1 sind erlaubt). Batch und Heads laufen parallel.
func (t *Tensor) ScaledDotProductAttention(ctx ml.Context, key, value, mask ml.Tensor, scale float64) ml.Tensor {
	kv := cast("sdpa", key, value)
	k, v := kv[0], kv[1]
	q := t.floats("sdpa")
	kd, vd := k.floats("sdpa"), v.floats("sdpa")

	if len(t.shape) != 4 || len(k.shape) != 4 || !slices.Equal(k.shape, v.shape) ||
		t.shape[0] != k.shape[0] || t.shape[2] != k.shape[2] || t.shape[3] != k.shape[3] {
		panic(ml.ShapeMismatch("sdpa", t, k, v))
	}

	b, l, h, d := t.shape[0], t.shape[1], t.shape[2], t.shape[3]
	n := k.shape[1]

	var md []float32
	if mask != nil {
		m := cast("sdpa", mask)[0]
		md = m.floats("sdpa")
		if len(m.shape) < 2 || m.shape[len(m.shape)-2] != l || m.shape[len(m.shape)-1] != n || len(md) != l*n {
			panic(ml.ShapeMismatch("sdpa(mask)", t, k, m))
		}
	}

	s := float32(scale)
	out := make([]float32, len(q))
	t.b.parallel(b*h, func(i int) {
		bi, hi := i/h, i%h
		scores := make([]float32, n)
		probs := make([]float32, n)
		for li := range l {
			qrow := q[((bi*l+li)*h+hi)*d:][:d]
			for ni := range n {
				krow := kd[((bi*n+ni)*h+hi)*d:][:d]
				var dot float32
				for di := range d {
					dot += qrow[di] * krow[di]
				}
				scores[ni] = dot * s
				if md != nil {
					scores[ni] += md[li*n+ni]
				}
			}

			softmax(scores, probs)

			orow := out[((bi*l+li)*h+hi)*d:][:d]
			for ni, p := range probs {
				if p == 0 {
					continue
				}
				vrow := vd[((bi*n+ni)*h+hi)*d:][:d]
				for di := range d {
					orow[di] += p * vrow[di]
				}
			}
		}
	})

	return newFloats(t.b, t.dtype, out, t.shape)
}
