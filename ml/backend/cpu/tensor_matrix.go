// tensor_matrix.go - Matrix-Operationen
// Enthält: Mulmat (gonum blas32 Gemm pro Batch-Matrix)

package cpu

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/ollama/gpt2/ml"
)

// Mulmat berechnet t2 · tᵀ für t [..., N, K] und t2 [..., M, K]
func (t *Tensor) Mulmat(ctx ml.Context, other ml.Tensor) ml.Tensor {
	t2 := cast("mulmat", other)[0]
	a, b := t.floats("mulmat"), t2.floats("mulmat")

	if len(t.shape) < 2 || len(t2.shape) < 1 || t.shape[len(t.shape)-1] != t2.shape[len(t2.shape)-1] {
		panic(ml.ShapeMismatch("mulmat", t, t2))
	}

	n, k := t.shape[len(t.shape)-2], t.shape[len(t.shape)-1]

	// Gewichtsmatrix ohne Batch-Achsen: alle führenden Achsen von t2 in M falten
	if len(t.shape) == 2 {
		m := shapeSize(t2.shape[:len(t2.shape)-1])
		out := make([]float32, m*n)
		gemm(m, n, k, b, a, out)

		shape := append(t2.Shape()[:len(t2.shape)-1], n)
		return newFloats(t.b, t2.dtype, out, shape)
	}

	if len(t2.shape) < 2 {
		panic(ml.ShapeMismatch("mulmat", t, t2))
	}

	m := t2.shape[len(t2.shape)-2]
	batch, ok := broadcastShape(t.shape[:len(t.shape)-2], t2.shape[:len(t2.shape)-2])
	if !ok {
		panic(ml.ShapeMismatch("mulmat", t, t2))
	}

	sa := broadcastStrides(t.shape[:len(t.shape)-2], batch)
	sb := broadcastStrides(t2.shape[:len(t2.shape)-2], batch)
	bs := strides(batch)

	out := make([]float32, shapeSize(batch)*m*n)
	t.b.parallel(shapeSize(batch), func(i int) {
		var ia, ib int
		rem := i
		for d := range batch {
			idx := rem / bs[d]
			rem %= bs[d]
			ia += idx * sa[d]
			ib += idx * sb[d]
		}

		gemm(m, n, k,
			b[ib*m*k:(ib+1)*m*k],
			a[ia*n*k:(ia+1)*n*k],
			out[i*m*n:(i+1)*m*n])
	})

	shape := append(batch, m, n)
	return newFloats(t.b, t2.dtype, out, shape)
}

// gemm berechnet c (m×n) = x (m×k) · wᵀ mit w (n×k)
func gemm(m, n, k int, x, w, c []float32) {
	if m == 0 || n == 0 || k == 0 {
		return
	}

	blas32.Gemm(blas.NoTrans, blas.Trans, 1,
		blas32.General{Rows: m, Cols: k, Stride: k, Data: x},
		blas32.General{Rows: n, Cols: k, Stride: k, Data: w},
		0,
		blas32.General{Rows: m, Cols: n, Stride: n, Data: c},
	)
}
