// context.go - Context und Tensor Interfaces fuer ML-Operationen
// Dieses Modul definiert die Schnittstellen fuer Tensor-Operationen und Compute-Kontexte.
//
// Shapes werden wie bei numpy von der aeussersten zur innersten Achse angegeben:
// ein Tensor [B, L, D] hat D als zusammenhaengende Achse.
package ml

// Context represents an execution context for tensor operations.
type Context interface {
	Empty(dtype DType, shape ...int) Tensor
	Zeros(dtype DType, shape ...int) Tensor
	FromBytes(dtype DType, s []byte, shape ...int) Tensor
	FromFloats(s []float32, shape ...int) Tensor
	FromInts(s []int32, shape ...int) Tensor

	// Arange creates a 1D tensor with values within an interval [start, stop) increased by step.
	Arange(start, stop, step float32, dtype DType) Tensor

	Forward(...Tensor) Context
	Compute(...Tensor)
	Close()

	// Input returns a context appropriate for creating tensors that are
	// inputs to the model (token ids, positions, masks)
	Input() Context

	// Layer returns a context appropriate for creating intermediate tensors
	Layer(int) Context
}

// Tensor represents an immutable multi-dimensional array. Operations never
// modify their receiver or arguments; they return new tensors which may
// share storage with their inputs.
//
// Operations given incompatible shapes or dtypes panic with an *OpError.
// Use Recover at API boundaries to turn these into errors.
type Tensor interface {
	Dim(n int) int
	Shape() []int
	DType() DType
	Cast(ctx Context, dtype DType) Tensor

	Bytes() []byte
	Floats() []float32
	Ints() []int32

	// Add, Sub, Mul and Div broadcast trailing dimensions like numpy.
	Add(ctx Context, t2 Tensor) Tensor
	Sub(ctx Context, t2 Tensor) Tensor
	Mul(ctx Context, t2 Tensor) Tensor
	Div(ctx Context, t2 Tensor) Tensor

	// Mulmat multiplies t [..., N, K] with t2 [..., M, K] and returns
	// [..., M, N], i.e. t2 · tᵀ. Leading dimensions broadcast.
	Mulmat(ctx Context, t2 Tensor) Tensor

	Softmax(ctx Context) Tensor
	Scale(ctx Context, s float64) Tensor

	// Mean and Variance reduce the trailing axis and keep it with size 1.
	// Variance is the population (biased) variance.
	Mean(ctx Context) Tensor
	Variance(ctx Context) Tensor
	Sqr(ctx Context) Tensor
	Sqrt(ctx Context) Tensor

	Tanh(ctx Context) Tensor
	// GELU uses the tanh approximation.
	GELU(ctx Context) Tensor

	Reshape(ctx Context, shape ...int) Tensor
	// Permute reorders axes: output axis i is input axis order[i].
	Permute(ctx Context, order ...int) Tensor
	Contiguous(ctx Context) Tensor

	Concat(ctx Context, t2 Tensor, dim int) Tensor
	// Rows gathers rows of t [V, D] by the integer ids in t2 and returns [ids..., D].
	Rows(ctx Context, t2 Tensor) Tensor
	Duplicate(ctx Context) Tensor

	Slice(ctx Context, dim, low, high, step int) Tensor
	Chunk(ctx Context, dim int, size int) []Tensor

	// TopK returns the indices of the k largest values along the trailing
	// axis in descending order of value.
	TopK(ctx Context, k int) Tensor
	// Argmax returns the index of the largest value along the trailing axis.
	// Ties resolve to the lowest index. The trailing axis is dropped.
	Argmax(ctx Context) Tensor
}

// ScaledDotProductAttention implements a fused attention
// operation equivalent to following code on a tensor named
// query, where query is [B, L, H, K] and key, value are [B, T, H, K]:
//
// query = query.Permute(ctx, 0, 2, 1, 3)
// key = key.Permute(ctx, 0, 2, 1, 3)
// value = value.Permute(ctx, 0, 2, 3, 1)
//
// kq := key.Mulmat(ctx, query)
//
// kq = kq.Scale(ctx, scale)
//
//	if mask != nil {
//		kq = kq.Add(ctx, mask)
//	}
//
// kq = kq.Softmax(ctx)
//
// kqv := value.Mulmat(ctx, kq)
// return kqv.Permute(ctx, 0, 2, 1, 3)
type ScaledDotProductAttention interface {
	ScaledDotProductAttention(ctx Context, key, value, mask Tensor, scale float64) Tensor
}
