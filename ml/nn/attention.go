// attention.go - Scaled-Dot-Product-Attention
package nn

import "github.com/ollama/gpt2/ml"

// Attention implements scaled dot-product attention for transformer models:
// Attention(Q, K, V) = softmax(QK^T/√d_k + mask)V
//
// Parameters:
//   - ctx: Context for tensor operations
//   - query: Query tensor (Q) with shape [batch, seq_len_q, heads, head_dim]
//   - key: Key tensor (K) with shape [batch, seq_len_k, heads, head_dim]
//   - value: Value tensor (V) with shape [batch, seq_len_k, heads, head_dim]
//   - mask: Optional additive mask with shape [seq_len_q, seq_len_k]
//   - scale: Scaling factor, typically 1/√d_k where d_k is head_dim
//
// Returns:
//
//	Attention output with shape [batch, seq_len_q, heads, head_dim]
//
// Backends implementing ml.ScaledDotProductAttention run the fused kernel;
// all others compose the result from primitive operations.
func Attention(ctx ml.Context, query, key, value, mask ml.Tensor, scale float64) ml.Tensor {
	if query.Dim(-1) != key.Dim(-1) {
		panic(ml.ShapeMismatch("attention(head_dim)", query, key))
	}

	if sdpa, ok := query.(ml.ScaledDotProductAttention); ok {
		return sdpa.ScaledDotProductAttention(ctx, key, value, mask, scale)
	}

	return attention(ctx, query, key, value, mask, scale)
}

func attention(ctx ml.Context, query, key, value, mask ml.Tensor, scale float64) ml.Tensor {
	query = query.Permute(ctx, 0, 2, 1, 3)
	key = key.Permute(ctx, 0, 2, 1, 3)
	value = value.Permute(ctx, 0, 2, 3, 1).Contiguous(ctx)

	kq := key.Mulmat(ctx, query)
	kq = kq.Scale(ctx, scale)
	if mask != nil {
		kq = kq.Add(ctx, mask)
	}
	kq = kq.Softmax(ctx)

	kqv := value.Mulmat(ctx, kq)
	return kqv.Permute(ctx, 0, 2, 1, 3).Contiguous(ctx)
}
