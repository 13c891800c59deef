// Package sample - Auswahl des naechsten Tokens aus Logits
//
// Dieses Paket enthaelt:
// - Greedy: Token mit der hoechsten Wahrscheinlichkeit je Zeile
// - TopK: Die k wahrscheinlichsten Tokens je Zeile
//
// Beide erwarten Logits der Form [B, vocab] und brechen bei falschen
// Formen mit einem *ml.OpError ab.
package sample

import "github.com/ollama/gpt2/ml"

// TokenProb ist ein Token mit seiner Wahrscheinlichkeit
type TokenProb struct {
	Token       int32   `json:"token"`
	Probability float32 `json:"probability"`
}

// Greedy waehlt je Zeile den Token mit der groessten Wahrscheinlichkeit.
// Bei Gleichstand gewinnt die kleinste Token-ID.
func Greedy(ctx ml.Context, logits ml.Tensor) []int32 {
	return logits.Softmax(ctx).Argmax(ctx).Ints()
}

// TopK gibt je Zeile die k wahrscheinlichsten Tokens absteigend zurueck.
// k wird auf die Vokabulargroesse begrenzt.
func TopK(ctx ml.Context, logits ml.Tensor, k int) [][]TokenProb {
	vocabSize := logits.Dim(-1)
	k = max(1, min(k, vocabSize))

	probs := logits.Softmax(ctx)
	indices := probs.TopK(ctx, k).Ints()
	values := probs.Floats()

	rows := make([][]TokenProb, len(values)/vocabSize)
	for i := range rows {
		rows[i] = make([]TokenProb, k)
		for j := range k {
			token := indices[i*k+j]
			rows[i][j] = TokenProb{Token: token, Probability: values[i*vocabSize+int(token)]}
		}
	}

	return rows
}
