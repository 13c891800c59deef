// Package kvcache - Vorwaerts-Pass: Maske und Commit
//
// Dieses Modul enthaelt:
// - CausalMask: Baut die additive Kausalmaske
// - Commit: Uebernimmt die Eintraege eines vollstaendigen Passes
package kvcache

import (
	"fmt"
	"math"

	"github.com/ollama/gpt2/ml"
)

// CausalMask baut die additive Maske [n, cachedLength+n] fuer n neue
// Positionen hinter cachedLength gecachten. Query i (absolute Position
// cachedLength+i) sieht nur Keys j <= cachedLength+i. Fuer n == 1 ist jede
// Position erlaubt und es wird nil zurueckgegeben.
func CausalMask(ctx ml.Context, cachedLength, n int) ml.Tensor {
	if n <= 1 {
		return nil
	}

	length := cachedLength + n
	mask := make([]float32, n*length)
	for i := range n {
		for j := cachedLength + i + 1; j < length; j++ {
			mask[i*length+j] = float32(math.Inf(-1))
		}
	}

	return ctx.Input().FromFloats(mask, n, length)
}

// Commit ersetzt alle Layer-Eintraege und erhoeht die gecachte Laenge um n.
// Es wird erst nach einem vollstaendig erfolgreichen Pass aufgerufen, damit
// Cache und Laenge immer zusammenpassen.
func (s *State) Commit(entries []Entry, n int) {
	if len(entries) != len(s.entries) {
		panic(fmt.Sprintf("kvcache: commit of %d entries into state with %d layers", len(entries), len(s.entries)))
	}

	for i, e := range entries {
		if e.Len() != s.cachedLength+n {
			panic(fmt.Sprintf("kvcache: layer %d holds %d positions, want %d", i, e.Len(), s.cachedLength+n))
		}
	}

	s.entries = entries
	s.cachedLength += n
}
