// Package kvcache - Tensor-Operationen eines Layer-Eintrags
//
// Dieses Modul enthaelt:
// - Entry: Keys/Values mit Form [B, T, H, K]
// - Extend: Haengt neue Keys/Values entlang der Sequenzachse an
package kvcache

import "github.com/ollama/gpt2/ml"

// Entry speichert Keys und Values eines Layers mit Form [B, T, H, K].
// Der Nullwert ist ein leerer Eintrag.
type Entry struct {
	Keys, Values ml.Tensor
}

// Empty meldet, ob noch keine Position gecacht ist
func (e Entry) Empty() bool {
	return e.Keys == nil
}

// Len gibt die Anzahl gecachter Positionen T zurueck
func (e Entry) Len() int {
	if e.Empty() {
		return 0
	}

	return e.Keys.Dim(1)
}

// Extend gibt einen neuen Eintrag zurueck, der key und value [B, L, H, K]
// hinter den bisherigen Inhalt haengt. Ein leerer Eintrag uebernimmt
// key und value direkt. e selbst bleibt unveraendert.
func (e Entry) Extend(ctx ml.Context, key, value ml.Tensor) Entry {
	if e.Empty() {
		return Entry{Keys: key, Values: value}
	}

	return Entry{
		Keys:   e.Keys.Concat(ctx, key, 1),
		Values: e.Values.Concat(ctx, value, 1),
	}
}
