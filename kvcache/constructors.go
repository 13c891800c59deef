// Package kvcache - Key/Value-Cache fuer die autoregressive Generierung
//
// Dieses Paket enthaelt:
// - Entry: Keys und Values eines Layers ueber alle bisherigen Positionen
// - State: Eintraege aller Layer plus Anzahl gecachter Positionen
// - CausalMask: Additive Maske fuer Vorwaerts-Paesse mit mehr als einem Token
//
// Ein State gehoert genau einer Generierung. Er darf nicht zwischen
// Goroutinen geteilt werden.
package kvcache

// State haelt den Cache einer Generierung. Eintraege werden nie an Ort und
// Stelle veraendert: jeder Vorwaerts-Pass erzeugt neue Eintraege und
// uebergibt sie gesammelt per Commit.
type State struct {
	entries      []Entry
	cachedLength int
}

// NewState erzeugt einen leeren Cache mit einem Eintrag pro Layer
func NewState(numLayers int) *State {
	return &State{entries: make([]Entry, numLayers)}
}

// NumLayers gibt die Anzahl der Layer-Eintraege zurueck
func (s *State) NumLayers() int {
	return len(s.entries)
}

// Entry gibt den Eintrag eines Layers zurueck
func (s *State) Entry(layer int) Entry {
	return s.entries[layer]
}

// CachedLength gibt die Anzahl bereits verarbeiteter Positionen zurueck
func (s *State) CachedLength() int {
	return s.cachedLength
}
