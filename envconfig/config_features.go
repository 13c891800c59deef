// config_features.go - Laufzeit-Parameter fuer Inferenz und Server
//
// Dieses Modul enthaelt:
// - NumThreads: Obergrenze paralleler Tensor-Operationen (GPT2_NUM_THREADS)
// - NumParallel: Gleichzeitige Generierungen im Server (GPT2_NUM_PARALLEL)
// - MaxNewTokens: Standard-Anzahl neuer Tokens (GPT2_MAX_NEW_TOKENS)
// - NumHeads: Anzahl Attention-Heads, 0 = aus config.json (GPT2_NUM_HEADS)
package envconfig

import "runtime"

var (
	// NumParallel setzt die Anzahl gleichzeitig bearbeiteter Generierungen
	NumParallel = Uint("GPT2_NUM_PARALLEL", 1)
	// MaxNewTokens setzt die Anzahl zu generierender Tokens, wenn keine angegeben ist
	MaxNewTokens = Uint("GPT2_MAX_NEW_TOKENS", 20)
	// NumHeads ueberschreibt die Anzahl Attention-Heads des Modells
	NumHeads = Uint("GPT2_NUM_HEADS", 0)
	// NoStream deaktiviert Streaming-Antworten, wenn der Request nichts angibt
	NoStream = Bool("GPT2_NOSTREAM")
)

// NumThreads gibt die Obergrenze paralleler Tensor-Operationen zurueck
// Default: runtime.GOMAXPROCS(0)
func NumThreads() int {
	n := Uint("GPT2_NUM_THREADS", 0)()
	if n == 0 {
		return runtime.GOMAXPROCS(0)
	}

	return int(n)
}
