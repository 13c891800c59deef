// Package converttest erzeugt kleine GPT-2 Archive mit Zufallsgewichten
// im Hugging Face Layout, damit Tests ohne Checkpoint auskommen.
package converttest

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/ollama/gpt2/fs"
)

// Params beschreibt die Groesse des erzeugten Modells
type Params struct {
	NumLayers       int
	EmbeddingLength int
	ContextLength   int
	VocabSize       int
}

// Small ist gross genug fuer mehrere Heads und kurze Sequenzen
var Small = Params{NumLayers: 2, EmbeddingLength: 8, ContextLength: 16, VocabSize: 11}

// Archive erzeugt ein deterministisches Archiv fuer seed. Es enthaelt die
// Maskenpuffer h.N.attn.bias und h.N.attn.masked_bias wie echte Checkpoints.
func Archive(seed uint64, p Params) *fs.Archive {
	r := rand.New(rand.NewPCG(seed, seed))
	d := p.EmbeddingLength

	a := fs.NewArchive()
	set := func(name string, base, scale float64, shape ...int) {
		n := 1
		for _, s := range shape {
			n *= s
		}

		data := make([]byte, 4*n)
		for i := range n {
			binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(float32(base+scale*r.NormFloat64())))
		}

		a.Set(&fs.TensorData{Name: name, DType: "F32", Shape: shape, Data: data})
	}

	set("wte.weight", 0, 0.5, p.VocabSize, d)
	set("wpe.weight", 0, 0.1, p.ContextLength, d)
	for i := range p.NumLayers {
		prefix := fmt.Sprintf("h.%d.", i)
		set(prefix+"ln_1.weight", 1, 0.1, d)
		set(prefix+"ln_1.bias", 0, 0.1, d)
		set(prefix+"attn.bias", 1, 0, 1, 1, p.ContextLength, p.ContextLength)
		set(prefix+"attn.masked_bias", -1e4, 0)
		set(prefix+"attn.c_attn.weight", 0, 0.3, d, 3*d)
		set(prefix+"attn.c_attn.bias", 0, 0.1, 3*d)
		set(prefix+"attn.c_proj.weight", 0, 0.3, d, d)
		set(prefix+"attn.c_proj.bias", 0, 0.1, d)
		set(prefix+"ln_2.weight", 1, 0.1, d)
		set(prefix+"ln_2.bias", 0, 0.1, d)
		set(prefix+"mlp.c_fc.weight", 0, 0.3, d, 4*d)
		set(prefix+"mlp.c_fc.bias", 0, 0.1, 4*d)
		set(prefix+"mlp.c_proj.weight", 0, 0.3, 4*d, d)
		set(prefix+"mlp.c_proj.bias", 0, 0.1, d)
	}
	set("ln_f.weight", 1, 0.1, d)
	set("ln_f.bias", 0, 0.1, d)

	return a
}
