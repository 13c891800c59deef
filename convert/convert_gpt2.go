// convert_gpt2.go - Umbenennung und Umordnung der GPT-2 Gewichte
// Hauptfunktionen: Remap, structuredName
//
// Archiv-Namen (Hugging Face Layout, Conv1D-Gewichte als [in, out])
// werden auf die Feldnamen der Modellstruktur abgebildet:
//
//	h.0.attn.c_attn.weight [D, 3D] -> h.0.attn.{qProj,kProj,vProj}.weight [D, D]
//	h.0.attn.c_proj.weight [D, D]  -> h.0.attn.oProj.weight (transponiert)
//	h.0.mlp.c_fc.weight [D, 4D]    -> h.0.mlp.cFc.weight [4D, D]
//	ln_f.bias                      -> lnF.bias
//
// lmHead.weight ist immer derselbe Tensor wie wte.weight.
package convert

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"

	"github.com/ollama/gpt2/fs"
	"github.com/ollama/gpt2/logutil"
	"github.com/ollama/gpt2/ml"
	"github.com/ollama/gpt2/model"
)

var ErrUnsupportedDtype = errors.New("unsupported dtype")

// replacer uebersetzt die Archiv-Konvention vor der camelCase-Umwandlung
var replacer = strings.NewReplacer(
	"transformer.", "",
	".ln_1.", ".ln1.",
	".ln_2.", ".ln2.",
	".attn.c_proj.", ".attn.o_proj.",
)

var (
	// maskPattern erkennt die vorberechneten Kausalmasken je Layer
	maskPattern = regexp.MustCompile(`^(transformer\.)?h\.\d+\.attn\.(masked_)?bias$`)

	// knownPattern beschreibt alle Namen, die die Modellstruktur aufnimmt
	knownPattern = regexp.MustCompile(`^((wte|wpe)\.weight|lnF\.(weight|bias)|h\.\d+\.(ln1|ln2|attn\.(cAttn|oProj)|mlp\.(cFc|cProj))\.(weight|bias))$`)

	fusedPattern = regexp.MustCompile(`^(h\.\d+\.attn)\.cAttn\.(weight|bias)$`)
)

// transposeSuffixes sind Conv1D-Gewichte, die als [in, out] gespeichert sind
var transposeSuffixes = []string{
	".attn.oProj.weight",
	".mlp.cFc.weight",
	".mlp.cProj.weight",
}

// structuredName uebersetzt einen Archiv-Namen in einen Feldpfad:
// Ersetzungstabelle, dann camelCase je Punkt-Segment
func structuredName(name string) string {
	segments := strings.Split(replacer.Replace(name), ".")
	for i, s := range segments {
		segments[i] = camelCase(s)
	}

	return strings.Join(segments, ".")
}

func camelCase(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == '-' })
	if len(parts) == 0 {
		return s
	}

	var sb strings.Builder
	sb.WriteString(parts[0])
	for _, p := range parts[1:] {
		sb.WriteString(strings.ToUpper(p[:1]) + p[1:])
	}

	return sb.String()
}

// Remap wandelt die Archiv-Tensoren in die Namens-Tabelle der
// Modellstruktur um. Alle Gewichte muessen F32 sein.
func Remap(ctx ml.Context, a *fs.Archive) (map[string]ml.Tensor, error) {
	weights := make(map[string]ml.Tensor, a.Len()+1)
	for _, t := range a.Tensors() {
		if maskPattern.MatchString(t.Name) {
			logutil.Trace("skipping mask buffer", "name", t.Name)
			continue
		}

		if strings.TrimPrefix(t.Name, "transformer.") == "lm_head.weight" {
			slog.Debug("ignoring stored lm_head, tied to wte", "name", t.Name)
			continue
		}

		if t.DType != "F32" {
			return nil, fmt.Errorf("%w: %s has %s, want F32", ErrUnsupportedDtype, t.Name, t.DType)
		}

		if err := t.Validate(); err != nil {
			return nil, err
		}

		name := structuredName(t.Name)
		if !knownPattern.MatchString(name) {
			return nil, fmt.Errorf("%w: %s (as %s)", model.ErrUnmappedWeight, t.Name, name)
		}

		data := floats(t.Data)
		if m := fusedPattern.FindStringSubmatch(name); m != nil {
			parts, shape, err := splitFused(t, data)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", t.Name, err)
			}

			for i, proj := range []string{"qProj", "kProj", "vProj"} {
				weights[m[1]+"."+proj+"."+m[2]] = ctx.FromFloats(parts[i], shape...)
			}

			logutil.Trace("split fused projection", "name", t.Name, "shape", shape)
			continue
		}

		shape := t.Shape
		for _, suffix := range transposeSuffixes {
			if strings.HasSuffix(name, suffix) {
				if len(t.Shape) != 2 {
					return nil, fmt.Errorf("%w: %s has shape %v, want 2 dimensions", ml.ErrShapeMismatch, t.Name, t.Shape)
				}

				var err error
				data, err = transpose(data, t.Shape[0], t.Shape[1])
				if err != nil {
					return nil, fmt.Errorf("%s: %w", t.Name, err)
				}

				shape = []int{t.Shape[1], t.Shape[0]}
				break
			}
		}

		weights[name] = ctx.FromFloats(data, shape...)
	}

	wte, ok := weights["wte.weight"]
	if !ok {
		return nil, fmt.Errorf("%w: wte.weight", model.ErrMissingWeight)
	}
	weights["lmHead.weight"] = wte

	slog.Debug("remapped weights", "archive", a.Len(), "model", len(weights))
	return weights, nil
}

// splitFused teilt die fusionierte Q/K/V-Projektion. Das Gewicht [in, 3·out]
// wird zu [3·out, in] transponiert und in drei [out, in] Bloecke geteilt,
// der Bias [3·out] direkt in drei [out] Teile.
func splitFused(t *fs.TensorData, data []float32) ([][]float32, []int, error) {
	switch len(t.Shape) {
	case 1:
		if t.Shape[0]%3 != 0 {
			return nil, nil, fmt.Errorf("%w: fused bias %v not divisible by 3", ml.ErrShapeMismatch, t.Shape)
		}

		parts, err := splitVector(data, 3)
		return parts, []int{t.Shape[0] / 3}, err
	case 2:
		in, out := t.Shape[0], t.Shape[1]
		if out%3 != 0 {
			return nil, nil, fmt.Errorf("%w: fused weight %v not divisible by 3", ml.ErrShapeMismatch, t.Shape)
		}

		transposed, err := transpose(data, in, out)
		if err != nil {
			return nil, nil, err
		}

		parts, err := splitRows(transposed, out, in, 3)
		return parts, []int{out / 3, in}, err
	default:
		return nil, nil, fmt.Errorf("%w: fused projection has shape %v", ml.ErrShapeMismatch, t.Shape)
	}
}

// floats interpretiert little-endian F32 Rohdaten
func floats(b []byte) []float32 {
	f32s := make([]float32, len(b)/4)
	for i := range f32s {
		f32s[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return f32s
}
