// Package model - Reflection-basierte Befuellung der Parameterstrukturen
//
// Dieses Modul enthaelt die Reflection-Logik zum Befuellen von
// Modell-Strukturen mit Tensoren aus einer Namens-Tabelle.
//
// Hauptkomponenten:
// - Populate: Befuellt eine Struktur und prueft Vollstaendigkeit
// - populateFields: Befuellt Strukturfelder rekursiv mit Tensoren
// - setPointer: Setzt Pointer-Felder in Strukturen
// - Tag: weight-Tag mit Name, Alternativen und optional-Flag
package model

import (
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/ollama/gpt2/logutil"
	"github.com/ollama/gpt2/ml"
)

// Tag repraesentiert einen geparsten weight-Tag
type Tag struct {
	name         string
	alternatives []string
	optional     bool
}

// parseTag parst einen Tag der Form "name[,alt:other][,optional]"
func parseTag(s string) (tag Tag) {
	parts := strings.Split(s, ",")
	tag.name = parts[0]

	for _, part := range parts[1:] {
		if value, ok := strings.CutPrefix(part, "alt:"); ok {
			tag.alternatives = append(tag.alternatives, value)
		} else if part == "optional" {
			tag.optional = true
		}
	}

	return
}

// canNil prueft ob ein Typ nil sein kann
func canNil(t reflect.Type) bool {
	return t.Kind() == reflect.Interface ||
		t.Kind() == reflect.Map ||
		t.Kind() == reflect.Pointer ||
		t.Kind() == reflect.Slice
}

type populator struct {
	weights map[string]ml.Tensor
	used    map[string]bool
	missing []string
}

// Populate befuellt die Struktur hinter v mit den Tensoren aus weights.
// Feldnamen kommen aus den weight-Tags, verschachtelte Tags werden mit
// "." verbunden, Slice-Elemente erhalten ihren Index als Namensteil.
// Slices werden auf die groesste vorkommende Index + 1 angelegt.
//
// Fehlt ein nicht-optionaler Tensor, liefert Populate ErrMissingWeight;
// bleibt ein Eintrag aus weights ungenutzt, ErrUnmappedWeight.
func Populate(v any, weights map[string]ml.Tensor) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("model: populate needs a pointer to a struct, got %T", v)
	}

	p := populator{weights: weights, used: make(map[string]bool)}
	rv.Elem().Set(p.populateFields(rv.Elem()))

	if len(p.missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingWeight, strings.Join(p.missing, ", "))
	}

	var unused []string
	for name := range weights {
		if !p.used[name] {
			unused = append(unused, name)
		}
	}

	if len(unused) > 0 {
		slices.Sort(unused)
		return fmt.Errorf("%w: %s", ErrUnmappedWeight, strings.Join(unused, ", "))
	}

	return nil
}

// populateFields befuellt Strukturfelder rekursiv. Sind danach alle
// nil-faehigen Felder einer Struktur nil, wird ihr Nullwert zurueckgegeben.
func (p *populator) populateFields(v reflect.Value, tags ...Tag) reflect.Value {
	t := v.Type()

	if t.Kind() == reflect.Struct {
		allNil := true
		for i := range t.NumField() {
			tt := t.Field(i).Type
			vv := v.Field(i)
			if !vv.CanSet() {
				continue
			}

			tag, ok := t.Field(i).Tag.Lookup("weight")
			if !ok {
				// z.B. Optionen; gehoeren nicht zu den Gewichten
				continue
			}

			// Kopie erstellen
			tagsCopy := append(slices.Clone(tags), parseTag(tag))

			if tt == reflect.TypeOf((*ml.Tensor)(nil)).Elem() {
				p.setTensor(vv, tagsCopy)
			} else if tt.Kind() == reflect.Pointer {
				p.setPointer(vv, tagsCopy)
			} else if tt.Kind() == reflect.Slice {
				if vv.Len() == 0 {
					n := p.count(buildTensorNames(tagsCopy))
					vv.Set(reflect.MakeSlice(tt, n, n))
				}

				for i := range vv.Len() {
					vvv := vv.Index(i)
					index := append(slices.Clone(tagsCopy), Tag{name: strconv.Itoa(i)})
					if vvv.Kind() == reflect.Pointer {
						p.setPointer(vvv, index)
					} else {
						vvv.Set(p.populateFields(vvv, index...))
					}
				}
			} else if tt.Kind() == reflect.Struct {
				vv.Set(p.populateFields(vv, tagsCopy...))
			}

			if !canNil(tt) || !vv.IsNil() {
				allNil = false
			}
		}

		if allNil {
			return reflect.Zero(t)
		}
	}

	return v
}

// setTensor setzt den ersten vorhandenen Kandidaten-Namen
func (p *populator) setTensor(v reflect.Value, tags []Tag) {
	names := buildTensorNames(tags)
	for _, name := range names {
		if tensor, ok := p.weights[name]; ok {
			logutil.Trace("found tensor", "name", name, "shape", tensor.Shape())
			v.Set(reflect.ValueOf(tensor))
			p.used[name] = true
			return
		}
	}

	if !tags[len(tags)-1].optional {
		p.missing = append(p.missing, names[0])
	}
}

// count gibt die Anzahl der Elemente unter den Praefixen zurueck: den
// groessten Index i mit einem Eintrag "prefix.i.*" plus eins
func (p *populator) count(prefixes []string) int {
	n := 0
	for name := range p.weights {
		for _, prefix := range prefixes {
			rest, ok := strings.CutPrefix(name, prefix+".")
			if !ok {
				continue
			}

			index, _, _ := strings.Cut(rest, ".")
			if i, err := strconv.Atoi(index); err == nil && i >= 0 {
				n = max(n, i+1)
			}
		}
	}

	return n
}

// buildTensorNames baut alle Kandidaten-Namen aus den Tags; der erste
// Name besteht nur aus Primaernamen
func buildTensorNames(tags []Tag) []string {
	names := []string{""}
	for _, tag := range tags {
		var next []string
		for _, prefix := range names {
			for _, n := range append([]string{tag.name}, tag.alternatives...) {
				if prefix != "" {
					n = prefix + "." + n
				}
				next = append(next, n)
			}
		}
		names = next
	}

	return names
}

// setPointer setzt Pointer-Felder in Strukturen
func (p *populator) setPointer(v reflect.Value, tags []Tag) {
	vv := reflect.Indirect(v)
	if v.IsNil() {
		vv = reflect.New(v.Type().Elem()).Elem()
	}

	f := p.populateFields(vv, tags...)
	if f.IsZero() {
		v.Set(reflect.Zero(v.Type()))
	} else if f.CanAddr() {
		v.Set(f.Addr())
	}
}
