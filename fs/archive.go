// Package fs - Gewichtsarchiv und Modellkonfiguration
//
// Dieses Paket enthaelt:
// - TensorData: Name, Datentyp, Form und Rohdaten eines Archiv-Tensors
// - Archive: Tensoren in Dateireihenfolge
// - Config: Lesezugriff auf Hyperparameter
//
// Die Formate selbst liegen in fs/safetensors und fs/torch.
package fs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/d4l3k/go-bfloat16"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"github.com/x448/float16"
	"golang.org/x/sync/errgroup"
)

// ErrCorrupt wird zurueckgegeben, wenn Rohdaten nicht zu Typ und Form passen
var ErrCorrupt = errors.New("corrupt tensor data")

// TensorData beschreibt einen Tensor im Archiv. DType ist der Bezeichner
// des Formats ("F32", "F16", "BF16", "I64", ...). Data ist little-endian.
type TensorData struct {
	Name  string
	DType string
	Shape []int
	Data  []byte
}

// NumElements gibt die Anzahl der Elemente zurueck
func (t *TensorData) NumElements() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// dtypeSize gibt die Elementgroesse eines Archiv-Datentyps zurueck; 0 = unbekannt
func dtypeSize(dtype string) int {
	switch dtype {
	case "F64", "I64", "U64":
		return 8
	case "F32", "I32", "U32":
		return 4
	case "F16", "BF16", "I16", "U16":
		return 2
	case "I8", "U8", "BOOL":
		return 1
	default:
		return 0
	}
}

// Validate prueft, dass die Rohdaten zu Typ und Form passen
func (t *TensorData) Validate() error {
	for _, d := range t.Shape {
		if d < 0 {
			return fmt.Errorf("%w: %s has negative dimension in %v", ErrCorrupt, t.Name, t.Shape)
		}
	}

	if size := dtypeSize(t.DType); size > 0 && len(t.Data) != size*t.NumElements() {
		return fmt.Errorf("%w: %s %s%v has %d bytes, want %d", ErrCorrupt, t.Name, t.DType, t.Shape, len(t.Data), size*t.NumElements())
	}

	return nil
}

// Archive haelt die Tensoren eines Gewichtsarchivs in Dateireihenfolge
type Archive struct {
	Metadata map[string]string

	tensors *orderedmap.OrderedMap[string, *TensorData]
}

// NewArchive erzeugt ein leeres Archiv
func NewArchive() *Archive {
	return &Archive{
		Metadata: make(map[string]string),
		tensors:  orderedmap.New[string, *TensorData](),
	}
}

// Set fuegt einen Tensor hinzu oder ersetzt ihn an gleicher Position
func (a *Archive) Set(t *TensorData) {
	a.tensors.Set(t.Name, t)
}

// Get gibt den Tensor mit dem Namen zurueck
func (a *Archive) Get(name string) (*TensorData, bool) {
	return a.tensors.Get(name)
}

// Len gibt die Anzahl der Tensoren zurueck
func (a *Archive) Len() int {
	return a.tensors.Len()
}

// Tensors gibt alle Tensoren in Dateireihenfolge zurueck
func (a *Archive) Tensors() []*TensorData {
	ts := make([]*TensorData, 0, a.tensors.Len())
	for pair := a.tensors.Oldest(); pair != nil; pair = pair.Next() {
		ts = append(ts, pair.Value)
	}
	return ts
}

// Upcast wandelt alle F16- und BF16-Tensoren in F32 um
func (a *Archive) Upcast() error {
	var g errgroup.Group
	for _, t := range a.Tensors() {
		if t.DType != "F16" && t.DType != "BF16" {
			continue
		}

		g.Go(func() error {
			if err := t.Validate(); err != nil {
				return err
			}

			var f32s []float32
			switch t.DType {
			case "F16":
				f32s = make([]float32, t.NumElements())
				for i := range f32s {
					f32s[i] = float16.Frombits(binary.LittleEndian.Uint16(t.Data[2*i:])).Float32()
				}
			case "BF16":
				f32s = bfloat16.DecodeFloat32(t.Data)
			}

			data := make([]byte, 4*len(f32s))
			for i, f := range f32s {
				binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(f))
			}

			// jede Goroutine ersetzt nur ihren eigenen Tensor
			t.DType, t.Data = "F32", data
			return nil
		})
	}

	return g.Wait()
}
