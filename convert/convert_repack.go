// convert_repack.go - Umordnen von Gewichten auf dem Host
// Hauptfunktionen: transpose, splitRows, splitVector
//
// Die Daten liegen als []float32 in Zeilenreihenfolge vor; Transposition
// und Aufteilung laufen ueber pdevine/tensor.
package convert

import (
	"github.com/pdevine/tensor"
	"github.com/pdevine/tensor/native"
)

// transpose wandelt eine [rows, cols] Matrix in [cols, rows] um
func transpose(data []float32, rows, cols int) ([]float32, error) {
	var tt tensor.Tensor = tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(data))

	tt, err := tensor.Transpose(tt, 1, 0)
	if err != nil {
		return nil, err
	}
	tt = tensor.Materialize(tt)

	return flatten(tt)
}

// splitRows teilt eine [rows, cols] Matrix entlang der ersten Achse in n
// gleich grosse Bloecke
func splitRows(data []float32, rows, cols, n int) ([][]float32, error) {
	tt := tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(data))

	size := rows / n
	parts := make([][]float32, n)
	for i := range n {
		part, err := tt.Slice(tensor.S(i*size, (i+1)*size), nil)
		if err != nil {
			return nil, err
		}

		parts[i], err = flatten(tensor.Materialize(part))
		if err != nil {
			return nil, err
		}
	}

	return parts, nil
}

// splitVector teilt einen Vektor in n gleich grosse Teile
func splitVector(data []float32, n int) ([][]float32, error) {
	tt := tensor.New(tensor.WithShape(len(data)), tensor.WithBacking(data))

	size := len(data) / n
	parts := make([][]float32, n)
	for i := range n {
		part, err := tt.Slice(tensor.S(i*size, (i+1)*size))
		if err != nil {
			return nil, err
		}

		parts[i], err = flatten(tensor.Materialize(part))
		if err != nil {
			return nil, err
		}
	}

	return parts, nil
}

func flatten(tt tensor.Tensor) ([]float32, error) {
	if err := tt.Reshape(tt.Shape().TotalSize()); err != nil {
		return nil, err
	}

	return native.VectorF32(tt.(*tensor.Dense))
}
