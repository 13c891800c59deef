// shape.go - Hilfsfunktionen fuer Formen, Strides und Broadcasting

package cpu

func shapeSize(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// strides gibt die Element-Strides einer zusammenhängenden Form zurück
func strides(shape []int) []int {
	s := make([]int, len(shape))
	n := 1
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = n
		n *= shape[i]
	}
	return s
}

// broadcastShape vereinigt zwei Formen nach numpy-Regeln
func broadcastShape(a, b []int) ([]int, bool) {
	if len(a) < len(b) {
		a, b = b, a
	}

	out := make([]int, len(a))
	copy(out, a)
	off := len(a) - len(b)
	for i, d := range b {
		switch {
		case out[off+i] == d:
		case out[off+i] == 1:
			out[off+i] = d
		case d == 1:
		default:
			return nil, false
		}
	}
	return out, true
}

// broadcastStrides richtet die Strides von shape an out aus; gebroadcastete
// Achsen erhalten Stride 0
func broadcastStrides(shape, out []int) []int {
	s := strides(shape)
	bs := make([]int, len(out))
	off := len(out) - len(shape)
	for i := range shape {
		if shape[i] != 1 || out[off+i] == 1 {
			bs[off+i] = s[i]
		}
	}
	return bs
}
