// types.go - Datentypen fuer Tensor-Elemente
// Dieses Modul definiert DType und die Zuordnung zu Archiv-Bezeichnern.
package ml

import "fmt"

// DType represents the data type of tensor elements.
type DType int

const (
	DTypeOther DType = iota
	DTypeF32
	DTypeF16
	DTypeBF16
	DTypeI32
	DTypeI64
)

func (d DType) String() string {
	switch d {
	case DTypeF32:
		return "F32"
	case DTypeF16:
		return "F16"
	case DTypeBF16:
		return "BF16"
	case DTypeI32:
		return "I32"
	case DTypeI64:
		return "I64"
	default:
		return fmt.Sprintf("DType(%d)", int(d))
	}
}

// IsInteger reports whether the element type is integral.
func (d DType) IsInteger() bool {
	return d == DTypeI32 || d == DTypeI64
}

// Size gibt die Groesse eines Elements in Bytes zurueck
func (d DType) Size() int {
	switch d {
	case DTypeF32, DTypeI32:
		return 4
	case DTypeF16, DTypeBF16:
		return 2
	case DTypeI64:
		return 8
	default:
		return 0
	}
}

// ParseDType maps an archive dtype name ("F32", "F16", ...) to a DType.
func ParseDType(s string) DType {
	switch s {
	case "F32":
		return DTypeF32
	case "F16":
		return DTypeF16
	case "BF16":
		return DTypeBF16
	case "I32":
		return DTypeI32
	case "I64":
		return DTypeI64
	default:
		return DTypeOther
	}
}
