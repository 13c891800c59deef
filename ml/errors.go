// errors.go - Fehlertypen fuer Tensor-Operationen
// Dieses Modul definiert OpError und die Umwandlung von Panics in Fehler.
package ml

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrShapeMismatch     = errors.New("shape mismatch")
	ErrInvalidInputDtype = errors.New("invalid input dtype")
)

// OpError describes a tensor operation that was given incompatible inputs.
type OpError struct {
	Op     string
	Shapes [][]int
	DTypes []DType
	Err    error
}

func (e *OpError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %v", e.Op, e.Err)
	for i, shape := range e.Shapes {
		if i == 0 {
			sb.WriteString(":")
		} else {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, " %v", shape)
		if i < len(e.DTypes) {
			fmt.Fprintf(&sb, " %v", e.DTypes[i])
		}
	}
	return sb.String()
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// ShapeMismatch builds an OpError naming op and the shapes of ts.
func ShapeMismatch(op string, ts ...Tensor) *OpError {
	return newOpError(op, ErrShapeMismatch, ts...)
}

// InvalidInputDtype builds an OpError naming op and the dtypes of ts.
func InvalidInputDtype(op string, ts ...Tensor) *OpError {
	return newOpError(op, ErrInvalidInputDtype, ts...)
}

func newOpError(op string, err error, ts ...Tensor) *OpError {
	e := OpError{Op: op, Err: err}
	for _, t := range ts {
		e.Shapes = append(e.Shapes, t.Shape())
		e.DTypes = append(e.DTypes, t.DType())
	}
	return &e
}

// Recover converts a panicking *OpError into an error stored in err. It must
// be deferred directly. Other panics are re-raised.
//
//	func (m *Model) Forward(...) (_ ml.Tensor, err error) {
//		defer ml.Recover(&err)
//		...
//	}
func Recover(err *error) {
	if r := recover(); r != nil {
		if e, ok := r.(error); ok {
			var opErr *OpError
			if errors.As(e, &opErr) {
				*err = e
				return
			}
		}
		panic(r)
	}
}
