// dump.go - Lesbare Ausgabe von Tensoren fuer Debug- und Trace-Logs
// Dieses Modul enthaelt Dump und DumpValue, das erst beim Loggen formatiert.
package ml

import (
	"log/slog"
	"strconv"
	"strings"
)

// DumpOptions configures tensor dump output format.
type DumpOptions func(*dumpOptions)

// DumpWithPrecision sets the number of decimal places to print.
func DumpWithPrecision(n int) DumpOptions {
	return func(opts *dumpOptions) {
		opts.Precision = n
	}
}

// DumpWithThreshold sets the largest element count that is printed in full.
// Larger tensors only show the first and last EdgeItems of each axis.
func DumpWithThreshold(n int) DumpOptions {
	return func(opts *dumpOptions) {
		opts.Threshold = n
	}
}

// DumpWithEdgeItems sets the number of elements to print at the beginning and end of each axis.
func DumpWithEdgeItems(n int) DumpOptions {
	return func(opts *dumpOptions) {
		opts.EdgeItems = n
	}
}

type dumpOptions struct {
	Precision, Threshold, EdgeItems int
}

// Dump converts a tensor to a human-readable string representation.
func Dump(ctx Context, t Tensor, optsFuncs ...DumpOptions) string {
	opts := dumpOptions{Precision: 4, Threshold: 1000, EdgeItems: 3}
	for _, fn := range optsFuncs {
		fn(&opts)
	}

	shape := t.Shape()
	n := 1
	for _, d := range shape {
		n *= d
	}

	if n <= opts.Threshold {
		opts.EdgeItems = n
	}

	var format func(i int) string
	switch dtype := t.DType(); {
	case dtype == DTypeF32:
		fs := t.Floats()
		format = func(i int) string { return strconv.FormatFloat(float64(fs[i]), 'f', opts.Precision, 32) }
	case dtype == DTypeF16, dtype == DTypeBF16:
		return Dump(ctx, t.Cast(ctx, DTypeF32), optsFuncs...)
	case dtype.IsInteger():
		is := t.Ints()
		format = func(i int) string { return strconv.FormatInt(int64(is[i]), 10) }
	default:
		return "<unsupported>"
	}

	var sb strings.Builder
	writeAxis(&sb, shape, 0, 0, opts.EdgeItems, format)
	return sb.String()
}

// writeAxis schreibt die Achse axis ab dem flachen Index offset
func writeAxis(sb *strings.Builder, shape []int, axis, offset, edge int, format func(int) string) {
	if axis == len(shape) {
		s := format(offset)
		if !strings.HasPrefix(s, "-") {
			sb.WriteByte(' ')
		}
		sb.WriteString(s)
		return
	}

	stride := 1
	for _, d := range shape[axis+1:] {
		stride *= d
	}

	sep := ","
	if inner := len(shape) - axis - 1; inner > 0 {
		sep += strings.Repeat("\n", inner) + strings.Repeat(" ", axis+1)
	}

	sb.WriteByte('[')
	for i := 0; i < shape[axis]; i++ {
		if i > 0 {
			sb.WriteString(sep)
		}

		if i == edge && shape[axis] > 2*edge {
			sb.WriteString(" ...")
			i = shape[axis] - edge - 1
			continue
		}

		writeAxis(sb, shape, axis+1, offset+i*stride, edge, format)
	}
	sb.WriteByte(']')
}

type dumpValue struct {
	ctx  Context
	t    Tensor
	opts []DumpOptions
}

func (v dumpValue) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("shape", v.t.Shape()),
		slog.String("values", Dump(v.ctx, v.t, v.opts...)),
	)
}

// DumpValue wraps a tensor for structured logging. The tensor is only
// formatted when the record is actually written.
func DumpValue(ctx Context, t Tensor, optsFuncs ...DumpOptions) slog.LogValuer {
	return dumpValue{ctx, t, optsFuncs}
}
