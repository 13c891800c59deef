// backend.go - Backend-Struktur und Registrierung des CPU-Backends
// Enthält: Backend struct, init(), New(), Close(), NewContext()
//
// Das CPU-Backend rechnet eager: jede Operation liefert sofort einen
// fertigen Tensor. Forward/Compute des Context sind daher Barrieren ohne Wirkung.

package cpu

import (
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ollama/gpt2/ml"
)

func init() {
	ml.RegisterBackend("cpu", func(params ml.BackendParams) (ml.Backend, error) {
		return New(params), nil
	})
}

// Backend führt Tensor-Operationen in reinem Go aus
type Backend struct {
	numThreads int
}

// New erzeugt ein CPU-Backend; NumThreads <= 0 verwendet GOMAXPROCS
func New(params ml.BackendParams) *Backend {
	n := params.NumThreads
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}

	slog.Debug("cpu backend", "threads", n)
	return &Backend{numThreads: n}
}

// Name gibt den Registrierungsnamen zurück
func (b *Backend) Name() string {
	return "cpu"
}

// Close gibt nichts frei; Speicher verwaltet der Garbage Collector
func (b *Backend) Close() {}

// NewContext erzeugt einen neuen Rechenkontext
func (b *Backend) NewContext() ml.Context {
	return &Context{b: b}
}

// parallel verteilt n unabhängige Aufgaben auf höchstens numThreads Goroutinen
func (b *Backend) parallel(n int, fn func(i int)) {
	if n == 1 || b.numThreads == 1 {
		for i := range n {
			fn(i)
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(b.numThreads)
	for i := range n {
		g.Go(func() error {
			fn(i)
			return nil
		})
	}
	g.Wait()
}

var (
	_ ml.Backend                   = (*Backend)(nil)
	_ ml.Context                   = (*Context)(nil)
	_ ml.Tensor                    = (*Tensor)(nil)
	_ ml.ScaledDotProductAttention = (*Tensor)(nil)
)
