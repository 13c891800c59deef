// Package safetensors - Lesen und Schreiben von safetensors-Archiven
//
// Dateiaufbau:
// - 8 Bytes: Laenge n des Headers (uint64, little-endian)
// - n Bytes: JSON-Objekt {name: {dtype, shape, data_offsets}} plus optionalem "__metadata__"
// - Rest: Tensordaten, data_offsets relativ zum Beginn dieses Bereichs
package safetensors

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/ollama/gpt2/fs"
)

// maxHeaderSize begrenzt den JSON-Header wie die Referenzimplementierung
const maxHeaderSize = 100 << 20

const metadataKey = "__metadata__"

var ErrInvalidHeader = errors.New("invalid safetensors header")

type tensorInfo struct {
	DType       string `json:"dtype"`
	Shape       []int  `json:"shape"`
	DataOffsets [2]int `json:"data_offsets"`
}

// ReadFile liest ein safetensors-Archiv von der Platte
func ReadFile(path string) (*fs.Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Read(f)
}

// Read liest ein vollstaendiges safetensors-Archiv aus r
func Read(r io.Reader) (*fs.Archive, error) {
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}

	if n == 0 || n > maxHeaderSize {
		return nil, fmt.Errorf("%w: header length %d", ErrInvalidHeader, n)
	}

	header := make([]byte, n)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}

	entries := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(header, entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	a := fs.NewArchive()
	for pair := entries.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Key == metadataKey {
			if err := json.Unmarshal(pair.Value, &a.Metadata); err != nil {
				return nil, fmt.Errorf("%w: metadata: %v", ErrInvalidHeader, err)
			}
			continue
		}

		var info tensorInfo
		if err := json.Unmarshal(pair.Value, &info); err != nil {
			return nil, fmt.Errorf("%w: tensor %s: %v", ErrInvalidHeader, pair.Key, err)
		}

		begin, end := info.DataOffsets[0], info.DataOffsets[1]
		if begin < 0 || end < begin || end > len(data) {
			return nil, fmt.Errorf("%w: tensor %s offsets %v outside data of %d bytes", ErrInvalidHeader, pair.Key, info.DataOffsets, len(data))
		}

		t := &fs.TensorData{
			Name:  pair.Key,
			DType: info.DType,
			Shape: info.Shape,
			Data:  data[begin:end],
		}
		if err := t.Validate(); err != nil {
			return nil, err
		}

		a.Set(t)
	}

	slog.Debug("safetensors", "tensors", a.Len(), "bytes", len(data))
	return a, nil
}

// WriteFile schreibt a als safetensors-Archiv nach path
func WriteFile(path string, a *fs.Archive) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := Write(f, a); err != nil {
		return err
	}

	return f.Close()
}

// Write schreibt a in Archivreihenfolge. Der Header wird mit Leerzeichen
// auf ein Vielfaches von 8 Bytes aufgefuellt.
func Write(w io.Writer, a *fs.Archive) error {
	header := orderedmap.New[string, any]()
	if len(a.Metadata) > 0 {
		header.Set(metadataKey, a.Metadata)
	}

	var offset int
	for _, t := range a.Tensors() {
		if err := t.Validate(); err != nil {
			return err
		}

		header.Set(t.Name, tensorInfo{
			DType:       t.DType,
			Shape:       t.Shape,
			DataOffsets: [2]int{offset, offset + len(t.Data)},
		})
		offset += len(t.Data)
	}

	bts, err := json.Marshal(header)
	if err != nil {
		return err
	}

	if pad := len(bts) % 8; pad != 0 {
		bts = append(bts, bytes.Repeat([]byte{' '}, 8-pad)...)
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(bts))); err != nil {
		return err
	}

	if _, err := w.Write(bts); err != nil {
		return err
	}

	for _, t := range a.Tensors() {
		if _, err := w.Write(t.Data); err != nil {
			return err
		}
	}

	return nil
}
