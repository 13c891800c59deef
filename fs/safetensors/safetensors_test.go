package safetensors

import (
	"bytes"
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/gpt2/fs"
)

func f32bytes(vs ...float32) []byte {
	b := make([]byte, 4*len(vs))
	for i, f := range vs {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(f))
	}
	return b
}

func raw(header string, data []byte) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint64(len(header)))
	buf.WriteString(header)
	buf.Write(data)
	return buf.Bytes()
}

func TestRead(t *testing.T) {
	header := `{"__metadata__":{"format":"pt"},"wte.weight":{"dtype":"F32","shape":[2,2],"data_offsets":[0,16]},"h.0.attn.bias":{"dtype":"F32","shape":[1],"data_offsets":[16,20]}}`
	a, err := Read(bytes.NewReader(raw(header, f32bytes(1, 2, 3, 4, 5))))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"format": "pt"}, a.Metadata)
	require.Equal(t, 2, a.Len())

	var names []string
	for _, td := range a.Tensors() {
		names = append(names, td.Name)
	}
	// Dateireihenfolge bleibt erhalten
	if diff := cmp.Diff([]string{"wte.weight", "h.0.attn.bias"}, names); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	wte, ok := a.Get("wte.weight")
	require.True(t, ok)
	assert.Equal(t, []int{2, 2}, wte.Shape)
	assert.Equal(t, f32bytes(1, 2, 3, 4), wte.Data)
}

func TestReadInvalid(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		err  error
	}{
		{"leer", nil, ErrInvalidHeader},
		{"header zu kurz", append(binary.LittleEndian.AppendUint64(nil, 64), '{'), ErrInvalidHeader},
		{"kein json", raw("not json", nil), ErrInvalidHeader},
		{"offsets ausserhalb", raw(`{"a":{"dtype":"F32","shape":[2],"data_offsets":[0,8]}}`, f32bytes(1)), ErrInvalidHeader},
		{"groesse passt nicht", raw(`{"a":{"dtype":"F32","shape":[3],"data_offsets":[0,8]}}`, f32bytes(1, 2)), fs.ErrCorrupt},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(bytes.NewReader(tt.data))
			require.ErrorIs(t, err, tt.err)
		})
	}
}

func TestWriteRead(t *testing.T) {
	a := fs.NewArchive()
	a.Metadata["format"] = "pt"
	a.Set(&fs.TensorData{Name: "wpe.weight", DType: "F32", Shape: []int{1, 3}, Data: f32bytes(1, 2, 3)})
	a.Set(&fs.TensorData{Name: "lnF.bias", DType: "F16", Shape: []int{2}, Data: []byte{0, 0x3c, 0, 0x40}})

	path := filepath.Join(t.TempDir(), "model.safetensors")
	require.NoError(t, WriteFile(path, a))

	b, err := ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, a.Metadata, b.Metadata)
	if diff := cmp.Diff(a.Tensors(), b.Tensors()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteHeaderAlignment(t *testing.T) {
	a := fs.NewArchive()
	a.Set(&fs.TensorData{Name: "x", DType: "F32", Shape: []int{1}, Data: f32bytes(7)})

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, a))

	n := binary.LittleEndian.Uint64(buf.Bytes())
	assert.Zero(t, n%8, "header muss auf 8 Bytes ausgerichtet sein")
	assert.Equal(t, int(8+n+4), buf.Len())
}
