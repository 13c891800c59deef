// convert_model.go - Laden von Archiven und Modellen
// Hauptfunktionen: LoadModelParameters, LoadArchive, Load, ConvertFile
package convert

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	ofs "github.com/ollama/gpt2/fs"
	"github.com/ollama/gpt2/fs/safetensors"
	"github.com/ollama/gpt2/fs/torch"
	"github.com/ollama/gpt2/ml"
	"github.com/ollama/gpt2/model"
)

// LoadModelParameters liest config.json aus fsys. Fehlt die Datei, gelten
// die Werte von GPT-2 small.
func LoadModelParameters(fsys fs.FS) (KV, error) {
	bts, err := fs.ReadFile(fsys, "config.json")
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("no config.json, using gpt2 defaults")
		return defaultParameters.KV(), nil
	} else if err != nil {
		return nil, err
	}

	var p ModelParameters
	if err := json.Unmarshal(bts, &p); err != nil {
		return nil, fmt.Errorf("config.json: %w", err)
	}

	if len(p.Architectures) > 0 && p.Architectures[0] != "GPT2LMHeadModel" && p.Architectures[0] != "GPT2Model" {
		return nil, fmt.Errorf("%w: %q", model.ErrUnsupportedModel, p.Architectures[0])
	}

	return p.KV(), nil
}

// LoadArchive liest ein Gewichtsarchiv; das Format folgt der Dateiendung
func LoadArchive(path string) (*ofs.Archive, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".safetensors":
		return safetensors.ReadFile(path)
	case ".bin", ".pt", ".pth":
		return torch.ReadFile(path)
	default:
		return nil, fmt.Errorf("unknown archive format %q", ext)
	}
}

// Load laedt Archiv und config.json aus dem Verzeichnis von path und
// erzeugt das Modell
func Load(ctx ml.Context, path string) (model.Model, error) {
	kv, err := LoadModelParameters(os.DirFS(filepath.Dir(path)))
	if err != nil {
		return nil, err
	}

	a, err := LoadArchive(path)
	if err != nil {
		return nil, err
	}

	weights, err := Remap(ctx, a)
	if err != nil {
		return nil, err
	}

	m, err := model.New(kv, weights)
	if err != nil {
		return nil, err
	}

	slog.Info("loaded model", "path", path, "architecture", kv.Architecture(), "tensors", a.Len())
	return m, nil
}

// ConvertFile schreibt das Archiv in als safetensors mit ausschliesslich
// F32-Tensoren nach out
func ConvertFile(in, out string) error {
	a, err := LoadArchive(in)
	if err != nil {
		return err
	}

	if err := a.Upcast(); err != nil {
		return err
	}

	return safetensors.WriteFile(out, a)
}
