// cmd_show.go - Show und Convert Commands
// Hauptfunktionen: ShowHandler, ConvertHandler
package cmd

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ollama/gpt2/convert"
	"github.com/ollama/gpt2/envconfig"
)

// ShowHandler - Zeigt Hyperparameter und Tensoren eines Archivs, ohne
// das Modell zu bauen
func ShowHandler(cmd *cobra.Command, _ []string) error {
	path, err := cmd.Flags().GetString("model")
	if err != nil {
		return err
	}
	path = cmp.Or(path, envconfig.Model())

	kv, err := convert.LoadModelParameters(os.DirFS(filepath.Dir(path)))
	if err != nil {
		return err
	}

	a, err := convert.LoadArchive(path)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	renderTable(w, []string{"PARAMETER", "VALUE"}, [][]string{
		{"architecture", kv.Architecture()},
		{"block_count", strconv.Itoa(int(kv.Uint("block_count")))},
		{"attention.head_count", strconv.Itoa(int(kv.Uint("attention.head_count")))},
		{"embedding_length", strconv.Itoa(int(kv.Uint("embedding_length")))},
		{"context_length", strconv.Itoa(int(kv.Uint("context_length")))},
		{"vocab_size", strconv.Itoa(int(kv.Uint("vocab_size")))},
		{"attention.layer_norm_epsilon", strconv.FormatFloat(float64(kv.Float("attention.layer_norm_epsilon")), 'g', -1, 32)},
	})
	fmt.Fprintln(w)

	var rows [][]string
	for _, t := range a.Tensors() {
		shape := make([]string, len(t.Shape))
		for i, s := range t.Shape {
			shape[i] = strconv.Itoa(s)
		}
		rows = append(rows, []string{t.Name, t.DType, "[" + strings.Join(shape, " ") + "]"})
	}

	renderTable(w, []string{"TENSOR", "DTYPE", "SHAPE"}, rows)
	return nil
}

// ConvertHandler - Schreibt ein Archiv als F32-safetensors
func ConvertHandler(cmd *cobra.Command, args []string) error {
	if err := convert.ConvertFile(args[0], args[1]); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[1])
	return nil
}

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show hyper-parameters and tensors of a weight archive",
		Args:  cobra.NoArgs,
		RunE:  ShowHandler,
	}

	cmd.Flags().StringP("model", "m", "", "Path to a .safetensors or pytorch_model.bin archive (default $GPT2_MODEL)")
	return cmd
}

func newConvertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "convert IN OUT",
		Short: "Convert a weight archive to float32 safetensors",
		Args:  cobra.ExactArgs(2),
		RunE:  ConvertHandler,
	}
}
