// cmd_generate.go - Lokale Inferenz ohne Server
// Hauptfunktionen: GenerateHandler, TopKHandler, parseIDs, loadModel
package cmd

import (
	"cmp"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ollama/gpt2/api"
	"github.com/ollama/gpt2/convert"
	"github.com/ollama/gpt2/envconfig"
	"github.com/ollama/gpt2/ml"
	_ "github.com/ollama/gpt2/ml/backend"
	"github.com/ollama/gpt2/model"
	_ "github.com/ollama/gpt2/model/models"
	"github.com/ollama/gpt2/runner"
)

// parseIDs liest Token-IDs, getrennt durch Leerzeichen oder Kommas
func parseIDs(args []string) ([]int32, error) {
	var ids []int32
	for _, arg := range args {
		for _, field := range strings.FieldsFunc(arg, func(r rune) bool { return r == ',' || r == ' ' }) {
			id, err := strconv.ParseInt(field, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: token id %q", runner.ErrInvalidInput, field)
			}
			ids = append(ids, int32(id))
		}
	}

	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no token ids given", runner.ErrInvalidInput)
	}

	return ids, nil
}

func formatIDs(ids []int32) string {
	var sb strings.Builder
	for i, id := range ids {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strconv.Itoa(int(id)))
	}
	return sb.String()
}

// loadModel oeffnet das Archiv aus --model (oder GPT2_MODEL) auf einem
// neuen CPU-Backend
func loadModel(cmd *cobra.Command) (ml.Backend, ml.Context, model.Model, error) {
	path, err := cmd.Flags().GetString("model")
	if err != nil {
		return nil, nil, nil, err
	}

	b, err := ml.NewBackend(ml.BackendParams{NumThreads: envconfig.NumThreads()})
	if err != nil {
		return nil, nil, nil, err
	}

	ctx := b.NewContext()
	m, err := convert.Load(ctx, cmp.Or(path, envconfig.Model()))
	if err != nil {
		ctx.Close()
		b.Close()
		return nil, nil, nil, err
	}

	return b, ctx, m, nil
}

// isTerminal meldet, ob w ein Terminal ist
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// renderTable schreibt rows als Tabelle, ausserhalb eines Terminals
// tabulatorgetrennt
func renderTable(w io.Writer, header []string, rows [][]string) {
	if !isTerminal(w) {
		fmt.Fprintln(w, strings.Join(header, "\t"))
		for _, row := range rows {
			fmt.Fprintln(w, strings.Join(row, "\t"))
		}
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(rows)
	table.Render()
}

// GenerateHandler - Erzeugt greedy neue Tokens und gibt sie fortlaufend aus
func GenerateHandler(cmd *cobra.Command, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}

	numHeads, err := cmd.Flags().GetInt("num-heads")
	if err != nil {
		return err
	}

	maxNewTokens, err := cmd.Flags().GetInt("max-new-tokens")
	if err != nil {
		return err
	}

	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return err
	}

	b, ctx, m, err := loadModel(cmd)
	if err != nil {
		return err
	}
	defer b.Close()
	defer ctx.Close()

	w := cmd.OutOrStdout()
	fmt.Fprint(w, formatIDs(ids))

	cfg := runner.GenerationConfig{
		NumHeads:     cmp.Or(numHeads, int(envconfig.NumHeads())),
		MaxNewTokens: maxNewTokens,
	}
	if !cmd.Flags().Changed("max-new-tokens") {
		cfg.MaxNewTokens = int(envconfig.MaxNewTokens())
	}

	res, err := runner.Generate(cmd.Context(), ctx, m, ctx.Input().FromInts(ids, 1, len(ids)), cfg, func(s runner.Step) error {
		_, err := fmt.Fprintf(w, " %d", s.Tokens[0])
		return err
	})
	fmt.Fprintln(w)
	if err != nil {
		return err
	}

	if verbose {
		metrics := api.Metrics{
			TotalDuration:      res.PromptEvalDuration + res.EvalDuration,
			PromptEvalCount:    res.PromptTokens,
			PromptEvalDuration: res.PromptEvalDuration,
			EvalCount:          res.GeneratedTokens,
			EvalDuration:       res.EvalDuration,
		}
		metrics.Summary(cmd.ErrOrStderr())
	}

	return nil
}

// TopKHandler - Zeigt die wahrscheinlichsten naechsten Tokens
func TopKHandler(cmd *cobra.Command, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}

	numHeads, err := cmd.Flags().GetInt("num-heads")
	if err != nil {
		return err
	}

	k, err := cmd.Flags().GetInt("k")
	if err != nil {
		return err
	}

	b, ctx, m, err := loadModel(cmd)
	if err != nil {
		return err
	}
	defer b.Close()
	defer ctx.Close()

	top, err := runner.TopK(ctx, m, ctx.Input().FromInts(ids, 1, len(ids)), cmp.Or(numHeads, int(envconfig.NumHeads())), k)
	if err != nil {
		return err
	}

	rows := make([][]string, len(top[0]))
	for i, tp := range top[0] {
		rows[i] = []string{strconv.Itoa(i + 1), strconv.Itoa(int(tp.Token)), strconv.FormatFloat(float64(tp.Probability), 'f', 6, 32)}
	}

	renderTable(cmd.OutOrStdout(), []string{"RANK", "TOKEN", "PROBABILITY"}, rows)
	return nil
}

func addModelFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("model", "m", "", "Path to a .safetensors or pytorch_model.bin archive (default $GPT2_MODEL)")
	cmd.Flags().Int("num-heads", 0, "Number of attention heads (default from config.json)")
}

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "generate [flags] IDS...",
		Aliases: []string{"gen"},
		Short:   "Greedily extend a sequence of token ids",
		Args:    cobra.MinimumNArgs(1),
		RunE:    GenerateHandler,
	}

	addModelFlags(cmd)
	cmd.Flags().IntP("max-new-tokens", "n", 20, "Number of tokens to generate (default $GPT2_MAX_NEW_TOKENS)")
	cmd.Flags().Bool("verbose", false, "Show timings for the response")
	return cmd
}

func newTopKCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topk [flags] IDS...",
		Short: "Show the most probable next tokens",
		Args:  cobra.MinimumNArgs(1),
		RunE:  TopKHandler,
	}

	addModelFlags(cmd)
	cmd.Flags().IntP("k", "k", 10, "Number of tokens to show")
	return cmd
}
