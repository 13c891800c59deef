// cmd_run.go - Run Command: Generierung ueber einen laufenden Server
// Hauptfunktionen: RunHandler, newClient
package cmd

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ollama/gpt2/api"
)

// newClient verbindet sich mit --host oder GPT2_HOST
func newClient(cmd *cobra.Command) (*api.Client, error) {
	host, err := cmd.Flags().GetString("host")
	if err != nil {
		return nil, err
	}

	if host == "" {
		return api.ClientFromEnvironment()
	}

	if !strings.Contains(host, "://") {
		host = "http://" + host
	}

	base, err := url.Parse(host)
	if err != nil {
		return nil, err
	}

	return api.NewClient(base, http.DefaultClient), nil
}

// RunHandler - Schickt die Token-IDs an den Server und gibt die neuen
// Tokens aus, sobald sie eintreffen
func RunHandler(cmd *cobra.Command, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}

	client, err := newClient(cmd)
	if err != nil {
		return err
	}

	req := api.GenerateRequest{InputIDs: [][]int32{ids}}
	if cmd.Flags().Changed("max-new-tokens") {
		n, err := cmd.Flags().GetInt("max-new-tokens")
		if err != nil {
			return err
		}
		req.MaxNewTokens = &n
	}

	if req.NumHeads, err = cmd.Flags().GetInt("num-heads"); err != nil {
		return err
	}

	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprint(w, formatIDs(ids))

	var latest api.GenerateResponse
	var streamed int
	err = client.Generate(cmd.Context(), &req, func(resp api.GenerateResponse) error {
		latest = resp
		if !resp.Done {
			if len(resp.Tokens) == 0 {
				return nil
			}
			streamed++
			_, err := fmt.Fprintf(w, " %d", resp.Tokens[0])
			return err
		}

		// ohne Streaming kommt nur die letzte Antwort
		if streamed == 0 && len(resp.OutputIDs) > 0 && len(resp.OutputIDs[0]) > len(ids) {
			fmt.Fprint(w, " "+formatIDs(resp.OutputIDs[0][len(ids):]))
		}
		return nil
	})
	fmt.Fprintln(w)
	if err != nil {
		return err
	}

	if verbose {
		latest.Summary(cmd.ErrOrStderr())
	}

	return nil
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [flags] IDS...",
		Short: "Generate tokens with a running gpt2 server",
		Args:  cobra.MinimumNArgs(1),
		RunE:  RunHandler,
	}

	cmd.Flags().String("host", "", "Server address (default $GPT2_HOST)")
	cmd.Flags().IntP("max-new-tokens", "n", 20, "Number of tokens to generate (default: server setting)")
	cmd.Flags().Int("num-heads", 0, "Number of attention heads (default: server setting)")
	cmd.Flags().Bool("verbose", false, "Show timings for the response")
	return cmd
}
