// cmd_serve.go - Server starten
// Hauptfunktionen: RunServer, versionHandler
package cmd

import (
	"cmp"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/ollama/gpt2/api"
	"github.com/ollama/gpt2/envconfig"
	"github.com/ollama/gpt2/server"
	"github.com/ollama/gpt2/version"
)

// RunServer - Laedt das Modell und startet den HTTP-Server
func RunServer(cmd *cobra.Command, _ []string) error {
	path, err := cmd.Flags().GetString("model")
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", envconfig.Host().Host)
	if err != nil {
		return err
	}

	err = server.Serve(ln, cmp.Or(path, envconfig.Model()))
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

// versionHandler - Zeigt Client- und Server-Version
func versionHandler(cmd *cobra.Command, _ []string) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return
	}

	w := cmd.OutOrStdout()
	serverVersion, err := client.Version(cmd.Context())
	if err != nil {
		fmt.Fprintln(w, "Warning: could not connect to a running gpt2 server")
	}

	if serverVersion != "" {
		fmt.Fprintf(w, "gpt2 version is %s\n", serverVersion)
	}

	if serverVersion != version.Version {
		fmt.Fprintf(w, "Warning: client version is %s\n", version.Version)
	}
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the gpt2 server",
		Args:    cobra.ExactArgs(0),
		RunE:    RunServer,
	}

	cmd.Flags().StringP("model", "m", "", "Path to a .safetensors or pytorch_model.bin archive (default $GPT2_MODEL)")
	return cmd
}
