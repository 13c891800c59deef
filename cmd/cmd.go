// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ollama/gpt2/envconfig"
	"github.com/ollama/gpt2/logutil"
)

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "gpt2",
		Short:         "GPT-2 inference with a key/value cache",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			slog.SetDefault(logutil.NewLogger(cmd.ErrOrStderr(), envconfig.LogLevel()))
		},
		Run: func(cmd *cobra.Command, args []string) {
			if version, _ := cmd.Flags().GetBool("version"); version {
				versionHandler(cmd, args)
				return
			}

			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	generateCmd := newGenerateCmd()
	topkCmd := newTopKCmd()
	showCmd := newShowCmd()
	convertCmd := newConvertCmd()
	serveCmd := newServeCmd()
	runCmd := newRunCmd()

	// Environment-Dokumentation hinzufuegen
	envVars := envconfig.AsMap()
	local := []envconfig.EnvVar{
		envVars["GPT2_DEBUG"],
		envVars["GPT2_MODEL"],
		envVars["GPT2_NUM_THREADS"],
	}

	for _, cmd := range []*cobra.Command{
		generateCmd,
		topkCmd,
		showCmd,
		convertCmd,
		serveCmd,
		runCmd,
	} {
		switch cmd {
		case generateCmd:
			appendEnvDocs(cmd, append(local, envVars["GPT2_NUM_HEADS"], envVars["GPT2_MAX_NEW_TOKENS"]))
		case topkCmd:
			appendEnvDocs(cmd, append(local, envVars["GPT2_NUM_HEADS"]))
		case convertCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["GPT2_DEBUG"]})
		case serveCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["GPT2_DEBUG"],
				envVars["GPT2_HOST"],
				envVars["GPT2_MODEL"],
				envVars["GPT2_ORIGINS"],
				envVars["GPT2_NUM_THREADS"],
				envVars["GPT2_NUM_PARALLEL"],
				envVars["GPT2_NUM_HEADS"],
				envVars["GPT2_MAX_NEW_TOKENS"],
				envVars["GPT2_NOSTREAM"],
			})
		case runCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["GPT2_HOST"], envVars["GPT2_NOSTREAM"]})
		default:
			appendEnvDocs(cmd, local)
		}
	}

	rootCmd.AddCommand(
		serveCmd,
		generateCmd,
		topkCmd,
		showCmd,
		convertCmd,
		runCmd,
	)

	return rootCmd
}
