package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ollama/gpt2/cmd"
)

func main() {
	cobra.CheckErr(cmd.NewCLI().ExecuteContext(context.Background()))
}
