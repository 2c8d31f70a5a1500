package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tenderhub/extraction-pipeline/internal/cli"
)

func main() {
	command := NewExtractCtlCommand()
	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}

func NewExtractCtlCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extractctl [flags] [options]",
		Short: "extractctl controls the document extraction pipeline.",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
			os.Exit(1)
		},
	}
	cmd.AddCommand(cli.NewCmdStatus())
	cmd.AddCommand(cli.NewCmdEnqueue())
	cmd.AddCommand(cli.NewCmdRequeueDead())
	cmd.AddCommand(cli.NewCmdVersion())

	return cmd
}
