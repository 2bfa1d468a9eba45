package cmd

import (
	"log"

	"github.com/josephlewis42/jobsh/core/config"
	"github.com/spf13/cobra"
)

// initCmd writes the default config.yaml to the --config directory.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to the config directory.",
	Long: `Writes the default config.yaml, which turns on the command history and the
event log, to the directory given by --config. An existing config.yaml is kept.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		return config.Initialize(cfgPath, log.New(cmd.ErrOrStderr(), "", 0))
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
