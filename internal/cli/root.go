package cli

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type Options struct {
	Config  string
	EnvFile string
}

func NewRootCmd() *cobra.Command {
	opts := &Options{}
	root := &cobra.Command{
		Use:           "claude-code-api",
		Short:         "OpenAI-compatible HTTP API backed by the claude CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(opts.EnvFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	root.PersistentFlags().StringVar(&opts.Config, "config", "", "config file (default: ./config.yaml)")
	root.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before configuration")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newModelsCmd(opts))
	root.AddCommand(newVersionCmd())
	return root
}

// Execute runs the root command and returns the process exit code
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		logrus.WithError(err).Error("Command failed")
		return 1
	}
	return 0
}

// loadEnvFile loads a dotenv file without overriding variables already set.
// A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return err
	}
	logrus.WithField("env_file", path).Debug("Loaded environment file")
	return nil
}
