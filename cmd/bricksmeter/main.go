package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bricks-cloud/bricksmeter/meter"
)

var (
	mode       string
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:           "bricksmeter",
	Short:         "Ship LLM token usage events to a collector",
	Version:       meter.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("bricksmeter %s\n", meter.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&mode, "mode", "m", "", "select the mode that bricksmeter runs in, dev or production (defaults to log_mode)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a .json, .yaml or .yml config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "path to a .env file exported before reading the environment")

	rootCmd.AddCommand(versionCmd, newSendCmd(), newCollectCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
