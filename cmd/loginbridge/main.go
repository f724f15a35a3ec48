package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFiles []string
	var configPath string

	root := &cobra.Command{
		Use:           "loginbridge",
		Short:         "OAuth2 login bridge for a CMS panel",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range envFiles {
				if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("load %s: %w", f, err)
				}
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", envOr("LB_CONFIG", "config.yaml"), "Path to the YAML config (env LB_CONFIG)")
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files loaded before the config")

	root.AddCommand(
		newServeCmd(&configPath),
		newProvidersCmd(&configPath),
		newCheckCmd(&configPath),
	)
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
