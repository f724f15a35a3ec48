package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/Mattszczp/kirby-oauth/internal/config"
	"github.com/spf13/cobra"
)

func newProvidersCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the configured providers in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			presets, err := cfg.Presets()
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tLABEL\tREDIRECT URI\tSCOPES")
			for _, p := range presets {
				fmt.Fprintf(tw, "%s\t%s\t%s/%s\t%s\n",
					p.Config.Key, p.Config.Label(), cfg.RedirectBaseURL(), p.Config.Key,
					strings.Join(p.Config.Scopes, " "))
			}
			return tw.Flush()
		},
	}
}

func newCheckCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and print the effective settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "configuration OK\n")
			fmt.Fprintf(out, "  login:     %s\n", cfg.RedirectBaseURL())
			fmt.Fprintf(out, "  sessions:  %s (ttl %s)\n", cfg.Session.Driver, cfg.Session.TTL)
			fmt.Fprintf(out, "  users:     %s\n", cfg.Users.Driver)
			fmt.Fprintf(out, "  onlyOauth: %t\n", cfg.OAuth.OnlyOauth)
			fmt.Fprintf(out, "  enabled:   %t (%d providers)\n", len(cfg.OAuth.Providers) > 0, len(cfg.OAuth.Providers))
			fmt.Fprintf(out, "  policy:    onlyExistingUsers=%t allowEveryone=%t emails=%d domains=%d\n",
				cfg.OAuth.OnlyExistingUsers, cfg.OAuth.AllowEveryone,
				len(cfg.OAuth.EmailWhitelist), len(cfg.OAuth.DomainWhitelist))
			return nil
		},
	}
}
