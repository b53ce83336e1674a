// Package profile lists the configuration profiles and renders the effective
// settings.
package profile

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tphakala/birdnet-pipeline/internal/conf"
)

// Command creates the profile parent command
func Command(settings *conf.Settings) *cobra.Command {
	profileCmd := &cobra.Command{
		Use:   "profile",
		Short: "List configuration profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			listProfiles(cmd.OutOrStdout(), settings.Profile)
			return nil
		},
	}

	profileCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective settings as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := conf.MarshalYAML(settings.Redacted())
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}, &cobra.Command{
		Use:   "save [config.yaml]",
		Short: "Write the effective settings to a configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := conf.SaveYAMLConfig(args[0], settings); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Settings written to %s\n", args[0])
			return nil
		},
	})

	return profileCmd
}

// listProfiles prints every profile, marking the active one.
func listProfiles(w io.Writer, active string) {
	for _, name := range conf.Profiles() {
		marker := " "
		if name == active {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %-6s %s\n", marker, name, conf.ProfileDescription(name))
	}
}
