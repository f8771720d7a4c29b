// Package configcmd implements the config command
package configcmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tphakala/voicechanger/internal/conf"
)

// Command creates the config command
func Command() *cobra.Command {
	var writePath string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  "Prints the configuration after defaults, config file and environment are applied. Credentials are redacted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := conf.GetSettings()
			if writePath != "" {
				if err := conf.SaveYAMLConfig(writePath, settings); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "configuration written to %s\n", writePath)
				return nil
			}
			return printRedacted(cmd.OutOrStdout(), settings)
		},
	}

	cmd.Flags().StringVar(&writePath, "write", "", "Write the effective configuration, credentials included, to this path")
	return cmd
}

func printRedacted(w io.Writer, settings *conf.Settings) error {
	redacted := settings.Redacted()
	data, err := redacted.ToYAML()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
