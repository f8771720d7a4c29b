// Package devices implements the devices command
package devices

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/voicechanger/internal/conf"
	"github.com/tphakala/voicechanger/internal/engine"
)

// Command creates the devices command
func Command() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List audio capture and playback devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := conf.GetSettings()
			eng, err := engine.NewMalgoEngine(engine.Config{Backend: settings.Engine.Backend})
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			list, err := eng.Devices()
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(os.Stdout, list)
			}
			return writeTable(os.Stdout, list)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print devices as JSON")
	return cmd
}

func writeJSON(w io.Writer, list []engine.DeviceInfo) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(list)
}

func writeTable(w io.Writer, list []engine.DeviceInfo) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "KIND\tINDEX\tDEFAULT\tNAME\tID")
	for _, d := range list {
		def := ""
		if d.IsDefault {
			def = "*"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", d.Kind, d.Index, def, d.Name, d.ID)
	}
	return tw.Flush()
}
