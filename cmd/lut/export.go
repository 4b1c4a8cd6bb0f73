package lut

import (
	"fmt"

	"github.com/markusressel/qadc2go/internal/ui"
	"github.com/markusressel/qadc2go/internal/util"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write the lookup table to a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		instance, hz, err := source()
		if err != nil {
			return err
		}
		doc, err := NewDocument(instance, hz)
		if err != nil {
			return err
		}
		if err := Export(doc, args[0]); err != nil {
			return err
		}
		ui.Success("Lookup table written to %s", args[0])
		return nil
	},
}

// Export writes doc as YAML to path, replacing the file atomically.
func Export(doc *Document, path string) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("cannot encode lookup table: %w", err)
	}
	return util.WriteFileAtomic(path, data)
}

func init() {
	Command.AddCommand(exportCmd)
}
