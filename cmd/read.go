package cmd

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/markusressel/qadc2go/cmd/global"
	"github.com/markusressel/qadc2go/internal"
	"github.com/markusressel/qadc2go/internal/configuration"
	"github.com/markusressel/qadc2go/internal/hal"
	"github.com/markusressel/qadc2go/internal/ui"
	"github.com/mgutz/ansi"
	"github.com/spf13/cobra"
	"github.com/tomlazar/table"
)

var readInstanceId string

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Read every channel of an instance once",
	Long:  `Performs a single shot conversion on every channel of an instance, without calibration or auto scaling.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		configuration.ReadConfigFile()
		if err := configuration.Validate(); err != nil {
			return err
		}
		config := &configuration.CurrentConfig

		var instance *configuration.InstanceConfig
		for i := range config.Instances {
			if config.Instances[i].ID == readInstanceId {
				instance = &config.Instances[i]
			}
		}
		if instance == nil {
			return fmt.Errorf("no instance with id '%s' found", readInstanceId)
		}

		timer, pins, _, closer, err := internal.OpenPins(config, *instance, false)
		if err != nil {
			return err
		}
		if closer != nil {
			defer closer.Close()
		}
		if err := hal.PreInit(timer, pins); err != nil {
			_ = hal.CloseAll(pins)
			return err
		}
		converter, err := internal.NewConverter(config, *instance, timer, pins)
		if err != nil {
			_ = hal.CloseAll(pins)
			return err
		}
		defer converter.Close()

		var rows [][]string
		for ch := 0; ch < converter.NumChannels(); ch++ {
			value, err := converter.Single(ch)
			valueText := "N/A"
			if err == nil {
				valueText = strconv.Itoa(int(value))
			} else {
				ui.Warning("Channel %d: %v", ch, err)
			}
			directionText := "-"
			if dir, err := converter.Direction(ch); err == nil {
				directionText = dir.String()
			}
			rows = append(rows, []string{strconv.Itoa(ch), valueText, strconv.Itoa(converter.Resolution() - 1), directionText})
		}

		tab := table.Table{
			Headers: []string{"Channel", "Value", "Full scale", "Direction"},
			Rows:    rows,
		}
		var buf bytes.Buffer
		tableErr := tab.WriteTable(&buf, &table.Config{
			ShowIndex:       false,
			Color:           !global.NoColor,
			AlternateColors: true,
			TitleColorCode:  ansi.ColorCode("white+buf"),
			AltColorCodes: []string{
				ansi.ColorCode("white"),
				ansi.ColorCode("white:236"),
			},
		})
		if tableErr != nil {
			return tableErr
		}
		ui.Printfln("%s", buf.String())
		return nil
	},
}

func init() {
	readCmd.Flags().StringVarP(&readInstanceId, "id", "i", "", "Instance ID as specified in the config")
	_ = readCmd.MarkFlagRequired("id")
	rootCmd.AddCommand(readCmd)
}
