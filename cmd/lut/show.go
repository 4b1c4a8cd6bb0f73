package lut

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/guptarohit/asciigraph"
	"github.com/markusressel/qadc2go/cmd/global"
	"github.com/markusressel/qadc2go/internal/lut"
	"github.com/markusressel/qadc2go/internal/ui"
	"github.com/mgutz/ansi"
	"github.com/spf13/cobra"
	"github.com/tomlazar/table"
)

var showEntries bool

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the lookup table to console",
	RunE: func(cmd *cobra.Command, args []string) error {
		instance, hz, err := source()
		if err != nil {
			return err
		}
		doc, err := NewDocument(instance, hz)
		if err != nil {
			return err
		}

		tableConfig := &table.Config{
			ShowIndex:       false,
			Color:           !global.NoColor,
			AlternateColors: true,
			TitleColorCode:  ansi.ColorCode("white+buf"),
			AltColorCodes: []string{
				ansi.ColorCode("white"),
				ansi.ColorCode("white:236"),
			},
		}

		printTable(table.Table{
			Headers: []string{"ID", "Type", "Resolution", "R", "C", "Rs", "VRail", "VThresh", "Charge"},
			Rows: [][]string{{
				doc.Id, doc.Type, strconv.Itoa(doc.Resolution),
				doc.Circuit.Resistance, doc.Circuit.Capacitor, doc.Circuit.SeriesResistor,
				fmt.Sprintf("%.2fV", doc.Circuit.VRail), fmt.Sprintf("%.2fV", doc.Circuit.VThresh),
				formatTicks(doc.ChargeTicks, doc.TimerHz),
			}},
		}, tableConfig)

		if doc.Table == nil {
			printTable(table.Table{
				Headers: []string{"Full scale"},
				Rows:    [][]string{{formatTicks(uint32(doc.RheoMaxTicks), doc.TimerHz)}},
			}, tableConfig)
			return nil
		}

		t := doc.Table
		printTable(table.Table{
			Headers: []string{"Crossover", "Max down", "Max up"},
			Rows: [][]string{{
				strconv.Itoa(t.Crossover),
				formatTicks(t.MaxDown, doc.TimerHz),
				formatTicks(t.MaxUp, doc.TimerHz),
			}},
		}, tableConfig)

		values := make([]float64, t.Size())
		var rows [][]string
		for idx := range values {
			dir := lut.Down
			ticks := t.Down[idx]
			if idx >= t.Crossover {
				dir = lut.Up
				ticks = t.Up[idx]
			}
			values[idx] = float64(ticks)
			rows = append(rows, []string{strconv.Itoa(idx), dir.String(), formatTicks(uint32(ticks), doc.TimerHz)})
		}

		if showEntries {
			printTable(table.Table{
				Headers: []string{"Index", "Direction", "Transition"},
				Rows:    rows,
			}, tableConfig)
		}

		caption := "transition ticks / position"
		graph := asciigraph.Plot(values, asciigraph.Height(15), asciigraph.Width(100), asciigraph.Caption(caption))
		ui.Printfln("%s", graph)
		return nil
	},
}

func printTable(tab table.Table, config *table.Config) {
	var buf bytes.Buffer
	if err := tab.WriteTable(&buf, config); err != nil {
		ui.Fatal("%v", err)
	}
	ui.Printfln("%s", buf.String())
}

func formatTicks(ticks uint32, hz uint32) string {
	micros := float64(ticks) * 1e6 / float64(hz)
	return fmt.Sprintf("%d (%.1fµs)", ticks, micros)
}

func init() {
	showCmd.Flags().BoolVarP(&showEntries, "entries", "e", false, "Print every table entry")
	Command.AddCommand(showCmd)
}
