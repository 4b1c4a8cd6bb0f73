package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/markusressel/qadc2go/internal/configuration"
	"github.com/markusressel/qadc2go/internal/control"
	"github.com/markusressel/qadc2go/internal/lut"
	"github.com/markusressel/qadc2go/internal/ui"
	"github.com/spf13/cobra"
)

var (
	ctlPort     string
	ctlBaudRate int
	ctlTimeout  time.Duration
)

var ctlCmd = &cobra.Command{
	Use:   "ctl <command> [channel]",
	Short: "Send a command to a QADC over a serial port",
	Long: `Sends a single command word to a QADC serving the control protocol on a
serial port and prints the response.

Commands: read, dir, cal-start, cal-finish, stop, start, exit`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		command, err := parseCommand(args)
		if err != nil {
			return err
		}

		port, err := control.OpenSerial(ctlPort, ctlBaudRate, ctlTimeout)
		if err != nil {
			return err
		}
		defer port.Close()

		response, err := control.NewClient(port).Do(command)
		if err != nil {
			return err
		}
		ui.Printfln("%s", formatResponse(command, response))
		return nil
	},
}

func parseCommand(args []string) (control.Command, error) {
	op, err := control.ParseOpcode(args[0])
	if err != nil {
		return control.Command{}, err
	}
	command := control.Command{Op: op}
	if !op.TakesChannel() {
		if len(args) > 1 {
			return command, fmt.Errorf("command %s takes no channel", op)
		}
		return command, nil
	}
	if len(args) < 2 {
		return command, fmt.Errorf("command %s requires a channel", op)
	}
	ch, err := strconv.Atoi(args[1])
	if err != nil || ch < 0 || ch > control.OperandMask {
		return command, fmt.Errorf("invalid channel: %s", args[1])
	}
	command.Operand = uint32(ch)
	return command, nil
}

func formatResponse(command control.Command, response uint32) string {
	switch {
	case response == control.StatusInvalid:
		return fmt.Sprintf("%s: rejected", command)
	case command.Op == control.OpRead:
		return fmt.Sprintf("%s: %d", command, response)
	case command.Op == control.OpDirection:
		return fmt.Sprintf("%s: %s", command, lut.Direction(response))
	}
	return fmt.Sprintf("%s: ok", command)
}

func init() {
	ctlCmd.Flags().StringVarP(&ctlPort, "port", "p", "/dev/ttyUSB0", "Serial port")
	ctlCmd.Flags().IntVarP(&ctlBaudRate, "baud", "b", configuration.DefaultBaudRate, "Baud rate")
	ctlCmd.Flags().DurationVarP(&ctlTimeout, "timeout", "t", 2*time.Second, "Response timeout")
	rootCmd.AddCommand(ctlCmd)
}
