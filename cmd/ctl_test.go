package cmd

import (
	"testing"

	"github.com/markusressel/qadc2go/internal/control"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected control.Command
		wantErr  bool
	}{
		{name: "read", args: []string{"read", "3"}, expected: control.Read(3)},
		{name: "direction", args: []string{"DIR", "0"}, expected: control.Direction(0)},
		{name: "stop", args: []string{"stop"}, expected: control.Command{Op: control.OpStop}},
		{name: "missing channel", args: []string{"read"}, wantErr: true},
		{name: "extra channel", args: []string{"exit", "1"}, wantErr: true},
		{name: "negative channel", args: []string{"read", "-1"}, wantErr: true},
		{name: "unknown", args: []string{"reboot"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// WHEN
			result, err := parseCommand(tt.args)

			// THEN
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestFormatResponse(t *testing.T) {
	assert.Equal(t, "read(1): 512", formatResponse(control.Read(1), 512))
	assert.Equal(t, "dir(0): up", formatResponse(control.Direction(0), 1))
	assert.Equal(t, "read(9): rejected", formatResponse(control.Read(9), control.StatusInvalid))
	assert.Equal(t, "cal-start: ok", formatResponse(control.Command{Op: control.OpCalibrationStart}, control.StatusAck))
}
