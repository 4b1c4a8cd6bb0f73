package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommand_Word(t *testing.T) {
	tests := []struct {
		cmd  Command
		word uint32
	}{
		{cmd: Read(0), word: 0x01000000},
		{cmd: Read(5), word: 0x01000005},
		{cmd: Command{Op: OpCalibrationStart}, word: 0x02000000},
		{cmd: Command{Op: OpCalibrationFinish}, word: 0x03000000},
		{cmd: Direction(0x123456), word: 0x04123456},
		{cmd: Command{Op: OpStop}, word: 0x05000000},
		{cmd: Command{Op: OpStart}, word: 0x06000000},
		{cmd: Command{Op: OpExit}, word: 0x07000000},
	}

	for _, tt := range tests {
		t.Run(tt.cmd.String(), func(t *testing.T) {
			assert.Equal(t, tt.word, tt.cmd.Word())
			assert.Equal(t, tt.cmd, Decode(tt.word))
		})
	}
}

func TestCommand_OperandIsMasked(t *testing.T) {
	// WHEN
	word := Command{Op: OpRead, Operand: 0xAB000001}.Word()

	// THEN
	assert.Equal(t, uint32(0x01000001), word)
}

func TestDecode_UnknownOpcode(t *testing.T) {
	// WHEN
	cmd := Decode(0x42000001)

	// THEN
	assert.False(t, cmd.Op.Valid())
	assert.Equal(t, "unknown(0x42)", cmd.Op.String())
}

func TestParseOpcode(t *testing.T) {
	for op := OpRead; op <= OpExit; op++ {
		parsed, err := ParseOpcode(op.String())
		require.NoError(t, err)
		assert.Equal(t, op, parsed)
	}

	_, err := ParseOpcode("reboot")
	assert.EqualError(t, err, "unknown command: reboot")
}
