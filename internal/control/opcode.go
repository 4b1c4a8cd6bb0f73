// Package control implements the command protocol of a QADC worker: a
// closed set of opcodes encoded into 32 bit words, a request/response
// channel and a byte stream transport for it.
package control

import (
	"fmt"
	"strings"
)

type Opcode uint8

const (
	OpRead              Opcode = 0x01
	OpCalibrationStart  Opcode = 0x02
	OpCalibrationFinish Opcode = 0x03
	OpDirection         Opcode = 0x04
	OpStop              Opcode = 0x05
	OpStart             Opcode = 0x06
	OpExit              Opcode = 0x07
)

const (
	OperandBits = 24
	OperandMask = 1<<OperandBits - 1

	// StatusAck is returned by commands that have no result.
	StatusAck uint32 = 0
	// StatusInvalid is returned for unknown opcodes and invalid operands.
	StatusInvalid uint32 = 0xFFFFFFFF
)

var opcodeNames = map[Opcode]string{
	OpRead:              "read",
	OpCalibrationStart:  "cal-start",
	OpCalibrationFinish: "cal-finish",
	OpDirection:         "dir",
	OpStop:              "stop",
	OpStart:             "start",
	OpExit:              "exit",
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("unknown(0x%02x)", uint8(o))
}

func (o Opcode) Valid() bool {
	_, ok := opcodeNames[o]
	return ok
}

// TakesChannel reports whether the operand of the opcode is a channel index.
func (o Opcode) TakesChannel() bool {
	return o == OpRead || o == OpDirection
}

// ParseOpcode accepts the names returned by Opcode.String.
func ParseOpcode(name string) (Opcode, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for op, opName := range opcodeNames {
		if opName == name {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown command: %s", name)
}

// Command is a single request to a worker.
type Command struct {
	Op      Opcode
	Operand uint32
}

// Read requests the published result of a channel.
func Read(ch int) Command {
	return Command{Op: OpRead, Operand: uint32(ch) & OperandMask}
}

// Direction requests the last transition direction of a channel.
func Direction(ch int) Command {
	return Command{Op: OpDirection, Operand: uint32(ch) & OperandMask}
}

// Word encodes the command, opcode in the high byte and operand in the low
// 24 bits.
func (c Command) Word() uint32 {
	return uint32(c.Op)<<OperandBits | c.Operand&OperandMask
}

// Decode splits a word into opcode and operand. The opcode is not
// validated.
func Decode(word uint32) Command {
	return Command{
		Op:      Opcode(word >> OperandBits),
		Operand: word & OperandMask,
	}
}

func (c Command) String() string {
	if c.Op.TakesChannel() {
		return fmt.Sprintf("%s(%d)", c.Op, c.Operand)
	}
	return c.Op.String()
}
