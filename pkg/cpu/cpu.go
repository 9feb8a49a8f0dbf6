// Package cpu interprets the target machine: three scratch registers, a
// downward-growing evaluation stack addressed through sp, word-addressed
// memory, and host functions reached with "call".
package cpu

import (
	"errors"
	"fmt"
	"sort"

	"minicc/pkg/asm"
)

const (
	RegR0 = 0
	RegR1 = 1
	RegR2 = 2
)

// MemoryWords is the size of the word-addressed memory.
const MemoryWords = 1 << 16

var (
	ErrUnknownFunction = errors.New("unknown function")
	ErrStepLimit       = errors.New("step limit reached")
)

// Builtin is a host function callable from compiled code. Its arguments
// are popped from the stack, first argument first in args, and its result
// is pushed.
type Builtin struct {
	Arity int
	Fn    func(args []uint16) uint16
}

type CPU struct {
	Regs [3]uint16
	SP   uint16

	PC     int
	Steps  int
	Halted bool

	Memory [MemoryWords]uint16

	Program  []asm.Instruction
	builtins map[string]Builtin
}

func NewCPU() *CPU {
	return &CPU{builtins: make(map[string]Builtin)}
}

// Register makes fn callable as name.
func (c *CPU) Register(name string, arity int, fn func(args []uint16) uint16) {
	c.builtins[name] = Builtin{Arity: arity, Fn: fn}
}

// Builtins returns the registered function names in sorted order.
func (c *CPU) Builtins() []string {
	names := make([]string, 0, len(c.builtins))
	for name := range c.builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load resets execution state and installs a program.
func (c *CPU) Load(program []asm.Instruction) {
	c.Program = program
	c.PC = 0
	c.Steps = 0
	c.Halted = len(program) == 0
}

func (c *CPU) reg(r asm.Reg) *uint16 {
	if r == asm.SP {
		return &c.SP
	}
	return &c.Regs[r]
}

func (c *CPU) push(v uint16) {
	c.SP--
	c.Memory[c.SP] = v
}

func (c *CPU) pop() uint16 {
	v := c.Memory[c.SP]
	c.SP++
	return v
}

// Stack returns the n words nearest the top of the stack, top first.
func (c *CPU) Stack(n int) []uint16 {
	out := make([]uint16, n)
	for i := range out {
		out[i] = c.Memory[uint16(int(c.SP)+i)]
	}
	return out
}

// Step executes one instruction. Running past the last instruction halts.
func (c *CPU) Step() error {
	if c.Halted {
		return nil
	}
	if c.PC >= len(c.Program) {
		c.Halted = true
		return nil
	}

	in := c.Program[c.PC]
	c.PC++
	c.Steps++

	switch in.Op {
	case asm.OpMOVI:
		c.Regs[RegR0] = uint16(in.Imm)

	case asm.OpADDI:
		c.Regs[RegR0] += uint16(in.Imm)

	case asm.OpSUBI:
		c.Regs[RegR0] -= uint16(in.Imm)

	case asm.OpMOV:
		*c.reg(in.A) = *c.reg(in.B)

	case asm.OpADD:
		*c.reg(in.A) += *c.reg(in.B)

	case asm.OpSUB:
		*c.reg(in.A) -= *c.reg(in.B)

	case asm.OpMUL:
		*c.reg(in.A) *= *c.reg(in.B)

	case asm.OpPUSH:
		c.push(*c.reg(in.A))

	case asm.OpPOP:
		*c.reg(in.A) = c.pop()

	case asm.OpLDR:
		*c.reg(in.A) = c.Memory[*c.reg(in.B)]

	case asm.OpSTR:
		c.Memory[*c.reg(in.A)] = *c.reg(in.B)

	case asm.OpCALL:
		b, ok := c.builtins[in.Name]
		if !ok {
			c.Halted = true
			return fmt.Errorf("line %d: %w %q", in.Line, ErrUnknownFunction, in.Name)
		}
		args := make([]uint16, b.Arity)
		for i := b.Arity - 1; i >= 0; i-- {
			args[i] = c.pop()
		}
		c.push(b.Fn(args))

	default:
		c.Halted = true
		return fmt.Errorf("line %d: unknown opcode %d", in.Line, in.Op)
	}
	return nil
}

// Run steps until the program ends, an instruction fails or maxSteps
// instructions have run.
func (c *CPU) Run(maxSteps int) error {
	for !c.Halted {
		if c.Steps >= maxSteps {
			return fmt.Errorf("%w after %d instructions", ErrStepLimit, c.Steps)
		}
		if err := c.Step(); err != nil {
			return err
		}
	}
	return nil
}

// RunSource parses and runs instruction text.
func (c *CPU) RunSource(code string, maxSteps int) error {
	prog, err := asm.Parse(code)
	if err != nil {
		return err
	}
	c.Load(prog)
	return c.Run(maxSteps)
}
