// Package asm parses the compiler's instruction text into structured
// instructions and checks each mnemonic's operand shape.
package asm

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Op is an instruction opcode.
type Op int

const (
	OpMOVI Op = iota
	OpMOV
	OpADD
	OpSUB
	OpMUL
	OpPUSH
	OpPOP
	OpADDI
	OpSUBI
	OpLDR
	OpSTR
	OpCALL
)

// Reg is a register operand.
type Reg int

const (
	R0 Reg = iota
	R1
	R2
	SP
)

var regNames = map[string]Reg{"r0": R0, "r1": R1, "r2": R2, "sp": SP}

func (r Reg) String() string {
	for name, reg := range regNames {
		if reg == r {
			return name
		}
	}
	return fmt.Sprintf("Reg(%d)", int(r))
}

var oneRegisterOps = map[string]Op{
	"push": OpPUSH,
	"pop":  OpPOP,
}

var twoRegisterOps = map[string]Op{
	"mov": OpMOV,
	"add": OpADD,
	"sub": OpSUB,
	"mul": OpMUL,
	"ldr": OpLDR,
	"str": OpSTR,
}

var immediateOnlyOps = map[string]Op{
	"movi": OpMOVI,
	"addi": OpADDI,
	"subi": OpSUBI,
}

var nameOps = map[string]Op{
	"call": OpCALL,
}

// Instruction is one decoded line. A and B are the register operands in
// source order; Imm is the immediate and Name the call target.
type Instruction struct {
	Op   Op
	A, B Reg
	Imm  int
	Name string
	Line int
	Text string
}

func (in Instruction) String() string { return in.Text }

var asmLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `;[^\n]*`},
	{Name: "EOL", Pattern: `\r?\n`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Int", Pattern: `-?\d+`},
	{Name: "Punct", Pattern: `[#,]`},
	{Name: "Whitespace", Pattern: `[ \t]+`},
})

type program struct {
	Lines []*line `parser:"( @@ | EOL )*"`
}

type line struct {
	Pos      lexer.Position
	Mnemonic string     `parser:"@Ident"`
	Operands []*operand `parser:"( @@ ( ',' @@ )* )?"`
}

type operand struct {
	Imm   *int    `parser:"  '#' @Int"`
	Ident *string `parser:"| @Ident"`
}

var parser = participle.MustBuild[program](
	participle.Lexer(asmLexer),
	participle.Elide("Comment", "Whitespace"),
)

// Parse decodes instruction text, one instruction per line. Blank lines
// and ";" comments are ignored.
func Parse(code string) ([]Instruction, error) {
	prog, err := parser.ParseString("", code)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	lines := strings.Split(code, "\n")

	out := make([]Instruction, 0, len(prog.Lines))
	for _, l := range prog.Lines {
		in, err := decode(l)
		if err != nil {
			return nil, err
		}
		if l.Pos.Line-1 < len(lines) {
			in.Text = strings.TrimSpace(stripComment(lines[l.Pos.Line-1]))
		}
		out = append(out, in)
	}
	return out, nil
}

func stripComment(s string) string {
	if i := strings.IndexByte(s, ';'); i >= 0 {
		return s[:i]
	}
	return s
}

func decode(l *line) (Instruction, error) {
	lineNo := l.Pos.Line
	mnemonic := strings.ToLower(l.Mnemonic)
	in := Instruction{Line: lineNo}

	if op, ok := oneRegisterOps[mnemonic]; ok {
		if len(l.Operands) != 1 {
			return in, fmt.Errorf("%s expects 1 operand on line %d", mnemonic, lineNo)
		}
		reg, err := parseRegister(l.Operands[0], lineNo)
		if err != nil {
			return in, err
		}
		in.Op, in.A = op, reg
		return in, nil
	}

	if op, ok := twoRegisterOps[mnemonic]; ok {
		if len(l.Operands) != 2 {
			return in, fmt.Errorf("%s expects 2 operands on line %d", mnemonic, lineNo)
		}
		regA, err := parseRegister(l.Operands[0], lineNo)
		if err != nil {
			return in, err
		}
		regB, err := parseRegister(l.Operands[1], lineNo)
		if err != nil {
			return in, err
		}
		if op != OpMOV && (regA == SP || regB == SP) {
			return in, fmt.Errorf("%s cannot use sp on line %d", mnemonic, lineNo)
		}
		in.Op, in.A, in.B = op, regA, regB
		return in, nil
	}

	if op, ok := immediateOnlyOps[mnemonic]; ok {
		if len(l.Operands) != 1 || l.Operands[0].Imm == nil {
			return in, fmt.Errorf("%s expects one #immediate on line %d", mnemonic, lineNo)
		}
		in.Op, in.Imm = op, *l.Operands[0].Imm
		return in, nil
	}

	if op, ok := nameOps[mnemonic]; ok {
		if len(l.Operands) != 1 || l.Operands[0].Ident == nil {
			return in, fmt.Errorf("%s expects a name on line %d", mnemonic, lineNo)
		}
		in.Op, in.Name = op, *l.Operands[0].Ident
		return in, nil
	}

	return in, fmt.Errorf("unknown instruction on line %d: %s", lineNo, l.Mnemonic)
}

func parseRegister(o *operand, lineNo int) (Reg, error) {
	if o.Ident == nil {
		return 0, fmt.Errorf("expected register on line %d, got #%d", lineNo, *o.Imm)
	}
	reg, ok := regNames[strings.ToLower(*o.Ident)]
	if !ok {
		return 0, fmt.Errorf("invalid register '%s' on line %d", *o.Ident, lineNo)
	}
	return reg, nil
}
