package compiler

import (
	"fmt"
	"strings"
)

// Register names of the target machine.
const (
	R0 = "r0" // address and immediate scratch
	R1 = "r1" // left operand and result
	R2 = "r2" // right operand
	SP = "sp"
)

// CodeGen appends target instructions and keeps the frame's evaluation
// stack depth in step with every push and pop it emits.
type CodeGen struct {
	frame *Frame
	out   []string
}

func newCodeGen(frame *Frame) *CodeGen {
	return &CodeGen{frame: frame}
}

func (cg *CodeGen) line(format string, args ...any) {
	cg.out = append(cg.out, fmt.Sprintf(format, args...))
}

func (cg *CodeGen) movi(v int64)              { cg.line("movi #%d", v) }
func (cg *CodeGen) mov(dst, src string)       { cg.line("mov %s, %s", dst, src) }
func (cg *CodeGen) ldr(dst, addr string)      { cg.line("ldr %s, %s", dst, addr) }
func (cg *CodeGen) str(addr, src string)      { cg.line("str %s, %s", addr, src) }
func (cg *CodeGen) arith(op, dst, src string) { cg.line("%s %s, %s", op, dst, src) }
func (cg *CodeGen) addi(n int)                { cg.line("addi #%d", n) }

func (cg *CodeGen) push(reg string) {
	cg.line("push %s", reg)
	cg.frame.Push(1)
}

func (cg *CodeGen) pop(reg string) {
	cg.line("pop %s", reg)
	cg.frame.Pop(1)
}

// call emits a call that consumes args pushed words and leaves one result.
func (cg *CodeGen) call(name string, args int) {
	cg.line("call %s", name)
	cg.frame.Pop(args)
	cg.frame.Push(1)
}

// slotAddress leaves the runtime address of frame slot addr in r0. The
// stack grows downward, so the slot is depth-1-addr words above sp.
func (cg *CodeGen) slotAddress(addr int) {
	cg.mov(R0, SP)
	cg.addi(cg.frame.Depth() - 1 - addr)
}

// release drops n words from the top of the runtime stack. The caller
// adjusts the frame depth.
func (cg *CodeGen) release(n int) {
	cg.mov(R0, SP)
	cg.addi(n)
	cg.mov(SP, R0)
}

// zero pushes n zero words.
func (cg *CodeGen) zero(n int) {
	cg.movi(0)
	for i := 0; i < n; i++ {
		cg.push(R0)
	}
}

// load leaves the value of a scalar operand in reg, applying its pending
// dereferences, and returns the operand relocated to reg. Operands on the
// evaluation stack are popped.
func (cg *CodeGen) load(d Directive, reg string) Directive {
	switch d.Loc {
	case LocImmediate:
		cg.movi(d.Value)
		if reg != R0 {
			cg.mov(reg, R0)
		}
	case LocFrame:
		cg.slotAddress(d.Addr)
		cg.ldr(reg, R0)
	case LocEvalStack:
		cg.pop(reg)
	case LocRegister:
		if d.Reg != reg {
			cg.mov(reg, d.Reg)
		}
	}
	for i := 0; i < d.Deref; i++ {
		cg.ldr(reg, reg)
	}
	d.Loc = LocRegister
	d.Reg = reg
	d.Deref = 0
	return d
}

// addressable reports whether address can compute the location of d.
func addressable(d Directive) bool {
	return d.Kind == DirValue && (d.Loc == LocFrame || (d.Loc == LocEvalStack && d.Deref > 0))
}

// address leaves the address of an addressable operand in r0. A
// variable of several words is addressed by its lowest word, the last one
// pushed, so that word k of the value is at that address plus k.
func (cg *CodeGen) address(d Directive) {
	switch d.Loc {
	case LocFrame:
		if d.Deref == 0 {
			cg.slotAddress(d.Addr + d.Type.SizeAt(d.PointerDepth) - 1)
			return
		}
		cg.slotAddress(d.Addr)
		for i := 0; i < d.Deref; i++ {
			cg.ldr(R0, R0)
		}
	case LocEvalStack:
		cg.pop(R0)
		for i := 1; i < d.Deref; i++ {
			cg.ldr(R0, R0)
		}
	}
}

// materialize makes sure a scalar operand sits on top of the evaluation
// stack with no dereferences left to apply.
func (cg *CodeGen) materialize(d Directive) Directive {
	switch {
	case d.Loc == LocEvalStack && d.Deref == 0:
		return d
	case d.Loc == LocImmediate:
		cg.movi(d.Value)
		cg.push(R0)
	default:
		d = cg.load(d, R1)
		cg.push(R1)
	}
	d.Loc = LocEvalStack
	d.Reg = ""
	d.Deref = 0
	return d
}

// Lines returns the emitted instructions.
func (cg *CodeGen) Lines() []string { return cg.out }

func (cg *CodeGen) String() string {
	if len(cg.out) == 0 {
		return ""
	}
	return strings.Join(cg.out, "\n") + "\n"
}
