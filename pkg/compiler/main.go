// Package compiler provides a single-pass compiler for a small C-like
// language that targets the textual instruction set of a register and
// stack machine.
//
// Pipeline: source bytes → Scanner (bounded lookahead) → tokens →
// Session (directive stack: precedence climbing that emits code as it
// reduces) → instruction text
package compiler
