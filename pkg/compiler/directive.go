package compiler

import (
	"fmt"
	"math"
)

// DirectiveKind tags a Directive as an operand or a pending operator.
type DirectiveKind int

const (
	// Operands
	DirValue       DirectiveKind = iota // literal, variable reference or computed result
	DirDeclaration                      // "var [Type] name" awaiting "=" or ";"
	DirOpenParen                        // "(" awaiting ")"
	DirCall                             // "name(" awaiting ")"

	// Operators
	DirAssign
	DirAdd
	DirSub
	DirMul
	DirAddressOf
	DirDeref
)

var directiveNames = [...]string{
	DirValue:       "value",
	DirDeclaration: "declaration",
	DirOpenParen:   "(",
	DirCall:        "call",
	DirAssign:      "=",
	DirAdd:         "+",
	DirSub:         "-",
	DirMul:         "*",
	DirAddressOf:   "&",
	DirDeref:       "unary *",
}

func (k DirectiveKind) String() string {
	if int(k) >= 0 && int(k) < len(directiveNames) {
		return directiveNames[k]
	}
	return fmt.Sprintf("DirectiveKind(%d)", int(k))
}

// Operator precedences; higher binds tighter.
const (
	precNone   = 0
	precAssign = 1
	precAdd    = 2
	precUnary  = 2
	precMul    = 3
	precCall   = 4
	precComma  = 5 // argument separator; never stacked
)

// Precedence returns the binding strength of an operator directive, or
// precNone for operands.
func (k DirectiveKind) Precedence() int {
	switch k {
	case DirAssign, DirDeclaration:
		return precAssign
	case DirAdd, DirSub:
		return precAdd
	case DirAddressOf, DirDeref:
		return precUnary
	case DirMul:
		return precMul
	case DirCall:
		return precCall
	}
	return precNone
}

// IsOperator reports whether the directive is a pending operator.
func (k DirectiveKind) IsOperator() bool { return k >= DirAssign }

// IsPrefix reports whether the operator takes a single operand on its right.
func (k DirectiveKind) IsPrefix() bool { return k == DirAddressOf || k == DirDeref }

// IsBarrier reports whether reductions stop at this directive.
func (k DirectiveKind) IsBarrier() bool { return k == DirOpenParen || k == DirCall }

// Location says where an operand's value currently lives.
type Location int

const (
	LocImmediate Location = iota // literal held in the directive
	LocFrame                     // variable slot at Addr in the frame
	LocEvalStack                 // top of the evaluation stack
	LocRegister                  // scratch register
)

func (l Location) String() string {
	switch l {
	case LocImmediate:
		return "immediate"
	case LocFrame:
		return "frame"
	case LocEvalStack:
		return "stack"
	case LocRegister:
		return "register"
	}
	return fmt.Sprintf("Location(%d)", int(l))
}

// Directive is one entry of the compiler's combined parse and emit stack.
// Tok indexes the session's token slice.
type Directive struct {
	Kind         DirectiveKind
	Tok          int
	Type         *TypeDescriptor
	PointerDepth int
	Deref        int // dereferences still to apply when the value is loaded
	Loc          Location
	Addr         int    // frame address for LocFrame
	Reg          string // register for LocRegister
	Value        int64  // literal for LocImmediate
	Args         int    // arguments already pushed, for DirCall
}

func (d Directive) String() string {
	switch d.Kind {
	case DirValue:
		s := fmt.Sprintf("value(%s %s", TypeString(d.Type, d.PointerDepth), d.Loc)
		switch d.Loc {
		case LocImmediate:
			s += fmt.Sprintf(" #%d", d.Value)
		case LocFrame:
			s += fmt.Sprintf(" @%d", d.Addr)
		case LocRegister:
			s += " " + d.Reg
		}
		if d.Deref > 0 {
			s += fmt.Sprintf(" deref %d", d.Deref)
		}
		return s + ")"
	case DirDeclaration:
		return fmt.Sprintf("declaration(%s)", TypeString(d.Type, d.PointerDepth))
	case DirCall:
		return fmt.Sprintf("call(%d args)", d.Args)
	}
	return d.Kind.String()
}

// isScalar reports whether a value of this type fits in one register.
func (d Directive) isScalar() bool {
	if d.PointerDepth > 0 {
		return true
	}
	switch d.Type.Primitive {
	case PrimU16, PrimI16, PrimUntyped:
		return true
	}
	return false
}

func (d Directive) untyped() bool {
	return d.PointerDepth == 0 && d.Type.Primitive == PrimUntyped
}

// sameType reports whether two values have identical type and pointer depth.
func sameType(a, b Directive) bool {
	return a.Type.Same(b.Type) && a.PointerDepth == b.PointerDepth
}

// assignable reports whether v may be stored into a slot of type t at the
// given pointer depth. Untyped integers fit any non-pointer integer slot.
func assignable(t *TypeDescriptor, pointerDepth int, v Directive) bool {
	if v.untyped() {
		return pointerDepth == 0 && (t.Primitive == PrimU16 || t.Primitive == PrimI16)
	}
	return t.Same(v.Type) && pointerDepth == v.PointerDepth
}

// literalFits reports whether v, when it is an untyped literal, lies in the
// range of an integer slot of type t. An i16 slot takes at most MaxInt16.
func literalFits(t *TypeDescriptor, v Directive) bool {
	if !v.untyped() || v.Loc != LocImmediate {
		return true
	}
	if t.Primitive == PrimI16 {
		return v.Value <= math.MaxInt16
	}
	return v.Value <= math.MaxUint16
}
