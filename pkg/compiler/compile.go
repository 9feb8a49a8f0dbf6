package compiler

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/npillmayer/schuko/tracing"
)

// Session owns the tables of one compilation: the token slice that
// directives index into, the type registry, the variable frame and the
// emitted code.
type Session struct {
	Types *TypeRegistry
	Frame *Frame

	tokens        []Token
	pos           int
	gen           *CodeGen
	stack         []Directive
	expectOperand bool

	tracer tracing.Trace
}

func NewSession() *Session {
	frame := NewFrame()
	return &Session{
		Types: NewTypeRegistry(),
		Frame: frame,
		gen:   newCodeGen(frame),
	}
}

// Lines returns the instructions emitted so far.
func (s *Session) Lines() []string { return s.gen.Lines() }

// Assembly returns the emitted instructions, one per line.
func (s *Session) Assembly() string { return s.gen.String() }

// Token returns the token a directive refers to.
func (s *Session) Token(i int) Token {
	if i < 0 || i >= len(s.tokens) {
		return Token{Type: EOF}
	}
	return s.tokens[i]
}

func (s *Session) peek() Token { return s.peekAt(0) }

func (s *Session) peekAt(offset int) Token {
	if s.pos+offset >= len(s.tokens) {
		return Token{Type: EOF, Line: s.lastLine()}
	}
	return s.tokens[s.pos+offset]
}

func (s *Session) lastLine() int {
	if len(s.tokens) == 0 {
		return 1
	}
	return s.tokens[len(s.tokens)-1].Line
}

func (s *Session) advance() Token {
	tok := s.peek()
	if s.pos < len(s.tokens) {
		s.pos++
	}
	return tok
}

// expect consumes the current token if it matches tt, otherwise returns an error.
func (s *Session) expect(tt TokenType, what string) (Token, error) {
	tok := s.advance()
	if tok.Type != tt {
		return tok, parseErrorf(tok, ErrUnexpectedToken, "expected %s, got %s", what, describe(tok))
	}
	return tok, nil
}

func describe(tok Token) string {
	switch tok.Type {
	case EOF:
		return "end of input"
	case IDENTIFIER:
		return fmt.Sprintf("identifier %q", tok.Name)
	case INTEGER:
		return fmt.Sprintf("integer %d", tok.Value)
	}
	return fmt.Sprintf("%q", tok.Text())
}

// Compile compiles a complete token sequence in this session. The first
// error aborts compilation.
func (s *Session) Compile(tokens []Token) error {
	s.tokens = tokens
	s.pos = 0
	for s.peek().Type != EOF {
		tok := s.peek()
		var err error
		switch tok.Type {
		case STRUCT:
			err = s.compileStruct()
		case LBRACE:
			s.advance()
			id := s.Frame.EnterScope()
			s.trace("enter scope %d at depth %d", id, s.Frame.Depth())
		case RBRACE:
			s.advance()
			if !s.Frame.Nested() {
				return parseErrorf(tok, ErrUnbalanced, "unmatched \"}\"")
			}
			if words := s.Frame.ExitScope(); words > 0 {
				s.gen.release(words)
			}
		default:
			err = s.compileStatement()
		}
		if err != nil {
			return err
		}
	}
	if s.Frame.Nested() {
		return parseErrorf(s.peek(), ErrUnbalanced, "unterminated block")
	}
	return nil
}

// compileStatement compiles one ";"-terminated statement through the
// directive stack.
func (s *Session) compileStatement() error {
	s.stack = s.stack[:0]
	s.expectOperand = true
	first := true

	for {
		idx := s.pos
		tok := s.advance()
		var err error

		switch tok.Type {
		case SEMICOLON:
			return s.endStatement(tok)
		case EOF:
			return parseErrorf(tok, ErrUnexpectedToken, "missing \";\" at end of input")
		case VAR:
			if !first {
				return parseErrorf(tok, ErrUnexpectedToken, "\"var\" must start a statement")
			}
			err = s.pushDeclaration(idx)
		case INTEGER:
			err = s.pushLiteral(idx, tok)
		case IDENTIFIER:
			if s.peek().Type == LPAREN {
				s.advance()
				err = s.pushCall(idx, tok)
			} else {
				err = s.pushVariable(idx, tok)
			}
		case LPAREN:
			err = s.pushMarker(Directive{Kind: DirOpenParen, Tok: idx}, tok)
		case RPAREN:
			err = s.closeParen(tok)
		case COMMA:
			err = s.comma(tok)
		case ASSIGN:
			err = s.pushBinary(DirAssign, idx, tok)
		case PLUS:
			err = s.pushBinary(DirAdd, idx, tok)
		case MINUS:
			err = s.pushBinary(DirSub, idx, tok)
		case STAR:
			if s.expectOperand {
				err = s.pushPrefix(DirDeref, idx, tok)
			} else {
				err = s.pushBinary(DirMul, idx, tok)
			}
		case AMP:
			err = s.pushPrefix(DirAddressOf, idx, tok)
		default:
			err = parseErrorf(tok, ErrUnexpectedToken, "unexpected %s in statement", describe(tok))
		}
		if err != nil {
			return err
		}
		first = false
	}
}

func (s *Session) push(d Directive) {
	s.stack = append(s.stack, d)
}

func (s *Session) pushOperand(d Directive, tok Token) error {
	if !s.expectOperand {
		return parseErrorf(tok, ErrUnexpectedToken, "unexpected %s, expected an operator", describe(tok))
	}
	s.push(d)
	s.expectOperand = false
	return nil
}

// pushMarker pushes an open parenthesis or call marker; an operand is still expected after it.
func (s *Session) pushMarker(d Directive, tok Token) error {
	if !s.expectOperand {
		return parseErrorf(tok, ErrUnexpectedToken, "unexpected %s, expected an operator", describe(tok))
	}
	s.push(d)
	return nil
}

func (s *Session) pushPrefix(kind DirectiveKind, idx int, tok Token) error {
	if !s.expectOperand {
		return parseErrorf(tok, ErrUnexpectedToken, "unexpected %s, expected an operator", describe(tok))
	}
	s.push(Directive{Kind: kind, Tok: idx})
	return nil
}

func (s *Session) pushBinary(kind DirectiveKind, idx int, tok Token) error {
	if s.expectOperand {
		return parseErrorf(tok, ErrUnexpectedToken, "unexpected %s, expected an operand", describe(tok))
	}
	if err := s.reduce(kind.Precedence()); err != nil {
		return err
	}
	s.push(Directive{Kind: kind, Tok: idx})
	s.expectOperand = true
	return nil
}

func (s *Session) pushLiteral(idx int, tok Token) error {
	if tok.Value > math.MaxUint16 {
		return parseErrorf(tok, ErrLiteralRange, "integer %d does not fit in a 16-bit word", tok.Value)
	}
	return s.pushOperand(Directive{
		Kind:  DirValue,
		Tok:   idx,
		Type:  UntypedType,
		Loc:   LocImmediate,
		Value: tok.Value,
	}, tok)
}

func (s *Session) pushVariable(idx int, tok Token) error {
	v, ok := s.Frame.Lookup(tok.Name)
	if !ok {
		return parseErrorf(tok, ErrUndefined, "undefined variable %q", tok.Name)
	}
	return s.pushOperand(Directive{
		Kind:         DirValue,
		Tok:          idx,
		Type:         v.Type,
		PointerDepth: v.PointerDepth,
		Loc:          LocFrame,
		Addr:         v.Address,
	}, tok)
}

// pushCall pushes a call marker. The callee is only named in the emitted
// call instruction; whether it exists is not checked here.
func (s *Session) pushCall(idx int, tok Token) error {
	return s.pushMarker(Directive{Kind: DirCall, Tok: idx}, tok)
}

// pushDeclaration parses "var [Type [*...]] name" and pushes a declaration
// operand. The name token becomes the directive's token.
func (s *Session) pushDeclaration(varIdx int) error {
	d := Directive{Kind: DirDeclaration, Tok: varIdx}

	typed := false
	switch s.peek().Type {
	case U16, I16, VOID:
		typed = true
	case IDENTIFIER:
		next := s.peekAt(1).Type
		typed = next == IDENTIFIER || next == STAR
	}
	if typed {
		typeTok := s.advance()
		t, ok := s.Types.Resolve(typeTok)
		if !ok {
			return parseErrorf(typeTok, ErrUndefined, "unknown type %s", describe(typeTok))
		}
		d.Type = t
		for s.peek().Type == STAR {
			s.advance()
			d.PointerDepth++
		}
	}

	nameIdx := s.pos
	nameTok, err := s.expect(IDENTIFIER, "variable name")
	if err != nil {
		return err
	}
	if typed && d.Type.SizeAt(d.PointerDepth) == 0 {
		return parseErrorf(nameTok, ErrUnexpectedToken, "variable %q cannot have type %s",
			nameTok.Name, TypeString(d.Type, d.PointerDepth))
	}
	d.Tok = nameIdx
	return s.pushOperand(d, nameTok)
}

// nearestOperator returns the index of the topmost pending operator below
// any operands, or -1 when a barrier or the bottom is reached first.
func (s *Session) nearestOperator() int {
	for i := len(s.stack) - 1; i >= 0; i-- {
		k := s.stack[i].Kind
		if k.IsBarrier() {
			return -1
		}
		if k.IsOperator() {
			return i
		}
	}
	return -1
}

// nearestBarrier returns the index of the topmost open parenthesis or call marker, or -1.
func (s *Session) nearestBarrier() int {
	for i := len(s.stack) - 1; i >= 0; i-- {
		if s.stack[i].Kind.IsBarrier() {
			return i
		}
	}
	return -1
}

// reduce reduces pending operators from the top while their precedence is
// at least threshold. A prefix operator always reduces: by the time reduce
// runs its operand is complete, and nothing else can claim it.
func (s *Session) reduce(threshold int) error {
	for {
		i := s.nearestOperator()
		if i < 0 {
			return nil
		}
		op := s.stack[i]
		if op.Kind.Precedence() < threshold && !op.Kind.IsPrefix() {
			return nil
		}
		s.trace("reduce %s at %d of %d (threshold %d)", op.Kind, i, len(s.stack), threshold)
		if err := s.reduceAt(i); err != nil {
			return err
		}
	}
}

// replace swaps stack[from:] for the given directives.
func (s *Session) replace(from int, ds ...Directive) {
	s.stack = append(s.stack[:from], ds...)
}

func (s *Session) reduceAt(i int) error {
	op := s.stack[i]
	opTok := s.Token(op.Tok)

	if i != len(s.stack)-2 || s.stack[i+1].Kind != DirValue {
		if i == len(s.stack)-2 && s.stack[i+1].Kind == DirDeclaration {
			return parseErrorf(opTok, ErrUnexpectedToken, "declaration used as an operand of %q", op.Kind)
		}
		return internalErrorf(opTok.Line, "operator %s at %d has no operand on top of a %d entry stack", op.Kind, i, len(s.stack))
	}
	rhs := s.stack[i+1]

	switch op.Kind {
	case DirDeref:
		res, err := s.reduceDeref(opTok, rhs)
		if err != nil {
			return err
		}
		s.replace(i, res)
		return nil

	case DirAddressOf:
		res, err := s.reduceAddressOf(opTok, rhs)
		if err != nil {
			return err
		}
		s.replace(i, res)
		return nil
	}

	if i == 0 || s.stack[i-1].Kind.IsOperator() || s.stack[i-1].Kind.IsBarrier() {
		return parseErrorf(opTok, ErrUnexpectedToken, "%q has no left operand", op.Kind)
	}
	lhs := s.stack[i-1]

	switch op.Kind {
	case DirAssign:
		var err error
		if lhs.Kind == DirDeclaration {
			err = s.reduceDeclaration(lhs, rhs)
		} else {
			err = s.reduceAssign(opTok, lhs, rhs)
		}
		if err != nil {
			return err
		}
		s.replace(i - 1)
		return nil

	case DirAdd, DirSub, DirMul:
		if lhs.Kind == DirDeclaration {
			return parseErrorf(opTok, ErrUnexpectedToken, "declaration used as an operand of %q", op.Kind)
		}
		res, err := s.reduceArith(op.Kind, opTok, lhs, rhs)
		if err != nil {
			return err
		}
		s.replace(i-1, res)
		return nil
	}

	return internalErrorf(opTok.Line, "no reduction for directive %s", op)
}

// reduceDeref defers the dereference: it is applied when the operand is loaded.
func (s *Session) reduceDeref(opTok Token, d Directive) (Directive, error) {
	if d.PointerDepth == 0 {
		return d, typeErrorf(opTok.Line, "cannot dereference non-pointer of type %s", TypeString(d.Type, d.PointerDepth))
	}
	d.Deref++
	d.PointerDepth--
	return d, nil
}

func (s *Session) reduceAddressOf(opTok Token, d Directive) (Directive, error) {
	if !addressable(d) {
		return d, parseErrorf(opTok, ErrUnexpectedToken, "cannot take the address of a %s operand", d.Loc)
	}
	s.gen.address(d)
	s.gen.push(R0)
	return Directive{
		Kind:         DirValue,
		Tok:          d.Tok,
		Type:         d.Type,
		PointerDepth: d.PointerDepth + 1,
		Loc:          LocEvalStack,
	}, nil
}

// checkScalar rejects values that cannot be held in a register.
func (s *Session) checkScalar(d Directive) error {
	if d.isScalar() {
		return nil
	}
	line := s.Token(d.Tok).Line
	if d.Type.Primitive == PrimVoid {
		return newError(KindType, line, ErrTypeMismatch, "void value used in an expression")
	}
	return newError(KindType, line, ErrUnsupported, "%s values can only be declared and addressed", TypeString(d.Type, d.PointerDepth))
}

// reduceDeclaration completes "var name = value": the value becomes the
// variable's slot on the evaluation stack.
func (s *Session) reduceDeclaration(decl, value Directive) error {
	nameTok := s.Token(decl.Tok)
	if err := s.checkScalar(value); err != nil {
		return err
	}
	t, depth := decl.Type, decl.PointerDepth
	if t == nil {
		t, depth = value.Type, value.PointerDepth
		if value.untyped() {
			t = U16Type
		}
	} else if !assignable(t, depth, value) {
		return typeErrorf(nameTok.Line, "cannot initialize %s %q with %s",
			TypeString(t, depth), nameTok.Name, TypeString(value.Type, value.PointerDepth))
	}
	if err := checkLiteral(nameTok.Line, t, value); err != nil {
		return err
	}

	s.gen.materialize(value)
	return s.declare(nameTok, t, depth, s.Frame.Depth()-1)
}

func (s *Session) declare(nameTok Token, t *TypeDescriptor, depth, address int) error {
	v, err := s.Frame.Declare(nameTok.Name, nameTok.Line, t, depth, address)
	if err != nil {
		return internalErrorf(nameTok.Line, "%v", err)
	}
	s.trace("declare %s %s at frame address %d", TypeString(v.Type, v.PointerDepth), v.Name, v.Address)
	return nil
}

// reduceAssign stores into an existing variable or dereferenced pointer.
func (s *Session) reduceAssign(opTok Token, lhs, rhs Directive) error {
	if !addressable(lhs) {
		return parseErrorf(opTok, ErrUnexpectedToken, "left side of \"=\" is not assignable")
	}
	if err := s.checkScalar(lhs); err != nil {
		return err
	}
	if err := s.checkScalar(rhs); err != nil {
		return err
	}
	if !assignable(lhs.Type, lhs.PointerDepth, rhs) {
		return typeErrorf(opTok.Line, "cannot assign %s to %s",
			TypeString(rhs.Type, rhs.PointerDepth), TypeString(lhs.Type, lhs.PointerDepth))
	}
	if err := checkLiteral(opTok.Line, lhs.Type, rhs); err != nil {
		return err
	}
	s.gen.load(rhs, R1)
	s.gen.address(lhs)
	s.gen.str(R0, R1)
	return nil
}

var arithOps = map[DirectiveKind]string{
	DirAdd: "add",
	DirSub: "sub",
	DirMul: "mul",
}

func (s *Session) reduceArith(kind DirectiveKind, opTok Token, lhs, rhs Directive) (Directive, error) {
	if err := s.checkScalar(lhs); err != nil {
		return lhs, err
	}
	if err := s.checkScalar(rhs); err != nil {
		return rhs, err
	}

	res := lhs
	switch {
	case lhs.untyped() && rhs.untyped():
	case lhs.untyped():
		if !assignable(rhs.Type, rhs.PointerDepth, lhs) {
			return res, s.mismatch(opTok, kind, lhs, rhs)
		}
		if err := checkLiteral(opTok.Line, rhs.Type, lhs); err != nil {
			return res, err
		}
		res = rhs
	case rhs.untyped():
		if !assignable(lhs.Type, lhs.PointerDepth, rhs) {
			return res, s.mismatch(opTok, kind, lhs, rhs)
		}
		if err := checkLiteral(opTok.Line, lhs.Type, rhs); err != nil {
			return res, err
		}
	case !sameType(lhs, rhs):
		return res, s.mismatch(opTok, kind, lhs, rhs)
	}

	// Stack operands are popped top down before any frame slot is
	// addressed, so slot offsets are computed against the final depth.
	if rhs.Loc == LocEvalStack {
		rhs = s.gen.load(rhs, R2)
	}
	if lhs.Loc == LocEvalStack {
		lhs = s.gen.load(lhs, R1)
	}
	s.gen.load(rhs, R2)
	s.gen.load(lhs, R1)
	s.gen.arith(arithOps[kind], R1, R2)
	s.gen.push(R1)

	return Directive{
		Kind:         DirValue,
		Tok:          res.Tok,
		Type:         res.Type,
		PointerDepth: res.PointerDepth,
		Loc:          LocEvalStack,
	}, nil
}

// checkLiteral rejects an untyped literal that does not fit the integer
// type t it takes on.
func checkLiteral(line int, t *TypeDescriptor, v Directive) error {
	if literalFits(t, v) {
		return nil
	}
	return newError(KindType, line, ErrLiteralRange, "integer %d does not fit in %s", v.Value, t.Name)
}

func (s *Session) mismatch(opTok Token, kind DirectiveKind, lhs, rhs Directive) error {
	return typeErrorf(opTok.Line, "mismatched operands of %q: %s and %s", kind,
		TypeString(lhs.Type, lhs.PointerDepth), TypeString(rhs.Type, rhs.PointerDepth))
}

// closeParen reduces back to the nearest "(" or call marker and replaces
// the bracketed span with its value.
func (s *Session) closeParen(tok Token) error {
	if s.expectOperand {
		// Only an empty argument list may close right after its opening.
		b := len(s.stack) - 1
		if b < 0 || s.stack[b].Kind != DirCall || s.stack[b].Args > 0 {
			return parseErrorf(tok, ErrUnexpectedToken, "expected an operand before \")\"")
		}
		return s.emitCall(b)
	}
	if err := s.reduce(precNone); err != nil {
		return err
	}
	b := s.nearestBarrier()
	if b < 0 {
		return parseErrorf(tok, ErrUnbalanced, "unmatched \")\"")
	}
	if len(s.stack) != b+2 {
		return parseErrorf(tok, ErrUnexpectedToken, "expected one expression before \")\"")
	}

	if s.stack[b].Kind == DirCall {
		if err := s.pushArgument(b); err != nil {
			return err
		}
		return s.emitCall(b)
	}
	s.replace(b, s.stack[b+1])
	return nil
}

// emitCall calls the function named by the marker at b, whose arguments
// are all on the evaluation stack, and leaves its result there.
func (s *Session) emitCall(b int) error {
	marker := s.stack[b]
	callee := s.Token(marker.Tok)
	s.gen.call(callee.Name, marker.Args)
	s.trace("call %s with %d args", callee.Name, marker.Args)
	s.replace(b, Directive{
		Kind: DirValue,
		Tok:  marker.Tok,
		Type: UntypedType,
		Loc:  LocEvalStack,
	})
	s.expectOperand = false
	return nil
}

// comma finishes the current call argument.
func (s *Session) comma(tok Token) error {
	if s.expectOperand {
		return parseErrorf(tok, ErrUnexpectedToken, "missing argument before \",\"")
	}
	if err := s.reduce(precNone); err != nil {
		return err
	}
	b := s.nearestBarrier()
	if b < 0 || s.stack[b].Kind != DirCall {
		return parseErrorf(tok, ErrUnexpectedToken, "\",\" outside of a call")
	}
	if len(s.stack) != b+2 {
		return parseErrorf(tok, ErrUnexpectedToken, "expected one expression per argument")
	}
	if err := s.pushArgument(b); err != nil {
		return err
	}
	s.expectOperand = true
	return nil
}

// pushArgument moves the value above the call marker at b onto the
// evaluation stack.
func (s *Session) pushArgument(b int) error {
	arg := s.stack[b+1]
	if err := s.checkScalar(arg); err != nil {
		return err
	}
	s.gen.materialize(arg)
	s.stack[b].Args++
	s.replace(b + 1)
	return nil
}

// endStatement reduces everything, completes a bare declaration or
// consumes an expression value into r1, and checks the stack is empty.
func (s *Session) endStatement(tok Token) error {
	if s.expectOperand && len(s.stack) > 0 {
		return parseErrorf(tok, ErrUnexpectedToken, "expected an operand before \";\"")
	}
	if err := s.reduce(precNone); err != nil {
		return err
	}
	if b := s.nearestBarrier(); b >= 0 {
		return parseErrorf(s.Token(s.stack[b].Tok), ErrUnbalanced, "unclosed \"(\"")
	}

	switch len(s.stack) {
	case 0:
	case 1:
		d := s.stack[0]
		s.stack = s.stack[:0]
		if err := s.finish(d); err != nil {
			return err
		}
	default:
		return parseErrorf(tok, ErrUnexpectedToken, "malformed statement: %d entries left after reduction", len(s.stack))
	}

	if temps := s.Frame.Depth() - s.Frame.LiveWords(); temps != 0 {
		return internalErrorf(tok.Line, "%d evaluation stack words left after statement", temps)
	}
	return nil
}

// finish completes the last directive of a statement.
func (s *Session) finish(d Directive) error {
	nameTok := s.Token(d.Tok)
	switch d.Kind {
	case DirDeclaration:
		if d.Type == nil {
			return parseErrorf(nameTok, ErrUnexpectedToken, "declaration of %q needs a type or an initializer", nameTok.Name)
		}
		size := d.Type.SizeAt(d.PointerDepth)
		address := s.Frame.Depth()
		s.gen.zero(size)
		return s.declare(nameTok, d.Type, d.PointerDepth, address)

	case DirValue:
		if d.isScalar() {
			s.gen.load(d, R1)
			return nil
		}
		if d.Type.Primitive == PrimVoid {
			return s.checkScalar(d)
		}
		// Aggregates have no register value; drop what is on the stack.
		if d.Loc == LocEvalStack {
			s.gen.pop(R1)
		}
		return nil
	}
	return internalErrorf(nameTok.Line, "statement ended on %s", d)
}

// Result is the outcome of compiling one source.
type Result struct {
	Tokens  []Token
	Session *Session
}

// Lines returns the emitted instructions.
func (r *Result) Lines() []string { return r.Session.Lines() }

// Assembly returns the emitted instructions, one per line.
func (r *Result) Assembly() string { return r.Session.Assembly() }

// Compile tokenizes src and compiles it in a fresh session. On a compile
// error the partial result is returned with it; its code is not valid.
func Compile(src io.Reader, cfg Config) (*Result, error) {
	tr := cfg.tracer()
	tokens, err := Tokenize(src, WithBufferSize(cfg.BufferSize), WithTracer(tr))
	res := &Result{Tokens: tokens, Session: NewSession()}
	res.Session.SetTracer(tr)
	if err != nil {
		return res, err
	}
	if err := res.Session.Compile(tokens); err != nil {
		return res, err
	}
	return res, nil
}

// CompileString is Compile on an in-memory source with the default configuration.
func CompileString(src string) (*Result, error) {
	return Compile(strings.NewReader(src), DefaultConfig())
}
