package compiler

import (
	"errors"
	"os"
	"reflect"
	"strings"
	"testing"
)

func compileSession(t *testing.T, src string) *Session {
	t.Helper()
	res, err := CompileString(src)
	if err != nil {
		t.Fatalf("Compile failed: %v\nSource:\n%s", err, src)
	}
	return res.Session
}

func TestCompileCodegen(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		expected []string
	}{
		{
			name:     "Declaration With Literal",
			src:      "var u16 x = 3;",
			expected: []string{"movi #3", "push r0"},
		},
		{
			name: "Add Two Variables",
			src:  "var u16 a = 1; var u16 b = 2; a + b;",
			expected: []string{
				"movi #1", "push r0",
				"movi #2", "push r0",
				"mov r0, sp", "addi #0", "ldr r2, r0",
				"mov r0, sp", "addi #1", "ldr r1, r0",
				"add r1, r2",
				"push r1",
				"pop r1",
			},
		},
		{
			name: "Multiply Before Add",
			src:  "1 + 2 * 3;",
			expected: []string{
				"movi #3", "mov r2, r0",
				"movi #2", "mov r1, r0",
				"mul r1, r2",
				"push r1",
				"pop r2",
				"movi #1", "mov r1, r0",
				"add r1, r2",
				"push r1",
				"pop r1",
			},
		},
		{
			name: "Pointer Round Trip",
			src:  "var u16 a = 5; var u16 *p = &a; *p;",
			expected: []string{
				"movi #5", "push r0",
				"mov r0, sp", "addi #0", "push r0",
				"mov r0, sp", "addi #0", "ldr r1, r0", "ldr r1, r1",
			},
		},
		{
			name: "Store Through Pointer",
			src:  "var u16 a = 5; var u16 *p = &a; *p = 9;",
			expected: []string{
				"movi #5", "push r0",
				"mov r0, sp", "addi #0", "push r0",
				"movi #9", "mov r1, r0",
				"mov r0, sp", "addi #0", "ldr r0, r0",
				"str r0, r1",
			},
		},
		{
			name: "Bare Declaration",
			src:  "var i16 n; n = 4;",
			expected: []string{
				"movi #0", "push r0",
				"movi #4", "mov r1, r0",
				"mov r0, sp", "addi #0",
				"str r0, r1",
			},
		},
		{
			name: "Call",
			src:  "max(1, 2);",
			expected: []string{
				"movi #1", "push r0",
				"movi #2", "push r0",
				"call max",
				"pop r1",
			},
		},
		{
			name:     "Call Without Arguments",
			src:      "tick();",
			expected: []string{"call tick", "pop r1"},
		},
		{
			name: "Block Releases Its Variables",
			src:  "{ var u16 a = 1; var u16 b = 2; }",
			expected: []string{
				"movi #1", "push r0",
				"movi #2", "push r0",
				"mov r0, sp", "addi #2", "mov sp, r0",
			},
		},
		{
			name:     "Empty Statement",
			src:      ";",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := compileSession(t, tt.src)
			if !reflect.DeepEqual(s.Lines(), tt.expected) {
				t.Errorf("expected:\n%s\ngot:\n%s", strings.Join(tt.expected, "\n"), s.Assembly())
			}
		})
	}
}

func TestCompileFrameAddresses(t *testing.T) {
	s := compileSession(t, "var u16 x = 3; var u16 *p = &x; var i16 y; var u16 z = x + 1;")
	want := map[string]int{"x": 0, "p": 1, "y": 2, "z": 3}
	for name, addr := range want {
		v, ok := s.Frame.Lookup(name)
		if !ok {
			t.Errorf("%s not declared", name)
			continue
		}
		if v.Address != addr {
			t.Errorf("%s: expected address %d, got %d", name, addr, v.Address)
		}
	}
	if s.Frame.Depth() != 4 {
		t.Errorf("expected depth 4, got %d", s.Frame.Depth())
	}
	if len(s.stack) != 0 {
		t.Errorf("directive stack not empty: %v", s.stack)
	}
}

// The address computed for &x must name x's slot at the depth where it is
// emitted.
func TestCompileAddressOfOffset(t *testing.T) {
	s := compileSession(t, "var u16 a = 1; var u16 b = 2; var u16 c = 3; var u16 *p = &a;")
	lines := s.Lines()
	tail := lines[len(lines)-3:]
	// depth 3, a at 0: 3 - 1 - 0
	want := []string{"mov r0, sp", "addi #2", "push r0"}
	if !reflect.DeepEqual(tail, want) {
		t.Errorf("expected %v, got %v", want, tail)
	}
}

func TestCompileTypeInference(t *testing.T) {
	s := compileSession(t, `
var i16 a = 1;
var b = a;
var c = 7;
var d = &a;
var e = max(1, 2);`)
	tests := []struct {
		name  string
		typ   *TypeDescriptor
		depth int
	}{
		{"b", I16Type, 0},
		{"c", U16Type, 0},
		{"d", I16Type, 1},
		{"e", U16Type, 0},
	}
	for _, tt := range tests {
		v, _ := s.Frame.Lookup(tt.name)
		if v.Type != tt.typ || v.PointerDepth != tt.depth {
			t.Errorf("%s: expected %s, got %s", tt.name, TypeString(tt.typ, tt.depth), TypeString(v.Type, v.PointerDepth))
		}
	}
}

func TestCompileStructVariables(t *testing.T) {
	s := compileSession(t, `
struct Point { u16 x; u16 y; }
var Point p;
var Point *q = &p;
*q;`)
	p, _ := s.Frame.Lookup("p")
	q, _ := s.Frame.Lookup("q")
	if p.Address != 0 || p.Size() != 2 {
		t.Errorf("unexpected p %+v", p)
	}
	if q.Address != 2 || q.Size() != 1 {
		t.Errorf("unexpected q %+v", q)
	}
	want := []string{
		"movi #0", "push r0", "push r0",
		// &p names the lower word of p, frame slot 1
		"mov r0, sp", "addi #0", "push r0",
	}
	if !reflect.DeepEqual(s.Lines(), want) {
		t.Errorf("expected %v, got %v", want, s.Lines())
	}
}

func TestCompileShadowing(t *testing.T) {
	s := compileSession(t, "var u16 a = 1; { var i16 a = 2; a; } a;")
	lines := s.Lines()
	// outer a read back at depth 1
	tail := lines[len(lines)-3:]
	want := []string{"mov r0, sp", "addi #0", "ldr r1, r0"}
	if !reflect.DeepEqual(tail, want) {
		t.Errorf("expected %v, got %v", want, tail)
	}
	v, _ := s.Frame.Lookup("a")
	if v.Type != U16Type {
		t.Errorf("expected outer a after the block, got %s", v.Type)
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		kind  Kind
		cause error
	}{
		{"Mismatched Operands", "var u16 a = 1; var i16 b = 2; a + b;", KindType, ErrTypeMismatch},
		{"Pointer Plus Literal", "var u16 a = 1; var u16 *p = &a; p + 1;", KindType, ErrTypeMismatch},
		{"Assign Pointer To Scalar", "var u16 a = 1; a = &a;", KindType, ErrTypeMismatch},
		{"Init Pointer With Literal", "var u16 *p = 3;", KindType, ErrTypeMismatch},
		{"Deref Non Pointer", "var u16 a = 1; *a;", KindType, ErrTypeMismatch},
		{"Deref Literal", "*5;", KindType, ErrTypeMismatch},
		{"Void Value", "var void *p; *p;", KindType, ErrTypeMismatch},
		{"Void Arithmetic", "var void *p; *p + 1;", KindType, ErrTypeMismatch},
		{"Struct Copy", "struct P { u16 x; } var P a; var P b = a;", KindType, ErrUnsupported},
		{"Struct Arithmetic", "struct P { u16 x; } var P a; a + 1;", KindType, ErrUnsupported},
		{"Struct Argument", "struct P { u16 x; } var P a; f(a);", KindType, ErrUnsupported},

		{"Undefined Variable", "x;", KindParse, ErrUndefined},
		{"Unknown Type", "var Foo *p;", KindParse, ErrUndefined},
		{"Literal Out Of Range", "70000;", KindParse, ErrLiteralRange},
		{"I16 Init Out Of Range", "var i16 x = 40000;", KindType, ErrLiteralRange},
		{"I16 Assign Out Of Range", "var i16 a = 1; a = 32768;", KindType, ErrLiteralRange},
		{"I16 Arithmetic Out Of Range", "var i16 a = 1; a + 40000;", KindType, ErrLiteralRange},
		{"I16 Arithmetic Literal First", "var i16 a = 1; 65535 * a;", KindType, ErrLiteralRange},
		{"I16 Store Through Pointer", "var i16 a = 1; var i16 *p = &a; *p = 50000;", KindType, ErrLiteralRange},
		{"Unclosed Paren", "(1 + 2;", KindParse, ErrUnbalanced},
		{"Unmatched Paren", "1 + 2);", KindParse, ErrUnbalanced},
		{"Unmatched Brace", "}", KindParse, ErrUnbalanced},
		{"Unterminated Block", "{ var u16 a = 1;", KindParse, ErrUnbalanced},
		{"Unclosed Call", "f(1;", KindParse, ErrUnbalanced},
		{"Missing Right Operand", "1 +;", KindParse, ErrUnexpectedToken},
		{"Missing Operand In Parens", "(1 + );", KindParse, ErrUnexpectedToken},
		{"Two Operands", "1 2;", KindParse, ErrUnexpectedToken},
		{"Leading Operator", "+ 1;", KindParse, ErrUnexpectedToken},
		{"Untyped Bare Declaration", "var x;", KindParse, ErrUnexpectedToken},
		{"Void Variable", "var void v;", KindParse, ErrUnexpectedToken},
		{"Var Mid Statement", "1 + var x;", KindParse, ErrUnexpectedToken},
		{"Declaration Operand", "var u16 x + 1;", KindParse, ErrUnexpectedToken},
		{"Assign To Literal", "5 = 3;", KindParse, ErrUnexpectedToken},
		{"Address Of Literal", "&5;", KindParse, ErrUnexpectedToken},
		{"Chained Assignment", "var u16 a = 1; var u16 b = 2; a = b = 3;", KindParse, ErrUnexpectedToken},
		{"Comma Outside Call", "1, 2;", KindParse, ErrUnexpectedToken},
		{"Trailing Comma", "f(1,);", KindParse, ErrUnexpectedToken},
		{"Empty Parens", "();", KindParse, ErrUnexpectedToken},
		{"Missing Semicolon", "var u16 a = 1", KindParse, ErrUnexpectedToken},
		{"Bad Statement Token", "u16;", KindParse, ErrUnexpectedToken},

		{"Tokenize Error", "var u16 a = 1 @", KindTokenize, ErrUnexpectedByte},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileString(tt.src)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !IsKind(err, tt.kind) {
				t.Errorf("expected %s error, got %v", tt.kind, err)
			}
			if !errors.Is(err, tt.cause) {
				t.Errorf("expected %v, got %v", tt.cause, err)
			}
		})
	}
}

func TestCompileI16LiteralBounds(t *testing.T) {
	for _, src := range []string{
		"var i16 x = 32767;",
		"var i16 a = 1; a = 32767;",
		"var i16 a = 1; a - 32767;",
		"var u16 x = 65535;",
		"var u16 a = 1; a = 40000;",
		"var i16 a = 0 - 40000;",
	} {
		if _, err := CompileString(src); err != nil {
			t.Errorf("%s: %v", src, err)
		}
	}
}

func TestCompileErrorLine(t *testing.T) {
	_, err := CompileString("var u16 a = 1;\nvar u16 b = 2;\n\nc;")
	var ce *Error
	if !errors.As(err, &ce) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if ce.Line != 4 {
		t.Errorf("expected line 4, got %d", ce.Line)
	}
	if !strings.HasPrefix(ce.Error(), "line 4: parse error:") {
		t.Errorf("unexpected message %q", ce.Error())
	}
}

func TestCompileMixedIntegerWidthsAddOnce(t *testing.T) {
	res, err := CompileString("var u16 a = 1; var i16 b = 2; a + b;")
	if err == nil {
		t.Fatal("expected type error")
	}
	for _, line := range res.Lines() {
		if strings.HasPrefix(line, "add ") {
			t.Errorf("no add may be emitted for mismatched operands, got %v", res.Lines())
		}
	}

	res = &Result{Session: compileSession(t, "var u16 a = 1; var u16 b = 2; a + b;")}
	adds := 0
	for _, line := range res.Lines() {
		if strings.HasPrefix(line, "add ") {
			adds++
		}
	}
	if adds != 1 {
		t.Errorf("expected exactly one add, got %d", adds)
	}
}

func TestReduceUnknownDirective(t *testing.T) {
	s := NewSession()
	s.tokens = []Token{{Type: INTEGER, Value: 1, Line: 7}}
	value := Directive{Kind: DirValue, Type: UntypedType, Loc: LocImmediate, Value: 1}
	s.stack = []Directive{value, {Kind: DirectiveKind(99)}, value}

	err := s.reduce(precNone)
	if !IsKind(err, KindInternal) || !errors.Is(err, ErrUnhandledDirective) {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestReduceOperatorWithoutOperand(t *testing.T) {
	s := NewSession()
	s.tokens = []Token{{Type: PLUS, Line: 1}}
	s.stack = []Directive{{Kind: DirAdd}}

	err := s.reduce(precNone)
	if !IsKind(err, KindInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestDirectivePrecedence(t *testing.T) {
	if !(DirMul.Precedence() > DirAdd.Precedence() && DirAdd.Precedence() > DirAssign.Precedence()) {
		t.Error("expected * above + above =")
	}
	if DirSub.Precedence() != DirAdd.Precedence() {
		t.Error("+ and - must share a level")
	}
	if DirValue.Precedence() != precNone || DirValue.IsOperator() {
		t.Error("operands have no precedence")
	}
	for _, k := range []DirectiveKind{DirOpenParen, DirCall} {
		if !k.IsBarrier() || k.IsOperator() {
			t.Errorf("%s must be a barrier", k)
		}
	}
	for _, k := range []DirectiveKind{DirDeref, DirAddressOf} {
		if !k.IsPrefix() {
			t.Errorf("%s must be prefix", k)
		}
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("MINICC_BUFFER_SIZE", "16")
	t.Setenv("MINICC_TRACE", "true")
	t.Setenv("MINICC_MAX_STEPS", "50")
	cfg := ConfigFromEnv()
	if cfg.BufferSize != 16 || !cfg.Trace || cfg.MaxSteps != 50 {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestConfigDefaults(t *testing.T) {
	t.Setenv("MINICC_BUFFER_SIZE", "")
	t.Setenv("MINICC_TRACE", "")
	t.Setenv("MINICC_MAX_STEPS", "")
	if got := ConfigFromEnv(); got != DefaultConfig() {
		t.Errorf("expected defaults, got %+v", got)
	}
}

func TestConfigFromEnvRereads(t *testing.T) {
	t.Setenv("MINICC_BUFFER_SIZE", "16")
	if got := ConfigFromEnv().BufferSize; got != 16 {
		t.Fatalf("expected 16, got %d", got)
	}
	t.Setenv("MINICC_BUFFER_SIZE", "32")
	if got := ConfigFromEnv().BufferSize; got != 32 {
		t.Errorf("expected the changed value 32, got %d", got)
	}
	os.Unsetenv("MINICC_BUFFER_SIZE")
	if got := ConfigFromEnv().BufferSize; got != DefaultBufferSize {
		t.Errorf("expected the default after unsetting, got %d", got)
	}
}
