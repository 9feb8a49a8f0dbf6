package compiler

import "fmt"

// TokenType identifies the category of a lexed token.
type TokenType int

const (
	EOF TokenType = iota // sentinel: end of input

	// Literals
	IDENTIFIER // variable / function / struct name
	INTEGER    // decimal integer literal

	// Keywords
	VAR    // "var"
	STRUCT // "struct"
	VOID   // "void"
	U16    // "u16"
	I16    // "i16"

	// Paired delimiters
	LBRACE // {
	RBRACE // }
	LPAREN // (
	RPAREN // )

	// Punctuation
	SEMICOLON // ;
	COMMA     // ,

	// Operators
	ASSIGN // =
	PLUS   // +
	MINUS  // -
	STAR   // * (multiply, or unary dereference)
	AMP    // & (unary address-of)
)

var tokenNames = [...]string{
	EOF:        "EOF",
	IDENTIFIER: "IDENTIFIER",
	INTEGER:    "INTEGER",
	VAR:        "VAR",
	STRUCT:     "STRUCT",
	VOID:       "VOID",
	U16:        "U16",
	I16:        "I16",
	LBRACE:     "LBRACE",
	RBRACE:     "RBRACE",
	LPAREN:     "LPAREN",
	RPAREN:     "RPAREN",
	SEMICOLON:  "SEMICOLON",
	COMMA:      "COMMA",
	ASSIGN:     "ASSIGN",
	PLUS:       "PLUS",
	MINUS:      "MINUS",
	STAR:       "STAR",
	AMP:        "AMP",
}

func (tt TokenType) String() string {
	if int(tt) >= 0 && int(tt) < len(tokenNames) {
		return tokenNames[tt]
	}
	return fmt.Sprintf("TokenType(%d)", int(tt))
}

// keywords maps source text to its keyword TokenType.
var keywords = map[string]TokenType{
	"var":    VAR,
	"struct": STRUCT,
	"void":   VOID,
	"u16":    U16,
	"i16":    I16,
}

// punctuation maps single-byte tokens to their TokenType.
var punctuation = map[byte]TokenType{
	'=': ASSIGN,
	'+': PLUS,
	'-': MINUS,
	'*': STAR,
	'&': AMP,
	';': SEMICOLON,
	',': COMMA,
	'(': LPAREN,
	')': RPAREN,
	'{': LBRACE,
	'}': RBRACE,
}

// Token is a single lexical unit produced by the Scanner. Name is only set
// for identifiers and Value only for integer literals.
type Token struct {
	Type  TokenType
	Name  string
	Value int64
	Line  int // 1-based source line
}

// Text returns the source spelling of the token.
func (t Token) Text() string {
	switch t.Type {
	case IDENTIFIER:
		return t.Name
	case INTEGER:
		return fmt.Sprintf("%d", t.Value)
	case EOF:
		return ""
	}
	for text, tt := range keywords {
		if tt == t.Type {
			return text
		}
	}
	for b, tt := range punctuation {
		if tt == t.Type {
			return string(b)
		}
	}
	return t.Type.String()
}

func (t Token) String() string {
	return fmt.Sprintf("%-10s %-14q  line %d", t.Type, t.Text(), t.Line)
}
