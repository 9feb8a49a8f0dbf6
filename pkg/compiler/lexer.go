package compiler

import (
	"io"
	"strconv"

	"github.com/npillmayer/schuko/tracing"
)

const (
	// DefaultBufferSize is the lookahead capacity used when no option is given.
	// A word or number must be strictly shorter than the buffer: its end is
	// only known once the byte after it, or end of input, has been seen.
	DefaultBufferSize = 64
	// MinBufferSize is the smallest capacity accepted by WithBufferSize.
	MinBufferSize = 2
	// MaxLiteralDigits bounds the length of a decimal integer literal.
	MaxLiteralDigits = 11

	maxConsecutiveEmptyReads = 100
)

// Scanner turns a byte source into tokens through a fixed-capacity buffer.
// Bytes between r and w are unconsumed; a refill slides them to the front
// of the buffer before reading more, so a token that straddles two reads is
// never split.
type Scanner struct {
	src  io.Reader
	buf  []byte
	r, w int // read and write cursors into buf
	eof  bool
	line int

	tracer tracing.Trace
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithBufferSize sets the lookahead capacity. Values below MinBufferSize are raised to it.
func WithBufferSize(n int) ScannerOption {
	return func(s *Scanner) {
		if n < MinBufferSize {
			n = MinBufferSize
		}
		s.buf = make([]byte, n)
	}
}

// NewScanner returns a Scanner reading from src.
func NewScanner(src io.Reader, opts ...ScannerOption) *Scanner {
	s := &Scanner{src: src, line: 1}
	for _, opt := range opts {
		opt(s)
	}
	if s.buf == nil {
		s.buf = make([]byte, DefaultBufferSize)
	}
	return s
}

// Cap returns the buffer capacity.
func (s *Scanner) Cap() int { return len(s.buf) }

// fill slides the unconsumed tail to the start of the buffer and reads
// more bytes behind it. It fails with ErrTokenLengthExceeded when the whole
// buffer is unconsumed, because no read could make progress.
func (s *Scanner) fill() error {
	if s.r > 0 {
		copy(s.buf, s.buf[s.r:s.w])
		s.w -= s.r
		s.r = 0
	}
	if s.w >= len(s.buf) {
		return tokenizeErrorf(s.line, ErrTokenLengthExceeded,
			"token longer than the %d byte lookahead buffer", len(s.buf))
	}

	for i := maxConsecutiveEmptyReads; i > 0; i-- {
		n, err := s.src.Read(s.buf[s.w:])
		if n < 0 || n > len(s.buf)-s.w {
			return tokenizeErrorf(s.line, io.ErrShortBuffer, "reader returned invalid count %d", n)
		}
		s.w += n
		if err == io.EOF {
			s.eof = true
			return nil
		}
		if err != nil {
			return tokenizeErrorf(s.line, err, "read failed: %v", err)
		}
		if n > 0 {
			s.trace("refill: %d bytes buffered, line %d", s.w, s.line)
			return nil
		}
	}
	return tokenizeErrorf(s.line, io.ErrNoProgress, "reader made no progress")
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}
func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isLetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isAlnum(c byte) bool  { return isLetter(c) || isDigit(c) }

// scanRun consumes the run of bytes matching class that starts at the
// cursor. A run touching the end of the buffer is only finished once a
// refill shows the delimiter or end of input is reached. A run that fills
// the whole buffer is rejected even when end of input follows it, so the
// outcome never depends on how the source splits its reads.
func (s *Scanner) scanRun(class func(byte) bool) (string, error) {
	line := s.line
	n := 1
	for {
		for s.r+n < s.w && class(s.buf[s.r+n]) {
			n++
		}
		if s.r+n < s.w || s.eof {
			break
		}
		if err := s.fill(); err != nil {
			return "", err
		}
	}
	if n >= len(s.buf) {
		return "", tokenizeErrorf(line, ErrTokenLengthExceeded,
			"token longer than the %d byte lookahead buffer", len(s.buf))
	}
	text := string(s.buf[s.r : s.r+n])
	s.r += n
	return text, nil
}

func (s *Scanner) scanInt() (Token, error) {
	line := s.line
	digits, err := s.scanRun(isDigit)
	if err != nil {
		return Token{}, err
	}
	if len(digits) > MaxLiteralDigits {
		return Token{}, tokenizeErrorf(line, ErrLiteralTooLong,
			"integer literal %s has more than %d digits", digits, MaxLiteralDigits)
	}
	v, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return Token{}, tokenizeErrorf(line, ErrLiteralTooLong, "bad integer literal %s: %v", digits, err)
	}
	return Token{Type: INTEGER, Value: v, Line: line}, nil
}

func (s *Scanner) scanWord() (Token, error) {
	line := s.line
	word, err := s.scanRun(isAlnum)
	if err != nil {
		return Token{}, err
	}
	if kw, ok := keywords[word]; ok {
		return Token{Type: kw, Line: line}, nil
	}
	return Token{Type: IDENTIFIER, Name: word, Line: line}, nil
}

// Next returns the next token, or a token of type EOF once the source is
// exhausted. After an error the Scanner must not be used again.
func (s *Scanner) Next() (Token, error) {
	for {
		if s.r >= s.w {
			if s.eof {
				return Token{Type: EOF, Line: s.line}, nil
			}
			if err := s.fill(); err != nil {
				return Token{}, err
			}
			continue
		}

		c := s.buf[s.r]
		switch {
		case isSpace(c):
			if c == '\n' {
				s.line++
			}
			s.r++
			continue
		case isDigit(c):
			return s.scanInt()
		case isLetter(c):
			return s.scanWord()
		}

		if tt, ok := punctuation[c]; ok {
			s.r++
			return Token{Type: tt, Line: s.line}, nil
		}
		return Token{}, tokenizeErrorf(s.line, ErrUnexpectedByte, "unexpected byte %q", c)
	}
}

// Tokenize reads src to the end and returns its tokens, without a trailing
// EOF token. Input consisting only of whitespace yields an empty slice.
func Tokenize(src io.Reader, opts ...ScannerOption) ([]Token, error) {
	s := NewScanner(src, opts...)
	var tokens []Token
	for {
		tok, err := s.Next()
		if err != nil {
			return tokens, err
		}
		if tok.Type == EOF {
			return tokens, nil
		}
		tokens = append(tokens, tok)
	}
}
