package compiler

import (
	"github.com/npillmayer/schuko/gtrace"
	"github.com/npillmayer/schuko/tracing"
)

// T traces to the global syntax tracer.
func T() tracing.Trace {
	return gtrace.SyntaxTracer
}

// debugf writes to t at debug level. A nil tracer discards the message.
func debugf(t tracing.Trace, format string, args ...any) {
	if t != nil {
		t.Debugf(format, args...)
	}
}

// WithTracer traces refills of the scanner to t.
func WithTracer(t tracing.Trace) ScannerOption {
	return func(s *Scanner) {
		s.tracer = t
	}
}

func (s *Scanner) trace(format string, args ...any) { debugf(s.tracer, format, args...) }

// SetTracer traces the reductions of the session to t. Nil switches
// tracing off.
func (s *Session) SetTracer(t tracing.Trace) { s.tracer = t }

func (s *Session) trace(format string, args ...any) { debugf(s.tracer, format, args...) }

// tracer picks the trace sink of a compilation: the configured tracer,
// else the global syntax tracer when tracing is switched on.
func (c Config) tracer() tracing.Trace {
	if c.Tracer != nil {
		return c.Tracer
	}
	if c.Trace {
		return T()
	}
	return nil
}
