package compiler

import (
	"github.com/npillmayer/schuko/tracing"
	"github.com/xyproto/env/v2"
)

// DefaultMaxSteps bounds how many instructions a program may run on the CPU.
const DefaultMaxSteps = 100000

// Config holds the settings of one compilation and run.
type Config struct {
	BufferSize int  // tokenizer lookahead capacity in bytes
	Trace      bool // trace refills and reductions to the syntax tracer
	MaxSteps   int  // instruction budget when running the output

	// Tracer receives the trace of this compilation. When nil and Trace is
	// set, gtrace.SyntaxTracer is used.
	Tracer tracing.Trace
}

func DefaultConfig() Config {
	return Config{
		BufferSize: DefaultBufferSize,
		MaxSteps:   DefaultMaxSteps,
	}
}

// ConfigFromEnv reads MINICC_BUFFER_SIZE, MINICC_TRACE and MINICC_MAX_STEPS,
// falling back to the defaults. The environment is re-read on every call.
func ConfigFromEnv() Config {
	env.Load()
	def := DefaultConfig()
	return Config{
		BufferSize: env.Int("MINICC_BUFFER_SIZE", def.BufferSize),
		Trace:      env.Bool("MINICC_TRACE"),
		MaxSteps:   env.Int("MINICC_MAX_STEPS", def.MaxSteps),
	}
}
