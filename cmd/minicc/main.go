package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/npillmayer/schuko/gtrace"
	"github.com/npillmayer/schuko/tracing"
	"github.com/npillmayer/schuko/tracing/gologadapter"

	"minicc/pkg/compiler"
	"minicc/pkg/cpu"
	"minicc/pkg/utils"
)

const usage = "usage: minicc <file> [--tokens] [--symbols] [--run]"

type options struct {
	path        string
	showTokens  bool
	showSymbols bool
	run         bool
}

func parseArgs(args []string) (options, error) {
	var opts options
	if len(args) < 1 {
		return opts, fmt.Errorf("filepath argument missing\n%s", usage)
	}
	opts.path = args[0]
	for _, arg := range args[1:] {
		switch arg {
		case "--tokens":
			opts.showTokens = true
		case "--symbols":
			opts.showSymbols = true
		case "--run":
			opts.run = true
		default:
			return opts, fmt.Errorf("unknown option %q\n%s", arg, usage)
		}
	}
	return opts, nil
}

// registerHostFunctions makes a few host functions callable from programs run with --run.
func registerHostFunctions(c *cpu.CPU, out io.Writer) {
	c.Register("print", 1, func(args []uint16) uint16 {
		fmt.Fprintln(out, args[0])
		return args[0]
	})
	c.Register("max", 2, func(args []uint16) uint16 {
		return max(args[0], args[1])
	})
}

// installTracer makes a debug level Go logger the global syntax tracer,
// writing to w.
func installTracer(w io.Writer) tracing.Trace {
	tr := gologadapter.New()
	tr.SetOutput(w)
	tr.SetTraceLevel(tracing.LevelDebug)
	gtrace.SyntaxTracer = tr
	return tr
}

func run(opts options, cfg compiler.Config, out io.Writer) error {
	file, fullPath, err := utils.OpenSource(opts.path)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", opts.path, err)
	}
	defer file.Close()
	if cfg.Trace {
		compiler.T().Infof("compiling %s", fullPath)
	}

	res, err := compiler.Compile(file, cfg)
	fmt.Fprintf(out, "Count: %d\n", len(res.Tokens))
	if opts.showTokens {
		for _, tok := range res.Tokens {
			fmt.Fprintln(out, " ", tok)
		}
	}
	if err != nil {
		return err
	}

	fmt.Fprint(out, res.Assembly())
	if opts.showSymbols {
		fmt.Fprint(out, res.Session.Types)
		fmt.Fprint(out, res.Session.Frame)
	}

	if opts.run {
		vm := cpu.NewCPU()
		registerHostFunctions(vm, out)
		if err := vm.RunSource(res.Assembly(), cfg.MaxSteps); err != nil {
			return fmt.Errorf("run failed: %w", err)
		}
		fmt.Fprintf(out, "r0=%d r1=%d r2=%d sp=%d steps=%d\n",
			vm.Regs[cpu.RegR0], vm.Regs[cpu.RegR1], vm.Regs[cpu.RegR2], vm.SP, vm.Steps)
	}
	return nil
}

func main() {
	log.SetFlags(0)
	opts, err := parseArgs(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
	cfg := compiler.ConfigFromEnv()
	if cfg.Trace {
		installTracer(os.Stderr)
	}
	if err := run(opts, cfg, os.Stdout); err != nil {
		log.Fatalf("minicc: %v", err)
	}
}
