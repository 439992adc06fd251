// Command emberc is the thin CLI wrapper around the ember package: it
// parses flags, reads a source file (or drives an interactive REPL),
// and runs the lex->parse->analyze->compile->execute pipeline,
// printing diagnostics or the program's result.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/chzyer/readline"
	"github.com/rs/zerolog"

	"github.com/ember-lang/ember"
)

const version = "emberc 0.1.0"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("emberc", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		help        = fs.Bool("help", false, "show this help message")
		showVersion = fs.Bool("version", false, "print version and exit")
		testMode    = fs.Bool("test", false, "batch/test mode flag (accepted; the file runs the same as without it)")
		interactive = fs.Bool("interactive", false, "start an interactive REPL")
		dumpAST     = fs.Bool("da", false, "dump the AST and raise logging to debug")
		dumpSyms    = fs.Bool("ds", false, "dump symbols/constant pool and raise logging to debug")
		dumpCode    = fs.Bool("dc", false, "dump compiled bytecode/disassembly and raise logging to debug")
		dumpRuntime = fs.Bool("dr", false, "dump runtime state via debugdump on error")
	)
	fs.BoolVar(help, "h", false, "show this help message")
	fs.BoolVar(help, "?", false, "show this help message")
	fs.BoolVar(showVersion, "v", false, "print version and exit")
	fs.BoolVar(testMode, "t", false, "batch/test mode flag (accepted; the file runs the same as without it)")
	fs.BoolVar(interactive, "i", false, "start an interactive REPL")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	if *help {
		fs.Usage()
		return 0
	}
	if *showVersion {
		fmt.Fprintln(stdout, version)
		return 0
	}

	logLevel := zerolog.Disabled
	if *dumpAST || *dumpSyms || *dumpCode {
		logLevel = zerolog.DebugLevel
	}
	log := zerolog.New(stderr).Level(logLevel).With().Timestamp().Logger()

	opts := runOptions{
		testMode:    *testMode,
		dumpAST:     *dumpAST,
		dumpSyms:    *dumpSyms,
		dumpCode:    *dumpCode,
		dumpRuntime: *dumpRuntime,
		log:         log,
	}

	if *interactive {
		return repl(stdout, stderr, opts)
	}

	rest := fs.Args()
	if len(rest) != 1 {
		fmt.Fprintln(stderr, "emberc: expected a single FILE argument")
		fs.Usage()
		return 1
	}

	source, err := os.ReadFile(rest[0])
	if err != nil {
		fmt.Fprintf(stderr, "emberc: %s\n", err)
		return 1
	}

	result, err := execute(string(source), opts, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "emberc: %s\n", err)
		if opts.dumpRuntime {
			fmt.Fprintln(stderr, ember.DumpRuntimeError(err))
		}
		return 1
	}
	fmt.Fprintln(stdout, result.String())
	return 0
}

type runOptions struct {
	testMode    bool
	dumpAST     bool
	dumpSyms    bool
	dumpCode    bool
	dumpRuntime bool
	log         zerolog.Logger
}

// execute drives one source unit through the full pipeline, printing
// the requested debug dumps as it goes.
func execute(source string, opts runOptions, stdout, stderr io.Writer) (ember.Value, error) {
	diags := ember.NewDiagnosticLog()

	lexer := ember.NewLexer(source, diags)
	parser := ember.NewParser(lexer, diags)
	root := parser.Parse()
	if diags.HasErrors() {
		return ember.NilValue(), diags.Err()
	}

	if opts.dumpAST {
		fmt.Fprint(stdout, ember.DumpAST(root))
	}

	bridge := ember.NewNativeBridge()
	analyzer := ember.NewAnalyzer(bridge.NameIndex(), diags)
	if !analyzer.Analyze(root) {
		return ember.NilValue(), diags.Err()
	}

	compiler := ember.NewCompiler()
	prog, err := compiler.Compile(root, len(analyzer.Globals()))
	if err != nil {
		return ember.NilValue(), err
	}

	if opts.dumpSyms {
		fmt.Fprint(stdout, ember.DisassembleSymbols(prog))
		fmt.Fprint(stdout, ember.DisassembleConstants(prog))
	}
	if opts.dumpCode {
		fmt.Fprint(stdout, ember.DisassembleCode(prog, prog.Entry()))
	}

	vm := ember.NewVM(prog, bridge.Funcs())
	vm.SetLogger(opts.log)

	result, err := vm.Run()
	if err != nil {
		if vmErr := vm.Errors().Err(); vmErr != nil {
			return ember.NilValue(), vmErr
		}
		return ember.NilValue(), err
	}
	return result, nil
}

// repl drives an interactive read-eval-print loop with line history
// and editing via chzyer/readline; each line is executed as its own
// source unit with a fresh VM, matching the batch pipeline exactly.
func repl(stdout, stderr io.Writer, opts runOptions) int {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:      "ember> ",
		HistoryFile: "/tmp/.emberc_history",
	})
	if err != nil {
		fmt.Fprintf(stderr, "emberc: %s\n", err)
		return 1
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF or readline.ErrInterrupt
			return 0
		}
		if line == "" {
			continue
		}
		result, err := execute(line, opts, stdout, stderr)
		if err != nil {
			fmt.Fprintf(stderr, "error: %s\n", err)
			continue
		}
		fmt.Fprintln(stdout, result.String())
	}
}
