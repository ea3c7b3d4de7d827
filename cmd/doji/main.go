// Command doji is the Dōji scripting engine's CLI: run a script, disassemble
// its compiled bytecode, or drop into an interactive REPL.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/olekukonko/tablewriter"
	"github.com/peterh/liner"
	"gopkg.in/urfave/cli.v1"

	"github.com/ravern/doji/bytecode"
	"github.com/ravern/doji/compiler"
	"github.com/ravern/doji/engine"
	"github.com/ravern/doji/internal/xlog"
	"github.com/ravern/doji/scheduler"
	"github.com/ravern/doji/stdlib"
)

// engineGlobalNames mirrors engine.Context.Compile's globals argument so
// `disasm` resolves the same identifiers a real run would.
func engineGlobalNames() []string {
	return stdlib.GlobalNames()
}

const version = "0.1.0"

var errOut = colorable.NewColorableStderr()

func fatalf(format string, args ...interface{}) {
	color.New(color.FgRed).Fprintf(errOut, "error: "+format+"\n", args...)
	os.Exit(1)
}

var (
	inlineFlag = cli.StringFlag{
		Name:  "inline, e",
		Usage: "evaluate `SOURCE` instead of reading a file",
	}
	configFlag = cli.StringFlag{
		Name:  "config, c",
		Usage: "load engine configuration from `FILE` (TOML)",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "doji"
	app.Usage = "the Dōji embeddable scripting engine"
	app.Version = version
	app.Commands = []cli.Command{
		runCommand,
		disasmCommand,
		replCommand,
	}
	if err := app.Run(os.Args); err != nil {
		fatalf("%v", err)
	}
}

var runCommand = cli.Command{
	Name:      "run",
	Usage:     "evaluate a script and print its final value",
	ArgsUsage: "[script.dj]",
	Flags:     []cli.Flag{inlineFlag, configFlag},
	Action:    runAction,
}

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return err
	}

	driver := scheduler.NewStdDriver()
	b := engine.NewBuilder().WithConfig(cfg).Driver(driver)
	e := b.Build()

	var value interface {
		DebugString() string
	}
	var evalErr error
	if src := c.String("inline"); src != "" {
		v, err := e.EvaluateInline(src)
		value, evalErr = v, err
	} else if path := c.Args().First(); path != "" {
		v, err := e.EvaluateFile(path)
		value, evalErr = v, err
	} else {
		return cli.NewExitError("run: need a script path or --inline SOURCE", 1)
	}
	if err := driver.Wait(); err != nil {
		xlog.Default.Warn("driver goroutines reported an error after completion", "err", err)
	}
	if evalErr != nil {
		return cli.NewExitError(evalErr.Error(), 1)
	}
	fmt.Println(value.DebugString())
	return nil
}

var disasmCommand = cli.Command{
	Name:      "disasm",
	Usage:     "print a script's compiled bytecode listing",
	ArgsUsage: "[script.dj]",
	Flags:     []cli.Flag{inlineFlag},
	Action:    disasmAction,
}

func disasmAction(c *cli.Context) error {
	var source string
	if src := c.String("inline"); src != "" {
		source = src
	} else if path := c.Args().First(); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		source = string(data)
	} else {
		return cli.NewExitError("disasm: need a script path or --inline SOURCE", 1)
	}

	fn, err := compiler.Compile(source, engineGlobalNames())
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	printDisasmTable(os.Stdout, fn)
	return nil
}

// printDisasmTable renders fn's code (and its nested functions' code), one
// row per instruction, via tablewriter; it walks the instructions itself
// rather than reusing bytecode.Disassemble's text.
func printDisasmTable(w io.Writer, fn *bytecode.Function) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"offset", "op", "operand"})
	appendDisasmRows(table, fn)
	table.Render()
}

func appendDisasmRows(table *tablewriter.Table, fn *bytecode.Function) {
	for i, instr := range fn.Code {
		op := instr.Op()
		row := []string{fmt.Sprintf("%04d", i), op.String(), ""}
		if op.HasOperand() {
			row[2] = fmt.Sprintf("%d", instr.Operand())
		}
		table.Append(row)
	}
	for _, c := range fn.Constants {
		if c.Kind == bytecode.ConstFunction {
			appendDisasmRows(table, c.Fn)
		}
	}
}

var replCommand = cli.Command{
	Name:   "repl",
	Usage:  "start an interactive read-eval-print loop",
	Flags:  []cli.Flag{configFlag},
	Action: replAction,
}

func replAction(c *cli.Context) error {
	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return err
	}
	e := engine.NewBuilder().WithConfig(cfg).Driver(scheduler.NewStdDriver()).Build()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	bold := color.New(color.Bold)
	for {
		input, err := line.Prompt("doji> ")
		if err == liner.ErrPromptAborted || err == io.EOF {
			return nil
		}
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if rest, ok := strings.CutPrefix(input, ":code "); ok {
			fn, err := compiler.Compile(rest, engineGlobalNames())
			if err != nil {
				color.New(color.FgRed).Fprintln(errOut, err)
				continue
			}
			fmt.Print(bytecode.Disassemble(fn))
			continue
		}

		v, err := e.EvaluateInline(input)
		if err != nil {
			color.New(color.FgRed).Fprintln(errOut, err)
			continue
		}
		bold.Println(v.DebugString())
	}
}

func loadConfig(path string) (engine.Config, error) {
	if path == "" {
		return engine.DefaultConfig(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return engine.Config{}, err
	}
	defer f.Close()
	return engine.LoadConfig(bufio.NewReader(f))
}
