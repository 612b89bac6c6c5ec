// Command pdfops edits, generates and merges PDF documents.
//
//	pdfops apply -in a.pdf -ops ops.json -out b.pdf
//	pdfops generate -type text -in notes.txt -out notes.pdf
//	pdfops merge -out all.pdf a.pdf b.pdf
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/wudi/pdfops/observability"
	"github.com/wudi/pdfops/ops"
)

const usage = `Usage: pdfops <command> [flags]

Commands:
  apply     apply an operation list to a document
  generate  build a document from text, tables, images, markdown or HTML
  merge     concatenate documents

Run "pdfops <command> -h" for command flags.
`

// errUsage marks failures caused by bad invocation.
var errUsage = errors.New("usage")

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "apply":
		err = runApply(os.Args[2:])
	case "generate":
		err = runGenerate(os.Args[2:])
	case "merge":
		err = runMerge(os.Args[2:])
	case "-h", "-help", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "pdfops: unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		os.Exit(report(os.Stderr, err))
	}
}

// report prints err and returns the exit code.
func report(w io.Writer, err error) int {
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if errors.Is(err, errUsage) {
		fmt.Fprintf(w, "pdfops: %v\n", err)
		return 2
	}
	var oe *ops.Error
	if errors.As(err, &oe) {
		fmt.Fprintf(w, "pdfops: %s\n", oe.Error())
		return 1
	}
	fmt.Fprintf(w, "pdfops: %v\n", err)
	return 1
}

// common holds flags shared by every command.
type common struct {
	logLevel string
	out      string
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	fs.StringVar(&c.out, "out", "", "output file (required)")
}

func (c *common) logger() observability.Logger {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: observability.ParseLevel(strings.ToLower(c.logLevel))})
	return observability.NewSlogLogger(slog.New(h))
}

func (c *common) write(data []byte) error {
	if err := os.WriteFile(c.out, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// stringList collects a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func newFlagSet(name, synopsis string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: pdfops %s %s\n", name, synopsis)
		fs.PrintDefaults()
	}
	return fs
}

func requireOut(c *common) error {
	if c.out == "" {
		return fmt.Errorf("%w: -out is required", errUsage)
	}
	return nil
}
