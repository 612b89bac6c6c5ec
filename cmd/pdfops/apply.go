package main

import (
	"context"
	"fmt"
	"os"

	"github.com/wudi/pdfops/ops"
	"github.com/wudi/pdfops/pipeline"
)

func runApply(args []string) error {
	var (
		c        common
		in       string
		opsArg   string
		image    string
		password string
		compress bool
		strict   bool
	)
	fs := newFlagSet("apply", "-in a.pdf -ops ops.json|'[...]' [-image wm.png] [-password pw] -out b.pdf")
	c.register(fs)
	fs.StringVar(&in, "in", "", "input document (required)")
	fs.StringVar(&opsArg, "ops", "", "operation list: a JSON file or inline JSON (required)")
	fs.StringVar(&image, "image", "", "image for image watermarks without an embedded buffer")
	fs.StringVar(&password, "password", "", "password of an encrypted input")
	fs.BoolVar(&compress, "compress", false, "deduplicate and compress the output")
	fs.BoolVar(&strict, "strict", false, "reject damaged input instead of repairing it")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if in == "" || opsArg == "" {
		return fmt.Errorf("%w: -in and -ops are required", errUsage)
	}
	if err := requireOut(&c); err != nil {
		return err
	}

	data, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	list, err := ops.Normalize(readOps(opsArg))
	if err != nil {
		return err
	}
	req := pipeline.Request{Document: data, Operations: list, Password: password}
	if image != "" {
		if req.Image, err = os.ReadFile(image); err != nil {
			return fmt.Errorf("read image: %w", err)
		}
	}

	exec := pipeline.NewExecutor(pipeline.Config{Compress: compress, Strict: strict, Logger: c.logger()})
	out, err := exec.Apply(context.Background(), req)
	if err != nil {
		return err
	}
	return c.write(out)
}

// readOps returns the file contents when arg names a readable file and the
// argument itself otherwise.
func readOps(arg string) []byte {
	if data, err := os.ReadFile(arg); err == nil {
		return data
	}
	return []byte(arg)
}
