package main

import (
	"context"
	"fmt"
	"os"

	"github.com/wudi/pdfops/generator"
)

func runMerge(args []string) error {
	var (
		c        common
		compress bool
	)
	fs := newFlagSet("merge", "-out x.pdf a.pdf b.pdf [...]")
	c.register(fs)
	fs.BoolVar(&compress, "compress", false, "deduplicate and compress the output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("%w: no input documents", errUsage)
	}
	if err := requireOut(&c); err != nil {
		return err
	}
	sources := make([][]byte, 0, fs.NArg())
	for _, path := range fs.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		sources = append(sources, data)
	}
	g := generator.New(generator.Config{Compress: compress, Logger: c.logger()})
	out, err := g.Merge(context.Background(), sources)
	if err != nil {
		return err
	}
	return c.write(out)
}
