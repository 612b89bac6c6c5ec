package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/wudi/pdfops/generator"
	"github.com/wudi/pdfops/layout"
)

// tableFile is the JSON input of "generate -type table".
type tableFile struct {
	Title   string     `json:"title"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

func runGenerate(args []string) error {
	var (
		c        common
		kind     string
		inputs   stringList
		title    string
		fontSize float64
		pageSize string
		compress bool
	)
	fs := newFlagSet("generate", "-type text|table|images|combined|markdown|html -in <file> [-in <file>...] -out x.pdf")
	c.register(fs)
	fs.StringVar(&kind, "type", "text", "content type")
	fs.Var(&inputs, "in", "input file; repeat for several images")
	fs.StringVar(&title, "title", "", "document title")
	fs.Float64Var(&fontSize, "font-size", 0, "font size in points (default depends on type)")
	fs.StringVar(&pageSize, "page-size", "A4", "page size: A4, A3, Letter or Legal")
	fs.BoolVar(&compress, "compress", true, "deduplicate and compress the output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	inputs = append(inputs, fs.Args()...)
	if len(inputs) == 0 {
		return fmt.Errorf("%w: at least one -in is required", errUsage)
	}
	if err := requireOut(&c); err != nil {
		return err
	}
	size, ok := layout.PageSizeByName(pageSize)
	if !ok {
		return fmt.Errorf("%w: unknown page size %q", errUsage, pageSize)
	}

	g := generator.New(generator.Config{
		PageSize: size,
		FontSize: fontSize,
		Title:    title,
		Compress: compress,
		Logger:   c.logger(),
	})
	ctx := context.Background()

	var out []byte
	switch kind {
	case "images":
		images := make([][]byte, 0, len(inputs))
		for _, path := range inputs {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}
			images = append(images, data)
		}
		pdf, err := g.FromImages(ctx, images)
		if err != nil {
			return err
		}
		return c.write(pdf)
	case "text", "table", "combined", "markdown", "html":
	default:
		return fmt.Errorf("%w: unknown type %q", errUsage, kind)
	}

	if len(inputs) != 1 {
		return fmt.Errorf("%w: -type %s takes exactly one input", errUsage, kind)
	}
	data, err := os.ReadFile(inputs[0])
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	switch kind {
	case "text":
		out, err = g.FromText(ctx, title, string(data))
	case "table":
		var t tableFile
		if err := json.Unmarshal(data, &t); err != nil {
			return fmt.Errorf("parse table: %w", err)
		}
		if title != "" {
			t.Title = title
		}
		out, err = g.FromTable(ctx, t.Title, t.Headers, t.Rows)
	case "combined":
		var items []generator.Item
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("parse items: %w", err)
		}
		out, err = g.Combined(ctx, items)
	case "markdown":
		out, err = g.Combined(ctx, []generator.Item{generator.Markdown(string(data))})
	case "html":
		out, err = g.Combined(ctx, []generator.Item{generator.HTML(string(data))})
	}
	if err != nil {
		return err
	}
	return c.write(out)
}
