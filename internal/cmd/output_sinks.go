package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/voidhaul/voidhaul/internal/output"
)

type outputSink struct {
	writer io.Writer
	close  func() error
	path   string
}

// addOutputFlags registers --output-format and --out on a reporting command.
func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json|yaml|markdown")
	cmd.Flags().String("out", "", "Write output to a file (default stdout)")
}

func resolveOutputFormat(cmd *cobra.Command) (output.Format, error) {
	value, err := cmd.Flags().GetString("output-format")
	if err != nil {
		return "", err
	}
	return output.ParseFormat(value)
}

func openSink(path string) (*outputSink, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || trimmed == "-" {
		return &outputSink{writer: os.Stdout, close: func() error { return nil }, path: "-"}, nil
	}

	// #nosec G301 -- output directories use 0755 like the store
	if err := os.MkdirAll(filepath.Dir(trimmed), 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	// #nosec G304 -- path comes from the operator's --out flag
	file, err := os.Create(trimmed)
	if err != nil {
		return nil, err
	}
	return &outputSink{writer: file, close: file.Close, path: trimmed}, nil
}

// emit renders datasets in the requested format. Structured formats with
// several datasets are keyed by title in one document.
func emit(cmd *cobra.Command, datasets ...output.Dataset) error {
	format, err := resolveOutputFormat(cmd)
	if err != nil {
		return err
	}
	outPath, err := cmd.Flags().GetString("out")
	if err != nil {
		return err
	}
	sink, err := openSink(outPath)
	if err != nil {
		return err
	}
	defer func() { _ = sink.close() }()

	structured := format == output.FormatJSON || format == output.FormatYAML
	if structured && len(datasets) > 1 {
		combined := make(map[string]any, len(datasets))
		for _, d := range datasets {
			combined[d.Title] = d.Data
		}
		datasets = []output.Dataset{{Data: combined}}
	}

	for i, d := range datasets {
		rendered, err := output.Render(format, d)
		if err != nil {
			return err
		}
		if i > 0 && !structured {
			_, _ = fmt.Fprintln(sink.writer)
		}
		if _, err := fmt.Fprintln(sink.writer, strings.TrimRight(rendered, "\n")); err != nil {
			return err
		}
	}
	return nil
}
