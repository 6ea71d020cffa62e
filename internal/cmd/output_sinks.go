package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/medcityai/pubgate/internal/output"
)

type outputSink struct {
	writer io.Writer
	close  func() error
	path   string
}

func outputExtension(format output.Format) string {
	switch format {
	case output.FormatJSON:
		return "json"
	case output.FormatMarkdown:
		return "md"
	case output.FormatYAML:
		return "yaml"
	default:
		return "txt"
	}
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "table", "Output format: table, json, markdown, yaml")
	cmd.Flags().String("out", "", "Write output to a file instead of stdout")
}

func resolveOutputFormat(cmd *cobra.Command) (output.Format, error) {
	value, err := cmd.Flags().GetString("output")
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

	if err := os.MkdirAll(filepath.Dir(trimmed), 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	file, err := os.Create(trimmed)
	if err != nil {
		return nil, err
	}
	return &outputSink{writer: file, close: file.Close, path: trimmed}, nil
}

// render formats a result with the command's --output flag and writes it to
// --out or stdout.
func render(cmd *cobra.Command, format func(output.Formatter) (string, error)) error {
	fmtValue, err := resolveOutputFormat(cmd)
	if err != nil {
		return err
	}
	rendered, err := format(output.NewFormatter(fmtValue))
	if err != nil {
		return err
	}
	if strings.TrimSpace(rendered) == "" {
		return nil
	}

	outPath, err := cmd.Flags().GetString("out")
	if err != nil {
		return err
	}
	if outPath != "" && filepath.Ext(outPath) == "" {
		outPath += "." + outputExtension(fmtValue)
	}
	sink, err := openSink(outPath)
	if err != nil {
		return err
	}
	defer sink.close() //nolint:errcheck

	if _, err := fmt.Fprintln(sink.writer, rendered); err != nil {
		return err
	}
	if sink.path != "-" && verbose {
		cmd.PrintErrf("Wrote %s\n", sink.path)
	}
	return nil
}
