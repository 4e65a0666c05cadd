package api

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// OutputFormat selects how CLI commands render results.
type OutputFormat string

const (
	OutputFormatYAML OutputFormat = "yaml"
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatText prints only the recognized text of values that carry
	// one, and falls back to YAML otherwise.
	OutputFormatText OutputFormat = "text"
)

// Texter is implemented by results that have a plain-text rendering.
type Texter interface {
	PlainText() string
}

// globalOutputFormat is set by the root command's --output flag.
var globalOutputFormat = OutputFormatYAML

// ParseOutputFormat validates a --output value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case OutputFormatYAML, OutputFormatJSON, OutputFormatText:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (want yaml, json or text)", s)
}

// SetOutputFormat sets the global output format.
func SetOutputFormat(s string) error {
	f, err := ParseOutputFormat(s)
	if err != nil {
		return err
	}
	globalOutputFormat = f
	return nil
}

// Output writes data to stdout in the configured format.
func Output(data any) error {
	return OutputTo(os.Stdout, globalOutputFormat, data)
}

// OutputToFile writes data to path, picking JSON or YAML from the file
// extension. Anything other than .yaml/.yml is written as JSON.
func OutputToFile(data any, path string) error {
	format := OutputFormatJSON
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = OutputFormatYAML
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := OutputTo(f, format, data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// OutputTo writes data to the given writer in the specified format.
func OutputTo(w io.Writer, format OutputFormat, data any) error {
	switch format {
	case OutputFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case OutputFormatText:
		if t, ok := data.(Texter); ok {
			_, err := fmt.Fprintln(w, t.PlainText())
			return err
		}
		return OutputTo(w, OutputFormatYAML, data)
	case OutputFormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(data)
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}
