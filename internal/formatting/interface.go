// Package formatting renders command results as a table, JSON or YAML.
package formatting

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// OutputFormat represents the desired output format
type OutputFormat string

const (
	FormatTable OutputFormat = "table" // Rich table output
	FormatJSON  OutputFormat = "json"  // JSON output
	FormatYAML  OutputFormat = "yaml"  // YAML output
)

// Options configures the formatter behavior
type Options struct {
	Format OutputFormat
	Output io.Writer // defaults to os.Stdout
}

// Formatter writes data in one output format.
type Formatter interface {
	FormatData(data interface{}) error
}

// Field is one labelled value of a Record.
type Field struct {
	Key   string
	Value interface{}
}

// Record is an ordered list of fields. Tables keep the order; JSON and YAML
// render it as an object.
type Record []Field

// ParseFormat validates an --output flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (use table, json or yaml)", s)
	}
}

// NewFormatter creates the formatter for options.Format.
func NewFormatter(options Options) Formatter {
	if options.Output == nil {
		options.Output = os.Stdout
	}

	switch options.Format {
	case FormatJSON:
		return &JSONFormatter{options: options}
	case FormatYAML:
		return &YAMLFormatter{options: options}
	default:
		return &TableFormatter{options: options}
	}
}
