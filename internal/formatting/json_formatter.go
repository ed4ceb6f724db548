package formatting

import (
	"encoding/json"
	"fmt"
)

// JSONFormatter provides structured JSON output formatting
type JSONFormatter struct {
	options Options
}

// FormatData writes data as indented JSON.
func (f *JSONFormatter) FormatData(data interface{}) error {
	if record, ok := data.(Record); ok {
		data = record.toMap()
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format JSON: %w", err)
	}
	_, err = fmt.Fprintln(f.options.Output, string(b))
	return err
}
