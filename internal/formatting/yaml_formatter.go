package formatting

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// YAMLFormatter provides YAML output formatting
type YAMLFormatter struct {
	options Options
}

// FormatData writes data as YAML. Structs are rendered with their JSON field
// names.
func (f *YAMLFormatter) FormatData(data interface{}) error {
	if record, ok := data.(Record); ok {
		data = record.toMap()
	}

	generic, err := toGeneric(data)
	if err != nil {
		return err
	}

	yamlBytes, err := yaml.Marshal(generic)
	if err != nil {
		return fmt.Errorf("failed to format YAML: %w", err)
	}
	_, err = f.options.Output.Write(yamlBytes)
	return err
}
