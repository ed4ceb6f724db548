package formatting

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	pkgstrings "smartlaunch/pkg/strings"
)

// maxCellWidth truncates long values in table cells.
const maxCellWidth = 100

// TableFormatter provides rich table output formatting
type TableFormatter struct {
	options Options
}

// FormatData writes a Record, or any object, as a KEY/VALUE table.
func (f *TableFormatter) FormatData(data interface{}) error {
	record, ok := data.(Record)
	if !ok {
		generic, err := toGeneric(data)
		if err != nil {
			return err
		}
		obj, ok := generic.(map[string]interface{})
		if !ok {
			_, err := fmt.Fprintln(f.options.Output, PrettyJSON(generic))
			return err
		}
		record = recordFromMap(obj)
	}

	if len(record) == 0 {
		_, err := fmt.Fprintln(f.options.Output, text.FgYellow.Sprint("No data"))
		return err
	}

	t := f.createTable()
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("KEY"),
		text.FgHiCyan.Sprint("VALUE"),
	})
	for _, field := range record {
		t.AppendRow(table.Row{
			text.FgHiCyan.Sprint(field.Key),
			cellValue(field.Value),
		})
	}
	t.Render()
	return nil
}

// createTable creates a new table with standard styling
func (f *TableFormatter) createTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(f.options.Output)
	t.SetStyle(table.StyleRounded)
	return t
}

func cellValue(v interface{}) string {
	var s string
	switch val := v.(type) {
	case nil:
		return ""
	case []string:
		s = strings.Join(val, ", ")
	case []interface{}:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, fmt.Sprintf("%v", item))
		}
		s = strings.Join(parts, ", ")
	default:
		s = fmt.Sprintf("%v", val)
	}

	return pkgstrings.Truncate(s, maxCellWidth)
}

func recordFromMap(obj map[string]interface{}) Record {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	record := make(Record, 0, len(keys))
	for _, k := range keys {
		record = append(record, Field{Key: k, Value: obj[k]})
	}
	return record
}
