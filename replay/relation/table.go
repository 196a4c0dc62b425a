package relation

import (
	"fmt"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/wbrown/janus-replay/replay"
)

// TableFormatter renders relations as markdown tables
type TableFormatter struct {
	// MaxWidth is the maximum width for a cell
	MaxWidth int
	// TruncateString is appended to truncated cells
	TruncateString string
}

// NewTableFormatter creates a new table formatter with default settings
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{
		MaxWidth:       50,
		TruncateString: "...",
	}
}

// FormatRelation formats a relation as a markdown table
func (tf *TableFormatter) FormatRelation(rel *Relation) string {
	if rel == nil || len(rel.schema) == 0 {
		return "_Empty relation_"
	}
	if rel.IsEmpty() {
		return fmt.Sprintf("_Columns: %v_\n\n_No rows_", rel.Columns())
	}

	headers := make([]string, len(rel.schema))
	for i, f := range rel.schema {
		headers[i] = string(f.Name)
	}
	rows := make([][]string, len(rel.tuples))
	for i, t := range rel.tuples {
		row := make([]string, len(t))
		for j, v := range t {
			row[j] = tf.FormatValue(v)
		}
		rows[i] = row
	}
	return tf.FormatRows(headers, rows)
}

// FormatRows renders already formatted cells under headers
func (tf *TableFormatter) FormatRows(headers []string, rows [][]string) string {
	tableString := &strings.Builder{}

	alignment := make([]tw.Align, len(headers))
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}

	table := tablewriter.NewTable(tableString,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header(headers)
	for _, row := range rows {
		table.Append(row)
	}
	table.Render()

	fmt.Fprintf(tableString, "\n_%d rows_\n", len(rows))
	return tableString.String()
}

// FormatValue converts a value to its cell text
func (tf *TableFormatter) FormatValue(val interface{}) string {
	return tf.truncate(tf.formatValue(val))
}

func (tf *TableFormatter) formatValue(val interface{}) string {
	if val == nil {
		return "nil"
	}

	switch v := val.(type) {
	case string:
		return v
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case float32:
		return fmt.Sprintf("%.2f", v)
	case float64:
		return fmt.Sprintf("%.2f", v)
	case bool:
		return fmt.Sprintf("%t", v)
	case time.Time:
		return v.UTC().Format("2006-01-02 15:04:05")
	case replay.Toon:
		return v.String()
	case []interface{}:
		parts := make([]string, len(v))
		for i, x := range v {
			parts[i] = tf.formatValue(x)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case []Tuple:
		parts := make([]string, len(v))
		for i, t := range v {
			cells := make([]string, len(t))
			for j, x := range t {
				cells[j] = tf.formatValue(x)
			}
			parts[i] = "(" + strings.Join(cells, " ") + ")"
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (tf *TableFormatter) truncate(s string) string {
	if tf.MaxWidth <= 0 || len(s) <= tf.MaxWidth {
		return s
	}
	cut := tf.MaxWidth - len(tf.TruncateString)
	if cut < 0 {
		cut = 0
	}
	return s[:cut] + tf.TruncateString
}
