package display

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/AliciaSchep/pginspect/pkg/db"
)

// NullText is how a NULL cell is shown in the grid.
const NullText = "NULL"

// ColumnInfo represents information about a result column for formatting
type ColumnInfo struct {
	Name      string
	MaxWidth  int
	MinWidth  int
	IsNumeric bool
}

// TableFormatter lays out a result grid with column widths fitted to the
// terminal.
type TableFormatter struct {
	columns       []ColumnInfo
	terminalWidth int
	borderWidth   int // "| " before each column and "|" at the end
}

// NewTableFormatter creates a formatter for columnNames that fits within
// terminalWidth characters.
func NewTableFormatter(columnNames []string, terminalWidth int) *TableFormatter {
	columns := make([]ColumnInfo, len(columnNames))
	for i, name := range columnNames {
		columns[i] = ColumnInfo{
			Name:     name,
			MaxWidth: textWidth(name),
			MinWidth: 5,
		}
	}
	if terminalWidth <= 0 {
		terminalWidth = DefaultWidth
	}

	return &TableFormatter{
		columns:       columns,
		terminalWidth: terminalWidth,
		borderWidth:   len(columnNames)*3 + 1,
	}
}

// AnalyzeData widens columns to fit the sample rows and marks numeric ones.
func (tf *TableFormatter) AnalyzeData(sampleRows [][]db.Value) {
	for _, row := range sampleRows {
		for i, value := range row {
			if i >= len(tf.columns) {
				continue
			}

			if n := textWidth(cellText(value)); n > tf.columns[i].MaxWidth {
				tf.columns[i].MaxWidth = n
			}
			if value.Kind() == db.KindNumber {
				tf.columns[i].IsNumeric = true
			}
		}
	}
}

// CalculateColumnWidths determines column widths for the terminal width.
// Every column gets its minimum first; leftover space goes round-robin to
// columns whose content is still wider than their allotment.
func (tf *TableFormatter) CalculateColumnWidths() []int {
	availableWidth := tf.terminalWidth - tf.borderWidth
	totalColumns := len(tf.columns)

	if totalColumns == 0 {
		return []int{}
	}

	widths := make([]int, totalColumns)

	remainingWidth := availableWidth
	for i := range tf.columns {
		minWidth := max(tf.columns[i].MinWidth, textWidth(tf.columns[i].Name))
		widths[i] = minWidth
		remainingWidth -= minWidth
	}

	if remainingWidth < 0 {
		evenWidth := availableWidth / totalColumns
		for i := range widths {
			widths[i] = max(3, evenWidth)
		}
		return widths
	}

	for remainingWidth > 0 {
		distributed := false
		for i := range tf.columns {
			if remainingWidth <= 0 {
				break
			}
			if widths[i] < tf.columns[i].MaxWidth {
				widths[i]++
				remainingWidth--
				distributed = true
			}
		}
		if !distributed {
			break
		}
	}

	return widths
}

// FormatHeader renders the header line and a separator.
func (tf *TableFormatter) FormatHeader(widths []int) string {
	var header strings.Builder
	header.WriteString("| ")

	for i, col := range tf.columns {
		if i >= len(widths) {
			continue
		}
		header.WriteString(tf.align(i, truncateText(col.Name, widths[i]), widths[i]))
		header.WriteString(" | ")
	}

	line := strings.TrimRight(header.String(), " ")
	return line + "\n" + strings.Repeat("-", textWidth(line)) + "\n"
}

// FormatRow renders one row of cells.
func (tf *TableFormatter) FormatRow(row []db.Value, widths []int) string {
	var result strings.Builder
	result.WriteString("| ")

	for i, value := range row {
		if i >= len(widths) || i >= len(tf.columns) {
			continue
		}
		result.WriteString(tf.align(i, truncateText(cellText(value), widths[i]), widths[i]))
		result.WriteString(" | ")
	}

	return strings.TrimRight(result.String(), " ") + "\n"
}

func (tf *TableFormatter) align(col int, s string, width int) string {
	if tf.columns[col].IsNumeric {
		return padLeft(s, width)
	}
	return padRight(s, width)
}

// RenderResult writes result as a grid fitted to width. Only the first
// sampleRows rows are used to size the columns.
func RenderResult(w io.Writer, result *db.QueryResult, width int) {
	if result == nil || len(result.Columns) == 0 {
		fmt.Fprintln(w, "(no columns)")
		return
	}

	formatter := NewTableFormatter(result.Columns, width)
	rows := make([][]db.Value, result.Len())
	for i := range rows {
		rows[i] = result.Values(i)
	}
	formatter.AnalyzeData(rows[:min(len(rows), sampleRows)])
	widths := formatter.CalculateColumnWidths()

	fmt.Fprint(w, formatter.FormatHeader(widths))
	for _, row := range rows {
		fmt.Fprint(w, formatter.FormatRow(row, widths))
	}
}

const sampleRows = 50

func cellText(v db.Value) string {
	if v.IsNull() {
		return NullText
	}
	// keep each row on one line
	return strings.NewReplacer("\n", `\n`, "\r", `\r`, "\t", " ").Replace(v.String())
}

func textWidth(s string) int {
	return utf8.RuneCountInString(s)
}

func truncateText(s string, maxLen int) string {
	if textWidth(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

func padRight(s string, width int) string {
	if n := textWidth(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

func padLeft(s string, width int) string {
	if n := textWidth(s); n < width {
		return strings.Repeat(" ", width-n) + s
	}
	return s
}
