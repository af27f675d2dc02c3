package display

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AliciaSchep/pginspect/pkg/db"
)

// Export formats, chosen by file extension.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// FormatForFile returns the export format for filename's extension.
// Files without an extension default to CSV.
func FormatForFile(filename string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".csv", "":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported export format %q (use .csv, .json or .yaml)", ext)
	}
}

// WriteResult encodes result to w in the given format.
func WriteResult(w io.Writer, result *db.QueryResult, format string) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, result)
	case FormatJSON:
		return WriteJSON(w, result)
	case FormatYAML:
		return WriteYAML(w, result)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

// WriteCSV writes a header row and one record per row. NULL is written as
// an empty field.
func WriteCSV(w io.Writer, result *db.QueryResult) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(result.Columns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, record := range result.Records() {
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteJSON writes the rows as an array of objects whose keys follow the
// column order.
func WriteJSON(w io.Writer, result *db.QueryResult) error {
	var buf bytes.Buffer
	buf.WriteString("[")
	for i := range result.Rows {
		if i > 0 {
			buf.WriteString(",")
		}
		buf.WriteString("\n  {")
		for j, cell := range result.Values(i) {
			if j > 0 {
				buf.WriteString(", ")
			}
			key, err := json.Marshal(result.Columns[j])
			if err != nil {
				return err
			}
			value, err := cell.MarshalJSON()
			if err != nil {
				return fmt.Errorf("failed to encode column %s: %w", result.Columns[j], err)
			}
			buf.Write(key)
			buf.WriteString(": ")
			buf.Write(value)
		}
		buf.WriteString("}")
	}
	if len(result.Rows) > 0 {
		buf.WriteString("\n")
	}
	buf.WriteString("]\n")

	_, err := w.Write(buf.Bytes())
	return err
}

// WriteYAML writes the rows as a sequence of mappings in column order.
func WriteYAML(w io.Writer, result *db.QueryResult) error {
	doc := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for i := range result.Rows {
		row := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for j, cell := range result.Values(i) {
			var value yaml.Node
			if err := value.Encode(cell.Interface()); err != nil {
				return fmt.Errorf("failed to encode column %s: %w", result.Columns[j], err)
			}
			row.Content = append(row.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: result.Columns[j]},
				&value)
		}
		doc.Content = append(doc.Content, row)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to write YAML: %w", err)
	}
	return enc.Close()
}

// GenerateDefaultExportFilename creates a timestamped filename with ext.
func GenerateDefaultExportFilename(ext string) string {
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return fmt.Sprintf("pginspect_results_%s.%s", timestamp, ext)
}

// SaveResult writes result to filename in the format implied by its
// extension and returns the absolute path. An empty filename gets a
// timestamped CSV name.
func SaveResult(result *db.QueryResult, filename string) (string, error) {
	if filename == "" {
		filename = GenerateDefaultExportFilename(FormatCSV)
	}
	format, err := FormatForFile(filename)
	if err != nil {
		return "", err
	}

	file, err := os.Create(filename)
	if err != nil {
		return "", fmt.Errorf("failed to create file %s: %w", filename, err)
	}
	if err := WriteResult(file, result, format); err != nil {
		_ = file.Close()
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("failed to write file %s: %w", filename, err)
	}

	absPath, err := filepath.Abs(filename)
	if err != nil {
		absPath = filename
	}
	return absPath, nil
}
