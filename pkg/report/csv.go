package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// timestamp formats the current time for export filenames,
// e.g. 2026-09-01_14-05-07.
func timestamp() string {
	return time.Now().UTC().Format("2006-01-02_15-04-05")
}

// exportFilename builds a timestamped CSV filename from a report base name.
func exportFilename(base string) string {
	return fmt.Sprintf("%s_%s.csv", base, timestamp())
}

// inferFields returns the union of record keys in sorted order. Used when no
// definition supplies an explicit column order, such as whole-table dumps.
func inferFields(records []map[string]any) []string {
	seen := map[string]bool{}
	var fields []string
	for _, rec := range records {
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				fields = append(fields, k)
			}
		}
	}
	sort.Strings(fields)
	return fields
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

// RenderCSV serializes records to CSV text with a header row. When fields is
// nil the column set is inferred from the records.
func RenderCSV(fields []string, records []map[string]any) (string, error) {
	if len(records) == 0 {
		return "", fmt.Errorf("no records to export")
	}
	if fields == nil {
		fields = inferFields(records)
	}

	var b strings.Builder
	w := csv.NewWriter(&b)
	if err := w.Write(fields); err != nil {
		return "", fmt.Errorf("write csv header: %w", err)
	}

	row := make([]string, len(fields))
	for _, rec := range records {
		for i, f := range fields {
			row[i] = formatValue(rec[f])
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush csv: %w", err)
	}
	return b.String(), nil
}

// ExportCSVString renders records to CSV and returns the content alongside
// its timestamped filename, for email attachments.
func ExportCSVString(fields []string, records []map[string]any, base string) (content, filename string, err error) {
	content, err = RenderCSV(fields, records)
	if err != nil {
		return "", "", err
	}
	return content, exportFilename(base), nil
}

// ExportCSVFile writes records to a timestamped CSV file under dir, creating
// the directory if needed, and returns the file path.
func ExportCSVFile(dir string, fields []string, records []map[string]any, base string) (string, error) {
	content, err := RenderCSV(fields, records)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	path := filepath.Join(dir, exportFilename(base))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write export file: %w", err)
	}
	return path, nil
}
