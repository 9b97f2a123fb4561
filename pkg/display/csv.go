package display

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AliciaSchep/pgchat/pkg/db"
)

// WriteCSV writes a header row followed by every result row
func WriteCSV(w io.Writer, res *db.QueryResult) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(res.ColumnNames()); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, row := range res.Matrix() {
		record := make([]string, len(row))
		for i, value := range row {
			record[i] = formatValueForCSV(value)
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// SaveCSV writes res to filename and returns the absolute path written.
// An empty filename gets a timestamped default, and ".csv" is appended when missing.
func SaveCSV(res *db.QueryResult, filename string) (string, error) {
	if filename == "" {
		filename = DefaultCSVFilename(time.Now())
	}
	if !strings.HasSuffix(strings.ToLower(filename), ".csv") {
		filename += ".csv"
	}

	file, err := os.Create(filename)
	if err != nil {
		return "", fmt.Errorf("failed to create file %s: %w", filename, err)
	}
	defer file.Close()

	if err := WriteCSV(file, res); err != nil {
		return "", err
	}

	absPath, err := filepath.Abs(filename)
	if err != nil {
		absPath = filename
	}
	return absPath, nil
}

// DefaultCSVFilename names an export after the time it was taken
func DefaultCSVFilename(now time.Time) string {
	return fmt.Sprintf("pgchat_results_%s.csv", now.Format("2006-01-02_15-04-05"))
}

func formatValueForCSV(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case bool:
		if v {
			return "true"
		}
		return "false"
	case map[string]any, []any:
		// json and array columns
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	default:
		return fmt.Sprintf("%v", v)
	}
}
