package exporter

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// WriteFile writes report to path. The extension selects the format:
// ".xlsx" for a workbook, ".csv" for CSV with a BOM.
func WriteFile(path string, report Report) error {
	var write func(io.Writer) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		write = func(w io.Writer) error { return WriteWorkbook(w, report) }
	case ".csv":
		write = func(w io.Writer) error { return WriteCSV(w, report, true) }
	default:
		return fmt.Errorf("unsupported report extension %q (want .xlsx or .csv)", filepath.Ext(path))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := write(file); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	slog.Info("Wrote catalog report",
		slog.String("file_path", path),
		slog.Int("record_count", len(report.Licenses)))
	return nil
}
