// Package exporter renders the license catalog as spreadsheet reports.
//
// Two formats are supported:
//
//	WriteCSV       CSV with an optional UTF-8 BOM for Excel compatibility
//	WriteWorkbook  XLSX workbook with a Catalog sheet and a Summary sheet
//
// WriteFile picks the format from the file extension:
//
//	report := exporter.NewReport(catalog, summary, status, time.Now())
//	err := exporter.WriteFile("reports/licenses.xlsx", report)
package exporter
