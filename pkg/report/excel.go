package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ExportExcel writes records as an XLSX workbook: one header row, one row
// per record. When fields is nil the column set is inferred.
func ExportExcel(w io.Writer, fields []string, records []map[string]any) error {
	if len(records) == 0 {
		return fmt.Errorf("no records to export")
	}
	if fields == nil {
		fields = inferFields(records)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Sheet1"

	for i, h := range fields {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	for row, rec := range records {
		for i, field := range fields {
			cell, _ := excelize.CoordinatesToCellName(i+1, row+2)
			f.SetCellValue(sheet, cell, formatValue(rec[field]))
		}
	}

	_, err := f.WriteTo(w)
	return err
}
