package export

import (
	"context"

	"sjsage522/storefrontscraper/internal/product"
	"sjsage522/storefrontscraper/pkg/errors"

	"github.com/xuri/excelize/v2"
)

const xlsxSheet = "Products"

// XLSXWriter writes a spreadsheet with one header row
type XLSXWriter struct{}

func NewXLSXWriter() *XLSXWriter {
	return &XLSXWriter{}
}

func (w *XLSXWriter) Format() string {
	return FormatXLSX
}

func (w *XLSXWriter) Destination(outputDir, baseName string) string {
	return fileDestination(outputDir, baseName, FormatXLSX)
}

func (w *XLSXWriter) Write(ctx context.Context, records []product.ExportRecord, dest string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), xlsxSheet); err != nil {
		return errors.NewExport(dest, "name sheet", err)
	}

	if err := setRow(f, 1, Header()); err != nil {
		return errors.NewExport(dest, "write header", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return errors.NewExport(dest, "create header style", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(columns), 1)
	if err := f.SetCellStyle(xlsxSheet, "A1", last, bold); err != nil {
		return errors.NewExport(dest, "style header", err)
	}

	for i, r := range records {
		if err := setRow(f, i+2, row(r)); err != nil {
			return errors.NewExport(dest, "write row "+r.SKU, err)
		}
	}

	if err := f.SetColWidth(xlsxSheet, "B", "B", 60); err != nil {
		return errors.NewExport(dest, "size columns", err)
	}
	if err := ensureDir(dest); err != nil {
		return errors.NewExport(dest, "create output dir", err)
	}
	if err := f.SaveAs(dest); err != nil {
		return errors.NewExport(dest, "save xlsx", err)
	}
	return nil
}

func setRow(f *excelize.File, n int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return f.SetSheetRow(xlsxSheet, cell, &cells)
}
