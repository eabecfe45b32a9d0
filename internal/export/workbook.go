// Package export writes extracted estimates as Excel workbooks.
package export

import (
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/practicos/internal/estimate"
	"github.com/practicos/internal/profile"
)

const (
	ItemsSheet    = "Partidas"
	MetadataSheet = "Metadatos"
	SectionsSheet = "Secciones"

	NoDataMessage   = "No se encontraron datos en el documento"
	NoTablesMessage = "No se encontraron tablas en el documento"

	headerColor = "4F81BD"
	minWidth    = 15
	maxWidth    = 50
)

var itemHeaders = []string{"Página", "Código", "Descripción", "Unidad", "Cantidad", "Precio Unitario", "Importe"}

type styles struct {
	header  int
	cell    int
	wrapped int
	number  int
}

func newStyles(f *excelize.File) (styles, error) {
	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
	var s styles
	var err error
	if s.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 12, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{headerColor}},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
		Border:    border,
	}); err != nil {
		return s, err
	}
	if s.cell, err = f.NewStyle(&excelize.Style{Border: border}); err != nil {
		return s, err
	}
	if s.wrapped, err = f.NewStyle(&excelize.Style{
		Border:    border,
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	}); err != nil {
		return s, err
	}
	// Built-in format 4 is "#,##0.00".
	if s.number, err = f.NewStyle(&excelize.Style{
		Border:    border,
		NumFmt:    4,
		Alignment: &excelize.Alignment{Horizontal: "right"},
	}); err != nil {
		return s, err
	}
	return s, nil
}

// Build lays doc out as a workbook: the summary sheet named by the profile,
// the item sheet and, when they have content, the metadata and section
// sheets. The caller closes the returned file.
func Build(doc *estimate.Document, p *profile.Profile) (*excelize.File, error) {
	f := excelize.NewFile()
	st, err := newStyles(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("export: styles: %w", err)
	}
	b := &builder{f: f, st: st}

	if err := f.SetSheetName(f.GetSheetName(0), p.SheetName); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("export: rename sheet: %w", err)
	}
	steps := []func() error{
		func() error { return b.summarySheet(p.SheetName, doc, p.TableHeaders) },
		func() error { return b.itemsSheet(doc) },
		func() error { return b.metadataSheet(doc) },
		func() error { return b.sectionsSheet(doc) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("export: %w", err)
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

type builder struct {
	f  *excelize.File
	st styles
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func (b *builder) headerRow(sheet string, headers []string) error {
	for i, h := range headers {
		if err := b.f.SetCellValue(sheet, cell(i+1, 1), h); err != nil {
			return err
		}
	}
	return b.f.SetCellStyle(sheet, "A1", cell(len(headers), 1), b.st.header)
}

// finish applies the autofilter over the used range and freezes the header.
func (b *builder) finish(sheet string, cols, rows int) error {
	if err := b.f.AutoFilter(sheet, "A1:"+cell(cols, rows), nil); err != nil {
		return err
	}
	return b.f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

// fitColumns sizes each column to its longest value plus padding, within
// [minWidth, maxWidth].
func (b *builder) fitColumns(sheet string, rows [][]any) error {
	widths := map[int]int{}
	for _, row := range rows {
		for i, v := range row {
			if n := displayLen(v); n > widths[i] {
				widths[i] = n
			}
		}
	}
	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := b.f.SetColWidth(sheet, col, col, float64(min(max(w+2, minWidth), maxWidth))); err != nil {
			return err
		}
	}
	return nil
}

func displayLen(v any) int {
	switch x := v.(type) {
	case nil:
		return 0
	case string:
		return utf8.RuneCountInString(x)
	case float64:
		return len(strconv.FormatFloat(x, 'f', 2, 64)) + 1
	default:
		return utf8.RuneCountInString(fmt.Sprint(x))
	}
}

func (b *builder) valueStyle(v any) int {
	if _, ok := v.(float64); ok {
		return b.st.number
	}
	return b.st.cell
}

func (b *builder) dataRow(sheet string, row int, values []any) error {
	for i, v := range values {
		ref := cell(i+1, row)
		if v != nil {
			if err := b.f.SetCellValue(sheet, ref, v); err != nil {
				return err
			}
		}
		if err := b.f.SetCellStyle(sheet, ref, ref, b.valueStyle(v)); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) summarySheet(sheet string, doc *estimate.Document, headers []string) error {
	row, ok := doc.SummaryRow(headers)
	if !ok {
		return b.f.SetCellValue(sheet, "A1", NoDataMessage)
	}
	if err := b.headerRow(sheet, headers); err != nil {
		return err
	}
	if err := b.dataRow(sheet, 2, row); err != nil {
		return err
	}
	hdr := make([]any, len(headers))
	for i, h := range headers {
		hdr[i] = h
	}
	if err := b.fitColumns(sheet, [][]any{hdr, row}); err != nil {
		return err
	}
	return b.finish(sheet, len(headers), 2)
}

func amount(a estimate.Amount) any {
	if !a.Valid {
		return nil
	}
	return a.Value
}

func text(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// ItemRows returns the rows of the item sheet: parsed table rows followed
// by AI key items.
func ItemRows(doc *estimate.Document) [][]any {
	var rows [][]any
	for _, t := range doc.Tables {
		for _, it := range t.Rows {
			rows = append(rows, []any{
				t.Page, text(it.Code), text(it.Description), text(it.Unit),
				amount(it.Quantity), amount(it.UnitPrice), amount(it.Amount),
			})
		}
	}
	for _, k := range doc.KeyItems {
		rows = append(rows, []any{
			nil, nil, text(string(k.Material)), text(string(k.Units)),
			nil, amount(k.UnitPrice), amount(k.TotalPrice),
		})
	}
	return rows
}

func (b *builder) itemsSheet(doc *estimate.Document) error {
	if _, err := b.f.NewSheet(ItemsSheet); err != nil {
		return err
	}
	rows := ItemRows(doc)
	if len(rows) == 0 {
		return b.f.SetCellValue(ItemsSheet, "A1", NoTablesMessage)
	}
	if err := b.headerRow(ItemsSheet, itemHeaders); err != nil {
		return err
	}
	for i, r := range rows {
		if err := b.dataRow(ItemsSheet, i+2, r); err != nil {
			return err
		}
	}
	hdr := make([]any, len(itemHeaders))
	for i, h := range itemHeaders {
		hdr[i] = h
	}
	if err := b.fitColumns(ItemsSheet, append([][]any{hdr}, rows...)); err != nil {
		return err
	}
	return b.finish(ItemsSheet, len(itemHeaders), len(rows)+1)
}

func (b *builder) twoColumnSheet(sheet string, headers [2]string, widths [2]float64, rows [][2]any) error {
	if _, err := b.f.NewSheet(sheet); err != nil {
		return err
	}
	if err := b.headerRow(sheet, headers[:]); err != nil {
		return err
	}
	if err := b.f.SetColWidth(sheet, "A", "A", widths[0]); err != nil {
		return err
	}
	if err := b.f.SetColWidth(sheet, "B", "B", widths[1]); err != nil {
		return err
	}
	for i, r := range rows {
		row := i + 2
		if err := b.f.SetCellValue(sheet, cell(1, row), r[0]); err != nil {
			return err
		}
		if err := b.f.SetCellValue(sheet, cell(2, row), r[1]); err != nil {
			return err
		}
		if err := b.f.SetCellStyle(sheet, cell(1, row), cell(1, row), b.st.cell); err != nil {
			return err
		}
		if err := b.f.SetCellStyle(sheet, cell(2, row), cell(2, row), b.st.wrapped); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) metadataSheet(doc *estimate.Document) error {
	fields := doc.MergedMetadata()
	if len(fields) == 0 {
		return nil
	}
	rows := make([][2]any, len(fields))
	for i, f := range fields {
		rows[i] = [2]any{f.Label(), f.Value}
	}
	if err := b.twoColumnSheet(MetadataSheet, [2]string{"Campo", "Valor"}, [2]float64{25, 50}, rows); err != nil {
		return err
	}
	return b.finish(MetadataSheet, 2, len(rows)+1)
}

func (b *builder) sectionsSheet(doc *estimate.Document) error {
	if len(doc.Sections) == 0 {
		return nil
	}
	rows := make([][2]any, len(doc.Sections))
	for i, s := range doc.Sections {
		rows[i] = [2]any{s.Name, s.Content}
	}
	if err := b.twoColumnSheet(SectionsSheet, [2]string{"Sección", "Contenido"}, [2]float64{25, 75}, rows); err != nil {
		return err
	}
	return b.f.SetPanes(SectionsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
