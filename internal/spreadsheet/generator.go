package spreadsheet

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	sheetName = "Sheet1"
	colWidth  = 18
)

// Generator serializes structured JSON into a single-worksheet XLSX
// workbook. The operation is pure and deterministic: identical input yields
// an identical sheet structure, so tests re-parse rather than byte-compare.
type Generator struct {
	logger *slog.Logger
}

func NewGenerator(logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{logger: logger}
}

// ToSpreadsheet branches on the shape of data:
//
//   - sequence of objects: the header row is the key order of the FIRST
//     element; each element then contributes one row whose cells follow that
//     element's OWN declared key order. Rows with heterogeneous keys are not
//     re-aligned to the header — callers relying on column alignment must
//     feed uniform records.
//   - empty sequence: a sheet with no rows at all, not even a header.
//   - single object: header ("field","value") plus one row per entry.
//
// Any other shape fails with ErrUnsupportedDataShape.
func (g *Generator) ToSpreadsheet(data []byte) ([]byte, error) {
	start := time.Now()

	shape, err := InspectShape(data)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			g.logger.Warn("spreadsheet.close_error", "error", err)
		}
	}()

	var rows, cols int
	switch shape.Kind {
	case KindRecords:
		rows, cols, err = g.writeRecords(f, shape.Records)
	case KindSingle:
		rows, cols, err = g.writeSingle(f, shape.Single)
	}
	if err != nil {
		return nil, err
	}

	if cols > 0 {
		last, err := excelize.ColumnNumberToName(cols)
		if err != nil {
			return nil, fmt.Errorf("xlsx column name: %w", err)
		}
		if err := f.SetColWidth(sheetName, "A", last, colWidth); err != nil {
			return nil, fmt.Errorf("xlsx column width: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	g.logger.Debug("spreadsheet.generated",
		"rows", rows,
		"cols", cols,
		"bytes", buf.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func (g *Generator) writeRecords(f *excelize.File, records []Record) (rows, cols int, err error) {
	if len(records) == 0 {
		return 0, 0, nil
	}

	header := make([]any, 0, len(records[0]))
	for _, k := range records[0].Keys() {
		header = append(header, k)
	}
	if err := g.writeRow(f, 1, header); err != nil {
		return 0, 0, err
	}
	if err := g.boldRow(f, 1, len(header)); err != nil {
		return 0, 0, err
	}
	cols = len(header)

	for i, rec := range records {
		cells := make([]any, 0, len(rec))
		for _, field := range rec {
			cells = append(cells, cellValue(field.Value))
		}
		if err := g.writeRow(f, i+2, cells); err != nil {
			return 0, 0, err
		}
		if len(cells) > cols {
			cols = len(cells)
		}
	}
	return len(records) + 1, cols, nil
}

func (g *Generator) writeSingle(f *excelize.File, rec Record) (rows, cols int, err error) {
	if err := g.writeRow(f, 1, []any{"field", "value"}); err != nil {
		return 0, 0, err
	}
	if err := g.boldRow(f, 1, 2); err != nil {
		return 0, 0, err
	}
	for i, field := range rec {
		if err := g.writeRow(f, i+2, []any{field.Key, stringify(field.Value)}); err != nil {
			return 0, 0, err
		}
	}
	return len(rec) + 1, 2, nil
}

func (g *Generator) writeRow(f *excelize.File, row int, cells []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("xlsx cell name: %w", err)
	}
	if err := f.SetSheetRow(sheetName, cell, &cells); err != nil {
		return fmt.Errorf("xlsx row %d: %w", row, err)
	}
	return nil
}

func (g *Generator) boldRow(f *excelize.File, row, width int) error {
	if width == 0 {
		return nil
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("xlsx style: %w", err)
	}
	first, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("xlsx cell name: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(width, row)
	if err != nil {
		return fmt.Errorf("xlsx cell name: %w", err)
	}
	if err := f.SetCellStyle(sheetName, first, last, style); err != nil {
		return fmt.Errorf("xlsx header style: %w", err)
	}
	return nil
}

// cellValue maps a decoded JSON value to a native cell type. Nested
// containers are rendered as compact JSON text.
func cellValue(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if fl, err := t.Float64(); err == nil {
			return fl
		}
		return t.String()
	case string, bool:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

// stringify renders any value as text for field/value rows.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}
