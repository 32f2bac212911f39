package spreadsheet

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/sheetsnap/sheetsnap/internal/common"
)

func sheetRows(t *testing.T, out []byte) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) != 1 {
		t.Fatalf("expected a single worksheet, got %v", sheets)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	return rows
}

func TestRecordsUniformKeys(t *testing.T) {
	g := NewGenerator(nil)
	out, err := g.ToSpreadsheet([]byte(`[{"name":"A","age":5},{"name":"B","age":6}]`))
	if err != nil {
		t.Fatalf("ToSpreadsheet() error = %v", err)
	}
	rows := sheetRows(t, out)
	want := [][]string{
		{"name", "age"},
		{"A", "5"},
		{"B", "6"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("rows = %v, want %v", rows, want)
	}
}

func TestHeaderUsesFirstElementKeyOrder(t *testing.T) {
	g := NewGenerator(nil)
	out, err := g.ToSpreadsheet([]byte(`[{"zulu":1,"alpha":2,"mike":3}]`))
	if err != nil {
		t.Fatalf("ToSpreadsheet() error = %v", err)
	}
	rows := sheetRows(t, out)
	if !reflect.DeepEqual(rows[0], []string{"zulu", "alpha", "mike"}) {
		t.Fatalf("header = %v, want declared key order", rows[0])
	}
}

func TestHeterogeneousRowsKeepOwnKeyOrder(t *testing.T) {
	// Rows are written column-by-declared-order, not re-aligned to the
	// header. Documented quirk.
	g := NewGenerator(nil)
	out, err := g.ToSpreadsheet([]byte(`[{"a":1,"b":2},{"b":9,"c":8}]`))
	if err != nil {
		t.Fatalf("ToSpreadsheet() error = %v", err)
	}
	rows := sheetRows(t, out)
	if !reflect.DeepEqual(rows[0], []string{"a", "b"}) {
		t.Fatalf("header = %v", rows[0])
	}
	if !reflect.DeepEqual(rows[2], []string{"9", "8"}) {
		t.Fatalf("second data row = %v, want values in its own key order", rows[2])
	}
}

func TestEmptySequenceHasNoRows(t *testing.T) {
	g := NewGenerator(nil)
	out, err := g.ToSpreadsheet([]byte(`[]`))
	if err != nil {
		t.Fatalf("ToSpreadsheet() error = %v", err)
	}
	if rows := sheetRows(t, out); len(rows) != 0 {
		t.Fatalf("expected zero rows (no header), got %v", rows)
	}
}

func TestSingleMappingFieldValueRows(t *testing.T) {
	g := NewGenerator(nil)
	out, err := g.ToSpreadsheet([]byte(`{"a":1,"b":2}`))
	if err != nil {
		t.Fatalf("ToSpreadsheet() error = %v", err)
	}
	rows := sheetRows(t, out)
	want := [][]string{
		{"field", "value"},
		{"a", "1"},
		{"b", "2"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("rows = %v, want %v", rows, want)
	}
}

func TestHeaderIsBold(t *testing.T) {
	g := NewGenerator(nil)
	out, err := g.ToSpreadsheet([]byte(`[{"name":"A"}]`))
	if err != nil {
		t.Fatalf("ToSpreadsheet() error = %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer func() { _ = f.Close() }()

	styleID, err := f.GetCellStyle("Sheet1", "A1")
	if err != nil {
		t.Fatalf("GetCellStyle() error = %v", err)
	}
	style, err := f.GetStyle(styleID)
	if err != nil {
		t.Fatalf("GetStyle() error = %v", err)
	}
	if style.Font == nil || !style.Font.Bold {
		t.Fatalf("header cell style = %+v, want bold font", style)
	}
}

func TestUnsupportedShapes(t *testing.T) {
	g := NewGenerator(nil)
	for _, data := range []string{`"scalar"`, `42`, `null`, `true`, `[1,2,3]`, `[["nested"]]`} {
		if _, err := g.ToSpreadsheet([]byte(data)); !errors.Is(err, common.ErrUnsupportedDataShape) {
			t.Fatalf("ToSpreadsheet(%s) error = %v, want ErrUnsupportedDataShape", data, err)
		}
	}
}

func TestDeterministicOutputStructure(t *testing.T) {
	g := NewGenerator(nil)
	data := []byte(`[{"k":"v","n":1.5}]`)
	a, err := g.ToSpreadsheet(data)
	if err != nil {
		t.Fatalf("ToSpreadsheet() error = %v", err)
	}
	b, err := g.ToSpreadsheet(data)
	if err != nil {
		t.Fatalf("ToSpreadsheet() error = %v", err)
	}
	if !reflect.DeepEqual(sheetRows(t, a), sheetRows(t, b)) {
		t.Fatalf("identical input produced different sheet structure")
	}
}
