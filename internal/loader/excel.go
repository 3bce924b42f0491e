package loader

import (
	"errors"
	"os"

	xlsx "github.com/360EntSecGroup-Skylar/excelize/v2"
	"github.com/anrid/xls"

	"github.com/bdu-carp/risk-dashboard/internal/domain"
)

// readXLSX reads the first worksheet of an Office Open XML workbook.
func readXLSX(path string) (*domain.Table, error) {
	wb, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, err
	}
	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("missing header row")
	}
	return fromRecords(path, rows[0], rows[1:])
}

// readXLS reads the first worksheet of a legacy BIFF workbook.
func readXLS(path string) (*domain.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	wb, err := xls.OpenReader(f, "utf-8")
	if err != nil {
		return nil, err
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, errors.New("workbook has no sheets")
	}

	var rows [][]string
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			continue
		}
		var cols []string
		for j := 0; j <= row.LastCol(); j++ {
			cols = append(cols, row.Col(j))
		}
		rows = append(rows, trimTrailing(cols))
	}
	if len(rows) == 0 {
		return nil, errors.New("missing header row")
	}
	return fromRecords(path, rows[0], rows[1:])
}

// trimTrailing drops empty cells after the last populated one; legacy
// workbooks report one column past the last cell.
func trimTrailing(cols []string) []string {
	n := len(cols)
	for n > 0 && cols[n-1] == "" {
		n--
	}
	return cols[:n]
}
