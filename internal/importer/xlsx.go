package importer

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// xlsxSource streams product rows from the first sheet of an XLSX workbook.
// excelize's row iterator reads the sheet incrementally, keeping memory flat
// for large workbooks.
type xlsxSource struct {
	file *excelize.File
	rows *excelize.Rows
	idx  columnIndex
	line int
}

// openXLSX opens path as a streaming XLSX row source. The first row of the
// first sheet is the header; a workbook with no sheets, no rows, or a header
// missing the required columns fails with ErrNoHeader.
func openXLSX(path string) (RowSource, error) {
	file, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		file.Close()
		return nil, ErrNoHeader
	}

	rows, err := file.Rows(sheets[0])
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("read xlsx rows: %w", err)
	}

	if !rows.Next() {
		rows.Close()
		file.Close()
		return nil, ErrNoHeader
	}
	header, err := rows.Columns()
	if err != nil {
		rows.Close()
		file.Close()
		return nil, fmt.Errorf("read xlsx header: %w", err)
	}

	idx, err := indexColumns(header)
	if err != nil {
		rows.Close()
		file.Close()
		return nil, err
	}

	return &xlsxSource{file: file, rows: rows, idx: idx, line: 1}, nil
}

func (x *xlsxSource) Next() (Row, error) {
	if !x.rows.Next() {
		if err := x.rows.Error(); err != nil {
			return Row{}, fmt.Errorf("read xlsx: %w", err)
		}
		return Row{}, io.EOF
	}
	x.line++

	record, err := x.rows.Columns()
	if err != nil {
		// One unreadable row does not abort the sheet.
		return Row{Line: x.line, Err: fmt.Errorf("malformed xlsx row: %v", err)}, nil
	}

	return buildRow(x.line, record, x.idx), nil
}

func (x *xlsxSource) Close() error {
	x.rows.Close()
	return x.file.Close()
}
