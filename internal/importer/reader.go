package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/Nandanaskartha/acme-product-uploader/internal/store"
)

// ErrNoHeader is returned when an upload is empty or its header row is
// missing the required product columns. This is a job-level failure: without
// a usable header no row can be interpreted.
var ErrNoHeader = errors.New("file is empty or missing a usable header row")

// Row is one data row pulled from an upload. Either Input is a validated
// product candidate, or Err describes why this row was rejected. Row-level
// errors never abort the stream.
type Row struct {
	Line  int
	Input store.ProductInput
	Err   error
}

// RowSource lazily yields rows from an upload. Next returns io.EOF after the
// last row; any other error is unrecoverable for the whole job.
type RowSource interface {
	Next() (Row, error)
	Close() error
}

// columnIndex maps the canonical product columns to their position in the
// header row, -1 when absent.
type columnIndex struct {
	sku, name, description, price, active int
}

// indexColumns locates the product columns in a header row. Matching is
// case-insensitive with surrounding whitespace ignored.
func indexColumns(header []string) (columnIndex, error) {
	idx := columnIndex{sku: -1, name: -1, description: -1, price: -1, active: -1}
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "sku":
			idx.sku = i
		case "name":
			idx.name = i
		case "description":
			idx.description = i
		case "price":
			idx.price = i
		case "active":
			idx.active = i
		}
	}
	if idx.sku < 0 || idx.name < 0 || idx.price < 0 {
		return idx, ErrNoHeader
	}
	return idx, nil
}

// buildRow converts one record into a Row using the column index.
func buildRow(line int, record []string, idx columnIndex) Row {
	cell := func(i int) string {
		if i < 0 || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	input := store.ProductInput{
		SKU:         cell(idx.sku),
		Name:        cell(idx.name),
		Description: cell(idx.description),
		Price:       cell(idx.price),
		Active:      true,
	}
	if raw := cell(idx.active); raw != "" {
		active, err := strconv.ParseBool(strings.ToLower(raw))
		if err != nil {
			return Row{Line: line, Err: fmt.Errorf("invalid active value %q", raw)}
		}
		input.Active = active
	}

	if err := input.Validate(); err != nil {
		return Row{Line: line, Err: err}
	}
	return Row{Line: line, Input: input}
}

// csvSource streams product rows from a CSV file.
type csvSource struct {
	file *os.File
	r    *csv.Reader
	idx  columnIndex
	line int
}

// openCSV opens path as a streaming CSV row source. The header row is
// consumed immediately; an empty file or a header without the sku, name and
// price columns fails with ErrNoHeader.
func openCSV(path string) (RowSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}

	r := csv.NewReader(sanitizedReader(file))
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		file.Close()
		if err == io.EOF {
			return nil, ErrNoHeader
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	idx, err := indexColumns(header)
	if err != nil {
		file.Close()
		return nil, err
	}

	// Lock the expected field count to the header width so short and long
	// rows surface as per-row errors below.
	r.FieldsPerRecord = len(header)

	return &csvSource{file: file, r: r, idx: idx, line: 1}, nil
}

func (c *csvSource) Next() (Row, error) {
	record, err := c.r.Read()
	if err == io.EOF {
		return Row{}, io.EOF
	}
	c.line++

	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			// Structurally bad row: reject it and keep streaming.
			if errors.Is(parseErr.Err, csv.ErrFieldCount) {
				return Row{
					Line: c.line,
					Err:  fmt.Errorf("expected %d columns, got %d", c.r.FieldsPerRecord, len(record)),
				}, nil
			}
			return Row{Line: c.line, Err: fmt.Errorf("malformed csv: %v", parseErr.Err)}, nil
		}
		return Row{}, fmt.Errorf("read csv: %w", err)
	}

	return buildRow(c.line, record, c.idx), nil
}

func (c *csvSource) Close() error {
	return c.file.Close()
}

// countRows exhausts a fresh source to learn the total data row count, so
// percent can be computed exactly during the processing pass. The upload is
// already spooled to local disk, making the extra sequential pass cheap even
// for very large files.
func countRows(src RowSource) (int, error) {
	defer src.Close()

	total := 0
	for {
		_, err := src.Next()
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return 0, err
		}
		total++
	}
}
