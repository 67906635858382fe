package parsers

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ExcelParser parses spreadsheet exports (.xlsx) of station listings.
// Only the first sheet is read and its first row is the header.
type ExcelParser struct {
	config *ParserConfig
}

// NewExcelParser creates a new Excel parser
func NewExcelParser(config *ParserConfig) *ExcelParser {
	if config == nil {
		config = DefaultParserConfig()
	}
	return &ExcelParser{
		config: config,
	}
}

// Parse reads and parses an Excel file from disk
func (p *ExcelParser) Parse(ctx context.Context, filePath string) (*ParseResult, error) {
	file, err := openChecked(filePath, "Excel", p.config.MaxFileSize)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return p.ParseStream(ctx, file)
}

// ParseStream reads and parses Excel data from r
func (p *ExcelParser) ParseStream(ctx context.Context, r io.Reader) (*ParseResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read Excel stream: %w", err)
	}
	defer f.Close()

	return p.parseExcelFile(ctx, f)
}

// parseExcelFile extracts data from the first sheet of an Excel file
func (p *ExcelParser) parseExcelFile(ctx context.Context, f *excelize.File) (*ParseResult, error) {
	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, fmt.Errorf("no sheets found in Excel file")
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows from sheet %s: %w", sheetName, err)
	}

	if len(rows) == 0 {
		return &ParseResult{
			Records:     []Record{},
			TotalRows:   0,
			SkippedRows: 0,
			Columns:     []string{},
			Format:      "XLSX",
			Encoding:    encodingUTF8,
		}, nil
	}

	header := rows[0]
	if p.config.TrimWhitespace {
		for i := range header {
			header[i] = strings.TrimSpace(header[i])
		}
	}

	records := make([]Record, 0, len(rows)-1)
	totalRows := 0
	skippedRows := 0

	for rowIdx := 1; rowIdx < len(rows); rowIdx++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		row := rows[rowIdx]
		totalRows++

		if p.config.SkipEmptyRows && isEmptyRow(row) {
			skippedRows++
			continue
		}

		records = append(records, p.rowToRecord(header, row))
	}

	return &ParseResult{
		Records:     records,
		TotalRows:   totalRows,
		SkippedRows: skippedRows,
		Columns:     header,
		Format:      "XLSX",
		Encoding:    encodingUTF8,
	}, nil
}

func (p *ExcelParser) rowToRecord(header, row []string) Record {
	record := make(Record, len(header))
	for i, col := range header {
		if col == "" {
			continue
		}
		value := ""
		if i < len(row) {
			value = row[i]
		}
		if p.config.TrimWhitespace {
			value = strings.TrimSpace(value)
		}
		record[col] = value
	}
	return record
}

// SupportedFormats returns the file extensions this parser supports
func (p *ExcelParser) SupportedFormats() []string {
	return []string{".xlsx"}
}
