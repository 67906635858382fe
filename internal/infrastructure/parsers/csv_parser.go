package parsers

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// CSVParser parses delimited text files. Spanish open-data exports are
// usually semicolon separated; the delimiter is sniffed from the header.
type CSVParser struct {
	config *ParserConfig
}

// NewCSVParser creates a new CSV parser
func NewCSVParser(config *ParserConfig) *CSVParser {
	if config == nil {
		config = DefaultParserConfig()
	}
	return &CSVParser{
		config: config,
	}
}

// Parse reads and parses a CSV file from disk
func (p *CSVParser) Parse(ctx context.Context, filePath string) (*ParseResult, error) {
	file, err := openChecked(filePath, "CSV", p.config.MaxFileSize)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return p.ParseStream(ctx, file)
}

// ParseStream reads and parses CSV data from r
func (p *CSVParser) ParseStream(ctx context.Context, r io.Reader) (*ParseResult, error) {
	text, enc, err := readText(r)
	if err != nil {
		return nil, err
	}

	csvReader := csv.NewReader(bytes.NewReader(text))
	csvReader.Comma = p.config.CSVDelimiter
	if csvReader.Comma == 0 {
		csvReader.Comma = sniffDelimiter(text)
	}
	csvReader.TrimLeadingSpace = p.config.TrimWhitespace
	csvReader.FieldsPerRecord = -1
	csvReader.LazyQuotes = true

	header, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	if p.config.TrimWhitespace {
		for i := range header {
			header[i] = strings.TrimSpace(header[i])
		}
	}

	records := make([]Record, 0)
	totalRows := 0
	skippedRows := 0

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		row, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		totalRows++
		if err != nil {
			// Skip malformed rows but continue parsing
			skippedRows++
			continue
		}

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
		Format:      "CSV",
		Encoding:    enc,
	}, nil
}

func (p *CSVParser) rowToRecord(header, row []string) Record {
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
func (p *CSVParser) SupportedFormats() []string {
	return []string{".csv", ".tsv"}
}

// sniffDelimiter picks the most frequent candidate delimiter on the first line.
func sniffDelimiter(text []byte) rune {
	line := text
	if i := bytes.IndexByte(text, '\n'); i >= 0 {
		line = text[:i]
	}

	best, bestCount := ',', 0
	for _, c := range []rune{';', ',', '\t', '|'} {
		if n := bytes.Count(line, []byte(string(c))); n > bestCount {
			best, bestCount = c, n
		}
	}
	return best
}

// isEmptyRow checks if a row contains only empty strings
func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
