package parsers

import (
	"context"
	"io"
)

// Record is one source row keyed by the source's own column or element names.
type Record map[string]interface{}

// ParseResult contains the parsed records and parsing statistics
type ParseResult struct {
	Records     []Record
	TotalRows   int
	SkippedRows int
	Columns     []string
	Format      string
	Encoding    string
}

// FileParser is the interface all source format readers implement
type FileParser interface {
	// Parse reads and parses the file at the given path
	Parse(ctx context.Context, filePath string) (*ParseResult, error)

	// ParseStream reads and parses from r
	ParseStream(ctx context.Context, r io.Reader) (*ParseResult, error)

	// SupportedFormats returns the file extensions this parser supports
	SupportedFormats() []string
}

// ParserConfig holds configuration for all parsers
type ParserConfig struct {
	// SkipEmptyRows drops rows whose cells are all blank
	SkipEmptyRows bool

	// TrimWhitespace trims cell values and column names
	TrimWhitespace bool

	// MaxFileSize is the maximum file size in bytes (0 = unlimited)
	MaxFileSize int64

	// CSVDelimiter forces a delimiter. Zero sniffs it from the header line.
	CSVDelimiter rune

	// XMLRecordElement names the element that wraps one record. Empty treats
	// any element whose children are all leaves as a record.
	XMLRecordElement string
}

// DefaultParserConfig returns sensible defaults
func DefaultParserConfig() *ParserConfig {
	return &ParserConfig{
		SkipEmptyRows:  true,
		TrimWhitespace: true,
		MaxFileSize:    50 * 1024 * 1024, // 50 MB
	}
}
