package parsers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// JSONParser parses JSON files: an array of objects, a single object, or an
// object wrapping the array under one key (as some open-data APIs return).
type JSONParser struct {
	config *ParserConfig
}

// NewJSONParser creates a new JSON parser
func NewJSONParser(config *ParserConfig) *JSONParser {
	if config == nil {
		config = DefaultParserConfig()
	}
	return &JSONParser{
		config: config,
	}
}

// Parse reads and parses a JSON file from disk
func (p *JSONParser) Parse(ctx context.Context, filePath string) (*ParseResult, error) {
	file, err := openChecked(filePath, "JSON", p.config.MaxFileSize)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return p.ParseStream(ctx, file)
}

// ParseStream reads and parses JSON data from r. Numbers are kept as
// json.Number so postal codes and coordinates keep their exact digits.
func (p *JSONParser) ParseStream(ctx context.Context, r io.Reader) (*ParseResult, error) {
	text, enc, err := readText(r)
	if err != nil {
		return nil, err
	}

	decoder := json.NewDecoder(bytes.NewReader(text))
	decoder.UseNumber()

	var doc interface{}
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}

	items, err := recordItems(doc)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(items))
	skipped := 0
	for _, item := range items {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		obj, ok := item.(map[string]interface{})
		if !ok || (p.config.SkipEmptyRows && len(obj) == 0) {
			skipped++
			continue
		}
		records = append(records, Record(obj))
	}

	var columns []string
	if len(records) > 0 {
		columns = make([]string, 0, len(records[0]))
		for key := range records[0] {
			columns = append(columns, key)
		}
		sort.Strings(columns)
	}

	return &ParseResult{
		Records:     records,
		TotalRows:   len(items),
		SkippedRows: skipped,
		Columns:     columns,
		Format:      "JSON",
		Encoding:    enc,
	}, nil
}

func recordItems(doc interface{}) ([]interface{}, error) {
	switch v := doc.(type) {
	case []interface{}:
		return v, nil
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if arr, ok := v[k].([]interface{}); ok && len(arr) > 0 {
				if _, isObj := arr[0].(map[string]interface{}); isObj {
					return arr, nil
				}
			}
		}
		return []interface{}{v}, nil
	default:
		return nil, fmt.Errorf("unexpected JSON document of type %T", doc)
	}
}

// SupportedFormats returns the file extensions this parser supports
func (p *JSONParser) SupportedFormats() []string {
	return []string{".json"}
}
