package parsers

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// XMLParser streams record elements out of an XML document. A record is an
// element whose children are all leaves; each leaf becomes one field. This
// matches the row/field layout of Socrata-style open-data exports.
type XMLParser struct {
	config *ParserConfig
}

// NewXMLParser creates a new XML parser
func NewXMLParser(config *ParserConfig) *XMLParser {
	if config == nil {
		config = DefaultParserConfig()
	}
	return &XMLParser{
		config: config,
	}
}

// Parse reads and parses an XML file from disk
func (p *XMLParser) Parse(ctx context.Context, filePath string) (*ParseResult, error) {
	file, err := openChecked(filePath, "XML", p.config.MaxFileSize)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return p.ParseStream(ctx, file)
}

type xmlFrame struct {
	name     string
	attrs    []xml.Attr
	text     strings.Builder
	fields   Record
	order    []string
	children int
	nested   bool
}

// ParseStream reads and parses XML data from r
func (p *XMLParser) ParseStream(ctx context.Context, r io.Reader) (*ParseResult, error) {
	decoder := xml.NewDecoder(r)
	decoder.CharsetReader = charsetReader

	var (
		stack   []*xmlFrame
		records []Record
		columns []string
		seen    = map[string]bool{}
		total   int
		skipped int
	)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read XML: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			stack = append(stack, &xmlFrame{
				name:   t.Name.Local,
				attrs:  t.Attr,
				fields: Record{},
			})

		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}

		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("unbalanced XML end element %s", t.Name.Local)
			}
			frame := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			var parent *xmlFrame
			if len(stack) > 0 {
				parent = stack[len(stack)-1]
			}

			switch {
			case frame.children == 0 && parent != nil && !p.isRecordElement(frame):
				parent.addField(frame.name, p.leafValue(frame))
				parent.children++

			case p.isRecordElement(frame):
				total++
				if parent != nil {
					parent.children++
					parent.nested = true
				}
				if p.config.SkipEmptyRows && frame.empty() {
					skipped++
					continue
				}
				for _, attr := range frame.attrs {
					if _, ok := frame.fields[attr.Name.Local]; !ok {
						frame.addField(attr.Name.Local, attr.Value)
					}
				}
				for _, col := range frame.order {
					if !seen[col] {
						seen[col] = true
						columns = append(columns, col)
					}
				}
				records = append(records, frame.fields)

			default:
				if parent != nil {
					parent.children++
					parent.nested = true
				}
			}
		}
	}

	return &ParseResult{
		Records:     records,
		TotalRows:   total,
		SkippedRows: skipped,
		Columns:     columns,
		Format:      "XML",
		Encoding:    encodingUTF8,
	}, nil
}

func (p *XMLParser) isRecordElement(f *xmlFrame) bool {
	if p.config.XMLRecordElement != "" {
		return f.name == p.config.XMLRecordElement
	}
	return f.children > 0 && !f.nested
}

// leafValue is the element text, or for an empty element its first
// attribute (e.g. <web url="https://..."/>).
func (p *XMLParser) leafValue(f *xmlFrame) string {
	value := f.text.String()
	if p.config.TrimWhitespace {
		value = strings.TrimSpace(value)
	}
	if value == "" && len(f.attrs) > 0 {
		value = f.attrs[0].Value
	}
	return value
}

func (f *xmlFrame) addField(name, value string) {
	if _, exists := f.fields[name]; !exists {
		f.order = append(f.order, name)
	}
	f.fields[name] = value
}

func (f *xmlFrame) empty() bool {
	for _, v := range f.fields {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			return false
		}
	}
	return true
}

// SupportedFormats returns the file extensions this parser supports
func (p *XMLParser) SupportedFormats() []string {
	return []string{".xml"}
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(label) {
	case "iso-8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1.NewDecoder().Reader(input), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(input), nil
	case "iso-8859-15", "latin9":
		return charmap.ISO8859_15.NewDecoder().Reader(input), nil
	default:
		return nil, fmt.Errorf("unsupported XML charset %q", label)
	}
}
