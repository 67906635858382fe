package parsers

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

const (
	encodingUTF8        = "UTF-8"
	encodingWindows1252 = "Windows-1252"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// readText reads a whole text source and returns it as UTF-8. Regional
// open-data portals still publish Windows-1252 files, so input that is not
// valid UTF-8 is decoded as such.
func readText(r io.Reader) ([]byte, string, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read source: %w", err)
	}
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if utf8.Valid(raw) {
		return raw, encodingUTF8, nil
	}

	decoded, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode %s source: %w", encodingWindows1252, err)
	}
	return decoded, encodingWindows1252, nil
}

// openChecked opens filePath after enforcing the configured size limit.
func openChecked(filePath, kind string, maxSize int64) (*os.File, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s file: %w", kind, err)
	}

	if maxSize > 0 {
		stat, err := file.Stat()
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to stat file: %w", err)
		}
		if stat.Size() > maxSize {
			file.Close()
			return nil, fmt.Errorf("file size %d exceeds maximum %d", stat.Size(), maxSize)
		}
	}
	return file, nil
}
