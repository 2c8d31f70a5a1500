// Package parser turns uploaded documents into plain text. A registry maps
// file extensions to the parser able to read them; unsupported types are a
// permanent failure, never retried.
package parser

import (
	"path/filepath"
	"strings"

	"github.com/tenderhub/extraction-pipeline/internal/fault"
)

type Parser interface {
	Parse(data []byte) (string, error)
}

var registry = map[string]Parser{
	".txt":  &TextParser{},
	".md":   &TextParser{},
	".csv":  &CSVParser{},
	".xlsx": &ExcelParser{},
	".xlsm": &ExcelParser{},
}

// ForFile picks a parser from the file's explicit type when set, else from
// the filename extension.
func ForFile(filename string, fileType string) (Parser, error) {
	ext := strings.ToLower(fileType)
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(filename))
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	p, ok := registry[ext]
	if !ok {
		return nil, fault.Errorf(fault.KindPermanent, "unsupported file type %q for %s", ext, filename)
	}
	return p, nil
}
