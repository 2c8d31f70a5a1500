package parser

import (
	"strings"
	"unicode/utf8"

	"github.com/tenderhub/extraction-pipeline/internal/fault"
)

type TextParser struct{}

func (p *TextParser) Parse(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fault.New(fault.KindParse, "failed to decode text file: not valid utf-8")
	}
	return strings.TrimSpace(string(data)), nil
}
