package parser

import (
	"bytes"
	"encoding/csv"
	"io"
	"strings"

	"github.com/tenderhub/extraction-pipeline/internal/fault"
)

type CSVParser struct{}

// Parse renders the CSV as lines of comma-joined cells. Ragged rows are
// tolerated; a structurally broken file is a parse failure.
func (p *CSVParser) Parse(data []byte) (string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	var sb strings.Builder
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fault.Wrap(fault.KindParse, err)
		}
		sb.WriteString(strings.Join(record, ", "))
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String()), nil
}
