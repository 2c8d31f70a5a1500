package parser

import (
	"bytes"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/tenderhub/extraction-pipeline/internal/fault"
)

type ExcelParser struct{}

// Parse flattens every sheet into tab-joined rows, each sheet prefixed by
// its name so downstream extraction keeps the table context.
func (p *ExcelParser) Parse(data []byte) (string, error) {
	excelFile, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fault.Errorf(fault.KindParse, "error opening Excel file: %v", err)
	}
	defer excelFile.Close()

	var sb strings.Builder
	for _, sheet := range excelFile.GetSheetList() {
		rows, err := excelFile.GetRows(sheet)
		if err != nil {
			return "", fault.Errorf(fault.KindParse, "error reading sheet %s: %v", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}

		sb.WriteString("# ")
		sb.WriteString(sheet)
		sb.WriteString("\n")
		for _, row := range rows {
			sb.WriteString(strings.Join(row, "\t"))
			sb.WriteString("\n")
		}
	}
	return strings.TrimSpace(sb.String()), nil
}
