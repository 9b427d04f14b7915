package document

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

func extractWorkbook(path string) (string, int, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", 0, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	var b strings.Builder
	for _, sheet := range sheets {
		fmt.Fprintf(&b, "\n--- Sheet %s ---\n", sheet)
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", len(sheets), fmt.Errorf("sheet %s: %w", sheet, err)
		}
		for _, row := range rows {
			line := strings.TrimRight(strings.Join(row, "\t"), "\t ")
			if line == "" {
				continue
			}
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String(), len(sheets), nil
}
