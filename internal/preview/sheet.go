package preview

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// MaxSheetRows is the number of data rows shown below the header.
const MaxSheetRows = 100

// ErrNoSheets is returned for workbooks without any sheet.
var ErrNoSheets = errors.New("workbook has no sheets")

// ReadFirstSheet returns the non-blank rows of the first sheet of an xlsx or
// xls workbook as formatted strings.
func ReadFirstSheet(data []byte, ext string) (rows [][]string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse %s: %v", ext, r)
		}
	}()

	switch ext {
	case "xls":
		rows, err = readXLS(data)
	default:
		rows, err = readXLSX(data)
	}
	if err != nil {
		return nil, err
	}
	return dropBlankRows(rows), nil
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoSheets
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

func readXLS(data []byte) ([][]string, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open xls: %w", err)
	}
	if wb.NumSheets() == 0 {
		return nil, ErrNoSheets
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, ErrNoSheets
	}

	var rows [][]string
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, 0, row.LastCol())
		for c := 0; c < row.LastCol(); c++ {
			cells = append(cells, row.Col(c))
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func dropBlankRows(rows [][]string) [][]string {
	out := rows[:0]
	for _, row := range rows {
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				out = append(out, row)
				break
			}
		}
	}
	return out
}

// TableHTML renders a header row plus up to MaxSheetRows data rows. A
// caption marks truncated tables.
func TableHTML(rows [][]string) string {
	if len(rows) == 0 {
		return `<p class="preview__note">Table contains no data.</p>`
	}

	limit := min(len(rows), MaxSheetRows+1)
	header, body := rows[0], rows[1:limit]

	var b strings.Builder
	b.WriteString(`<table class="preview-table">`)
	if len(rows) > MaxSheetRows+1 {
		fmt.Fprintf(&b, "<caption>Showing the first %d rows.</caption>", MaxSheetRows)
	}
	b.WriteString("<thead>")
	writeRow(&b, header, "th")
	b.WriteString("</thead><tbody>")
	if len(body) == 0 {
		b.WriteString("<tr><td></td></tr>")
	}
	for _, row := range body {
		writeRow(&b, row, "td")
	}
	b.WriteString("</tbody></table>")
	return b.String()
}

func writeRow(b *strings.Builder, cells []string, tag string) {
	b.WriteString("<tr>")
	for _, cell := range cells {
		fmt.Fprintf(b, "<%s>%s</%s>", tag, html.EscapeString(cell), tag)
	}
	b.WriteString("</tr>")
}
