package luas

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// messageSelector is the status label rendered above the forecast table
const messageSelector = "#cplBody_lblMessage"

// ExtractTable parses the forecast table of a stop's page into rows.
//
// The first table whose own rows hold header cells is used, so a layout
// table wrapped around the forecast table is skipped. Its header row gives the
// column names and every later row with data cells becomes one ForecastRow,
// zipped with the header by position. Rows whose cell count differs from the
// header are dropped and reported in RowFailures. A page without such a table
// returns a *ParseFailure for the whole stop.
func ExtractTable(stopID, html string) (*Extraction, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &ParseFailure{StopID: stopID, RowIndex: -1, Cause: err}
	}

	table := doc.Find("table").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return ownRows(s).ChildrenFiltered("th").Length() > 0
	}).First()
	if table.Length() == 0 {
		return nil, &ParseFailure{StopID: stopID, RowIndex: -1, Cause: ErrNoTable}
	}

	ext := &Extraction{
		Rows:    []ForecastRow{},
		Message: cleanText(doc.Find(messageSelector).First().Text()),
	}

	rowIndex := 0
	ownRows(table).Each(func(_ int, tr *goquery.Selection) {
		if ext.Columns == nil {
			headers := tr.ChildrenFiltered("th")
			if headers.Length() > 0 {
				ext.Columns = columnNames(headers)
			}
			return
		}

		cells := tr.ChildrenFiltered("td")
		if cells.Length() == 0 {
			return
		}

		idx := rowIndex
		rowIndex++
		if cells.Length() != len(ext.Columns) {
			ext.RowFailures = append(ext.RowFailures, &ParseFailure{
				StopID:   stopID,
				RowIndex: idx,
				Cause:    fmt.Errorf("row has %d cells, header has %d", cells.Length(), len(ext.Columns)),
			})
			return
		}

		row := make(ForecastRow, len(ext.Columns))
		cells.Each(func(j int, td *goquery.Selection) {
			row[j] = Cell{Name: ext.Columns[j], Value: cleanText(td.Text())}
		})
		ext.Rows = append(ext.Rows, row)
	})

	if ext.Columns == nil {
		return nil, &ParseFailure{StopID: stopID, RowIndex: -1, Cause: ErrNoTable}
	}

	return ext, nil
}

// ownRows returns the rows of table in document order, excluding rows of
// tables nested inside it or wrapped around it
func ownRows(table *goquery.Selection) *goquery.Selection {
	node := table.Get(0)
	return table.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
		return tr.Closest("table").Get(0) == node
	})
}

// columnNames derives unique column names from header cells.
// Empty headers become "column<i>" and repeats get a "_<n>" suffix.
func columnNames(headers *goquery.Selection) []string {
	names := make([]string, 0, headers.Length())
	seen := make(map[string]bool)
	headers.Each(func(i int, th *goquery.Selection) {
		base := cleanText(th.Text())
		if base == "" {
			base = "column" + strconv.Itoa(i)
		}
		name := base
		for n := 2; seen[name]; n++ {
			name = base + "_" + strconv.Itoa(n)
		}
		seen[name] = true
		names = append(names, name)
	})
	return names
}

// cleanText collapses runs of whitespace, including &nbsp;
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
