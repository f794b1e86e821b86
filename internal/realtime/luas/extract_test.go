package luas

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// forecastPage renders a page shaped like the Luas analysis view
func forecastPage(headers []string, rows [][]string) string {
	var b strings.Builder
	b.WriteString(`<html><body><form>`)
	b.WriteString(`<span id="cplBody_lblMessage">Green Line services operating normally</span>`)
	b.WriteString(`<table class="details"><tr>`)
	for _, h := range headers {
		fmt.Fprintf(&b, "<th>%s</th>", h)
	}
	b.WriteString("</tr>")
	for _, row := range rows {
		b.WriteString("<tr>")
		for _, cell := range row {
			fmt.Fprintf(&b, "<td>%s</td>", cell)
		}
		b.WriteString("</tr>")
	}
	b.WriteString(`</table></form></body></html>`)
	return b.String()
}

func TestExtractTableRowsAndOrder(t *testing.T) {
	headers := []string{"Direction", "Destination", "Time"}
	tests := []struct {
		name string
		rows [][]string
	}{
		{"no trams due", nil},
		{"one row", [][]string{{"Inbound", "Broombridge", "00:03"}}},
		{"several rows", [][]string{
			{"Inbound", "Broombridge", "00:03"},
			{"Outbound", "Sandyford", "00:07"},
			{"Inbound", "Parnell", "00:12"},
			{"Outbound", "Bride's Glen", "00:15"},
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ext, err := ExtractTable("1", forecastPage(headers, tc.rows))
			if err != nil {
				t.Fatalf("ExtractTable returned error: %v", err)
			}
			if len(ext.Rows) != len(tc.rows) {
				t.Fatalf("got %d rows, expected %d", len(ext.Rows), len(tc.rows))
			}
			if len(ext.RowFailures) != 0 {
				t.Errorf("unexpected row failures: %v", ext.RowFailures)
			}
			for i, row := range ext.Rows {
				if len(row) != len(headers) {
					t.Errorf("row %d has %d keys, expected %d", i, len(row), len(headers))
				}
				for j, h := range headers {
					if row[j].Name != h {
						t.Errorf("row %d column %d = %q, expected %q", i, j, row[j].Name, h)
					}
					if row[j].Value != tc.rows[i][j] {
						t.Errorf("row %d %s = %q, expected %q", i, h, row[j].Value, tc.rows[i][j])
					}
				}
			}
		})
	}
}

func TestExtractTableDropsMismatchedRows(t *testing.T) {
	page := forecastPage([]string{"Direction", "Destination", "Time"}, [][]string{
		{"Inbound", "Broombridge", "00:03"},
		{"Outbound", "Sandyford"},
		{"Inbound", "Parnell", "00:12"},
		{"Inbound", "Parnell", "00:12", "extra"},
	})

	ext, err := ExtractTable("42", page)
	if err != nil {
		t.Fatalf("ExtractTable returned error: %v", err)
	}
	if len(ext.Rows) != 2 {
		t.Fatalf("got %d rows, expected 2", len(ext.Rows))
	}
	if v, _ := ext.Rows[1].Get("Destination"); v != "Parnell" {
		t.Errorf("second kept row destination = %q, expected Parnell", v)
	}

	if len(ext.RowFailures) != 2 {
		t.Fatalf("got %d row failures, expected 2", len(ext.RowFailures))
	}
	for i, want := range []int{1, 3} {
		rf := ext.RowFailures[i]
		if rf.StopID != "42" || rf.RowIndex != want {
			t.Errorf("row failure %d = {%s %d}, expected {42 %d}", i, rf.StopID, rf.RowIndex, want)
		}
	}
}

func TestExtractTableMalformed(t *testing.T) {
	pages := map[string]string{
		"empty":         "",
		"plain text":    "Service Unavailable",
		"no table":      `<html><body><p>Stop not found</p></body></html>`,
		"table no head": `<table><tr><td>a</td><td>b</td></tr></table>`,
		"broken markup": `<table><tr><th>Direction<th>Time</tr><tr><td>In`,
	}

	for name, page := range pages {
		t.Run(name, func(t *testing.T) {
			ext, err := ExtractTable("7", page)
			if name == "broken markup" {
				// the HTML parser repairs unclosed tags; the short row is dropped
				if err != nil {
					t.Fatalf("ExtractTable returned error: %v", err)
				}
				if len(ext.Rows) != 0 || len(ext.RowFailures) != 1 {
					t.Errorf("got %d rows and %d failures, expected 0 and 1", len(ext.Rows), len(ext.RowFailures))
				}
				return
			}

			var pf *ParseFailure
			if !errors.As(err, &pf) {
				t.Fatalf("expected *ParseFailure, got %v", err)
			}
			if pf.StopID != "7" || pf.RowIndex != -1 {
				t.Errorf("ParseFailure = {%s %d}, expected {7 -1}", pf.StopID, pf.RowIndex)
			}
			if !errors.Is(err, ErrNoTable) {
				t.Errorf("expected ErrNoTable, got %v", err)
			}
		})
	}
}

func TestExtractTableSkipsLayoutTables(t *testing.T) {
	page := `<table><tr><td>logo</td></tr></table>` +
		forecastPage([]string{"Direction", "Time"}, [][]string{{"Inbound", "DUE"}})

	ext, err := ExtractTable("3", page)
	if err != nil {
		t.Fatalf("ExtractTable returned error: %v", err)
	}
	if len(ext.Rows) != 1 {
		t.Fatalf("got %d rows, expected 1", len(ext.Rows))
	}
	if v, _ := ext.Rows[0].Get("Time"); v != "DUE" {
		t.Errorf("Time = %q, expected DUE", v)
	}
}

func TestExtractTableNestedInLayoutTable(t *testing.T) {
	inner := forecastPage([]string{"Direction", "Destination", "Time"}, [][]string{
		{"Inbound", "Broombridge", "00:03"},
	})
	inner = strings.TrimPrefix(inner, "<html><body><form>")
	inner = strings.TrimSuffix(inner, "</form></body></html>")

	page := `<html><body><table id="layout">` +
		`<tr><td>Luas Forecasts</td></tr>` +
		`<tr><td>` + inner + `</td></tr>` +
		`<tr><td>Terms</td><td>Privacy</td><td>Contact</td></tr>` +
		`<tr><td>Copyright</td></tr>` +
		`</table></body></html>`

	ext, err := ExtractTable("1", page)
	if err != nil {
		t.Fatalf("ExtractTable returned error: %v", err)
	}
	if len(ext.Rows) != 1 {
		t.Fatalf("got %d rows, expected 1: %v", len(ext.Rows), ext.Rows)
	}
	if v, _ := ext.Rows[0].Get("Destination"); v != "Broombridge" {
		t.Errorf("Destination = %q, expected Broombridge", v)
	}
	if len(ext.RowFailures) != 0 {
		t.Errorf("unexpected row failures: %v", ext.RowFailures)
	}
	if ext.Message != "Green Line services operating normally" {
		t.Errorf("Message = %q", ext.Message)
	}
}

func TestExtractTableIgnoresNestedRows(t *testing.T) {
	page := `<table class="details">` +
		`<tr><th>Direction</th><th>Time</th></tr>` +
		`<tr><td>Inbound</td><td><table><tr><td>x</td></tr></table>DUE</td></tr>` +
		`</table>`

	ext, err := ExtractTable("1", page)
	if err != nil {
		t.Fatalf("ExtractTable returned error: %v", err)
	}
	if len(ext.Rows) != 1 || len(ext.RowFailures) != 0 {
		t.Fatalf("got %d rows and %d failures, expected 1 and 0", len(ext.Rows), len(ext.RowFailures))
	}
}

func TestExtractTableMessage(t *testing.T) {
	ext, err := ExtractTable("1", forecastPage([]string{"Time"}, nil))
	if err != nil {
		t.Fatalf("ExtractTable returned error: %v", err)
	}
	if ext.Message != "Green Line services operating normally" {
		t.Errorf("Message = %q", ext.Message)
	}
}

func TestColumnNamesUnique(t *testing.T) {
	page := forecastPage([]string{"Time", " ", "Time", "Time_2"}, [][]string{{"a", "b", "c", "d"}})

	ext, err := ExtractTable("1", page)
	if err != nil {
		t.Fatalf("ExtractTable returned error: %v", err)
	}

	expected := []string{"Time", "column1", "Time_2", "Time_2_2"}
	for i, want := range expected {
		if ext.Columns[i] != want {
			t.Errorf("column %d = %q, expected %q", i, ext.Columns[i], want)
		}
	}
	if len(ext.Rows[0]) != len(expected) {
		t.Errorf("row has %d keys, expected %d", len(ext.Rows[0]), len(expected))
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"  Inbound ", "Inbound"},
		{"Bride's\n\t Glen", "Bride's Glen"},
		{" DUE ", "DUE"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := cleanText(tc.in); got != tc.expected {
			t.Errorf("cleanText(%q) = %q, expected %q", tc.in, got, tc.expected)
		}
	}
}
