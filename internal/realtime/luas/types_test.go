package luas

import (
	"encoding/json"
	"testing"
)

func TestForecastRowJSONKeepsColumnOrder(t *testing.T) {
	row := ForecastRow{
		{Name: "Time", Value: "00:03"},
		{Name: "Direction", Value: "Inbound"},
		{Name: "Destination", Value: "Broombridge"},
	}

	data, err := json.Marshal(row)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	expected := `{"Time":"00:03","Direction":"Inbound","Destination":"Broombridge"}`
	if string(data) != expected {
		t.Errorf("Marshal = %s, expected %s", data, expected)
	}

	var decoded ForecastRow
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(decoded) != len(row) {
		t.Fatalf("decoded %d cells, expected %d", len(decoded), len(row))
	}
	for i := range row {
		if decoded[i] != row[i] {
			t.Errorf("cell %d = %+v, expected %+v", i, decoded[i], row[i])
		}
	}
}

func TestForecastRowUnmarshalNonString(t *testing.T) {
	var row ForecastRow
	if err := json.Unmarshal([]byte(`{"Due":3,"Late":null}`), &row); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if v, _ := row.Get("Due"); v != "3" {
		t.Errorf("Due = %q, expected 3", v)
	}
	if _, ok := row.Get("Missing"); ok {
		t.Error("Get should report missing columns")
	}

	if err := json.Unmarshal([]byte(`["a"]`), &row); err == nil {
		t.Error("expected error for non-object row")
	}
}
