package codec

import (
	"fmt"
	"testing"

	"github.com/goccy/go-json"
	"github.com/mmcdole/tablesync/internal/domain"
)

func TestNormalizeKeepsLargeIDs(t *testing.T) {
	got, err := Normalize([]domain.Record{{"id": json.Number("9007199254740993")}})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got[0]["id"] != json.Number("9007199254740993") {
		t.Errorf("id = %#v", got[0]["id"])
	}
}

func TestNormalizeValueTypes(t *testing.T) {
	got, err := Normalize([]domain.Record{{
		"count":  3,
		"amount": 18.5,
		"name":   "Ana",
		"flag":   true,
		"empty":  nil,
		"nested": map[string]any{"n": 1},
	}})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	rec := got[0]

	want := map[string]any{
		"count":  json.Number("3"),
		"amount": json.Number("18.5"),
		"name":   "Ana",
		"flag":   true,
		"empty":  nil,
	}
	for k, v := range want {
		if rec[k] != v {
			t.Errorf("%s = %#v, want %#v", k, rec[k], v)
		}
	}
	nested, ok := rec["nested"].(map[string]any)
	if !ok || nested["n"] != json.Number("1") {
		t.Errorf("nested = %#v", rec["nested"])
	}
}

func TestNormalizeIsStable(t *testing.T) {
	once, err := Normalize([]domain.Record{{"id": 7, "total": 1.25}})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	twice, err := Normalize(once)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	for k, v := range once[0] {
		if fmt.Sprintf("%T %v", v, v) != fmt.Sprintf("%T %v", twice[0][k], twice[0][k]) {
			t.Errorf("%s changed: %#v -> %#v", k, v, twice[0][k])
		}
	}
}

func TestEncodeNil(t *testing.T) {
	data, err := Encode(nil)
	if err != nil || string(data) != "[]" {
		t.Fatalf("Encode(nil) = %q, %v", data, err)
	}
	records, err := Decode(data)
	if err != nil || records == nil || len(records) != 0 {
		t.Errorf("Decode([]) = %#v, %v", records, err)
	}
}

func TestEncodeUnsupported(t *testing.T) {
	if _, err := Normalize([]domain.Record{{"ch": make(chan int)}}); err == nil {
		t.Error("expected encode error")
	}
}
