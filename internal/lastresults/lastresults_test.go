package lastresults

import (
	"errors"
	"reflect"
	"testing"

	"github.com/aidanlsb/moltrack/internal/query"
)

func TestWriteAndRead(t *testing.T) {
	dir := t.TempDir()
	req := query.SearchRequest{Level: "compounds", Output: []string{"compounds.canonical_smiles"}, Limit: 5}
	lr := New(req, []query.Column{{Alias: "compounds_canonical_smiles"}}, []map[string]any{
		{"compounds_canonical_smiles": "CCO"},
		{"compounds_canonical_smiles": "c1ccccc1"},
	})
	if err := Write(dir, lr); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(dir)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Request.Level != "compounds" || got.Request.Limit != 5 {
		t.Errorf("request = %+v", got.Request)
	}
	if !reflect.DeepEqual(got.Columns, []string{"compounds_canonical_smiles"}) {
		t.Errorf("columns = %v", got.Columns)
	}
	rows, err := got.GetByNumbers([]int{2})
	if err != nil {
		t.Fatalf("GetByNumbers: %v", err)
	}
	if rows[0]["compounds_canonical_smiles"] != "c1ccccc1" {
		t.Errorf("row 2 = %+v", rows[0])
	}
	if _, err := got.GetByNumbers([]int{3}); !errors.Is(err, ErrNumberOutOfRange) {
		t.Errorf("err = %v, want ErrNumberOutOfRange", err)
	}
}

func TestReadMissing(t *testing.T) {
	if _, err := Read(t.TempDir()); !errors.Is(err, ErrNoLastResults) {
		t.Errorf("err = %v, want ErrNoLastResults", err)
	}
}

func TestParseNumbers(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{in: "1", want: []int{1}},
		{in: "1,3,5", want: []int{1, 3, 5}},
		{in: "2-4", want: []int{2, 3, 4}},
		{in: "1,3-5,3", want: []int{1, 3, 4, 5}},
		{in: "2 4", want: []int{2, 4}},
		{in: "", wantErr: true},
		{in: "0", wantErr: true},
		{in: "a", wantErr: true},
		{in: "5-2", wantErr: true},
		{in: "1-5000", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseNumbers(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidNumber) {
					t.Fatalf("err = %v, want ErrInvalidNumber", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseNumbers: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
