package dates

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"2024-01-02", false},
		{" 2024-01-02 ", false},
		{"2024-13-01", true},
		{"2024-1-2", true},
		{"", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := ParseDate(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDate(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
		})
	}
}

func TestParseDatetime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-01-02", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"2024-01-02T10:30", time.Date(2024, 1, 2, 10, 30, 0, 0, time.UTC)},
		{"2024-01-02T10:30:15Z", time.Date(2024, 1, 2, 10, 30, 15, 0, time.UTC)},
		{"2024-01-02 10:30:15", time.Date(2024, 1, 2, 10, 30, 15, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDatetime(tt.in)
			if err != nil {
				t.Fatalf("ParseDatetime(%q) error: %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseDatetime(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}

	if _, err := ParseDatetime("yesterday"); err == nil {
		t.Errorf("expected error for non-ISO input")
	}
}

func TestFormat(t *testing.T) {
	if got := Format(time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)); got != "2024-05-06" {
		t.Errorf("Format(date) = %q", got)
	}
	if got := Format(time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)); got != "2024-05-06T07:08:09Z" {
		t.Errorf("Format(datetime) = %q", got)
	}
}
