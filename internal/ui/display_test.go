package ui

import (
	"errors"
	"testing"
)

func TestTermWidth(t *testing.T) {
	size := func(w int, err error) func() (int, error) {
		return func() (int, error) { return w, err }
	}
	tests := []struct {
		name    string
		columns string
		isTTY   bool
		size    func() (int, error)
		want    int
	}{
		{"terminal size", "", true, size(93, nil), 93},
		{"columns overrides terminal", "70", true, size(93, nil), 70},
		{"columns without terminal", " 80 ", false, size(0, errors.New("not a tty")), 80},
		{"invalid columns falls through", "wide", true, size(93, nil), 93},
		{"not a terminal", "", false, size(93, nil), DefaultTermWidth},
		{"size error", "", true, size(0, errors.New("ioctl")), DefaultTermWidth},
		{"zero size", "", true, size(0, nil), DefaultTermWidth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := termWidth(tt.columns, tt.isTTY, tt.size); got != tt.want {
				t.Errorf("termWidth() = %d, want %d", got, tt.want)
			}
		})
	}
}
