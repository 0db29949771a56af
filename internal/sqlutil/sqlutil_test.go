package sqlutil

import "testing"

func TestRebind(t *testing.T) {
	tests := []struct {
		name string
		d    Dialect
		in   string
		want string
	}{
		{"sqlite untouched", SQLite, "a = ? AND b = ?", "a = ? AND b = ?"},
		{"postgres numbered", Postgres, "a = ? AND b IN (?, ?)", "a = $1 AND b IN ($2, $3)"},
		{"quoted literal kept", Postgres, "a LIKE '%?%' AND b = ?", "a LIKE '%?%' AND b = $1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Rebind(tt.d, tt.in); got != tt.want {
				t.Errorf("Rebind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInClauseArgs(t *testing.T) {
	ph, args := InClauseArgs([]int{1, 2, 3})
	if ph != "?, ?, ?" || len(args) != 3 {
		t.Errorf("InClauseArgs = %q %v", ph, args)
	}
	ph, args = InClauseArgs([]string{})
	if ph != "NULL" || args != nil {
		t.Errorf("empty InClauseArgs = %q %v", ph, args)
	}
}

func TestParseDialect(t *testing.T) {
	for in, want := range map[string]Dialect{"sqlite": SQLite, "": SQLite, "postgres": Postgres, "pgx": Postgres} {
		got, err := ParseDialect(in)
		if err != nil || got != want {
			t.Errorf("ParseDialect(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseDialect("mysql"); err == nil {
		t.Errorf("expected error for unsupported driver")
	}
}
