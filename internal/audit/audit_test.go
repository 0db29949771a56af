package audit

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLogAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "audit.log")
	l := New(path)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := base
	l.now = func() time.Time {
		tick = tick.Add(time.Hour)
		return tick
	}

	for _, e := range []Entry{
		{Operation: OpRegister, Kind: "property", Name: "ic50", EntityType: "ASSAY_RESULT", Status: "success"},
		{Operation: OpRegister, Kind: "validator", Name: "ordered_dates", EntityType: "ASSAY", Status: "failed", Message: "unknown field"},
		{Operation: OpDisable, Kind: "validator", Name: "ordered_dates", Status: "success"},
	} {
		if err := l.Log(e); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	all, err := l.Read(Filter{})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(all) != 3 || all[0].Name != "ic50" || !all[0].Timestamp.Equal(base.Add(time.Hour)) {
		t.Fatalf("entries = %+v", all)
	}

	byName, _ := l.Read(Filter{Name: "ordered_dates"})
	if len(byName) != 2 {
		t.Errorf("by name = %+v, want 2", byName)
	}
	since, _ := l.Read(Filter{Since: base.Add(2 * time.Hour)})
	if len(since) != 2 || since[0].Operation != OpRegister || since[1].Operation != OpDisable {
		t.Errorf("since = %+v", since)
	}
}

func TestReadSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	content := `{"ts":"2024-03-01T00:00:00Z","op":"register","kind":"property","name":"mw","status":"success"}
not json

{"ts":"2024-03-02T00:00:00Z","op":"update","kind":"property","name":"mw","status":"success"}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	entries, err := New(path).Read(Filter{})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(entries) != 2 || entries[1].Operation != OpUpdate {
		t.Errorf("entries = %+v", entries)
	}
}

func TestDisabledLogger(t *testing.T) {
	l := New("")
	if l.Enabled() {
		t.Fatal("empty path should disable the logger")
	}
	if err := l.Log(Entry{Name: "x"}); err != nil {
		t.Errorf("Log: %v", err)
	}
	entries, err := l.Read(Filter{})
	if err != nil || len(entries) != 0 {
		t.Errorf("Read = %v, %v", entries, err)
	}

	var nilLogger *Logger
	if nilLogger.Enabled() || nilLogger.Path() != "" {
		t.Error("nil logger should be disabled")
	}
}

func TestReadMissingFile(t *testing.T) {
	entries, err := New(filepath.Join(t.TempDir(), "none.log")).Read(Filter{})
	if err != nil || len(entries) != 0 {
		t.Errorf("Read = %v, %v", entries, err)
	}
}
